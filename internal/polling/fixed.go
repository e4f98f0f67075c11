package polling

import (
	"time"

	"scadalink/internal/logging"
)

// runFixed drives a FIXED-mode group: poll on a monotonic schedule advanced
// by nextDeadline += interval, not now + interval, so jitter from the poll
// itself does not accumulate across cycles. If a poll overruns the
// interval, nextDeadline is reset to now + interval and the miss is logged
// so drift cannot diverge unboundedly. Cancellation is checked both before
// sleeping and after waking, and the wait between checks is capped at
// min(interval, 1s) so a stop request is never held up longer than that.
func runFixed(w *groupWorker) {
	interval := time.Duration(w.cfg.IntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	checkEvery := interval
	if checkEvery > time.Second {
		checkEvery = time.Second
	}

	nextDeadline := w.clock.Now().Add(interval)
	for {
		if w.ctx.Err() != nil {
			return
		}

		now := w.clock.Now()
		wait := nextDeadline.Sub(now)
		if wait > 0 {
			if wait > checkEvery {
				wait = checkEvery
			}
			if err := w.clock.Sleep(w.ctx, wait); err != nil {
				return
			}
			continue
		}

		if w.ctx.Err() != nil {
			return
		}

		if err := w.pollOnce(w.ctx); err != nil {
			logging.Debug("POLL", "group %s poll error: %v", w.cfg.ID, err)
		}

		now = w.clock.Now()
		if now.After(nextDeadline.Add(interval)) {
			logging.Debug("POLL", "group %s poll overran interval, resetting schedule", w.cfg.ID)
			nextDeadline = now.Add(interval)
		} else {
			nextDeadline = nextDeadline.Add(interval)
		}
	}
}
