package polling

import (
	"time"

	"scadalink/internal/logging"
)

// handshakeDedupWindow is the minimum spacing between two accepted
// triggers; a request arriving sooner than this after the last accepted one
// is silently discarded (groupWorker.requestTrigger).
const handshakeDedupWindow = 1 * time.Second

// runHandshake drives a HANDSHAKE-mode group: it never polls on its own
// schedule, only in response to an externally accepted trigger
// (groupWorker.requestTrigger, invoked via Engine.TriggerHandshake).
// Deduplication happens once, at the trigger-acceptance boundary, so every
// wakeup here runs exactly one poll.
func runHandshake(w *groupWorker) {
	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.triggerCh:
			if w.ctx.Err() != nil {
				return
			}
			if err := w.pollOnce(w.ctx); err != nil {
				logging.Debug("POLL", "group %s handshake poll error: %v", w.cfg.ID, err)
			}
		}
	}
}
