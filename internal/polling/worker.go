package polling

import (
	"context"
	"fmt"
	"sync"
	"time"

	"scadalink/internal/logging"
	"scadalink/internal/model"
)

// groupWorker owns one polling group's goroutine and lifecycle.
type groupWorker struct {
	cfg    GroupConfig
	reader Reader
	sink   Sink
	clock  Clock

	mu         sync.RWMutex
	state      model.ThreadState
	lastPoll   time.Time
	lastErr    string
	pollCount  int64
	errorCount int64

	haveTriggered bool
	lastTrigger   time.Time
	triggerCh     chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	onError ErrorHook
}

func newGroupWorker(cfg GroupConfig, reader Reader, sink Sink, clock Clock) *groupWorker {
	if clock == nil {
		clock = RealClock{}
	}
	return &groupWorker{
		cfg:       cfg,
		reader:    reader,
		sink:      sink,
		clock:     clock,
		state:     model.StateStopped,
		triggerCh: make(chan struct{}, 1),
	}
}

// requestTrigger is the single entry point for an operator/API-initiated
// HANDSHAKE poll: it accepts the request only if at least handshakeDedupWindow
// has elapsed since the last accepted request, then wakes the worker's
// handshake loop. It reports whether the request was accepted; a
// deduplicated request is not an error, just a no-op.
func (w *groupWorker) requestTrigger(now time.Time) bool {
	w.mu.Lock()
	if w.haveTriggered && now.Sub(w.lastTrigger) < handshakeDedupWindow {
		w.mu.Unlock()
		return false
	}
	w.haveTriggered = true
	w.lastTrigger = now
	w.mu.Unlock()

	select {
	case w.triggerCh <- struct{}{}:
	default:
	}
	return true
}

// start launches the worker's goroutine. Calling start on an already-running
// worker is a no-op.
func (w *groupWorker) start() {
	w.mu.Lock()
	if w.ctx != nil {
		w.mu.Unlock()
		return
	}
	w.ctx, w.cancel = context.WithCancel(context.Background())
	w.state = model.StateRunning
	w.mu.Unlock()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer w.finish()
		switch w.cfg.Mode {
		case model.ModeHandshake:
			runHandshake(w)
		default:
			runFixed(w)
		}
	}()
}

func (w *groupWorker) finish() {
	w.mu.Lock()
	if w.state != model.StateError {
		w.state = model.StateStopped
	}
	w.mu.Unlock()
}

// stop signals the worker to exit and waits for it, with a bounded cap so a
// single wedged group cannot hang the engine's shutdown.
func (w *groupWorker) stop() {
	w.mu.Lock()
	if w.cancel != nil {
		w.state = model.StateStopping
		w.cancel()
	}
	w.mu.Unlock()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		logging.Debug("POLL", "group %s did not stop within cap", w.cfg.ID)
	}

	w.mu.Lock()
	w.ctx = nil
	w.cancel = nil
	w.state = model.StateStopped
	w.mu.Unlock()
}

// pollOnce runs one read cycle for every configured tag address and emits a
// PollingSample. It never returns an error for individual tag failures —
// those land in the sample's ErrorTags — only for PLC-unreachable or
// sink-backpressure conditions the caller may want to log.
func (w *groupWorker) pollOnce(ctx context.Context) error {
	started := w.clock.Now()
	values, errTags, err := w.reader.ReadBatch(ctx, w.cfg.PLCCode, w.cfg.TagAddresses)

	w.mu.Lock()
	w.lastPoll = started
	w.pollCount++
	if err != nil {
		w.errorCount++
		w.lastErr = err.Error()
	} else if len(errTags) > 0 {
		w.lastErr = fmt.Sprintf("%d tag read errors", len(errTags))
	} else {
		w.lastErr = ""
	}
	w.mu.Unlock()

	if err != nil {
		if w.onError != nil {
			w.onError(w.cfg.PLCCode, w.cfg.Name, err, w.cfg.TagAddresses, w.clock.Now().Sub(started).Milliseconds())
		}
		return err
	}

	sample := model.PollingSample{
		Timestamp:       started,
		GroupID:         w.cfg.ID,
		GroupName:       w.cfg.Name,
		PLCCode:         w.cfg.PLCCode,
		Mode:            w.cfg.Mode,
		Category:        w.cfg.Category,
		Values:          values,
		ErrorTags:       errTags,
		PollDurationMs:  w.clock.Now().Sub(started).Milliseconds(),
		TagLogModes:     w.cfg.TagLogModes,
		TagMachineCodes: w.cfg.TagMachine,
	}
	return w.sink.Put(ctx, sample, time.Second)
}

func (w *groupWorker) status() Status {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return Status{
		GroupID:    w.cfg.ID,
		State:      w.state,
		LastPoll:   w.lastPoll,
		LastError:  w.lastErr,
		PollCount:  w.pollCount,
		ErrorCount: w.errorCount,
	}
}

func (w *groupWorker) markError(err error) {
	w.mu.Lock()
	w.state = model.StateError
	w.lastErr = err.Error()
	w.mu.Unlock()
}
