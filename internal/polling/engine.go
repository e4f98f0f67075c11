package polling

import (
	"fmt"
	"sync"

	"scadalink/internal/errs"
	"scadalink/internal/model"
)

// maxRunningGroups is the hard cap on concurrently RUNNING polling groups
// per engine instance.
const maxRunningGroups = 10

// Engine owns every polling group's worker and enforces the
// concurrent-group ceiling.
type Engine struct {
	reader Reader
	sink   Sink
	clock  Clock

	mu        sync.RWMutex
	workers   map[string]*groupWorker
	running   map[string]bool
	errorHook ErrorHook
}

// NewEngine constructs an Engine with no groups registered.
func NewEngine(reader Reader, sink Sink, clock Clock) *Engine {
	return &Engine{
		reader:  reader,
		sink:    sink,
		clock:   clock,
		workers: make(map[string]*groupWorker),
		running: make(map[string]bool),
	}
}

func (e *Engine) runningCount() int {
	n := 0
	for _, r := range e.running {
		if r {
			n++
		}
	}
	return n
}

// StartGroup registers (if needed) and starts cfg's worker. It raises
// ErrMaxPollingGroupsReached if 10 groups are already running and cfg is
// not already one of them.
func (e *Engine) StartGroup(cfg GroupConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running[cfg.ID] {
		return nil
	}
	if e.runningCount() >= maxRunningGroups {
		return fmt.Errorf("%w: group %s", errs.ErrMaxPollingGroupsReached, cfg.ID)
	}

	w, ok := e.workers[cfg.ID]
	if !ok {
		w = newGroupWorker(cfg, e.reader, e.sink, e.clock)
		w.onError = e.errorHook
		e.workers[cfg.ID] = w
	}
	w.start()
	e.running[cfg.ID] = true
	return nil
}

// StopGroup stops groupID's worker if running. It is a no-op for an
// unknown or already-stopped group.
func (e *Engine) StopGroup(groupID string) {
	e.mu.Lock()
	w, ok := e.workers[groupID]
	e.running[groupID] = false
	e.mu.Unlock()
	if ok {
		w.stop()
	}
}

// StartAll starts every group in cfgs, stopping at the concurrency ceiling;
// it returns the IDs that could not be started due to the ceiling.
func (e *Engine) StartAll(cfgs []GroupConfig) (rejected []string) {
	for _, cfg := range cfgs {
		if err := e.StartGroup(cfg); err != nil {
			rejected = append(rejected, cfg.ID)
		}
	}
	return rejected
}

// StopAll stops every currently-registered group's worker.
func (e *Engine) StopAll() {
	e.mu.RLock()
	ids := make([]string, 0, len(e.workers))
	for id := range e.workers {
		ids = append(ids, id)
	}
	e.mu.RUnlock()

	for _, id := range ids {
		e.StopGroup(id)
	}
}

// TriggerHandshake requests one immediate poll of a HANDSHAKE-mode group.
// The request is deduplicated against the group's last accepted trigger
// (handshakeDedupWindow): two requests within that window produce at most
// one poll. A deduplicated request is not reported as an error — it is an
// expected outcome of a chattering operator control or a retried API call,
// not a failure the caller must handle.
func (e *Engine) TriggerHandshake(groupID string) error {
	e.mu.RLock()
	w, ok := e.workers[groupID]
	e.mu.RUnlock()
	if !ok {
		return fmt.Errorf("polling: unknown group %s", groupID)
	}
	if w.cfg.Mode != model.ModeHandshake {
		return fmt.Errorf("polling: group %s is not HANDSHAKE mode", groupID)
	}
	w.mu.RLock()
	running := w.ctx != nil
	w.mu.RUnlock()
	if !running {
		return fmt.Errorf("polling: group %s is not running", groupID)
	}
	w.requestTrigger(w.clock.Now())
	return nil
}

// GetStatus returns groupID's worker status and whether it is known.
func (e *Engine) GetStatus(groupID string) (Status, bool) {
	e.mu.RLock()
	w, ok := e.workers[groupID]
	e.mu.RUnlock()
	if !ok {
		return Status{}, false
	}
	return w.status(), true
}

// GetAllStatus returns every registered group's status.
func (e *Engine) GetAllStatus() []Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Status, 0, len(e.workers))
	for _, w := range e.workers {
		out = append(out, w.status())
	}
	return out
}

// SetErrorHook installs the callback invoked whenever a poll fails outright.
// It must be called before any group is started to take effect for that
// group's worker.
func (e *Engine) SetErrorHook(hook ErrorHook) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errorHook = hook
}

// Config returns groupID's registered configuration and whether it is
// known, letting a caller restart a group without caching its config
// separately.
func (e *Engine) Config(groupID string) (GroupConfig, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	w, ok := e.workers[groupID]
	if !ok {
		return GroupConfig{}, false
	}
	return w.cfg, true
}
