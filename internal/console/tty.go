// Package console exposes a read-only-plus-action operator surface over
// SSH: a terminal UI rendering live group status and pipeline health, with
// keybindings that invoke the engine's control-surface methods
// (startGroup/stopGroup/restartGroup/triggerHandshake). It is a thin
// façade — every mutation it can trigger is a single call onto the
// injected ControlSurface, never direct manipulation of engine state.
package console

import (
	"io"
	"sync"

	"github.com/gdamore/tcell/v2"
	gossh "golang.org/x/crypto/ssh"
)

// channelTty wraps an SSH channel to implement tcell.Tty, letting tcell
// drive a terminal UI over the channel as if it were a local pty.
type channelTty struct {
	channel  gossh.Channel
	term     string
	width    int
	height   int
	mu       sync.RWMutex
	resizeCb func()
	resizeMu sync.Mutex
	stopped  bool
}

func newChannelTty(channel gossh.Channel, term string, initialWidth, initialHeight int) *channelTty {
	if term == "" {
		term = "xterm-256color"
	}
	return &channelTty{channel: channel, term: term, width: initialWidth, height: initialHeight}
}

func (t *channelTty) Term() string { return t.term }

func (t *channelTty) Start() error { return nil }

func (t *channelTty) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	return nil
}

func (t *channelTty) Drain() error { return nil }

func (t *channelTty) NotifyResize(cb func()) {
	t.resizeMu.Lock()
	t.resizeCb = cb
	t.resizeMu.Unlock()
}

func (t *channelTty) WindowSize() (tcell.WindowSize, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return tcell.WindowSize{Width: t.width, Height: t.height}, nil
}

func (t *channelTty) SetWindowSize(width, height int) {
	t.mu.Lock()
	t.width = width
	t.height = height
	t.mu.Unlock()

	t.resizeMu.Lock()
	cb := t.resizeCb
	t.resizeMu.Unlock()
	if cb != nil {
		cb()
	}
}

func (t *channelTty) Read(b []byte) (int, error) {
	t.mu.RLock()
	stopped := t.stopped
	t.mu.RUnlock()
	if stopped {
		return 0, io.EOF
	}
	n, err := t.channel.Read(b)
	if err != nil {
		t.mu.RLock()
		stopped = t.stopped
		t.mu.RUnlock()
		if stopped {
			return 0, io.EOF
		}
	}
	return n, err
}

func (t *channelTty) Write(b []byte) (int, error) { return t.channel.Write(b) }

func (t *channelTty) Close() error {
	t.Stop()
	return t.channel.Close()
}

var (
	_ tcell.Tty          = (*channelTty)(nil)
	_ io.ReadWriteCloser = (*channelTty)(nil)
)
