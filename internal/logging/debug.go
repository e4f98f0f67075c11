// Package logging provides the subsystem-filtered debug logger and failure/file
// loggers shared by every collection-pipeline component.
package logging

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

// DebugLogger writes verbose, subsystem-tagged trace lines plus hex dumps of
// wire traffic. It is intended for protocol-level troubleshooting (MC3E
// frames, Oracle batches) and is safe to leave nil — every method tolerates
// a nil receiver so call sites never need to branch on whether debug logging
// is enabled.
type DebugLogger struct {
	file    *os.File
	mu      sync.Mutex
	closed  bool
	filters map[string]bool
}

var (
	globalDebugLogger *DebugLogger
	globalDebugMu     sync.RWMutex
)

// NewDebugLogger opens path fresh (truncated) for a new session.
func NewDebugLogger(path string) (*DebugLogger, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("open debug log: %w", err)
	}
	l := &DebugLogger{file: file, filters: make(map[string]bool)}
	l.Log("DEBUG", "debug logging started %s", time.Now().Format(time.RFC3339))
	return l, nil
}

// SetFilter restricts logging to a comma-separated list of subsystem names.
// Empty means log everything.
func (l *DebugLogger) SetFilter(filter string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.filters = make(map[string]bool)
	for _, p := range strings.Split(filter, ",") {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			l.filters[p] = true
		}
	}
}

func (l *DebugLogger) shouldLog(subsystem string) bool {
	if len(l.filters) == 0 {
		return true
	}
	s := strings.ToLower(subsystem)
	return l.filters[s] || s == "debug"
}

// SetGlobal installs l as the process-wide debug logger used by the package
// level Debug* helpers below.
func SetGlobal(l *DebugLogger) {
	globalDebugMu.Lock()
	defer globalDebugMu.Unlock()
	globalDebugLogger = l
}

// Global returns the process-wide debug logger, or nil if none is set.
func Global() *DebugLogger {
	globalDebugMu.RLock()
	defer globalDebugMu.RUnlock()
	return globalDebugLogger
}

// Log writes a formatted, timestamped, subsystem-tagged line.
func (l *DebugLogger) Log(subsystem, format string, args ...interface{}) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || !l.shouldLog(subsystem) {
		return
	}
	ts := time.Now().Format("2006-01-02 15:04:05.000")
	fmt.Fprintf(l.file, "%s [%s] %s\n", ts, subsystem, fmt.Sprintf(format, args...))
}

// TX logs an outbound wire frame with a hex dump.
func (l *DebugLogger) TX(subsystem string, data []byte) { l.packet(subsystem, "TX", data) }

// RX logs an inbound wire frame with a hex dump.
func (l *DebugLogger) RX(subsystem string, data []byte) { l.packet(subsystem, "RX", data) }

func (l *DebugLogger) packet(subsystem, dir string, data []byte) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || !l.shouldLog(subsystem) {
		return
	}
	ts := time.Now().Format("2006-01-02 15:04:05.000")
	fmt.Fprintf(l.file, "%s [%s] %s (%d bytes):\n%s\n", ts, subsystem, dir, len(data), hexDump(data))
}

// Connect, ConnectError, ConnectSuccess, and Disconnect mirror the
// connection-lifecycle helpers every protocol client in this module calls.
func (l *DebugLogger) Connect(subsystem, address string) { l.Log(subsystem, "connect %s", address) }

func (l *DebugLogger) ConnectError(subsystem, address string, err error) {
	l.Log(subsystem, "connect %s failed: %v", address, err)
}

func (l *DebugLogger) ConnectSuccess(subsystem, address, details string) {
	l.Log(subsystem, "connected %s (%s)", address, details)
}

func (l *DebugLogger) Disconnect(subsystem, address, reason string) {
	l.Log(subsystem, "disconnect %s: %s", address, reason)
}

func (l *DebugLogger) Error(subsystem, context string, err error) {
	l.Log(subsystem, "error in %s: %v", context, err)
}

// Close flushes and closes the underlying file.
func (l *DebugLogger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	fmt.Fprintf(l.file, "%s [DEBUG] debug logging ended\n", time.Now().Format("2006-01-02 15:04:05.000"))
	return l.file.Close()
}

func hexDump(data []byte) string {
	if len(data) == 0 {
		return "    (empty)"
	}
	var sb strings.Builder
	for off := 0; off < len(data); off += 16 {
		fmt.Fprintf(&sb, "    %04x: ", off)
		for i := 0; i < 16 && off+i < len(data); i++ {
			fmt.Fprintf(&sb, "%02x ", data[off+i])
		}
		sb.WriteString(" ")
		for i := 0; i < 16 && off+i < len(data); i++ {
			b := data[off+i]
			if b >= 32 && b < 127 {
				sb.WriteByte(b)
			} else {
				sb.WriteByte('.')
			}
		}
		sb.WriteString("\n")
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

// Debug, DebugTX, DebugRX, DebugConnect, DebugConnectError,
// DebugConnectSuccess, DebugDisconnect, and DebugError forward to the global
// logger set via SetGlobal; every call is a no-op when none is installed.
func Debug(subsystem, format string, args ...interface{}) { Global().Log(subsystem, format, args...) }
func DebugTX(subsystem string, data []byte)                { Global().TX(subsystem, data) }
func DebugRX(subsystem string, data []byte)                { Global().RX(subsystem, data) }
func DebugConnect(subsystem, address string)                { Global().Connect(subsystem, address) }
func DebugConnectError(subsystem, address string, err error) {
	Global().ConnectError(subsystem, address, err)
}
func DebugConnectSuccess(subsystem, address, details string) {
	Global().ConnectSuccess(subsystem, address, details)
}
func DebugDisconnect(subsystem, address, reason string) {
	Global().Disconnect(subsystem, address, reason)
}
func DebugError(subsystem, context string, err error) { Global().Error(subsystem, context, err) }
