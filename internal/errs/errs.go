// Package errs defines the sentinel error kinds shared across the
// collection pipeline. Components wrap one of these with fmt.Errorf's %w
// verb so callers can classify failures with errors.Is regardless of the
// message text attached.
package errs

import "errors"

var (
	// ErrConnectionFailed covers socket refused/unreachable/closed-mid-read.
	ErrConnectionFailed = errors.New("connection failed")
	// ErrTimeout covers connect or read timeouts.
	ErrTimeout = errors.New("timeout")
	// ErrProtocol covers a non-zero PLC-reported completion code.
	ErrProtocol = errors.New("protocol error")
	// ErrRead covers any other read-side failure.
	ErrRead = errors.New("read error")
	// ErrPoolExhausted is raised by ConnectionPool.Acquire on timeout.
	ErrPoolExhausted = errors.New("connection pool exhausted")
	// ErrInactivePLC is raised for an unknown or inactive plcCode.
	ErrInactivePLC = errors.New("inactive or unknown plc")
	// ErrBufferEmpty is raised by CircularBuffer.Get under strict semantics.
	ErrBufferEmpty = errors.New("buffer empty")
	// ErrQueueFull is raised by a bounded put that could not be enqueued
	// within its timeout.
	ErrQueueFull = errors.New("queue full")
	// ErrOracleBatchFailure covers a batch insert that failed entirely.
	ErrOracleBatchFailure = errors.New("oracle batch failure")
	// ErrConfiguration covers startup/config load failures, which the
	// engine surfaces rather than recovering from.
	ErrConfiguration = errors.New("configuration error")
	// ErrMaxPollingGroupsReached is raised by startGroup when 10 groups
	// are already RUNNING.
	ErrMaxPollingGroupsReached = errors.New("maximum concurrent polling groups reached")
)
