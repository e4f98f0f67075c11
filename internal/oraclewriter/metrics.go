package oraclewriter

import (
	"sync"
	"time"
)

const rollingWindow = 5 * time.Minute

type timedValue struct {
	at    time.Time
	value float64
}

// RollingMetrics tracks batch-write performance over a trailing 5-minute
// window alongside cumulative, never-reset counters. Windowed samples are
// pruned lazily on read rather than on a timer, matching the deque-based
// rolling window it is modeled on.
type RollingMetrics struct {
	mu sync.Mutex

	batchSizes     []timedValue
	writeLatencies []timedValue
	overflowEvents []timedValue

	totalSuccessfulWrites int64
	totalFailedWrites     int64
	totalItemsWritten     int64
	lastWriteTime         time.Time
}

// NewRollingMetrics constructs an empty RollingMetrics.
func NewRollingMetrics() *RollingMetrics {
	return &RollingMetrics{}
}

func prune(values []timedValue, now time.Time) []timedValue {
	cutoff := now.Add(-rollingWindow)
	i := 0
	for i < len(values) && values[i].at.Before(cutoff) {
		i++
	}
	if i == 0 {
		return values
	}
	return append(values[:0], values[i:]...)
}

// RecordBatchWrite records the outcome of one batch-write attempt. now is
// the time of the attempt.
func (m *RollingMetrics) RecordBatchWrite(now time.Time, batchSize int, latency time.Duration, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.batchSizes = prune(m.batchSizes, now)
	m.writeLatencies = prune(m.writeLatencies, now)
	m.batchSizes = append(m.batchSizes, timedValue{at: now, value: float64(batchSize)})
	m.writeLatencies = append(m.writeLatencies, timedValue{at: now, value: float64(latency.Milliseconds())})

	if success {
		m.totalSuccessfulWrites++
		m.totalItemsWritten += int64(batchSize)
		m.lastWriteTime = now
	} else {
		m.totalFailedWrites++
	}
}

// RecordOverflow records count CircularBuffer overflow evictions at now.
func (m *RollingMetrics) RecordOverflow(now time.Time, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overflowEvents = prune(m.overflowEvents, now)
	m.overflowEvents = append(m.overflowEvents, timedValue{at: now, value: float64(count)})
}

func avg(values []timedValue) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v.value
	}
	return sum / float64(len(values))
}

func sum(values []timedValue) float64 {
	var s float64
	for _, v := range values {
		s += v.value
	}
	return s
}

// AvgBatchSize returns the mean batch size over the trailing window.
func (m *RollingMetrics) AvgBatchSize(now time.Time) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batchSizes = prune(m.batchSizes, now)
	return avg(m.batchSizes)
}

// AvgWriteLatencyMs returns the mean write latency in milliseconds over the
// trailing window.
func (m *RollingMetrics) AvgWriteLatencyMs(now time.Time) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeLatencies = prune(m.writeLatencies, now)
	return avg(m.writeLatencies)
}

// OverflowCount returns the total overflow evictions counted within the
// trailing window.
func (m *RollingMetrics) OverflowCount(now time.Time) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overflowEvents = prune(m.overflowEvents, now)
	return int64(sum(m.overflowEvents))
}

// OverflowRate returns overflow evictions as a percentage of total items
// written plus overflowed within the trailing window.
func (m *RollingMetrics) OverflowRate(now time.Time) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overflowEvents = prune(m.overflowEvents, now)
	m.batchSizes = prune(m.batchSizes, now)
	overflow := sum(m.overflowEvents)
	written := sum(m.batchSizes)
	total := overflow + written
	if total == 0 {
		return 0
	}
	return overflow / total * 100
}

// WriteSuccessRate returns the cumulative (non-windowed) percentage of
// successful batch writes.
func (m *RollingMetrics) WriteSuccessRate() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := m.totalSuccessfulWrites + m.totalFailedWrites
	if total == 0 {
		return 100
	}
	return float64(m.totalSuccessfulWrites) / float64(total) * 100
}

// WriteCountInWindow returns the number of batch-write attempts recorded
// within the trailing window.
func (m *RollingMetrics) WriteCountInWindow(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batchSizes = prune(m.batchSizes, now)
	return len(m.batchSizes)
}

// ItemsWrittenInWindow returns the total items across batches recorded
// within the trailing window.
func (m *RollingMetrics) ItemsWrittenInWindow(now time.Time) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batchSizes = prune(m.batchSizes, now)
	return sum(m.batchSizes)
}

// Throughput returns items-per-second over the actual span of windowed
// batch-size samples, or 0 if fewer than two samples are present.
func (m *RollingMetrics) Throughput(now time.Time) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batchSizes = prune(m.batchSizes, now)
	if len(m.batchSizes) < 2 {
		return 0
	}
	span := m.batchSizes[len(m.batchSizes)-1].at.Sub(m.batchSizes[0].at).Seconds()
	if span <= 0 {
		return 0
	}
	return sum(m.batchSizes) / span
}

// Snapshot is a point-in-time rendering of every rolling and cumulative
// metric, suitable for a health/status endpoint.
type Snapshot struct {
	AvgBatchSize          float64
	AvgWriteLatencyMs     float64
	OverflowCount         int64
	OverflowRate          float64
	WriteSuccessRate      float64
	WriteCountInWindow    int
	ItemsWrittenInWindow  float64
	ThroughputPerSec      float64
	TotalSuccessfulWrites int64
	TotalFailedWrites     int64
	TotalItemsWritten     int64
	LastWriteTime         time.Time
}

// Stats returns a combined snapshot of every metric, mirroring the
// rolling-plus-cumulative dictionary the writer exposes at its health
// endpoint.
func (m *RollingMetrics) Stats(now time.Time) Snapshot {
	return Snapshot{
		AvgBatchSize:         m.AvgBatchSize(now),
		AvgWriteLatencyMs:    m.AvgWriteLatencyMs(now),
		OverflowCount:        m.OverflowCount(now),
		OverflowRate:         m.OverflowRate(now),
		WriteSuccessRate:     m.WriteSuccessRate(),
		WriteCountInWindow:   m.WriteCountInWindow(now),
		ItemsWrittenInWindow: m.ItemsWrittenInWindow(now),
		ThroughputPerSec:     m.Throughput(now),
		TotalSuccessfulWrites: func() int64 {
			m.mu.Lock()
			defer m.mu.Unlock()
			return m.totalSuccessfulWrites
		}(),
		TotalFailedWrites: func() int64 {
			m.mu.Lock()
			defer m.mu.Unlock()
			return m.totalFailedWrites
		}(),
		TotalItemsWritten: func() int64 {
			m.mu.Lock()
			defer m.mu.Unlock()
			return m.totalItemsWritten
		}(),
		LastWriteTime: func() time.Time {
			m.mu.Lock()
			defer m.mu.Unlock()
			return m.lastWriteTime
		}(),
	}
}

// Reset clears every rolling and cumulative counter.
func (m *RollingMetrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batchSizes = nil
	m.writeLatencies = nil
	m.overflowEvents = nil
	m.totalSuccessfulWrites = 0
	m.totalFailedWrites = 0
	m.totalItemsWritten = 0
	m.lastWriteTime = time.Time{}
}
