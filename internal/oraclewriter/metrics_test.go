package oraclewriter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRollingMetrics_AveragesAndCumulativeCounters(t *testing.T) {
	m := NewRollingMetrics()
	t0 := time.Unix(0, 0)

	m.RecordBatchWrite(t0, 100, 50*time.Millisecond, true)
	m.RecordBatchWrite(t0.Add(time.Second), 200, 150*time.Millisecond, true)
	m.RecordBatchWrite(t0.Add(2*time.Second), 0, 0, false)

	snap := m.Stats(t0.Add(3 * time.Second))
	assert.Equal(t, int64(2), snap.TotalSuccessfulWrites)
	assert.Equal(t, int64(1), snap.TotalFailedWrites)
	assert.Equal(t, int64(300), snap.TotalItemsWritten)
	assert.InDelta(t, 100.0, snap.AvgBatchSize, 0.01) // (100+200+0)/3
	assert.InDelta(t, 66.67, snap.WriteSuccessRate, 0.1)
}

func TestRollingMetrics_WindowPrunesOldSamples(t *testing.T) {
	m := NewRollingMetrics()
	t0 := time.Unix(0, 0)

	m.RecordBatchWrite(t0, 500, time.Millisecond, true)
	// 6 minutes later: the first sample has aged out of the 5-minute window.
	later := t0.Add(6 * time.Minute)
	m.RecordBatchWrite(later, 10, time.Millisecond, true)

	assert.Equal(t, 1, m.WriteCountInWindow(later))
	assert.InDelta(t, 10.0, m.AvgBatchSize(later), 0.01)
	// Cumulative counters are unaffected by pruning.
	snap := m.Stats(later)
	assert.Equal(t, int64(510), snap.TotalItemsWritten)
}

func TestRollingMetrics_OverflowRate(t *testing.T) {
	m := NewRollingMetrics()
	t0 := time.Unix(0, 0)

	m.RecordBatchWrite(t0, 900, time.Millisecond, true)
	m.RecordOverflow(t0, 100)

	rate := m.OverflowRate(t0)
	assert.InDelta(t, 10.0, rate, 0.01) // 100 / (900+100) * 100
}

func TestRollingMetrics_Reset(t *testing.T) {
	m := NewRollingMetrics()
	t0 := time.Unix(0, 0)
	m.RecordBatchWrite(t0, 10, time.Millisecond, true)
	m.Reset()

	snap := m.Stats(t0)
	assert.Equal(t, int64(0), snap.TotalSuccessfulWrites)
	assert.Equal(t, int64(0), snap.TotalItemsWritten)
}
