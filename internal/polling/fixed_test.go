package polling

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scadalink/internal/model"
)

func TestRunFixed_PollsRepeatedlyAtInterval(t *testing.T) {
	reader := &fakeReader{value: model.Int(1)}
	sink := &fakeSink{}
	cfg := GroupConfig{ID: "G1", PLCCode: "P1", Mode: model.ModeFixed, IntervalMs: 100, TagAddresses: []string{"D100"}}
	w := newGroupWorker(cfg, reader, sink, newFakeClock())
	w.start()

	require.Eventually(t, func() bool { return reader.count() >= 3 }, 2*time.Second, 5*time.Millisecond)

	w.stop()
	assert.Equal(t, sink.count(), reader.count())
}

func TestRunFixed_StopsPromptly(t *testing.T) {
	reader := &fakeReader{value: model.Int(1)}
	sink := &fakeSink{}
	cfg := GroupConfig{ID: "G1", PLCCode: "P1", Mode: model.ModeFixed, IntervalMs: 100, TagAddresses: []string{"D100"}}
	w := newGroupWorker(cfg, reader, sink, newFakeClock())
	w.start()
	require.Eventually(t, func() bool { return reader.count() >= 1 }, time.Second, 5*time.Millisecond)

	start := time.Now()
	w.stop()
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, model.StateStopped, w.status().State)
}
