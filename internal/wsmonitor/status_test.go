package wsmonitor

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusBroadcaster_PublishesDerivedSnapshotsOnInterval(t *testing.T) {
	hub := NewHub()
	defer hub.Stop()

	conn := newFakeConn()
	hub.Register("a", conn)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	var calls int
	var mu sync.Mutex
	derive := func() []StatusSnapshot {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return []StatusSnapshot{{MachineCode: "M1", Status: StatusRunning, Timestamp: time.Unix(int64(calls), 0)}}
	}

	b := NewStatusBroadcaster(hub, derive, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	require.Eventually(t, func() bool { return conn.writeCount() >= 2 }, time.Second, 5*time.Millisecond)

	conn.mu.Lock()
	var got []StatusSnapshot
	require.NoError(t, json.Unmarshal(conn.written[0], &got))
	conn.mu.Unlock()

	require.Len(t, got, 1)
	assert.Equal(t, "M1", got[0].MachineCode)
	assert.Equal(t, StatusRunning, got[0].Status)
}

func TestStatusBroadcaster_StopsOnContextCancellation(t *testing.T) {
	hub := NewHub()
	defer hub.Stop()

	derive := func() []StatusSnapshot { return nil }
	b := NewStatusBroadcaster(hub, derive, 5*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		b.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

func TestStatusBroadcaster_DefaultIntervalAppliedWhenNonPositive(t *testing.T) {
	hub := NewHub()
	defer hub.Stop()
	b := NewStatusBroadcaster(hub, func() []StatusSnapshot { return nil }, 0)
	assert.Equal(t, defaultStatusInterval, b.interval)
}
