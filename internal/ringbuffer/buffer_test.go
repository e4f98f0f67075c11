package ringbuffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scadalink/internal/model"
)

func reading(v int64) model.BufferedReading {
	return model.BufferedReading{TagAddress: "D100", Value: model.Int(v)}
}

func TestCircularBuffer_PutGetFIFOOrder(t *testing.T) {
	b := NewCircularBuffer(10)
	for i := int64(0); i < 5; i++ {
		b.Put(reading(i))
	}
	require.Equal(t, 5, b.Size())

	got := b.Get(3)
	require.Len(t, got, 3)
	for i, g := range got {
		assert.Equal(t, int64(i), g.Value.Integer)
	}
	assert.Equal(t, 2, b.Size())
}

func TestCircularBuffer_GetFewerThanRequestedWhenShort(t *testing.T) {
	b := NewCircularBuffer(10)
	b.Put(reading(1))
	got := b.Get(5)
	assert.Len(t, got, 1)
	assert.True(t, b.IsEmpty())

	assert.Empty(t, b.Get(5))
}

func TestCircularBuffer_PeekDoesNotRemove(t *testing.T) {
	b := NewCircularBuffer(10)
	b.Put(reading(1))
	b.Put(reading(2))
	assert.Len(t, b.Peek(10), 2)
	assert.Equal(t, 2, b.Size())
}

func TestCircularBuffer_FullAtExactlyMaxSize_NextPutEvictsOne(t *testing.T) {
	b := NewCircularBuffer(10)
	for i := int64(0); i < 10; i++ {
		b.Put(reading(i))
	}
	require.True(t, b.IsFull())
	assert.Equal(t, int64(0), b.Stats().OverflowCount)

	b.Put(reading(10))
	assert.Equal(t, 10, b.Size())
	assert.Equal(t, int64(1), b.Stats().OverflowCount)

	got := b.Get(1)
	assert.Equal(t, int64(1), got[0].Value.Integer)
}

// Overflow scenario: maxSize=1000 pre-filled 0..999, insert 500 more values
// 1000..1499. Final size=1000, overflowCount=500, first value=500, last
// value=1499.
func TestCircularBuffer_OverflowScenario(t *testing.T) {
	b := NewCircularBuffer(1000)
	for i := int64(0); i < 1000; i++ {
		b.Put(reading(i))
	}
	for i := int64(1000); i < 1500; i++ {
		b.Put(reading(i))
	}

	stats := b.Stats()
	assert.Equal(t, 1000, stats.Size)
	assert.Equal(t, int64(500), stats.OverflowCount)

	all := b.Peek(1000)
	require.Len(t, all, 1000)
	assert.Equal(t, int64(500), all[0].Value.Integer)
	assert.Equal(t, int64(1499), all[999].Value.Integer)
}

func TestCircularBuffer_UtilizationAndClear(t *testing.T) {
	b := NewCircularBuffer(4)
	b.Put(reading(1))
	b.Put(reading(2))
	assert.InDelta(t, 0.5, b.Utilization(), 0.0001)

	b.Clear()
	assert.True(t, b.IsEmpty())
	assert.Equal(t, int64(0), b.Stats().OverflowCount)
}

func TestCircularBuffer_SizeNeverExceedsMax(t *testing.T) {
	b := NewCircularBuffer(50)
	for i := int64(0); i < 500; i++ {
		b.Put(reading(i))
		assert.LessOrEqual(t, b.Size(), 50)
	}
}
