package oraclewriter

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scadalink/internal/model"
)

// fakeClock advances virtual time only on Sleep, so the writer's
// size/time-trigger loop and retry backoff are driven deterministically.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock { return &fakeClock{now: start} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
	t := time.NewTimer(time.Millisecond)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// fakeBuffer is a minimal in-memory stand-in for ringbuffer.CircularBuffer.
type fakeBuffer struct {
	mu    sync.Mutex
	items []model.BufferedReading
}

func (b *fakeBuffer) push(items ...model.BufferedReading) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = append(b.items, items...)
}

func (b *fakeBuffer) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

func (b *fakeBuffer) Get(n int) []model.BufferedReading {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n > len(b.items) {
		n = len(b.items)
	}
	out := append([]model.BufferedReading(nil), b.items[:n]...)
	b.items = b.items[n:]
	return out
}

// fakeCache is a minimal in-memory stand-in for tagcache.TagValueCache.
type fakeCache struct {
	mu    sync.Mutex
	value map[string]string
}

func newFakeCache() *fakeCache { return &fakeCache{value: make(map[string]string)} }

func (c *fakeCache) Get(plcCode, tagAddress string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.value[plcCode+":"+tagAddress]
	return v, ok
}

func (c *fakeCache) Set(plcCode, tagAddress, value string, ts time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value[plcCode+":"+tagAddress] = value
}

// fakeDB is an in-memory OracleDB that can be told to fail every call for
// a fixed number of attempts before succeeding, or to fail forever.
type fakeDB struct {
	mu sync.Mutex

	failAttempts int // number of InsertTagLogs/InsertOperations calls to fail before succeeding
	calls        int
	operations   []OperationRow
	tagLogs      []TagLogRow
}

func (d *fakeDB) InsertOperations(ctx context.Context, rows []OperationRow) ([]RowError, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.calls <= d.failAttempts {
		return nil, assertErr
	}
	d.operations = append(d.operations, rows...)
	return nil, nil
}

func (d *fakeDB) InsertTagLogs(ctx context.Context, rows []TagLogRow) ([]RowError, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.calls <= d.failAttempts {
		return nil, assertErr
	}
	d.tagLogs = append(d.tagLogs, rows...)
	return nil, nil
}

func (d *fakeDB) Close() error { return nil }

var assertErr = &oracleTestError{"simulated oracle failure"}

type oracleTestError struct{ msg string }

func (e *oracleTestError) Error() string { return e.msg }

func reading(category model.Category, logMode model.LogMode, tag string, v int64) model.BufferedReading {
	return model.BufferedReading{
		Timestamp:   time.Unix(0, 0),
		PLCCode:     "P1",
		TagAddress:  tag,
		Value:       model.Int(v),
		Quality:     model.QualityGood,
		Category:    category,
		LogMode:     logMode,
		MachineCode: "M1",
	}
}

func TestWriter_SizeTriggerFlushesFullBatchAndRoutesByCategory(t *testing.T) {
	buf := &fakeBuffer{}
	buf.push(
		reading(model.CategoryOperation, model.LogAlways, "D100", 1),
		reading(model.CategoryState, model.LogAlways, "D200", 2),
	)
	db := &fakeDB{}
	cache := newFakeCache()
	backup, err := NewCSVBackup(t.TempDir())
	require.NoError(t, err)
	metrics := NewRollingMetrics()
	clock := newFakeClock(time.Unix(0, 0))

	w := New(buf, db, cache, backup, metrics, clock, Config{BatchSize: 2, WriteInterval: time.Hour})

	ok := w.writeBatch(context.Background(), 2)
	assert.True(t, ok)
	assert.Len(t, db.operations, 1)
	assert.Len(t, db.tagLogs, 1)

	v, ok := cache.Get("P1", "D100")
	assert.True(t, ok)
	assert.Equal(t, "1", v)
}

func TestWriter_NeverModeSkipsInsertButStillUpdatesCache(t *testing.T) {
	buf := &fakeBuffer{}
	buf.push(reading(model.CategoryOperation, model.LogNever, "D100", 5))
	db := &fakeDB{}
	cache := newFakeCache()
	backup, err := NewCSVBackup(t.TempDir())
	require.NoError(t, err)
	w := New(buf, db, cache, backup, NewRollingMetrics(), newFakeClock(time.Unix(0, 0)), Config{})

	w.writeBatch(context.Background(), 1)
	assert.Empty(t, db.operations)
	v, cached := cache.Get("P1", "D100")
	assert.True(t, cached, "NEVER-mode tags are never written but are still cached after the commit")
	assert.Equal(t, "5", v)
}

func TestWriter_OnChangeSkipsUnchangedValue(t *testing.T) {
	buf := &fakeBuffer{}
	cache := newFakeCache()
	cache.Set("P1", "D100", "9", time.Unix(0, 0))
	buf.push(reading(model.CategoryState, model.LogOnChange, "D100", 9))
	db := &fakeDB{}
	backup, err := NewCSVBackup(t.TempDir())
	require.NoError(t, err)
	w := New(buf, db, cache, backup, NewRollingMetrics(), newFakeClock(time.Unix(0, 0)), Config{})

	w.writeBatch(context.Background(), 1)
	assert.Empty(t, db.tagLogs, "unchanged ON_CHANGE value must not reach Oracle")
}

func TestWriter_ExhaustedRetriesFailOverToCSV(t *testing.T) {
	buf := &fakeBuffer{}
	buf.push(reading(model.CategoryOperation, model.LogAlways, "D100", 1))
	db := &fakeDB{failAttempts: 10} // always fails
	cache := newFakeCache()
	dir := t.TempDir()
	backup, err := NewCSVBackup(dir)
	require.NoError(t, err)
	clock := newFakeClock(time.Unix(0, 0))
	w := New(buf, db, cache, backup, NewRollingMetrics(), clock, Config{})

	ok := w.writeBatch(context.Background(), 1)
	assert.False(t, ok)

	count, err := backup.BackupFileCount()
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, cached := cache.Get("P1", "D100")
	assert.False(t, cached, "cache must not update for a CSV-failed batch")
}

func TestWriter_SucceedsOnSecondAttempt(t *testing.T) {
	buf := &fakeBuffer{}
	buf.push(reading(model.CategoryOperation, model.LogAlways, "D100", 1))
	db := &fakeDB{failAttempts: 1}
	cache := newFakeCache()
	backup, err := NewCSVBackup(t.TempDir())
	require.NoError(t, err)
	w := New(buf, db, cache, backup, NewRollingMetrics(), newFakeClock(time.Unix(0, 0)), Config{})

	ok := w.writeBatch(context.Background(), 1)
	assert.True(t, ok)
	assert.Len(t, db.operations, 1)
}

func TestWriter_RunFlushesRemainingOnStop(t *testing.T) {
	buf := &fakeBuffer{}
	buf.push(reading(model.CategoryOperation, model.LogAlways, "D100", 1))
	db := &fakeDB{}
	cache := newFakeCache()
	backup, err := NewCSVBackup(t.TempDir())
	require.NoError(t, err)
	clock := newFakeClock(time.Unix(0, 0))
	w := New(buf, db, cache, backup, NewRollingMetrics(), clock, Config{WriteInterval: time.Hour, BatchSize: 500})

	w.Start(context.Background())
	require.True(t, w.Stop(2*time.Second))

	assert.Len(t, db.operations, 1)
	assert.Equal(t, 0, buf.Size())
}
