// Package oraclewriter drains the shared CircularBuffer and batch-writes
// readings to the Oracle historian, applying per-tag change detection,
// category-based table routing, retry-then-CSV-failover, and rolling
// performance metrics.
package oraclewriter

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"scadalink/internal/logging"
	"scadalink/internal/model"
	"scadalink/internal/retry"
)

// Buffer is the subset of ringbuffer.CircularBuffer the writer consumes.
type Buffer interface {
	Get(n int) []model.BufferedReading
	Size() int
}

// Cache is the subset of tagcache.TagValueCache the writer consults for
// ON_CHANGE comparisons and updates after every successful commit.
type Cache interface {
	Get(plcCode, tagAddress string) (string, bool)
	Set(plcCode, tagAddress, value string, ts time.Time)
}

// Clock abstracts time.Now so the writer's size/time trigger loop and
// retry backoff are deterministically testable.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }
func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	return retry.RealSleeper{}.Sleep(ctx, d)
}

// oracleRetryDelays trims the named [1s, 2s, 4s] backoff to the two delays
// actually used: three total attempts (initial + 2 retries) at t=0, t≈1s,
// t≈3s, matching the batch-retry worked example. The third (4s) entry is
// never reached because the loop that models it only sleeps between
// attempts, not after the last one.
var oracleRetryDelays = retry.OracleBackoff[:2]

const (
	defaultBatchSize     = 500
	minBatchSize         = 100
	maxBatchSize         = 1000
	defaultWriteInterval = time.Second
)

// Config controls batching and retry behavior.
type Config struct {
	BatchSize     int
	WriteInterval time.Duration
}

func (c Config) normalized() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.BatchSize < minBatchSize || c.BatchSize > maxBatchSize {
		logging.Debug("ORACLE", "batch size %d outside recommended range [%d, %d]", c.BatchSize, minBatchSize, maxBatchSize)
	}
	if c.WriteInterval <= 0 {
		c.WriteInterval = defaultWriteInterval
	}
	return c
}

// Writer is the dedicated goroutine draining a Buffer and writing batches
// to Oracle.
type Writer struct {
	buffer Buffer
	db     OracleDB
	cache  Cache
	backup *CSVBackup
	metrics *RollingMetrics
	clock  Clock
	cfg    Config

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New constructs a Writer. clock may be nil to use the real wall clock.
func New(buffer Buffer, db OracleDB, cache Cache, backup *CSVBackup, metrics *RollingMetrics, clock Clock, cfg Config) *Writer {
	if clock == nil {
		clock = realClock{}
	}
	return &Writer{
		buffer:  buffer,
		db:      db,
		cache:   cache,
		backup:  backup,
		metrics: metrics,
		clock:   clock,
		cfg:     cfg.normalized(),
	}
}

// Start runs the writer loop in a background goroutine.
func (w *Writer) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.running = true
	go w.run(ctx)
}

// Stop signals the writer to flush remaining buffered data, close its
// database connection and exit, waiting up to timeout for it to do so.
func (w *Writer) Stop(timeout time.Duration) bool {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return true
	}
	cancel := w.cancel
	done := w.done
	w.mu.Unlock()

	cancel()
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-done:
		return true
	case <-t.C:
		logging.Debug("ORACLE", "writer did not stop within %s", timeout)
		return false
	}
}

func (w *Writer) run(ctx context.Context) {
	defer close(w.done)
	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	lastWrite := w.clock.Now()

	for {
		if ctx.Err() != nil {
			break
		}

		now := w.clock.Now()
		timeTrigger := now.Sub(lastWrite) >= w.cfg.WriteInterval
		size := w.buffer.Size()
		sizeTrigger := size >= w.cfg.BatchSize

		if timeTrigger || sizeTrigger {
			if size > 0 {
				n := size
				if n > w.cfg.BatchSize {
					n = w.cfg.BatchSize
				}
				w.writeBatch(ctx, n)
			}
			lastWrite = now
		}

		if err := w.clock.Sleep(ctx, 100*time.Millisecond); err != nil {
			break
		}
	}

	w.flushRemaining(context.Background())
	if w.db != nil {
		if err := w.db.Close(); err != nil {
			logging.Debug("ORACLE", "closing database: %v", err)
		}
	}
}

// flushRemaining drains the buffer fully during shutdown, subject to the
// batch size per iteration; it stops early if a batch write fails so a
// persistently broken historian cannot stall shutdown indefinitely.
func (w *Writer) flushRemaining(ctx context.Context) {
	remaining := w.buffer.Size()
	if remaining == 0 {
		return
	}
	logging.Debug("ORACLE", "flushing %d remaining items", remaining)
	for w.buffer.Size() > 0 {
		n := w.buffer.Size()
		if n > w.cfg.BatchSize {
			n = w.cfg.BatchSize
		}
		if !w.writeBatch(ctx, n) {
			logging.Debug("ORACLE", "flush stopped after a failed batch")
			break
		}
	}
}

// writeBatch pulls n items from the buffer and writes them, returning
// whether the write ultimately succeeded (after retries and, on exhaustion,
// a CSV backup).
func (w *Writer) writeBatch(ctx context.Context, n int) bool {
	start := w.clock.Now()
	items := w.buffer.Get(n)
	if len(items) == 0 {
		return false
	}

	err := retry.Do(ctx, sleeperFor(w.clock), oracleRetryDelays, isRetryableOracleError, func(attempt int) error {
		return w.writeToOracle(ctx, items)
	})

	latency := w.clock.Now().Sub(start)
	success := err == nil
	w.metrics.RecordBatchWrite(w.clock.Now(), len(items), latency, success)

	if success {
		logging.Debug("ORACLE", "batch write completed: %d items in %s", len(items), latency)
		return true
	}

	logging.Debug("ORACLE", "batch write failed after retries: %d items: %v", len(items), err)
	if w.backup != nil {
		if path, backupErr := w.backup.SaveFailedBatch(w.clock.Now(), items); backupErr != nil {
			logging.Debug("ORACLE", "failed to back up batch to CSV: %v", backupErr)
		} else {
			logging.Debug("ORACLE", "failed batch saved to %s", path)
		}
	}
	return false
}

// sleeperFor adapts a Clock to retry.Sleeper.
type clockSleeper struct{ clock Clock }

func (s clockSleeper) Sleep(ctx context.Context, d time.Duration) error { return s.clock.Sleep(ctx, d) }

func sleeperFor(c Clock) retry.Sleeper { return clockSleeper{clock: c} }

// isRetryableOracleError always allows retrying within the writer's own
// bounded attempt budget; the distinction the Python original draws between
// an Oracle-class error (retry) and an unexpected error (abort immediately)
// collapses here because the OracleDB interface only ever returns
// Oracle-class failures from InsertOperations/InsertTagLogs.
func isRetryableOracleError(err error) bool { return err != nil }

// writeToOracle routes each reading to its destination table, applying
// NEVER/ON_CHANGE filtering via cache, and updates the cache for every
// reading in the batch once the commit succeeds -- including readings that
// were filtered out of the insert set, so the cache always reflects the
// last observed value regardless of log mode.
func (w *Writer) writeToOracle(ctx context.Context, items []model.BufferedReading) error {
	var operationRows []OperationRow
	var tagLogRows []TagLogRow

	for _, item := range items {
		if item.LogMode == model.LogNever {
			continue
		}

		valueStr := item.Value.String()
		if item.LogMode == model.LogOnChange {
			last, ok := w.cache.Get(item.PLCCode, item.TagAddress)
			if ok && last == valueStr {
				continue
			}
		}

		machineCode := item.MachineCode
		if machineCode == "" {
			machineCode = "UNKNOWN"
		}

		switch item.Category {
		case model.CategoryOperation:
			name := fmt.Sprintf("%s.Operation.%s.%s", item.PLCCode, machineCode, item.TagAddress)
			operationRows = append(operationRows, OperationRow{Time: item.Timestamp, Name: name, Value: valueStr})
		default:
			label := "State"
			if item.Category == model.CategoryAlarm {
				label = "Alarm"
			}
			name := fmt.Sprintf("%s.%s.%s.%s", item.PLCCode, label, machineCode, item.TagAddress)
			numVal, hasNum := item.Value.Numeric()
			row := TagLogRow{
				CTime:    item.Timestamp,
				OTime:    item.Timestamp,
				Name:     name,
				Type:     "D",
				ValueStr: valueStr,
				ValueRaw: valueStr,
			}
			if hasNum {
				row.ValueNum = sql.NullFloat64{Float64: numVal, Valid: true}
			}
			tagLogRows = append(tagLogRows, row)
		}
	}

	if len(operationRows) > 0 {
		rowErrs, err := w.db.InsertOperations(ctx, operationRows)
		if err != nil {
			return err
		}
		if len(rowErrs) > 0 {
			logging.Debug("ORACLE", "operation insert: %d of %d rows failed", len(rowErrs), len(operationRows))
		}
	}
	if len(tagLogRows) > 0 {
		rowErrs, err := w.db.InsertTagLogs(ctx, tagLogRows)
		if err != nil {
			return err
		}
		if len(rowErrs) > 0 {
			logging.Debug("ORACLE", "tag-log insert: %d of %d rows failed", len(rowErrs), len(tagLogRows))
		}
	}

	now := w.clock.Now()
	for _, item := range items {
		w.cache.Set(item.PLCCode, item.TagAddress, item.Value.String(), now)
	}
	return nil
}

// Stats is a point-in-time summary of writer health.
type Stats struct {
	BufferSize int
	Metrics    Snapshot
}

// GetStats returns the current buffer occupancy and metrics snapshot.
func (w *Writer) GetStats() Stats {
	return Stats{
		BufferSize: w.buffer.Size(),
		Metrics:    w.metrics.Stats(w.clock.Now()),
	}
}
