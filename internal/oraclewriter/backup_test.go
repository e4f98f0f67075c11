package oraclewriter

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scadalink/internal/model"
)

func sampleReadings(n int) []model.BufferedReading {
	out := make([]model.BufferedReading, n)
	for i := 0; i < n; i++ {
		out[i] = model.BufferedReading{
			Timestamp:  time.Unix(int64(i), 0),
			PLCCode:    "P1",
			TagAddress: "D100",
			Value:      model.Int(int64(i)),
			Quality:    model.QualityGood,
		}
	}
	return out
}

func TestCSVBackup_SaveFailedBatchWritesHeaderAndRows(t *testing.T) {
	dir := t.TempDir()
	b, err := NewCSVBackup(dir)
	require.NoError(t, err)

	now := time.Date(2026, 7, 31, 10, 30, 0, 0, time.UTC)
	path, err := b.SaveFailedBatch(now, sampleReadings(500))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "backup_20260731_103000_500.csv"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "timestamp,plcCode,tagAddress,value,quality")

	count, err := b.BackupFileCount()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestCSVBackup_CleanupOldBackupsByAgeAndCount(t *testing.T) {
	dir := t.TempDir()
	b, err := NewCSVBackup(dir)
	require.NoError(t, err)

	base := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	// Three old files (40 days back) and two recent ones. Cleanup keys off
	// the file's actual mtime (matching the Python original's
	// os.path.getmtime), so backdate it explicitly via os.Chtimes rather
	// than the in-CSV timestamp, which only affects the filename/rows.
	for i := 0; i < 3; i++ {
		ts := base.Add(-40 * 24 * time.Hour).Add(time.Duration(i) * time.Second)
		path, err := b.SaveFailedBatch(ts, sampleReadings(1))
		require.NoError(t, err)
		require.NoError(t, os.Chtimes(path, ts, ts))
	}
	for i := 0; i < 2; i++ {
		ts := base.Add(time.Duration(i) * time.Second)
		path, err := b.SaveFailedBatch(ts, sampleReadings(1))
		require.NoError(t, err)
		require.NoError(t, os.Chtimes(path, ts, ts))
	}

	removed, err := b.CleanupOldBackups(base, 30*24*time.Hour, 100)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	count, err := b.BackupFileCount()
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestCSVBackup_Stats(t *testing.T) {
	dir := t.TempDir()
	b, err := NewCSVBackup(dir)
	require.NoError(t, err)

	_, err = b.SaveFailedBatch(time.Unix(0, 0), sampleReadings(10))
	require.NoError(t, err)

	stats, err := b.Stats()
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalBackupsCreated)
	assert.Equal(t, int64(10), stats.TotalItemsBackedUp)
	assert.Equal(t, 1, stats.CurrentBackupFileCount)
	assert.Greater(t, stats.TotalBackupSizeBytes, int64(0))
}
