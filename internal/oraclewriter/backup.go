package oraclewriter

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"scadalink/internal/model"
)

// csvBackupHeader is written as the first row of every backup file.
var csvBackupHeader = []string{"timestamp", "plcCode", "tagAddress", "value", "quality"}

// CSVBackup writes a batch that exhausted its Oracle retry budget to a
// timestamped CSV file, so the readings are never silently lost, and
// prunes old backup files by age and by count.
type CSVBackup struct {
	mu  sync.Mutex
	dir string

	totalBackupsCreated int64
	totalItemsBackedUp  int64
}

// NewCSVBackup constructs a CSVBackup writing under dir, creating it if
// necessary.
func NewCSVBackup(dir string) (*CSVBackup, error) {
	if dir == "" {
		dir = "backup"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("oraclewriter: create backup dir: %w", err)
	}
	return &CSVBackup{dir: dir}, nil
}

// SaveFailedBatch writes items to backup_<YYYYMMDD_HHMMSS>_<count>.csv and
// returns the file's path.
func (c *CSVBackup) SaveFailedBatch(now time.Time, items []model.BufferedReading) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	name := fmt.Sprintf("backup_%s_%d.csv", now.Format("20060102_150405"), len(items))
	path := filepath.Join(c.dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("oraclewriter: create backup file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvBackupHeader); err != nil {
		return "", fmt.Errorf("oraclewriter: write backup header: %w", err)
	}
	for _, item := range items {
		row := []string{
			item.Timestamp.Format(time.RFC3339Nano),
			item.PLCCode,
			item.TagAddress,
			item.Value.String(),
			item.Quality.String(),
		}
		if err := w.Write(row); err != nil {
			return "", fmt.Errorf("oraclewriter: write backup row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("oraclewriter: flush backup file: %w", err)
	}

	c.totalBackupsCreated++
	c.totalItemsBackedUp += int64(len(items))
	return path, nil
}

// BackupFileCount returns the number of backup_*.csv files currently on
// disk.
func (c *CSVBackup) BackupFileCount() (int, error) {
	files, err := c.listFiles()
	if err != nil {
		return 0, err
	}
	return len(files), nil
}

type backupFile struct {
	path    string
	modTime time.Time
	size    int64
}

func (c *CSVBackup) listFiles() ([]backupFile, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("oraclewriter: list backup dir: %w", err)
	}
	out := make([]backupFile, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, backupFile{path: filepath.Join(c.dir, e.Name()), modTime: info.ModTime(), size: info.Size()})
	}
	// Newest first.
	sort.Slice(out, func(i, j int) bool { return out[i].modTime.After(out[j].modTime) })
	return out, nil
}

// TotalBackupSizeBytes sums the size of every backup file currently on
// disk.
func (c *CSVBackup) TotalBackupSizeBytes() (int64, error) {
	files, err := c.listFiles()
	if err != nil {
		return 0, err
	}
	var total int64
	for _, f := range files {
		total += f.size
	}
	return total, nil
}

// CleanupOldBackups removes backup files older than maxAge and, among what
// remains, any beyond maxCount (oldest first), matching the two independent
// retention rules on the Python original.
func (c *CSVBackup) CleanupOldBackups(now time.Time, maxAge time.Duration, maxCount int) (removed int, err error) {
	files, err := c.listFiles()
	if err != nil {
		return 0, err
	}

	cutoff := now.Add(-maxAge)
	kept := files[:0]
	for _, f := range files {
		if f.modTime.Before(cutoff) {
			if err := os.Remove(f.path); err == nil {
				removed++
			}
			continue
		}
		kept = append(kept, f)
	}

	if maxCount > 0 && len(kept) > maxCount {
		// kept is newest-first; drop the oldest excess.
		excess := kept[maxCount:]
		for _, f := range excess {
			if err := os.Remove(f.path); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}

// BackupStats is a point-in-time summary of backup activity, reported at
// the health endpoint alongside writer and buffer stats.
type BackupStats struct {
	BackupDir              string
	TotalBackupsCreated    int64
	TotalItemsBackedUp     int64
	CurrentBackupFileCount int
	TotalBackupSizeBytes   int64
}

// Stats returns a BackupStats snapshot.
func (c *CSVBackup) Stats() (BackupStats, error) {
	count, err := c.BackupFileCount()
	if err != nil {
		return BackupStats{}, err
	}
	size, err := c.TotalBackupSizeBytes()
	if err != nil {
		return BackupStats{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return BackupStats{
		BackupDir:              c.dir,
		TotalBackupsCreated:    c.totalBackupsCreated,
		TotalItemsBackedUp:     c.totalItemsBackedUp,
		CurrentBackupFileCount: count,
		TotalBackupSizeBytes:   size,
	}, nil
}
