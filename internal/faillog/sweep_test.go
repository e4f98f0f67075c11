package faillog

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkDayDir(t *testing.T, base, day string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(base, day), 0o755))
}

func TestSweeper_RemovesDirsOlderThanMaxAge(t *testing.T) {
	dir := t.TempDir()
	mkDayDir(t, dir, "20260101") // old
	mkDayDir(t, dir, "20260130") // recent
	mkDayDir(t, dir, "not-a-date")

	s := NewSweeper(dir, 14*24*time.Hour, time.Hour)
	s.WithClock(fixedClock{at: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)})

	removed, err := s.Sweep()
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = os.Stat(filepath.Join(dir, "20260101"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, "20260130"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "not-a-date"))
	assert.NoError(t, err, "non-date directories are left alone")
}

func TestSweeper_MissingBaseDirIsNotAnError(t *testing.T) {
	s := NewSweeper(filepath.Join(t.TempDir(), "does-not-exist"), time.Hour, time.Hour)
	removed, err := s.Sweep()
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}

func TestSweeper_RunSweepsOnceImmediatelyThenStopsOnCancel(t *testing.T) {
	dir := t.TempDir()
	mkDayDir(t, dir, "20260101")

	s := NewSweeper(dir, time.Hour, 5*time.Millisecond)
	s.WithClock(fixedClock{at: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(dir, "20260101"))
		return os.IsNotExist(err)
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}
