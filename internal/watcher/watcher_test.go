package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func TestDriftWatcher_FiresOnDatabaseWrite(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "records.db")
	if err := os.WriteFile(dbPath, []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}

	var fired atomic.Int32
	w := NewDriftWatcher(dbPath, 50*time.Millisecond, func() { fired.Add(1) }, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := os.WriteFile(dbPath, []byte("xy"), 0600); err != nil {
		t.Fatal(err)
	}
	if !waitFor(t, 2*time.Second, func() bool { return fired.Load() >= 1 }) {
		t.Fatal("onChange not invoked after database write")
	}
}

func TestDriftWatcher_DebouncesBursts(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "records.db")
	if err := os.WriteFile(dbPath, []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}

	var fired atomic.Int32
	w := NewDriftWatcher(dbPath, 150*time.Millisecond, func() { fired.Add(1) }, zap.NewNop())
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	for i := 0; i < 5; i++ {
		if err := os.WriteFile(dbPath, []byte("burst"), 0600); err != nil {
			t.Fatal(err)
		}
		time.Sleep(20 * time.Millisecond)
	}
	if !waitFor(t, 2*time.Second, func() bool { return fired.Load() >= 1 }) {
		t.Fatal("onChange not invoked")
	}
	time.Sleep(300 * time.Millisecond)
	if got := fired.Load(); got != 1 {
		t.Errorf("onChange fired %d times for one burst, want 1", got)
	}
}

func TestDriftWatcher_IgnoresUnrelatedFiles(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "records.db")
	if err := os.WriteFile(dbPath, []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}

	var fired atomic.Int32
	w := NewDriftWatcher(dbPath, 50*time.Millisecond, func() { fired.Add(1) }, zap.NewNop())
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0600); err != nil {
		t.Fatal(err)
	}
	time.Sleep(200 * time.Millisecond)
	if got := fired.Load(); got != 0 {
		t.Errorf("onChange fired %d times for unrelated file", got)
	}

	// Sidecar files count as database changes.
	if err := os.WriteFile(dbPath+"-wal", []byte("w"), 0600); err != nil {
		t.Fatal(err)
	}
	if !waitFor(t, 2*time.Second, func() bool { return fired.Load() >= 1 }) {
		t.Error("onChange not invoked for sidecar write")
	}
}

func TestDriftCheck(t *testing.T) {
	var rebuilds atomic.Int32
	count := int64(3)
	size := 3

	check := DriftCheck(zap.NewNop(),
		func(context.Context) (int64, error) { return count, nil },
		func() int { return size },
		func(context.Context) (int, error) {
			rebuilds.Add(1)
			size = int(count)
			return size, nil
		},
	)

	check()
	if rebuilds.Load() != 0 {
		t.Error("matching counts must not rebuild")
	}

	count = 5
	check()
	if rebuilds.Load() != 1 {
		t.Errorf("rebuilds = %d, want 1", rebuilds.Load())
	}

	check()
	if rebuilds.Load() != 1 {
		t.Error("rebuild should have restored agreement")
	}
}
