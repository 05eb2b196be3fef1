package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.After(timeout)
	for {
		if cond() {
			return true
		}
		select {
		case <-deadline:
			return false
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestWatcher_FiresOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vocab.tsv")
	if err := os.WriteFile(path, []byte("arch\tArchaeology\n"), 0600); err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	fired := 0
	w := New(nil)
	w.debounce = 50 * time.Millisecond
	if err := w.WatchFile(path, func() {
		mu.Lock()
		fired++
		mu.Unlock()
	}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := os.WriteFile(path, []byte("arch\tArchaeology\nhist\tHistory\n"), 0600); err != nil {
		t.Fatal(err)
	}
	ok := waitFor(t, 3*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return fired >= 1
	})
	if !ok {
		t.Fatal("change callback never fired")
	}
}

func TestWatcher_FiresOnAtomicReplace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vocab.tsv")
	if err := os.WriteFile(path, []byte("arch\tArchaeology\n"), 0600); err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	fired := 0
	w := New(nil)
	w.debounce = 50 * time.Millisecond
	if err := w.WatchFile(path, func() {
		mu.Lock()
		fired++
		mu.Unlock()
	}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	// Editors commonly write a temp file and rename it over the original.
	tmp := filepath.Join(dir, "vocab.tsv.tmp")
	if err := os.WriteFile(tmp, []byte("geo\tGeography\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatal(err)
	}
	ok := waitFor(t, 3*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return fired >= 1
	})
	if !ok {
		t.Fatal("replace callback never fired")
	}
}

func TestWatcher_IgnoresUnregisteredFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vocab.tsv")
	if err := os.WriteFile(path, []byte("arch\tArchaeology\n"), 0600); err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	fired := 0
	w := New(nil)
	w.debounce = 50 * time.Millisecond
	if err := w.WatchFile(path, func() {
		mu.Lock()
		fired++
		mu.Unlock()
	}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	// A different file in the same directory must not trigger.
	other := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(other, []byte("unrelated"), 0600); err != nil {
		t.Fatal(err)
	}
	time.Sleep(300 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if fired != 0 {
		t.Errorf("unregistered file triggered %d callbacks", fired)
	}
}

func TestWatcher_RegisterAfterStart(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "late.tsv")
	if err := os.WriteFile(path, []byte("x\ty\n"), 0600); err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	fired := 0
	w := New(nil)
	w.debounce = 50 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := w.WatchFile(path, func() {
		mu.Lock()
		fired++
		mu.Unlock()
	}); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("x\tz\n"), 0600); err != nil {
		t.Fatal(err)
	}
	ok := waitFor(t, 3*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return fired >= 1
	})
	if !ok {
		t.Fatal("late-registered file never fired")
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	w := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	w.Stop()
	w.Stop()
}
