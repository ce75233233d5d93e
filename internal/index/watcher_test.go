package index

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func TestWatch_NewFileNotifies(t *testing.T) {
	root := t.TempDir()
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var notified atomic.Int64
	go Watch(ctx, root, logger, func() { notified.Add(1) })

	time.Sleep(100 * time.Millisecond)

	_ = os.WriteFile(filepath.Join(root, "new.md"), []byte("# New"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return notified.Load() >= 1
	}, "expected a staleness notification after a file was created")
}

func TestWatch_BurstCollapses(t *testing.T) {
	root := t.TempDir()
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var notified atomic.Int64
	go Watch(ctx, root, logger, func() { notified.Add(1) })

	time.Sleep(100 * time.Millisecond)

	// Rapid-fire writes inside the debounce window should settle into a
	// single notification.
	for i := range 5 {
		name := filepath.Join(root, "burst"+string(rune('a'+i))+".md")
		_ = os.WriteFile(name, []byte("x"), 0o644)
		time.Sleep(10 * time.Millisecond)
	}

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return notified.Load() >= 1
	}, "expected a notification after the burst settled")

	time.Sleep(500 * time.Millisecond)
	if n := notified.Load(); n > 2 {
		t.Errorf("burst of 5 writes produced %d notifications, want 1 or 2", n)
	}
}

func TestWatch_NewDirWatched(t *testing.T) {
	root := t.TempDir()
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var notified atomic.Int64
	go Watch(ctx, root, logger, func() { notified.Add(1) })

	time.Sleep(100 * time.Millisecond)

	subDir := filepath.Join(root, "subdir")
	_ = os.MkdirAll(subDir, 0o755)

	// Let the watcher register the new directory and the create burst settle.
	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return notified.Load() >= 1
	}, "expected a notification for the new directory")
	base := notified.Load()

	_ = os.WriteFile(filepath.Join(subDir, "deep.md"), []byte("# Deep"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return notified.Load() > base
	}, "file in new subdir did not trigger a notification")
}

func TestWatch_StopsOnCancel(t *testing.T) {
	root := t.TempDir()
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Watch(ctx, root, logger, nil) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch returned %v on cancel, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("Watch did not return after context cancellation")
	}
}
