package watcher

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func waitForChange(t *testing.T, w *Watcher, want string) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case change := <-w.Changes():
			if change.Name == want {
				return
			}
		case <-deadline:
			t.Fatalf("timeout waiting for change of %q", want)
		}
	}
}

func TestNew_CreatesMissingWatchDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "not", "yet", "created")

	w, err := New(context.Background(), testLogger(), dir, "")
	require.NoError(t, err)
	defer w.Close()

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestNew_CancelledContextAbortsSetup(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(ctx, testLogger(), filepath.Join(t.TempDir(), "out"), "")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWatcher_ForwardsWrites(t *testing.T) {
	dir := t.TempDir()
	w, err := New(context.Background(), testLogger(), dir, "")
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "server.exe"), []byte("v1"), 0o755))
	waitForChange(t, w, "server.exe")
}

func TestWatcher_FiltersByBasename(t *testing.T) {
	dir := t.TempDir()
	w, err := New(context.Background(), testLogger(), dir, "server.exe")
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.txt"), []byte("noise"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "server.exe"), []byte("v1"), 0o755))

	// Only the matching basename may arrive.
	deadline := time.After(3 * time.Second)
	for {
		select {
		case change := <-w.Changes():
			require.Equal(t, "server.exe", change.Name, "filtered names must not pass")
			return
		case <-deadline:
			t.Fatal("timeout waiting for filtered change")
		}
	}
}

func TestWatcher_CloseIsIdempotent(t *testing.T) {
	w, err := New(context.Background(), testLogger(), t.TempDir(), "")
	require.NoError(t, err)

	require.NoError(t, w.Close())
	require.NotPanics(t, func() { _ = w.Close() })
}
