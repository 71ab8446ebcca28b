package session

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/binwatch/binwatch/internal/controller"
	"github.com/binwatch/binwatch/internal/errors"
	"github.com/binwatch/binwatch/internal/events"
	"github.com/binwatch/binwatch/internal/plan"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type stubController struct {
	mu         sync.Mutex
	needsStop  bool
	stopCalls  int
	startCalls int
}

var _ controller.Controller = (*stubController)(nil)

func (f *stubController) NeedsStop() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.needsStop
}

func (f *stubController) Stop(context.Context, time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalls++
	f.needsStop = false
	return nil
}

func (f *stubController) Start(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startCalls++
	f.needsStop = true
	return nil
}

func newTestSession(t *testing.T, ctrl controller.Controller) (*Session, string) {
	t.Helper()
	dir := t.TempDir()
	target := filepath.Join(dir, "server.exe")
	require.NoError(t, os.WriteFile(target, []byte("v1"), 0o755))

	s, err := New(testLogger(), ctrl, Options{
		TargetPath:     target,
		Strategy:       plan.StrategyCommandOnly,
		DebounceWindow: 50 * time.Millisecond,
		StopTimeout:    100 * time.Millisecond,
		StopGrace:      5 * time.Millisecond,
		RetryAttempts:  3,
		RetryInterval:  time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, target
}

func collectUntil(ch <-chan events.Event, want events.Type, timeout time.Duration) []events.Type {
	var got []events.Type
	deadline := time.After(timeout)
	for {
		select {
		case ev := <-ch:
			got = append(got, ev.Type)
			if ev.Type == want {
				return got
			}
		case <-deadline:
			return got
		}
	}
}

func TestNew_InvalidConfigSurfacesSynchronously(t *testing.T) {
	_, err := New(testLogger(), &stubController{}, Options{
		TargetPath: "relative/server.exe",
		Strategy:   plan.StrategyCommandOnly,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrValidation))

	_, err = New(testLogger(), &stubController{}, Options{
		TargetPath: filepath.Join(t.TempDir(), "server.exe"),
		Strategy:   plan.Strategy("bogus"),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestSession_FileChangeDrivesReload(t *testing.T) {
	ctrl := &stubController{}
	s, target := newTestSession(t, ctrl)
	require.True(t, s.Watching())

	_, ch := s.Subscribe()

	require.NoError(t, os.WriteFile(target, []byte("v2"), 0o755))

	got := collectUntil(ch, events.TypeDidReload, 5*time.Second)
	require.NotEmpty(t, got)
	assert.Equal(t, events.TypeWillReload, got[0])
	assert.Equal(t, events.TypeDidReload, got[len(got)-1])
	assert.Equal(t, uint64(1), s.Cycles(), "a burst of write events collapses to one cycle")

	// The backup copy now exists and matches the build output.
	backup, err := os.ReadFile(s.Plan().Dest)
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), backup)
}

func TestSession_ManualReloadIncrementsSequence(t *testing.T) {
	ctrl := &stubController{}
	s, _ := newTestSession(t, ctrl)
	_, ch := s.Subscribe()

	s.Reload()
	collectUntil(ch, events.TypeDidReload, 2*time.Second)
	s.Reload()
	collectUntil(ch, events.TypeDidReload, 2*time.Second)

	assert.Equal(t, uint64(2), s.Cycles())
}

func TestSession_SecondReloadStopsRunningTarget(t *testing.T) {
	ctrl := &stubController{}
	s, _ := newTestSession(t, ctrl)
	_, ch := s.Subscribe()

	s.Reload()
	collectUntil(ch, events.TypeDidReload, 2*time.Second)
	s.Reload()
	got := collectUntil(ch, events.TypeDidReload, 2*time.Second)

	assert.Contains(t, got, events.TypeWillStopTarget)
	assert.Contains(t, got, events.TypeDidStopTarget)
	assert.Equal(t, 1, ctrl.stopCalls)
	assert.Equal(t, 2, ctrl.startCalls)
}

func TestClose_IsIdempotentAndSilent(t *testing.T) {
	ctrl := &stubController{}
	s, target := newTestSession(t, ctrl)
	_, ch := s.Subscribe()

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	// Changes after disposal emit nothing; the channel is closed.
	_ = os.WriteFile(target, []byte("v3"), 0o755)
	time.Sleep(150 * time.Millisecond)

	for {
		ev, open := <-ch
		if !open {
			return
		}
		assert.Fail(t, "unexpected event after close", "type %s", ev.Type)
	}
}

func TestClose_StopsRunningTarget(t *testing.T) {
	ctrl := &stubController{}
	s, _ := newTestSession(t, ctrl)
	_, ch := s.Subscribe()

	s.Reload()
	collectUntil(ch, events.TypeDidReload, 2*time.Second)
	require.True(t, ctrl.NeedsStop())

	require.NoError(t, s.Close())
	assert.False(t, ctrl.NeedsStop())
	assert.Equal(t, 1, ctrl.stopCalls)
}
