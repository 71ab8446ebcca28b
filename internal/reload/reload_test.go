package reload

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
	"github.com/binwatch/binwatch/internal/copier"
	"github.com/binwatch/binwatch/internal/errors"
	"github.com/binwatch/binwatch/internal/events"
	"github.com/binwatch/binwatch/internal/plan"
	"github.com/binwatch/binwatch/internal/retry"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeController records stop/start calls.
type fakeController struct {
	mu          sync.Mutex
	needsStop   bool
	stopDelay   time.Duration
	startErr    error
	stopCalls   int
	startCalls  int
	lastCommand string
}

var _ controller.Controller = (*fakeController)(nil)

func (f *fakeController) NeedsStop() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.needsStop
}

func (f *fakeController) Stop(_ context.Context, _ time.Duration) error {
	f.mu.Lock()
	f.stopCalls++
	delay := f.stopDelay
	f.needsStop = false
	f.mu.Unlock()
	time.Sleep(delay)
	return nil
}

func (f *fakeController) Start(_ context.Context, command string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startCalls++
	f.lastCommand = command
	f.needsStop = true
	return f.startErr
}

type harness struct {
	orch *Orchestrator
	ch   <-chan events.Event
	ctrl *fakeController
	plan *plan.Plan
}

func newHarness(t *testing.T, ctrl *fakeController) *harness {
	t.Helper()
	log := testLogger()

	dir := t.TempDir()
	src := filepath.Join(dir, "server.exe")
	require.NoError(t, os.WriteFile(src, []byte("build output"), 0o755))

	p, err := plan.Compute(src, plan.StrategyCommandOnly)
	require.NoError(t, err)

	bus := events.NewBus(log)
	_, ch := bus.Subscribe()

	var seq uint64
	var seqMu sync.Mutex
	orch := New(Deps{
		Logger:     log,
		Bus:        bus,
		Controller: ctrl,
		Copier:     copier.New(log),
		Plan:       p,
		Runner:     retry.New(log, 3, time.Millisecond),
		SessionID:  "ses-test",
		NextCycle: func() uint64 {
			seqMu.Lock()
			defer seqMu.Unlock()
			seq++
			return seq
		},
	}, Options{StopTimeout: 100 * time.Millisecond, StopGrace: 5 * time.Millisecond})

	return &harness{orch: orch, ch: ch, ctrl: ctrl, plan: p}
}

// drain collects event types until the channel stays quiet.
func (h *harness) drain() []events.Type {
	var got []events.Type
	for {
		select {
		case ev := <-h.ch:
			got = append(got, ev.Type)
		case <-time.After(200 * time.Millisecond):
			return got
		}
	}
}

func TestTrigger_NoStopNeeded(t *testing.T) {
	h := newHarness(t, &fakeController{needsStop: false})

	h.orch.Trigger(context.Background())

	assert.Equal(t, []events.Type{
		events.TypeWillReload,
		events.TypeWillCopy,
		events.TypeDidCopy,
		events.TypeWillStartTarget,
		events.TypeDidStartTarget,
		events.TypeDidReload,
	}, h.drain())
	assert.Equal(t, 0, h.ctrl.stopCalls)
	assert.Equal(t, h.plan.Command, h.ctrl.lastCommand, "target starts from the backup copy")
}

func TestTrigger_StopNeeded(t *testing.T) {
	h := newHarness(t, &fakeController{needsStop: true})

	h.orch.Trigger(context.Background())

	assert.Equal(t, []events.Type{
		events.TypeWillReload,
		events.TypeWillStopTarget,
		events.TypeDidStopTarget,
		events.TypeWillCopy,
		events.TypeDidCopy,
		events.TypeWillStartTarget,
		events.TypeDidStartTarget,
		events.TypeDidReload,
	}, h.drain())
	assert.Equal(t, 1, h.ctrl.stopCalls)
	assert.Equal(t, 1, h.ctrl.startCalls)
}

func TestTrigger_CopyExhaustionAbortsCycle(t *testing.T) {
	h := newHarness(t, &fakeController{})
	// A directory plan whose source is a regular file fails every attempt.
	h.orch.plan = &plan.Plan{
		Kind:   plan.KindDirectory,
		Source: h.plan.Source,
		Dest:   h.plan.Dest + ".d",
	}

	h.orch.Trigger(context.Background())

	got := h.drain()
	require.Len(t, got, 3)
	assert.Equal(t, []events.Type{
		events.TypeWillReload,
		events.TypeWillCopy,
		events.TypeError,
	}, got)
	assert.Equal(t, 0, h.ctrl.startCalls, "start must not run after a copy failure")
}

func TestTrigger_ErrorEventCarriesCause(t *testing.T) {
	h := newHarness(t, &fakeController{startErr: assert.AnError})

	h.orch.Trigger(context.Background())

	var errEvent *events.Event
	for {
		select {
		case ev := <-h.ch:
			if ev.Type == events.TypeError {
				errEvent = &ev
			}
		case <-time.After(200 * time.Millisecond):
			require.NotNil(t, errEvent)
			assert.ErrorIs(t, errEvent.Err, assert.AnError)
			assert.True(t, errors.Is(errEvent.Err, errors.ErrController))
			return
		}
	}
}

func TestTrigger_CancelledContextIsSilent(t *testing.T) {
	h := newHarness(t, &fakeController{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h.orch.Trigger(ctx)

	assert.Empty(t, h.drain(), "a cancelled session emits nothing")
}

func TestTrigger_CoalescesOverlappingTriggers(t *testing.T) {
	ctrl := &fakeController{needsStop: true, stopDelay: 100 * time.Millisecond}
	h := newHarness(t, ctrl)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.orch.Trigger(context.Background())
	}()

	// Let the first cycle get in flight, then pile on triggers.
	time.Sleep(30 * time.Millisecond)
	h.orch.Trigger(context.Background())
	h.orch.Trigger(context.Background())
	h.orch.Trigger(context.Background())
	wg.Wait()

	got := h.drain()
	reloads := 0
	for _, typ := range got {
		if typ == events.TypeDidReload {
			reloads++
		}
	}
	assert.Equal(t, 2, reloads, "overlapping triggers coalesce into exactly one follow-up cycle")
}
