// Package session wires the watcher, debouncer, and reload orchestrator
// into one disposable unit managing a single target executable.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/binwatch/binwatch/internal/controller"
	"github.com/binwatch/binwatch/internal/copier"
	"github.com/binwatch/binwatch/internal/debounce"
	"github.com/binwatch/binwatch/internal/errors"
	"github.com/binwatch/binwatch/internal/events"
	"github.com/binwatch/binwatch/internal/id"
	"github.com/binwatch/binwatch/internal/metrics"
	"github.com/binwatch/binwatch/internal/plan"
	"github.com/binwatch/binwatch/internal/reload"
	"github.com/binwatch/binwatch/internal/retry"
	"github.com/binwatch/binwatch/internal/watcher"
)

// Options configure a session.
type Options struct {
	// TargetPath is the absolute path to the target executable.
	TargetPath string
	// Strategy selects how much of the build output is mirrored.
	Strategy plan.Strategy

	// DebounceWindow is the quiet period coalescing change bursts.
	// Defaults to debounce.DefaultWindow.
	DebounceWindow time.Duration
	// StopTimeout bounds the controller stop call.
	StopTimeout time.Duration
	// StopGrace is the additional wait after stop for the executable lock.
	StopGrace time.Duration
	// RetryAttempts and RetryInterval set the copy retry budget.
	// Defaults to retry.DefaultAttempts at retry.DefaultInterval.
	RetryAttempts uint64
	RetryInterval time.Duration

	// Metrics is optional instrumentation.
	Metrics *metrics.Metrics
}

// Session owns one reload pipeline for one target executable. It holds the
// cancellation signal, the watcher, and the caller-supplied controller
// handle for its lifetime; Close releases all of them.
type Session struct {
	logger *slog.Logger
	sid    string
	plan   *plan.Plan
	bus    *events.Bus
	ctrl   controller.Controller
	orch   *reload.Orchestrator
	deb    *debounce.Debouncer
	w      *watcher.Watcher // nil when watch setup failed; session is inert

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	cancelled bool
	seq       uint64
	setupErr  error // watch setup fault, reported once on first Subscribe

	wg          sync.WaitGroup
	closeOnce   sync.Once
	stopTimeout time.Duration
}

// New validates the configuration, computes the backup plan, and starts
// watching. Configuration faults surface synchronously; a watcher setup
// fault does not fail construction — it is reported once as an error event
// and the session stays inert until disposed.
func New(logger *slog.Logger, ctrl controller.Controller, opts Options) (*Session, error) {
	p, err := plan.Compute(opts.TargetPath, opts.Strategy)
	if err != nil {
		return nil, err
	}

	if opts.RetryAttempts == 0 {
		opts.RetryAttempts = retry.DefaultAttempts
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = retry.DefaultInterval
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Session{
		logger:      logger,
		sid:         id.MustGenerate("ses"),
		plan:        p,
		bus:         events.NewBus(logger),
		ctrl:        ctrl,
		ctx:         ctx,
		cancel:      cancel,
		stopTimeout: opts.StopTimeout,
	}
	if s.stopTimeout <= 0 {
		s.stopTimeout = reload.DefaultStopTimeout
	}

	s.orch = reload.New(reload.Deps{
		Logger:     logger,
		Bus:        s.bus,
		Controller: ctrl,
		Copier:     copier.New(logger),
		Plan:       p,
		Runner:     retry.New(logger, opts.RetryAttempts, opts.RetryInterval),
		SessionID:  s.sid,
		NextCycle:  s.nextCycle,
		Metrics:    opts.Metrics,
	}, reload.Options{
		StopTimeout: s.stopTimeout,
		StopGrace:   opts.StopGrace,
	})

	s.deb = debounce.New(opts.DebounceWindow, func() {
		s.orch.Trigger(s.ctx)
	})

	w, err := watcher.New(ctx, logger, p.WatchDir, p.WatchFile)
	switch {
	case err == nil:
		s.w = w
		s.wg.Add(1)
		go s.forward()

	case errors.Is(err, context.Canceled):
		// Disposed during setup: abort silently.

	default:
		// The session keeps running in a degraded, non-watching state.
		logger.Error("watcher setup failed, session is inert", "dir", p.WatchDir, "error", err)
		s.setupErr = errors.Wrap(err, errors.CodeWatch, "watcher setup")
	}

	logger.Info("session started",
		"session_id", s.sid,
		"watch_dir", p.WatchDir,
		"watch_file", p.WatchFile,
		"strategy", string(opts.Strategy))

	return s, nil
}

// forward feeds watcher notifications into the debouncer and watcher
// runtime errors into the event bus.
func (s *Session) forward() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return

		case _, ok := <-s.w.Changes():
			if !ok {
				return
			}
			s.deb.Trigger()

		case err, ok := <-s.w.Errors():
			if !ok {
				return
			}
			s.logger.Warn("watcher error", "error", err)
			s.bus.Publish(events.NewError(s.sid, 0, errors.Wrap(err, errors.CodeWatch, "watch runtime")))
		}
	}
}

// Subscribe registers a lifecycle event subscriber. A watcher setup fault,
// if any, is reported to the first subscriber.
func (s *Session) Subscribe() (string, <-chan events.Event) {
	subID, ch := s.bus.Subscribe()

	s.mu.Lock()
	setupErr := s.setupErr
	s.setupErr = nil
	s.mu.Unlock()

	if setupErr != nil {
		s.bus.Publish(events.NewError(s.sid, 0, setupErr))
	}

	return subID, ch
}

// Unsubscribe removes a subscriber.
func (s *Session) Unsubscribe(subID string) {
	s.bus.Unsubscribe(subID)
}

// Reload bypasses the debouncer and requests a reload cycle immediately.
func (s *Session) Reload() {
	s.orch.Trigger(s.ctx)
}

// ID returns the session identifier used to label lifecycle events.
func (s *Session) ID() string {
	return s.sid
}

// Plan returns the computed backup plan.
func (s *Session) Plan() *plan.Plan {
	return s.plan
}

// Cycles returns the number of reload cycles initiated so far.
func (s *Session) Cycles() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// Watching reports whether change detection is active.
func (s *Session) Watching() bool {
	return s.w != nil
}

// nextCycle hands out the next reload sequence number. Numbers are never
// reused; they label lifecycle notifications.
func (s *Session) nextCycle() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return s.seq
}

// Close disposes the session: cancels the signal, stops the target, and
// releases the watcher. Idempotent; no lifecycle events are emitted after
// Close returns.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.cancelled = true
		s.mu.Unlock()

		s.deb.Stop()
		s.cancel()

		if s.w != nil {
			if werr := s.w.Close(); werr != nil {
				err = werr
			}
			s.wg.Wait()
		}

		if s.ctrl.NeedsStop() {
			if serr := s.ctrl.Stop(context.Background(), s.stopTimeout); serr != nil && err == nil {
				err = serr
			}
		}

		s.bus.Close()
		s.logger.Info("session closed", "session_id", s.sid, "cycles", s.Cycles())
	})
	return err
}
