// Package reload drives one full reload cycle: stop the target process if
// needed, mirror the build output with retry, start the target again, and
// emit lifecycle events at each step.
package reload

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/binwatch/binwatch/internal/controller"
	"github.com/binwatch/binwatch/internal/copier"
	"github.com/binwatch/binwatch/internal/errors"
	"github.com/binwatch/binwatch/internal/events"
	"github.com/binwatch/binwatch/internal/metrics"
	"github.com/binwatch/binwatch/internal/plan"
	"github.com/binwatch/binwatch/internal/retry"
)

// Stop sequencing defaults. The controller's Stop returning does not
// guarantee the OS has finished releasing the executable's file lock, so a
// fixed grace period follows the stop call before copying begins.
const (
	DefaultStopTimeout = 2000 * time.Millisecond
	DefaultStopGrace   = 200 * time.Millisecond
)

// Deps are the collaborators one orchestrator drives.
type Deps struct {
	Logger     *slog.Logger
	Bus        *events.Bus
	Controller controller.Controller
	Copier     *copier.Copier
	Plan       *plan.Plan
	Runner     *retry.Runner

	// SessionID labels lifecycle events.
	SessionID string
	// NextCycle hands out reload sequence numbers; owned by the session.
	NextCycle func() uint64
	// Metrics is optional.
	Metrics *metrics.Metrics
}

// Options tune the stop sequencing.
type Options struct {
	StopTimeout time.Duration
	StopGrace   time.Duration
}

// Orchestrator runs reload cycles. Cycles are single-flight: a trigger
// arriving while a cycle is in progress is coalesced into exactly one
// follow-up cycle once the current one finishes.
type Orchestrator struct {
	logger *slog.Logger
	bus    *events.Bus
	ctrl   controller.Controller
	copier *copier.Copier
	plan   *plan.Plan
	runner *retry.Runner
	meter  *metrics.Metrics

	sessionID string
	nextCycle func() uint64

	stopTimeout time.Duration
	stopGrace   time.Duration

	inFlight atomic.Bool
	pending  atomic.Bool
}

// New creates an orchestrator.
func New(deps Deps, opts Options) *Orchestrator {
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = DefaultStopTimeout
	}
	if opts.StopGrace <= 0 {
		opts.StopGrace = DefaultStopGrace
	}

	return &Orchestrator{
		logger:      deps.Logger,
		bus:         deps.Bus,
		ctrl:        deps.Controller,
		copier:      deps.Copier,
		plan:        deps.Plan,
		runner:      deps.Runner,
		meter:       deps.Metrics,
		sessionID:   deps.SessionID,
		nextCycle:   deps.NextCycle,
		stopTimeout: opts.StopTimeout,
		stopGrace:   opts.StopGrace,
	}
}

// Trigger requests a reload cycle. If one is already running, exactly one
// follow-up cycle is queued; further triggers in the meantime coalesce
// into that same follow-up.
func (o *Orchestrator) Trigger(ctx context.Context) {
	if !o.inFlight.CompareAndSwap(false, true) {
		o.pending.Store(true)
		return
	}
	defer o.inFlight.Store(false)

	for {
		o.run(ctx)
		if ctx.Err() != nil {
			return
		}
		if !o.pending.CompareAndSwap(true, false) {
			return
		}
	}
}

// run executes one cycle of the state machine:
// Idle → StoppingTarget → Copying → StartingTarget → Reloaded | Failed.
func (o *Orchestrator) run(ctx context.Context) {
	// Disposal may have happened between trigger and execution.
	if ctx.Err() != nil {
		return
	}

	cycle := o.nextCycle()
	o.logger.Info("reload triggered", "cycle", cycle)
	if o.meter != nil {
		o.meter.ReloadsStarted.Inc()
	}

	o.publish(events.TypeWillReload, cycle)

	if o.ctrl.NeedsStop() {
		o.publish(events.TypeWillStopTarget, cycle)

		if err := o.ctrl.Stop(ctx, o.stopTimeout); err != nil {
			o.fail(ctx, cycle, errors.Wrap(err, errors.CodeController, "stop target"))
			return
		}

		// Conservative wait for the executable lock, not a poll loop.
		select {
		case <-time.After(o.stopGrace):
		case <-ctx.Done():
			return
		}

		o.publish(events.TypeDidStopTarget, cycle)
	}

	o.publish(events.TypeWillCopy, cycle)

	copyStart := time.Now()
	err := o.runner.Do(ctx, func() error {
		return o.copier.Copy(ctx, o.plan)
	})
	if err != nil {
		o.fail(ctx, cycle, errors.Wrap(err, errors.CodeCopy, "backup copy"))
		return
	}
	if o.meter != nil {
		o.meter.CopyDuration.Observe(time.Since(copyStart).Seconds())
	}

	o.publish(events.TypeDidCopy, cycle)

	o.publish(events.TypeWillStartTarget, cycle)

	if err := o.ctrl.Start(ctx, o.plan.Command); err != nil {
		o.fail(ctx, cycle, errors.Wrap(err, errors.CodeController, "start target"))
		return
	}

	o.publish(events.TypeDidStartTarget, cycle)
	o.publish(events.TypeDidReload, cycle)

	if o.meter != nil {
		o.meter.ReloadsCompleted.Inc()
	}
	o.logger.Info("reload complete", "cycle", cycle, "command", o.plan.Command)
}

func (o *Orchestrator) publish(t events.Type, cycle uint64) {
	o.bus.Publish(events.New(t, o.sessionID, cycle))
}

// fail reports a cycle fault, unless the fault is only the session being
// disposed mid-operation, which is swallowed.
func (o *Orchestrator) fail(ctx context.Context, cycle uint64, err *errors.Error) {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, errors.ErrCancelled) {
		o.logger.Debug("reload cycle abandoned on disposal", "cycle", cycle)
		return
	}

	if o.meter != nil {
		o.meter.ReloadFailures.Inc()
	}
	o.logger.Error("reload cycle failed", "cycle", cycle, "error", err)
	o.bus.Publish(events.NewError(o.sessionID, cycle, err))
}
