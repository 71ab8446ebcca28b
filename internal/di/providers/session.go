package providers

import (
	"github.com/samber/do/v2"

	"github.com/binwatch/binwatch/internal/config"
	"github.com/binwatch/binwatch/internal/controller"
	"github.com/binwatch/binwatch/internal/events"
	"github.com/binwatch/binwatch/internal/logger"
	"github.com/binwatch/binwatch/internal/metrics"
	"github.com/binwatch/binwatch/internal/plan"
	"github.com/binwatch/binwatch/internal/session"
)

// ProvideController provides the exec-based target process controller.
func ProvideController(i do.Injector) (controller.Controller, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	return controller.NewExecController(log.Logger, cfg.Target.Args...), nil
}

// SessionHandle wraps the reload session with shutdown capability.
type SessionHandle struct {
	*session.Session
	drainDone chan struct{}
}

// Shutdown implements do.Shutdownable.
func (h *SessionHandle) Shutdown() error {
	err := h.Session.Close()
	<-h.drainDone
	return err
}

// ProvideSession provides the reload session and drains its lifecycle
// events into the log.
func ProvideSession(i do.Injector) (*SessionHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	ctrl := do.MustInvoke[controller.Controller](i)
	meter := do.MustInvoke[*metrics.Metrics](i)

	s, err := session.New(log.Logger, ctrl, session.Options{
		TargetPath:     cfg.Target.Path,
		Strategy:       plan.Strategy(cfg.Target.Strategy),
		DebounceWindow: cfg.Reload.DebounceWindow,
		StopTimeout:    cfg.Reload.StopTimeout,
		StopGrace:      cfg.Reload.StopGrace,
		RetryAttempts:  cfg.Reload.RetryAttempts(),
		RetryInterval:  cfg.Reload.RetryInterval,
		Metrics:        meter,
	})
	if err != nil {
		return nil, err
	}

	_, ch := s.Subscribe()
	drainDone := make(chan struct{})

	go func() {
		defer close(drainDone)
		for ev := range ch {
			if ev.Type == events.TypeError {
				log.Error("reload fault", "cycle", ev.Cycle, "error", ev.Err)
				continue
			}
			log.Info("lifecycle", "event", string(ev.Type), "cycle", ev.Cycle)
		}
	}()

	log.Info("reload session ready",
		"target", cfg.Target.Path,
		"strategy", cfg.Target.Strategy,
		"command", s.Plan().Command)

	return &SessionHandle{Session: s, drainDone: drainDone}, nil
}
