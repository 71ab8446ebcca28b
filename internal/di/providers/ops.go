package providers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/do/v2"

	"github.com/binwatch/binwatch/internal/config"
	"github.com/binwatch/binwatch/internal/logger"
	"github.com/binwatch/binwatch/internal/metrics"
)

// OpsServerHandle wraps the metrics/health listener with shutdown capability.
type OpsServerHandle struct {
	server *http.Server
}

// Shutdown implements do.Shutdownable.
func (h *OpsServerHandle) Shutdown() error {
	if h.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return h.server.Shutdown(ctx)
}

// ProvideOpsServer provides the optional /metrics, /live, /ready listener.
func ProvideOpsServer(i do.Injector) (*OpsServerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	if !cfg.Ops.Enabled {
		return &OpsServerHandle{}, nil
	}

	log := do.MustInvoke[*logger.Logger](i)
	meter := do.MustInvoke[*metrics.Metrics](i)
	sess := do.MustInvoke[*SessionHandle](i)

	health := healthcheck.NewHandler()
	health.AddReadinessCheck("watching", func() error {
		if !sess.Watching() {
			return errors.New("change detection inactive")
		}
		return nil
	})

	r := chi.NewRouter()
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(meter.Registry(), promhttp.HandlerOpts{}))
	r.Get("/live", health.LiveEndpoint)
	r.Get("/ready", health.ReadyEndpoint)

	server := &http.Server{
		Addr:         cfg.Ops.Addr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("ops listener started", "addr", cfg.Ops.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("ops listener failed", "error", err)
		}
	}()

	return &OpsServerHandle{server: server}, nil
}
