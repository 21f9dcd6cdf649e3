// Package pmdeck embeds the process supervisor: registry, runtime state, log
// retention, lifecycle engine and the HTTP and MCP surfaces on top of them.
package pmdeck

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/pmdeck/internal/config"
	"github.com/loykin/pmdeck/internal/env"
	"github.com/loykin/pmdeck/internal/facade"
	"github.com/loykin/pmdeck/internal/history"
	hfactory "github.com/loykin/pmdeck/internal/history/factory"
	"github.com/loykin/pmdeck/internal/logstore"
	"github.com/loykin/pmdeck/internal/metrics"
	"github.com/loykin/pmdeck/internal/registry"
	iapi "github.com/loykin/pmdeck/internal/server"
	"github.com/loykin/pmdeck/internal/state"
	"github.com/loykin/pmdeck/internal/store"
	sfactory "github.com/loykin/pmdeck/internal/store/factory"
	"github.com/loykin/pmdeck/internal/supervisor"
)

// Version is stamped at build time with -ldflags "-X github.com/loykin/pmdeck.Version=...".
var Version = "dev"

// Re-export the facade types for embedders.
type (
	Config          = config.Config
	Service         = facade.Service
	ProcessInfo     = facade.ProcessInfo
	ProcessConfig   = facade.ProcessConfig
	ProcessPatch    = facade.ProcessPatch
	OperationResult = facade.OperationResult
)

// Supervisor owns every component built from a Config.
type Supervisor struct {
	cfg      *config.Config
	st       store.Store
	logs     *logstore.Store
	hist     *history.Exporter
	eng      *supervisor.Engine
	svc      *facade.Service
	log      *slog.Logger
	reg      prometheus.Registerer
	gatherer prometheus.Gatherer
}

// Option customizes Open.
type Option func(*Supervisor)

// WithPrometheus registers the metrics collectors on r and serves them from g
// instead of the default registry.
func WithPrometheus(r prometheus.Registerer, g prometheus.Gatherer) Option {
	return func(s *Supervisor) { s.reg, s.gatherer = r, g }
}

// Open builds the store, registry and engine from cfg, restores the
// persisted processes and starts the autoStart ones. Autostart failures are
// logged; they leave the affected processes errored but do not fail Open.
func Open(ctx context.Context, cfg *config.Config, log *slog.Logger, opts ...Option) (*Supervisor, error) {
	if log == nil {
		log = slog.Default()
	}
	s := &Supervisor{cfg: cfg, log: log, reg: prometheus.DefaultRegisterer, gatherer: prometheus.DefaultGatherer}
	for _, o := range opts {
		o(s)
	}
	if cfg.Metrics.Enabled {
		if err := metrics.Register(s.reg); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}

	st, err := sfactory.New(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	s.st = st
	reg, err := registry.Open(ctx, st, registry.Options{UniqueNames: cfg.Registry.UniqueNames})
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("load registry: %w", err)
	}

	globals, err := cfg.GlobalEnv()
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("load env: %w", err)
	}
	e := env.New(cfg.UseOSEnv)
	e.SetGlobal(globals)

	if len(cfg.History.Sinks) > 0 {
		sinks := make([]history.Sink, 0, len(cfg.History.Sinks))
		for _, dsn := range cfg.History.Sinks {
			sink, err := hfactory.NewSinkFromDSN(ctx, dsn)
			if err != nil {
				for _, opened := range sinks {
					if c, ok := opened.(interface{ Close() error }); ok {
						_ = c.Close()
					}
				}
				_ = st.Close()
				return nil, fmt.Errorf("history sink %q: %w", dsn, err)
			}
			sinks = append(sinks, sink)
		}
		s.hist = history.NewExporter(log, cfg.History.Buffer, sinks...)
	}

	s.logs = logstore.New(cfg.Logs.Options())
	s.eng = supervisor.New(supervisor.Deps{
		Registry: reg,
		States:   state.NewTable(),
		Logs:     s.logs,
		Env:      e,
		Sampler:  metrics.NewSampler(),
		History:  s.hist,
		Logger:   log,
	}, cfg.Supervisor)
	s.svc = facade.New(s.eng, Version, log)

	if err := s.eng.Boot(ctx); err != nil {
		var bulk *supervisor.BulkError
		if !errors.As(err, &bulk) {
			_ = s.Close(ctx)
			return nil, err
		}
		log.Warn("autostart incomplete", "failed", len(bulk.Failures), "total", bulk.Total)
	}
	return s, nil
}

func (s *Supervisor) Service() *facade.Service { return s.svc }

// Handler returns the HTTP API, plus /metrics when metrics are enabled.
func (s *Supervisor) Handler() http.Handler {
	r := iapi.NewRouter(s.svc, s.cfg.Server.BasePath)
	if s.cfg.Metrics.Enabled {
		r.WithMetrics(metrics.HandlerFor(s.gatherer))
	}
	return r.Handler()
}

// Close stops every process, flushes history and releases the store.
func (s *Supervisor) Close(ctx context.Context) error {
	var out []error
	if s.eng != nil {
		out = append(out, s.eng.Shutdown(ctx))
	}
	if s.hist != nil {
		out = append(out, s.hist.Close(ctx))
	}
	if s.logs != nil {
		out = append(out, s.logs.Close())
	}
	if s.st != nil {
		out = append(out, s.st.Close())
	}
	return errors.Join(out...)
}
