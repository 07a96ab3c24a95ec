// Package indexer wires the tick engine, the metrics gauge updater and an
// HTTP server into the long-running service the run subcommand starts. A
// supervised loop restarts the tick cycle after restart_delay whenever it
// returns an error, alongside a periodic gauge updater running as its own
// goroutine.
package indexer

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/golembase/indexer/pkg/config"
	"github.com/golembase/indexer/pkg/indexererr"
	"github.com/golembase/indexer/pkg/log"
	"github.com/golembase/indexer/pkg/metrics"
	"github.com/golembase/indexer/pkg/repository"
	"github.com/golembase/indexer/pkg/tick"
	"github.com/golembase/indexer/pkg/types"
)

// Service bundles the tick engine with the ambient gauge-refresh and
// health/metrics HTTP surface the run subcommand needs.
type Service struct {
	repo      *repository.Repository
	engine    *tick.Engine
	collector *metrics.Collector
	cfg       config.Config
	logger    zerolog.Logger
}

// New returns a Service bound to repo.
func New(repo *repository.Repository, cfg config.Config) *Service {
	return &Service{
		repo:      repo,
		engine:    tick.New(repo),
		collector: metrics.NewCollector(repo),
		cfg:       cfg,
		logger:    log.WithComponent("indexer"),
	}
}

// Tick runs a single tick cycle directly, for the CLI's one-shot
// subcommand.
func (s *Service) Tick(ctx context.Context) error {
	return s.engine.Tick(ctx)
}

// ReindexEntity rebuilds a single entity's derived state from its history,
// for the CLI's reindex-entity subcommand.
func (s *Service) ReindexEntity(ctx context.Context, key types.EntityKey) error {
	return s.engine.ReindexEntity(ctx, key)
}

// Run starts the gauge-collector, serves the metrics/health HTTP endpoints
// and drives the supervised tick loop until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	metrics.RegisterComponent("database", true, "connected")
	metrics.UpdateComponent("tick", true, "starting")

	s.collector.Start()
	defer s.collector.Stop()

	srv := s.startHTTPServer()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info().Str("addr", s.cfg.MetricsAddr).Dur("tick_interval", s.cfg.TickInterval).Msg("indexer started")

	return s.superviseTicks(ctx)
}

// superviseTicks runs Tick on cfg.TickInterval, sleeping restart_delay
// before the next attempt whenever a cycle fails.
func (s *Service) superviseTicks(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.engine.Tick(ctx); err != nil {
				metrics.SupervisorRestartsTotal.Inc()
				metrics.UpdateComponent("tick", false, err.Error())
				s.logger.Error().Err(err).Dur("restart_delay", s.cfg.RestartDelay).Msg("tick cycle failed, backing off")

				if errors.Is(err, indexererr.ErrFatal) {
					return err
				}

				select {
				case <-ctx.Done():
					return nil
				case <-time.After(s.cfg.RestartDelay):
				}
				continue
			}
			metrics.UpdateComponent("tick", true, "ok")
		}
	}
}

func (s *Service) startHTTPServer() *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/health", metrics.HealthHandler())
	mux.Handle("/ready", metrics.ReadyHandler())
	mux.Handle("/live", metrics.LivenessHandler())

	srv := &http.Server{Addr: s.cfg.MetricsAddr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("metrics server stopped unexpectedly")
		}
	}()
	return srv
}
