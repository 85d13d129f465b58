// Package api implements the dashboard HTTP server: the rendered
// conformance pages, the JSON API and the background report collector.
package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"

	"github.com/boa-dev/conformoor/pkg/api/collector"
	"github.com/boa-dev/conformoor/pkg/api/snapshotstore"
	"github.com/boa-dev/conformoor/pkg/api/storage"
	"github.com/boa-dev/conformoor/pkg/api/store"
	"github.com/boa-dev/conformoor/pkg/config"
	"github.com/boa-dev/conformoor/pkg/dashboard"
	"github.com/boa-dev/conformoor/pkg/fetch"
)

const (
	shutdownTimeout        = 10 * time.Second
	sessionCleanupInterval = 15 * time.Minute
)

// Server exposes the API HTTP server lifecycle.
type Server interface {
	Start(ctx context.Context) error
	Stop() error
}

// Compile-time interface check.
var _ Server = (*server)(nil)

type server struct {
	log        logrus.FieldLogger
	cfg        *config.Config
	store      store.Store
	snapStore  snapshotstore.Store
	archive    storage.Store
	collector  collector.Collector
	state      *dashboard.State
	httpServer *http.Server
	wg         sync.WaitGroup
	done       chan struct{}
}

// NewServer creates a new API server.
func NewServer(log logrus.FieldLogger, cfg *config.Config) Server {
	return &server{
		log:   log.WithField("component", "api"),
		cfg:   cfg,
		state: dashboard.NewState(),
		done:  make(chan struct{}),
	}
}

// Start initializes the stores, seeds config data, starts the HTTP
// server and finally launches the background collector.
func (s *server) Start(ctx context.Context) error {
	api := s.cfg.API

	// Create and start the database store.
	s.store = store.NewStore(s.log, &api.Database)
	if err := s.store.Start(ctx); err != nil {
		return fmt.Errorf("starting store: %w", err)
	}

	// Seed users from config.
	if api.Auth.Basic.Enabled {
		if err := s.store.SeedUsers(ctx, api.Auth.Basic.Users); err != nil {
			return fmt.Errorf("seeding users: %w", err)
		}
	}

	// Create and start the snapshot store.
	s.snapStore = snapshotstore.NewStore(s.log, &api.Database)
	if err := s.snapStore.Start(ctx); err != nil {
		return fmt.Errorf("starting snapshot store: %w", err)
	}

	// Initialize the report archive backend if configured.
	switch {
	case api.Storage.S3 != nil && api.Storage.S3.Enabled:
		s.archive = storage.NewS3Store(api.Storage.S3)

		s.log.Info("S3 report archive enabled")
	case api.Storage.Local != nil && api.Storage.Local.Enabled:
		s.archive = storage.NewLocalStore(api.Storage.Local)

		s.log.Info("Local report archive enabled")
	}

	// Prepare the collector before building the router so the admin
	// trigger endpoint is wired, but do NOT start it yet — the HTTP
	// server must be listening first.
	if api.Collector == nil || api.Collector.Enabled {
		if err := s.prepareCollector(); err != nil {
			return fmt.Errorf("preparing collector: %w", err)
		}
	}

	// Build router and start HTTP server.
	router := s.buildRouter()

	s.httpServer = &http.Server{
		Addr:              api.Server.Listen,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start session cleanup goroutine.
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(sessionCleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := s.store.DeleteExpiredSessions(ctx); err != nil {
					s.log.WithError(err).
						Warn("Failed to clean expired sessions")
				}
			case <-s.done:
				return
			}
		}
	}()

	// Bind the listener synchronously so we fail fast on port conflicts.
	ln, err := net.Listen("tcp", api.Server.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", api.Server.Listen, err)
	}

	// Start HTTP server.
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		s.log.WithField("listen", api.Server.Listen).
			Info("API server starting")

		if err := s.httpServer.Serve(ln); err != nil &&
			err != http.ErrServerClosed {
			s.log.WithError(err).Error("HTTP server error")
		}
	}()

	// Start the collector AFTER the API is listening so the server is
	// reachable while the first (potentially slow) pass runs.
	if s.collector != nil {
		if err := s.collector.Start(ctx); err != nil {
			return fmt.Errorf("starting collector: %w", err)
		}
	}

	return nil
}

// Stop gracefully shuts down the HTTP server and closes the stores.
func (s *server) Stop() error {
	close(s.done)

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(
			context.Background(), shutdownTimeout,
		)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.log.WithError(err).Warn("HTTP server shutdown error")
		}
	}

	s.wg.Wait()

	if s.collector != nil {
		if err := s.collector.Stop(); err != nil {
			s.log.WithError(err).Warn("Collector stop error")
		}
	}

	if s.snapStore != nil {
		if err := s.snapStore.Stop(); err != nil {
			s.log.WithError(err).Warn("Snapshot store stop error")
		}
	}

	if s.store != nil {
		if err := s.store.Stop(); err != nil {
			return fmt.Errorf("stopping store: %w", err)
		}
	}

	s.log.Info("API server stopped")

	return nil
}

const defaultCollectorInterval = 15 * time.Minute

// prepareCollector creates the fetch client and the collector without
// starting the background goroutine. Call collector.Start() separately
// after the HTTP server is listening.
func (s *server) prepareCollector() error {
	// The long-running service retries transient upstream failures; the
	// next tick picks up whatever still failed.
	retry := retryablehttp.NewClient()
	retry.Logger = nil
	retry.RetryMax = 3

	client := fetch.NewClient(
		s.log, &s.cfg.Reports,
		fetch.WithHTTPClient(retry.StandardClient()),
	)

	interval := defaultCollectorInterval
	concurrency := 0

	if c := s.cfg.API.Collector; c != nil {
		if c.Interval != "" {
			d, err := time.ParseDuration(c.Interval)
			if err != nil {
				return fmt.Errorf("parsing collector interval: %w", err)
			}

			interval = d
		}

		concurrency = c.Concurrency
	}

	s.collector = collector.NewCollector(
		s.log, client, s.snapStore, s.archive, s.state,
		s.cfg.Reports.Refs(), interval, concurrency,
	)

	s.log.Info("Collection service enabled")

	return nil
}
