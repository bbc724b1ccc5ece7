// Package app wires configuration, storage, the scrape gateway, and the HTTP
// server into a runnable service.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/tbakker/linkcrm/internal/api"
	"github.com/tbakker/linkcrm/internal/clock/system"
	"github.com/tbakker/linkcrm/internal/config"
	"github.com/tbakker/linkcrm/internal/crm"
	iduuid "github.com/tbakker/linkcrm/internal/id/uuid"
	"github.com/tbakker/linkcrm/internal/importer"
	"github.com/tbakker/linkcrm/internal/jobs"
	"github.com/tbakker/linkcrm/internal/logging"
	"github.com/tbakker/linkcrm/internal/poller"
	"github.com/tbakker/linkcrm/internal/scraper"
	"github.com/tbakker/linkcrm/internal/storage/memory"
	"github.com/tbakker/linkcrm/internal/storage/postgres"
)

// App holds the long-lived services of the CRM process.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	pool     *pgxpool.Pool
	jobStore crm.JobStore
	entities crm.EntityStore

	controller *jobs.Controller
	engine     *importer.Engine
	poller     *poller.Poller
	httpServer *http.Server
}

// New constructs the full service graph from configuration. An empty db.dsn
// selects in-memory stores, which do not survive restarts.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	a := &App{cfg: cfg, logger: logger}

	if cfg.DB.DSN != "" {
		pool, err := postgres.NewPool(ctx, postgres.PoolConfig{
			DSN:      cfg.DB.DSN,
			MaxConns: cfg.DB.MaxConns,
			MinConns: cfg.DB.MinConns,
		})
		if err != nil {
			return nil, err
		}
		a.pool = pool
		jobStore, err := postgres.NewJobStore(pool)
		if err != nil {
			return nil, err
		}
		entities, err := postgres.NewEntityStore(pool)
		if err != nil {
			return nil, err
		}
		a.jobStore = jobStore
		a.entities = entities
		logger.Info("using postgres storage")
	} else {
		a.jobStore = memory.NewJobStore()
		a.entities = memory.NewEntityStore()
		logger.Warn("db.dsn not set, using in-memory storage")
	}

	gateway := scraper.New(scraper.Config{
		BaseURL:        cfg.Scraper.BaseURL,
		APIKey:         cfg.Scraper.APIKey,
		DatasetProfile: cfg.Scraper.DatasetProfile,
		DatasetCompany: cfg.Scraper.DatasetCompany,
		Timeout:        cfg.Scraper.Timeout(),
		RequestsPerSec: cfg.Scraper.RequestsPerSec,
	}, logger)

	a.controller = jobs.New(gateway, a.jobStore, iduuid.Generator{}, system.Clock{}, jobs.Config{
		MaxPollAttempts: cfg.Scraper.MaxPollAttempts,
		PollInterval:    cfg.Scraper.PollInterval(),
	}, logger)

	a.engine = importer.New(a.entities, system.Clock{}, logger)

	// Completed scrapes flow straight into the CRM without an explicit
	// import call from the client.
	a.poller = poller.New(a.controller, poller.Config{
		Interval: cfg.Poller.Interval(),
	}, a.importCompleted, logger)

	server := api.NewServer(a.controller, a.poller, a.engine, a.entities, cfg, logger)
	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

func (a *App) importCompleted(e poller.Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	summary := importer.Summarize(a.engine.Import(ctx, e.Kind, e.Result))
	a.logger.Info("auto-imported completed job",
		zap.String("job_id", e.JobID),
		zap.String("type", string(e.Kind)),
		zap.String("summary", summary.String()),
	)
}

// Run starts the poller and HTTP server and blocks until ctx is cancelled or
// the server fails.
func (a *App) Run(ctx context.Context) error {
	a.poller.Start(ctx)

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", zap.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("http shutdown", zap.Error(err))
	}
	a.poller.Stop()
	return nil
}

// Close releases storage and flushes logs.
func (a *App) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
	_ = a.logger.Sync()
}
