package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/clipsync/internal/history"
	"github.com/dmitrijs2005/clipsync/internal/logging"
	"github.com/dmitrijs2005/clipsync/internal/server/auth"
	"github.com/dmitrijs2005/clipsync/internal/server/blob"
	"github.com/dmitrijs2005/clipsync/internal/server/config"
	"github.com/dmitrijs2005/clipsync/internal/server/dispatch"
	"github.com/dmitrijs2005/clipsync/internal/server/session"
	"github.com/dmitrijs2005/clipsync/internal/server/storage"
)

// Version is stamped at build time.
var Version = "dev"

// App wires the relay together: storage, services, dispatcher, TCP server
// and the retention cleanup loop.
type App struct {
	config  *config.Config
	logger  logging.Logger
	store   *storage.Postgres
	engine  *history.Engine
	server  *Server
	cleanup time.Duration
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	store, err := storage.NewPostgres(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	engine := history.NewEngine(store.Entries(), cfg.MaxContentBytes)

	authService := auth.NewService(store.Users(), store.ApiKeys(),
		cfg.SecretKey, cfg.ResumeTokenValidityDuration, logger)

	var blobs dispatch.BlobStore
	if cfg.InlineContentLimit > 0 && cfg.S3AccessKey != "" {
		svc, err := blob.NewService(ctx, blob.Config{
			Region:       cfg.S3Region,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			Bucket:       cfg.S3Bucket,
			BaseEndpoint: cfg.S3BaseEndpoint,
		})
		if err != nil {
			return nil, fmt.Errorf("blob init error: %w", err)
		}
		blobs = svc
	}

	dispatcher := dispatch.New(engine, authService, session.NewRegistry(),
		blobs, cfg.InlineContentLimit, Version, logger)

	srv := NewServer(cfg.ListenAddr, dispatcher, logger, 0)

	return &App{
		config:  cfg,
		logger:  logger,
		store:   store,
		engine:  engine,
		server:  srv,
		cleanup: cfg.CleanupInterval,
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// runCleanupLoop deletes entries past the retention window on a fixed
// interval until ctx is cancelled.
func (app *App) runCleanupLoop(ctx context.Context) {
	if app.config.RetentionDays <= 0 || app.cleanup <= 0 {
		return
	}

	ticker := time.NewTicker(app.cleanup)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := app.engine.CleanupOlderThan(ctx, app.config.RetentionDays)
			if err != nil {
				app.logger.Error(ctx, "retention cleanup failed", "error", err)
				continue
			}
			if n > 0 {
				app.logger.Info(ctx, "retention cleanup done", "deleted", n)
			}
		}
	}
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.runCleanupLoop(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := app.server.Run(ctx); err != nil {
			app.logger.Error(ctx, err.Error())
			cancelFunc()
		}
	}()

	wg.Wait()

	if err := app.store.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err)
	}
}
