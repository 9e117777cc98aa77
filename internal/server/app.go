// Package server initializes and runs the storage gateway: database and
// migrations, object storage client, domain services and the HTTP endpoint,
// with graceful shutdown on OS signals.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dkarpov/filevault/internal/logging"
	"github.com/dkarpov/filevault/internal/mimex"
	"github.com/dkarpov/filevault/internal/server/config"
	"github.com/dkarpov/filevault/internal/server/httpapi"
	"github.com/dkarpov/filevault/internal/server/objstore"
	"github.com/dkarpov/filevault/internal/server/repositories/repomanager"
	"github.com/dkarpov/filevault/internal/server/services"
)

type App struct {
	config     *config.Config
	logger     logging.Logger
	db         *sql.DB
	httpServer *httpapi.Server
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	sl := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(sl)

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	store, err := objstore.NewClient(ctx, objstore.Options{
		Bucket:      cfg.S3Bucket,
		Region:      cfg.S3Region,
		Endpoint:    cfg.S3BaseEndpoint,
		AccessKey:   cfg.S3AccessKey,
		SecretKey:   cfg.S3SecretKey,
		CallTimeout: cfg.S3CallTimeout,
		MaxAttempts: uint64(cfg.S3MaxAttempts),
		BaseDelay:   cfg.S3RetryBaseDelay,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("object storage init error: %w", err)
	}

	quota, err := services.NewQuotaService(db, rm, cfg.MaxTotalSizeBytes, cfg.CacheTTL, logger)
	if err != nil {
		return nil, err
	}

	validator, err := mimex.NewValidator(cfg.AllowedContentTypes)
	if err != nil {
		return nil, err
	}

	fileService, err := services.NewFileService(db, rm, store, quota, validator,
		cfg.MaxFileSizeBytes, cfg.PresignExpiry, cfg.CacheTTL, logger)
	if err != nil {
		return nil, err
	}

	httpServer := httpapi.NewServer(cfg.EndpointAddrHTTP, fileService,
		[]byte(cfg.SecretKey), cfg.MaxFileSizeBytes, logger)

	return &App{config: cfg, logger: logger, db: db, httpServer: httpServer}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "starting app", "addr", app.config.EndpointAddrHTTP)

	app.initSignalHandler(cancelFunc)

	defer func() {
		if err := app.db.Close(); err != nil {
			app.logger.Error(ctx, "db close error", "error", err.Error())
		}
	}()

	return app.httpServer.Run(ctx)
}
