package app

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"lcrbench/internal/auth"
	"lcrbench/internal/cache"
	"lcrbench/internal/clients"
	"lcrbench/internal/config"
	httpserver "lcrbench/internal/http"
	"lcrbench/internal/http/handlers"
	"lcrbench/internal/http/middleware"
	"lcrbench/internal/instrument"
	"lcrbench/internal/repository"
	"lcrbench/internal/service"
	"lcrbench/internal/ws"
	"lcrbench/libs/db"
	libredis "lcrbench/libs/redis"

	goredis "github.com/redis/go-redis/v9"
)

// App wires the bench service dependencies.
type App struct {
	server *httpserver.Server
	hub    *ws.Hub
	db     *sql.DB
	redis  *goredis.Client
	logger *zap.Logger
}

// New constructs application components.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	sqlDB, err := db.NewPostgresDB(cfg.Database.DSN)
	if err != nil {
		return nil, err
	}

	// Redis is optional: without it the recent-results view is always
	// served straight from Postgres.
	var redisClient *goredis.Client
	var recentCache service.RecentCache
	if cfg.Redis.Addr != "" {
		redisClient, err = libredis.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password)
		if err != nil {
			logger.Warn("redis unavailable, recent-results cache disabled", zap.Error(err))
		} else {
			recentCache = cache.NewRecentStore(redisClient, cfg.Redis.TTL)
		}
	}

	sampleRepo := repository.NewSampleRepository(sqlDB)
	measurementRepo := repository.NewMeasurementRepository(sqlDB)
	operatorRepo := repository.NewOperatorRepository(sqlDB)

	tokens := auth.NewTokenService(cfg.Auth.Secret, cfg.Auth.TokenTTL)
	hasher := auth.NewBcryptHasher(0)
	authService := service.NewAuthService(operatorRepo, hasher, tokens, logger)

	hub := ws.NewHub(30*time.Second, logger)

	workspace := clients.NewWorkspaceClient(
		cfg.Workspace.BaseURL, cfg.Workspace.Token, cfg.Workspace.DatabaseID, logger)
	sheets := clients.NewSheetClient(
		cfg.Sheets.BaseURL, cfg.Sheets.SpreadsheetID, cfg.Sheets.Range, logger)

	benchService := service.NewBenchService(service.BenchServiceDeps{
		Open:      instrument.OpenSocket,
		Defaults:  cfg.Instrument,
		Version:   cfg.Version,
		Samples:   sampleRepo,
		Store:     measurementRepo,
		Recent:    recentCache,
		Workspace: workspace,
		Sheets:    sheets,
		Events:    hub,
		Logger:    logger,
	})

	routes := httpserver.Routes{
		Login:   handlers.NewLoginHandler(authService),
		Signup:  handlers.NewSignupHandler(authService),
		Run:     handlers.NewRunHandler(benchService, logger),
		Results: handlers.NewResultsHandler(benchService, logger),
		Export:  handlers.NewExportHandler(benchService, logger),
		Samples: handlers.NewSamplesHandler(benchService, logger),
		Events:  handlers.NewEventsHandler(hub, logger),
		Health:  handlers.NewHealthHandler(),
		Auth:    middleware.Auth(tokens),
	}

	router := httpserver.NewRouter(routes)
	server := httpserver.NewServer(cfg.HTTPAddress(), router, logger)

	return &App{
		server: server,
		hub:    hub,
		db:     sqlDB,
		redis:  redisClient,
		logger: logger,
	}, nil
}

// Run starts the event hub ping loop and serves HTTP until ctx is
// cancelled.
func (a *App) Run(ctx context.Context) error {
	go a.hub.Start(ctx)
	return a.server.Run(ctx)
}

// Close releases resources.
func (a *App) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close db", zap.Error(err))
		}
	}
}
