package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"

	"github.com/osvaldoandrade/gradeq/internal/metrics"
	"github.com/osvaldoandrade/gradeq/internal/middleware"
	"github.com/osvaldoandrade/gradeq/internal/services"
	"github.com/osvaldoandrade/gradeq/internal/tracing"
	"github.com/osvaldoandrade/gradeq/pkg/config"
	"github.com/osvaldoandrade/gradeq/pkg/persistence"

	_ "github.com/osvaldoandrade/gradeq/pkg/persistence/memory"
	_ "github.com/osvaldoandrade/gradeq/pkg/persistence/redis"

	"github.com/gin-gonic/gin"
	goredis "github.com/go-redis/redis/v8"
)

type Application struct {
	Config *config.Config
	Engine *gin.Engine
	Store  persistence.Plugin
	Runs   services.RunService
	Logger *slog.Logger

	TracingShutdown func(context.Context) error
}

func NewApplication(cfg *config.Config) (*Application, error) {
	logger := NewLogger(cfg)
	slog.SetDefault(logger)

	shutdown, err := tracing.Setup(context.Background(), tracing.Config{
		Enabled:      cfg.TracingEnabled,
		ServiceName:  "gradeq",
		OTLPEndpoint: cfg.OTLPEndpoint,
		OTLPInsecure: cfg.OTLPInsecure,
		SampleRatio:  cfg.TraceSampleRatio,
	}, logger)
	if err != nil {
		logger.Warn("tracing setup failed, continuing without traces", "err", err)
	}

	store, err := newStore(cfg)
	if err != nil {
		return nil, err
	}
	if rp, ok := store.(interface{ Client() *goredis.Client }); ok {
		metrics.RegisterRedisCollector(rp.Client(), logger)
	}

	runs := services.NewRunService(store.Results(), logger)

	engine := gin.New()
	engine.Use(gin.Recovery(), middleware.RequestIDMiddleware(), middleware.LoggerMiddleware(logger))
	if cfg.TracingEnabled {
		engine.Use(middleware.TracingMiddleware("gradeq"))
	}

	return &Application{
		Config:          cfg,
		Engine:          engine,
		Store:           store,
		Runs:            runs,
		Logger:          logger,
		TracingShutdown: shutdown,
	}, nil
}

// NewLogger builds the process logger from config. Exposed so the CLI can
// share the exact handler setup.
func NewLogger(cfg *config.Config) *slog.Logger {
	level := new(slog.LevelVar)
	switch cfg.LogLevel {
	case "debug":
		level.Set(slog.LevelDebug)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	default:
		level.Set(slog.LevelInfo)
	}
	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	if cfg.LogFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	return slog.New(handler).With("service", "gradeq", "env", cfg.Env)
}

func newStore(cfg *config.Config) (persistence.Plugin, error) {
	pc := persistence.ProviderConfig{Type: cfg.ResultStore}
	if cfg.ResultStore == "redis" {
		raw, err := json.Marshal(map[string]string{"addr": cfg.RedisAddr, "password": cfg.RedisPassword})
		if err != nil {
			return nil, err
		}
		pc.Config = raw
	}
	return persistence.NewPersistence(pc)
}

func (a *Application) Close() error {
	if a.Store != nil {
		return a.Store.Close()
	}
	return nil
}
