package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/jgirmay/slack-activity/internal/activity/folding"
	"github.com/jgirmay/slack-activity/internal/activity/repository"
	"github.com/jgirmay/slack-activity/internal/activity/services"
	"github.com/jgirmay/slack-activity/internal/common/database"
	"github.com/jgirmay/slack-activity/internal/metrics"
	"github.com/jgirmay/slack-activity/pkg/config"
	"github.com/jgirmay/slack-activity/pkg/logger"
)

// App holds the long-lived components shared by the commands.
type App struct {
	cfg       *config.Config
	log       *zap.Logger
	clock     clock.Clock
	registry  *repository.Registry
	metrics   *metrics.Metrics
	compactor *services.Compactor
}

func bootstrap() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	log, err := logger.New(cfg.Server.Env, cfg.Log.File)
	if err != nil {
		return nil, err
	}
	log.Info("configuration loaded", cfg.LogFields()...)

	if cfg.Database.Type == "sqlite" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := database.Open(cfg.Database.Type, cfg.Database.DSN, log)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		_ = database.Close(db)
		return nil, err
	}
	log.Info("database ready", zap.String("type", cfg.Database.Type))

	return newApp(cfg, log, repository.NewRegistry(db), clock.New()), nil
}

func newApp(cfg *config.Config, log *zap.Logger, reg *repository.Registry, clk clock.Clock) *App {
	m := metrics.New(nil)
	return &App{
		cfg:       cfg,
		log:       log,
		clock:     clk,
		registry:  reg,
		metrics:   m,
		compactor: services.NewCompactor(reg, folding.DefaultOptions(), clk, log, m),
	}
}

// Close releases the database and flushes the log.
func (a *App) Close() {
	if err := a.registry.Close(); err != nil {
		a.log.Error("failed to close database", zap.Error(err))
	}
	_ = a.log.Sync()
}
