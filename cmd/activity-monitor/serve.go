package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jgirmay/slack-activity/internal/activity/handlers"
	"github.com/jgirmay/slack-activity/internal/activity/services"
	"github.com/jgirmay/slack-activity/internal/common/health"
	"github.com/jgirmay/slack-activity/internal/common/middleware"
	"github.com/jgirmay/slack-activity/internal/presence"
	"github.com/jgirmay/slack-activity/pkg/config"
)

// Serve runs the API, the ops endpoints, the scheduler and the presence
// source until ctx is cancelled or one of them fails.
func (a *App) Serve(ctx context.Context) error {
	recorder := services.NewRecorder(a.registry.Events(), a.registry.Users(), a.clock, a.log, a.metrics)
	if _, err := recorder.LoadMembers(ctx); err != nil {
		return fmt.Errorf("load members: %w", err)
	}
	query := services.NewQueryService(a.registry.Stats(), a.registry.Users())

	source, resub, err := newPresenceSource(a.cfg.Presence, a.log)
	if err != nil {
		return err
	}

	scheduler, err := services.NewScheduler(services.SchedulerConfig{
		RollupSchedule:      a.cfg.Rollup.Schedule,
		ResubscribeSchedule: a.cfg.Rollup.ResubscribeSchedule,
		RunAtStart:          a.cfg.Rollup.RunAtStart,
	}, a.compactor, resub, a.log)
	if err != nil {
		return err
	}

	checker := health.NewHealthChecker(version, a.clock)
	checker.AddCheck("database", true, health.PingCheck(a.registry.Ping))
	checker.AddCheck("rollup", false, rollupCheck(a.compactor))
	checker.AddCheck("presence", false, func(context.Context) health.ComponentHealth {
		return health.ComponentHealth{Healthy: true, Details: map[string]interface{}{
			"source":  a.cfg.Presence.Source,
			"members": len(recorder.MemberIDs()),
		}}
	})

	api := &http.Server{
		Addr:         net.JoinHostPort(a.cfg.Server.Host, a.cfg.Server.Port),
		Handler:      a.apiRouter(query),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	ops := &http.Server{
		Addr:         ":" + a.cfg.Server.OpsPort,
		Handler:      health.NewRouter(checker, a.metrics.Handler()),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.listen(gctx, "api", api) })
	g.Go(func() error { return a.listen(gctx, "ops", ops) })
	g.Go(func() error { return scheduler.Run(gctx) })
	g.Go(func() error {
		if err := source.Run(gctx, recorder); err != nil {
			return fmt.Errorf("presence source: %w", err)
		}
		return nil
	})

	err = g.Wait()
	if err != nil {
		a.log.Error("shutting down", zap.Error(err))
		return err
	}
	a.log.Info("shutdown complete")
	return nil
}

func (a *App) apiRouter(query handlers.ActivityQuerier) *gin.Engine {
	if a.cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.ErrorHandler(a.log))
	router.Use(middleware.RequestLogger(a.log.Named("http"), a.metrics))
	router.Use(middleware.CORS())

	handlers.NewActivityHandler(query, a.cfg.Server.WebRoot).RegisterRoutes(router)
	return router
}

// listen serves srv until ctx ends, then shuts it down gracefully.
func (a *App) listen(ctx context.Context, name string, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		a.log.Info("listening", zap.String("server", name), zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("%s server: %w", name, err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	// Give requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("%s server shutdown: %w", name, err)
	}
	return nil
}

func newPresenceSource(cfg config.PresenceConfig, log *zap.Logger) (presence.Source, services.Resubscriber, error) {
	switch cfg.Source {
	case "slack":
		src := presence.NewSlackSource(cfg.SlackToken, log.Named("presence"))
		return src, src, nil
	case "kafka":
		src, err := presence.NewKafkaSource(presence.KafkaConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
			GroupID: cfg.KafkaGroupID,
		}, log.Named("presence"))
		if err != nil {
			return nil, nil, err
		}
		return src, nil, nil
	case "none", "":
		return presence.Nop{}, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown presence source %q", cfg.Source)
	}
}

func rollupCheck(c *services.Compactor) health.CheckFunc {
	return func(context.Context) health.ComponentHealth {
		report := c.LastReport()
		if report == nil {
			return health.ComponentHealth{Healthy: true, Details: map[string]string{"status": "pending"}}
		}
		return health.ComponentHealth{Healthy: report.Error == "", Details: report, Error: report.Error}
	}
}
