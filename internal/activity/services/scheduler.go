package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/jgirmay/slack-activity/internal/activity/timeslot"
)

// Rollup runs one compaction pass.
type Rollup interface {
	Run(ctx context.Context) (*RunReport, error)
}

// Resubscriber refreshes the presence subscription of the upstream source.
type Resubscriber interface {
	Resubscribe(ctx context.Context) error
}

// SchedulerConfig holds the cron specs of the background jobs.
type SchedulerConfig struct {
	// RollupSchedule is a standard cron spec or descriptor such as "@every 1h".
	RollupSchedule string

	// ResubscribeSchedule is evaluated in the reporting timezone.
	ResubscribeSchedule string

	// RunAtStart triggers one roll-up as soon as the scheduler starts.
	RunAtStart bool
}

// DefaultSchedulerConfig returns an hourly roll-up and a resubscribe at local
// midnight.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		RollupSchedule:      "@every 1h",
		ResubscribeSchedule: "0 0 * * *",
		RunAtStart:          true,
	}
}

// Scheduler drives the roll-up and the daily resubscribe. Runs of the same
// job never overlap.
type Scheduler struct {
	config      SchedulerConfig
	rollup      Rollup
	resub       Resubscriber
	log         *zap.Logger
	rollupSpec  cron.Schedule
	resubSpec   cron.Schedule
	stopTimeout time.Duration
}

// NewScheduler validates the schedules. resub may be nil.
func NewScheduler(config SchedulerConfig, rollup Rollup, resub Resubscriber, log *zap.Logger) (*Scheduler, error) {
	if log == nil {
		log = zap.NewNop()
	}

	rollupSpec, err := cron.ParseStandard(config.RollupSchedule)
	if err != nil {
		return nil, fmt.Errorf("invalid roll-up schedule %q: %w", config.RollupSchedule, err)
	}

	s := &Scheduler{
		config:      config,
		rollup:      rollup,
		resub:       resub,
		log:         log.Named("scheduler"),
		rollupSpec:  rollupSpec,
		stopTimeout: 30 * time.Second,
	}

	if resub != nil && config.ResubscribeSchedule != "" {
		s.resubSpec, err = cron.ParseStandard(config.ResubscribeSchedule)
		if err != nil {
			return nil, fmt.Errorf("invalid resubscribe schedule %q: %w", config.ResubscribeSchedule, err)
		}
	}

	return s, nil
}

// Run blocks until ctx is cancelled, then waits for running jobs to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	c := cron.New(
		cron.WithLocation(timeslot.Location()),
		cron.WithChain(cron.Recover(cronLogger{s.log})),
	)

	// Shared with the start-up run so it cannot overlap the first tick.
	rollupJob := cron.NewChain(cron.Recover(cronLogger{s.log}), cron.SkipIfStillRunning(cronLogger{s.log})).
		Then(cron.FuncJob(func() { s.RunRollup(ctx) }))
	c.Schedule(s.rollupSpec, rollupJob)

	if s.resubSpec != nil {
		resubJob := cron.NewChain(cron.SkipIfStillRunning(cronLogger{s.log})).
			Then(cron.FuncJob(func() { s.RunResubscribe(ctx) }))
		c.Schedule(s.resubSpec, resubJob)
	}

	var startup sync.WaitGroup
	if s.config.RunAtStart {
		startup.Add(1)
		go func() {
			defer startup.Done()
			rollupJob.Run()
		}()
	}

	c.Start()
	s.log.Info("scheduler started",
		zap.String("rollup_schedule", s.config.RollupSchedule),
		zap.String("resubscribe_schedule", s.config.ResubscribeSchedule))

	<-ctx.Done()

	stopped := c.Stop()
	startup.Wait()
	select {
	case <-stopped.Done():
	case <-time.After(s.stopTimeout):
		s.log.Warn("scheduler stop timed out", zap.Duration("timeout", s.stopTimeout))
	}
	s.log.Info("scheduler stopped")
	return nil
}

// RunRollup runs one roll-up. Errors are already logged by the compactor.
func (s *Scheduler) RunRollup(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	_, _ = s.rollup.Run(ctx)
}

func (s *Scheduler) RunResubscribe(ctx context.Context) {
	if s.resub == nil || ctx.Err() != nil {
		return
	}
	if err := s.resub.Resubscribe(ctx); err != nil {
		s.log.Error("resubscribe failed", zap.Error(err))
		return
	}
	s.log.Info("presence subscription refreshed")
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	log *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
