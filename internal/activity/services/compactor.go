package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jgirmay/slack-activity/internal/activity/folding"
	"github.com/jgirmay/slack-activity/internal/activity/models"
	"github.com/jgirmay/slack-activity/internal/activity/repository"
	apperrors "github.com/jgirmay/slack-activity/internal/common/errors"
	"github.com/jgirmay/slack-activity/internal/metrics"
)

// RunReport summarizes one roll-up run.
type RunReport struct {
	RunID         string        `json:"runId"`
	StartedAt     time.Time     `json:"startedAt"`
	Dates         []string      `json:"dates"`
	RowsWritten   int64         `json:"rowsWritten"`
	EventsDeleted int64         `json:"eventsDeleted"`
	Duration      time.Duration `json:"duration"`
	Error         string        `json:"error,omitempty"`
}

// Compactor folds raw events into stats rows, one (user, date) per
// transaction, and deletes the raw events of every date but the newest.
type Compactor struct {
	store   repository.Store
	folder  *folding.Folder
	clock   clock.Clock
	log     *zap.Logger
	metrics *metrics.Metrics

	mu   sync.RWMutex
	last *RunReport
}

func NewCompactor(store repository.Store, opts folding.Options, clk clock.Clock, log *zap.Logger, m *metrics.Metrics) *Compactor {
	if clk == nil {
		clk = clock.New()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Compactor{
		store:   store,
		folder:  folding.NewFolder(opts),
		clock:   clk,
		log:     log.Named("rollup"),
		metrics: m,
	}
}

// Run compacts every date that has raw events, oldest first. The first
// error rolls back its transaction and ends the run; rows committed before it
// stay, and the next run picks up from there.
func (c *Compactor) Run(ctx context.Context) (*RunReport, error) {
	report := &RunReport{
		RunID:     uuid.NewString(),
		StartedAt: c.clock.Now(),
	}
	log := c.log.With(zap.String("run_id", report.RunID))
	log.Debug("roll-up started")

	err := c.run(ctx, report, log)

	report.Duration = c.clock.Since(report.StartedAt)
	c.metrics.RollupFinished(report.Duration, report.RowsWritten, report.EventsDeleted, err)
	if err != nil {
		report.Error = err.Error()
		log.Error("roll-up aborted",
			zap.Error(err),
			zap.Int64("rows_written", report.RowsWritten),
			zap.Int64("events_deleted", report.EventsDeleted))
	} else {
		log.Info("roll-up finished",
			zap.Strings("dates", report.Dates),
			zap.Int64("rows_written", report.RowsWritten),
			zap.Int64("events_deleted", report.EventsDeleted),
			zap.Duration("duration", report.Duration))
	}

	c.mu.Lock()
	c.last = report
	c.mu.Unlock()

	return report, err
}

// LastReport returns the report of the most recent run, or nil.
func (c *Compactor) LastReport() *RunReport {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}

func (c *Compactor) run(ctx context.Context, report *RunReport, log *zap.Logger) error {
	now := report.StartedAt.Unix()

	dates, err := c.store.Events().ListDistinctDates(ctx)
	if err != nil {
		return err
	}

	for i, date := range dates {
		// The newest date may still be receiving events.
		live := i == len(dates)-1

		users, err := c.store.Events().ListDistinctUsers(ctx, date)
		if err != nil {
			return err
		}

		for _, userID := range users {
			if err := ctx.Err(); err != nil {
				return err
			}

			deleted, err := c.compactUserDate(ctx, userID, date, now, live)
			if err != nil {
				return fmt.Errorf("compact %s on %s: %w", userID, date, err)
			}
			report.RowsWritten++
			report.EventsDeleted += deleted
		}

		report.Dates = append(report.Dates, date)
		log.Debug("date compacted", zap.String("date", date), zap.Int("users", len(users)), zap.Bool("live", live))
	}

	return nil
}

func (c *Compactor) compactUserDate(ctx context.Context, userID, date string, now int64, live bool) (int64, error) {
	events, err := c.store.Events().ListEventsForUserDate(ctx, userID, date)
	if err != nil {
		return 0, err
	}

	day, err := c.folder.Fold(events, now)
	if err != nil {
		return 0, err
	}
	if day.Date != date {
		return 0, apperrors.Consistency("folded date differs from stored date", fmt.Sprintf("stored %s, folded %s", date, day.Date))
	}

	row := models.DailyActivityRow{UserID: userID, Date: date, Activity: day.Activity}

	var deleted int64
	err = c.store.Transaction(ctx, func(tx repository.Store) error {
		if _, err := tx.Stats().Delete(ctx, userID, date); err != nil {
			return err
		}

		inserted, err := tx.Stats().Insert(ctx, row)
		if err != nil {
			return err
		}
		if inserted != 1 {
			return apperrors.Consistency("stats insert", fmt.Sprintf("%d rows affected, want 1", inserted))
		}

		if live {
			return nil
		}

		deleted, err = tx.Events().DeleteEventsForUserDate(ctx, userID, date)
		if err != nil {
			return err
		}
		if deleted == 0 {
			return apperrors.Consistency("raw event delete", "no rows removed")
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}
