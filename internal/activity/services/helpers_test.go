package services

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jgirmay/slack-activity/internal/activity/models"
	"github.com/jgirmay/slack-activity/internal/activity/repository"
	"github.com/jgirmay/slack-activity/internal/activity/timeslot"
	"github.com/jgirmay/slack-activity/internal/common/database/dbtest"
	"github.com/jgirmay/slack-activity/internal/metrics"
)

// at returns the unix time of a local wall-clock moment on date.
func at(date, wall string) int64 {
	t, err := time.ParseInLocation("2006-01-02 15:04:05", date+" "+wall, timeslot.Location())
	if err != nil {
		panic(err)
	}
	return t.Unix()
}

type testEnv struct {
	reg     *repository.Registry
	clock   *clock.Mock
	promReg *prometheus.Registry
	metrics *metrics.Metrics
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	promReg := prometheus.NewRegistry()
	return &testEnv{
		reg:     repository.NewRegistry(dbtest.Open(t)),
		clock:   clock.NewMock(),
		promReg: promReg,
		metrics: metrics.New(promReg),
	}
}

func (e *testEnv) setNow(date, wall string) {
	e.clock.Set(time.Unix(at(date, wall), 0))
}

func (e *testEnv) appendEvent(t *testing.T, userID string, state models.PresenceState, ts int64) {
	t.Helper()
	if err := e.reg.Events().Append(context.Background(), userID, state, ts); err != nil {
		t.Fatalf("append: %v", err)
	}
}

func fullRow(userID, date string, fill int) models.DailyActivityRow {
	row := models.DailyActivityRow{UserID: userID, Date: date}
	for i := range row.Activity {
		row.Activity[i] = fill
	}
	return row
}

// faultyStore wraps a Store and injects failures into the repositories it
// hands out, including inside transactions.
type faultyStore struct {
	repository.Store
	deleteRemovesNothing bool
	insertAffectsNothing bool
}

func (s *faultyStore) Events() repository.RawEventRepository {
	return &faultyEvents{RawEventRepository: s.Store.Events(), owner: s}
}

func (s *faultyStore) Stats() repository.StatsRepository {
	return &faultyStats{StatsRepository: s.Store.Stats(), owner: s}
}

func (s *faultyStore) Transaction(ctx context.Context, fn func(tx repository.Store) error) error {
	return s.Store.Transaction(ctx, func(tx repository.Store) error {
		return fn(&faultyStore{
			Store:                tx,
			deleteRemovesNothing: s.deleteRemovesNothing,
			insertAffectsNothing: s.insertAffectsNothing,
		})
	})
}

type faultyEvents struct {
	repository.RawEventRepository
	owner *faultyStore
}

func (f *faultyEvents) DeleteEventsForUserDate(ctx context.Context, userID, date string) (int64, error) {
	if f.owner.deleteRemovesNothing {
		return 0, nil
	}
	return f.RawEventRepository.DeleteEventsForUserDate(ctx, userID, date)
}

type faultyStats struct {
	repository.StatsRepository
	owner *faultyStore
}

func (f *faultyStats) Insert(ctx context.Context, row models.DailyActivityRow) (int64, error) {
	if f.owner.insertAffectsNothing {
		return 0, nil
	}
	return f.StatsRepository.Insert(ctx, row)
}
