package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/jgirmay/slack-activity/internal/activity/folding"
	"github.com/jgirmay/slack-activity/internal/activity/models"
	"github.com/jgirmay/slack-activity/internal/activity/repository"
	"github.com/jgirmay/slack-activity/internal/activity/timeslot"
	apperrors "github.com/jgirmay/slack-activity/internal/common/errors"
)

const (
	day1 = "2024-03-01"
	day2 = "2024-03-02"
)

func newCompactor(t *testing.T, env *testEnv, store repository.Store) *Compactor {
	return NewCompactor(store, folding.DefaultOptions(), env.clock, zaptest.NewLogger(t), env.metrics)
}

func TestCompactorKeepsRawEventsOfLiveDate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.appendEvent(t, "U1", models.PresenceActive, at(day1, "09:00:00"))
	env.appendEvent(t, "U1", models.PresenceAway, at(day1, "18:00:00"))
	env.appendEvent(t, "U2", models.PresenceActive, at(day1, "10:00:00"))
	env.appendEvent(t, "U1", models.PresenceActive, at(day2, "09:00:00"))
	env.setNow(day2, "12:00:00")

	report, err := newCompactor(t, env, env.reg).Run(ctx)
	require.NoError(t, err)

	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, []string{day1, day2}, report.Dates)
	assert.Equal(t, int64(3), report.RowsWritten)
	assert.Equal(t, int64(3), report.EventsDeleted)

	dates, err := env.reg.Events().ListDistinctDates(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{day2}, dates, "only the newest date keeps raw events")

	rows, err := env.reg.Stats().ListAllRange(ctx, day1, day2)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	u1d1 := rows[0]
	assert.Equal(t, "U1", u1d1.UserID)
	assert.Equal(t, day1, u1d1.Date)
	assert.Equal(t, 0, u1d1.Activity[107])
	assert.Equal(t, 1, u1d1.Activity[108])
	assert.Equal(t, 1, u1d1.Activity[215])
	assert.Equal(t, 0, u1d1.Activity[216])

	u1d2 := rows[1]
	assert.Equal(t, day2, u1d2.Date)
	assert.Equal(t, 1, u1d2.Activity[144], "current slot")
	assert.Equal(t, 0, u1d2.Activity[145], "future slot")
}

func TestCompactorIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.appendEvent(t, "U1", models.PresenceActive, at(day1, "09:00:00"))
	env.appendEvent(t, "U1", models.PresenceUnknown, at(day2, "09:00:00"))
	env.setNow(day2, "23:00:00")
	compactor := newCompactor(t, env, env.reg)

	_, err := compactor.Run(ctx)
	require.NoError(t, err)
	first, err := env.reg.Stats().ListAllRange(ctx, day1, day2)
	require.NoError(t, err)

	report, err := compactor.Run(ctx)
	require.NoError(t, err)
	second, err := env.reg.Stats().ListAllRange(ctx, day1, day2)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, []string{day2}, report.Dates)
	assert.Equal(t, int64(1), report.RowsWritten)
	assert.Equal(t, int64(0), report.EventsDeleted)
}

func TestCompactorRefreshesLiveRowAsDayProgresses(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	compactor := newCompactor(t, env, env.reg)

	env.appendEvent(t, "U1", models.PresenceActive, at(day1, "09:00:00"))
	env.setNow(day1, "10:00:00")
	_, err := compactor.Run(ctx)
	require.NoError(t, err)

	env.appendEvent(t, "U1", models.PresenceAway, at(day1, "11:00:00"))
	env.setNow(day1, "12:00:00")
	_, err = compactor.Run(ctx)
	require.NoError(t, err)

	rows, err := env.reg.Stats().ListRange(ctx, "U1", day1, day1)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0].Activity[131])
	assert.Equal(t, 0, rows[0].Activity[132])
	assert.Equal(t, 0, rows[0].Activity[144])
}

func TestCompactorWithNoEvents(t *testing.T) {
	env := newTestEnv(t)

	report, err := newCompactor(t, env, env.reg).Run(context.Background())

	require.NoError(t, err)
	assert.Empty(t, report.Dates)
	assert.Zero(t, report.RowsWritten)
}

func TestCompactorAbortsRunOnFoldError(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// A zero timestamp lands on 1970-01-01, the oldest date, and cannot be folded.
	env.appendEvent(t, "U1", models.PresenceActive, 0)
	env.appendEvent(t, "U1", models.PresenceActive, at(day1, "09:00:00"))
	env.appendEvent(t, "U1", models.PresenceActive, at(day2, "09:00:00"))
	env.setNow(day2, "12:00:00")
	compactor := newCompactor(t, env, env.reg)

	report, err := compactor.Run(ctx)

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
	assert.Zero(t, report.RowsWritten)
	assert.NotEmpty(t, report.Error)
	assert.Same(t, report, compactor.LastReport())

	rows, err := env.reg.Stats().ListAllRange(ctx, "1970-01-01", day2)
	require.NoError(t, err)
	assert.Empty(t, rows, "later dates are not compacted after a failure")

	dates, err := env.reg.Events().ListDistinctDates(ctx)
	require.NoError(t, err)
	assert.Len(t, dates, 3)

	expected := `
# HELP activity_rollup_runs_total Roll-up runs by result.
# TYPE activity_rollup_runs_total counter
activity_rollup_runs_total{result="failure"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(env.promReg, strings.NewReader(expected), "activity_rollup_runs_total"))
}

func TestCompactorRollsBackWhenRawDeleteRemovesNothing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.appendEvent(t, "U1", models.PresenceActive, at(day1, "09:00:00"))
	env.appendEvent(t, "U1", models.PresenceActive, at(day2, "09:00:00"))
	env.setNow(day2, "12:00:00")
	store := &faultyStore{Store: env.reg, deleteRemovesNothing: true}

	_, err := newCompactor(t, env, store).Run(ctx)

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrConsistency))

	rows, err := env.reg.Stats().ListAllRange(ctx, day1, day2)
	require.NoError(t, err)
	assert.Empty(t, rows, "the stats row of the failed transaction is rolled back")
}

func TestCompactorRollsBackWhenInsertAffectsNoRow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.reg.Stats().Insert(ctx, fullRow("U1", day1, 1))
	require.NoError(t, err)
	env.appendEvent(t, "U1", models.PresenceAway, at(day1, "09:00:00"))
	env.appendEvent(t, "U1", models.PresenceAway, at(day2, "09:00:00"))
	env.setNow(day2, "12:00:00")
	store := &faultyStore{Store: env.reg, insertAffectsNothing: true}

	_, err = newCompactor(t, env, store).Run(ctx)

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrConsistency))

	rows, err := env.reg.Stats().ListRange(ctx, "U1", day1, day1)
	require.NoError(t, err)
	require.Len(t, rows, 1, "the delete of the old row is rolled back too")
	assert.Equal(t, fullRow("U1", day1, 1), rows[0])

	events, err := env.reg.Events().ListEventsForUserDate(ctx, "U1", day1)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestCompactorRejectsEventsStoredUnderWrongDate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	bad := models.RawActivityEvent{Timestamp: at(day2, "09:00:00"), UserID: "U1", UserPresence: models.PresenceActive, Date: day1}
	require.NoError(t, env.reg.GetDB().Create(&bad).Error)
	env.appendEvent(t, "U1", models.PresenceActive, at(day2, "10:00:00"))
	env.setNow(day2, "12:00:00")

	_, err := newCompactor(t, env, env.reg).Run(ctx)

	assert.True(t, errors.Is(err, apperrors.ErrConsistency))
}

func TestCompactorStopsOnCancelledContext(t *testing.T) {
	env := newTestEnv(t)
	env.appendEvent(t, "U1", models.PresenceActive, at(day1, "09:00:00"))
	env.setNow(day2, "12:00:00")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newCompactor(t, env, env.reg).Run(ctx)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestCompactorRowsStayWithinDomain(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	states := []models.PresenceState{models.PresenceActive, models.PresenceAway, models.PresenceUnknown}
	for i := 0; i < 60; i++ {
		env.appendEvent(t, "U1", states[i%3], at(day1, "00:00:00")+int64(i*997))
	}
	env.setNow(day1, "08:00:00")

	_, err := newCompactor(t, env, env.reg).Run(ctx)
	require.NoError(t, err)

	rows, err := env.reg.Stats().ListRange(ctx, "U1", day1, day1)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Len(t, rows[0].Activity, timeslot.SlotsPerDay)
	for i, v := range rows[0].Activity {
		assert.Contains(t, []int{-1, 0, 1}, v, "slot %d", i)
	}
}
