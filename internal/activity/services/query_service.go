package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/jgirmay/slack-activity/internal/activity/models"
	"github.com/jgirmay/slack-activity/internal/activity/repository"
	"github.com/jgirmay/slack-activity/internal/activity/timeslot"
	apperrors "github.com/jgirmay/slack-activity/internal/common/errors"
)

// QueryService answers read-only questions over the stats table.
type QueryService struct {
	stats repository.StatsRepository
	users repository.UserRepository
}

func NewQueryService(stats repository.StatsRepository, users repository.UserRepository) *QueryService {
	return &QueryService{stats: stats, users: users}
}

// GetUserActivity returns one user's days in [from, to], newest first.
func (s *QueryService) GetUserActivity(ctx context.Context, userID, from, to string) ([]models.UserDay, error) {
	if err := validateRange(from, to); err != nil {
		return nil, err
	}

	profile, err := s.users.Get(ctx, userID)
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}

	rows, err := s.stats.ListRange(ctx, userID, from, to)
	if err != nil {
		return nil, err
	}

	days := make([]models.UserDay, 0, len(rows))
	for _, row := range rows {
		weekDay, weekend, err := timeslot.Weekday(row.Date)
		if err != nil {
			return nil, err
		}
		day := models.UserDay{
			Date:     row.Date,
			WeekDay:  weekDay,
			Weekend:  weekend,
			Activity: append([]int(nil), row.Activity[:]...),
			UserID:   userID,
		}
		if profile != nil {
			day.UserName = profile.UserName
			day.UserRealName = profile.UserRealName
		}
		days = append(days, day)
	}
	return days, nil
}

type userTotals struct {
	days int
	sum  int64
	cols [timeslot.SlotsPerDay]int64
}

// GetUsersActivity averages every user's days in [from, to] slot by slot.
// Users are ordered by total activity, highest first.
func (s *QueryService) GetUsersActivity(ctx context.Context, from, to string) ([]models.UserSummary, error) {
	if err := validateRange(from, to); err != nil {
		return nil, err
	}

	rows, err := s.stats.ListAllRange(ctx, from, to)
	if err != nil {
		return nil, err
	}

	totals := make(map[string]*userTotals)
	ids := make([]string, 0)
	for _, row := range rows {
		t, ok := totals[row.UserID]
		if !ok {
			t = &userTotals{}
			totals[row.UserID] = t
			ids = append(ids, row.UserID)
		}
		t.days++
		for i, v := range row.Activity {
			t.cols[i] += int64(v)
			t.sum += int64(v)
		}
	}

	profiles, err := s.users.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}

	summaries := make([]models.UserSummary, 0, len(ids))
	for _, id := range ids {
		t := totals[id]
		summary := models.UserSummary{
			UserID:   id,
			UserSum:  t.sum,
			UserDays: t.days,
			Activity: make([]float64, timeslot.SlotsPerDay),
		}
		for i, v := range t.cols {
			summary.Activity[i] = round2(float64(v) / float64(t.days))
		}
		if p, ok := profiles[id]; ok {
			summary.UserName = p.UserName
			summary.UserRealName = p.UserRealName
		}
		summaries = append(summaries, summary)
	}

	sort.Slice(summaries, func(a, b int) bool {
		if summaries[a].UserSum != summaries[b].UserSum {
			return summaries[a].UserSum > summaries[b].UserSum
		}
		return summaries[a].UserID < summaries[b].UserID
	})
	return summaries, nil
}

func validateRange(from, to string) error {
	if _, err := timeslot.ParseDate(from); err != nil {
		return err
	}
	if _, err := timeslot.ParseDate(to); err != nil {
		return err
	}
	if from > to {
		return apperrors.InvalidInput("invalid date range", fmt.Sprintf("from %s is after to %s", from, to))
	}
	return nil
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
