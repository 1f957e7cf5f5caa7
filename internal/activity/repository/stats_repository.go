package repository

import (
	"context"
	"database/sql"
	"strings"

	"gorm.io/gorm"

	"github.com/jgirmay/slack-activity/internal/activity/models"
	"github.com/jgirmay/slack-activity/internal/activity/timeslot"
	"github.com/jgirmay/slack-activity/internal/common/database"
)

var (
	slotColumns = database.StatColumns("", "")

	insertStatsSQL = "INSERT INTO " + database.StatsTable +
		" (user_id, date, " + strings.Join(slotColumns, ", ") + ") VALUES (?, ?" +
		strings.Repeat(", ?", timeslot.SlotsPerDay) + ")"

	selectStatsColumns = append([]string{"user_id", "date"}, slotColumns...)
)

// StatsRepositoryImpl implements StatsRepository over the wide stats table.
// The table has no model; rows are written and read column by column.
type StatsRepositoryImpl struct {
	db *gorm.DB
}

// NewStatsRepository creates a new stats repository
func NewStatsRepository(db *gorm.DB) StatsRepository {
	return &StatsRepositoryImpl{db: db}
}

func (r *StatsRepositoryImpl) Delete(ctx context.Context, userID, date string) (int64, error) {
	result := r.db.WithContext(ctx).Exec(
		"DELETE FROM "+database.StatsTable+" WHERE user_id = ? AND date = ?", userID, date)
	if result.Error != nil {
		return 0, storageError("delete stats row", result.Error)
	}
	return result.RowsAffected, nil
}

func (r *StatsRepositoryImpl) Insert(ctx context.Context, row models.DailyActivityRow) (int64, error) {
	args := make([]interface{}, 0, 2+timeslot.SlotsPerDay)
	args = append(args, row.UserID, row.Date)
	for _, v := range row.Activity {
		args = append(args, v)
	}

	result := r.db.WithContext(ctx).Exec(insertStatsSQL, args...)
	if result.Error != nil {
		return 0, storageError("insert stats row", result.Error)
	}
	return result.RowsAffected, nil
}

func (r *StatsRepositoryImpl) ListRange(ctx context.Context, userID, from, to string) ([]models.DailyActivityRow, error) {
	rows, err := r.db.WithContext(ctx).
		Table(database.StatsTable).
		Select(selectStatsColumns).
		Where("user_id = ? AND date >= ? AND date <= ?", userID, from, to).
		Order("date DESC").
		Rows()
	if err != nil {
		return nil, storageError("list stats rows", err)
	}
	return scanStats(rows)
}

func (r *StatsRepositoryImpl) ListAllRange(ctx context.Context, from, to string) ([]models.DailyActivityRow, error) {
	rows, err := r.db.WithContext(ctx).
		Table(database.StatsTable).
		Select(selectStatsColumns).
		Where("date >= ? AND date <= ?", from, to).
		Order("user_id ASC, date ASC").
		Rows()
	if err != nil {
		return nil, storageError("list stats rows", err)
	}
	return scanStats(rows)
}

func scanStats(rows *sql.Rows) ([]models.DailyActivityRow, error) {
	defer rows.Close()

	var out []models.DailyActivityRow
	for rows.Next() {
		var row models.DailyActivityRow
		dest := make([]interface{}, 0, 2+timeslot.SlotsPerDay)
		dest = append(dest, &row.UserID, &row.Date)
		for i := range row.Activity {
			dest = append(dest, &row.Activity[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, storageError("scan stats row", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("read stats rows", err)
	}
	return out, nil
}
