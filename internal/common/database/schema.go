package database

import (
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/jgirmay/slack-activity/internal/activity/models"
	"github.com/jgirmay/slack-activity/internal/activity/timeslot"
)

const StatsTable = "stats"

// StatColumns returns the slot column names c0..c287, each wrapped in
// prefix/suffix.
func StatColumns(prefix, suffix string) []string {
	cols := make([]string, timeslot.SlotsPerDay)
	for i := range cols {
		cols[i] = fmt.Sprintf("%sc%d%s", prefix, i, suffix)
	}
	return cols
}

// Migrate creates the users, activity and stats tables if they are missing.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.UserProfile{}, &models.RawActivityEvent{}); err != nil {
		return fmt.Errorf("failed to migrate models: %w", err)
	}

	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		user_id TEXT NOT NULL,
		date TEXT NOT NULL,
		%s
	)`, StatsTable, strings.Join(StatColumns("", " INTEGER NOT NULL"), ",\n\t\t"))
	if err := db.Exec(ddl).Error; err != nil {
		return fmt.Errorf("failed to create stats table: %w", err)
	}

	if err := db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_stats_user_date ON stats (user_id, date)`).Error; err != nil {
		return fmt.Errorf("failed to create stats index: %w", err)
	}

	return nil
}
