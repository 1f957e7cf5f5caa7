package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/jgirmay/slack-activity/internal/activity/models"
	"github.com/jgirmay/slack-activity/internal/activity/timeslot"
)

// RawEventRepositoryImpl implements RawEventRepository
type RawEventRepositoryImpl struct {
	db *gorm.DB
}

// NewRawEventRepository creates a new raw event repository
func NewRawEventRepository(db *gorm.DB) RawEventRepository {
	return &RawEventRepositoryImpl{db: db}
}

// Append stores the event with the date it belongs to under the fixed offset,
// so grouping never depends on the engine's date functions.
func (r *RawEventRepositoryImpl) Append(ctx context.Context, userID string, state models.PresenceState, ts int64) error {
	event := &models.RawActivityEvent{
		Timestamp:    ts,
		UserID:       userID,
		UserPresence: state,
		Date:         timeslot.DateOf(ts, timeslot.Offset),
	}
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		return storageError("append raw event", err)
	}
	return nil
}

func (r *RawEventRepositoryImpl) ListDistinctDates(ctx context.Context) ([]string, error) {
	var dates []string
	err := r.db.WithContext(ctx).
		Model(&models.RawActivityEvent{}).
		Distinct("date").
		Order("date ASC").
		Pluck("date", &dates).Error
	if err != nil {
		return nil, storageError("list raw event dates", err)
	}
	return dates, nil
}

func (r *RawEventRepositoryImpl) ListDistinctUsers(ctx context.Context, date string) ([]string, error) {
	var users []string
	err := r.db.WithContext(ctx).
		Model(&models.RawActivityEvent{}).
		Where("date = ?", date).
		Distinct("user_id").
		Order("user_id ASC").
		Pluck("user_id", &users).Error
	if err != nil {
		return nil, storageError("list raw event users", err)
	}
	return users, nil
}

func (r *RawEventRepositoryImpl) ListEventsForUserDate(ctx context.Context, userID, date string) ([]models.RawActivityEvent, error) {
	var events []models.RawActivityEvent
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND date = ?", userID, date).
		Order("ts ASC, id ASC").
		Find(&events).Error
	if err != nil {
		return nil, storageError("list raw events", err)
	}
	return events, nil
}

func (r *RawEventRepositoryImpl) DeleteEventsForUserDate(ctx context.Context, userID, date string) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("user_id = ? AND date = ?", userID, date).
		Delete(&models.RawActivityEvent{})
	if result.Error != nil {
		return 0, storageError("delete raw events", result.Error)
	}
	return result.RowsAffected, nil
}
