package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jgirmay/slack-activity/internal/activity/models"
	apperrors "github.com/jgirmay/slack-activity/internal/common/errors"
)

// UserRepositoryImpl implements UserRepository
type UserRepositoryImpl struct {
	db *gorm.DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *gorm.DB) UserRepository {
	return &UserRepositoryImpl{db: db}
}

// InsertIfAbsent never updates an existing profile: the first name seen for a
// user is the one kept.
func (r *UserRepositoryImpl) InsertIfAbsent(ctx context.Context, profile models.UserProfile) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&profile)
	if result.Error != nil {
		return false, storageError("insert user", result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (r *UserRepositoryImpl) Get(ctx context.Context, userID string) (*models.UserProfile, error) {
	var profile models.UserProfile
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("user " + userID)
		}
		return nil, storageError("get user", err)
	}
	return &profile, nil
}

func (r *UserRepositoryImpl) GetMany(ctx context.Context, userIDs []string) (map[string]models.UserProfile, error) {
	out := make(map[string]models.UserProfile, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}

	var profiles []models.UserProfile
	if err := r.db.WithContext(ctx).Where("user_id IN ?", userIDs).Find(&profiles).Error; err != nil {
		return nil, storageError("list users", err)
	}
	for _, p := range profiles {
		out[p.UserID] = p
	}
	return out, nil
}

func (r *UserRepositoryImpl) List(ctx context.Context) ([]models.UserProfile, error) {
	var profiles []models.UserProfile
	if err := r.db.WithContext(ctx).Order("user_id ASC").Find(&profiles).Error; err != nil {
		return nil, storageError("list users", err)
	}
	return profiles, nil
}
