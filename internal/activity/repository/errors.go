package repository

import (
	"errors"

	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"

	apperrors "github.com/jgirmay/slack-activity/internal/common/errors"
)

// IsConstraintViolation reports whether err comes from a unique or other
// integrity constraint.
func IsConstraintViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) || errors.Is(err, gorm.ErrForeignKeyViolated) {
		return true
	}
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint
}

func storageError(op string, err error) error {
	if IsConstraintViolation(err) {
		return apperrors.Storage(op+": constraint violation", err)
	}
	return apperrors.Storage(op, err)
}
