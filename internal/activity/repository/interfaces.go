package repository

import (
	"context"

	"github.com/jgirmay/slack-activity/internal/activity/models"
)

// RawEventRepository is the append-only log of presence changes.
type RawEventRepository interface {
	// Append inserts one raw event. Duplicates are not filtered.
	Append(ctx context.Context, userID string, state models.PresenceState, ts int64) error

	// ListDistinctDates returns every date that still has raw events, oldest first.
	ListDistinctDates(ctx context.Context) ([]string, error)

	// ListDistinctUsers returns the users with raw events on date.
	ListDistinctUsers(ctx context.Context, date string) ([]string, error)

	// ListEventsForUserDate returns one user's events of date in timestamp order.
	ListEventsForUserDate(ctx context.Context, userID, date string) ([]models.RawActivityEvent, error)

	// DeleteEventsForUserDate removes one user's events of date and returns how many went.
	DeleteEventsForUserDate(ctx context.Context, userID, date string) (int64, error)
}

// UserRepository stores the display profile of every tracked user.
type UserRepository interface {
	// InsertIfAbsent writes profile unless the user already exists. It
	// reports whether a row was written.
	InsertIfAbsent(ctx context.Context, profile models.UserProfile) (bool, error)

	Get(ctx context.Context, userID string) (*models.UserProfile, error)

	// GetMany returns the profiles of the given users keyed by id. Unknown
	// ids are absent from the map.
	GetMany(ctx context.Context, userIDs []string) (map[string]models.UserProfile, error)

	// List returns every stored profile ordered by id.
	List(ctx context.Context) ([]models.UserProfile, error)
}

// StatsRepository holds the compacted 288-slot rows.
type StatsRepository interface {
	// Delete removes the row of (userID, date) if present.
	Delete(ctx context.Context, userID, date string) (int64, error)

	// Insert writes row and returns the number of rows affected.
	Insert(ctx context.Context, row models.DailyActivityRow) (int64, error)

	// ListRange returns one user's rows with from <= date <= to, newest first.
	ListRange(ctx context.Context, userID, from, to string) ([]models.DailyActivityRow, error)

	// ListAllRange returns every row with from <= date <= to ordered by user
	// then date.
	ListAllRange(ctx context.Context, from, to string) ([]models.DailyActivityRow, error)
}

// Store groups the repositories and scopes them to a transaction.
type Store interface {
	Events() RawEventRepository
	Users() UserRepository
	Stats() StatsRepository

	// Transaction runs fn against a Store bound to one database
	// transaction. fn returning an error rolls everything back.
	Transaction(ctx context.Context, fn func(tx Store) error) error
}
