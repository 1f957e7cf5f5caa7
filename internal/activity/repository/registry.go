// Package repository provides the data access layer for raw events, user
// profiles and compacted stats.
package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// Registry provides access to all repositories over one connection (or one
// transaction).
type Registry struct {
	RawEventRepository RawEventRepository
	UserRepository     UserRepository
	StatsRepository    StatsRepository

	db *gorm.DB
}

// NewRegistry creates a registry whose repositories share db.
func NewRegistry(db *gorm.DB) *Registry {
	return &Registry{
		RawEventRepository: NewRawEventRepository(db),
		UserRepository:     NewUserRepository(db),
		StatsRepository:    NewStatsRepository(db),
		db:                 db,
	}
}

func (r *Registry) Events() RawEventRepository { return r.RawEventRepository }
func (r *Registry) Users() UserRepository      { return r.UserRepository }
func (r *Registry) Stats() StatsRepository     { return r.StatsRepository }

// Transaction implements Store. Only the Store handed to fn may be used
// inside it.
func (r *Registry) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRegistry(tx))
	})
}

// GetDB returns the database connection
func (r *Registry) GetDB() *gorm.DB {
	return r.db
}

// Ping checks that the database answers.
func (r *Registry) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database connection: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the underlying connection pool.
func (r *Registry) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database connection: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database connection: %w", err)
	}
	return nil
}
