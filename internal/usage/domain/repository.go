package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	// EnsureRecord inserts a zero-minute record for the key unless one
	// exists. It reports whether this call created the row.
	EnsureRecord(ctx context.Context, db *gorm.DB, key Key) (bool, error)

	// AddMinutes atomically adds minutes to the record for the key.
	AddMinutes(ctx context.Context, db *gorm.DB, key Key, minutes int) error

	// Find returns the record for the key, or nil when absent.
	Find(ctx context.Context, db *gorm.DB, key Key) (*UsageRecord, error)
}
