package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	// Find returns the user for the given identity, or nil when absent.
	Find(ctx context.Context, db *gorm.DB, userName, domainName string) (*CadUser, error)

	// CreateIfAbsent inserts the user unless the identity already exists.
	// It reports whether this call created the row, so concurrent first
	// heartbeats resolve to exactly one creator.
	CreateIfAbsent(ctx context.Context, db *gorm.DB, user CadUser) (bool, error)

	// UpdateLastPing moves the user's last ping timestamp forward.
	UpdateLastPing(ctx context.Context, db *gorm.DB, userName, domainName string, at time.Time) error
}
