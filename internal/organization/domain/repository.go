package domain

import (
	"context"

	"gorm.io/gorm"
)

// UnknownOrgID marks usage whose user has no membership row. Keeping
// the sentinel in the usage table means no heartbeat is ever dropped
// over a missing assignment.
const UnknownOrgID int64 = -1

type Repository interface {
	// FindOrgID resolves a login name to its organization id. The second
	// return reports whether a membership row exists.
	FindOrgID(ctx context.Context, db *gorm.DB, loginName string) (int64, bool, error)
}
