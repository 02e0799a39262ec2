package domain

import "time"

// UsageRecord accumulates minutes for one organization, day,
// application and version. The four key fields form the natural key.
type UsageRecord struct {
	OrgID   int64     `gorm:"column:org_fid"`
	Date    time.Time `gorm:"column:usage_date"`
	AppCode int       `gorm:"column:app_fid"`
	Version string    `gorm:"column:app_version"`
	Minutes int       `gorm:"column:minutes"`
}

// Key identifies one usage record.
type Key struct {
	OrgID   int64
	Date    time.Time
	AppCode int
	Version string
}
