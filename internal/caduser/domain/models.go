package domain

import "time"

// CadUser is one workstation user identified by login and domain name.
// Both identifiers are stored lowercased; the pair is the natural key.
type CadUser struct {
	UserName   string    `gorm:"column:user_name"`
	DomainName string    `gorm:"column:domain_name"`
	LastPing   time.Time `gorm:"column:last_ping"`
}
