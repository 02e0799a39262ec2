package repository

import (
	"context"
	"fmt"
	"time"

	domain "github.com/geoinfo-winterthur/cadusage/internal/caduser/domain"
	"github.com/geoinfo-winterthur/cadusage/internal/config"
	pkgdb "github.com/geoinfo-winterthur/cadusage/pkg/db"
	"gorm.io/gorm"
)

type repo struct {
	schema *config.SchemaHolder
}

func Provide(schema *config.SchemaHolder) domain.Repository {
	return &repo{schema: schema}
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, userName, domainName string) (*domain.CadUser, error) {
	s := r.schema.Get()
	var user domain.CadUser
	err := db.WithContext(ctx).Raw(
		fmt.Sprintf(`SELECT %s AS user_name, %s AS domain_name, %s AS last_ping
		 FROM %s WHERE %s = ? AND %s = ?`,
			s.UserNameColumn, s.DomainNameColumn, s.LastPingColumn,
			s.CadUserTable, s.UserNameColumn, s.DomainNameColumn),
		userName,
		domainName,
	).Scan(&user).Error
	if err != nil {
		return nil, err
	}
	if user.UserName == "" {
		return nil, nil
	}
	return &user, nil
}

func (r *repo) CreateIfAbsent(ctx context.Context, db *gorm.DB, user domain.CadUser) (bool, error) {
	s := r.schema.Get()

	// Racing first heartbeats both reach this insert; the unique key on
	// (user, domain) lets exactly one of them create the row.
	var stmt string
	if db.Dialector.Name() == "mysql" {
		stmt = fmt.Sprintf(`INSERT IGNORE INTO %s (%s, %s, %s) VALUES (?, ?, ?)`,
			s.CadUserTable, s.UserNameColumn, s.DomainNameColumn, s.LastPingColumn)
	} else {
		stmt = fmt.Sprintf(`INSERT INTO %s (%s, %s, %s) VALUES (?, ?, ?)
		 ON CONFLICT (%s, %s) DO NOTHING`,
			s.CadUserTable, s.UserNameColumn, s.DomainNameColumn, s.LastPingColumn,
			s.UserNameColumn, s.DomainNameColumn)
	}

	res := db.WithContext(ctx).Exec(stmt, user.UserName, user.DomainName, user.LastPing)
	if res.Error != nil {
		// A foreign schema may enforce uniqueness through an index the
		// conflict target does not name; that still means the user exists.
		if pkgdb.IsDuplicateKeyErr(res.Error) {
			return false, nil
		}
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) UpdateLastPing(ctx context.Context, db *gorm.DB, userName, domainName string, at time.Time) error {
	s := r.schema.Get()
	return db.WithContext(ctx).Exec(
		fmt.Sprintf(`UPDATE %s SET %s = ? WHERE %s = ? AND %s = ?`,
			s.CadUserTable, s.LastPingColumn, s.UserNameColumn, s.DomainNameColumn),
		at,
		userName,
		domainName,
	).Error
}
