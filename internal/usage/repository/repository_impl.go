package repository

import (
	"context"
	"fmt"

	"github.com/geoinfo-winterthur/cadusage/internal/config"
	domain "github.com/geoinfo-winterthur/cadusage/internal/usage/domain"
	pkgdb "github.com/geoinfo-winterthur/cadusage/pkg/db"
	"gorm.io/gorm"
)

type repo struct {
	schema *config.SchemaHolder
}

func Provide(schema *config.SchemaHolder) domain.Repository {
	return &repo{schema: schema}
}

func (r *repo) EnsureRecord(ctx context.Context, db *gorm.DB, key domain.Key) (bool, error) {
	s := r.schema.Get()

	// The unique key over (org, date, app, version) resolves racing
	// inserts for a fresh day to a single row.
	var stmt string
	if db.Dialector.Name() == "mysql" {
		stmt = fmt.Sprintf(`INSERT IGNORE INTO %s (%s, %s, %s, %s, %s) VALUES (?, ?, ?, ?, 0)`,
			s.UsageTable, s.UsageOrgColumn, s.UsageDateColumn, s.UsageAppColumn,
			s.UsageVersionColumn, s.UsageMinutesColumn)
	} else {
		stmt = fmt.Sprintf(`INSERT INTO %s (%s, %s, %s, %s, %s) VALUES (?, ?, ?, ?, 0)
		 ON CONFLICT (%s, %s, %s, %s) DO NOTHING`,
			s.UsageTable, s.UsageOrgColumn, s.UsageDateColumn, s.UsageAppColumn,
			s.UsageVersionColumn, s.UsageMinutesColumn,
			s.UsageOrgColumn, s.UsageDateColumn, s.UsageAppColumn, s.UsageVersionColumn)
	}

	res := db.WithContext(ctx).Exec(stmt, key.OrgID, key.Date, key.AppCode, key.Version)
	if res.Error != nil {
		// Same fallback as the user upsert: a duplicate raised by an
		// index outside the conflict target means the row exists.
		if pkgdb.IsDuplicateKeyErr(res.Error) {
			return false, nil
		}
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) AddMinutes(ctx context.Context, db *gorm.DB, key domain.Key, minutes int) error {
	s := r.schema.Get()
	return db.WithContext(ctx).Exec(
		fmt.Sprintf(`UPDATE %s SET %s = %s + ?
		 WHERE %s = ? AND %s = ? AND %s = ? AND %s = ?`,
			s.UsageTable, s.UsageMinutesColumn, s.UsageMinutesColumn,
			s.UsageOrgColumn, s.UsageDateColumn, s.UsageAppColumn, s.UsageVersionColumn),
		minutes,
		key.OrgID,
		key.Date,
		key.AppCode,
		key.Version,
	).Error
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, key domain.Key) (*domain.UsageRecord, error) {
	s := r.schema.Get()
	var record domain.UsageRecord
	res := db.WithContext(ctx).Raw(
		fmt.Sprintf(`SELECT %s AS org_fid, %s AS usage_date, %s AS app_fid, %s AS app_version, %s AS minutes
		 FROM %s WHERE %s = ? AND %s = ? AND %s = ? AND %s = ?`,
			s.UsageOrgColumn, s.UsageDateColumn, s.UsageAppColumn, s.UsageVersionColumn, s.UsageMinutesColumn,
			s.UsageTable,
			s.UsageOrgColumn, s.UsageDateColumn, s.UsageAppColumn, s.UsageVersionColumn),
		key.OrgID,
		key.Date,
		key.AppCode,
		key.Version,
	).Scan(&record)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &record, nil
}
