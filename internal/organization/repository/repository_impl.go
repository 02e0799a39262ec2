package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/geoinfo-winterthur/cadusage/internal/config"
	domain "github.com/geoinfo-winterthur/cadusage/internal/organization/domain"
	"gorm.io/gorm"
)

type repo struct {
	schema *config.SchemaHolder
}

func Provide(schema *config.SchemaHolder) domain.Repository {
	return &repo{schema: schema}
}

func (r *repo) FindOrgID(ctx context.Context, db *gorm.DB, loginName string) (int64, bool, error) {
	s := r.schema.Get()

	var orgID sql.NullInt64
	err := db.WithContext(ctx).Raw(
		fmt.Sprintf(`SELECT %s FROM %s WHERE %s = ?`,
			s.MemberOrgColumn, s.MemberTable, s.MemberLoginColumn),
		loginName,
	).Row().Scan(&orgID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	if !orgID.Valid {
		return 0, false, nil
	}
	return orgID.Int64, true, nil
}
