package migration

import (
	"github.com/geoinfo-winterthur/cadusage/internal/config"
	"github.com/geoinfo-winterthur/cadusage/internal/seed"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, schema *config.SchemaHolder) error {
		// Only the default schema mapping points at tables this service
		// owns. Custom mappings target a foreign schema.
		if schema.Get() != config.DefaultSchemaConfig() {
			return nil
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}

		if err := RunMigrations(sqlDB, cfg.DBType); err != nil {
			return err
		}

		return seed.EnsureKnownApplications(conn, cfg.UnknownValue)
	}),
)
