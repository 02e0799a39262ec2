package seed

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// knownApplications is the catalog of CAD products that report
// heartbeats. Application code 0 stands in for anything unidentified.
var knownApplications = map[int64]string{
	1: "AutoCAD",
	2: "AutoCAD Map",
	3: "Civil 3D",
}

// EnsureKnownApplications seeds the application catalog for startup
// bootstrap. Existing rows are left alone.
func EnsureKnownApplications(db *gorm.DB, unknownName string) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	apps := map[int64]string{0: unknownName}
	for fid, name := range knownApplications {
		apps[fid] = name
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for fid, name := range apps {
			var count int64
			if err := tx.Raw(`SELECT COUNT(1) FROM cad_applications WHERE fid = ?`, fid).
				Scan(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				continue
			}
			if err := tx.Exec(`INSERT INTO cad_applications (fid, app_name) VALUES (?, ?)`,
				fid, name).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
