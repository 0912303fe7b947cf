// Package migrations provides database migration management for hlsvault.
package migrations

import (
	"github.com/pirelike/hlsvault/internal/models"
	"gorm.io/gorm"
)

// AllMigrations returns all registered migrations in order.
func AllMigrations() []Migration {
	return []Migration{
		migration001Schema(),
	}
}

// migration001Schema creates all catalog and job tables using GORM
// AutoMigrate, in foreign-key dependency order: videos before the tables
// that cascade-delete off it.
func migration001Schema() Migration {
	return Migration{
		Version:     "001",
		Description: "Create videos, segments, subtitle_tracks, and jobs tables",
		Up: func(tx *gorm.DB) error {
			return tx.AutoMigrate(
				&models.Video{},
				&models.Segment{},
				&models.SubtitleTrack{},
				&models.Job{},
			)
		},
		Down: func(tx *gorm.DB) error {
			tables := []string{
				"jobs",
				"subtitle_tracks",
				"segments",
				"videos",
			}
			for _, table := range tables {
				if err := tx.Migrator().DropTable(table); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
