package database

import (
	"fmt"

	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"

	"github.com/rmitchellscott/inkprep/internal/logging"
)

// migrations lists schema changes after the initial schema, oldest first.
var migrations = []*gormigrate.Migration{
	{
		ID: "202510010000_add_source_url_to_prepared_images",
		Migrate: func(tx *gorm.DB) error {
			if tx.Migrator().HasColumn(&PreparedImage{}, "source_url") {
				return nil
			}
			return tx.Migrator().AddColumn(&PreparedImage{}, "SourceURL")
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropColumn(&PreparedImage{}, "SourceURL")
		},
	},
	{
		ID: "202510080000_create_feed_states",
		Migrate: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&FeedState{})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&FeedState{})
		},
	},
}

// RunMigrations applies pending migrations. A fresh database gets the
// current schema directly.
func RunMigrations(db *gorm.DB) error {
	logging.DebugWithComponent(logging.ComponentDatabase, "Running database migrations")

	m := gormigrate.New(db, gormigrate.DefaultOptions, migrations)
	m.InitSchema(func(tx *gorm.DB) error {
		for _, model := range GetAllModels() {
			if err := tx.AutoMigrate(model); err != nil {
				return fmt.Errorf("failed to migrate %T: %w", model, err)
			}
		}
		return nil
	})

	if err := m.Migrate(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
