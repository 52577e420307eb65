package db

import (
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/youneslaaroussi/dealwhisperer/internal/models"
)

// AllModels returns every GORM model backing the correlation store.
func AllModels() []interface{} {
	return []interface{}{
		&models.StakeholderMapping{},
		&models.StaleDeal{},
		&models.ActiveThread{},
		&models.StakeholderNotification{},
		&models.StakeholderResponse{},
		&models.DealResolution{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}

// SeedMappings upserts stakeholder mappings keyed on role. Used to bootstrap
// a fresh database from a role→user map.
func SeedMappings(db *gorm.DB, mappings map[string]string) error {
	for role, userID := range mappings {
		m := models.StakeholderMapping{Role: role, SlackUserID: userID}
		result := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "role"}},
			DoUpdates: clause.AssignmentColumns([]string{"slack_user_id", "updated_at"}),
		}).Create(&m)
		if result.Error != nil {
			return fmt.Errorf("db: seed mapping %q: %w", role, result.Error)
		}
	}
	return nil
}
