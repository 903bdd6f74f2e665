package db

import (
	"encoding/json"
	"fmt"

	"github.com/halverson/gamefleet/internal/config"
	"github.com/halverson/gamefleet/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AllModels returns the list of all GORM models for migration.
func AllModels() []interface{} {
	return []interface{}{
		&models.Instance{},
		&models.HealthRecord{},
		&models.Event{},
		&models.FleetConfig{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}

// SeedFleetConfig writes or updates the FleetConfig row for this fleet.
func SeedFleetConfig(db *gorm.DB, cfg *config.Config) error {
	settings, err := json.Marshal(map[string]interface{}{
		"vcpus":      cfg.Fleet.VCPUs,
		"memory_mib": cfg.Fleet.MemoryMiB,
	})
	if err != nil {
		return fmt.Errorf("db: marshal fleet settings: %w", err)
	}

	fc := models.FleetConfig{
		Name:     cfg.Name,
		Template: cfg.Template,
		Workers:  cfg.Fleet.Workers,
		Settings: string(settings),
	}

	result := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"template", "workers", "settings"}),
	}).Create(&fc)
	if result.Error != nil {
		return fmt.Errorf("db: seed fleet config %q: %w", cfg.Name, result.Error)
	}
	return nil
}
