package models

// FleetConfig stores fleet-level configuration.
type FleetConfig struct {
	ID       uint   `gorm:"primaryKey;autoIncrement"`
	Name     string `gorm:"size:64;uniqueIndex"`
	Template string `gorm:"size:128;not null"`
	Workers  int    `gorm:"default:1"`
	Settings string `gorm:"type:json"`
}
