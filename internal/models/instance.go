package models

import "time"

// Instance is one guest VM in the fleet. Index is the stable identity;
// DomainUUID changes when an instance is replaced.
type Instance struct {
	Index          int    `gorm:"primaryKey"`
	Name           string `gorm:"size:64;uniqueIndex"`
	DomainUUID     string `gorm:"size:64"`
	State          string `gorm:"size:24;index"`
	ResourceID     string `gorm:"size:64"`
	IPAddress      string `gorm:"size:45"`
	Health         string `gorm:"size:16"`
	LastHealthAt   time.Time
	RetryCount     int
	ReplacePending bool `gorm:"default:false;index"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
