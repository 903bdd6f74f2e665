package models

import "time"

// HealthRecord is one probe result for one instance.
type HealthRecord struct {
	ID             uint   `gorm:"primaryKey;autoIncrement"`
	InstanceIndex  int    `gorm:"index"`
	Classification string `gorm:"size:16"`
	PingOK         bool
	ProcessOK      bool
	Detail         string `gorm:"type:text"`
	CreatedAt      time.Time
}
