package models

import "time"

// Event is an audit log entry. InstanceIndex is 0 for fleet-level events.
type Event struct {
	ID            uint      `gorm:"primaryKey;autoIncrement"`
	InstanceIndex int       `gorm:"index"`
	Kind          string    `gorm:"size:24;index"`
	Detail        string    `gorm:"type:text"`
	CreatedAt     time.Time `gorm:"index"`
}

// Event kinds.
const (
	EventStateChange  = "state_change"
	EventHealthChange = "health_change"
	EventEscalation   = "escalation"
	EventReconcile    = "reconcile"
	EventBackup       = "backup"
)
