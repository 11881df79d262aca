package models

import (
	"time"
)

// AuditLog represents a system audit entry
type AuditLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ActorID   uint      `gorm:"not null;index" json:"actor_id"`
	Action    string    `gorm:"size:50;not null" json:"action"` // SUBMIT, REVIEW, SCHEDULE, SWEEP, ACTION
	Entity    string    `gorm:"size:50;not null" json:"entity"` // DrivingLog, SubmissionSchedule, AdminAction
	EntityID  string    `gorm:"size:36;index" json:"entity_id"`
	Details   string    `gorm:"type:text" json:"details"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

// TableName specifies the table name for AuditLog
func (AuditLog) TableName() string {
	return "audit_logs"
}

// Audit entity names
const (
	EntityDrivingLog = "DrivingLog"
	EntitySchedule   = "SubmissionSchedule"
	EntityAction     = "AdminAction"
)
