package models

import (
	"time"
)

// Notification represents a message shown to a subject
type Notification struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	SubjectID        uint       `gorm:"not null;index" json:"subject_id"`
	Title            string     `gorm:"not null" json:"title"`
	Message          string     `gorm:"not null" json:"message"`
	NotificationType string     `gorm:"size:40;index" json:"notification_type"`
	ReferenceID      *string    `gorm:"size:36" json:"reference_id,omitempty"`
	ReadAt           *time.Time `gorm:"index" json:"read_at"`
	CreatedAt        time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// TableName specifies the table name for Notification
func (Notification) TableName() string {
	return "notifications"
}

// Notification type constants
const (
	NotificationTypeLogFlagged      = "log_flagged"
	NotificationTypeLogReviewed     = "log_reviewed"
	NotificationTypeScheduleOverdue = "schedule_overdue"
	NotificationTypeScheduleDueSoon = "schedule_due_soon"
	NotificationTypeScheduleChanged = "schedule_changed"
	NotificationTypeActionIssued    = "action_issued"
)

// IsRead returns true if notification has been read
func (n *Notification) IsRead() bool {
	return n.ReadAt != nil
}

// MarkAsRead marks the notification as read
func (n *Notification) MarkAsRead() {
	now := time.Now()
	n.ReadAt = &now
}

// NotificationResponse is the JSON response format
type NotificationResponse struct {
	ID               uint       `json:"id"`
	Title            string     `json:"title"`
	Message          string     `json:"message"`
	NotificationType string     `json:"notification_type"`
	ReferenceID      *string    `json:"reference_id,omitempty"`
	Read             bool       `json:"read"`
	ReadAt           *time.Time `json:"read_at"`
	CreatedAt        time.Time  `json:"created_at"`
}

// ToResponse converts Notification to NotificationResponse
func (n *Notification) ToResponse() NotificationResponse {
	return NotificationResponse{
		ID:               n.ID,
		Title:            n.Title,
		Message:          n.Message,
		NotificationType: n.NotificationType,
		ReferenceID:      n.ReferenceID,
		Read:             n.IsRead(),
		ReadAt:           n.ReadAt,
		CreatedAt:        n.CreatedAt,
	}
}
