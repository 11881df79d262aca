package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ActionType is the kind of administrative intervention
type ActionType string

// Action type constants
const (
	ActionWarningNotification          ActionType = "WARNING_NOTIFICATION"
	ActionAdditionalInspectionRequired ActionType = "ADDITIONAL_INSPECTION_REQUIRED"
	ActionEducationRequired            ActionType = "EDUCATION_REQUIRED"
	ActionFrequencyChange              ActionType = "LOG_SUBMISSION_FREQUENCY_CHANGE"
	ActionDeviceReinstallationRequired ActionType = "DEVICE_REINSTALLATION_REQUIRED"
	ActionEmergencyContact             ActionType = "EMERGENCY_CONTACT"
	ActionLicenseStatusChange          ActionType = "LICENSE_STATUS_CHANGE"
	ActionLicenseSuspension            ActionType = "LICENSE_SUSPENSION"
	ActionLicenseRevocation            ActionType = "LICENSE_REVOCATION"
	ActionLegalActionReview            ActionType = "LEGAL_ACTION_REVIEW"
	ActionPoliceReport                 ActionType = "POLICE_REPORT"
)

// ActionTypes lists the whole catalogue
var ActionTypes = []ActionType{
	ActionWarningNotification,
	ActionAdditionalInspectionRequired,
	ActionEducationRequired,
	ActionFrequencyChange,
	ActionDeviceReinstallationRequired,
	ActionEmergencyContact,
	ActionLicenseStatusChange,
	ActionLicenseSuspension,
	ActionLicenseRevocation,
	ActionLegalActionReview,
	ActionPoliceReport,
}

// Valid reports whether t is a member of the catalogue
func (t ActionType) Valid() bool {
	for _, known := range ActionTypes {
		if t == known {
			return true
		}
	}
	return false
}

// AffectsLicense reports whether executing t must be relayed to the licensing authority
func (t ActionType) AffectsLicense() bool {
	switch t {
	case ActionLicenseStatusChange, ActionLicenseSuspension, ActionLicenseRevocation:
		return true
	}
	return false
}

// Title is the subject-facing heading for t
func (t ActionType) Title() string {
	switch t {
	case ActionWarningNotification:
		return "Warning"
	case ActionAdditionalInspectionRequired:
		return "Additional inspection required"
	case ActionEducationRequired:
		return "Education required"
	case ActionFrequencyChange:
		return "Submission frequency changed"
	case ActionDeviceReinstallationRequired:
		return "Device reinstallation required"
	case ActionEmergencyContact:
		return "Emergency contact"
	case ActionLicenseStatusChange:
		return "License status changed"
	case ActionLicenseSuspension:
		return "License suspended"
	case ActionLicenseRevocation:
		return "License revoked"
	case ActionLegalActionReview:
		return "Legal action under review"
	case ActionPoliceReport:
		return "Police report filed"
	}
	return string(t)
}

// ActionStatus is the execution state of an admin action
type ActionStatus string

// Action status constants
const (
	ActionStatusPending    ActionStatus = "PENDING"
	ActionStatusInProgress ActionStatus = "IN_PROGRESS"
	ActionStatusCompleted  ActionStatus = "COMPLETED"
	ActionStatusFailed     ActionStatus = "FAILED"
	ActionStatusCancelled  ActionStatus = "CANCELLED"
)

// Valid reports whether s is a member of the catalogue
func (s ActionStatus) Valid() bool {
	switch s {
	case ActionStatusPending, ActionStatusInProgress, ActionStatusCompleted, ActionStatusFailed, ActionStatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether the action can no longer change status
func (s ActionStatus) Terminal() bool {
	return s == ActionStatusCompleted || s == ActionStatusFailed || s == ActionStatusCancelled
}

// AdminAction is one administrative intervention against a subject
type AdminAction struct {
	ID                string       `gorm:"primaryKey;size:36" json:"action_id"`
	LogID             *string      `gorm:"size:36;index" json:"log_id,omitempty"`
	SubjectID         uint         `gorm:"not null;index" json:"subject_id"`
	AdminID           uint         `gorm:"not null;index" json:"admin_id"`
	ActionType        ActionType   `gorm:"size:40;not null;index" json:"action_type"`
	Detail            string       `gorm:"type:text" json:"detail"`
	Status            ActionStatus `gorm:"size:20;not null;index" json:"status"`
	IsRead            bool         `gorm:"not null;default:false;index" json:"is_read"`
	ReadTime          *time.Time   `json:"read_time,omitempty"`
	AuthoritySynced   bool         `gorm:"not null;default:false" json:"authority_synced"`
	AuthorityResponse *string      `gorm:"type:text" json:"authority_response,omitempty"`
	ErrorDetail       *string      `gorm:"type:text" json:"error_detail,omitempty"`
	CreatedTime       time.Time    `gorm:"not null;index" json:"created_time"`
	ExecutedTime      *time.Time   `json:"executed_time,omitempty"`
	CompletedTime     *time.Time   `json:"completed_time,omitempty"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

// TableName specifies the table name for AdminAction
func (AdminAction) TableName() string {
	return "admin_actions"
}

// BeforeCreate assigns an id when the caller has not
func (a *AdminAction) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// MayExecute returns true if the action has not started yet
func (a *AdminAction) MayExecute() bool {
	return a.Status == ActionStatusPending
}

// MayCancel returns true if the action can still be cancelled
func (a *AdminAction) MayCancel() bool {
	return a.Status == ActionStatusPending
}

// MarkRead acknowledges the action once. It reports whether anything changed.
func (a *AdminAction) MarkRead(now time.Time) bool {
	if a.IsRead {
		return false
	}
	a.IsRead = true
	a.ReadTime = &now
	return true
}
