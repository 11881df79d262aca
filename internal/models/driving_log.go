package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// LogStatus is the review state of a driving log
type LogStatus string

// Log status constants
const (
	LogStatusSubmitted   LogStatus = "SUBMITTED"
	LogStatusUnderReview LogStatus = "UNDER_REVIEW"
	LogStatusFlagged     LogStatus = "FLAGGED"
	LogStatusApproved    LogStatus = "APPROVED"
	LogStatusRejected    LogStatus = "REJECTED"
)

// LogStatuses lists every log status
var LogStatuses = []LogStatus{
	LogStatusSubmitted, LogStatusUnderReview, LogStatusFlagged, LogStatusApproved, LogStatusRejected,
}

// Valid reports whether s is a member of the catalogue
func (s LogStatus) Valid() bool {
	switch s {
	case LogStatusSubmitted, LogStatusUnderReview, LogStatusFlagged, LogStatusApproved, LogStatusRejected:
		return true
	}
	return false
}

// Terminal reports whether no further review is possible
func (s LogStatus) Terminal() bool {
	return s == LogStatusApproved || s == LogStatusRejected
}

// IsReviewOutcome reports whether s can be the result of a review
func (s LogStatus) IsReviewOutcome() bool {
	return s == LogStatusApproved || s == LogStatusRejected
}

// AnomalyType classifies irregular device or log behaviour
type AnomalyType string

// Anomaly type constants
const (
	AnomalyNormal            AnomalyType = "NORMAL"
	AnomalyTamperingAttempt  AnomalyType = "TAMPERING_ATTEMPT"
	AnomalyBypassAttempt     AnomalyType = "BYPASS_ATTEMPT"
	AnomalyExcessiveFailures AnomalyType = "EXCESSIVE_FAILURES"
	AnomalyDeviceMalfunction AnomalyType = "DEVICE_MALFUNCTION"
	AnomalyDataInconsistency AnomalyType = "DATA_INCONSISTENCY"
)

// Valid reports whether a is a member of the catalogue
func (a AnomalyType) Valid() bool {
	switch a {
	case AnomalyNormal, AnomalyTamperingAttempt, AnomalyBypassAttempt,
		AnomalyExcessiveFailures, AnomalyDeviceMalfunction, AnomalyDataInconsistency:
		return true
	}
	return false
}

// Description returns the reviewer-facing explanation of the anomaly
func (a AnomalyType) Description() string {
	switch a {
	case AnomalyTamperingAttempt:
		return "Device tampering was detected. Administrator review is required."
	case AnomalyBypassAttempt:
		return "Suspected bypass: the number of tests is abnormally low."
	case AnomalyExcessiveFailures:
		return "Test failure rate or alcohol readings are abnormally high."
	case AnomalyDeviceMalfunction:
		return "Suspected device malfunction: abnormal readings were found."
	case AnomalyDataInconsistency:
		return "The log data is inconsistent with the declared period. Check the file contents."
	}
	return ""
}

// RiskLevel is the severity tier used to prioritise attention
type RiskLevel string

// Risk level constants
const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// Valid reports whether r is a member of the catalogue
func (r RiskLevel) Valid() bool {
	return r == RiskLow || r == RiskMedium || r == RiskHigh
}

// Statistics aggregates the test events found in one driving log file
type Statistics struct {
	TotalTests        int     `gorm:"not null;default:0" json:"total_tests"`
	PassedTests       int     `gorm:"not null;default:0" json:"passed_tests"`
	FailedTests       int     `gorm:"not null;default:0" json:"failed_tests"`
	SkippedTests      int     `gorm:"not null;default:0" json:"skipped_tests"`
	AverageBAC        float64 `gorm:"column:average_bac;not null;default:0" json:"average_bac"`
	MaxBAC            float64 `gorm:"column:max_bac;not null;default:0" json:"max_bac"`
	TamperingAttempts int     `gorm:"not null;default:0" json:"tampering_attempts"`
}

// FailureRate returns failed/total, or 0 when there were no tests
func (s Statistics) FailureRate() float64 {
	if s.TotalTests <= 0 {
		return 0
	}
	return float64(s.FailedTests) / float64(s.TotalTests)
}

// DrivingLog is one submitted device log file and its analysis
type DrivingLog struct {
	ID          string    `gorm:"primaryKey;size:36" json:"log_id"`
	DeviceID    uint      `gorm:"not null;index" json:"device_id"`
	SubjectID   uint      `gorm:"not null;index" json:"subject_id"`
	SubmittedAt time.Time `gorm:"not null;index" json:"submit_time"`
	PeriodStart time.Time `gorm:"type:date;not null" json:"period_start"`
	PeriodEnd   time.Time `gorm:"type:date;not null" json:"period_end"`
	Notes       *string   `gorm:"type:text" json:"notes,omitempty"`

	// File metadata
	FilePath string `gorm:"not null" json:"-"`
	FileSize int64  `gorm:"not null" json:"file_size"`
	FileName string `gorm:"not null" json:"file_name"`
	MimeType string `json:"mime_type"`

	// Analysis
	Status         LogStatus   `gorm:"size:20;not null;index" json:"status"`
	AnomalyType    AnomalyType `gorm:"size:32;not null;index" json:"anomaly_type"`
	RiskLevel      RiskLevel   `gorm:"size:10;not null;index" json:"risk_level"`
	AnomalyDetails string      `gorm:"type:text" json:"anomaly_details,omitempty"`
	AnalysisResult string      `gorm:"type:text" json:"analysis_result,omitempty"`
	ParseFailed    bool        `gorm:"not null;default:false" json:"parse_failed"`
	ParseError     *string     `gorm:"type:text" json:"parse_error,omitempty"`
	Statistics     Statistics  `gorm:"embedded;embeddedPrefix:stat_" json:"statistics"`

	// Review
	ReviewerID  *uint      `gorm:"index" json:"reviewer_id,omitempty"`
	ReviewedAt  *time.Time `json:"review_time,omitempty"`
	ReviewNotes *string    `gorm:"type:text" json:"review_notes,omitempty"`

	// Action back-reference
	ActionTaken bool    `gorm:"not null;default:false" json:"action_taken"`
	ActionID    *string `gorm:"size:36" json:"action_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for DrivingLog
func (DrivingLog) TableName() string {
	return "driving_logs"
}

// BeforeCreate assigns an id when the caller has not
func (l *DrivingLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	return nil
}

// InitialStatus is the status a freshly classified log starts in
func InitialStatus(anomaly AnomalyType) LogStatus {
	if anomaly != AnomalyNormal {
		return LogStatusFlagged
	}
	return LogStatusSubmitted
}

// MayStartReview returns true if the log can be moved to UNDER_REVIEW
func (l *DrivingLog) MayStartReview() bool {
	return l.Status == LogStatusSubmitted || l.Status == LogStatusFlagged
}

// MayReview returns true if a final review outcome can still be recorded
func (l *DrivingLog) MayReview() bool {
	return !l.Status.Terminal()
}

// DaysInPeriod is the inclusive number of days covered by the log
func (l *DrivingLog) DaysInPeriod() int {
	return DaysBetween(l.PeriodStart, l.PeriodEnd) + 1
}
