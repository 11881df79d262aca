package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SubmissionFrequency is the number of days between required submissions
type SubmissionFrequency int

// Submission frequency constants
const (
	FrequencyWeekly    SubmissionFrequency = 7
	FrequencyBiweekly  SubmissionFrequency = 14
	FrequencyMonthly   SubmissionFrequency = 30
	FrequencyQuarterly SubmissionFrequency = 90
)

// Valid reports whether f is one of the supported cadences
func (f SubmissionFrequency) Valid() bool {
	switch f {
	case FrequencyWeekly, FrequencyBiweekly, FrequencyMonthly, FrequencyQuarterly:
		return true
	}
	return false
}

// Days returns the cadence as a day count
func (f SubmissionFrequency) Days() int {
	return int(f)
}

// String returns the cadence name
func (f SubmissionFrequency) String() string {
	switch f {
	case FrequencyWeekly:
		return "WEEKLY"
	case FrequencyBiweekly:
		return "BIWEEKLY"
	case FrequencyMonthly:
		return "MONTHLY"
	case FrequencyQuarterly:
		return "QUARTERLY"
	}
	return fmt.Sprintf("EVERY_%d_DAYS", int(f))
}

// SubmissionSchedule is the per-subject log submission cadence
type SubmissionSchedule struct {
	ID                 string              `gorm:"primaryKey;size:36" json:"schedule_id"`
	SubjectID          uint                `gorm:"not null;uniqueIndex" json:"subject_id"`
	DeviceID           uint                `gorm:"not null;index" json:"device_id"`
	FrequencyDays      SubmissionFrequency `gorm:"not null" json:"frequency_days"`
	LastSubmissionDate *time.Time          `gorm:"type:date" json:"last_submission_date"`
	NextDueDate        time.Time           `gorm:"type:date;not null;index" json:"next_due_date"`
	MissedSubmissions  int                 `gorm:"not null;default:0" json:"missed_submissions"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
}

// TableName specifies the table name for SubmissionSchedule
func (SubmissionSchedule) TableName() string {
	return "submission_schedules"
}

// BeforeCreate assigns an id when the caller has not
func (s *SubmissionSchedule) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// Recompute sets the next due date one cadence after the last submission,
// or after today when nothing has been submitted yet.
func (s *SubmissionSchedule) Recompute(today time.Time) {
	base := DateOf(today)
	if s.LastSubmissionDate != nil {
		base = DateOf(*s.LastSubmissionDate)
	}
	s.NextDueDate = AddDays(base, s.FrequencyDays.Days())
}

// RecordSubmission applies a submission made on date. The miss counter
// resets only when date is on or before the deadline that was in force
// before this submission. It reports whether the submission was on time.
func (s *SubmissionSchedule) RecordSubmission(date time.Time) bool {
	date = DateOf(date)
	previousDue := DateOf(s.NextDueDate)

	s.LastSubmissionDate = &date
	s.NextDueDate = AddDays(date, s.FrequencyDays.Days())

	onTime := !date.After(previousDue)
	if onTime {
		s.MissedSubmissions = 0
	}
	return onTime
}

// IsOverdue returns true if the due date is strictly before today
func (s *SubmissionSchedule) IsOverdue(today time.Time) bool {
	return DateOf(s.NextDueDate).Before(DateOf(today))
}

// MarkMissed records one missed deadline and moves the deadline forward by
// one cadence from the missed date.
func (s *SubmissionSchedule) MarkMissed() {
	s.MissedSubmissions++
	s.NextDueDate = AddDays(s.NextDueDate, s.FrequencyDays.Days())
}

// DDay is the signed day count from today to the next due date
func (s *SubmissionSchedule) DDay(today time.Time) int {
	return DaysBetween(today, s.NextDueDate)
}

// DDayMessage formats a D-day value: D-3 remaining, D-Day, D+2 overdue
func DDayMessage(dDay int) string {
	switch {
	case dDay > 0:
		return fmt.Sprintf("D-%d", dDay)
	case dDay == 0:
		return "D-Day"
	default:
		return fmt.Sprintf("D+%d", -dDay)
	}
}

// ScheduleResponse is the JSON response format for schedules
type ScheduleResponse struct {
	ID                 string    `json:"schedule_id"`
	SubjectID          uint      `json:"subject_id"`
	DeviceID           uint      `json:"device_id"`
	FrequencyDays      int       `json:"frequency_days"`
	Frequency          string    `json:"frequency"`
	LastSubmissionDate *string   `json:"last_submission_date"`
	NextDueDate        string    `json:"next_due_date"`
	MissedSubmissions  int       `json:"missed_submissions"`
	DDay               int       `json:"d_day"`
	DDayMessage        string    `json:"d_day_message"`
	Overdue            bool      `json:"overdue"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// ToResponse converts SubmissionSchedule to ScheduleResponse as seen on today
func (s *SubmissionSchedule) ToResponse(today time.Time) ScheduleResponse {
	dDay := s.DDay(today)
	resp := ScheduleResponse{
		ID:                s.ID,
		SubjectID:         s.SubjectID,
		DeviceID:          s.DeviceID,
		FrequencyDays:     s.FrequencyDays.Days(),
		Frequency:         s.FrequencyDays.String(),
		NextDueDate:       s.NextDueDate.Format(DateLayout),
		MissedSubmissions: s.MissedSubmissions,
		DDay:              dDay,
		DDayMessage:       DDayMessage(dDay),
		Overdue:           dDay < 0,
		UpdatedAt:         s.UpdatedAt,
	}
	if s.LastSubmissionDate != nil {
		last := s.LastSubmissionDate.Format(DateLayout)
		resp.LastSubmissionDate = &last
	}
	return resp
}
