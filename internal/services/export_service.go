package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/sjperalta/interlock-api/internal/models"
	"github.com/sjperalta/interlock-api/internal/repository"
	"github.com/xuri/excelize/v2"
)

// ComplianceSummary is the headline numbers of the compliance report
type ComplianceSummary struct {
	GeneratedAt       time.Time `json:"generated_at"`
	Schedules         int       `json:"schedules"`
	Overdue           int       `json:"overdue"`
	WithMissed        int       `json:"with_missed"`
	FlaggedLogs       int       `json:"flagged_logs"`
	PendingReview     int       `json:"pending_review"`
	UnreadActions     int       `json:"unread_actions"`
	FailedActions     int       `json:"failed_actions"`
	UnsyncedLicensing int       `json:"unsynced_licensing"`
}

type complianceData struct {
	summary   ComplianceSummary
	today     time.Time
	overdue   []models.SubmissionSchedule
	flagged   []models.DrivingLog
	failed    []models.AdminAction
	schedules []models.SubmissionSchedule
}

type ExportService struct {
	logRepo      repository.LogRepository
	scheduleRepo repository.ScheduleRepository
	actionRepo   repository.ActionRepository
	now          func() time.Time
}

func NewExportService(logRepo repository.LogRepository, scheduleRepo repository.ScheduleRepository, actionRepo repository.ActionRepository) *ExportService {
	return &ExportService{
		logRepo:      logRepo,
		scheduleRepo: scheduleRepo,
		actionRepo:   actionRepo,
		now:          time.Now,
	}
}

func (s *ExportService) collect(ctx context.Context) (*complianceData, error) {
	now := s.now().UTC()
	today := models.DateOf(now)

	schedules, err := s.scheduleRepo.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	overdue, err := s.scheduleRepo.FindOverdue(ctx, today)
	if err != nil {
		return nil, err
	}
	flagged, err := s.logRepo.FindFlagged(ctx)
	if err != nil {
		return nil, err
	}
	pending, err := s.logRepo.FindPendingReview(ctx)
	if err != nil {
		return nil, err
	}
	unread, err := s.actionRepo.FindUnread(ctx)
	if err != nil {
		return nil, err
	}
	failed, err := s.actionRepo.FindByStatus(ctx, models.ActionStatusFailed)
	if err != nil {
		return nil, err
	}
	completed, err := s.actionRepo.FindByStatus(ctx, models.ActionStatusCompleted)
	if err != nil {
		return nil, err
	}

	summary := ComplianceSummary{
		GeneratedAt:   now,
		Schedules:     len(schedules),
		Overdue:       len(overdue),
		FlaggedLogs:   len(flagged),
		PendingReview: len(pending),
		UnreadActions: len(unread),
		FailedActions: len(failed),
	}
	for _, sch := range schedules {
		if sch.MissedSubmissions > 0 {
			summary.WithMissed++
		}
	}
	for _, a := range completed {
		if a.ActionType.AffectsLicense() && !a.AuthoritySynced {
			summary.UnsyncedLicensing++
		}
	}

	return &complianceData{
		summary:   summary,
		today:     today,
		overdue:   overdue,
		flagged:   flagged,
		failed:    failed,
		schedules: schedules,
	}, nil
}

// Summary returns the headline compliance numbers
func (s *ExportService) Summary(ctx context.Context) (*ComplianceSummary, error) {
	data, err := s.collect(ctx)
	if err != nil {
		return nil, err
	}
	return &data.summary, nil
}

// ExportComplianceXLSX builds the compliance workbook: summary, overdue
// schedules, flagged logs and failed actions.
func (s *ExportService) ExportComplianceXLSX(ctx context.Context) ([]byte, string, error) {
	data, err := s.collect(ctx)
	if err != nil {
		return nil, "", err
	}

	f := excelize.NewFile()
	defer f.Close()

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
	})
	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 14},
	})

	// Summary
	sheet := "Summary"
	_ = f.SetSheetName("Sheet1", sheet)
	_ = f.SetCellValue(sheet, "A1", "Compliance report")
	_ = f.SetCellStyle(sheet, "A1", "A1", titleStyle)
	_ = f.SetCellValue(sheet, "A2", "Generated")
	_ = f.SetCellValue(sheet, "B2", data.summary.GeneratedAt.Format(time.RFC3339))

	rows := [][]interface{}{
		{"Metric", "Value"},
		{"Schedules", data.summary.Schedules},
		{"Overdue schedules", data.summary.Overdue},
		{"Schedules with missed submissions", data.summary.WithMissed},
		{"Flagged logs", data.summary.FlaggedLogs},
		{"Logs pending review", data.summary.PendingReview},
		{"Unread actions", data.summary.UnreadActions},
		{"Failed actions", data.summary.FailedActions},
		{"Completed license actions not synced", data.summary.UnsyncedLicensing},
	}
	writeRows(f, sheet, 4, rows)
	_ = f.SetCellStyle(sheet, "A4", "B4", headerStyle)
	_ = f.SetColWidth(sheet, "A", "A", 38)

	// Overdue schedules
	sheet = "Overdue"
	_, _ = f.NewSheet(sheet)
	rows = [][]interface{}{{"Subject", "Device", "Frequency", "Next due", "Missed", "D-day"}}
	for _, sch := range data.overdue {
		rows = append(rows, []interface{}{
			sch.SubjectID, sch.DeviceID, sch.FrequencyDays.String(),
			sch.NextDueDate.Format(models.DateLayout), sch.MissedSubmissions,
			models.DDayMessage(sch.DDay(data.today)),
		})
	}
	writeRows(f, sheet, 1, rows)
	_ = f.SetCellStyle(sheet, "A1", "F1", headerStyle)

	// Flagged logs
	sheet = "Flagged logs"
	_, _ = f.NewSheet(sheet)
	rows = [][]interface{}{{"Log", "Subject", "Device", "Submitted", "Period", "Anomaly", "Risk", "Status", "Actioned"}}
	for _, l := range data.flagged {
		rows = append(rows, []interface{}{
			l.ID, l.SubjectID, l.DeviceID, l.SubmittedAt.Format(time.RFC3339),
			l.PeriodStart.Format(models.DateLayout) + " - " + l.PeriodEnd.Format(models.DateLayout),
			string(l.AnomalyType), string(l.RiskLevel), string(l.Status), l.ActionTaken,
		})
	}
	writeRows(f, sheet, 1, rows)
	_ = f.SetCellStyle(sheet, "A1", "I1", headerStyle)

	// Failed actions
	sheet = "Failed actions"
	_, _ = f.NewSheet(sheet)
	rows = [][]interface{}{{"Action", "Subject", "Admin", "Type", "Created", "Error"}}
	for _, a := range data.failed {
		errText := ""
		if a.ErrorDetail != nil {
			errText = *a.ErrorDetail
		}
		rows = append(rows, []interface{}{
			a.ID, a.SubjectID, a.AdminID, string(a.ActionType), a.CreatedTime.Format(time.RFC3339), errText,
		})
	}
	writeRows(f, sheet, 1, rows)
	_ = f.SetCellStyle(sheet, "A1", "F1", headerStyle)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, "", err
	}

	filename := fmt.Sprintf("compliance_report_%s.xlsx", data.today.Format(models.DateLayout))
	return buf.Bytes(), filename, nil
}

// ExportSchedulesCSV writes every schedule with its D-day as of today
func (s *ExportService) ExportSchedulesCSV(ctx context.Context) ([]byte, string, error) {
	data, err := s.collect(ctx)
	if err != nil {
		return nil, "", err
	}

	buf := new(bytes.Buffer)
	writer := csv.NewWriter(buf)
	_ = writer.Write([]string{"subject_id", "device_id", "frequency_days", "last_submission_date", "next_due_date", "missed_submissions", "d_day"})
	for _, sch := range data.schedules {
		last := ""
		if sch.LastSubmissionDate != nil {
			last = sch.LastSubmissionDate.Format(models.DateLayout)
		}
		_ = writer.Write([]string{
			strconv.FormatUint(uint64(sch.SubjectID), 10),
			strconv.FormatUint(uint64(sch.DeviceID), 10),
			strconv.Itoa(sch.FrequencyDays.Days()),
			last,
			sch.NextDueDate.Format(models.DateLayout),
			strconv.Itoa(sch.MissedSubmissions),
			strconv.Itoa(sch.DDay(data.today)),
		})
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, "", err
	}

	filename := fmt.Sprintf("schedules_%s.csv", data.today.Format(models.DateLayout))
	return buf.Bytes(), filename, nil
}

// ExportSubjectPDF renders one subject's compliance record: schedule state,
// submitted logs and administrative actions.
func (s *ExportService) ExportSubjectPDF(ctx context.Context, subjectID uint) ([]byte, string, error) {
	today := models.DateOf(s.now().UTC())

	schedule, err := s.scheduleRepo.FindBySubject(ctx, subjectID)
	if err != nil {
		return nil, "", notFound(err, "schedule")
	}
	logs, err := s.logRepo.FindBySubject(ctx, subjectID)
	if err != nil {
		return nil, "", err
	}
	actions, err := s.actionRepo.FindBySubject(ctx, subjectID)
	if err != nil {
		return nil, "", err
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(40, 10, fmt.Sprintf("Compliance record: subject %d", subjectID))
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 9)
	pdf.Cell(40, 6, "Generated "+today.Format(models.DateLayout))
	pdf.Ln(10)

	pdf.SetFont("Arial", "B", 12)
	pdf.Cell(40, 10, "Submission schedule")
	pdf.Ln(8)
	pdf.SetFont("Arial", "", 10)
	last := "never"
	if schedule.LastSubmissionDate != nil {
		last = schedule.LastSubmissionDate.Format(models.DateLayout)
	}
	for _, kv := range [][2]string{
		{"Device:", fmt.Sprintf("%d", schedule.DeviceID)},
		{"Frequency:", schedule.FrequencyDays.String()},
		{"Last submission:", last},
		{"Next due:", schedule.NextDueDate.Format(models.DateLayout)},
		{"Status:", models.DDayMessage(schedule.DDay(today))},
		{"Missed submissions:", fmt.Sprintf("%d", schedule.MissedSubmissions)},
	} {
		pdf.Cell(50, 6, kv[0])
		pdf.Cell(60, 6, kv[1])
		pdf.Ln(6)
	}
	pdf.Ln(6)

	pdf.SetFont("Arial", "B", 12)
	pdf.Cell(40, 10, fmt.Sprintf("Driving logs (%d)", len(logs)))
	pdf.Ln(8)
	pdf.SetFont("Arial", "B", 9)
	for _, h := range []struct {
		w    float64
		text string
	}{{45, "Period"}, {40, "Anomaly"}, {20, "Risk"}, {30, "Status"}, {25, "Fail rate"}} {
		pdf.CellFormat(h.w, 6, h.text, "1", 0, "L", false, 0, "")
	}
	pdf.Ln(6)
	pdf.SetFont("Arial", "", 9)
	for _, l := range logs {
		pdf.CellFormat(45, 6, l.PeriodStart.Format(models.DateLayout)+" - "+l.PeriodEnd.Format(models.DateLayout), "1", 0, "L", false, 0, "")
		pdf.CellFormat(40, 6, string(l.AnomalyType), "1", 0, "L", false, 0, "")
		pdf.CellFormat(20, 6, string(l.RiskLevel), "1", 0, "L", false, 0, "")
		pdf.CellFormat(30, 6, string(l.Status), "1", 0, "L", false, 0, "")
		pdf.CellFormat(25, 6, fmt.Sprintf("%.1f%%", l.Statistics.FailureRate()*100), "1", 0, "R", false, 0, "")
		pdf.Ln(6)
	}
	pdf.Ln(6)

	pdf.SetFont("Arial", "B", 12)
	pdf.Cell(40, 10, fmt.Sprintf("Administrative actions (%d)", len(actions)))
	pdf.Ln(8)
	pdf.SetFont("Arial", "", 9)
	for _, a := range actions {
		line := fmt.Sprintf("%s  %s  %s", a.CreatedTime.Format(models.DateLayout), a.ActionType, a.Status)
		if a.ActionType.AffectsLicense() && !a.AuthoritySynced {
			line += "  (not synced with licensing authority)"
		}
		pdf.Cell(0, 6, line)
		pdf.Ln(6)
	}

	buf := new(bytes.Buffer)
	if err := pdf.Output(buf); err != nil {
		return nil, "", err
	}

	filename := fmt.Sprintf("subject_%d_compliance_%s.pdf", subjectID, today.Format(models.DateLayout))
	return buf.Bytes(), filename, nil
}

func writeRows(f *excelize.File, sheet string, firstRow int, rows [][]interface{}) {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, firstRow+i)
		if err != nil {
			continue
		}
		_ = f.SetSheetRow(sheet, cell, &row)
	}
}
