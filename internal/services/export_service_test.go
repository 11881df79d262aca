package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"testing"

	"github.com/sjperalta/interlock-api/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func seedCompliance(t *testing.T, f *fixture) {
	t.Helper()
	ctx := context.Background()

	_, _, err := f.svcs.Schedule.CreateOrUpdate(ctx, weekly(1))
	require.NoError(t, err)
	_, _, err = f.svcs.Schedule.CreateOrUpdate(ctx, ScheduleInput{SubjectID: 2, DeviceID: 1002, FrequencyDays: models.FrequencyMonthly})
	require.NoError(t, err)

	_, err = f.svcs.Log.Submit(ctx, submitInput(1, "2024-03-01", "2024-03-07", csvLog(
		"FAIL,OK,0.2000", "FAIL,OK,0.1500", "PASS,OK,0.0000",
	)))
	require.NoError(t, err)

	f.auth.Err = errors.New("authority offline")
	_, err = f.svcs.Action.CreateAction(ctx, CreateActionInput{SubjectID: 1, AdminID: 9, ActionType: models.ActionLicenseSuspension})
	require.NoError(t, err)
	f.auth.Err = nil

	f.setDate(t, "2024-03-20")
}

func TestExportService_Summary(t *testing.T) {
	f := newFixture(t)
	seedCompliance(t, f)

	summary, err := f.svcs.Export.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Schedules)
	assert.Equal(t, 1, summary.Overdue)
	assert.Equal(t, 1, summary.FlaggedLogs)
	assert.Equal(t, 1, summary.PendingReview)
	assert.Equal(t, 1, summary.FailedActions)
	assert.Equal(t, 1, summary.UnreadActions)
}

func TestExportService_ComplianceXLSX(t *testing.T) {
	f := newFixture(t)
	seedCompliance(t, f)

	data, filename, err := f.svcs.Export.ExportComplianceXLSX(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "compliance_report_2024-03-20.xlsx", filename)

	book, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer book.Close()

	assert.ElementsMatch(t, []string{"Summary", "Overdue", "Flagged logs", "Failed actions"}, book.GetSheetList())

	overdue, err := book.GetRows("Overdue")
	require.NoError(t, err)
	require.Len(t, overdue, 2)
	assert.Equal(t, []string{"1", "1001", "WEEKLY", "2024-03-17", "0", "D+3"}, overdue[1])

	flagged, err := book.GetRows("Flagged logs")
	require.NoError(t, err)
	require.Len(t, flagged, 2)
	assert.Equal(t, string(models.AnomalyExcessiveFailures), flagged[1][5])
	assert.Equal(t, string(models.RiskHigh), flagged[1][6])

	failed, err := book.GetRows("Failed actions")
	require.NoError(t, err)
	require.Len(t, failed, 2)
	assert.Contains(t, failed[1][5], "authority offline")
}

func TestExportService_SchedulesCSV(t *testing.T) {
	f := newFixture(t)
	seedCompliance(t, f)

	data, filename, err := f.svcs.Export.ExportSchedulesCSV(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "schedules_2024-03-20.csv", filename)

	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "subject_id", records[0][0])
	// Ordered by due date: subject 1 is overdue, subject 2 is not
	assert.Equal(t, []string{"1", "1001", "7", "2024-03-10", "2024-03-17", "0", "-3"}, records[1])
	assert.Equal(t, "2", records[2][0])
}

func TestExportService_SubjectPDF(t *testing.T) {
	f := newFixture(t)
	seedCompliance(t, f)

	data, filename, err := f.svcs.Export.ExportSubjectPDF(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "subject_1_compliance_2024-03-20.pdf", filename)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF-")))

	_, _, err = f.svcs.Export.ExportSubjectPDF(context.Background(), 404)
	assert.ErrorIs(t, err, ErrNotFound)
}
