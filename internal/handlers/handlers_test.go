package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sjperalta/interlock-api/internal/authority"
	"github.com/sjperalta/interlock-api/internal/config"
	"github.com/sjperalta/interlock-api/internal/middleware"
	"github.com/sjperalta/interlock-api/internal/models"
	"github.com/sjperalta/interlock-api/internal/repository/memstore"
	"github.com/sjperalta/interlock-api/internal/services"
	"github.com/sjperalta/interlock-api/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testAPI struct {
	router *gin.Engine
	svcs   *services.Services
	auth   *authority.Mock
}

func newTestAPI(t *testing.T, maxUploadBytes int64) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	local, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	auth := authority.NewMock()
	svcs := services.NewServices(services.Deps{
		Repos:     memstore.New().Repositories(),
		Blobs:     local,
		Authority: auth,
		Config: &config.Config{
			SweepWorkers:      2,
			ReminderDaysAhead: 3,
			LogMaxRows:        1000,
			AuthorityTimeout:  time.Second,
		},
	})
	now := time.Date(2024, 3, 10, 9, 30, 0, 0, time.UTC)
	svcs.SetClock(func() time.Time { return now })

	router := gin.New()
	router.Use(middleware.RequestLogger(), middleware.Actor())
	RegisterRoutes(router, NewHandlers(svcs, maxUploadBytes))
	return &testAPI{router: router, svcs: svcs, auth: auth}
}

func (a *testAPI) do(t *testing.T, method, path string, body any, actor uint) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if actor != 0 {
		req.Header.Set(middleware.ActorHeader, fmt.Sprint(actor))
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func (a *testAPI) upload(t *testing.T, fields map[string]string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if content != nil {
		part, err := mw.CreateFormFile("log_file", "log.csv")
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/logs", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func logFields(subjectID uint) map[string]string {
	return map[string]string{
		"device_id":    fmt.Sprint(subjectID + 1000),
		"subject_id":   fmt.Sprint(subjectID),
		"period_start": "2024-03-01",
		"period_end":   "2024-03-07",
	}
}

func csvBody(rows ...string) []byte {
	var b strings.Builder
	b.WriteString("timestamp,testResult,deviceStatus,alcoholLevel\n")
	for i, row := range rows {
		fmt.Fprintf(&b, "2024-03-%02dT08:00:00,%s\n", i%28+1, row)
	}
	return []byte(b.String())
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

type logEnvelope struct {
	Log models.DrivingLog `json:"log"`
}

type actionEnvelope struct {
	Action models.AdminAction `json:"action"`
}

type scheduleEnvelope struct {
	Schedule models.ScheduleResponse `json:"schedule"`
}

func TestLogRoutes_SubmitShowReview(t *testing.T) {
	api := newTestAPI(t, 1<<20)

	// One clean test per day of the period
	w := api.upload(t, logFields(7), csvBody(
		"PASS,OK,0.0000", "PASS,OK,0.0100", "PASS,OK,0.0100", "PASS,OK,0.0000",
		"PASS,OK,0.0100", "PASS,OK,0.0000", "PASS,OK,0.0100",
	))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[logEnvelope](t, w).Log
	assert.Equal(t, models.LogStatusSubmitted, created.Status)
	assert.Equal(t, models.AnomalyNormal, created.AnomalyType)
	assert.Equal(t, 7, created.Statistics.TotalTests)

	// Fewer tests than days in the period is flagged on arrival
	w = api.upload(t, logFields(8), csvBody("PASS,OK,0.0000", "PASS,OK,0.0100"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	sparse := decode[logEnvelope](t, w).Log
	assert.Equal(t, models.LogStatusFlagged, sparse.Status)
	assert.Equal(t, models.AnomalyDataInconsistency, sparse.AnomalyType)

	w = api.do(t, http.MethodPost, "/api/v1/logs/"+sparse.ID+"/review", gin.H{"outcome": "REJECTED"}, 3)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, models.LogStatusRejected, decode[logEnvelope](t, w).Log.Status)

	w = api.do(t, http.MethodGet, "/api/v1/logs/"+created.ID, nil, 0)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, created.ID, decode[logEnvelope](t, w).Log.ID)

	w = api.do(t, http.MethodPost, "/api/v1/logs/"+created.ID+"/review", gin.H{"review": gin.H{"outcome": "approved"}}, 3)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	reviewed := decode[logEnvelope](t, w).Log
	assert.Equal(t, models.LogStatusApproved, reviewed.Status)
	require.NotNil(t, reviewed.ReviewerID)
	assert.EqualValues(t, 3, *reviewed.ReviewerID)

	w = api.do(t, http.MethodPost, "/api/v1/logs/"+created.ID+"/review", gin.H{"outcome": "REJECTED"}, 3)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = api.do(t, http.MethodPost, "/api/v1/logs/"+created.ID+"/review", gin.H{"outcome": "FLAGGED"}, 3)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(t, http.MethodGet, "/api/v1/logs/missing", nil, 0)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLogRoutes_SubmitRejectsBadRequests(t *testing.T) {
	api := newTestAPI(t, 1<<20)

	w := api.upload(t, logFields(7), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	fields := logFields(7)
	fields["period_start"] = "03/01/2024"
	w = api.upload(t, fields, csvBody("PASS,OK,0.0000"))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	fields = logFields(7)
	fields["period_end"] = "2024-02-01"
	w = api.upload(t, fields, csvBody("PASS,OK,0.0000"))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	small := newTestAPI(t, 64)
	w = small.upload(t, logFields(7), csvBody("PASS,OK,0.0000", "PASS,OK,0.0000", "PASS,OK,0.0000"))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestLogRoutes_FlaggedDownloadAndDeviceQueries(t *testing.T) {
	api := newTestAPI(t, 1<<20)

	content := csvBody("PASS,TAMPERING,0.0100", "PASS,BYPASS,0.0100", "PASS,TAMPERING,0.0100", "PASS,OK,0.0100")
	w := api.upload(t, logFields(7), content)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	flagged := decode[logEnvelope](t, w).Log
	assert.Equal(t, models.LogStatusFlagged, flagged.Status)

	w = api.do(t, http.MethodGet, "/api/v1/logs/flagged", nil, 0)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[struct {
		Logs []models.DrivingLog `json:"logs"`
	}](t, w).Logs, 1)

	w = api.do(t, http.MethodGet, "/api/v1/logs?status=flagged&subject_id=7", nil, 0)
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[struct {
		Logs       []models.DrivingLog `json:"logs"`
		Pagination struct {
			Total int64 `json:"total"`
		} `json:"pagination"`
	}](t, w)
	assert.EqualValues(t, 1, page.Pagination.Total)

	w = api.do(t, http.MethodGet, "/api/v1/logs/"+flagged.ID+"/download", nil, 0)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, content, w.Body.Bytes())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "log.csv")

	w = api.do(t, http.MethodGet, "/api/v1/devices/1007/logs/latest", nil, 0)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, flagged.ID, decode[logEnvelope](t, w).Log.ID)

	w = api.do(t, http.MethodGet, "/api/v1/devices/1007/stats", nil, 0)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode[services.DeviceLogStats](t, w).LogCount)

	w = api.do(t, http.MethodGet, "/api/v1/devices/zero/logs", nil, 0)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// The flagged log notified its subject
	w = api.do(t, http.MethodGet, "/api/v1/notifications", nil, 7)
	require.Equal(t, http.StatusOK, w.Code)
	inbox := decode[struct {
		Notifications []models.NotificationResponse `json:"notifications"`
		Unread        int64                         `json:"unread"`
	}](t, w)
	require.Len(t, inbox.Notifications, 1)
	assert.EqualValues(t, 1, inbox.Unread)
	assert.Equal(t, models.NotificationTypeLogFlagged, inbox.Notifications[0].NotificationType)

	w = api.do(t, http.MethodPost, fmt.Sprintf("/api/v1/notifications/%d/mark_as_read", inbox.Notifications[0].ID), nil, 8)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = api.do(t, http.MethodPost, "/api/v1/notifications/mark_all_as_read", nil, 7)
	require.Equal(t, http.StatusOK, w.Code)
	w = api.do(t, http.MethodGet, "/api/v1/notifications?subject_id=7", nil, 0)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"unread":0`)

	w = api.do(t, http.MethodGet, "/api/v1/notifications", nil, 0)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestScheduleRoutes(t *testing.T) {
	api := newTestAPI(t, 1<<20)

	w := api.do(t, http.MethodPost, "/api/v1/schedules", gin.H{"schedule": gin.H{"subject_id": 7, "device_id": 1007, "frequency_days": 7}}, 1)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[scheduleEnvelope](t, w).Schedule
	assert.Equal(t, "2024-03-17", created.NextDueDate)
	assert.Equal(t, 7, created.DDay)
	assert.Equal(t, "D-7", created.DDayMessage)

	w = api.do(t, http.MethodPost, "/api/v1/schedules", gin.H{"subject_id": 7, "device_id": 1007, "frequency_days": 14}, 1)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 14, decode[scheduleEnvelope](t, w).Schedule.FrequencyDays)

	w = api.do(t, http.MethodPost, "/api/v1/schedules", gin.H{"subject_id": 8, "device_id": 1008, "frequency_days": 10}, 1)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(t, http.MethodPatch, "/api/v1/schedules/7/frequency", gin.H{"frequency_days": 7}, 1)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "WEEKLY", decode[scheduleEnvelope](t, w).Schedule.Frequency)

	w = api.do(t, http.MethodPatch, "/api/v1/schedules/7/frequency", gin.H{"frequency_days": 5}, 1)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(t, http.MethodGet, "/api/v1/schedules/7/d_day", nil, 0)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 7, decode[services.DDayResult](t, w).DDay)

	w = api.do(t, http.MethodGet, "/api/v1/schedules/99", nil, 0)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = api.do(t, http.MethodGet, "/api/v1/schedules/abc", nil, 0)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(t, http.MethodPost, "/api/v1/schedules/sweep?date=2024-03-20", nil, 1)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	report := decode[struct {
		Updated []json.RawMessage `json:"updated"`
	}](t, w)
	assert.Len(t, report.Updated, 1)

	w = api.do(t, http.MethodGet, "/api/v1/schedules/7", nil, 0)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decode[scheduleEnvelope](t, w).Schedule.MissedSubmissions)

	w = api.do(t, http.MethodGet, "/api/v1/schedules/missed?min=1", nil, 0)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[struct {
		Schedules []models.ScheduleResponse `json:"schedules"`
	}](t, w).Schedules, 1)

	w = api.do(t, http.MethodPost, "/api/v1/schedules/sweep?date=tomorrow", nil, 1)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(t, http.MethodDelete, "/api/v1/schedules/7", nil, 1)
	require.Equal(t, http.StatusOK, w.Code)
	w = api.do(t, http.MethodDelete, "/api/v1/schedules/7", nil, 1)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestActionRoutes(t *testing.T) {
	api := newTestAPI(t, 1<<20)

	w := api.do(t, http.MethodPost, "/api/v1/actions", gin.H{"action": gin.H{"subject_id": 7, "action_type": "license_suspension", "detail": "three failed tests"}}, 1)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	action := decode[actionEnvelope](t, w).Action
	assert.Equal(t, models.ActionStatusCompleted, action.Status)
	assert.True(t, action.AuthoritySynced)
	assert.EqualValues(t, 1, action.AdminID)

	w = api.do(t, http.MethodPost, "/api/v1/actions/"+action.ID+"/mark_as_read", nil, 8)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = api.do(t, http.MethodPost, "/api/v1/actions/"+action.ID+"/mark_as_read", gin.H{"subject_id": 7}, 0)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, decode[actionEnvelope](t, w).Action.IsRead)

	w = api.do(t, http.MethodPost, "/api/v1/actions/"+action.ID+"/cancel", nil, 1)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = api.do(t, http.MethodPost, "/api/v1/actions", gin.H{"subject_id": 7, "action_type": "tow_vehicle"}, 1)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(t, http.MethodPost, "/api/v1/actions", gin.H{"subject_id": 7, "action_type": "WARNING_NOTIFICATION", "log_id": "no-such-log"}, 1)
	assert.Equal(t, http.StatusNotFound, w.Code)

	api.auth.Err = errors.New("authority unreachable")
	w = api.do(t, http.MethodPost, "/api/v1/actions", gin.H{"subject_id": 7, "action_type": "LICENSE_REVOCATION"}, 1)
	require.Equal(t, http.StatusCreated, w.Code)
	failed := decode[actionEnvelope](t, w).Action
	assert.Equal(t, models.ActionStatusFailed, failed.Status)
	require.NotNil(t, failed.ErrorDetail)
	assert.Contains(t, *failed.ErrorDetail, "authority unreachable")

	w = api.do(t, http.MethodGet, "/api/v1/subjects/7/actions", nil, 0)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[struct {
		Actions []models.AdminAction `json:"actions"`
	}](t, w).Actions, 2)

	w = api.do(t, http.MethodGet, "/api/v1/actions?status=failed", nil, 0)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[struct {
		Actions []models.AdminAction `json:"actions"`
	}](t, w).Actions, 1)

	w = api.do(t, http.MethodGet, "/api/v1/actions?status=done", nil, 0)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(t, http.MethodGet, "/api/v1/actions/missing", nil, 0)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReportRoutes(t *testing.T) {
	api := newTestAPI(t, 1<<20)

	w := api.do(t, http.MethodPost, "/api/v1/schedules", gin.H{"subject_id": 7, "device_id": 1007, "frequency_days": 7}, 1)
	require.Equal(t, http.StatusCreated, w.Code)

	w = api.do(t, http.MethodGet, "/api/v1/reports/summary", nil, 0)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decode[services.ComplianceSummary](t, w).Schedules)

	w = api.do(t, http.MethodGet, "/api/v1/reports/compliance_xlsx", nil, 0)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "compliance_report_2024-03-10.xlsx")
	assert.NotEmpty(t, w.Body.Bytes())

	w = api.do(t, http.MethodGet, "/api/v1/reports/schedules_csv", nil, 0)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Body.String(), "subject_id,"))

	w = api.do(t, http.MethodGet, "/api/v1/reports/subjects/7/pdf", nil, 0)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(w.Body.String(), "%PDF-"))

	w = api.do(t, http.MethodGet, "/api/v1/reports/subjects/8/pdf", nil, 0)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = api.do(t, http.MethodGet, "/api/v1/audits", nil, 0)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total":1`)
}

func TestHealthJobsAndMetrics(t *testing.T) {
	api := newTestAPI(t, 1<<20)

	w := api.do(t, http.MethodGet, "/api/v1/health", nil, 0)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)

	w = api.do(t, http.MethodGet, "/api/v1/jobs/status", nil, 0)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"running":false`)

	w = api.do(t, http.MethodGet, "/api/v1/jobs/status?job=overdue_sweep", nil, 0)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = api.do(t, http.MethodGet, "/metrics", nil, 0)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "interlock_http_requests_total")
}
