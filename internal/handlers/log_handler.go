package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sjperalta/interlock-api/internal/models"
	"github.com/sjperalta/interlock-api/internal/services"
)

// DefaultMaxUploadBytes caps a log upload when no limit is configured
const DefaultMaxUploadBytes = 20 << 20

type LogHandler struct {
	logService     *services.LogService
	maxUploadBytes int64
}

func NewLogHandler(logService *services.LogService, maxUploadBytes int64) *LogHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadBytes
	}
	return &LogHandler{logService: logService, maxUploadBytes: maxUploadBytes}
}

// Submit accepts a multipart upload with a log_file part and the
// device_id, subject_id, period_start, period_end and notes fields.
// @Summary Submit driving log
// @Description Upload a device CSV export for a subject and period; the log is parsed and classified on arrival
// @Tags Logs
// @Accept multipart/form-data
// @Produce json
// @Param log_file formData file true "Device CSV export"
// @Param device_id formData int true "Device ID"
// @Param subject_id formData int true "Subject ID"
// @Param period_start formData string true "Period start (YYYY-MM-DD)"
// @Param period_end formData string true "Period end (YYYY-MM-DD)"
// @Param notes formData string false "Notes"
// @Success 201 {object} models.DrivingLog
// @Failure 400 {object} map[string]string
// @Failure 413 {object} map[string]string
// @Security ActorID
// @Router /logs [post]
func (h *LogHandler) Submit(c *gin.Context) {
	// Leave room for the form fields around the file
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+64<<10)

	file, header, err := c.Request.FormFile("log_file")
	if err != nil {
		badRequest(c, "log_file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxUploadBytes+1))
	if err != nil {
		badRequest(c, "could not read log_file")
		return
	}
	if int64(len(data)) > h.maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("log_file exceeds %d bytes", h.maxUploadBytes)})
		return
	}

	deviceID, err := strconv.ParseUint(c.PostForm("device_id"), 10, 32)
	if err != nil {
		badRequest(c, "invalid device_id")
		return
	}
	subjectID, err := strconv.ParseUint(c.PostForm("subject_id"), 10, 32)
	if err != nil {
		badRequest(c, "invalid subject_id")
		return
	}
	periodStart, err := models.ParseDate(c.PostForm("period_start"))
	if err != nil {
		badRequest(c, "period_start must be YYYY-MM-DD")
		return
	}
	periodEnd, err := models.ParseDate(c.PostForm("period_end"))
	if err != nil {
		badRequest(c, "period_end must be YYYY-MM-DD")
		return
	}

	input := services.SubmitInput{
		DeviceID:    uint(deviceID),
		SubjectID:   uint(subjectID),
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
		FileName:    header.Filename,
		MimeType:    header.Header.Get("Content-Type"),
		Data:        data,
	}
	if notes := strings.TrimSpace(c.PostForm("notes")); notes != "" {
		input.Notes = &notes
	}

	log, err := h.logService.Submit(c.Request.Context(), input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"log": log})
}

// Index lists logs, filtered by status, anomaly_type, risk_level, subject_id or device_id
// @Summary List driving logs
// @Description Get a paginated list of driving logs
// @Tags Logs
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param per_page query int false "Items per page" default(20)
// @Param status query string false "Filter by status"
// @Param anomaly_type query string false "Filter by anomaly type"
// @Param risk_level query string false "Filter by risk level"
// @Param subject_id query int false "Filter by subject"
// @Param device_id query int false "Filter by device"
// @Success 200 {object} map[string]interface{}
// @Router /logs [get]
func (h *LogHandler) Index(c *gin.Context) {
	query := listQuery(c, "status", "anomaly_type", "risk_level", "subject_id", "device_id")
	for _, key := range []string{"status", "anomaly_type", "risk_level"} {
		if val, ok := query.Filters[key]; ok {
			query.Filters[key] = strings.ToUpper(val)
		}
	}

	logs, total, err := h.logService.List(c.Request.Context(), query)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs, "pagination": pagination(query, total)})
}

// @Summary Get driving log
// @Description Get a driving log by ID
// @Tags Logs
// @Produce json
// @Param log_id path string true "Log ID"
// @Success 200 {object} models.DrivingLog
// @Failure 404 {object} map[string]string
// @Router /logs/{log_id} [get]
func (h *LogHandler) Show(c *gin.Context) {
	log, err := h.logService.FindByID(c.Request.Context(), c.Param("log_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"log": log})
}

// @Summary Flagged logs
// @Description Get every log with an anomaly other than NORMAL
// @Tags Logs
// @Produce json
// @Success 200 {object} []models.DrivingLog
// @Router /logs/flagged [get]
func (h *LogHandler) Flagged(c *gin.Context) {
	logs, err := h.logService.FindFlagged(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs})
}

// PendingReview lists logs that wait for a reviewer decision
// @Summary Logs pending review
// @Description Get logs that are FLAGGED or UNDER_REVIEW
// @Tags Logs
// @Produce json
// @Success 200 {object} []models.DrivingLog
// @Router /logs/pending_review [get]
func (h *LogHandler) PendingReview(c *gin.Context) {
	logs, err := h.logService.FindPendingReview(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs})
}

// @Summary Logs by subject
// @Description Get every log submitted for a subject
// @Tags Logs
// @Produce json
// @Param subject_id path int true "Subject ID"
// @Success 200 {object} []models.DrivingLog
// @Failure 400 {object} map[string]string
// @Router /subjects/{subject_id}/logs [get]
func (h *LogHandler) BySubject(c *gin.Context) {
	subjectID, ok := uintParam(c, "subject_id")
	if !ok {
		return
	}
	logs, err := h.logService.FindBySubject(c.Request.Context(), subjectID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs})
}

// @Summary Logs by device
// @Description Get every log submitted from a device
// @Tags Logs
// @Produce json
// @Param device_id path int true "Device ID"
// @Success 200 {object} []models.DrivingLog
// @Failure 400 {object} map[string]string
// @Router /devices/{device_id}/logs [get]
func (h *LogHandler) ByDevice(c *gin.Context) {
	deviceID, ok := uintParam(c, "device_id")
	if !ok {
		return
	}
	logs, err := h.logService.FindByDevice(c.Request.Context(), deviceID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs})
}

// @Summary Latest log by device
// @Description Get the most recent log from a device
// @Tags Logs
// @Produce json
// @Param device_id path int true "Device ID"
// @Success 200 {object} models.DrivingLog
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /devices/{device_id}/logs/latest [get]
func (h *LogHandler) LatestByDevice(c *gin.Context) {
	deviceID, ok := uintParam(c, "device_id")
	if !ok {
		return
	}
	log, err := h.logService.FindLatestByDevice(c.Request.Context(), deviceID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"log": log})
}

// @Summary Device log stats
// @Description Get the number of logs submitted from a device
// @Tags Logs
// @Produce json
// @Param device_id path int true "Device ID"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Router /devices/{device_id}/stats [get]
func (h *LogHandler) DeviceStats(c *gin.Context) {
	deviceID, ok := uintParam(c, "device_id")
	if !ok {
		return
	}
	stats, err := h.logService.DeviceStats(c.Request.Context(), deviceID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

type startReviewRequest struct {
	ReviewerID uint `json:"reviewer_id"`
}

// StartReview moves a log to UNDER_REVIEW
// @Summary Start review
// @Description Move a SUBMITTED or FLAGGED log to UNDER_REVIEW
// @Tags Logs
// @Accept json
// @Produce json
// @Param log_id path string true "Log ID"
// @Param body body startReviewRequest false "Reviewer"
// @Success 200 {object} models.DrivingLog
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Security ActorID
// @Router /logs/{log_id}/start_review [post]
func (h *LogHandler) StartReview(c *gin.Context) {
	var req startReviewRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
	}

	log, err := h.logService.StartReview(c.Request.Context(), c.Param("log_id"), actorOr(c, req.ReviewerID))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"log": log})
}

type reviewRequest struct {
	Outcome    string  `json:"outcome" binding:"required"`
	ReviewerID uint    `json:"reviewer_id"`
	Notes      *string `json:"notes"`
}

// Review records APPROVED or REJECTED on a log
// @Summary Review log
// @Description Approve or reject a log that is not yet reviewed
// @Tags Logs
// @Accept json
// @Produce json
// @Param log_id path string true "Log ID"
// @Param body body reviewRequest true "Review outcome"
// @Success 200 {object} models.DrivingLog
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Security ActorID
// @Router /logs/{log_id}/review [post]
func (h *LogHandler) Review(c *gin.Context) {
	var req reviewRequest
	if err := BindNestedOrFlat(c, "review", &req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if req.Outcome == "" {
		badRequest(c, "outcome is required")
		return
	}

	log, err := h.logService.Review(c.Request.Context(), services.ReviewInput{
		LogID:      c.Param("log_id"),
		Outcome:    models.LogStatus(strings.ToUpper(req.Outcome)),
		ReviewerID: actorOr(c, req.ReviewerID),
		Notes:      req.Notes,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"log": log})
}

// Download streams the raw log file back
// @Summary Download raw log
// @Description Download the original uploaded file
// @Tags Logs
// @Produce octet-stream
// @Param log_id path string true "Log ID"
// @Success 200 {file} file
// @Failure 404 {object} map[string]string
// @Router /logs/{log_id}/download [get]
func (h *LogHandler) Download(c *gin.Context) {
	dl, err := h.logService.Download(c.Request.Context(), c.Param("log_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	defer dl.Body.Close()

	mimeType := dl.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	c.DataFromReader(http.StatusOK, dl.Size, mimeType, dl.Body, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", dl.FileName),
	})
}
