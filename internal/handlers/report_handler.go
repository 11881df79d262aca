package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sjperalta/interlock-api/internal/services"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type ReportHandler struct {
	exportService *services.ExportService
}

func NewReportHandler(exportService *services.ExportService) *ReportHandler {
	return &ReportHandler{exportService: exportService}
}

// Summary returns the compliance counters as JSON
// @Summary Compliance summary
// @Description Get the headline compliance counters
// @Tags Reports
// @Produce json
// @Success 200 {object} services.ComplianceSummary
// @Router /reports/summary [get]
func (h *ReportHandler) Summary(c *gin.Context) {
	summary, err := h.exportService.Summary(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// ComplianceXLSX downloads the compliance workbook
// @Summary Compliance workbook
// @Description Download the compliance report as XLSX
// @Tags Reports
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Success 200 {file} file
// @Router /reports/compliance_xlsx [get]
func (h *ReportHandler) ComplianceXLSX(c *gin.Context) {
	data, filename, err := h.exportService.ExportComplianceXLSX(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	c.Data(http.StatusOK, xlsxContentType, data)
}

// SchedulesCSV downloads every schedule as CSV
// @Summary Schedules CSV
// @Description Download every schedule with its D-day as CSV
// @Tags Reports
// @Produce text/csv
// @Success 200 {file} file
// @Router /reports/schedules_csv [get]
func (h *ReportHandler) SchedulesCSV(c *gin.Context) {
	data, filename, err := h.exportService.ExportSchedulesCSV(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	c.Data(http.StatusOK, "text/csv", data)
}

// SubjectPDF downloads one subject's compliance record
// @Summary Subject compliance record
// @Description Download one subject's schedule, logs and actions as PDF
// @Tags Reports
// @Produce application/pdf
// @Param subject_id path int true "Subject ID"
// @Success 200 {file} file
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /reports/subjects/{subject_id}/pdf [get]
func (h *ReportHandler) SubjectPDF(c *gin.Context) {
	subjectID, ok := uintParam(c, "subject_id")
	if !ok {
		return
	}
	data, filename, err := h.exportService.ExportSubjectPDF(c.Request.Context(), subjectID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	c.Data(http.StatusOK, "application/pdf", data)
}
