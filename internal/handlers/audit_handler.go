package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sjperalta/interlock-api/internal/services"
)

type AuditHandler struct {
	auditService *services.AuditService
}

func NewAuditHandler(auditService *services.AuditService) *AuditHandler {
	return &AuditHandler{auditService: auditService}
}

// Index lists audit entries, newest first
// @Summary List audit entries
// @Description Get a paginated list of audit entries
// @Tags Audits
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param per_page query int false "Items per page" default(50)
// @Success 200 {object} map[string]interface{}
// @Router /audits [get]
func (h *AuditHandler) Index(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "50"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 50
	}
	offset := (page - 1) * perPage

	logs, total, err := h.auditService.List(c.Request.Context(), perPage, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"audits": logs, "pagination": gin.H{"total": total, "page": page, "per_page": perPage}})
}

// History lists the audit trail of one entity
// @Summary Entity history
// @Description Get the audit trail of one entity
// @Tags Audits
// @Produce json
// @Param entity path string true "Entity (DrivingLog, SubmissionSchedule, AdminAction)"
// @Param entity_id path string true "Entity ID"
// @Success 200 {object} []models.AuditLog
// @Router /audits/{entity}/{entity_id} [get]
func (h *AuditHandler) History(c *gin.Context) {
	logs, err := h.auditService.History(c.Request.Context(), c.Param("entity"), c.Param("entity_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"audits": logs})
}
