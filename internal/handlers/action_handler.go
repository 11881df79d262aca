package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sjperalta/interlock-api/internal/models"
	"github.com/sjperalta/interlock-api/internal/services"
)

type ActionHandler struct {
	actionService *services.ActionService
}

func NewActionHandler(actionService *services.ActionService) *ActionHandler {
	return &ActionHandler{actionService: actionService}
}

type createActionRequest struct {
	LogID      *string `json:"log_id"`
	SubjectID  uint    `json:"subject_id"`
	AdminID    uint    `json:"admin_id"`
	ActionType string  `json:"action_type"`
	Detail     string  `json:"detail"`
}

// Create records an admin action and executes it. An authority failure is
// still a 201: the returned action carries status FAILED.
// @Summary Create admin action
// @Description Record an administrative action against a subject and execute it
// @Tags Actions
// @Accept json
// @Produce json
// @Param body body createActionRequest true "Action"
// @Success 201 {object} models.AdminAction
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Security ActorID
// @Router /actions [post]
func (h *ActionHandler) Create(c *gin.Context) {
	var req createActionRequest
	if err := BindNestedOrFlat(c, "action", &req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if req.LogID != nil && *req.LogID == "" {
		req.LogID = nil
	}

	action, err := h.actionService.CreateAction(c.Request.Context(), services.CreateActionInput{
		LogID:      req.LogID,
		SubjectID:  req.SubjectID,
		AdminID:    actorOr(c, req.AdminID),
		ActionType: models.ActionType(strings.ToUpper(req.ActionType)),
		Detail:     req.Detail,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"action": action})
}

// @Summary Get admin action
// @Description Get an admin action by ID
// @Tags Actions
// @Produce json
// @Param action_id path string true "Action ID"
// @Success 200 {object} models.AdminAction
// @Failure 404 {object} map[string]string
// @Router /actions/{action_id} [get]
func (h *ActionHandler) Show(c *gin.Context) {
	action, err := h.actionService.FindByID(c.Request.Context(), c.Param("action_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"action": action})
}

// Execute runs a PENDING action
// @Summary Execute admin action
// @Description Execute a PENDING action
// @Tags Actions
// @Produce json
// @Param action_id path string true "Action ID"
// @Success 200 {object} models.AdminAction
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Security ActorID
// @Router /actions/{action_id}/execute [post]
func (h *ActionHandler) Execute(c *gin.Context) {
	action, err := h.actionService.Execute(c.Request.Context(), c.Param("action_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"action": action})
}

type cancelActionRequest struct {
	AdminID uint `json:"admin_id"`
}

// @Summary Cancel admin action
// @Description Cancel a PENDING action
// @Tags Actions
// @Accept json
// @Produce json
// @Param action_id path string true "Action ID"
// @Param body body cancelActionRequest false "Admin"
// @Success 200 {object} models.AdminAction
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Security ActorID
// @Router /actions/{action_id}/cancel [post]
func (h *ActionHandler) Cancel(c *gin.Context) {
	var req cancelActionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
	}

	action, err := h.actionService.Cancel(c.Request.Context(), c.Param("action_id"), actorOr(c, req.AdminID))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"action": action})
}

type markReadRequest struct {
	SubjectID uint `json:"subject_id"`
}

// MarkRead acknowledges an action on behalf of its subject
// @Summary Acknowledge admin action
// @Description Mark an action as read by its subject
// @Tags Actions
// @Accept json
// @Produce json
// @Param action_id path string true "Action ID"
// @Param body body markReadRequest false "Subject"
// @Success 200 {object} models.AdminAction
// @Failure 400 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Security ActorID
// @Router /actions/{action_id}/mark_as_read [post]
func (h *ActionHandler) MarkRead(c *gin.Context) {
	var req markReadRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
	}
	subjectID := actorOr(c, req.SubjectID)
	if subjectID == 0 {
		badRequest(c, "subject_id is required")
		return
	}

	action, err := h.actionService.MarkRead(c.Request.Context(), c.Param("action_id"), subjectID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"action": action})
}

// Index lists actions by ?status=, or every unread action without one
// @Summary List admin actions
// @Description Get unread actions, or actions in a status
// @Tags Actions
// @Produce json
// @Param status query string false "Filter by status"
// @Success 200 {object} []models.AdminAction
// @Router /actions [get]
func (h *ActionHandler) Index(c *gin.Context) {
	var (
		actions []models.AdminAction
		err     error
	)
	if status := c.Query("status"); status != "" {
		actions, err = h.actionService.FindByStatus(c.Request.Context(), models.ActionStatus(strings.ToUpper(status)))
	} else {
		actions, err = h.actionService.FindUnread(c.Request.Context())
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"actions": actions})
}

// BySubject lists a subject's actions, unread first
// @Summary Actions by subject
// @Description Get a subject's actions, unread first then newest
// @Tags Actions
// @Produce json
// @Param subject_id path int true "Subject ID"
// @Success 200 {object} []models.AdminAction
// @Failure 400 {object} map[string]string
// @Router /subjects/{subject_id}/actions [get]
func (h *ActionHandler) BySubject(c *gin.Context) {
	subjectID, ok := uintParam(c, "subject_id")
	if !ok {
		return
	}
	actions, err := h.actionService.ListForSubject(c.Request.Context(), subjectID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"actions": actions})
}

// @Summary Actions by log
// @Description Get the actions raised against a log
// @Tags Actions
// @Produce json
// @Param log_id path string true "Log ID"
// @Success 200 {object} []models.AdminAction
// @Router /logs/{log_id}/actions [get]
func (h *ActionHandler) ByLog(c *gin.Context) {
	actions, err := h.actionService.FindByLog(c.Request.Context(), c.Param("log_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"actions": actions})
}

// @Summary Actions by admin
// @Description Get the actions issued by an administrator
// @Tags Actions
// @Produce json
// @Param admin_id path int true "Admin ID"
// @Success 200 {object} []models.AdminAction
// @Failure 400 {object} map[string]string
// @Router /admins/{admin_id}/actions [get]
func (h *ActionHandler) ByAdmin(c *gin.Context) {
	adminID, ok := uintParam(c, "admin_id")
	if !ok {
		return
	}
	actions, err := h.actionService.FindByAdmin(c.Request.Context(), adminID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"actions": actions})
}
