package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sjperalta/interlock-api/internal/models"
	"github.com/sjperalta/interlock-api/internal/services"
)

type NotificationHandler struct {
	notificationService *services.NotificationService
}

func NewNotificationHandler(notificationService *services.NotificationService) *NotificationHandler {
	return &NotificationHandler{notificationService: notificationService}
}

// subject resolves the notified subject from the actor header or ?subject_id=
func subject(c *gin.Context) (uint, bool) {
	var fallback uint
	if raw := c.Query("subject_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			badRequest(c, "invalid subject_id")
			return 0, false
		}
		fallback = uint(id)
	}
	id := actorOr(c, fallback)
	if id == 0 {
		badRequest(c, "subject_id is required")
		return 0, false
	}
	return id, true
}

// Index lists a subject's notifications, ?status=read|unread narrows the list
// @Summary List notifications
// @Description Get a subject's notifications with the unread count
// @Tags Notifications
// @Produce json
// @Param subject_id query int false "Subject ID when no actor header is sent"
// @Param status query string false "Filter by status"
// @Param page query int false "Page number" default(1)
// @Param per_page query int false "Items per page" default(20)
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Security ActorID
// @Router /notifications [get]
func (h *NotificationHandler) Index(c *gin.Context) {
	subjectID, ok := subject(c)
	if !ok {
		return
	}
	query := listQuery(c, "status")

	notifications, total, err := h.notificationService.FindBySubject(c.Request.Context(), subjectID, query)
	if err != nil {
		respondError(c, err)
		return
	}
	unread, err := h.notificationService.CountUnread(c.Request.Context(), subjectID)
	if err != nil {
		respondError(c, err)
		return
	}

	responses := make([]models.NotificationResponse, 0, len(notifications))
	for i := range notifications {
		responses = append(responses, notifications[i].ToResponse())
	}
	c.JSON(http.StatusOK, gin.H{"notifications": responses, "unread": unread, "pagination": pagination(query, total)})
}

// @Summary Mark notification as read
// @Description Mark one of the subject's notifications as read
// @Tags Notifications
// @Produce json
// @Param notification_id path int true "Notification ID"
// @Success 200 {object} models.Notification
// @Failure 400 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Security ActorID
// @Router /notifications/{notification_id}/mark_as_read [post]
func (h *NotificationHandler) MarkAsRead(c *gin.Context) {
	id, ok := uintParam(c, "notification_id")
	if !ok {
		return
	}
	subjectID, ok := subject(c)
	if !ok {
		return
	}

	notification, err := h.notificationService.MarkAsRead(c.Request.Context(), id, subjectID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notification": notification.ToResponse()})
}

// @Summary Mark all notifications as read
// @Description Mark every notification of the subject as read
// @Tags Notifications
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Security ActorID
// @Router /notifications/mark_all_as_read [post]
func (h *NotificationHandler) MarkAllAsRead(c *gin.Context) {
	subjectID, ok := subject(c)
	if !ok {
		return
	}
	if err := h.notificationService.MarkAllAsRead(c.Request.Context(), subjectID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "all notifications marked as read"})
}
