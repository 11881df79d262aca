package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sjperalta/interlock-api/internal/models"
	"github.com/sjperalta/interlock-api/internal/services"
)

type ScheduleHandler struct {
	scheduleService *services.ScheduleService
}

func NewScheduleHandler(scheduleService *services.ScheduleService) *ScheduleHandler {
	return &ScheduleHandler{scheduleService: scheduleService}
}

func (h *ScheduleHandler) responses(schedules []models.SubmissionSchedule) []models.ScheduleResponse {
	today := h.scheduleService.Today()
	responses := make([]models.ScheduleResponse, 0, len(schedules))
	for i := range schedules {
		responses = append(responses, schedules[i].ToResponse(today))
	}
	return responses
}

type scheduleRequest struct {
	SubjectID     uint `json:"subject_id"`
	DeviceID      uint `json:"device_id"`
	FrequencyDays int  `json:"frequency_days"`
}

// Upsert creates a subject's schedule, or updates its device and cadence.
// Answers 201 on creation and 200 on update.
// @Summary Create or update schedule
// @Description Create a subject's submission schedule, or change its cadence
// @Tags Schedules
// @Accept json
// @Produce json
// @Param body body scheduleRequest true "Schedule"
// @Success 200 {object} models.ScheduleResponse
// @Failure 400 {object} map[string]string
// @Security ActorID
// @Router /schedules [post]
func (h *ScheduleHandler) Upsert(c *gin.Context) {
	var req scheduleRequest
	if err := BindNestedOrFlat(c, "schedule", &req); err != nil {
		badRequest(c, err.Error())
		return
	}

	schedule, created, err := h.scheduleService.CreateOrUpdate(c.Request.Context(), services.ScheduleInput{
		SubjectID:     req.SubjectID,
		DeviceID:      req.DeviceID,
		FrequencyDays: models.SubmissionFrequency(req.FrequencyDays),
		ActorID:       actorOr(c, services.SystemActor),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"schedule": schedule.ToResponse(h.scheduleService.Today())})
}

// @Summary List schedules
// @Description Get every submission schedule with its D-day
// @Tags Schedules
// @Produce json
// @Success 200 {object} []models.ScheduleResponse
// @Router /schedules [get]
func (h *ScheduleHandler) Index(c *gin.Context) {
	schedules, err := h.scheduleService.FindAll(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"schedules": h.responses(schedules)})
}

// @Summary Get schedule
// @Description Get a subject's submission schedule
// @Tags Schedules
// @Produce json
// @Param subject_id path int true "Subject ID"
// @Success 200 {object} models.ScheduleResponse
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /schedules/{subject_id} [get]
func (h *ScheduleHandler) Show(c *gin.Context) {
	subjectID, ok := uintParam(c, "subject_id")
	if !ok {
		return
	}
	schedule, err := h.scheduleService.FindBySubject(c.Request.Context(), subjectID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"schedule": schedule.ToResponse(h.scheduleService.Today())})
}

// DDay reports the signed day count to the subject's next deadline
// @Summary Get D-day
// @Description Get the days until (or past) a subject's next deadline
// @Tags Schedules
// @Produce json
// @Param subject_id path int true "Subject ID"
// @Success 200 {object} services.DDayResult
// @Failure 400 {object} map[string]string
// @Router /schedules/{subject_id}/d_day [get]
func (h *ScheduleHandler) DDay(c *gin.Context) {
	subjectID, ok := uintParam(c, "subject_id")
	if !ok {
		return
	}
	result, err := h.scheduleService.DDay(c.Request.Context(), subjectID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type frequencyRequest struct {
	FrequencyDays int `json:"frequency_days" binding:"required"`
}

// @Summary Change frequency
// @Description Switch a subject to a new submission cadence
// @Tags Schedules
// @Accept json
// @Produce json
// @Param subject_id path int true "Subject ID"
// @Param body body frequencyRequest true "New cadence"
// @Success 200 {object} models.ScheduleResponse
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Security ActorID
// @Router /schedules/{subject_id}/frequency [patch]
func (h *ScheduleHandler) ChangeFrequency(c *gin.Context) {
	subjectID, ok := uintParam(c, "subject_id")
	if !ok {
		return
	}
	var req frequencyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	schedule, err := h.scheduleService.ChangeFrequency(c.Request.Context(), subjectID,
		models.SubmissionFrequency(req.FrequencyDays), actorOr(c, services.SystemActor))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"schedule": schedule.ToResponse(h.scheduleService.Today())})
}

// @Summary Delete schedule
// @Description Remove a subject's submission schedule
// @Tags Schedules
// @Produce json
// @Param subject_id path int true "Subject ID"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Security ActorID
// @Router /schedules/{subject_id} [delete]
func (h *ScheduleHandler) Delete(c *gin.Context) {
	subjectID, ok := uintParam(c, "subject_id")
	if !ok {
		return
	}
	if err := h.scheduleService.Delete(c.Request.Context(), subjectID, actorOr(c, services.SystemActor)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "schedule deleted"})
}

// @Summary Overdue schedules
// @Description Get schedules whose deadline has passed
// @Tags Schedules
// @Produce json
// @Success 200 {object} []models.ScheduleResponse
// @Router /schedules/overdue [get]
func (h *ScheduleHandler) Overdue(c *gin.Context) {
	schedules, err := h.scheduleService.FindOverdue(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"schedules": h.responses(schedules)})
}

// DueSoon lists schedules due within ?days= days (default 3)
// @Summary Schedules due soon
// @Description Get schedules due within the next N days
// @Tags Schedules
// @Produce json
// @Param days query int false "Days ahead" default(3)
// @Success 200 {object} []models.ScheduleResponse
// @Failure 400 {object} map[string]string
// @Router /schedules/due_soon [get]
func (h *ScheduleHandler) DueSoon(c *gin.Context) {
	days, err := strconv.Atoi(c.DefaultQuery("days", "3"))
	if err != nil {
		badRequest(c, "invalid days")
		return
	}
	schedules, err := h.scheduleService.FindDueWithin(c.Request.Context(), days)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"schedules": h.responses(schedules)})
}

// Missed lists schedules with at least ?min= missed submissions (default 1)
// @Summary Schedules with missed submissions
// @Description Get schedules with at least N missed submissions
// @Tags Schedules
// @Produce json
// @Param min query int false "Minimum missed" default(1)
// @Success 200 {object} []models.ScheduleResponse
// @Failure 400 {object} map[string]string
// @Router /schedules/missed [get]
func (h *ScheduleHandler) Missed(c *gin.Context) {
	n, err := strconv.Atoi(c.DefaultQuery("min", "1"))
	if err != nil {
		badRequest(c, "invalid min")
		return
	}
	schedules, err := h.scheduleService.FindByMissedAtLeast(c.Request.Context(), n)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"schedules": h.responses(schedules)})
}

// Sweep runs the overdue sweep now, as of ?date=YYYY-MM-DD or today
// @Summary Run overdue sweep
// @Description Mark overdue schedules as missed and move their deadlines forward
// @Tags Schedules
// @Produce json
// @Param date query string false "Sweep date (YYYY-MM-DD)"
// @Success 200 {object} services.SweepReport
// @Failure 400 {object} map[string]string
// @Security ActorID
// @Router /schedules/sweep [post]
func (h *ScheduleHandler) Sweep(c *gin.Context) {
	today := h.scheduleService.Today()
	if raw := c.Query("date"); raw != "" {
		d, err := models.ParseDate(raw)
		if err != nil {
			badRequest(c, "date must be YYYY-MM-DD")
			return
		}
		today = d
	}

	report, err := h.scheduleService.SweepOverdue(c.Request.Context(), today)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// Reminders notifies every subject whose deadline is close
// @Summary Send due-soon reminders
// @Description Notify subjects whose deadline is inside the reminder window
// @Tags Schedules
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Security ActorID
// @Router /schedules/reminders [post]
func (h *ScheduleHandler) Reminders(c *gin.Context) {
	sent, err := h.scheduleService.NotifyDueSoon(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sent": sent})
}
