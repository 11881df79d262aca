package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sjperalta/interlock-api/internal/services"
)

// JobHandler reports on the sweep and reminder jobs
type JobHandler struct {
	jobService *services.JobService
}

func NewJobHandler(jobSvc *services.JobService) *JobHandler {
	return &JobHandler{jobService: jobSvc}
}

// Status returns worker statistics, or one job's last run when ?job= is set
// @Summary Get background job status
// @Description Get worker statistics and the last run of every recurring compliance job
// @Tags Jobs
// @Produce json
// @Param job query string false "Recurring job name (overdue_sweep, due_soon_reminders)"
// @Success 200 {object} services.JobStatus
// @Failure 404 {object} map[string]string
// @Router /jobs/status [get]
func (h *JobHandler) Status(c *gin.Context) {
	name := c.Query("job")
	if name == "" {
		c.JSON(http.StatusOK, h.jobService.Status())
		return
	}
	run, ok := h.jobService.LastRun(name)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "job " + name + " has not run"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"job": name, "last_run": run})
}
