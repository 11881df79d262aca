package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes mounts the API under /api/v1 and the Prometheus scrape endpoint at /metrics
func RegisterRoutes(router *gin.Engine, h *Handlers) {
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", h.Health.Index)
		v1.GET("/jobs/status", h.Job.Status)

		// Static segments are registered before the :log_id routes
		logs := v1.Group("/logs")
		{
			logs.POST("", h.Log.Submit)
			logs.GET("", h.Log.Index)
			logs.GET("/flagged", h.Log.Flagged)
			logs.GET("/pending_review", h.Log.PendingReview)
			logs.GET("/:log_id", h.Log.Show)
			logs.GET("/:log_id/download", h.Log.Download)
			logs.GET("/:log_id/actions", h.Action.ByLog)
			logs.POST("/:log_id/start_review", h.Log.StartReview)
			logs.POST("/:log_id/review", h.Log.Review)
		}

		devices := v1.Group("/devices/:device_id")
		{
			devices.GET("/logs", h.Log.ByDevice)
			devices.GET("/logs/latest", h.Log.LatestByDevice)
			devices.GET("/stats", h.Log.DeviceStats)
		}

		subjects := v1.Group("/subjects/:subject_id")
		{
			subjects.GET("/logs", h.Log.BySubject)
			subjects.GET("/actions", h.Action.BySubject)
		}

		schedules := v1.Group("/schedules")
		{
			schedules.POST("", h.Schedule.Upsert)
			schedules.GET("", h.Schedule.Index)
			schedules.GET("/overdue", h.Schedule.Overdue)
			schedules.GET("/due_soon", h.Schedule.DueSoon)
			schedules.GET("/missed", h.Schedule.Missed)
			schedules.POST("/sweep", h.Schedule.Sweep)
			schedules.POST("/reminders", h.Schedule.Reminders)
			schedules.GET("/:subject_id", h.Schedule.Show)
			schedules.GET("/:subject_id/d_day", h.Schedule.DDay)
			schedules.PATCH("/:subject_id/frequency", h.Schedule.ChangeFrequency)
			schedules.DELETE("/:subject_id", h.Schedule.Delete)
		}

		actions := v1.Group("/actions")
		{
			actions.POST("", h.Action.Create)
			actions.GET("", h.Action.Index)
			actions.GET("/:action_id", h.Action.Show)
			actions.POST("/:action_id/execute", h.Action.Execute)
			actions.POST("/:action_id/cancel", h.Action.Cancel)
			actions.POST("/:action_id/mark_as_read", h.Action.MarkRead)
		}
		v1.GET("/admins/:admin_id/actions", h.Action.ByAdmin)

		notifications := v1.Group("/notifications")
		{
			notifications.GET("", h.Notification.Index)
			notifications.POST("/mark_all_as_read", h.Notification.MarkAllAsRead)
			notifications.POST("/:notification_id/mark_as_read", h.Notification.MarkAsRead)
		}

		reports := v1.Group("/reports")
		{
			reports.GET("/summary", h.Report.Summary)
			reports.GET("/compliance_xlsx", h.Report.ComplianceXLSX)
			reports.GET("/schedules_csv", h.Report.SchedulesCSV)
			reports.GET("/subjects/:subject_id/pdf", h.Report.SubjectPDF)
		}

		v1.GET("/audits", h.Audit.Index)
		v1.GET("/audits/:entity/:entity_id", h.Audit.History)
	}
}
