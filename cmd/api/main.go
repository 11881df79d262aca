package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-contrib/gzip"
	_ "github.com/joho/godotenv/autoload"

	"github.com/sjperalta/interlock-api/internal/bootstrap"
	"github.com/sjperalta/interlock-api/internal/config"
	"github.com/sjperalta/interlock-api/internal/handlers"
	"github.com/sjperalta/interlock-api/internal/jobs"
	"github.com/sjperalta/interlock-api/internal/middleware"
	"github.com/sjperalta/interlock-api/internal/services"
	"github.com/sjperalta/interlock-api/pkg/logger"

	"github.com/gin-gonic/gin"
)

// @title Interlock Compliance API
// @version 1.0
// @description Driving log ingestion, anomaly review, submission schedules and administrative actions for ignition interlock programs

// @host localhost:8080
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey ActorID
// @in header
// @name X-Actor-ID
func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger.Setup(cfg.Environment, cfg.LogLevel)

	// Initialize Sentry when DSN is configured
	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			TracesSampleRate: 0.2,
			Environment:      cfg.Environment,
		}); err != nil {
			logger.Error("Sentry initialization failed", "error", err)
		} else {
			logger.Info("Sentry initialized")
		}
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize background worker
	worker := jobs.NewWorker(cfg.WorkerCount)
	logger.Info("Started background worker", "goroutines", cfg.WorkerCount)

	rt, err := bootstrap.Build(context.Background(), cfg, worker)
	if err != nil {
		logger.Error("Failed to initialize services", "error", err)
		os.Exit(1)
	}

	if err := scheduleJobs(worker, rt.Services, cfg); err != nil {
		logger.Error("Failed to schedule recurring jobs", "error", err)
		os.Exit(1)
	}

	h := handlers.NewHandlers(rt.Services, cfg.MaxUploadBytes)
	router := setupRouter(h, cfg)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	// The worker drains before connections close so queued side effects still land
	worker.Shutdown()
	logger.Info("Background worker stopped")
	rt.Close()

	if cfg.SentryDSN != "" {
		sentry.Flush(5 * time.Second)
	}

	logger.Info("Server exited gracefully")
}

func setupRouter(h *handlers.Handlers, cfg *config.Config) *gin.Engine {
	router := gin.New()

	if cfg.SentryDSN != "" {
		router.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	}
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORS(cfg.AllowedOrigins))
	router.Use(middleware.Actor())
	router.Use(gzip.Gzip(gzip.DefaultCompression))

	handlers.RegisterRoutes(router, h)
	return router
}

func scheduleJobs(worker *jobs.Worker, svcs *services.Services, cfg *config.Config) error {
	sweep := func(ctx context.Context) error {
		logger.Info("[Job] Sweeping overdue schedules...")
		report, err := svcs.Schedule.SweepOverdue(ctx, svcs.Schedule.Today())
		if err != nil {
			return err
		}
		logger.Info("[Job] Overdue sweep finished",
			"updated", len(report.Updated), "skipped", report.Skipped, "failed", len(report.Failures))
		return nil
	}

	// A cron spec pins the sweep to wall-clock times; otherwise it runs on an
	// interval, starting right away so a restart does not skip a day
	if cfg.SweepCron != "" {
		if err := worker.ScheduleCron("overdue_sweep", cfg.SweepCron, sweep); err != nil {
			return err
		}
	} else {
		worker.ScheduleEveryImmediate("overdue_sweep", cfg.SweepInterval, sweep)
	}

	// Daily reminder for deadlines inside the reminder window
	if err := worker.ScheduleCron("due_soon_reminders", "0 8 * * *", func(ctx context.Context) error {
		logger.Info("[Job] Sending due-soon reminders...")
		_, err := svcs.Schedule.NotifyDueSoon(ctx)
		return err
	}); err != nil {
		return err
	}

	logger.Info("Scheduled recurring jobs", "sweep_cron", cfg.SweepCron, "sweep_interval", cfg.SweepInterval)
	return nil
}
