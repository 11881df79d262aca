// Command sweep runs one overdue sweep against the configured store and
// optionally writes the compliance workbook afterwards.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/pflag"

	"github.com/sjperalta/interlock-api/internal/bootstrap"
	"github.com/sjperalta/interlock-api/internal/config"
	"github.com/sjperalta/interlock-api/internal/models"
	"github.com/sjperalta/interlock-api/pkg/logger"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return
		}
		fmt.Fprintf(os.Stderr, "sweep: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var (
		dateFlag   string
		reportPath string
		skipSweep  bool
		reminders  bool
	)
	flagSet := pflag.NewFlagSet("sweep", pflag.ContinueOnError)
	flagSet.StringVar(&dateFlag, "date", "", "sweep as of this date, YYYY-MM-DD (default: today, UTC)")
	flagSet.StringVar(&reportPath, "report", "", "write the compliance workbook (.xlsx) to this path")
	flagSet.BoolVar(&skipSweep, "no-sweep", false, "skip the sweep, only write the report")
	flagSet.BoolVar(&reminders, "reminders", false, "also send due-soon reminders")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	logger.Setup(cfg.Environment, cfg.LogLevel)

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.SentryDSN, Environment: cfg.Environment}); err != nil {
			logger.Error("Sentry initialization failed", "error", err)
		}
		defer sentry.Flush(5 * time.Second)
	}

	today := models.DateOf(time.Now())
	if dateFlag != "" {
		if today, err = models.ParseDate(dateFlag); err != nil {
			return fmt.Errorf("--date: %w", err)
		}
	}

	ctx := context.Background()
	rt, err := bootstrap.Build(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer rt.Close()
	svcs := rt.Services

	if !skipSweep {
		report, err := svcs.Schedule.SweepOverdue(ctx, today)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
		if len(report.Failures) > 0 {
			logger.Warn("Sweep finished with failures", "failed", len(report.Failures))
		}
	}

	if reminders {
		sent, err := svcs.Schedule.NotifyDueSoon(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "sent %d due-soon reminders\n", sent)
	}

	if reportPath != "" {
		data, _, err := svcs.Export.ExportComplianceXLSX(ctx)
		if err != nil {
			return err
		}
		if err := os.WriteFile(reportPath, data, 0o644); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		logger.Info("Compliance report written", "path", reportPath, "bytes", len(data))
	}
	return nil
}
