// Package main provides the vinsync deferred reconciliation job.
//
// In deferred mode the sync service only stages records; this one-shot job
// picks up pending rows that have aged past the conflict window and pushes
// them to the CRM. It is meant to run on a schedule (cron, K8s CronJob).
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/vinsync-io/vinsync/internal/config"
	"github.com/vinsync-io/vinsync/internal/crm"
	"github.com/vinsync-io/vinsync/internal/notify"
	"github.com/vinsync-io/vinsync/internal/pipeline"
	"github.com/vinsync-io/vinsync/internal/storage"
)

// Version information.
const (
	version = "1.0.0-dev"
	name    = "reconciler"
)

func main() {
	versionFlag := flag.Bool("version", false, "show version information")
	flag.Parse()

	if *versionFlag {
		log.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: config.GetEnvLogLevel("VINSYNC_SERVER_LOG_LEVEL", slog.LevelInfo),
	}))

	logger.Info("Starting reconciliation job",
		slog.String("service", name),
		slog.String("version", version),
	)

	storageConfig := storage.LoadConfig()

	dbConn, err := storage.NewConnection(storageConfig)
	if err != nil {
		logger.Error("Failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}

	defer func() {
		_ = dbConn.Close()
	}()

	stageStore, err := storage.NewStageStore(dbConn)
	if err != nil {
		logger.Error("Failed to create stage store", slog.String("error", err.Error()))
		fatal(dbConn)
	}

	crmClient, err := crm.NewClient(crm.LoadConfig(), logger)
	if err != nil {
		logger.Error("Failed to create CRM client", slog.String("error", err.Error()))
		fatal(dbConn)
	}

	notifier, err := notify.NewNotifier(notify.LoadConfig(), logger)
	if err != nil {
		logger.Error("Failed to create notifier", slog.String("error", err.Error()))
		fatal(dbConn)
	}

	// Reconciliation never touches the drop source or the archival store, so
	// those collaborators stay nil here.
	pipe, err := pipeline.NewPipeline(
		pipeline.LoadConfig(), nil, nil, stageStore, crmClient, notifier, nil, logger,
	)
	if err != nil {
		logger.Error("Failed to assemble pipeline", slog.String("error", err.Error()))
		fatal(dbConn)
	}

	summary := pipe.ReconcilePending(context.Background())

	logger.Info("Reconciliation job completed",
		slog.String("status", summary.Status),
		slog.Int("staged_records", summary.StagedRecords),
		slog.Int("successes", summary.Successes),
		slog.Int("failures", len(summary.Failures)),
	)

	if summary.Status == pipeline.StatusError {
		fatal(dbConn)
	}
}

// fatal closes the database connection and exits; defers do not run through
// os.Exit.
func fatal(dbConn *storage.Connection) {
	_ = dbConn.Close()
	os.Exit(1)
}
