// Package main provides the vinsync deregistration sync service.
//
// The service pulls vehicle-deregistration batch files from an FTP drop,
// archives and stages them durably, and reconciles staged records against the
// CRM. Cycles run on demand: an HTTP trigger (scheduler or Pub/Sub-style
// push) and an optional Kafka file-drop consumer.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/vinsync-io/vinsync/internal/api"
	"github.com/vinsync-io/vinsync/internal/api/middleware"
	"github.com/vinsync-io/vinsync/internal/crm"
	"github.com/vinsync-io/vinsync/internal/decode"
	"github.com/vinsync-io/vinsync/internal/filestore"
	"github.com/vinsync-io/vinsync/internal/notify"
	"github.com/vinsync-io/vinsync/internal/pipeline"
	"github.com/vinsync-io/vinsync/internal/source"
	"github.com/vinsync-io/vinsync/internal/storage"
	"github.com/vinsync-io/vinsync/internal/trigger"
)

// Version information.
const (
	version = "1.0.0-dev"
	name    = "vinsync"
)

func main() {
	versionFlag := flag.Bool("version", false, "show version information")
	flag.Parse()

	if *versionFlag {
		log.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	// Local development convenience; production configures the environment directly
	_ = godotenv.Load()

	serverConfig := api.LoadServerConfig()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: serverConfig.LogLevel,
	}))

	logger.Info("Starting vinsync service",
		slog.String("service", name),
		slog.String("version", version),
	)

	// Staging store
	storageConfig := storage.LoadConfig()

	dbConn, err := storage.NewConnection(storageConfig)
	if err != nil {
		logger.Error("Failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}

	defer func() {
		_ = dbConn.Close() // Ensure connection closes on normal shutdown
	}()

	stageStore, err := storage.NewStageStore(dbConn)
	if err != nil {
		logger.Error("Failed to create stage store", slog.String("error", err.Error()))
		fatal(dbConn)
	}

	logger.Info("Stage store initialized",
		slog.String("database_url", storageConfig.MaskDatabaseURL()),
	)

	// CRM client
	crmConfig := crm.LoadConfig()

	crmClient, err := crm.NewClient(crmConfig, logger)
	if err != nil {
		logger.Error("Failed to create CRM client", slog.String("error", err.Error()))
		fatal(dbConn)
	}

	// Archival object store
	fileConfig := filestore.LoadConfig()

	objectStore, err := filestore.NewMinioStore(fileConfig)
	if err != nil {
		logger.Error("Failed to create object store client", slog.String("error", err.Error()))
		fatal(dbConn)
	}

	if err := objectStore.EnsureBucket(context.Background()); err != nil {
		logger.Error("Failed to ensure archival bucket", slog.String("error", err.Error()))
		fatal(dbConn)
	}

	files := filestore.NewManager(objectStore, fileConfig.Bucket)

	logger.Info("Archival store initialized",
		slog.String("endpoint", fileConfig.Endpoint),
		slog.String("bucket", fileConfig.Bucket),
	)

	// FTP drop source
	sourceConfig := source.LoadConfig()

	ftpSource, err := source.NewFTPSource(sourceConfig, logger)
	if err != nil {
		logger.Error("Failed to create FTP source", slog.String("error", err.Error()))
		fatal(dbConn)
	}

	// Email notifications (nop when SMTP unconfigured)
	notifier, err := notify.NewNotifier(notify.LoadConfig(), logger)
	if err != nil {
		logger.Error("Failed to create notifier", slog.String("error", err.Error()))
		fatal(dbConn)
	}

	// Batch decoder with make filter
	decodeConfig, err := decode.LoadConfig(decode.ConfigPath())
	if err != nil {
		logger.Error("Failed to load decoder configuration", slog.String("error", err.Error()))
		fatal(dbConn)
	}

	decoder := decode.NewDecoder(decodeConfig, logger)

	// Pipeline
	pipelineConfig := pipeline.LoadConfig()

	pipe, err := pipeline.NewPipeline(
		pipelineConfig, ftpSource, files, stageStore, crmClient, notifier, decoder, logger,
	)
	if err != nil {
		logger.Error("Failed to assemble pipeline", slog.String("error", err.Error()))
		fatal(dbConn)
	}

	logger.Info("Pipeline assembled",
		slog.String("mode", string(pipelineConfig.Mode)),
	)

	// Rate limiter (graceful shutdown handled by server.shutdown())
	middlewareConfig := middleware.LoadConfig()
	rateLimiter := middleware.NewInMemoryRateLimiter(middlewareConfig)

	logger.Info("Rate limiter initialized",
		slog.Int("global_rps", middlewareConfig.GlobalRPS),
		slog.Int("client_rps", middlewareConfig.ClientRPS),
	)

	server, err := api.NewServer(serverConfig, pipe, dbConn, rateLimiter)
	if err != nil {
		logger.Error("Failed to create server", slog.String("error", err.Error()))
		fatal(dbConn)
	}

	// Optional Kafka file-drop consumer
	consumerCtx, cancelConsumer := context.WithCancel(context.Background())
	defer cancelConsumer()

	triggerConfig := trigger.LoadConfig()
	if triggerConfig.Enabled() {
		consumer, err := trigger.NewConsumer(triggerConfig, pipe, logger)
		if err != nil {
			logger.Error("Failed to create Kafka consumer", slog.String("error", err.Error()))
			fatal(dbConn)
		}

		logger.Info("Kafka file-drop consumer enabled",
			slog.String("topic", triggerConfig.Topic),
			slog.String("group_id", triggerConfig.GroupID),
		)

		go func() {
			if err := consumer.Run(consumerCtx); err != nil {
				logger.Error("Kafka consumer stopped", slog.String("error", err.Error()))
			}
		}()
	} else {
		logger.Info("Kafka file-drop consumer disabled - KAFKA_BROKERS not set")
	}

	if err := server.Start(); err != nil {
		logger.Error("Server failed to start",
			slog.String("error", err.Error()),
		)
		fatal(dbConn)
	}

	logger.Info("vinsync service stopped")
}

// fatal closes the database connection and exits; defers do not run through
// os.Exit.
func fatal(dbConn *storage.Connection) {
	_ = dbConn.Close()
	os.Exit(1)
}
