// Package api provides the HTTP trigger surface for the vinsync service.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vinsync-io/vinsync/internal/api/middleware"
	"github.com/vinsync-io/vinsync/internal/pipeline"
)

type (
	// CycleRunner runs reconciliation cycles. Implemented by *pipeline.Pipeline;
	// the interface exists so handler tests can substitute a fake.
	CycleRunner interface {
		Run(ctx context.Context) pipeline.CycleSummary
	}

	// HealthChecker verifies a storage dependency is reachable.
	// Implemented by *storage.Connection.
	HealthChecker interface {
		HealthCheck(ctx context.Context) error
	}

	// Server represents the HTTP trigger server.
	Server struct {
		httpServer  *http.Server
		logger      *slog.Logger
		config      *ServerConfig
		startTime   time.Time
		runner      CycleRunner
		health      HealthChecker
		rateLimiter middleware.RateLimiter
	}
)

// NewServer creates a new HTTP server instance with structured logging and middleware stack.
//
// Dependencies are injected explicitly rather than being part of ServerConfig:
//   - cfg: Pure server configuration (port, timeouts, trigger token hash)
//   - runner: The pipeline that a trigger request runs
//   - health: Storage health check for readiness probes (nil disables the check)
//   - rateLimiter: Rate limiter implementation (nil disables rate limiting)
func NewServer(
	cfg *ServerConfig,
	runner CycleRunner,
	health HealthChecker,
	rateLimiter middleware.RateLimiter,
) (*Server, error) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	var triggerAuth *middleware.TriggerAuth

	if cfg.TriggerTokenHash != "" {
		auth, err := middleware.NewTriggerAuth(cfg.TriggerTokenHash)
		if err != nil {
			return nil, fmt.Errorf("invalid trigger token hash: %w", err)
		}

		triggerAuth = auth
		logger.Info("Trigger authentication middleware enabled")
	} else {
		logger.Warn("Trigger token hash not configured - trigger authentication disabled")
	}

	if rateLimiter != nil {
		logger.Info("Rate limiting middleware enabled")
	} else {
		logger.Warn("RateLimiter not configured - rate limiting middleware disabled")
	}

	mux := http.NewServeMux()

	server := &Server{
		logger:      logger,
		config:      cfg,
		runner:      runner,
		health:      health,
		rateLimiter: rateLimiter,
	}

	server.setupRoutes(mux)

	// Middleware executes in the order listed (top-to-bottom):
	//   1. CorrelationID - generate correlation ID for all responses
	//   2. Recovery - catch panics in all downstream middleware
	//   3. TriggerAuth - reject unauthenticated triggers (optional)
	//   4. RateLimit - block floods before a cycle starts (optional)
	//   5. RequestLogger - log only legitimate requests (not rate-limited spam)
	handler := middleware.Apply(mux,
		middleware.WithCorrelationID(),
		middleware.WithRecovery(logger),
		middleware.WithTriggerAuth(triggerAuth, logger),
		middleware.WithRateLimit(rateLimiter, logger),
		middleware.WithRequestLogger(logger),
	)

	server.httpServer = &http.Server{
		Addr:         cfg.Address(),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return server, nil
}

// Start starts the HTTP server and blocks until shutdown.
// It handles graceful shutdown on SIGINT and SIGTERM signals.
func (s *Server) Start() error {
	if err := s.config.Validate(); err != nil {
		return fmt.Errorf("invalid server configuration: %w", err)
	}

	// Record server start time for uptime calculation
	s.startTime = time.Now()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("Starting vinsync trigger server",
			slog.String("address", s.config.Address()),
			slog.Duration("read_timeout", s.config.ReadTimeout),
			slog.Duration("write_timeout", s.config.WriteTimeout),
			slog.Duration("shutdown_timeout", s.config.ShutdownTimeout),
		)

		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Server failed to start",
				slog.String("address", s.config.Address()),
				slog.String("error", err.Error()),
			)

			serverErrors <- fmt.Errorf("server failed to start: %w", err)
		}
	}()

	select {
	case err := <-serverErrors:
		return err
	case sig := <-stop:
		s.logger.Info("Received shutdown signal",
			slog.String("signal", sig.String()),
		)

		return s.shutdown()
	}
}

// shutdown gracefully shuts down the server.
func (s *Server) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Initiating server shutdown",
		slog.Duration("shutdown_timeout", s.config.ShutdownTimeout),
	)

	// Graceful shutdown waits for an in-flight cycle to finish writing its summary
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("Server shutdown failed",
			slog.String("error", err.Error()),
			slog.Duration("shutdown_timeout", s.config.ShutdownTimeout),
		)

		return fmt.Errorf("server shutdown failed: %w", err)
	}

	// Stop the rate limiter's background cleanup goroutine
	if s.rateLimiter != nil {
		if limiter, ok := s.rateLimiter.(io.Closer); ok {
			if err := limiter.Close(); err != nil {
				s.logger.Error("Failed to close rate limiter", slog.String("error", err.Error()))
			}
		}
	}

	s.logger.Info("Server shutdown completed successfully")

	return nil
}
