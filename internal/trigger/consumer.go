// Package trigger consumes file-drop events from Kafka and runs sync cycles.
package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/vinsync-io/vinsync/internal/pipeline"
)

type (
	// CycleRunner runs reconciliation cycles. Implemented by *pipeline.Pipeline.
	CycleRunner interface {
		Run(ctx context.Context) pipeline.CycleSummary
	}

	// messageReader is the subset of *kafka.Reader the consumer uses,
	// extracted so tests can substitute a fake.
	messageReader interface {
		FetchMessage(ctx context.Context) (kafka.Message, error)
		CommitMessages(ctx context.Context, msgs ...kafka.Message) error
		Close() error
	}

	// Consumer runs one sync cycle per file-drop event.
	//
	// Delivery is at-least-once: offsets are committed only after the cycle
	// finishes. A redelivered event is safe because a cycle is idempotent at
	// the record level - rows already pushed stay pushed, and re-staged VINs
	// become new pending rows that the next reconciliation resolves.
	Consumer struct {
		reader messageReader
		runner CycleRunner
		logger *slog.Logger
	}
)

// NewConsumer creates a Kafka consumer for file-drop events.
func NewConsumer(cfg *Config, runner CycleRunner, logger *slog.Logger) (*Consumer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid consumer configuration: %w", err)
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: cfg.Brokers,
		GroupID: cfg.GroupID,
		Topic:   cfg.Topic,
	})

	return &Consumer{
		reader: reader,
		runner: runner,
		logger: logger,
	}, nil
}

// Run consumes file-drop events until the context is cancelled, running one
// sync cycle per event. Cancellation returns nil; any other fetch error is
// returned after closing the reader.
func (c *Consumer) Run(ctx context.Context) error {
	defer func() {
		if err := c.reader.Close(); err != nil {
			c.logger.Error("Failed to close Kafka reader", slog.String("error", err.Error()))
		}
	}()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				c.logger.Info("Kafka consumer stopping")

				return nil
			}

			return fmt.Errorf("failed to fetch message: %w", err)
		}

		c.handleMessage(ctx, msg)

		// Commit only after the cycle ran; a crash before this point
		// redelivers the event, which is safe
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("Failed to commit message offset",
				slog.String("topic", msg.Topic),
				slog.Int64("offset", msg.Offset),
				slog.String("error", err.Error()),
			)
		}
	}
}

// handleMessage decodes one file-drop event and runs a sync cycle for it.
func (c *Consumer) handleMessage(ctx context.Context, msg kafka.Message) {
	event := decodeEvent(msg.Value)

	c.logger.Info("File-drop event received",
		slog.String("topic", msg.Topic),
		slog.Int64("offset", msg.Offset),
		slog.Any("event", event),
	)

	summary := c.runner.Run(ctx)

	c.logger.Info("Sync cycle completed",
		slog.String("status", summary.Status),
		slog.Int("files_processed", summary.FilesProcessed),
		slog.Int("staged_records", summary.StagedRecords),
		slog.Int("successes", summary.Successes),
		slog.Int("failures", len(summary.Failures)),
	)
}

// decodeEvent parses a message value as a JSON event payload, preserving
// non-JSON payloads under a "raw" key so they still appear in logs.
func decodeEvent(value []byte) map[string]any {
	if len(value) == 0 {
		return nil
	}

	var event map[string]any
	if err := json.Unmarshal(value, &event); err != nil {
		return map[string]any{"raw": string(value)}
	}

	return event
}
