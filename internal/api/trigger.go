// Package api provides the HTTP trigger surface for the vinsync service.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/vinsync-io/vinsync/internal/api/middleware"
)

type (
	// pushEnvelope is the Pub/Sub-style push wrapper that schedulers and push
	// subscriptions deliver trigger events in. The data field is base64 in
	// transit; encoding/json decodes it into raw bytes.
	pushEnvelope struct {
		Message      pushMessage `json:"message"`
		Subscription string      `json:"subscription"`
	}

	pushMessage struct {
		Data       []byte            `json:"data"`
		MessageID  string            `json:"messageId"`
		Attributes map[string]string `json:"attributes,omitempty"`
	}
)

// handleTrigger runs a full sync cycle and returns its summary.
//
// The request body is optional. When present it may be a Pub/Sub-style push
// envelope whose message.data carries a JSON event payload; the payload is
// decoded for logging only, since a cycle always processes every file in the
// drop directory regardless of which file the event announced.
//
// The response is always 200 with the structured cycle summary, even when the
// cycle failed: a non-2xx status would make the push subscription redeliver
// the trigger, and redelivering cannot fix a failed cycle. Staged rows left
// pending are picked up by the next cycle instead.
func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	correlationID := middleware.GetCorrelationID(r.Context())

	event, err := s.decodeTriggerEvent(r)
	if err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest(err.Error()))

		return
	}

	if len(event) > 0 {
		s.logger.Info("Trigger event received",
			slog.String("correlation_id", correlationID),
			slog.Any("event", event),
		)
	}

	summary := s.runner.Run(r.Context())

	s.logger.Info("Sync cycle completed",
		slog.String("correlation_id", correlationID),
		slog.String("status", summary.Status),
		slog.Int("files_processed", summary.FilesProcessed),
		slog.Int("staged_records", summary.StagedRecords),
		slog.Int("successes", summary.Successes),
		slog.Int("failures", len(summary.Failures)),
	)

	s.writeJSON(w, r, summary)
}

// decodeTriggerEvent extracts the event payload from an optional push
// envelope. An empty body (manual trigger) yields a nil event. A data blob
// that is not itself JSON is preserved under a "raw" key.
func (s *Server) decodeTriggerEvent(r *http.Request) (map[string]any, error) {
	body, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, s.config.MaxRequestSize))
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return nil, errors.New("request body exceeds maximum size")
		}

		return nil, errors.New("failed to read request body")
	}

	if len(body) == 0 {
		return nil, nil
	}

	if contentType := r.Header.Get("Content-Type"); contentType != "" && !hasJSONContentType(contentType) {
		return nil, errors.New("Content-Type must be application/json")
	}

	var envelope pushEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, errors.New("request body is not a valid push envelope")
	}

	if len(envelope.Message.Data) == 0 {
		return nil, nil
	}

	var event map[string]any
	if err := json.Unmarshal(envelope.Message.Data, &event); err != nil {
		// Non-JSON payloads are still worth logging
		return map[string]any{"raw": string(envelope.Message.Data)}, nil
	}

	return event, nil
}
