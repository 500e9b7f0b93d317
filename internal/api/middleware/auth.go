package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// publicEndpoints defines public endpoints that bypass authentication, keyed
// by "METHOD /path". These endpoints are accessible without a trigger token
// (e.g., K8s health probes, monitoring tools). Keys are method-qualified so
// that GET / (readiness) can be public while POST / (the trigger) is not.
//
// Security note: only health check endpoints belong in this map, never the
// trigger endpoint itself.
var publicEndpoints = map[string]bool{} //nolint: gochecknoglobals

// RegisterPublicEndpoint registers an endpoint that bypasses authentication.
// The endpoint is given in "METHOD /path" form (e.g., "GET /ping"). This
// should only be called during route setup for health check endpoints.
func RegisterPublicEndpoint(endpoint string) {
	publicEndpoints[endpoint] = true
}

// Authentication errors.
var (
	// ErrMissingToken is returned when no trigger token is provided.
	ErrMissingToken = errors.New("missing trigger token")

	// ErrInvalidToken is returned for a token that does not match.
	// Generic on purpose; the response body never says why.
	ErrInvalidToken = errors.New("invalid trigger token")
)

// TriggerAuth validates the shared trigger token presented by the scheduler
// or push subscription invoking the pipeline. Only a bcrypt hash of the
// token is ever held in memory or configuration.
type TriggerAuth struct {
	tokenHash []byte
}

// NewTriggerAuth creates a TriggerAuth from a bcrypt hash of the expected
// token, as produced by bcrypt.GenerateFromPassword.
func NewTriggerAuth(tokenHash string) (*TriggerAuth, error) {
	hash := []byte(strings.TrimSpace(tokenHash))

	// Reject junk hashes at startup rather than failing every request.
	if _, err := bcrypt.Cost(hash); err != nil {
		return nil, err
	}

	return &TriggerAuth{tokenHash: hash}, nil
}

// verify reports whether the presented token matches the configured hash.
func (a *TriggerAuth) verify(token string) bool {
	return bcrypt.CompareHashAndPassword(a.tokenHash, []byte(token)) == nil
}

// extractToken extracts the trigger token from request headers. X-Api-Key is
// checked first, then Authorization: Bearer.
func extractToken(r *http.Request) (string, bool) {
	if token := r.Header.Get("X-Api-Key"); token != "" {
		return validateToken(token)
	}

	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return validateToken(strings.TrimPrefix(authHeader, "Bearer "))
	}

	return "", false
}

// validateToken cleans a token value, rejecting header-injection attempts.
func validateToken(token string) (string, bool) {
	if strings.ContainsAny(token, "\r\n") {
		return "", false
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}

	return token, true
}

// AuthenticateTrigger creates an authentication middleware validating the
// trigger token on every non-public endpoint.
func AuthenticateTrigger(auth *TriggerAuth, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if publicEndpoints[r.Method+" "+r.URL.Path] {
				next.ServeHTTP(w, r)

				return
			}

			authStart := time.Now()

			token, found := extractToken(r)
			if !found {
				writeAuthError(w, r, logger, ErrMissingToken)

				return
			}

			if !auth.verify(token) {
				writeAuthError(w, r, logger, ErrInvalidToken)

				return
			}

			logger.Info("Trigger token authenticated",
				slog.Duration("auth_latency", time.Since(authStart)),
				slog.String("correlation_id", GetCorrelationID(r.Context())),
				slog.String("endpoint", r.URL.Path))

			next.ServeHTTP(w, r)
		})
	}
}

// writeAuthError writes an RFC 7807 compliant error response for an
// authentication failure.
func writeAuthError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, cause error) {
	correlationID := GetCorrelationID(r.Context())

	logger.Warn("Authentication failed",
		slog.String("reason", cause.Error()),
		slog.String("correlation_id", correlationID),
		slog.String("endpoint", r.URL.Path),
		slog.String("remote_addr", r.RemoteAddr),
		slog.String("user_agent", r.UserAgent()))

	detail := cause.Error()
	if err := writeRFC7807Error(w, r, http.StatusUnauthorized, detail, correlationID); err != nil {
		logger.Error("failed to write response with RFC 7807 error format",
			slog.String("correlation_id", correlationID),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()))

		http.Error(w, detail, http.StatusUnauthorized)
	}
}
