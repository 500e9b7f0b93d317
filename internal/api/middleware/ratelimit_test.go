// Package middleware provides HTTP middleware components for the vinsync trigger API.
package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const testClient = "198.51.100.7"

// TestRateLimiter_GlobalLimitEnforced verifies that the global rate limit
// is enforced across all requests regardless of client.
func TestRateLimiter_GlobalLimitEnforced(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	// Global (3) is more restrictive than per-client (50)
	rl := NewInMemoryRateLimiter(&Config{
		GlobalRPS:   3,
		GlobalBurst: 3, // use override value
		ClientRPS:   50,
	})
	defer rl.Close()

	successCount := 0

	for i := 0; i < 4; i++ {
		if rl.Allow(testClient) {
			successCount++
		}
	}

	if successCount != 3 {
		t.Errorf("expected 3 successful requests, got %d", successCount)
	}
}

// TestRateLimiter_ClientLimitEnforced verifies that per-client limits
// are enforced independently from the global limit.
func TestRateLimiter_ClientLimitEnforced(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	rl := NewInMemoryRateLimiter(&Config{
		GlobalRPS:   100,
		ClientRPS:   2,
		ClientBurst: 2, // use override value
	})
	defer rl.Close()

	successCount := 0

	for i := 0; i < 3; i++ {
		if rl.Allow(testClient) {
			successCount++
		}
	}

	if successCount != 2 {
		t.Errorf("expected 2 successful requests, got %d", successCount)
	}
}

// TestRateLimiter_ClientsIsolated verifies that one client exhausting its
// bucket does not affect another client.
func TestRateLimiter_ClientsIsolated(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	rl := NewInMemoryRateLimiter(&Config{
		GlobalRPS:   100,
		ClientRPS:   2,
		ClientBurst: 2,
	})
	defer rl.Close()

	// Exhaust the first client's bucket
	for i := 0; i < 3; i++ {
		rl.Allow("203.0.113.1")
	}

	if !rl.Allow("203.0.113.2") {
		t.Error("expected second client to be unaffected by first client's limit")
	}
}

func TestComputeBurstCapacity(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		name     string
		rps      int
		override int
		want     int
	}{
		{"auto-computed as 2x rate", 10, 0, 20},
		{"override wins", 10, 5, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := computeBurstCapacity(tt.rps, tt.override); got != tt.want {
				t.Errorf("computeBurstCapacity(%d, %d) = %d, want %d", tt.rps, tt.override, got, tt.want)
			}
		})
	}
}

// TestRateLimiter_CleanupRemovesIdleClients verifies idle client limiters
// are removed after the idle timeout.
func TestRateLimiter_CleanupRemovesIdleClients(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	rl := NewInMemoryRateLimiter(&Config{
		GlobalRPS:       100,
		ClientRPS:       5,
		CleanupInterval: time.Hour, // run cleanup manually
		IdleTimeout:     10 * time.Millisecond,
	})
	defer rl.Close()

	rl.Allow(testClient)

	rl.mu.RLock()
	_, exists := rl.perClient[testClient]
	rl.mu.RUnlock()

	if !exists {
		t.Fatal("expected client limiter to exist after first request")
	}

	time.Sleep(20 * time.Millisecond)
	rl.cleanup()

	rl.mu.RLock()
	_, exists = rl.perClient[testClient]
	rl.mu.RUnlock()

	if exists {
		t.Error("expected idle client limiter to be removed by cleanup")
	}
}

// TestRateLimit_Middleware verifies the middleware returns an RFC 7807
// response once the limit is exceeded.
func TestRateLimit_Middleware(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	rl := NewInMemoryRateLimiter(&Config{
		GlobalRPS:   1,
		GlobalBurst: 1,
		ClientRPS:   100,
	})
	defer rl.Close()

	logger := slog.New(slog.DiscardHandler)
	handler := RateLimit(rl, logger)(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/", nil))

	if first.Code != http.StatusOK {
		t.Fatalf("expected first request to pass, got %d", first.Code)
	}

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/", nil))

	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second request to be limited, got %d", second.Code)
	}

	if got := second.Header().Get("Content-Type"); got != "application/problem+json" {
		t.Errorf("expected problem+json content type, got %q", got)
	}

	var problem map[string]interface{}
	if err := json.Unmarshal(second.Body.Bytes(), &problem); err != nil {
		t.Fatalf("failed to decode problem body: %v", err)
	}

	if problem["title"] != "Too Many Requests" {
		t.Errorf("expected title 'Too Many Requests', got %v", problem["title"])
	}
}

func TestClientKey(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		name       string
		remoteAddr string
		want       string
	}{
		{"host and port", "192.0.2.10:54321", "192.0.2.10"},
		{"bare host", "192.0.2.10", "192.0.2.10"},
		{"ipv6 with port", "[2001:db8::1]:443", "2001:db8::1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr

			if got := clientKey(req); got != tt.want {
				t.Errorf("clientKey(%q) = %q, want %q", tt.remoteAddr, got, tt.want)
			}
		})
	}
}
