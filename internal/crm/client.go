package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"golang.org/x/time/rate"

	"github.com/vinsync-io/vinsync/internal/staging"
)

// Endpoint paths. The token endpoint is pinned to an older API version than
// the entity endpoints; the CRM vendor froze OAuth at v11_6.
const (
	tokenPath   = "rest/v11_6/oauth2/token"
	vehiclePath = "rest/v11_20/VHE_Vehicle"
)

// DeregisteredStatus is the vehicle status written on a successful update.
const DeregisteredStatus = "Deregistered"

// Client errors.
var (
	// ErrNotAuthenticated indicates a request was attempted before Authenticate.
	ErrNotAuthenticated = errors.New("CRM client not authenticated")

	// ErrAuthenticationFailed indicates the token endpoint rejected the
	// configured credentials.
	ErrAuthenticationFailed = errors.New("CRM authentication failed")

	// ErrUnauthorized indicates a request was rejected with 401 even after a
	// fresh token was obtained. Treated as a hard failure, never retried again.
	ErrUnauthorized = errors.New("CRM request unauthorized after token refresh")

	// ErrUnexpectedStatus indicates the CRM responded with a non-success
	// status code.
	ErrUnexpectedStatus = errors.New("CRM returned unexpected status")

	// ErrUpdateNotApplied indicates the CRM accepted an update but the
	// response body did not echo the expected field values back.
	ErrUpdateNotApplied = errors.New("CRM update did not persist expected values")
)

type (
	// Lookup is the outcome of a by-VIN search. Found distinguishes "the CRM
	// has no such vehicle" from transport or server errors, which are returned
	// as errors instead.
	Lookup struct {
		Found     bool
		VehicleID string
	}

	// Client is a CRM REST client bound to one integration user. It is safe
	// for concurrent use; token refresh is serialized internally.
	Client struct {
		config     *Config
		httpClient *http.Client
		limiter    *rate.Limiter
		logger     *slog.Logger

		mu          sync.Mutex
		accessToken string
	}

	tokenResponse struct {
		AccessToken string `json:"access_token"`
	}

	vehicleSearchResponse struct {
		Records []struct {
			ID string `json:"id"`
		} `json:"records"`
	}

	vehicleUpdatePayload struct {
		VehicleStatus   string  `json:"vehicle_status_c"`
		LatestDeregDate *string `json:"latest_dereg_date_c"`
	}

	vehicleUpdateEcho struct {
		VehicleStatus   string  `json:"vehicle_status_c"`
		LatestDeregDate *string `json:"latest_dereg_date_c"`
	}
)

// NewClient creates a CRM client from validated configuration.
func NewClient(config *Config, logger *slog.Logger) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid CRM configuration: %w", err)
	}

	var limiter *rate.Limiter
	if config.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.RateBurst)
	}

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		limiter:    limiter,
		logger:     logger,
	}, nil
}

// Authenticate obtains an access token with the OAuth2 password grant and
// stores it for subsequent requests. Safe to call again to refresh.
func (c *Client) Authenticate(ctx context.Context) error {
	form := url.Values{
		"grant_type":    {c.config.GrantType},
		"client_id":     {c.config.ClientID},
		"client_secret": {c.config.ClientSecret},
		"username":      {c.config.Username},
		"password":      {c.config.Password},
		"platform":      {c.config.Platform},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.config.baseURL()+tokenPath, bytes.NewBufferString(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build token request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d: %s",
			ErrAuthenticationFailed, resp.StatusCode, truncate(string(body)))
	}

	var token tokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		return fmt.Errorf("failed to decode token response: %w", err)
	}

	if token.AccessToken == "" {
		return fmt.Errorf("%w: token endpoint returned empty access_token",
			ErrAuthenticationFailed)
	}

	c.mu.Lock()
	c.accessToken = token.AccessToken
	c.mu.Unlock()

	c.logger.Info("Authenticated to CRM",
		slog.String("username", c.config.Username),
		slog.String("platform", c.config.Platform))

	return nil
}

// FindVehicle searches the CRM for a vehicle by VIN. A VIN the CRM does not
// know is a valid outcome, reported via Lookup.Found, not an error.
func (c *Client) FindVehicle(ctx context.Context, vin string) (Lookup, error) {
	query := url.Values{
		"filter[0][vin_c][$equals]": {vin},
		"max_num":                   {"1"},
	}

	body, err := c.do(ctx, http.MethodGet, vehiclePath+"?"+query.Encode(), nil)
	if err != nil {
		return Lookup{}, fmt.Errorf("vehicle lookup for VIN %s failed: %w", vin, err)
	}

	var search vehicleSearchResponse
	if err := json.Unmarshal(body, &search); err != nil {
		return Lookup{}, fmt.Errorf("failed to decode vehicle lookup response: %w", err)
	}

	if len(search.Records) == 0 || search.Records[0].ID == "" {
		c.logger.Debug("Vehicle not found in CRM", slog.String("vin", vin))

		return Lookup{Found: false}, nil
	}

	return Lookup{Found: true, VehicleID: search.Records[0].ID}, nil
}

// UpdateVehicle marks the identified vehicle as deregistered, setting the
// deregistration date from the record. The CRM echoes the updated entity
// back; the write is only counted as applied when the echoed fields match
// what was sent.
func (c *Client) UpdateVehicle(ctx context.Context, vehicleID string, record staging.VehicleRecord) error {
	targetDate := deregDateValue(record.DeregDate)

	payload, err := json.Marshal(vehicleUpdatePayload{
		VehicleStatus:   DeregisteredStatus,
		LatestDeregDate: targetDate,
	})
	if err != nil {
		return fmt.Errorf("failed to encode vehicle update: %w", err)
	}

	body, err := c.do(ctx, http.MethodPut, vehiclePath+"/"+vehicleID, payload)
	if err != nil {
		return fmt.Errorf("vehicle update for VIN %s failed: %w", record.VIN, err)
	}

	var echo vehicleUpdateEcho
	if err := json.Unmarshal(body, &echo); err != nil {
		return fmt.Errorf("%w: non-JSON response: %s", ErrUpdateNotApplied, truncate(string(body)))
	}

	if echo.VehicleStatus != DeregisteredStatus || !datesEqual(echo.LatestDeregDate, targetDate) {
		return fmt.Errorf("%w: status=%q, date=%s",
			ErrUpdateNotApplied, echo.VehicleStatus, dateForLog(echo.LatestDeregDate))
	}

	c.logger.Info("Vehicle marked deregistered in CRM",
		slog.String("vin", record.VIN),
		slog.String("vehicle_id", vehicleID),
		slog.String("dereg_date", dateForLog(targetDate)))

	return nil
}

// do executes one authenticated request. Exactly one 401 triggers a token
// refresh and a single retry; a second 401 fails hard.
func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	if c.token() == "" {
		return nil, ErrNotAuthenticated
	}

	responseBody, status, err := c.doOnce(ctx, method, path, body)
	if err != nil {
		return nil, err
	}

	if status == http.StatusUnauthorized {
		c.logger.Warn("CRM request unauthorized; refreshing token and retrying",
			slog.String("method", method),
			slog.String("path", path))

		if err := c.Authenticate(ctx); err != nil {
			return nil, err
		}

		responseBody, status, err = c.doOnce(ctx, method, path, body)
		if err != nil {
			return nil, err
		}

		if status == http.StatusUnauthorized {
			return nil, ErrUnauthorized
		}
	}

	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("%w: %s %s returned %d: %s",
			ErrUnexpectedStatus, method, path, status, truncate(string(responseBody)))
	}

	return responseBody, nil
}

// doOnce executes a single request attempt, returning the body and status.
// HTTP-level error statuses are returned for the caller to interpret.
func (c *Client) doOnce(ctx context.Context, method, path string, body []byte) ([]byte, int, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, 0, fmt.Errorf("request throttle: %w", err)
		}
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.baseURL()+path, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build request: %w", err)
	}

	token := c.token()
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("OAuth-Token", token)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read response body: %w", err)
	}

	c.logger.Debug("CRM response",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.String("body", truncate(string(responseBody))))

	return responseBody, resp.StatusCode, nil
}

func (c *Client) token() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.accessToken
}

// deregDateValue maps an absent source date to JSON null rather than an
// empty string, which the CRM rejects as an invalid date.
func deregDateValue(date string) *string {
	if date == "" {
		return nil
	}

	return &date
}

func datesEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	return *a == *b
}

func dateForLog(date *string) string {
	if date == nil {
		return "null"
	}

	return strconv.Quote(*date)
}

// truncate bounds response bodies embedded in errors and debug logs.
func truncate(text string) string {
	const limit = 500

	if len(text) <= limit {
		return text
	}

	return text[:limit] + "..."
}
