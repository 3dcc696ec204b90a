// Package partner implements the client for the external energy-program
// platform that issues commands and consumes telemetry. The platform is an
// opaque REST service; this client covers the two operations the relay
// needs: reporting command delivery and forwarding battery telemetry.
package partner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/voltbridge/battery-relay/internal/models"
)

// DeviceStatusSample is one device's entry in a batch telemetry upload.
type DeviceStatusSample struct {
	DeviceID     string `json:"device_id"`
	LastIsOnline bool   `json:"last_is_online"`
	models.TelemetrySample
}

// TelemetryPayload is the batch telemetry upload body.
type TelemetryPayload struct {
	StartTime string               `json:"start_time"`
	DurationS int                  `json:"duration_s"`
	Telemetry []DeviceStatusSample `json:"telemetry"`
}

// telemetryResult is one per-device entry of the telemetry upload response.
type telemetryResult struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Notifier is the surface the relay needs from the partner platform.
type Notifier interface {
	UpdateCommandStatus(ctx context.Context, commandID string, status models.DeviceStatus) error
	LogBatteryTelemetry(ctx context.Context, payload TelemetryPayload) error
}

// Client talks to the partner platform's admin API with a bearer token.
// Construct one per process and inject it; configuration is passed at
// construction.
type Client struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient creates a partner API client. A nil httpClient gets a default
// with a 30 second timeout.
func NewClient(baseURL, authToken string, httpClient *http.Client, logger zerolog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Client{
		baseURL:    baseURL,
		authToken:  authToken,
		httpClient: httpClient,
		logger:     logger,
	}
}

// UpdateCommandStatus reports whether a command reached the device.
func (c *Client) UpdateCommandStatus(ctx context.Context, commandID string, status models.DeviceStatus) error {
	body := map[string]string{"device_status": string(status)}

	resp, err := c.do(ctx, http.MethodPatch, "/v1/command/"+commandID, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.statusError(resp)
	}

	// The API returns the updated command, which we don't need.
	return nil
}

// LogBatteryTelemetry uploads a batch of battery telemetry. The response
// carries a per-device status; any non-OK entry fails the upload.
func (c *Client) LogBatteryTelemetry(ctx context.Context, payload TelemetryPayload) error {
	resp, err := c.do(ctx, http.MethodPost, "/v1/telemetry/BATTERY", payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.statusError(resp)
	}

	var results []telemetryResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return fmt.Errorf("failed to decode telemetry response: %w", err)
	}

	for _, result := range results {
		if result.Status != "OK" {
			return fmt.Errorf("failed to log telemetry: %s", result.Message)
		}
	}

	return nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	url := c.baseURL + endpoint

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.authToken)

	c.logger.Debug().Str("method", method).Str("url", url).Msg("Partner API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("partner request failed: %w", err)
	}

	return resp, nil
}

func (c *Client) statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("partner API error: status %d, body: %s", resp.StatusCode, string(body))
}
