package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"wabridge/internal/metrics"
	"wabridge/pkg/provider/types"
)

// ProviderClient talks to the external WhatsApp engine over HTTP
type ProviderClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewClient creates a new engine client
func NewClient(config types.ClientConfig) types.Client {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &ProviderClient{
		baseURL: config.BaseURL,
		apiKey:  config.APIKey,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *ProviderClient) doRequest(ctx context.Context, method, endpoint string, payload interface{}) (*types.APIResponse, error) {
	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal payload: %w", err)
		}
		body = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	metrics.RecordProviderCall(endpoint, err == nil, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("engine request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	var result types.APIResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode engine response: %w", err)
	}

	if resp.StatusCode != http.StatusOK || !result.Success {
		msg := result.Error
		if msg == "" {
			msg = fmt.Sprintf("engine returned status %d", resp.StatusCode)
		}
		return &result, fmt.Errorf("engine call %s failed: %s", endpoint, msg)
	}

	return &result, nil
}

func (c *ProviderClient) CreateSession(ctx context.Context, sessionID string) error {
	_, err := c.doRequest(ctx, http.MethodPost, types.EndpointCreateSession,
		types.SessionRequest{SessionID: sessionID})
	return err
}

func (c *ProviderClient) ConnectSession(ctx context.Context, sessionID string) error {
	_, err := c.doRequest(ctx, http.MethodPost, types.EndpointConnect,
		types.SessionRequest{SessionID: sessionID})
	return err
}

func (c *ProviderClient) DisconnectSession(ctx context.Context, sessionID string) error {
	_, err := c.doRequest(ctx, http.MethodPost, types.EndpointDisconnect,
		types.SessionRequest{SessionID: sessionID})
	return err
}

func (c *ProviderClient) GetSessionStatus(ctx context.Context, sessionID string) (*types.SessionStatus, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, types.EndpointStatus+url.PathEscape(sessionID), nil)
	if err != nil {
		return nil, err
	}

	var status types.SessionStatus
	if err := json.Unmarshal(resp.Data, &status); err != nil {
		return nil, fmt.Errorf("failed to decode session status: %w", err)
	}

	return &status, nil
}

func (c *ProviderClient) GetQRCode(ctx context.Context, sessionID string) (string, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, types.EndpointQR+url.PathEscape(sessionID), nil)
	if err != nil {
		return "", err
	}

	var qr types.QRCodeResponse
	if err := json.Unmarshal(resp.Data, &qr); err != nil {
		return "", fmt.Errorf("failed to decode QR response: %w", err)
	}

	return qr.QRCode, nil
}

func (c *ProviderClient) ListSessions(ctx context.Context) ([]types.SessionStatus, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, types.EndpointSessions, nil)
	if err != nil {
		return nil, err
	}

	var sessions []types.SessionStatus
	if err := json.Unmarshal(resp.Data, &sessions); err != nil {
		return nil, fmt.Errorf("failed to decode sessions: %w", err)
	}

	return sessions, nil
}

func (c *ProviderClient) sendMessage(ctx context.Context, endpoint string, payload interface{}) (*types.SendMessageResult, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, endpoint, payload)
	if err != nil {
		return nil, err
	}

	var result types.SendMessageResult
	if err := json.Unmarshal(resp.Data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode send result: %w", err)
	}

	return &result, nil
}

func (c *ProviderClient) SendText(ctx context.Context, req *types.SendTextRequest) (*types.SendMessageResult, error) {
	return c.sendMessage(ctx, types.EndpointSendText, req)
}

func (c *ProviderClient) SendMedia(ctx context.Context, req *types.SendMediaRequest) (*types.SendMessageResult, error) {
	return c.sendMessage(ctx, types.EndpointSendMedia, req)
}

func (c *ProviderClient) SendLocation(ctx context.Context, req *types.SendLocationRequest) (*types.SendMessageResult, error) {
	return c.sendMessage(ctx, types.EndpointSendLocation, req)
}

func (c *ProviderClient) SendContact(ctx context.Context, req *types.SendContactRequest) (*types.SendMessageResult, error) {
	return c.sendMessage(ctx, types.EndpointSendContact, req)
}

func (c *ProviderClient) TestWebhook(ctx context.Context, sessionID string) error {
	_, err := c.doRequest(ctx, http.MethodPost, types.EndpointWebhookTest,
		types.WebhookTestRequest{SessionID: sessionID})
	return err
}

func (c *ProviderClient) HealthCheck(ctx context.Context) (*types.HealthStatus, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, types.EndpointHealth, nil)
	if err != nil {
		return nil, err
	}

	var health types.HealthStatus
	if err := json.Unmarshal(resp.Data, &health); err != nil {
		return nil, fmt.Errorf("failed to decode health status: %w", err)
	}

	return &health, nil
}
