package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"wabridge/internal/database"
	"wabridge/internal/models"
	"wabridge/internal/service"
	"wabridge/pkg/provider/types"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAdminToken = "test-admin-token-0123456789abcdef0"

// stubEngine stands in for the external WhatsApp engine API
type stubEngine struct {
	sentTexts []*types.SendTextRequest
}

func (s *stubEngine) CreateSession(ctx context.Context, sessionID string) error     { return nil }
func (s *stubEngine) ConnectSession(ctx context.Context, sessionID string) error    { return nil }
func (s *stubEngine) DisconnectSession(ctx context.Context, sessionID string) error { return nil }

func (s *stubEngine) GetSessionStatus(ctx context.Context, sessionID string) (*types.SessionStatus, error) {
	return &types.SessionStatus{State: "CONNECTING"}, nil
}

func (s *stubEngine) GetQRCode(ctx context.Context, sessionID string) (string, error) {
	return "2@stub-qr-code", nil
}

func (s *stubEngine) ListSessions(ctx context.Context) ([]types.SessionStatus, error) {
	return nil, nil
}

func (s *stubEngine) SendText(ctx context.Context, req *types.SendTextRequest) (*types.SendMessageResult, error) {
	s.sentTexts = append(s.sentTexts, req)
	return &types.SendMessageResult{MessageID: "ENGINE_OUT_1"}, nil
}

func (s *stubEngine) SendMedia(ctx context.Context, req *types.SendMediaRequest) (*types.SendMessageResult, error) {
	return &types.SendMessageResult{MessageID: "ENGINE_OUT_2"}, nil
}

func (s *stubEngine) SendLocation(ctx context.Context, req *types.SendLocationRequest) (*types.SendMessageResult, error) {
	return &types.SendMessageResult{MessageID: "ENGINE_OUT_3"}, nil
}

func (s *stubEngine) SendContact(ctx context.Context, req *types.SendContactRequest) (*types.SendMessageResult, error) {
	return &types.SendMessageResult{MessageID: "ENGINE_OUT_4"}, nil
}

func (s *stubEngine) TestWebhook(ctx context.Context, sessionID string) error { return nil }

func (s *stubEngine) HealthCheck(ctx context.Context) (*types.HealthStatus, error) {
	return &types.HealthStatus{}, nil
}

func newTestServer(t *testing.T, rateLimit int) (*httptest.Server, *stubEngine) {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	db, err := database.New(filepath.Join(t.TempDir(), "server_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, db.Close())
	})

	cfg := &models.Config{}
	cfg.Server.AdminToken = testAdminToken
	cfg.Server.RateLimitRequests = rateLimit
	cfg.Server.RateLimitWindowSec = 60
	cfg.Webhook.TimeoutSec = 5

	engine := &stubEngine{}
	dispatcher := service.NewDispatcher(db, logger, 5*time.Second, "test")
	processor := service.NewEventProcessor(db, dispatcher, logger)
	devices := service.NewDeviceService(db, engine, dispatcher, logger)
	messages := service.NewMessageService(db, engine, logger, "62")

	srv := NewServer(cfg, processor, devices, messages, logger)
	ts := httptest.NewServer(srv.router)
	t.Cleanup(ts.Close)

	return ts, engine
}

func doRequest(t *testing.T, method, url string, body interface{}, headers map[string]string) (*http.Response, map[string]interface{}) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, resp.Body.Close())
	}()

	var decoded map[string]interface{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &decoded), "body: %s", raw)
	}

	return resp, decoded
}

func adminHeaders() map[string]string {
	return map[string]string{"Authorization": "Bearer " + testAdminToken}
}

func createTestDevice(t *testing.T, baseURL string) (apiKey, sessionID string) {
	t.Helper()

	resp, body := doRequest(t, http.MethodPost, baseURL+"/api/devices", map[string]string{
		"device_name": "integration phone",
	}, adminHeaders())
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	apiKey, _ = body["api_key"].(string)
	sessionID, _ = body["session_id"].(string)
	require.NotEmpty(t, apiKey)
	require.NotEmpty(t, sessionID)
	return apiKey, sessionID
}

func TestServer_Health(t *testing.T) {
	ts, _ := newTestServer(t, 1000)

	resp, body := doRequest(t, http.MethodGet, ts.URL+"/health", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestServer_EngineEvent_Malformed(t *testing.T) {
	ts, _ := newTestServer(t, 1000)

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/webhooks/receiver", bytes.NewBufferString("{not json"))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, resp.Body.Close())
	}()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_EngineEvent_UnknownSessionAcknowledged(t *testing.T) {
	ts, _ := newTestServer(t, 1000)

	resp, body := doRequest(t, http.MethodPost, ts.URL+"/webhooks/receiver", map[string]interface{}{
		"sessionId": "wa_0_nobody",
		"event":     "message",
		"data":      map[string]interface{}{},
	}, nil)

	assert.Equal(t, http.StatusOK, resp.StatusCode, "unknown sessions are acknowledged so the engine stops retrying")
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "event dropped", body["message"])
}

func TestServer_EventToMessageFlow(t *testing.T) {
	ts, engine := newTestServer(t, 1000)
	apiKey, sessionID := createTestDevice(t, ts.URL)

	// Engine delivers an inbound text
	resp, body := doRequest(t, http.MethodPost, ts.URL+"/webhooks/receiver", map[string]interface{}{
		"sessionId": sessionID,
		"event":     "message",
		"data": map[string]interface{}{
			"key": map[string]interface{}{
				"id":        "ENGINE_IN_1",
				"remoteJid": "628123456789@s.whatsapp.net",
				"fromMe":    false,
			},
			"message": map[string]interface{}{
				"conversation": "hello from engine",
			},
		},
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "event processed", body["message"])

	// The device API shows the stored message
	resp, body = doRequest(t, http.MethodGet, ts.URL+"/api/messages", nil, map[string]string{"X-Api-Key": apiKey})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["count"])

	messages, ok := body["messages"].([]interface{})
	require.True(t, ok)
	first, ok := messages[0].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "hello from engine", first["content"])
	assert.Equal(t, "incoming", first["direction"])

	// Sending a reply goes through the engine and is recorded too
	resp, body = doRequest(t, http.MethodPost, ts.URL+"/api/messages/text", map[string]string{
		"to":   "628123456789",
		"text": "hello back",
	}, map[string]string{"X-Api-Key": apiKey})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ENGINE_OUT_1", body["provider_message_id"])
	require.Len(t, engine.sentTexts, 1)
	assert.Equal(t, "628123456789@s.whatsapp.net", engine.sentTexts[0].To)

	resp, body = doRequest(t, http.MethodGet, ts.URL+"/api/messages", nil, map[string]string{"X-Api-Key": apiKey})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(2), body["count"])
}

func TestServer_AdminAuth(t *testing.T) {
	ts, _ := newTestServer(t, 1000)

	t.Run("missing token", func(t *testing.T) {
		resp, _ := doRequest(t, http.MethodGet, ts.URL+"/api/devices", nil, nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("wrong token", func(t *testing.T) {
		resp, _ := doRequest(t, http.MethodGet, ts.URL+"/api/devices", nil, map[string]string{
			"Authorization": "Bearer wrong-token",
		})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("valid token", func(t *testing.T) {
		resp, _ := doRequest(t, http.MethodGet, ts.URL+"/api/devices", nil, adminHeaders())
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestServer_DeviceAuth(t *testing.T) {
	ts, _ := newTestServer(t, 1000)

	t.Run("missing key", func(t *testing.T) {
		resp, _ := doRequest(t, http.MethodGet, ts.URL+"/api/messages", nil, nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("unknown key", func(t *testing.T) {
		resp, _ := doRequest(t, http.MethodGet, ts.URL+"/api/messages", nil, map[string]string{
			"X-Api-Key": "wa_deadbeefdeadbeefdeadbeefdeadbeefdeadbeef",
		})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestServer_ListDevicesOmitsCredentials(t *testing.T) {
	ts, _ := newTestServer(t, 1000)
	createTestDevice(t, ts.URL)

	resp, body := doRequest(t, http.MethodGet, ts.URL+"/api/devices", nil, adminHeaders())
	require.Equal(t, http.StatusOK, resp.StatusCode)

	devices, ok := body["devices"].([]interface{})
	require.True(t, ok)
	require.Len(t, devices, 1)

	device, ok := devices[0].(map[string]interface{})
	require.True(t, ok)
	assert.NotContains(t, device, "api_key")
	assert.NotContains(t, device, "device_token")
}

func TestServer_WebhookActions(t *testing.T) {
	ts, _ := newTestServer(t, 1000)
	apiKey, _ := createTestDevice(t, ts.URL)
	headers := map[string]string{"X-Api-Key": apiKey}

	t.Run("send custom without URL", func(t *testing.T) {
		resp, _ := doRequest(t, http.MethodPost, ts.URL+"/api/webhook", map[string]interface{}{
			"action":  "send_custom",
			"payload": map[string]string{"ping": "pong"},
		}, headers)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "custom delivery needs a configured webhook URL")
	})

	t.Run("update URL", func(t *testing.T) {
		resp, body := doRequest(t, http.MethodPost, ts.URL+"/api/webhook", map[string]string{
			"action":      "update_url",
			"webhook_url": "https://example.com/hook",
		}, headers)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "updated", body["status"])
		assert.Equal(t, "https://example.com/hook", body["webhook_url"])
	})

	t.Run("send custom", func(t *testing.T) {
		var delivered []byte
		hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			delivered, _ = io.ReadAll(r.Body)
			w.WriteHeader(http.StatusOK)
		}))
		defer hook.Close()

		resp, _ := doRequest(t, http.MethodPost, ts.URL+"/api/webhook", map[string]string{
			"action":      "update_url",
			"webhook_url": hook.URL,
		}, headers)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		resp, body := doRequest(t, http.MethodPost, ts.URL+"/api/webhook", map[string]interface{}{
			"action":  "send_custom",
			"payload": map[string]string{"ping": "pong"},
		}, headers)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "delivered", body["status"])

		var envelope map[string]interface{}
		require.NoError(t, json.Unmarshal(delivered, &envelope))
		assert.Equal(t, "custom", envelope["event"])
		data, ok := envelope["data"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "pong", data["ping"])
	})

	t.Run("unknown action", func(t *testing.T) {
		resp, _ := doRequest(t, http.MethodPost, ts.URL+"/api/webhook", map[string]string{
			"action": "frobnicate",
		}, headers)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestServer_RetireDevice(t *testing.T) {
	ts, _ := newTestServer(t, 1000)
	apiKey, _ := createTestDevice(t, ts.URL)

	resp, body := doRequest(t, http.MethodGet, ts.URL+"/api/devices", nil, adminHeaders())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	devices := body["devices"].([]interface{})
	id := int64(devices[0].(map[string]interface{})["id"].(float64))

	resp, body = doRequest(t, http.MethodDelete, fmt.Sprintf("%s/api/devices/%d", ts.URL, id), nil, adminHeaders())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "retired", body["status"])

	// The retired device's API key stops working
	resp, _ = doRequest(t, http.MethodGet, ts.URL+"/api/messages", nil, map[string]string{"X-Api-Key": apiKey})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServer_RateLimit(t *testing.T) {
	ts, _ := newTestServer(t, 3)

	for i := 0; i < 3; i++ {
		resp, _ := doRequest(t, http.MethodGet, ts.URL+"/health", nil, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode, "request %d within the limit", i+1)
	}

	resp, _ := doRequest(t, http.MethodGet, ts.URL+"/health", nil, nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}
