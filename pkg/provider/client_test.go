package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"wabridge/pkg/provider/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	method string
	path   string
	apiKey string
	body   map[string]interface{}
}

// newEngineStub serves canned envelope responses and records what the client
// sends.
func newEngineStub(t *testing.T, statusCode int, envelope types.APIResponse) (*httptest.Server, *recordedRequest) {
	t.Helper()

	recorded := &recordedRequest{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorded.method = r.Method
		recorded.path = r.URL.Path
		recorded.apiKey = r.Header.Get("X-Api-Key")

		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&recorded.body)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		require.NoError(t, json.NewEncoder(w).Encode(envelope))
	}))
	t.Cleanup(server.Close)

	return server, recorded
}

func successEnvelope(t *testing.T, data interface{}) types.APIResponse {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	return types.APIResponse{Success: true, Data: raw}
}

func TestCreateSession(t *testing.T) {
	server, recorded := newEngineStub(t, http.StatusOK, types.APIResponse{Success: true})
	client := NewClient(types.ClientConfig{BaseURL: server.URL, APIKey: "engine-key"})

	err := client.CreateSession(context.Background(), "wa_1_abc")
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, recorded.method)
	assert.Equal(t, types.EndpointCreateSession, recorded.path)
	assert.Equal(t, "engine-key", recorded.apiKey)
	assert.Equal(t, "wa_1_abc", recorded.body["sessionId"])
}

func TestGetSessionStatus(t *testing.T) {
	server, recorded := newEngineStub(t, http.StatusOK, successEnvelope(t, types.SessionStatus{
		SessionID:   "wa_1_abc",
		State:       types.StateConnected,
		PhoneNumber: "628123456789@s.whatsapp.net",
		Connected:   true,
	}))
	client := NewClient(types.ClientConfig{BaseURL: server.URL})

	status, err := client.GetSessionStatus(context.Background(), "wa_1_abc")
	require.NoError(t, err)

	assert.Equal(t, types.EndpointStatus+"wa_1_abc", recorded.path)
	assert.Equal(t, types.StateConnected, status.State)
	assert.Equal(t, "628123456789@s.whatsapp.net", status.PhoneNumber)
	assert.True(t, status.Connected)
}

func TestGetQRCode(t *testing.T) {
	server, _ := newEngineStub(t, http.StatusOK, successEnvelope(t, types.QRCodeResponse{
		SessionID: "wa_1_abc",
		QRCode:    "2@qr-data",
	}))
	client := NewClient(types.ClientConfig{BaseURL: server.URL})

	qr, err := client.GetQRCode(context.Background(), "wa_1_abc")
	require.NoError(t, err)
	assert.Equal(t, "2@qr-data", qr)
}

func TestSendText(t *testing.T) {
	server, recorded := newEngineStub(t, http.StatusOK, successEnvelope(t, types.SendMessageResult{
		MessageID: "MSG_42",
		Status:    "sent",
	}))
	client := NewClient(types.ClientConfig{BaseURL: server.URL})

	result, err := client.SendText(context.Background(), &types.SendTextRequest{
		SessionID: "wa_1_abc",
		To:        "628123456789@s.whatsapp.net",
		Text:      "hello",
	})
	require.NoError(t, err)

	assert.Equal(t, types.EndpointSendText, recorded.path)
	assert.Equal(t, "hello", recorded.body["text"])
	assert.Equal(t, "MSG_42", result.MessageID)
}

func TestEngineErrorEnvelope(t *testing.T) {
	server, _ := newEngineStub(t, http.StatusOK, types.APIResponse{
		Success: false,
		Error:   "session not found",
	})
	client := NewClient(types.ClientConfig{BaseURL: server.URL})

	err := client.ConnectSession(context.Background(), "wa_1_abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session not found")
}

func TestEngineHTTPError(t *testing.T) {
	server, _ := newEngineStub(t, http.StatusInternalServerError, types.APIResponse{Success: false})
	client := NewClient(types.ClientConfig{BaseURL: server.URL})

	err := client.DisconnectSession(context.Background(), "wa_1_abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestEngineUnreachable(t *testing.T) {
	client := NewClient(types.ClientConfig{BaseURL: "http://127.0.0.1:1"})

	_, err := client.HealthCheck(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine request failed")
}

func TestHealthCheck(t *testing.T) {
	server, recorded := newEngineStub(t, http.StatusOK, successEnvelope(t, types.HealthStatus{
		Status:         "ok",
		ActiveSessions: 3,
	}))
	client := NewClient(types.ClientConfig{BaseURL: server.URL})

	health, err := client.HealthCheck(context.Background())
	require.NoError(t, err)

	assert.Equal(t, types.EndpointHealth, recorded.path)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 3, health.ActiveSessions)
}
