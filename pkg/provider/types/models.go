package types

import (
	"encoding/json"
	"time"
)

// APIResponse is the engine's standard response envelope
type APIResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// SessionRequest identifies a session in engine calls
type SessionRequest struct {
	SessionID string `json:"sessionId"`
}

// SessionStatus is the engine's view of one session
type SessionStatus struct {
	SessionID   string `json:"sessionId"`
	State       string `json:"state"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	Connected   bool   `json:"connected"`
}

// QRCodeResponse carries a pairing QR code
type QRCodeResponse struct {
	SessionID string `json:"sessionId"`
	QRCode    string `json:"qrCode"`
}

// SendTextRequest sends a plain text message
type SendTextRequest struct {
	SessionID       string `json:"sessionId"`
	To              string `json:"to"`
	Text            string `json:"text"`
	QuotedMessageID string `json:"quotedMessageId,omitempty"`
}

// SendMediaRequest sends a media message with base64-encoded content
type SendMediaRequest struct {
	SessionID string `json:"sessionId"`
	To        string `json:"to"`
	Media     string `json:"media"`
	MimeType  string `json:"mimeType"`
	FileName  string `json:"fileName,omitempty"`
	Caption   string `json:"caption,omitempty"`
}

// SendLocationRequest sends a location pin
type SendLocationRequest struct {
	SessionID string  `json:"sessionId"`
	To        string  `json:"to"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      string  `json:"name,omitempty"`
}

// SendContactRequest sends a contact card
type SendContactRequest struct {
	SessionID   string `json:"sessionId"`
	To          string `json:"to"`
	DisplayName string `json:"displayName"`
	VCard       string `json:"vcard,omitempty"`
}

// SendMessageResult is the engine's acknowledgement for an outbound message
type SendMessageResult struct {
	MessageID string `json:"messageId"`
	Status    string `json:"status"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// WebhookTestRequest asks the engine to emit a synthetic event
type WebhookTestRequest struct {
	SessionID string `json:"sessionId"`
}

// HealthStatus is the engine's health report
type HealthStatus struct {
	Status         string `json:"status"`
	ActiveSessions int    `json:"activeSessions"`
	Uptime         int64  `json:"uptime"`
}

// StreamEvent is one event frame from the engine's websocket stream. It
// carries the same shape as the engine's webhook POST body.
type StreamEvent struct {
	SessionID string          `json:"sessionId"`
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data"`
}

// ClientConfig represents the configuration for the engine client
type ClientConfig struct {
	BaseURL string        `json:"base_url"`
	APIKey  string        `json:"api_key"`
	Timeout time.Duration `json:"timeout"`
}
