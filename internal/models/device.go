package models

import "time"

// DeviceStatus represents the bridge-side view of a WhatsApp session state
type DeviceStatus string

const (
	DeviceStatusDisconnected DeviceStatus = "disconnected"
	DeviceStatusConnecting   DeviceStatus = "connecting"
	DeviceStatusConnected    DeviceStatus = "connected"
	DeviceStatusBanned       DeviceStatus = "banned"
	DeviceStatusUnknown      DeviceStatus = "unknown"
	// DeviceStatusInactive marks a soft-retired device. Inactive devices are
	// excluded from session and API key lookups and are never hard-deleted.
	DeviceStatusInactive DeviceStatus = "inactive"
)

// Device is a logical WhatsApp session registered with the bridge
type Device struct {
	ID           int64        `json:"id"`
	Name         string       `json:"device_name"`
	SessionID    string       `json:"session_id"`
	DeviceToken  string       `json:"device_token,omitempty"`
	APIKey       string       `json:"api_key,omitempty"`
	WebhookURL   string       `json:"webhook_url,omitempty"`
	Note         string       `json:"note,omitempty"`
	Status       DeviceStatus `json:"status"`
	PhoneNumber  *string      `json:"phone_number,omitempty"`
	QRCode       *string      `json:"qr_code,omitempty"`
	LastActivity *time.Time   `json:"last_activity,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// DeviceStats aggregates device counts by status for the device list endpoint
type DeviceStats struct {
	Total        int `json:"total"`
	Connected    int `json:"connected"`
	Connecting   int `json:"connecting"`
	Disconnected int `json:"disconnected"`
	Banned       int `json:"banned"`
}
