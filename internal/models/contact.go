package models

import "time"

// Contact is a cached WhatsApp contact, upserted from contact_update events
// and keyed by (device_id, phone_number).
type Contact struct {
	ID             int64      `json:"id"`
	DeviceID       int64      `json:"device_id"`
	PhoneNumber    string     `json:"phone_number"`
	DisplayName    string     `json:"display_name,omitempty"`
	ProfileName    string     `json:"profile_name,omitempty"`
	ProfilePicture string     `json:"profile_picture,omitempty"`
	LastSeen       *time.Time `json:"last_seen,omitempty"`
	StatusMessage  string     `json:"status_message,omitempty"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// GetDisplayName returns the best available name for the contact
func (c *Contact) GetDisplayName() string {
	if c.DisplayName != "" {
		return c.DisplayName
	}
	if c.ProfileName != "" {
		return c.ProfileName
	}
	return c.PhoneNumber
}
