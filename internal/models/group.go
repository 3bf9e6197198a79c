package models

import "time"

// Group is a cached WhatsApp group, upserted from group_update events and
// keyed by (device_id, group_id).
type Group struct {
	ID               int64     `json:"id"`
	DeviceID         int64     `json:"device_id"`
	GroupID          string    `json:"group_id"`
	Subject          string    `json:"subject,omitempty"`
	Description      string    `json:"description,omitempty"`
	PictureURL       string    `json:"picture_url,omitempty"`
	OwnerNumber      string    `json:"owner_number,omitempty"`
	ParticipantCount int       `json:"participant_count"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// GetDisplayName returns the group subject, falling back to the group ID
func (g *Group) GetDisplayName() string {
	if g.Subject != "" {
		return g.Subject
	}
	return g.GroupID
}
