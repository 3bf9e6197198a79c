package models

import "time"

type MessageDirection string

const (
	DirectionIncoming MessageDirection = "incoming"
	DirectionOutgoing MessageDirection = "outgoing"
)

// MessageType is the normalized sub-type of a WhatsApp message payload
type MessageType string

const (
	MessageTypeText     MessageType = "text"
	MessageTypeImage    MessageType = "image"
	MessageTypeVideo    MessageType = "video"
	MessageTypeAudio    MessageType = "audio"
	MessageTypeDocument MessageType = "document"
	MessageTypeContact  MessageType = "contact"
	MessageTypeLocation MessageType = "location"
	MessageTypeReaction MessageType = "reaction"
	MessageTypeUnknown  MessageType = "unknown"
)

// MessageStatus advances monotonically sent -> delivered -> read
type MessageStatus string

const (
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusRead      MessageStatus = "read"
)

// Rank orders message statuses for the monotonic-advance check.
// Unknown statuses rank below sent so they can never overwrite a real one.
func (s MessageStatus) Rank() int {
	switch s {
	case MessageStatusSent:
		return 1
	case MessageStatusDelivered:
		return 2
	case MessageStatusRead:
		return 3
	default:
		return 0
	}
}

// Message is a stored inbound or outbound message. Immutable after creation
// except for Status.
type Message struct {
	ID                int64            `json:"id"`
	DeviceID          int64            `json:"device_id"`
	ProviderMessageID string           `json:"provider_message_id"`
	SessionID         string           `json:"session_id"`
	Direction         MessageDirection `json:"direction"`
	Type              MessageType      `json:"type"`
	FromNumber        string           `json:"from_number"`
	ToNumber          string           `json:"to_number"`
	GroupID           *string          `json:"group_id,omitempty"`
	Content           string           `json:"content"`
	MediaURL          *string          `json:"media_url,omitempty"`
	Caption           *string          `json:"caption,omitempty"`
	QuotedMessageID   *string          `json:"quoted_message_id,omitempty"`
	Status            MessageStatus    `json:"status"`
	CreatedAt         time.Time        `json:"created_at"`
}
