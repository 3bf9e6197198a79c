package models

import "encoding/json"

// Provider event tags as they appear in the engine's webhook payloads
const (
	EventMessage          = "message"
	EventConnectionUpdate = "connection_update"
	EventQRCode           = "qr_code"
	EventAuthFailure      = "auth_failure"
	EventContactUpdate    = "contact_update"
	EventGroupUpdate      = "group_update"
)

// Outbound webhook event types sent to user-configured callback URLs
const (
	OutboundEventMessageReceived  = "message_received"
	OutboundEventConnectionUpdate = "connection_update"
	OutboundEventQRCode           = "qr_code"
	OutboundEventAuthFailure      = "auth_failure"
	OutboundEventWebhookTest      = "webhook_test"
	OutboundEventCustom           = "custom"
)

// Provider connection state vocabulary
const (
	ProviderStateConnecting   = "CONNECTING"
	ProviderStateConnected    = "CONNECTED"
	ProviderStateDisconnected = "DISCONNECTED"
	ProviderStateBanned       = "BANNED"
	ProviderStateQRGenerated  = "QR_GENERATED"
	ProviderStateTimeout      = "TIMEOUT"
)

// ProviderEvent is the raw envelope posted by the engine to the webhook
// receiver (and carried over the websocket event stream).
type ProviderEvent struct {
	SessionID string          `json:"sessionId"`
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data"`
}

// MessageKey identifies a message within the provider payload
type MessageKey struct {
	ID        string `json:"id"`
	RemoteJID string `json:"remoteJid"`
	FromMe    bool   `json:"fromMe"`
}

// TextBody carries plain extended text plus optional quote context
type TextBody struct {
	Text        string       `json:"text"`
	ContextInfo *ContextInfo `json:"contextInfo,omitempty"`
}

type ContextInfo struct {
	QuotedMessage *struct {
		Key MessageKey `json:"key"`
	} `json:"quotedMessage,omitempty"`
}

// MediaBody is shared by image/video/audio/document payload variants
type MediaBody struct {
	URL      string `json:"url"`
	Caption  string `json:"caption,omitempty"`
	MimeType string `json:"mimetype,omitempty"`
	FileName string `json:"fileName,omitempty"`
}

type ContactBody struct {
	DisplayName string `json:"displayName"`
	VCard       string `json:"vcard,omitempty"`
}

type LocationBody struct {
	Name      string  `json:"name,omitempty"`
	Latitude  float64 `json:"degreesLatitude"`
	Longitude float64 `json:"degreesLongitude"`
}

type ReactionBody struct {
	Text string `json:"text"`
	Key  *MessageKey `json:"key,omitempty"`
}

// MessageBody is the provider's one-of message container. Exactly one field
// is expected to be set; classification resolves ties by declaration order.
type MessageBody struct {
	Conversation        *string       `json:"conversation,omitempty"`
	ExtendedTextMessage *TextBody     `json:"extendedTextMessage,omitempty"`
	ImageMessage        *MediaBody    `json:"imageMessage,omitempty"`
	VideoMessage        *MediaBody    `json:"videoMessage,omitempty"`
	AudioMessage        *MediaBody    `json:"audioMessage,omitempty"`
	DocumentMessage     *MediaBody    `json:"documentMessage,omitempty"`
	ContactMessage      *ContactBody  `json:"contactMessage,omitempty"`
	LocationMessage     *LocationBody `json:"locationMessage,omitempty"`
	ReactionMessage     *ReactionBody `json:"reactionMessage,omitempty"`
}

// MessageEventData is the data object of a `message` event
type MessageEventData struct {
	Key     MessageKey   `json:"key"`
	Message *MessageBody `json:"message,omitempty"`
}

// ConnectionEventData is the data object of a `connection_update` event
type ConnectionEventData struct {
	State string `json:"state"`
	User  *struct {
		ID string `json:"id"`
	} `json:"user,omitempty"`
}

// QREventData is the data object of a `qr_code` event
type QREventData struct {
	QR string `json:"qr"`
}

// AuthFailureEventData is the data object of an `auth_failure` event
type AuthFailureEventData struct {
	Reason string `json:"reason"`
}

// ContactEventData is the data object of a `contact_update` event
type ContactEventData struct {
	JID         string `json:"jid"`
	Name        string `json:"name,omitempty"`
	Notify      string `json:"notify,omitempty"`
	ImgURL      string `json:"imgUrl,omitempty"`
	LastSeen    int64  `json:"lastSeen,omitempty"`
	StatusText  string `json:"status,omitempty"`
}

// GroupEventData is the data object of a `group_update` event
type GroupEventData struct {
	JID         string `json:"jid"`
	Subject     string `json:"subject,omitempty"`
	Description string `json:"desc,omitempty"`
	PictureURL  string `json:"pictureUrl,omitempty"`
	Owner       string `json:"owner,omitempty"`
	Size        int    `json:"size,omitempty"`
}

// ConnectionUpdate is the normalized form of a connection_update event
type ConnectionUpdate struct {
	Status        DeviceStatus `json:"status"`
	ProviderState string       `json:"node_status"`
	PhoneNumber   *string      `json:"phone_number,omitempty"`
}

// QRPayload is the normalized form of a qr_code event
type QRPayload struct {
	QRCode string `json:"qr_code"`
}

// AuthFailure is the normalized form of an auth_failure event
type AuthFailure struct {
	Reason string       `json:"reason"`
	Status DeviceStatus `json:"status"`
}

// NormalizedEvent is the strongly-typed internal representation of one raw
// provider callback. It lives only for the duration of a single receiver
// invocation: exactly one payload field is non-nil, matching Type.
type NormalizedEvent struct {
	Type       string
	Device     *Device
	Message    *Message
	Connection *ConnectionUpdate
	QR         *QRPayload
	Auth       *AuthFailure
	Contact    *Contact
	Group      *Group
}
