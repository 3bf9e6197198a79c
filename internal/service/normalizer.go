package service

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"wabridge/internal/errors"
	"wabridge/internal/models"
)

// Normalizer turns raw engine payloads into typed internal events. It is
// pure: no I/O, no clock, no mutation of its inputs. Side effects happen in
// the event processor after normalization succeeds.
type Normalizer struct{}

func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// PhoneFromJID extracts the phone number portion of a JID.
// "628123456789@s.whatsapp.net" -> "628123456789"
func PhoneFromJID(jid string) string {
	if idx := strings.Index(jid, "@"); idx >= 0 {
		return jid[:idx]
	}
	return jid
}

// IsGroupJID reports whether a JID addresses a group chat
func IsGroupJID(jid string) bool {
	return strings.HasSuffix(jid, "@g.us")
}

// Normalize converts one raw provider event into its typed form. The device
// must already be resolved; the normalizer never looks anything up.
func (n *Normalizer) Normalize(device *models.Device, event *models.ProviderEvent) (*models.NormalizedEvent, error) {
	switch event.Event {
	case models.EventMessage:
		return n.normalizeMessage(device, event)
	case models.EventConnectionUpdate:
		return n.normalizeConnection(device, event)
	case models.EventQRCode:
		return n.normalizeQR(device, event)
	case models.EventAuthFailure:
		return n.normalizeAuthFailure(device, event)
	case models.EventContactUpdate:
		return n.normalizeContact(device, event)
	case models.EventGroupUpdate:
		return n.normalizeGroup(device, event)
	default:
		// Unknown tags are dropped by the processor, not rejected
		return &models.NormalizedEvent{Type: event.Event, Device: device}, nil
	}
}

func (n *Normalizer) normalizeMessage(device *models.Device, event *models.ProviderEvent) (*models.NormalizedEvent, error) {
	var data models.MessageEventData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return nil, errors.NewMalformedEventError("invalid message event data")
	}

	msgType := classifyMessage(data.Message)
	content := extractContent(data.Message)
	mediaURL := extractMediaURL(data.Message)
	caption := extractCaption(data.Message)
	quotedID := extractQuotedMessageID(data.Message)

	remotePhone := PhoneFromJID(data.Key.RemoteJID)

	var devicePhone string
	if device.PhoneNumber != nil {
		devicePhone = *device.PhoneNumber
	}

	msg := &models.Message{
		DeviceID:          device.ID,
		ProviderMessageID: data.Key.ID,
		SessionID:         device.SessionID,
		Type:              msgType,
		Content:           content,
		MediaURL:          mediaURL,
		Caption:           caption,
		QuotedMessageID:   quotedID,
	}

	if data.Key.FromMe {
		msg.Direction = models.DirectionOutgoing
		msg.FromNumber = devicePhone
		msg.ToNumber = remotePhone
		msg.Status = models.MessageStatusSent
	} else {
		msg.Direction = models.DirectionIncoming
		msg.FromNumber = remotePhone
		msg.ToNumber = devicePhone
		msg.Status = models.MessageStatusDelivered
	}

	// Group messages keep the full JID; the phone fields carry the bare number
	if IsGroupJID(data.Key.RemoteJID) {
		groupID := data.Key.RemoteJID
		msg.GroupID = &groupID
	}

	return &models.NormalizedEvent{
		Type:    models.EventMessage,
		Device:  device,
		Message: msg,
	}, nil
}

// classifyMessage resolves the message sub-type. When more than one variant
// is present, the first match in declaration order wins.
func classifyMessage(body *models.MessageBody) models.MessageType {
	if body == nil {
		return models.MessageTypeUnknown
	}

	switch {
	case body.Conversation != nil, body.ExtendedTextMessage != nil:
		return models.MessageTypeText
	case body.ImageMessage != nil:
		return models.MessageTypeImage
	case body.VideoMessage != nil:
		return models.MessageTypeVideo
	case body.AudioMessage != nil:
		return models.MessageTypeAudio
	case body.DocumentMessage != nil:
		return models.MessageTypeDocument
	case body.ContactMessage != nil:
		return models.MessageTypeContact
	case body.LocationMessage != nil:
		return models.MessageTypeLocation
	case body.ReactionMessage != nil:
		return models.MessageTypeReaction
	default:
		return models.MessageTypeUnknown
	}
}

// extractContent picks the best textual representation of a message
func extractContent(body *models.MessageBody) string {
	if body == nil {
		return ""
	}

	switch {
	case body.Conversation != nil:
		return *body.Conversation
	case body.ExtendedTextMessage != nil:
		return body.ExtendedTextMessage.Text
	case body.ImageMessage != nil && body.ImageMessage.Caption != "":
		return body.ImageMessage.Caption
	case body.VideoMessage != nil && body.VideoMessage.Caption != "":
		return body.VideoMessage.Caption
	case body.DocumentMessage != nil && body.DocumentMessage.Caption != "":
		return body.DocumentMessage.Caption
	case body.ContactMessage != nil:
		return body.ContactMessage.DisplayName
	case body.LocationMessage != nil:
		loc := body.LocationMessage
		name := loc.Name
		if name == "" {
			name = "Unknown"
		}
		return fmt.Sprintf("Location: %s (%v, %v)", name, loc.Latitude, loc.Longitude)
	default:
		return ""
	}
}

// extractMediaURL returns the media URL for downloadable message types only
func extractMediaURL(body *models.MessageBody) *string {
	if body == nil {
		return nil
	}

	var url string
	switch {
	case body.ImageMessage != nil:
		url = body.ImageMessage.URL
	case body.VideoMessage != nil:
		url = body.VideoMessage.URL
	case body.AudioMessage != nil:
		url = body.AudioMessage.URL
	case body.DocumentMessage != nil:
		url = body.DocumentMessage.URL
	}

	if url == "" {
		return nil
	}
	return &url
}

func extractCaption(body *models.MessageBody) *string {
	if body == nil {
		return nil
	}

	var caption string
	switch {
	case body.ImageMessage != nil:
		caption = body.ImageMessage.Caption
	case body.VideoMessage != nil:
		caption = body.VideoMessage.Caption
	case body.DocumentMessage != nil:
		caption = body.DocumentMessage.Caption
	}

	if caption == "" {
		return nil
	}
	return &caption
}

func extractQuotedMessageID(body *models.MessageBody) *string {
	if body == nil || body.ExtendedTextMessage == nil {
		return nil
	}

	ctx := body.ExtendedTextMessage.ContextInfo
	if ctx == nil || ctx.QuotedMessage == nil || ctx.QuotedMessage.Key.ID == "" {
		return nil
	}

	id := ctx.QuotedMessage.Key.ID
	return &id
}

// MapProviderState translates the engine's connection state vocabulary into
// device statuses. Unrecognized states map to unknown, never to an error.
func MapProviderState(state string) models.DeviceStatus {
	switch state {
	case models.ProviderStateConnecting, models.ProviderStateQRGenerated:
		return models.DeviceStatusConnecting
	case models.ProviderStateConnected:
		return models.DeviceStatusConnected
	case models.ProviderStateDisconnected, models.ProviderStateTimeout:
		return models.DeviceStatusDisconnected
	case models.ProviderStateBanned:
		return models.DeviceStatusBanned
	default:
		return models.DeviceStatusUnknown
	}
}

func (n *Normalizer) normalizeConnection(device *models.Device, event *models.ProviderEvent) (*models.NormalizedEvent, error) {
	var data models.ConnectionEventData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return nil, errors.NewMalformedEventError("invalid connection event data")
	}

	update := &models.ConnectionUpdate{
		Status:        MapProviderState(data.State),
		ProviderState: data.State,
	}

	// The phone number is only trustworthy once the session is fully up
	if data.State == models.ProviderStateConnected && data.User != nil && data.User.ID != "" {
		phone := PhoneFromJID(data.User.ID)
		update.PhoneNumber = &phone
	}

	return &models.NormalizedEvent{
		Type:       models.EventConnectionUpdate,
		Device:     device,
		Connection: update,
	}, nil
}

func (n *Normalizer) normalizeQR(device *models.Device, event *models.ProviderEvent) (*models.NormalizedEvent, error) {
	var data models.QREventData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return nil, errors.NewMalformedEventError("invalid qr event data")
	}

	// An empty code still moves the device to connecting; the engine emits
	// such frames while a fresh QR is being generated
	return &models.NormalizedEvent{
		Type:   models.EventQRCode,
		Device: device,
		QR:     &models.QRPayload{QRCode: data.QR},
	}, nil
}

func (n *Normalizer) normalizeAuthFailure(device *models.Device, event *models.ProviderEvent) (*models.NormalizedEvent, error) {
	var data models.AuthFailureEventData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return nil, errors.NewMalformedEventError("invalid auth failure data")
	}

	status := models.DeviceStatusDisconnected
	if data.Reason == "banned" || data.Reason == "blocked" {
		status = models.DeviceStatusBanned
	}

	return &models.NormalizedEvent{
		Type:   models.EventAuthFailure,
		Device: device,
		Auth: &models.AuthFailure{
			Reason: data.Reason,
			Status: status,
		},
	}, nil
}

func (n *Normalizer) normalizeContact(device *models.Device, event *models.ProviderEvent) (*models.NormalizedEvent, error) {
	var data models.ContactEventData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return nil, errors.NewMalformedEventError("invalid contact event data")
	}

	if data.JID == "" {
		return nil, errors.NewMalformedEventError("contact event missing jid")
	}

	contact := &models.Contact{
		DeviceID:       device.ID,
		PhoneNumber:    PhoneFromJID(data.JID),
		DisplayName:    data.Name,
		ProfileName:    data.Notify,
		ProfilePicture: data.ImgURL,
		StatusMessage:  data.StatusText,
	}

	if data.LastSeen > 0 {
		lastSeen := time.Unix(data.LastSeen, 0).UTC()
		contact.LastSeen = &lastSeen
	}

	return &models.NormalizedEvent{
		Type:    models.EventContactUpdate,
		Device:  device,
		Contact: contact,
	}, nil
}

func (n *Normalizer) normalizeGroup(device *models.Device, event *models.ProviderEvent) (*models.NormalizedEvent, error) {
	var data models.GroupEventData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return nil, errors.NewMalformedEventError("invalid group event data")
	}

	if data.JID == "" {
		return nil, errors.NewMalformedEventError("group event missing jid")
	}

	group := &models.Group{
		DeviceID:         device.ID,
		GroupID:          data.JID,
		Subject:          data.Subject,
		Description:      data.Description,
		PictureURL:       data.PictureURL,
		OwnerNumber:      PhoneFromJID(data.Owner),
		ParticipantCount: data.Size,
	}

	return &models.NormalizedEvent{
		Type:   models.EventGroupUpdate,
		Device: device,
		Group:  group,
	}, nil
}
