package service

import (
	"context"
	"strings"

	"wabridge/internal/constants"
	"wabridge/internal/errors"
	"wabridge/internal/models"
	"wabridge/internal/validation"
	providertypes "wabridge/pkg/provider/types"

	"github.com/sirupsen/logrus"
)

// MessageStore is the persistence surface for message operations
type MessageStore interface {
	SaveMessage(ctx context.Context, msg *models.Message) error
	GetMessagesByDevice(ctx context.Context, deviceID int64, limit, offset int) ([]*models.Message, error)
	UpdateDeviceLastActivity(ctx context.Context, id int64) error
}

// SendTextInput carries a text send request from the API layer
type SendTextInput struct {
	To              string
	Text            string
	QuotedMessageID string
}

// SendMediaInput carries a media send request. Media is base64 encoded.
type SendMediaInput struct {
	To       string
	Media    string
	MimeType string
	FileName string
	Caption  string
}

// SendLocationInput carries a location send request
type SendLocationInput struct {
	To        string
	Latitude  float64
	Longitude float64
	Name      string
}

// SendContactInput carries a contact card send request
type SendContactInput struct {
	To          string
	DisplayName string
	VCard       string
}

// MessageService sends messages through the engine and records them in the
// message store.
type MessageService struct {
	store       MessageStore
	provider    providertypes.Client
	logger      *logrus.Logger
	countryCode string
}

func NewMessageService(store MessageStore, provider providertypes.Client, logger *logrus.Logger, countryCode string) *MessageService {
	if countryCode == "" {
		countryCode = constants.DefaultCountryCode
	}

	return &MessageService{
		store:       store,
		provider:    provider,
		logger:      logger,
		countryCode: countryCode,
	}
}

// resolveRecipient turns a raw recipient into a JID. Full JIDs (including
// group JIDs) pass through untouched; bare numbers are normalized first.
func (s *MessageService) resolveRecipient(to string) (string, error) {
	if to == "" {
		return "", errors.New(errors.ErrCodeInvalidInput, "recipient cannot be empty")
	}

	if strings.Contains(to, "@") {
		return to, nil
	}

	normalized, err := validation.NormalizePhoneNumber(to, s.countryCode)
	if err != nil {
		return "", err
	}

	return normalized + constants.UserJIDSuffix, nil
}

// record persists an outgoing message row after a successful engine send
func (s *MessageService) record(ctx context.Context, device *models.Device, jid string, msgType models.MessageType, content string, result *providertypes.SendMessageResult, mediaURL, caption, quotedID *string) (*models.Message, error) {
	var devicePhone string
	if device.PhoneNumber != nil {
		devicePhone = *device.PhoneNumber
	}

	msg := &models.Message{
		DeviceID:          device.ID,
		ProviderMessageID: result.MessageID,
		SessionID:         device.SessionID,
		Direction:         models.DirectionOutgoing,
		Type:              msgType,
		FromNumber:        devicePhone,
		ToNumber:          PhoneFromJID(jid),
		Content:           content,
		MediaURL:          mediaURL,
		Caption:           caption,
		QuotedMessageID:   quotedID,
		Status:            models.MessageStatusSent,
	}

	if IsGroupJID(jid) {
		groupID := jid
		msg.GroupID = &groupID
	}

	if err := s.store.SaveMessage(ctx, msg); err != nil {
		// The message already left through the engine; losing the row is
		// an audit gap, not a send failure
		s.logger.WithError(err).WithFields(logrus.Fields{
			LogFieldDeviceID:  device.ID,
			LogFieldMessageID: result.MessageID,
		}).Error("Failed to record outgoing message")
		return msg, nil
	}

	if err := s.store.UpdateDeviceLastActivity(ctx, device.ID); err != nil {
		s.logger.WithError(err).WithField(LogFieldDeviceID, device.ID).
			Warn("Failed to update device activity")
	}

	return msg, nil
}

// SendText sends a plain text message
func (s *MessageService) SendText(ctx context.Context, device *models.Device, input SendTextInput) (*models.Message, error) {
	if strings.TrimSpace(input.Text) == "" {
		return nil, errors.New(errors.ErrCodeInvalidInput, "message text cannot be empty")
	}

	jid, err := s.resolveRecipient(input.To)
	if err != nil {
		return nil, err
	}

	result, err := s.provider.SendText(ctx, &providertypes.SendTextRequest{
		SessionID:       device.SessionID,
		To:              jid,
		Text:            input.Text,
		QuotedMessageID: input.QuotedMessageID,
	})
	if err != nil {
		return nil, errors.NewProviderAPIError(providertypes.EndpointSendText, 0, err)
	}

	var quotedID *string
	if input.QuotedMessageID != "" {
		quotedID = &input.QuotedMessageID
	}

	return s.record(ctx, device, jid, models.MessageTypeText, input.Text, result, nil, nil, quotedID)
}

// SendMedia sends a media message with base64-encoded content
func (s *MessageService) SendMedia(ctx context.Context, device *models.Device, input SendMediaInput) (*models.Message, error) {
	if input.Media == "" {
		return nil, errors.New(errors.ErrCodeInvalidInput, "media content cannot be empty")
	}
	if input.MimeType == "" {
		return nil, errors.New(errors.ErrCodeInvalidInput, "media mime type is required")
	}

	jid, err := s.resolveRecipient(input.To)
	if err != nil {
		return nil, err
	}

	result, err := s.provider.SendMedia(ctx, &providertypes.SendMediaRequest{
		SessionID: device.SessionID,
		To:        jid,
		Media:     input.Media,
		MimeType:  input.MimeType,
		FileName:  input.FileName,
		Caption:   input.Caption,
	})
	if err != nil {
		return nil, errors.NewProviderAPIError(providertypes.EndpointSendMedia, 0, err)
	}

	msgType := mediaTypeFromMime(input.MimeType)

	var caption *string
	if input.Caption != "" {
		caption = &input.Caption
	}

	return s.record(ctx, device, jid, msgType, input.Caption, result, nil, caption, nil)
}

// mediaTypeFromMime maps a mime type onto the message sub-type vocabulary
func mediaTypeFromMime(mimeType string) models.MessageType {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return models.MessageTypeImage
	case strings.HasPrefix(mimeType, "video/"):
		return models.MessageTypeVideo
	case strings.HasPrefix(mimeType, "audio/"):
		return models.MessageTypeAudio
	default:
		return models.MessageTypeDocument
	}
}

// SendLocation sends a location pin
func (s *MessageService) SendLocation(ctx context.Context, device *models.Device, input SendLocationInput) (*models.Message, error) {
	if input.Latitude < -90 || input.Latitude > 90 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "latitude out of range")
	}
	if input.Longitude < -180 || input.Longitude > 180 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "longitude out of range")
	}

	jid, err := s.resolveRecipient(input.To)
	if err != nil {
		return nil, err
	}

	result, err := s.provider.SendLocation(ctx, &providertypes.SendLocationRequest{
		SessionID: device.SessionID,
		To:        jid,
		Latitude:  input.Latitude,
		Longitude: input.Longitude,
		Name:      input.Name,
	})
	if err != nil {
		return nil, errors.NewProviderAPIError(providertypes.EndpointSendLocation, 0, err)
	}

	content := formatLocationContent(input.Name, input.Latitude, input.Longitude)
	return s.record(ctx, device, jid, models.MessageTypeLocation, content, result, nil, nil, nil)
}

func formatLocationContent(name string, lat, lon float64) string {
	loc := models.LocationBody{Name: name, Latitude: lat, Longitude: lon}
	return extractContent(&models.MessageBody{LocationMessage: &loc})
}

// SendContact sends a contact card
func (s *MessageService) SendContact(ctx context.Context, device *models.Device, input SendContactInput) (*models.Message, error) {
	if input.DisplayName == "" {
		return nil, errors.New(errors.ErrCodeInvalidInput, "contact display name is required")
	}

	jid, err := s.resolveRecipient(input.To)
	if err != nil {
		return nil, err
	}

	result, err := s.provider.SendContact(ctx, &providertypes.SendContactRequest{
		SessionID:   device.SessionID,
		To:          jid,
		DisplayName: input.DisplayName,
		VCard:       input.VCard,
	})
	if err != nil {
		return nil, errors.NewProviderAPIError(providertypes.EndpointSendContact, 0, err)
	}

	return s.record(ctx, device, jid, models.MessageTypeContact, input.DisplayName, result, nil, nil, nil)
}

// GetMessages returns a page of a device's message history, newest first
func (s *MessageService) GetMessages(ctx context.Context, device *models.Device, limit, offset int) ([]*models.Message, error) {
	if limit <= 0 {
		limit = constants.DefaultMessagePageSize
	}
	if limit > constants.MaxMessagePageSize {
		limit = constants.MaxMessagePageSize
	}
	if offset < 0 {
		offset = 0
	}

	messages, err := s.store.GetMessagesByDevice(ctx, device.ID, limit, offset)
	if err != nil {
		return nil, errors.NewDatabaseError("get messages", err)
	}

	return messages, nil
}
