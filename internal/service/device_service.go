package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"wabridge/internal/constants"
	"wabridge/internal/errors"
	"wabridge/internal/models"
	"wabridge/internal/privacy"
	"wabridge/internal/validation"
	providertypes "wabridge/pkg/provider/types"

	"github.com/sirupsen/logrus"
)

// DeviceStore is the persistence surface for device management
type DeviceStore interface {
	CreateDevice(ctx context.Context, device *models.Device) error
	GetDeviceByID(ctx context.Context, id int64) (*models.Device, error)
	GetDeviceByAPIKey(ctx context.Context, apiKey string) (*models.Device, error)
	ListDevices(ctx context.Context) ([]*models.Device, error)
	UpdateDeviceStatus(ctx context.Context, id int64, status models.DeviceStatus, phoneNumber, qrCode *string) error
	UpdateDeviceWebhookURL(ctx context.Context, id int64, webhookURL string) error
	RetireDevice(ctx context.Context, id int64) error
	GetWebhookStats(ctx context.Context, deviceID int64) (*models.WebhookStats, error)
	GetRecentWebhookLogs(ctx context.Context, deviceID int64, limit int) ([]*models.WebhookDeliveryLog, error)
}

// DeviceService manages device lifecycle against both the local registry and
// the external engine.
type DeviceService struct {
	store      DeviceStore
	provider   providertypes.Client
	dispatcher EventDispatcher
	logger     *logrus.Logger
}

func NewDeviceService(store DeviceStore, provider providertypes.Client, dispatcher EventDispatcher, logger *logrus.Logger) *DeviceService {
	return &DeviceService{
		store:      store,
		provider:   provider,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// GenerateSessionID builds a new unique session identifier
func GenerateSessionID() (string, error) {
	suffix, err := randomHex(3)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s_%d_%s", constants.SessionIDPrefix, time.Now().Unix(), suffix), nil
}

// GenerateAPIKey builds a new device API key
func GenerateAPIKey() (string, error) {
	key, err := randomHex(constants.APIKeyRandomBytes)
	if err != nil {
		return "", err
	}
	return constants.APIKeyPrefix + key, nil
}

// GenerateDeviceToken builds a new device token
func GenerateDeviceToken() (string, error) {
	token, err := randomHex(16)
	if err != nil {
		return "", err
	}
	return constants.DeviceTokenPrefix + token, nil
}

// CreateDevice registers a device locally, provisions its engine session and
// starts the connect flow. If the engine rejects the session the device is
// retired immediately so the registry does not accumulate orphans.
func (s *DeviceService) CreateDevice(ctx context.Context, name, webhookURL, note string) (*models.Device, error) {
	if err := validation.ValidateDeviceName(name); err != nil {
		return nil, err
	}
	if err := validation.ValidateWebhookURL(webhookURL); err != nil {
		return nil, err
	}

	sessionID, err := GenerateSessionID()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to generate session ID")
	}
	apiKey, err := GenerateAPIKey()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to generate API key")
	}
	deviceToken, err := GenerateDeviceToken()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to generate device token")
	}

	device := &models.Device{
		Name:        name,
		SessionID:   sessionID,
		DeviceToken: deviceToken,
		APIKey:      apiKey,
		WebhookURL:  webhookURL,
		Note:        note,
		Status:      models.DeviceStatusDisconnected,
	}

	if err := s.store.CreateDevice(ctx, device); err != nil {
		return nil, errors.NewDatabaseError("create device", err)
	}

	if err := s.provider.CreateSession(ctx, sessionID); err != nil {
		// Roll back the registry entry; the engine never saw this session
		if retireErr := s.store.RetireDevice(ctx, device.ID); retireErr != nil {
			s.logger.WithError(retireErr).WithField(LogFieldDeviceID, device.ID).
				Error("Failed to retire device after engine rejection")
		}
		return nil, errors.NewProviderAPIError(providertypes.EndpointCreateSession, 0, err)
	}

	if err := s.provider.ConnectSession(ctx, sessionID); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			LogFieldDeviceID: device.ID,
			LogFieldSession:  privacy.MaskSessionID(sessionID),
		}).Warn("Engine connect failed after session creation")
	} else {
		if err := s.store.UpdateDeviceStatus(ctx, device.ID, models.DeviceStatusConnecting, nil, nil); err != nil {
			s.logger.WithError(err).WithField(LogFieldDeviceID, device.ID).
				Warn("Failed to mark device connecting")
		} else {
			device.Status = models.DeviceStatusConnecting
		}
	}

	s.logger.WithFields(logrus.Fields{
		LogFieldDeviceID: device.ID,
		LogFieldSession:  privacy.MaskSessionID(sessionID),
	}).Info("Device created")

	return device, nil
}

func (s *DeviceService) GetDevice(ctx context.Context, id int64) (*models.Device, error) {
	device, err := s.store.GetDeviceByID(ctx, id)
	if err != nil {
		return nil, errors.NewDatabaseError("get device", err)
	}
	if device == nil {
		return nil, errors.NewNotFoundError("device", fmt.Sprintf("%d", id))
	}
	return device, nil
}

// AuthenticateByAPIKey resolves a device from its API key
func (s *DeviceService) AuthenticateByAPIKey(ctx context.Context, apiKey string) (*models.Device, error) {
	if apiKey == "" {
		return nil, errors.NewAuthError("missing API key")
	}

	device, err := s.store.GetDeviceByAPIKey(ctx, apiKey)
	if err != nil {
		return nil, errors.NewDatabaseError("device auth", err)
	}
	if device == nil {
		return nil, errors.NewAuthError("unknown API key")
	}

	return device, nil
}

// ListDevices returns active devices and aggregate counts by status
func (s *DeviceService) ListDevices(ctx context.Context) ([]*models.Device, *models.DeviceStats, error) {
	devices, err := s.store.ListDevices(ctx)
	if err != nil {
		return nil, nil, errors.NewDatabaseError("list devices", err)
	}

	stats := &models.DeviceStats{Total: len(devices)}
	for _, device := range devices {
		switch device.Status {
		case models.DeviceStatusConnected:
			stats.Connected++
		case models.DeviceStatusConnecting:
			stats.Connecting++
		case models.DeviceStatusDisconnected:
			stats.Disconnected++
		case models.DeviceStatusBanned:
			stats.Banned++
		}
	}

	return devices, stats, nil
}

// SyncStatus pulls the live session state from the engine and folds it into
// the registry. The engine is authoritative; the stored status is a cache.
func (s *DeviceService) SyncStatus(ctx context.Context, device *models.Device) (*models.Device, error) {
	status, err := s.provider.GetSessionStatus(ctx, device.SessionID)
	if err != nil {
		return nil, errors.NewProviderAPIError(providertypes.EndpointStatus, 0, err)
	}

	mapped := MapProviderState(status.State)

	var phone *string
	if status.State == models.ProviderStateConnected && status.PhoneNumber != "" {
		normalized := PhoneFromJID(status.PhoneNumber)
		phone = &normalized
	}

	if err := s.store.UpdateDeviceStatus(ctx, device.ID, mapped, phone, nil); err != nil {
		return nil, errors.NewDatabaseError("sync status", err)
	}

	device.Status = mapped
	if phone != nil {
		device.PhoneNumber = phone
	}

	return device, nil
}

// GetQRCode fetches a fresh pairing code from the engine and caches it
func (s *DeviceService) GetQRCode(ctx context.Context, device *models.Device) (string, error) {
	qr, err := s.provider.GetQRCode(ctx, device.SessionID)
	if err != nil {
		return "", errors.NewProviderAPIError(providertypes.EndpointQR, 0, err)
	}

	if qr == "" {
		return "", errors.NewNotFoundError("qr code", device.SessionID)
	}

	if err := s.store.UpdateDeviceStatus(ctx, device.ID, models.DeviceStatusConnecting, nil, &qr); err != nil {
		s.logger.WithError(err).WithField(LogFieldDeviceID, device.ID).
			Warn("Failed to cache QR code")
	}

	return qr, nil
}

// Logout disconnects the engine session and marks the device disconnected
func (s *DeviceService) Logout(ctx context.Context, device *models.Device) error {
	if err := s.provider.DisconnectSession(ctx, device.SessionID); err != nil {
		return errors.NewProviderAPIError(providertypes.EndpointDisconnect, 0, err)
	}

	if err := s.store.UpdateDeviceStatus(ctx, device.ID, models.DeviceStatusDisconnected, nil, nil); err != nil {
		return errors.NewDatabaseError("logout", err)
	}

	device.Status = models.DeviceStatusDisconnected
	return nil
}

// UpdateWebhookURL validates and stores a new callback URL for the device
func (s *DeviceService) UpdateWebhookURL(ctx context.Context, device *models.Device, webhookURL string) error {
	if err := validation.ValidateWebhookURL(webhookURL); err != nil {
		return err
	}

	if err := s.store.UpdateDeviceWebhookURL(ctx, device.ID, webhookURL); err != nil {
		return errors.NewDatabaseError("update webhook URL", err)
	}

	device.WebhookURL = webhookURL
	return nil
}

// TestWebhook sends a synthetic event to the device's callback URL and
// reports the delivery outcome. The attempt is logged like any dispatch.
func (s *DeviceService) TestWebhook(ctx context.Context, device *models.Device) error {
	if device.WebhookURL == "" {
		return errors.New(errors.ErrCodeValidationFailed, "device has no webhook URL configured").
			WithUserMessage("Set a webhook URL before testing")
	}

	payload := map[string]interface{}{
		"message":   "webhook test",
		"timestamp": time.Now().Unix(),
	}

	return s.dispatcher.Dispatch(ctx, device, models.OutboundEventWebhookTest, payload)
}

// SendCustomWebhook delivers a caller-supplied payload to the device's
// callback URL, logged like any other dispatch attempt.
func (s *DeviceService) SendCustomWebhook(ctx context.Context, device *models.Device, payload json.RawMessage) error {
	if device.WebhookURL == "" {
		return errors.New(errors.ErrCodeValidationFailed, "device has no webhook URL configured").
			WithUserMessage("Set a webhook URL before sending")
	}
	if len(payload) == 0 {
		return errors.New(errors.ErrCodeInvalidInput, "custom webhook payload is required")
	}

	return s.dispatcher.Dispatch(ctx, device, models.OutboundEventCustom, payload)
}

// WebhookStats returns aggregate delivery outcomes and recent log rows
func (s *DeviceService) WebhookStats(ctx context.Context, device *models.Device) (*models.WebhookStats, []*models.WebhookDeliveryLog, error) {
	stats, err := s.store.GetWebhookStats(ctx, device.ID)
	if err != nil {
		return nil, nil, errors.NewDatabaseError("webhook stats", err)
	}

	logs, err := s.store.GetRecentWebhookLogs(ctx, device.ID, constants.RecentWebhookLogCount)
	if err != nil {
		return nil, nil, errors.NewDatabaseError("webhook logs", err)
	}

	return stats, logs, nil
}

// Retire disconnects the engine session best-effort and soft-deletes the
// device. History rows stay intact.
func (s *DeviceService) Retire(ctx context.Context, device *models.Device) error {
	if err := s.provider.DisconnectSession(ctx, device.SessionID); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			LogFieldDeviceID: device.ID,
			LogFieldSession:  privacy.MaskSessionID(device.SessionID),
		}).Warn("Engine disconnect failed during retire")
	}

	if err := s.store.RetireDevice(ctx, device.ID); err != nil {
		return errors.NewDatabaseError("retire device", err)
	}

	device.Status = models.DeviceStatusInactive
	return nil
}
