package service

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"wabridge/internal/errors"
	"wabridge/internal/models"
	providertypes "wabridge/pkg/provider/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDeviceStore struct {
	devices    map[int64]*models.Device
	nextID     int64
	webhookURL string
	retired    []int64
	stats      *models.WebhookStats
	logs       []*models.WebhookDeliveryLog
}

func newFakeDeviceStore() *fakeDeviceStore {
	return &fakeDeviceStore{devices: make(map[int64]*models.Device), nextID: 1}
}

func (f *fakeDeviceStore) CreateDevice(ctx context.Context, device *models.Device) error {
	device.ID = f.nextID
	f.nextID++
	f.devices[device.ID] = device
	return nil
}

func (f *fakeDeviceStore) GetDeviceByID(ctx context.Context, id int64) (*models.Device, error) {
	return f.devices[id], nil
}

func (f *fakeDeviceStore) GetDeviceByAPIKey(ctx context.Context, apiKey string) (*models.Device, error) {
	for _, d := range f.devices {
		if d.APIKey == apiKey && d.Status != models.DeviceStatusInactive {
			return d, nil
		}
	}
	return nil, nil
}

func (f *fakeDeviceStore) ListDevices(ctx context.Context) ([]*models.Device, error) {
	var out []*models.Device
	for _, d := range f.devices {
		if d.Status != models.DeviceStatusInactive {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeDeviceStore) UpdateDeviceStatus(ctx context.Context, id int64, status models.DeviceStatus, phoneNumber, qrCode *string) error {
	d := f.devices[id]
	if d == nil {
		return fmt.Errorf("device %d not found", id)
	}
	d.Status = status
	if phoneNumber != nil {
		d.PhoneNumber = phoneNumber
	}
	d.QRCode = qrCode
	return nil
}

func (f *fakeDeviceStore) UpdateDeviceWebhookURL(ctx context.Context, id int64, webhookURL string) error {
	f.webhookURL = webhookURL
	return nil
}

func (f *fakeDeviceStore) RetireDevice(ctx context.Context, id int64) error {
	f.retired = append(f.retired, id)
	if d := f.devices[id]; d != nil {
		d.Status = models.DeviceStatusInactive
	}
	return nil
}

func (f *fakeDeviceStore) GetWebhookStats(ctx context.Context, deviceID int64) (*models.WebhookStats, error) {
	if f.stats == nil {
		return &models.WebhookStats{}, nil
	}
	return f.stats, nil
}

func (f *fakeDeviceStore) GetRecentWebhookLogs(ctx context.Context, deviceID int64, limit int) ([]*models.WebhookDeliveryLog, error) {
	return f.logs, nil
}

func TestGenerateIdentifiers(t *testing.T) {
	sessionID, err := GenerateSessionID()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sessionID, "wa_"))
	assert.Len(t, strings.Split(sessionID, "_"), 3)

	apiKey, err := GenerateAPIKey()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(apiKey, "wa_"))
	assert.Len(t, apiKey, 3+40, "wa_ prefix plus 20 hex-encoded bytes")

	token, err := GenerateDeviceToken()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(token, "dev_"))

	// Uniqueness across calls
	other, err := GenerateAPIKey()
	require.NoError(t, err)
	assert.NotEqual(t, apiKey, other)
}

func TestCreateDevice_HappyPath(t *testing.T) {
	store := newFakeDeviceStore()
	client := &fakeProviderClient{}
	svc := NewDeviceService(store, client, &fakeDispatcher{}, testLogger())

	device, err := svc.CreateDevice(context.Background(), "office phone", "https://example.com/hook", "main line")
	require.NoError(t, err)

	assert.NotZero(t, device.ID)
	assert.NotEmpty(t, device.APIKey)
	assert.NotEmpty(t, device.SessionID)
	assert.Equal(t, models.DeviceStatusConnecting, device.Status)
	assert.Equal(t, []string{device.SessionID}, client.createdSessions)
	assert.Equal(t, []string{device.SessionID}, client.connectedSessions)
	assert.Empty(t, store.retired)
}

func TestCreateDevice_ValidationFailures(t *testing.T) {
	svc := NewDeviceService(newFakeDeviceStore(), &fakeProviderClient{}, &fakeDispatcher{}, testLogger())

	_, err := svc.CreateDevice(context.Background(), "", "", "")
	require.Error(t, err, "empty name")

	_, err = svc.CreateDevice(context.Background(), "phone", "ftp://bad.example", "")
	require.Error(t, err, "non-http webhook scheme")
}

func TestCreateDevice_EngineRejectionRollsBack(t *testing.T) {
	store := newFakeDeviceStore()
	client := &fakeProviderClient{createSessionErr: fmt.Errorf("engine rejected")}
	svc := NewDeviceService(store, client, &fakeDispatcher{}, testLogger())

	_, err := svc.CreateDevice(context.Background(), "phone", "", "")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeProviderAPI))
	require.Len(t, store.retired, 1, "registry entry must be retired when the engine rejects the session")
}

func TestCreateDevice_ConnectFailureIsNonFatal(t *testing.T) {
	store := newFakeDeviceStore()
	client := &fakeProviderClient{connectSessionErr: fmt.Errorf("transient")}
	svc := NewDeviceService(store, client, &fakeDispatcher{}, testLogger())

	device, err := svc.CreateDevice(context.Background(), "phone", "", "")
	require.NoError(t, err)
	assert.Equal(t, models.DeviceStatusDisconnected, device.Status)
}

func TestAuthenticateByAPIKey(t *testing.T) {
	store := newFakeDeviceStore()
	svc := NewDeviceService(store, &fakeProviderClient{}, &fakeDispatcher{}, testLogger())

	created, err := svc.CreateDevice(context.Background(), "phone", "", "")
	require.NoError(t, err)

	t.Run("valid key", func(t *testing.T) {
		device, err := svc.AuthenticateByAPIKey(context.Background(), created.APIKey)
		require.NoError(t, err)
		assert.Equal(t, created.ID, device.ID)
	})

	t.Run("empty key", func(t *testing.T) {
		_, err := svc.AuthenticateByAPIKey(context.Background(), "")
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.ErrCodeAuthentication))
	})

	t.Run("unknown key", func(t *testing.T) {
		_, err := svc.AuthenticateByAPIKey(context.Background(), "wa_deadbeef")
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.ErrCodeAuthentication))
	})

	t.Run("retired device key is rejected", func(t *testing.T) {
		require.NoError(t, svc.Retire(context.Background(), created))
		_, err := svc.AuthenticateByAPIKey(context.Background(), created.APIKey)
		require.Error(t, err)
	})
}

func TestListDevices_Stats(t *testing.T) {
	store := newFakeDeviceStore()
	svc := NewDeviceService(store, &fakeProviderClient{}, &fakeDispatcher{}, testLogger())

	first, err := svc.CreateDevice(context.Background(), "a", "", "")
	require.NoError(t, err)
	_, err = svc.CreateDevice(context.Background(), "b", "", "")
	require.NoError(t, err)

	first.Status = models.DeviceStatusConnected

	devices, stats, err := svc.ListDevices(context.Background())
	require.NoError(t, err)
	assert.Len(t, devices, 2)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Connected)
	assert.Equal(t, 1, stats.Connecting)
}

func TestSyncStatus_EngineIsAuthoritative(t *testing.T) {
	store := newFakeDeviceStore()
	client := &fakeProviderClient{
		sessionStatus: &providertypes.SessionStatus{
			State:       "CONNECTED",
			PhoneNumber: "628555123456@s.whatsapp.net",
			Connected:   true,
		},
	}
	svc := NewDeviceService(store, client, &fakeDispatcher{}, testLogger())

	device, err := svc.CreateDevice(context.Background(), "phone", "", "")
	require.NoError(t, err)

	synced, err := svc.SyncStatus(context.Background(), device)
	require.NoError(t, err)
	assert.Equal(t, models.DeviceStatusConnected, synced.Status)
	require.NotNil(t, synced.PhoneNumber)
	assert.Equal(t, "628555123456", *synced.PhoneNumber)
}

func TestSyncStatus_PhoneIgnoredUnlessConnected(t *testing.T) {
	store := newFakeDeviceStore()
	client := &fakeProviderClient{
		sessionStatus: &providertypes.SessionStatus{
			State:       "CONNECTING",
			PhoneNumber: "628555123456@s.whatsapp.net",
		},
	}
	svc := NewDeviceService(store, client, &fakeDispatcher{}, testLogger())

	device, err := svc.CreateDevice(context.Background(), "phone", "", "")
	require.NoError(t, err)
	device.PhoneNumber = nil

	synced, err := svc.SyncStatus(context.Background(), device)
	require.NoError(t, err)
	assert.Equal(t, models.DeviceStatusConnecting, synced.Status)
	assert.Nil(t, synced.PhoneNumber)
}

func TestGetQRCode(t *testing.T) {
	store := newFakeDeviceStore()
	client := &fakeProviderClient{qrCode: "2@fresh-code"}
	svc := NewDeviceService(store, client, &fakeDispatcher{}, testLogger())

	device, err := svc.CreateDevice(context.Background(), "phone", "", "")
	require.NoError(t, err)

	qr, err := svc.GetQRCode(context.Background(), device)
	require.NoError(t, err)
	assert.Equal(t, "2@fresh-code", qr)

	t.Run("no code available", func(t *testing.T) {
		client.qrCode = ""
		_, err := svc.GetQRCode(context.Background(), device)
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.ErrCodeNotFound))
	})
}

func TestLogout(t *testing.T) {
	store := newFakeDeviceStore()
	client := &fakeProviderClient{}
	svc := NewDeviceService(store, client, &fakeDispatcher{}, testLogger())

	device, err := svc.CreateDevice(context.Background(), "phone", "", "")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(context.Background(), device))
	assert.Equal(t, models.DeviceStatusDisconnected, device.Status)
	assert.Equal(t, []string{device.SessionID}, client.disconnectedSessions)
}

func TestTestWebhook_RequiresURL(t *testing.T) {
	svc := NewDeviceService(newFakeDeviceStore(), &fakeProviderClient{}, &fakeDispatcher{}, testLogger())

	device := testDevice()
	device.WebhookURL = ""
	require.Error(t, svc.TestWebhook(context.Background(), device))
}

func TestTestWebhook_Dispatches(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	svc := NewDeviceService(newFakeDeviceStore(), &fakeProviderClient{}, dispatcher, testLogger())

	device := testDevice()
	device.WebhookURL = "https://example.com/hook"
	require.NoError(t, svc.TestWebhook(context.Background(), device))
	assert.Equal(t, []string{models.OutboundEventWebhookTest}, dispatcher.dispatched)
}

func TestRetire_BestEffortDisconnect(t *testing.T) {
	store := newFakeDeviceStore()
	client := &fakeProviderClient{disconnectErr: fmt.Errorf("engine unreachable")}
	svc := NewDeviceService(store, client, &fakeDispatcher{}, testLogger())

	device, err := svc.CreateDevice(context.Background(), "phone", "", "")
	require.NoError(t, err)

	require.NoError(t, svc.Retire(context.Background(), device),
		"retire succeeds even when the engine disconnect fails")
	assert.Equal(t, models.DeviceStatusInactive, device.Status)
	assert.Contains(t, store.retired, device.ID)
}
