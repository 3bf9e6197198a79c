package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"wabridge/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *Database {
	t.Helper()

	db, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, db.Close())
	})

	return db
}

func newTestDevice(suffix string) *models.Device {
	return &models.Device{
		Name:        "device-" + suffix,
		SessionID:   "wa_1700000000_" + suffix,
		DeviceToken: "dev_" + suffix,
		APIKey:      "wa_key_" + suffix,
		WebhookURL:  "https://example.com/hook",
		Status:      models.DeviceStatusDisconnected,
	}
}

func TestCreateAndGetDevice(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	device := newTestDevice("aaa")
	require.NoError(t, db.CreateDevice(ctx, device))
	assert.NotZero(t, device.ID)

	t.Run("by ID", func(t *testing.T) {
		got, err := db.GetDeviceByID(ctx, device.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, device.Name, got.Name)
		assert.Equal(t, device.SessionID, got.SessionID)
		assert.Equal(t, models.DeviceStatusDisconnected, got.Status)
	})

	t.Run("by session ID", func(t *testing.T) {
		got, err := db.GetDeviceBySessionID(ctx, device.SessionID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, device.ID, got.ID)
	})

	t.Run("by API key", func(t *testing.T) {
		got, err := db.GetDeviceByAPIKey(ctx, device.APIKey)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, device.ID, got.ID)
	})

	t.Run("missing device returns nil without error", func(t *testing.T) {
		got, err := db.GetDeviceByID(ctx, 9999)
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestCreateDevice_DuplicateSessionID(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	first := newTestDevice("dup")
	require.NoError(t, db.CreateDevice(ctx, first))

	second := newTestDevice("dup")
	second.APIKey = "wa_other_key"
	require.Error(t, db.CreateDevice(ctx, second))
}

func TestUpdateDeviceStatus(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	device := newTestDevice("bbb")
	require.NoError(t, db.CreateDevice(ctx, device))

	phone := "628123456789"
	qr := "2@pairing"
	require.NoError(t, db.UpdateDeviceStatus(ctx, device.ID, models.DeviceStatusConnecting, nil, &qr))

	got, err := db.GetDeviceByID(ctx, device.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeviceStatusConnecting, got.Status)
	require.NotNil(t, got.QRCode)
	assert.Equal(t, "2@pairing", *got.QRCode)

	// Connecting -> connected clears the QR code and sets the phone
	require.NoError(t, db.UpdateDeviceStatus(ctx, device.ID, models.DeviceStatusConnected, &phone, nil))

	got, err = db.GetDeviceByID(ctx, device.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeviceStatusConnected, got.Status)
	require.NotNil(t, got.PhoneNumber)
	assert.Equal(t, phone, *got.PhoneNumber)
	assert.Nil(t, got.QRCode)

	// A nil phone leaves the stored one untouched
	require.NoError(t, db.UpdateDeviceStatus(ctx, device.ID, models.DeviceStatusDisconnected, nil, nil))
	got, err = db.GetDeviceByID(ctx, device.ID)
	require.NoError(t, err)
	require.NotNil(t, got.PhoneNumber)
	assert.Equal(t, phone, *got.PhoneNumber)
}

func TestRetireDevice_ExcludedFromLookups(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	device := newTestDevice("ccc")
	require.NoError(t, db.CreateDevice(ctx, device))
	require.NoError(t, db.RetireDevice(ctx, device.ID))

	bySession, err := db.GetDeviceBySessionID(ctx, device.SessionID)
	require.NoError(t, err)
	assert.Nil(t, bySession, "retired devices must not resolve by session ID")

	byKey, err := db.GetDeviceByAPIKey(ctx, device.APIKey)
	require.NoError(t, err)
	assert.Nil(t, byKey, "retired devices must not resolve by API key")

	byID, err := db.GetDeviceByID(ctx, device.ID)
	require.NoError(t, err)
	assert.Nil(t, byID)

	devices, err := db.ListDevices(ctx)
	require.NoError(t, err)
	assert.Empty(t, devices)
}

func TestUpdateDeviceWebhookURL(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	device := newTestDevice("ddd")
	require.NoError(t, db.CreateDevice(ctx, device))

	require.NoError(t, db.UpdateDeviceWebhookURL(ctx, device.ID, "https://new.example.com/hook"))

	got, err := db.GetDeviceByID(ctx, device.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://new.example.com/hook", got.WebhookURL)

	require.Error(t, db.UpdateDeviceWebhookURL(ctx, 9999, "https://x.example.com"))
}

func testMessage(deviceID int64, providerID string) *models.Message {
	return &models.Message{
		DeviceID:          deviceID,
		ProviderMessageID: providerID,
		SessionID:         "wa_1700000000_aaa",
		Direction:         models.DirectionIncoming,
		Type:              models.MessageTypeText,
		FromNumber:        "628999888777",
		ToNumber:          "628111222333",
		Content:           "hello world",
		Status:            models.MessageStatusDelivered,
	}
}

func TestSaveAndGetMessages(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	device := newTestDevice("eee")
	require.NoError(t, db.CreateDevice(ctx, device))

	for i, id := range []string{"M1", "M2", "M3"} {
		msg := testMessage(device.ID, id)
		msg.Content = "message " + id
		require.NoError(t, db.SaveMessage(ctx, msg), "message %d", i)
		assert.NotZero(t, msg.ID)
	}

	messages, err := db.GetMessagesByDevice(ctx, device.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, "M3", messages[0].ProviderMessageID, "newest first")
	assert.Equal(t, "message M3", messages[0].Content)
	assert.Equal(t, "628999888777", messages[0].FromNumber)

	t.Run("pagination", func(t *testing.T) {
		page, err := db.GetMessagesByDevice(ctx, device.ID, 2, 0)
		require.NoError(t, err)
		assert.Len(t, page, 2)

		rest, err := db.GetMessagesByDevice(ctx, device.ID, 2, 2)
		require.NoError(t, err)
		assert.Len(t, rest, 1)
	})
}

func TestUpdateMessageStatus_Monotonic(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	device := newTestDevice("fff")
	require.NoError(t, db.CreateDevice(ctx, device))

	msg := testMessage(device.ID, "STATUS01")
	msg.Status = models.MessageStatusSent
	require.NoError(t, db.SaveMessage(ctx, msg))

	statusOf := func() models.MessageStatus {
		messages, err := db.GetMessagesByDevice(ctx, device.ID, 1, 0)
		require.NoError(t, err)
		require.Len(t, messages, 1)
		return messages[0].Status
	}

	// Forward transition applies
	updated, err := db.UpdateMessageStatus(ctx, device.ID, "STATUS01", models.MessageStatusDelivered)
	require.NoError(t, err)
	assert.True(t, updated)
	assert.Equal(t, models.MessageStatusDelivered, statusOf())

	updated, err = db.UpdateMessageStatus(ctx, device.ID, "STATUS01", models.MessageStatusRead)
	require.NoError(t, err)
	assert.True(t, updated)
	assert.Equal(t, models.MessageStatusRead, statusOf())

	// Stale transition is silently ignored
	updated, err = db.UpdateMessageStatus(ctx, device.ID, "STATUS01", models.MessageStatusDelivered)
	require.NoError(t, err)
	assert.False(t, updated)
	assert.Equal(t, models.MessageStatusRead, statusOf())

	// Unknown message is not an error either
	updated, err = db.UpdateMessageStatus(ctx, device.ID, "NOPE", models.MessageStatusRead)
	require.NoError(t, err)
	assert.False(t, updated)

	// Invalid status is rejected
	_, err = db.UpdateMessageStatus(ctx, device.ID, "STATUS01", "exploded")
	require.Error(t, err)
}

func TestWebhookLogsAndStats(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	device := newTestDevice("ggg")
	require.NoError(t, db.CreateDevice(ctx, device))

	errMsg := "connection refused"
	logs := []*models.WebhookDeliveryLog{
		{DeviceID: device.ID, EventType: "message_received", Payload: "{}", ResponseCode: 200, ExecutionTimeMs: 12, Status: models.DeliverySuccess},
		{DeviceID: device.ID, EventType: "message_received", Payload: "{}", ResponseCode: 200, ExecutionTimeMs: 8, Status: models.DeliverySuccess},
		{DeviceID: device.ID, EventType: "qr_code", Payload: "{}", ResponseCode: 0, ExecutionTimeMs: 30, Status: models.DeliveryFailed, ErrorMessage: &errMsg},
	}
	for _, logRow := range logs {
		require.NoError(t, db.InsertWebhookLog(ctx, logRow))
	}

	stats, err := db.GetWebhookStats(ctx, device.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalCalls)
	assert.Equal(t, 2, stats.SuccessCount)
	assert.Equal(t, 1, stats.FailedCount)
	assert.InDelta(t, (12.0+8.0+30.0)/3.0, stats.AvgExecutionTime, 0.01)

	recent, err := db.GetRecentWebhookLogs(ctx, device.ID, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "qr_code", recent[0].EventType, "newest first")
	require.NotNil(t, recent[0].ErrorMessage)
	assert.Equal(t, errMsg, *recent[0].ErrorMessage)
}

func TestUpsertContact(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	device := newTestDevice("hhh")
	require.NoError(t, db.CreateDevice(ctx, device))

	lastSeen := time.Now().UTC().Truncate(time.Second)
	contact := &models.Contact{
		DeviceID:    device.ID,
		PhoneNumber: "628444555666",
		DisplayName: "Alice",
		ProfileName: "alice_w",
		LastSeen:    &lastSeen,
	}
	require.NoError(t, db.UpsertContact(ctx, contact))

	got, err := db.GetContact(ctx, device.ID, "628444555666")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Alice", got.DisplayName)
	assert.Equal(t, "alice_w", got.ProfileName)

	// Second upsert replaces, not duplicates
	contact.DisplayName = "Alice Updated"
	require.NoError(t, db.UpsertContact(ctx, contact))

	got, err = db.GetContact(ctx, device.ID, "628444555666")
	require.NoError(t, err)
	assert.Equal(t, "Alice Updated", got.DisplayName)

	missing, err := db.GetContact(ctx, device.ID, "000000000")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestUpsertGroup(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	device := newTestDevice("iii")
	require.NoError(t, db.CreateDevice(ctx, device))

	group := &models.Group{
		DeviceID:         device.ID,
		GroupID:          "120363041234567890@g.us",
		Subject:          "Team",
		OwnerNumber:      "628111222333",
		ParticipantCount: 5,
	}
	require.NoError(t, db.UpsertGroup(ctx, group))

	got, err := db.GetGroup(ctx, device.ID, "120363041234567890@g.us")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Team", got.Subject)

	group.Subject = "Team Renamed"
	group.ParticipantCount = 6
	require.NoError(t, db.UpsertGroup(ctx, group))

	got, err = db.GetGroup(ctx, device.ID, "120363041234567890@g.us")
	require.NoError(t, err)
	assert.Equal(t, "Team Renamed", got.Subject)
	assert.Equal(t, 6, got.ParticipantCount)
}

func TestCleanupOldRecords(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	device := newTestDevice("jjj")
	require.NoError(t, db.CreateDevice(ctx, device))

	msg := testMessage(device.ID, "KEEP1")
	require.NoError(t, db.SaveMessage(ctx, msg))

	// Recent rows survive any reasonable retention window
	require.NoError(t, db.CleanupOldRecords(30))

	messages, err := db.GetMessagesByDevice(ctx, device.ID, 10, 0)
	require.NoError(t, err)
	assert.Len(t, messages, 1)
}
