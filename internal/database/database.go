package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"wabridge/internal/constants"
	"wabridge/internal/migrations"
	"wabridge/internal/models"
	"wabridge/internal/security"

	_ "github.com/mattn/go-sqlite3"
)

type Database struct {
	db        *sql.DB
	encryptor *encryptor
}

func New(dbPath string) (*Database, error) {
	if len(dbPath) == 0 || dbPath[0] == '\x00' {
		return nil, fmt.Errorf("invalid database path")
	}

	// Validate database path to prevent directory traversal
	if err := security.ValidateFilePath(dbPath); err != nil {
		return nil, fmt.Errorf("invalid database path: %w", err)
	}

	file, err := os.OpenFile(dbPath, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to create database file: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("failed to close database file: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to ping database: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	schema, err := migrations.GetInitialSchema()
	if err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to read schema: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to read schema: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to initialize schema: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	enc, err := NewEncryptor()
	if err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to initialize encryptor: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to initialize encryptor: %w", err)
	}

	return &Database{db: db, encryptor: enc}, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

// Device operations

func (d *Database) CreateDevice(ctx context.Context, device *models.Device) error {
	result, err := d.db.ExecContext(ctx, InsertDeviceQuery,
		device.Name,
		device.SessionID,
		device.DeviceToken,
		device.APIKey,
		device.WebhookURL,
		device.Note,
		device.Status,
	)
	if err != nil {
		return fmt.Errorf("failed to create device: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get device ID: %w", err)
	}
	device.ID = id

	return nil
}

func (d *Database) scanDevice(row interface{ Scan(...interface{}) error }) (*models.Device, error) {
	device := &models.Device{}
	var encryptedPhone, encryptedQR *string

	err := row.Scan(
		&device.ID,
		&device.Name,
		&device.SessionID,
		&device.DeviceToken,
		&device.APIKey,
		&device.WebhookURL,
		&device.Note,
		&device.Status,
		&encryptedPhone,
		&encryptedQR,
		&device.LastActivity,
		&device.CreatedAt,
		&device.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if encryptedPhone != nil {
		phone, err := d.encryptor.DecryptIfEnabled(*encryptedPhone)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt phone number: %w", err)
		}
		device.PhoneNumber = &phone
	}

	if encryptedQR != nil {
		qr, err := d.encryptor.DecryptIfEnabled(*encryptedQR)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt QR code: %w", err)
		}
		device.QRCode = &qr
	}

	return device, nil
}

func (d *Database) GetDeviceByID(ctx context.Context, id int64) (*models.Device, error) {
	device, err := d.scanDevice(d.db.QueryRowContext(ctx, SelectDeviceByIDQuery, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get device: %w", err)
	}
	return device, nil
}

func (d *Database) GetDeviceBySessionID(ctx context.Context, sessionID string) (*models.Device, error) {
	device, err := d.scanDevice(d.db.QueryRowContext(ctx, SelectDeviceBySessionIDQuery, sessionID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get device by session: %w", err)
	}
	return device, nil
}

func (d *Database) GetDeviceByAPIKey(ctx context.Context, apiKey string) (*models.Device, error) {
	device, err := d.scanDevice(d.db.QueryRowContext(ctx, SelectDeviceByAPIKeyQuery, apiKey))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get device by API key: %w", err)
	}
	return device, nil
}

func (d *Database) ListDevices(ctx context.Context) ([]*models.Device, error) {
	rows, err := d.db.QueryContext(ctx, SelectDevicesQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var devices []*models.Device
	for rows.Next() {
		device, err := d.scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, device)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate devices: %w", err)
	}

	return devices, nil
}

// UpdateDeviceStatus updates the connection status of a device. A non-nil
// phone number overwrites the stored one; a nil phone number leaves it
// untouched. The QR code is always replaced so stale codes do not linger
// after a state change.
func (d *Database) UpdateDeviceStatus(ctx context.Context, id int64, status models.DeviceStatus, phoneNumber, qrCode *string) error {
	var encryptedPhone *string
	if phoneNumber != nil {
		encrypted, err := d.encryptor.EncryptIfEnabled(*phoneNumber)
		if err != nil {
			return fmt.Errorf("failed to encrypt phone number: %w", err)
		}
		encryptedPhone = &encrypted
	}

	var encryptedQR *string
	if qrCode != nil {
		encrypted, err := d.encryptor.EncryptIfEnabled(*qrCode)
		if err != nil {
			return fmt.Errorf("failed to encrypt QR code: %w", err)
		}
		encryptedQR = &encrypted
	}

	_, err := d.db.ExecContext(ctx, UpdateDeviceStatusQuery, status, encryptedPhone, encryptedQR, id)
	if err != nil {
		return fmt.Errorf("failed to update device status: %w", err)
	}

	return nil
}

func (d *Database) UpdateDeviceWebhookURL(ctx context.Context, id int64, webhookURL string) error {
	result, err := d.db.ExecContext(ctx, UpdateDeviceWebhookURLQuery, webhookURL, id)
	if err != nil {
		return fmt.Errorf("failed to update webhook URL: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("no device found with ID: %d", id)
	}

	return nil
}

func (d *Database) UpdateDeviceLastActivity(ctx context.Context, id int64) error {
	_, err := d.db.ExecContext(ctx, UpdateDeviceLastActivityQuery, id)
	if err != nil {
		return fmt.Errorf("failed to update last activity: %w", err)
	}
	return nil
}

// RetireDevice soft-deletes a device. Rows stay in place so message history
// and webhook logs keep their foreign keys.
func (d *Database) RetireDevice(ctx context.Context, id int64) error {
	result, err := d.db.ExecContext(ctx, RetireDeviceQuery, id)
	if err != nil {
		return fmt.Errorf("failed to retire device: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("no device found with ID: %d", id)
	}

	return nil
}

// Message operations

func (d *Database) SaveMessage(ctx context.Context, msg *models.Message) error {
	encryptedProviderID, err := d.encryptor.EncryptForLookupIfEnabled(msg.ProviderMessageID)
	if err != nil {
		return fmt.Errorf("failed to encrypt provider message ID: %w", err)
	}

	encryptedFrom, err := d.encryptor.EncryptIfEnabled(msg.FromNumber)
	if err != nil {
		return fmt.Errorf("failed to encrypt sender: %w", err)
	}

	encryptedTo, err := d.encryptor.EncryptIfEnabled(msg.ToNumber)
	if err != nil {
		return fmt.Errorf("failed to encrypt recipient: %w", err)
	}

	encryptedContent, err := d.encryptor.EncryptIfEnabled(msg.Content)
	if err != nil {
		return fmt.Errorf("failed to encrypt content: %w", err)
	}

	return retryableDBOperation(ctx, func() error {
		result, err := d.db.ExecContext(ctx, InsertMessageQuery,
			msg.DeviceID,
			encryptedProviderID,
			msg.SessionID,
			msg.Direction,
			msg.Type,
			encryptedFrom,
			encryptedTo,
			msg.GroupID,
			encryptedContent,
			msg.MediaURL,
			msg.Caption,
			msg.QuotedMessageID,
			msg.Status,
		)
		if err != nil {
			return fmt.Errorf("failed to save message: %w", err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get message ID: %w", err)
		}
		msg.ID = id

		return nil
	}, "save message")
}

func (d *Database) GetMessagesByDevice(ctx context.Context, deviceID int64, limit, offset int) ([]*models.Message, error) {
	if limit <= 0 {
		limit = constants.DefaultMessagePageSize
	}

	rows, err := d.db.QueryContext(ctx, SelectMessagesByDeviceQuery, deviceID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var messages []*models.Message
	for rows.Next() {
		msg := &models.Message{}
		var encryptedProviderID, encryptedFrom, encryptedTo, encryptedContent string

		err := rows.Scan(
			&msg.ID,
			&msg.DeviceID,
			&encryptedProviderID,
			&msg.SessionID,
			&msg.Direction,
			&msg.Type,
			&encryptedFrom,
			&encryptedTo,
			&msg.GroupID,
			&encryptedContent,
			&msg.MediaURL,
			&msg.Caption,
			&msg.QuotedMessageID,
			&msg.Status,
			&msg.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}

		msg.ProviderMessageID, err = d.encryptor.DecryptIfEnabled(encryptedProviderID)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt provider message ID: %w", err)
		}
		msg.FromNumber, err = d.encryptor.DecryptIfEnabled(encryptedFrom)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt sender: %w", err)
		}
		msg.ToNumber, err = d.encryptor.DecryptIfEnabled(encryptedTo)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt recipient: %w", err)
		}
		msg.Content, err = d.encryptor.DecryptIfEnabled(encryptedContent)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt content: %w", err)
		}

		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}

	return messages, nil
}

// UpdateMessageStatus advances a message's delivery status. Transitions only
// move forward (sent -> delivered -> read); a stale update is silently
// ignored. Returns true when a row was actually updated.
func (d *Database) UpdateMessageStatus(ctx context.Context, deviceID int64, providerMessageID string, status models.MessageStatus) (bool, error) {
	rank := status.Rank()
	if rank == 0 {
		return false, fmt.Errorf("invalid message status: %s", status)
	}

	encryptedID, err := d.encryptor.EncryptForLookupIfEnabled(providerMessageID)
	if err != nil {
		return false, fmt.Errorf("failed to encrypt provider message ID: %w", err)
	}

	result, err := d.db.ExecContext(ctx, UpdateMessageStatusQuery, status, deviceID, encryptedID, rank)
	if err != nil {
		return false, fmt.Errorf("failed to update message status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return rows > 0, nil
}

// Webhook delivery log operations

func (d *Database) InsertWebhookLog(ctx context.Context, log *models.WebhookDeliveryLog) error {
	return retryableDBOperation(ctx, func() error {
		result, err := d.db.ExecContext(ctx, InsertWebhookLogQuery,
			log.DeviceID,
			log.EventType,
			log.Payload,
			log.ResponseCode,
			log.ResponseBody,
			log.ExecutionTimeMs,
			log.Status,
			log.ErrorMessage,
		)
		if err != nil {
			return fmt.Errorf("failed to insert webhook log: %w", err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get webhook log ID: %w", err)
		}
		log.ID = id

		return nil
	}, "insert webhook log")
}

func (d *Database) GetWebhookStats(ctx context.Context, deviceID int64) (*models.WebhookStats, error) {
	stats := &models.WebhookStats{}

	err := d.db.QueryRowContext(ctx, SelectWebhookStatsQuery, deviceID, constants.WebhookStatsWindowHrs).Scan(
		&stats.TotalCalls,
		&stats.SuccessCount,
		&stats.FailedCount,
		&stats.AvgExecutionTime,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get webhook stats: %w", err)
	}

	return stats, nil
}

func (d *Database) GetRecentWebhookLogs(ctx context.Context, deviceID int64, limit int) ([]*models.WebhookDeliveryLog, error) {
	if limit <= 0 {
		limit = constants.RecentWebhookLogCount
	}

	rows, err := d.db.QueryContext(ctx, SelectRecentWebhookLogsQuery, deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query webhook logs: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var logs []*models.WebhookDeliveryLog
	for rows.Next() {
		log := &models.WebhookDeliveryLog{}
		err := rows.Scan(
			&log.ID,
			&log.DeviceID,
			&log.EventType,
			&log.Payload,
			&log.ResponseCode,
			&log.ResponseBody,
			&log.ExecutionTimeMs,
			&log.Status,
			&log.ErrorMessage,
			&log.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan webhook log: %w", err)
		}
		logs = append(logs, log)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate webhook logs: %w", err)
	}

	return logs, nil
}

// Contact and group operations

func (d *Database) UpsertContact(ctx context.Context, contact *models.Contact) error {
	encryptedPhone, err := d.encryptor.EncryptForLookupIfEnabled(contact.PhoneNumber)
	if err != nil {
		return fmt.Errorf("failed to encrypt phone number: %w", err)
	}

	encryptedName, err := d.encryptor.EncryptIfEnabled(contact.DisplayName)
	if err != nil {
		return fmt.Errorf("failed to encrypt display name: %w", err)
	}

	encryptedProfileName, err := d.encryptor.EncryptIfEnabled(contact.ProfileName)
	if err != nil {
		return fmt.Errorf("failed to encrypt profile name: %w", err)
	}

	_, err = d.db.ExecContext(ctx, UpsertContactQuery,
		contact.DeviceID,
		encryptedPhone,
		encryptedName,
		encryptedProfileName,
		contact.ProfilePicture,
		contact.LastSeen,
		contact.StatusMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert contact: %w", err)
	}

	return nil
}

func (d *Database) GetContact(ctx context.Context, deviceID int64, phoneNumber string) (*models.Contact, error) {
	encryptedPhone, err := d.encryptor.EncryptForLookupIfEnabled(phoneNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt phone number: %w", err)
	}

	contact := &models.Contact{}
	var encPhone, encName, encProfileName string

	err = d.db.QueryRowContext(ctx, SelectContactQuery, deviceID, encryptedPhone).Scan(
		&contact.ID,
		&contact.DeviceID,
		&encPhone,
		&encName,
		&encProfileName,
		&contact.ProfilePicture,
		&contact.LastSeen,
		&contact.StatusMessage,
		&contact.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get contact: %w", err)
	}

	contact.PhoneNumber, err = d.encryptor.DecryptIfEnabled(encPhone)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt phone number: %w", err)
	}
	contact.DisplayName, err = d.encryptor.DecryptIfEnabled(encName)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt display name: %w", err)
	}
	contact.ProfileName, err = d.encryptor.DecryptIfEnabled(encProfileName)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt profile name: %w", err)
	}

	return contact, nil
}

func (d *Database) UpsertGroup(ctx context.Context, group *models.Group) error {
	_, err := d.db.ExecContext(ctx, UpsertGroupQuery,
		group.DeviceID,
		group.GroupID,
		group.Subject,
		group.Description,
		group.PictureURL,
		group.OwnerNumber,
		group.ParticipantCount,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert group: %w", err)
	}

	return nil
}

func (d *Database) GetGroup(ctx context.Context, deviceID int64, groupID string) (*models.Group, error) {
	group := &models.Group{}

	err := d.db.QueryRowContext(ctx, SelectGroupQuery, deviceID, groupID).Scan(
		&group.ID,
		&group.DeviceID,
		&group.GroupID,
		&group.Subject,
		&group.Description,
		&group.PictureURL,
		&group.OwnerNumber,
		&group.ParticipantCount,
		&group.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group: %w", err)
	}

	return group, nil
}

// CleanupOldRecords removes messages and webhook logs older than the
// retention window
func (d *Database) CleanupOldRecords(retentionDays int) error {
	if _, err := d.db.Exec(DeleteOldMessagesQuery, retentionDays); err != nil {
		return fmt.Errorf("failed to cleanup old messages: %w", err)
	}

	if _, err := d.db.Exec(DeleteOldWebhookLogsQuery, retentionDays); err != nil {
		return fmt.Errorf("failed to cleanup old webhook logs: %w", err)
	}

	return nil
}
