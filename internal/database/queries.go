package database

// Device queries
const (
	InsertDeviceQuery = `
		INSERT INTO devices (
			name, session_id, device_token, api_key, webhook_url, note, status
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	selectDeviceColumns = `
		SELECT id, name, session_id, device_token, api_key, webhook_url, note,
		       status, phone_number, qr_code, last_activity, created_at, updated_at
		FROM devices
	`

	SelectDeviceByIDQuery        = selectDeviceColumns + ` WHERE id = ? AND status != 'inactive'`
	SelectDeviceBySessionIDQuery = selectDeviceColumns + ` WHERE session_id = ? AND status != 'inactive'`
	SelectDeviceByAPIKeyQuery    = selectDeviceColumns + ` WHERE api_key = ? AND status != 'inactive'`
	SelectDevicesQuery           = selectDeviceColumns + ` WHERE status != 'inactive' ORDER BY created_at DESC`

	UpdateDeviceStatusQuery = `
		UPDATE devices
		SET status = ?,
		    phone_number = COALESCE(?, phone_number),
		    qr_code = ?,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	UpdateDeviceWebhookURLQuery = `
		UPDATE devices
		SET webhook_url = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	UpdateDeviceLastActivityQuery = `
		UPDATE devices
		SET last_activity = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	RetireDeviceQuery = `
		UPDATE devices
		SET status = 'inactive', updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`
)

// Message queries
const (
	InsertMessageQuery = `
		INSERT INTO messages (
			device_id, provider_message_id, session_id, direction, type,
			from_number, to_number, group_id, content, media_url, caption,
			quoted_message_id, status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	selectMessageColumns = `
		SELECT id, device_id, provider_message_id, session_id, direction, type,
		       from_number, to_number, group_id, content, media_url, caption,
		       quoted_message_id, status, created_at
		FROM messages
	`

	SelectMessagesByDeviceQuery = selectMessageColumns + `
		WHERE device_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`

	// The rank guard keeps status transitions monotonic:
	// sent(1) -> delivered(2) -> read(3)
	UpdateMessageStatusQuery = `
		UPDATE messages
		SET status = ?
		WHERE device_id = ? AND provider_message_id = ?
		  AND (CASE status
		         WHEN 'sent' THEN 1
		         WHEN 'delivered' THEN 2
		         WHEN 'read' THEN 3
		         ELSE 0
		       END) < ?
	`

	DeleteOldMessagesQuery = `
		DELETE FROM messages
		WHERE created_at < datetime('now', '-' || ? || ' days')
	`
)

// Webhook delivery log queries
const (
	InsertWebhookLogQuery = `
		INSERT INTO webhook_logs (
			device_id, event_type, payload, response_code, response_body,
			execution_time_ms, status, error_message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	SelectWebhookStatsQuery = `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN status = 'success' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0),
		       COALESCE(AVG(execution_time_ms), 0)
		FROM webhook_logs
		WHERE device_id = ? AND created_at >= datetime('now', '-' || ? || ' hours')
	`

	SelectRecentWebhookLogsQuery = `
		SELECT id, device_id, event_type, payload, response_code, response_body,
		       execution_time_ms, status, error_message, created_at
		FROM webhook_logs
		WHERE device_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`

	DeleteOldWebhookLogsQuery = `
		DELETE FROM webhook_logs
		WHERE created_at < datetime('now', '-' || ? || ' days')
	`
)

// Contact and group queries
const (
	UpsertContactQuery = `
		INSERT INTO contacts (
			device_id, phone_number, display_name, profile_name, profile_picture,
			last_seen, status_message, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(device_id, phone_number) DO UPDATE SET
			display_name = excluded.display_name,
			profile_name = excluded.profile_name,
			profile_picture = excluded.profile_picture,
			last_seen = COALESCE(excluded.last_seen, contacts.last_seen),
			status_message = excluded.status_message,
			updated_at = CURRENT_TIMESTAMP
	`

	SelectContactQuery = `
		SELECT id, device_id, phone_number, display_name, profile_name,
		       profile_picture, last_seen, status_message, updated_at
		FROM contacts
		WHERE device_id = ? AND phone_number = ?
	`

	UpsertGroupQuery = `
		INSERT INTO groups (
			device_id, group_id, subject, description, picture_url,
			owner_number, participant_count, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(device_id, group_id) DO UPDATE SET
			subject = excluded.subject,
			description = excluded.description,
			picture_url = excluded.picture_url,
			owner_number = excluded.owner_number,
			participant_count = excluded.participant_count,
			updated_at = CURRENT_TIMESTAMP
	`

	SelectGroupQuery = `
		SELECT id, device_id, group_id, subject, description, picture_url,
		       owner_number, participant_count, updated_at
		FROM groups
		WHERE device_id = ? AND group_id = ?
	`
)
