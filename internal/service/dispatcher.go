package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"wabridge/internal/constants"
	"wabridge/internal/errors"
	"wabridge/internal/metrics"
	"wabridge/internal/models"

	"github.com/sirupsen/logrus"
)

// maxLoggedResponseBytes caps how much of the callback response body is kept
// in the delivery log.
const maxLoggedResponseBytes = 4096

// DeliveryLogStore persists webhook delivery audit rows
type DeliveryLogStore interface {
	InsertWebhookLog(ctx context.Context, log *models.WebhookDeliveryLog) error
}

// OutboundPayload is the JSON body posted to user-configured callback URLs
type OutboundPayload struct {
	Event      string      `json:"event"`
	Timestamp  int64       `json:"timestamp"`
	DeviceID   int64       `json:"device_id"`
	DeviceName string      `json:"device_name"`
	SessionID  string      `json:"session_id"`
	Data       interface{} `json:"data"`
}

// Dispatcher delivers normalized events to per-device callback URLs. Each
// attempt writes exactly one delivery log row; there are no retries. A
// device with no URL configured is a successful no-op with no log row.
type Dispatcher struct {
	store   DeliveryLogStore
	client  *http.Client
	logger  *logrus.Logger
	version string
}

func NewDispatcher(store DeliveryLogStore, logger *logrus.Logger, timeout time.Duration, version string) *Dispatcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if version == "" {
		version = "dev"
	}

	return &Dispatcher{
		store:   store,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
		version: version,
	}
}

// Dispatch posts one event to the device's webhook URL. The returned error
// reports delivery failure for observability; callers processing engine
// events must not let it affect their own response.
func (d *Dispatcher) Dispatch(ctx context.Context, device *models.Device, eventType string, data interface{}) error {
	if device.WebhookURL == "" {
		return nil
	}

	payload := OutboundPayload{
		Event:      eventType,
		Timestamp:  time.Now().Unix(),
		DeviceID:   device.ID,
		DeviceName: device.Name,
		SessionID:  device.SessionID,
		Data:       data,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to encode webhook payload")
	}

	start := time.Now()
	statusCode, responseBody, deliveryErr := d.post(ctx, device.WebhookURL, eventType, body)
	elapsed := time.Since(start)

	success := deliveryErr == nil && statusCode >= 200 && statusCode < 300

	logRow := &models.WebhookDeliveryLog{
		DeviceID:        device.ID,
		EventType:       eventType,
		Payload:         string(body),
		ResponseCode:    statusCode,
		ResponseBody:    responseBody,
		ExecutionTimeMs: elapsed.Milliseconds(),
		Status:          models.DeliverySuccess,
	}

	if !success {
		logRow.Status = models.DeliveryFailed
		msg := fmt.Sprintf("callback returned status %d", statusCode)
		if deliveryErr != nil {
			msg = deliveryErr.Error()
		}
		logRow.ErrorMessage = &msg
	}

	if err := d.store.InsertWebhookLog(ctx, logRow); err != nil {
		d.logger.WithError(err).WithFields(logrus.Fields{
			LogFieldDeviceID: device.ID,
			LogFieldEvent:    eventType,
		}).Error("Failed to record webhook delivery")
	}

	metrics.RecordWebhookDelivery(success, elapsed)

	if success {
		d.logger.WithFields(logrus.Fields{
			LogFieldDeviceID:   device.ID,
			LogFieldEvent:      eventType,
			LogFieldStatusCode: statusCode,
			LogFieldDuration:   elapsed.Milliseconds(),
		}).Debug("Webhook delivered")
		return nil
	}

	dispatchErr := errors.NewDispatchError(device.WebhookURL, deliveryErr).
		WithContext("device_id", device.ID).
		WithContext("event_type", eventType).
		WithContext("status_code", statusCode)

	d.logger.WithFields(logrus.Fields{
		LogFieldDeviceID:   device.ID,
		LogFieldEvent:      eventType,
		LogFieldStatusCode: statusCode,
		LogFieldDuration:   elapsed.Milliseconds(),
	}).Warn("Webhook delivery failed")

	return dispatchErr
}

func (d *Dispatcher) post(ctx context.Context, url, eventType string, body []byte) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, "", fmt.Errorf("failed to create webhook request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(constants.WebhookEventTypeHeader, eventType)
	req.Header.Set("User-Agent", constants.WebhookUserAgent+"/"+d.version)

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	responseBody, err := io.ReadAll(io.LimitReader(resp.Body, maxLoggedResponseBytes))
	if err != nil {
		return resp.StatusCode, "", nil
	}

	return resp.StatusCode, string(responseBody), nil
}
