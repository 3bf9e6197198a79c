package service

import (
	"context"
	"encoding/json"

	"wabridge/internal/errors"
	"wabridge/internal/metrics"
	"wabridge/internal/models"
	"wabridge/internal/privacy"

	"github.com/sirupsen/logrus"
)

// EventStore is the persistence surface the processor needs
type EventStore interface {
	GetDeviceBySessionID(ctx context.Context, sessionID string) (*models.Device, error)
	SaveMessage(ctx context.Context, msg *models.Message) error
	UpdateDeviceStatus(ctx context.Context, id int64, status models.DeviceStatus, phoneNumber, qrCode *string) error
	UpdateDeviceLastActivity(ctx context.Context, id int64) error
	UpsertContact(ctx context.Context, contact *models.Contact) error
	UpsertGroup(ctx context.Context, group *models.Group) error
}

// EventDispatcher forwards normalized events to device callbacks
type EventDispatcher interface {
	Dispatch(ctx context.Context, device *models.Device, eventType string, data interface{}) error
}

// EventProcessor runs the receive pipeline: parse, resolve device,
// normalize, persist, dispatch. Persistence failures abort the pipeline;
// dispatch failures never do.
type EventProcessor struct {
	store      EventStore
	dispatcher EventDispatcher
	normalizer *Normalizer
	logger     *logrus.Logger
}

func NewEventProcessor(store EventStore, dispatcher EventDispatcher, logger *logrus.Logger) *EventProcessor {
	return &EventProcessor{
		store:      store,
		dispatcher: dispatcher,
		normalizer: NewNormalizer(),
		logger:     logger,
	}
}

// ProcessRaw parses a raw webhook body and runs the pipeline
func (p *EventProcessor) ProcessRaw(ctx context.Context, body []byte) error {
	var event models.ProviderEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return errors.NewMalformedEventError("invalid event payload")
	}

	return p.Process(ctx, &event)
}

// Process runs the pipeline for one parsed engine event
func (p *EventProcessor) Process(ctx context.Context, event *models.ProviderEvent) error {
	if event.SessionID == "" {
		return errors.NewMalformedEventError("event missing sessionId")
	}
	if event.Event == "" {
		return errors.NewMalformedEventError("event missing event type")
	}

	device, err := p.store.GetDeviceBySessionID(ctx, event.SessionID)
	if err != nil {
		return errors.NewPersistenceError("device lookup", err)
	}
	if device == nil {
		p.logger.WithFields(logrus.Fields{
			LogFieldSession: privacy.MaskSessionID(event.SessionID),
			LogFieldEvent:   event.Event,
		}).Warn("Dropping event for unknown session")
		metrics.RecordEventProcessed(event.Event, "unknown_session")
		return errors.NewUnknownSessionError(event.SessionID)
	}

	normalized, err := p.normalizer.Normalize(device, event)
	if err != nil {
		metrics.RecordEventProcessed(event.Event, "malformed")
		return err
	}

	if err := p.applySideEffects(ctx, normalized); err != nil {
		metrics.RecordEventProcessed(event.Event, "persistence_failure")
		return err
	}

	// Delivery failures are logged and recorded but never surface to the
	// engine; its retry policy is not ours to trigger.
	p.dispatchOutbound(ctx, normalized)

	if err := p.store.UpdateDeviceLastActivity(ctx, device.ID); err != nil {
		p.logger.WithError(err).WithField(LogFieldDeviceID, device.ID).
			Warn("Failed to update device activity")
	}

	metrics.RecordEventProcessed(event.Event, "processed")
	return nil
}

func (p *EventProcessor) applySideEffects(ctx context.Context, event *models.NormalizedEvent) error {
	device := event.Device

	switch event.Type {
	case models.EventMessage:
		if err := p.store.SaveMessage(ctx, event.Message); err != nil {
			return errors.NewPersistenceError("message", err)
		}

	case models.EventConnectionUpdate:
		conn := event.Connection
		// A QR code is only meaningful while connecting; any state change
		// invalidates the stored one
		if err := p.store.UpdateDeviceStatus(ctx, device.ID, conn.Status, conn.PhoneNumber, nil); err != nil {
			return errors.NewPersistenceError("device status", err)
		}
		device.Status = conn.Status
		if conn.PhoneNumber != nil {
			device.PhoneNumber = conn.PhoneNumber
		}

	case models.EventQRCode:
		qr := event.QR.QRCode
		if err := p.store.UpdateDeviceStatus(ctx, device.ID, models.DeviceStatusConnecting, nil, &qr); err != nil {
			return errors.NewPersistenceError("qr code", err)
		}
		device.Status = models.DeviceStatusConnecting

	case models.EventAuthFailure:
		if err := p.store.UpdateDeviceStatus(ctx, device.ID, event.Auth.Status, nil, nil); err != nil {
			return errors.NewPersistenceError("device status", err)
		}
		device.Status = event.Auth.Status

	case models.EventContactUpdate:
		if err := p.store.UpsertContact(ctx, event.Contact); err != nil {
			return errors.NewPersistenceError("contact", err)
		}

	case models.EventGroupUpdate:
		if err := p.store.UpsertGroup(ctx, event.Group); err != nil {
			return errors.NewPersistenceError("group", err)
		}

	default:
		p.logger.WithFields(logrus.Fields{
			LogFieldDeviceID: device.ID,
			LogFieldEvent:    event.Type,
		}).Debug("Ignoring unrecognized event type")
	}

	return nil
}

// dispatchOutbound forwards events users subscribe to. Contact and group
// cache updates stay internal.
func (p *EventProcessor) dispatchOutbound(ctx context.Context, event *models.NormalizedEvent) {
	var (
		outboundType string
		data         interface{}
	)

	switch event.Type {
	case models.EventMessage:
		outboundType = models.OutboundEventMessageReceived
		data = event.Message
	case models.EventConnectionUpdate:
		outboundType = models.OutboundEventConnectionUpdate
		data = event.Connection
	case models.EventQRCode:
		outboundType = models.OutboundEventQRCode
		data = event.QR
	case models.EventAuthFailure:
		outboundType = models.OutboundEventAuthFailure
		data = event.Auth
	default:
		return
	}

	// Error already logged and recorded by the dispatcher
	_ = p.dispatcher.Dispatch(ctx, event.Device, outboundType, data)
}
