package service

import (
	"context"
	"sync"
	"time"

	"wabridge/internal/constants"
	"wabridge/internal/errors"
	"wabridge/internal/models"
	"wabridge/internal/retry"
	"wabridge/pkg/provider"
	providertypes "wabridge/pkg/provider/types"

	"github.com/sirupsen/logrus"
)

// StreamListener is the subset of the stream client the poller consumes
type StreamListener interface {
	Listen(ctx context.Context, handler provider.EventHandler) error
}

// StreamPoller keeps a websocket subscription to the engine's event stream
// alive, feeding every frame into the same pipeline the webhook receiver
// uses. Reconnects use exponential backoff; a connection that stays up long
// enough resets the backoff sequence.
type StreamPoller struct {
	stream    StreamListener
	processor *EventProcessor
	logger    *logrus.Logger
	backoff   *retry.Backoff

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func NewStreamPoller(stream StreamListener, processor *EventProcessor, logger *logrus.Logger) *StreamPoller {
	backoff := retry.NewBackoff(retry.BackoffConfig{
		InitialDelay: constants.DefaultStreamReconnectDelayMs * time.Millisecond,
		MaxDelay:     constants.DefaultStreamMaxReconnectDelay * time.Millisecond,
		Multiplier:   2.0,
		MaxAttempts:  1,
		Jitter:       true,
	})

	return &StreamPoller{
		stream:    stream,
		processor: processor,
		logger:    logger,
		backoff:   backoff,
	}
}

// Start launches the polling loop in the background
func (p *StreamPoller) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run(ctx)
	}()
}

// Stop cancels the polling loop and waits for it to exit
func (p *StreamPoller) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

// stableConnectionThreshold is how long a connection must survive before the
// reconnect backoff resets to its initial delay.
const stableConnectionThreshold = 30 * time.Second

func (p *StreamPoller) run(ctx context.Context) {
	attempt := 1

	for {
		if ctx.Err() != nil {
			return
		}

		start := time.Now()
		err := p.stream.Listen(ctx, p.handleEvent)
		if ctx.Err() != nil {
			return
		}

		if time.Since(start) >= stableConnectionThreshold {
			attempt = 1
		}

		delay := p.backoff.GetNextDelay(attempt)
		p.logger.WithError(err).WithFields(logrus.Fields{
			LogFieldComponent: "stream_poller",
			LogFieldDuration:  time.Since(start).Milliseconds(),
			LogFieldAttempt:   attempt,
		}).Warn("Event stream disconnected, reconnecting")

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		attempt++
	}
}

// handleEvent adapts one stream frame into the receive pipeline. Processing
// failures are logged here; the stream stays up regardless.
func (p *StreamPoller) handleEvent(ctx context.Context, event *providertypes.StreamEvent) {
	providerEvent := &models.ProviderEvent{
		SessionID: event.SessionID,
		Event:     event.Event,
		Data:      event.Data,
	}

	if err := p.processor.Process(ctx, providerEvent); err != nil {
		// Unknown sessions are routine on a shared stream; anything else
		// deserves attention
		level := logrus.WarnLevel
		if errors.IsCode(err, errors.ErrCodeUnknownSession) {
			level = logrus.DebugLevel
		}

		p.logger.WithError(err).WithFields(logrus.Fields{
			LogFieldComponent: "stream_poller",
			LogFieldEvent:     event.Event,
		}).Log(level, "Stream event processing failed")
	}
}
