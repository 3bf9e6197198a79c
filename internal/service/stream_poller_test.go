package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"wabridge/pkg/provider"
	providertypes "wabridge/pkg/provider/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedStream emits a fixed set of frames on each connection, then either
// fails or blocks until cancellation.
type scriptedStream struct {
	frames     []*providertypes.StreamEvent
	listenErr  error
	connects   atomic.Int32
	frameDone  chan struct{}
	signalOnce atomic.Bool
}

func (s *scriptedStream) Listen(ctx context.Context, handler provider.EventHandler) error {
	s.connects.Add(1)

	for _, frame := range s.frames {
		handler(ctx, frame)
	}
	if s.frameDone != nil && s.signalOnce.CompareAndSwap(false, true) {
		close(s.frameDone)
	}

	if s.listenErr != nil {
		return s.listenErr
	}

	<-ctx.Done()
	return ctx.Err()
}

func streamFrame(t *testing.T, sessionID, event string, data interface{}) *providertypes.StreamEvent {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	return &providertypes.StreamEvent{
		SessionID: sessionID,
		Event:     event,
		Data:      raw,
	}
}

func TestStreamPoller_FramesFeedThePipeline(t *testing.T) {
	device := testDevice()
	store := newFakeEventStore(device)
	dispatcher := &fakeDispatcher{}
	processor := NewEventProcessor(store, dispatcher, testLogger())

	stream := &scriptedStream{
		frameDone: make(chan struct{}),
		frames: []*providertypes.StreamEvent{
			streamFrame(t, device.SessionID, "message", map[string]interface{}{
				"key":     map[string]interface{}{"id": "S1", "remoteJid": "628777@s.whatsapp.net"},
				"message": map[string]interface{}{"conversation": "via stream"},
			}),
		},
	}

	poller := NewStreamPoller(stream, processor, testLogger())
	poller.Start(context.Background())

	select {
	case <-stream.frameDone:
	case <-time.After(time.Second):
		t.Fatal("stream frames were not consumed")
	}
	poller.Stop()

	require.Len(t, store.savedMessages, 1)
	assert.Equal(t, "via stream", store.savedMessages[0].Content)
	assert.Equal(t, []string{"message_received"}, dispatcher.dispatched)
}

func TestStreamPoller_ProcessingFailureKeepsStreamAlive(t *testing.T) {
	// No devices registered, so every frame hits an unknown session
	store := newFakeEventStore()
	processor := NewEventProcessor(store, &fakeDispatcher{}, testLogger())

	stream := &scriptedStream{
		frameDone: make(chan struct{}),
		frames: []*providertypes.StreamEvent{
			streamFrame(t, "wa_0_nobody", "message", map[string]interface{}{
				"key": map[string]interface{}{"id": "S1", "remoteJid": "628@s.whatsapp.net"},
			}),
		},
	}

	poller := NewStreamPoller(stream, processor, testLogger())
	poller.Start(context.Background())

	select {
	case <-stream.frameDone:
	case <-time.After(time.Second):
		t.Fatal("stream frames were not consumed")
	}
	poller.Stop()

	assert.Empty(t, store.savedMessages)
	assert.Equal(t, int32(1), stream.connects.Load(), "a dropped frame must not tear down the connection")
}

func TestStreamPoller_ReconnectsAfterDisconnect(t *testing.T) {
	processor := NewEventProcessor(newFakeEventStore(), &fakeDispatcher{}, testLogger())
	stream := &scriptedStream{listenErr: fmt.Errorf("connection reset")}

	poller := NewStreamPoller(stream, processor, testLogger())
	poller.Start(context.Background())
	defer poller.Stop()

	// The first reconnect delay is about a second
	assert.Eventually(t, func() bool {
		return stream.connects.Load() >= 2
	}, 5*time.Second, 50*time.Millisecond, "poller should reconnect after a stream failure")
}

func TestStreamPoller_StopCancelsListen(t *testing.T) {
	processor := NewEventProcessor(newFakeEventStore(), &fakeDispatcher{}, testLogger())
	stream := &scriptedStream{}

	poller := NewStreamPoller(stream, processor, testLogger())
	poller.Start(context.Background())

	done := make(chan struct{})
	go func() {
		poller.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return while the stream was blocked")
	}
}
