package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"wabridge/pkg/provider/types"

	"github.com/coder/websocket"
)

// StreamClient consumes the engine's websocket event stream. Frames carry
// the same JSON shape as the engine's webhook POSTs, so both transports feed
// the same processing pipeline.
type StreamClient struct {
	url    string
	apiKey string
}

// NewStreamClient creates a stream client for the given websocket URL
func NewStreamClient(url, apiKey string) *StreamClient {
	return &StreamClient{
		url:    url,
		apiKey: apiKey,
	}
}

// EventHandler processes one stream event. Returning an error does not stop
// the stream; delivery failures are the handler's concern.
type EventHandler func(ctx context.Context, event *types.StreamEvent)

// Listen connects to the stream and delivers events to the handler until the
// connection drops or the context is cancelled. Callers are expected to wrap
// Listen with their own reconnect policy.
func (s *StreamClient) Listen(ctx context.Context, handler EventHandler) error {
	header := http.Header{}
	if s.apiKey != "" {
		header.Set("X-Api-Key", s.apiKey)
	}

	conn, _, err := websocket.Dial(ctx, s.url, &websocket.DialOptions{
		HTTPHeader: header,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to event stream: %w", err)
	}
	defer func() {
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("event stream read failed: %w", err)
		}

		if msgType != websocket.MessageText {
			continue
		}

		var event types.StreamEvent
		if err := json.Unmarshal(data, &event); err != nil {
			// Skip malformed frames; the stream itself is still healthy
			continue
		}

		handler(ctx, &event)
	}
}
