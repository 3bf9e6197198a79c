package types

import "context"

// Client is the control surface of the external WhatsApp engine
type Client interface {
	CreateSession(ctx context.Context, sessionID string) error
	ConnectSession(ctx context.Context, sessionID string) error
	DisconnectSession(ctx context.Context, sessionID string) error
	GetSessionStatus(ctx context.Context, sessionID string) (*SessionStatus, error)
	GetQRCode(ctx context.Context, sessionID string) (string, error)
	ListSessions(ctx context.Context) ([]SessionStatus, error)

	SendText(ctx context.Context, req *SendTextRequest) (*SendMessageResult, error)
	SendMedia(ctx context.Context, req *SendMediaRequest) (*SendMessageResult, error)
	SendLocation(ctx context.Context, req *SendLocationRequest) (*SendMessageResult, error)
	SendContact(ctx context.Context, req *SendContactRequest) (*SendMessageResult, error)

	TestWebhook(ctx context.Context, sessionID string) error
	HealthCheck(ctx context.Context) (*HealthStatus, error)
}
