package types

// Engine API endpoints
const (
	EndpointCreateSession = "/auth/create-session"
	EndpointConnect       = "/auth/connect"
	EndpointStatus        = "/auth/status/"
	EndpointQR            = "/auth/qr/"
	EndpointDisconnect    = "/auth/disconnect"
	EndpointSessions      = "/auth/sessions"

	EndpointSendText     = "/message/send-text"
	EndpointSendMedia    = "/message/send-media"
	EndpointSendLocation = "/message/send-location"
	EndpointSendContact  = "/message/send-contact"

	EndpointWebhookTest = "/webhook/test"
	EndpointHealth      = "/health"
)

// Session states reported by the engine
const (
	StateConnecting   = "CONNECTING"
	StateConnected    = "CONNECTED"
	StateDisconnected = "DISCONNECTED"
	StateBanned       = "BANNED"
	StateQRGenerated  = "QR_GENERATED"
	StateTimeout      = "TIMEOUT"
)
