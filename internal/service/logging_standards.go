package service

// Standard Field Names
// Use these exact field names for consistency across all logging calls
const (
	// Core identifiers
	LogFieldRequestID = "request_id"
	LogFieldTraceID   = "trace_id"
	LogFieldDeviceID  = "device_id"
	LogFieldSession   = "session_id"
	LogFieldMessageID = "message_id"

	// Service and operation fields
	LogFieldService   = "service"
	LogFieldOperation = "operation"
	LogFieldComponent = "component"
	LogFieldMethod    = "method"

	// Message and event fields
	LogFieldEvent       = "event"
	LogFieldMessageType = "message_type"
	LogFieldDirection   = "direction" // "incoming" or "outgoing"

	// Performance and metrics
	LogFieldDuration = "duration_ms"
	LogFieldCount    = "count"
	LogFieldSize     = "size_bytes"

	// Network and external services
	LogFieldURL        = "url"
	LogFieldEndpoint   = "endpoint"
	LogFieldStatusCode = "status_code"
	LogFieldRemoteIP   = "remote_ip"
	LogFieldUserAgent  = "user_agent"

	// Error and debugging
	LogFieldErrorCode  = "error_code"
	LogFieldRetryCount = "retry_count"
	LogFieldAttempt    = "attempt"
)
