package errors

import (
	"context"
	"fmt"
)

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	traceIDKey   contextKey = "trace_id"
	deviceIDKey  contextKey = "device_id"
	sessionIDKey contextKey = "session_id"
)

// Common error creators for frequent use cases

// NewValidationError creates a validation error with field context
func NewValidationError(field, value, message string) *AppError {
	return New(ErrCodeValidationFailed, message).
		WithContext("field", field).
		WithContext("value", value).
		WithUserMessage(fmt.Sprintf("Invalid %s: %s", field, message))
}

// NewConfigError creates a configuration error
func NewConfigError(key, message string) *AppError {
	return New(ErrCodeInvalidConfig, message).
		WithContext("config_key", key).
		WithUserMessage("Configuration error")
}

// NewDatabaseError creates a database error with operation context
func NewDatabaseError(operation string, err error) *AppError {
	return Wrap(err, ErrCodeDatabaseQuery, fmt.Sprintf("database %s failed", operation)).
		WithContext("operation", operation).
		WithUserMessage("Database operation failed")
}

// NewMalformedEventError creates an error for an engine payload that cannot
// be parsed or is missing required fields
func NewMalformedEventError(reason string) *AppError {
	return New(ErrCodeMalformedEvent, reason).
		WithUserMessage("Invalid webhook payload")
}

// NewUnknownSessionError creates an error for an event whose session has no
// registered device
func NewUnknownSessionError(sessionID string) *AppError {
	return New(ErrCodeUnknownSession, "no device registered for session").
		WithContext("session_id", sessionID).
		WithUserMessage("Unknown session")
}

// NewPersistenceError creates an error for a failed event side effect write
func NewPersistenceError(operation string, err error) *AppError {
	return Wrap(err, ErrCodePersistence, fmt.Sprintf("persisting %s failed", operation)).
		WithContext("operation", operation).
		WithUserMessage("Failed to persist event")
}

// NewDispatchError creates an error for a failed outbound webhook delivery
func NewDispatchError(url string, err error) *AppError {
	return WrapRetryable(err, ErrCodeDispatch, "webhook delivery failed").
		WithContext("url", url).
		WithUserMessage("Webhook delivery failed")
}

// NewProviderAPIError creates an error for a failed engine API call
func NewProviderAPIError(endpoint string, statusCode int, err error) *AppError {
	appErr := Wrap(err, ErrCodeProviderAPI, "provider API call failed").
		WithContext("endpoint", endpoint).
		WithContext("status_code", statusCode)

	// 5xx, 429 and 408 are temporary engine conditions
	if statusCode >= 500 || statusCode == 429 || statusCode == 408 {
		appErr.Retryable = true
	}

	return appErr
}

// NewTimeoutError creates a timeout error with context
func NewTimeoutError(operation string, duration string) *AppError {
	return New(ErrCodeTimeout, fmt.Sprintf("%s timed out after %s", operation, duration)).
		WithContext("operation", operation).
		WithContext("timeout", duration).
		WithUserMessage("Operation timed out, please try again")
}

// NewAuthError creates an authentication/authorization error
func NewAuthError(reason string) *AppError {
	return New(ErrCodeAuthentication, "authentication failed").
		WithContext("reason", reason).
		WithUserMessage("Authentication failed")
}

// NewNotFoundError creates a not found error with resource context
func NewNotFoundError(resource, identifier string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource)).
		WithContext("resource", resource).
		WithContext("identifier", identifier).
		WithUserMessage(fmt.Sprintf("%s not found", resource))
}

// NewRateLimitError creates a rate limit error
func NewRateLimitError(limit int, window string) *AppError {
	return New(ErrCodeRateLimit, "rate limit exceeded").
		WithContext("limit", limit).
		WithContext("window", window).
		WithUserMessage("Too many requests, please try again later")
}

// Context helpers

// FromContext extracts error context from a context.Context if present
func FromContext(ctx context.Context) map[string]interface{} {
	if ctx == nil {
		return nil
	}

	errorCtx := make(map[string]interface{})

	if requestID := ctx.Value(requestIDKey); requestID != nil {
		errorCtx["request_id"] = requestID
	}
	if traceID := ctx.Value(traceIDKey); traceID != nil {
		errorCtx["trace_id"] = traceID
	}
	if deviceID := ctx.Value(deviceIDKey); deviceID != nil {
		errorCtx["device_id"] = deviceID
	}
	if sessionID := ctx.Value(sessionIDKey); sessionID != nil {
		errorCtx["session_id"] = sessionID
	}

	return errorCtx
}

// WithContextFromRequest adds request context to an error
func WithContextFromRequest(err *AppError, ctx context.Context) *AppError {
	if err == nil || ctx == nil {
		return err
	}

	contextMap := FromContext(ctx)
	for k, v := range contextMap {
		err = err.WithContext(k, v)
	}

	return err
}

// HTTP helpers

// HTTPStatusCode maps error codes to appropriate HTTP status codes
func HTTPStatusCode(err error) int {
	code := GetCode(err)

	switch code {
	case ErrCodeValidationFailed, ErrCodeInvalidInput, ErrCodeInvalidConfig, ErrCodeMalformedEvent:
		return 400 // Bad Request
	case ErrCodeAuthentication:
		return 401 // Unauthorized
	case ErrCodeAuthorization:
		return 403 // Forbidden
	case ErrCodeNotFound:
		return 404 // Not Found
	case ErrCodeRateLimit:
		return 429 // Too Many Requests
	case ErrCodeTimeout:
		return 408 // Request Timeout
	case ErrCodeProviderAPI, ErrCodeDispatch:
		// If it's retryable, it's a temporary issue upstream
		if IsRetryable(err) {
			return 502 // Bad Gateway
		}
		return 500 // Internal Server Error
	case ErrCodeDatabaseConnection, ErrCodeDatabaseQuery, ErrCodeDatabaseMigration, ErrCodePersistence:
		return 500 // Internal Server Error
	default:
		return 500 // Internal Server Error
	}
}

// HTTPErrorResponse is a standardized HTTP error response body
type HTTPErrorResponse struct {
	Error struct {
		Code    ErrorCode   `json:"code"`
		Message string      `json:"message"`
		Context interface{} `json:"context,omitempty"`
	} `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// ToHTTPResponse converts an error to a standardized HTTP response
func ToHTTPResponse(err error, requestID string) HTTPErrorResponse {
	response := HTTPErrorResponse{
		RequestID: requestID,
	}

	if appErr, ok := err.(*AppError); ok {
		response.Error.Code = appErr.Code
		response.Error.Message = GetUserMessage(err)
		if len(appErr.Context) > 0 {
			// Only include non-sensitive context in HTTP responses
			publicContext := make(map[string]interface{})
			for k, v := range appErr.Context {
				if k != "password" && k != "token" && k != "secret" && k != "api_key" {
					publicContext[k] = v
				}
			}
			if len(publicContext) > 0 {
				response.Error.Context = publicContext
			}
		}
	} else {
		response.Error.Code = ErrCodeInternalError
		response.Error.Message = GetUserMessage(err)
	}

	return response
}
