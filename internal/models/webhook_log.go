package models

import "time"

// DeliveryStatus is the recorded outcome of one outbound webhook attempt
type DeliveryStatus string

const (
	DeliverySuccess DeliveryStatus = "success"
	DeliveryFailed  DeliveryStatus = "failed"
)

// WebhookDeliveryLog is one row of the append-only dispatch audit trail.
// Exactly one row is written per attempt, including manual test sends.
type WebhookDeliveryLog struct {
	ID              int64          `json:"id"`
	DeviceID        int64          `json:"device_id"`
	EventType       string         `json:"event_type"`
	Payload         string         `json:"payload"`
	ResponseCode    int            `json:"response_code"`
	ResponseBody    string         `json:"response_body"`
	ExecutionTimeMs int64          `json:"execution_time_ms"`
	Status          DeliveryStatus `json:"status"`
	ErrorMessage    *string        `json:"error_message,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}

// WebhookStats aggregates delivery outcomes over the stats window
type WebhookStats struct {
	TotalCalls       int     `json:"total_calls"`
	SuccessCount     int     `json:"success_count"`
	FailedCount      int     `json:"failed_count"`
	AvgExecutionTime float64 `json:"avg_execution_time"`
}
