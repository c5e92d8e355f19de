package reporting

import "time"

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// CallsSummaryRequest requests aggregated call-request metrics.
// Business isolation: BusinessID is required.
type CallsSummaryRequest struct {
	BusinessID string    `json:"business_id"`
	Range      TimeRange `json:"range"`
}

type CallsSummary struct {
	BusinessID string    `json:"business_id"`
	Range      TimeRange `json:"range"`

	TotalCalls     int `json:"total_calls"`
	PendingCalls   int `json:"pending_calls"`
	InitiatedCalls int `json:"initiated_calls"`
	CompletedCalls int `json:"completed_calls"`
	FailedCalls    int `json:"failed_calls"`

	ProcessedCalls        int `json:"processed_calls"`
	NeedsManualProcessing int `json:"needs_manual_processing"`

	BookingsCaptured      int `json:"bookings_captured"`
	BookingsAuthoritative int `json:"bookings_authoritative"`
	RecordedCalls         int `json:"recorded_calls"`

	TotalDurationSeconds   float64 `json:"total_duration_seconds"`
	AverageDurationSeconds float64 `json:"average_duration_seconds"`
}
