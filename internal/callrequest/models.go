package callrequest

import "time"

// CallRequest tracks one consumer's request for an automated call placed by a
// business through the voice provider.
//
// Multi-tenant invariant: BusinessID is required on every record, and CallID
// (the provider's correlation id) is unique within a business.
//
// Records are created by the request-initiation flow, mutated only by the
// webhook pipeline and the reconciler, and never deleted.
type CallRequest struct {
	ID          string `json:"id" db:"id" firestore:"-"`
	BusinessID  string `json:"businessId" db:"business_id" firestore:"businessId"`
	ConsumerID  string `json:"consumerId" db:"consumer_id" firestore:"userId"`
	CallID      string `json:"callId" db:"call_id" firestore:"callId"`
	PhoneNumber string `json:"phoneNumber" db:"phone_number" firestore:"userPhone"`

	Status     Status `json:"status" db:"status" firestore:"status"`
	CallStatus string `json:"callStatus,omitempty" db:"call_status" firestore:"callStatus"`

	CallStartedAt *time.Time `json:"callStartedAt,omitempty" db:"call_started_at" firestore:"callStartedAt"`
	CompletedAt   *time.Time `json:"completedAt,omitempty" db:"completed_at" firestore:"completedAt"`
	FailedAt      *time.Time `json:"failedAt,omitempty" db:"failed_at" firestore:"failedAt"`
	FailureReason string     `json:"failureReason,omitempty" db:"failure_reason" firestore:"failureReason"`

	// CallDuration is in seconds as reported by the provider (may be fractional).
	CallDuration float64 `json:"callDuration,omitempty" db:"call_duration" firestore:"callDuration"`
	EndedReason  string  `json:"endedReason,omitempty" db:"ended_reason" firestore:"endedReason"`
	RecordingURL string  `json:"recordingUrl,omitempty" db:"recording_url" firestore:"recordingUrl"`

	// Transcript is the live log appended by webhooks until reconciliation
	// replaces it with the provider's authoritative transcript.
	Transcript  string `json:"transcript,omitempty" db:"transcript" firestore:"transcript"`
	CallSummary string `json:"callSummary,omitempty" db:"call_summary" firestore:"callSummary"`

	// BookingInfo is nil when nothing was captured.
	// BookingExtracted is true only when BookingInfo came from the assistant's
	// save_booking_info function call, which outranks transcript heuristics.
	BookingInfo      map[string]any `json:"bookingInfo,omitempty" db:"booking_info" firestore:"bookingInfo"`
	BookingExtracted bool           `json:"bookingExtracted" db:"booking_extracted" firestore:"bookingExtracted"`

	CallDetailsProcessed   bool       `json:"callDetailsProcessed" db:"call_details_processed" firestore:"callDetailsProcessed"`
	CallDetailsProcessedAt *time.Time `json:"callDetailsProcessedAt,omitempty" db:"call_details_processed_at" firestore:"callDetailsProcessedAt"`
	NeedsManualProcessing  bool       `json:"needsManualProcessing" db:"needs_manual_processing" firestore:"needsManualProcessing"`
	CallDetailsError       string     `json:"callDetailsError,omitempty" db:"call_details_error" firestore:"callDetailsError"`

	LastWebhookAt *time.Time `json:"lastWebhookAt,omitempty" db:"last_webhook_at" firestore:"lastWebhookAt"`
	CreatedAt     time.Time  `json:"createdAt" db:"created_at" firestore:"requestedAt"`
	UpdatedAt     time.Time  `json:"updatedAt" db:"updated_at" firestore:"updatedAt"`
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusInitiated Status = "initiated"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further status change is allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInitiated, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// Provider call sub-states stored in CallStatus.
const (
	CallStatusRinging    = "ringing"
	CallStatusInProgress = "in-progress"
	CallStatusEnded      = "ended"
	CallStatusFailed     = "failed"
)

// ListFilter narrows List results. Zero values mean "no filter".
type ListFilter struct {
	From time.Time
	To   time.Time

	NeedsManualProcessing bool
	Limit                 int
}

func (f ListFilter) match(r CallRequest) bool {
	if !f.From.IsZero() && r.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !r.CreatedAt.Before(f.To) {
		return false
	}
	if f.NeedsManualProcessing && !r.NeedsManualProcessing {
		return false
	}
	return true
}
