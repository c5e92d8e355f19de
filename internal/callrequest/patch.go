package callrequest

import (
	"slices"
	"time"
)

// Patch is a partial update applied atomically by a Store.
//
// Nil/empty fields are left untouched. Conditional parts (Status, Booking,
// OnlyIfUnprocessed) are evaluated against the stored record at write time,
// not against whatever snapshot the caller read earlier, so concurrent and
// out-of-order webhook deliveries converge.
type Patch struct {
	// Status is applied only when the stored status is in Status.From.
	Status *StatusChange

	CallDuration *float64
	EndedReason  *string
	RecordingURL *string

	// AppendTranscript adds one line to the live transcript log.
	AppendTranscript string
	// Transcript replaces the whole transcript (reconciliation only).
	Transcript  *string
	CallSummary *string
	Booking     *BookingUpdate

	// MarkProcessed sets callDetailsProcessed at the given time and clears any
	// manual-processing flag left by an earlier failed attempt.
	MarkProcessed *time.Time
	// NeedsManualProcessing flags the record for staff with the given error.
	NeedsManualProcessing *string

	// OnlyIfUnprocessed makes the whole patch a no-op returning
	// ErrAlreadyProcessed once callDetailsProcessed is true.
	OnlyIfUnprocessed bool

	WebhookAt *time.Time
}

// StatusChange is a guarded transition. The status and every field that
// belongs to the transition are written together or not at all.
type StatusChange struct {
	// To is the new status; empty keeps the current status and only updates
	// CallStatus (still subject to From).
	To   Status
	From []Status

	CallStatus    string
	StartedAt     *time.Time
	CompletedAt   *time.Time
	FailedAt      *time.Time
	FailureReason string
}

// Allowed reports whether the change may be applied on top of current.
func (c StatusChange) Allowed(current Status) bool {
	return slices.Contains(c.From, current)
}

// BookingUpdate carries extracted booking data and its confidence tier.
type BookingUpdate struct {
	Info map[string]any
	// Authoritative marks data taken from the save_booking_info function
	// result. Non-authoritative data never replaces authoritative data.
	Authoritative bool
}

// Apply mutates r according to p. It is the reference semantics every Store
// implements; the memory and Firestore stores call it directly.
func Apply(r *CallRequest, p Patch, now time.Time) error {
	if p.OnlyIfUnprocessed && r.CallDetailsProcessed {
		return ErrAlreadyProcessed
	}

	if sc := p.Status; sc != nil && sc.Allowed(r.Status) {
		if sc.To != "" {
			r.Status = sc.To
		}
		if sc.CallStatus != "" {
			r.CallStatus = sc.CallStatus
		}
		if sc.StartedAt != nil {
			r.CallStartedAt = timePtr(*sc.StartedAt)
		}
		if sc.CompletedAt != nil {
			r.CompletedAt = timePtr(*sc.CompletedAt)
		}
		if sc.FailedAt != nil {
			r.FailedAt = timePtr(*sc.FailedAt)
		}
		if sc.FailureReason != "" {
			r.FailureReason = sc.FailureReason
		}
	}

	if p.CallDuration != nil {
		r.CallDuration = *p.CallDuration
	}
	if p.EndedReason != nil {
		r.EndedReason = *p.EndedReason
	}
	if p.RecordingURL != nil {
		r.RecordingURL = *p.RecordingURL
	}

	if p.Transcript != nil {
		r.Transcript = *p.Transcript
	}
	if p.AppendTranscript != "" {
		r.Transcript = AppendLine(r.Transcript, p.AppendTranscript)
	}
	if p.CallSummary != nil {
		r.CallSummary = *p.CallSummary
	}
	if b := p.Booking; b != nil && b.Info != nil {
		if b.Authoritative {
			r.BookingInfo = cloneMap(b.Info)
			r.BookingExtracted = true
		} else if !r.BookingExtracted {
			r.BookingInfo = cloneMap(b.Info)
		}
	}

	if p.MarkProcessed != nil {
		r.CallDetailsProcessed = true
		r.CallDetailsProcessedAt = timePtr(*p.MarkProcessed)
		r.NeedsManualProcessing = false
		r.CallDetailsError = ""
	}
	if p.NeedsManualProcessing != nil {
		r.NeedsManualProcessing = true
		r.CallDetailsError = *p.NeedsManualProcessing
	}

	if p.WebhookAt != nil {
		r.LastWebhookAt = timePtr(*p.WebhookAt)
	}
	r.UpdatedAt = now
	return nil
}

// AppendLine appends one transcript line, newline-separated.
func AppendLine(transcript, line string) string {
	if transcript == "" {
		return line
	}
	return transcript + "\n" + line
}

func timePtr(t time.Time) *time.Time { return &t }

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneRecord(r CallRequest) CallRequest {
	out := r
	out.BookingInfo = cloneMap(r.BookingInfo)
	return out
}
