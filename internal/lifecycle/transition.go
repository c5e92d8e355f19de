// Package lifecycle applies provider webhook events to call requests.
package lifecycle

import (
	"fmt"
	"time"

	"call-pipeline/internal/callrequest"
	"call-pipeline/internal/events"
	"call-pipeline/internal/provider"
)

var (
	fromOpen       = []callrequest.Status{callrequest.StatusPending, callrequest.StatusInitiated}
	fromOpenOrDone = []callrequest.Status{callrequest.StatusPending, callrequest.StatusInitiated, callrequest.StatusCompleted}
)

// Transition returns the patch that applies ev, or ok=false when the event
// carries nothing to store. It is pure: the store evaluates the guards.
//
// Rules:
//   - call-start moves pending to initiated.
//   - status-update ringing/in-progress moves pending to initiated.
//   - status-update ended and call-end complete any non-failed record and
//     refresh completedAt when repeated.
//   - status-update failed fails any open record.
//   - other sub-states only update callStatus on open records.
func Transition(ev events.Event, now time.Time) (callrequest.Patch, bool) {
	now = now.UTC()
	var p callrequest.Patch

	switch e := ev.(type) {
	case events.CallStarted:
		p.Status = &callrequest.StatusChange{
			To:         callrequest.StatusInitiated,
			From:       []callrequest.Status{callrequest.StatusPending},
			CallStatus: callrequest.CallStatusInProgress,
			StartedAt:  &now,
		}

	case events.StatusUpdated:
		sc, ok := statusUpdate(e.CallInfo, now)
		if !ok {
			return callrequest.Patch{}, false
		}
		p.Status = sc

	case events.TranscriptReceived:
		if e.Role == "" && e.Text == "" {
			return callrequest.Patch{}, false
		}
		p.AppendTranscript = fmt.Sprintf("[%s] %s: %s", now.Format(time.RFC3339), e.Role, e.Text)

	case events.FunctionCalled:
		if e.Name != provider.FunctionSaveBookingInfo || e.Parameters == nil {
			return callrequest.Patch{}, false
		}
		p.Booking = &callrequest.BookingUpdate{Info: e.Parameters, Authoritative: true}

	case events.CallEnded:
		p.Status = completed(now)
		if e.Duration != nil {
			d := *e.Duration
			p.CallDuration = &d
		}
		if e.EndedReason != "" {
			reason := e.EndedReason
			p.EndedReason = &reason
		}
		if e.RecordingURL != "" {
			url := e.RecordingURL
			p.RecordingURL = &url
		}

	default:
		return callrequest.Patch{}, false
	}

	p.WebhookAt = &now
	return p, true
}

func statusUpdate(call events.CallInfo, now time.Time) (*callrequest.StatusChange, bool) {
	switch call.Status {
	case "":
		return nil, false
	case callrequest.CallStatusRinging, callrequest.CallStatusInProgress:
		return &callrequest.StatusChange{
			To:         callrequest.StatusInitiated,
			From:       fromOpen,
			CallStatus: call.Status,
		}, true
	case callrequest.CallStatusEnded:
		return completed(now), true
	case callrequest.CallStatusFailed:
		return &callrequest.StatusChange{
			To:            callrequest.StatusFailed,
			From:          fromOpen,
			CallStatus:    callrequest.CallStatusFailed,
			FailedAt:      &now,
			FailureReason: call.EndedReason,
		}, true
	default:
		return &callrequest.StatusChange{From: fromOpen, CallStatus: call.Status}, true
	}
}

// completed is shared by status-update(ended) and call-end so both orders
// converge on the same fields.
func completed(now time.Time) *callrequest.StatusChange {
	return &callrequest.StatusChange{
		To:          callrequest.StatusCompleted,
		From:        fromOpenOrDone,
		CallStatus:  callrequest.CallStatusEnded,
		CompletedAt: &now,
	}
}
