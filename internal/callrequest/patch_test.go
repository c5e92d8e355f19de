package callrequest

import (
	"errors"
	"testing"
	"time"
)

func TestApply_StatusGuard(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	r := CallRequest{Status: StatusCompleted, CallStatus: CallStatusEnded}

	err := Apply(&r, Patch{Status: &StatusChange{
		To:         StatusInitiated,
		From:       []Status{StatusPending},
		CallStatus: CallStatusRinging,
	}}, now)
	if err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if r.Status != StatusCompleted || r.CallStatus != CallStatusEnded {
		t.Fatalf("terminal status must not regress: %q %q", r.Status, r.CallStatus)
	}
	if !r.UpdatedAt.Equal(now) {
		t.Fatalf("expected updatedAt to be bumped")
	}
}

func TestApply_StatusGroupWrittenTogether(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	failedAt := now.Add(-time.Second)
	r := CallRequest{Status: StatusInitiated}

	_ = Apply(&r, Patch{Status: &StatusChange{
		To:            StatusFailed,
		From:          []Status{StatusPending, StatusInitiated},
		CallStatus:    CallStatusFailed,
		FailedAt:      &failedAt,
		FailureReason: "customer-busy",
	}}, now)

	if r.Status != StatusFailed || r.FailureReason != "customer-busy" || r.FailedAt == nil {
		t.Fatalf("unexpected record: %+v", r)
	}
	if !r.FailedAt.Equal(failedAt) {
		t.Fatalf("expected failedAt %v, got %v", failedAt, *r.FailedAt)
	}
}

func TestApply_AppendTranscript(t *testing.T) {
	r := CallRequest{}
	now := time.Now()
	_ = Apply(&r, Patch{AppendTranscript: "a"}, now)
	_ = Apply(&r, Patch{AppendTranscript: "b"}, now)
	if r.Transcript != "a\nb" {
		t.Fatalf("unexpected transcript %q", r.Transcript)
	}
}

func TestApply_BookingTiers(t *testing.T) {
	now := time.Now()
	r := CallRequest{}

	_ = Apply(&r, Patch{Booking: &BookingUpdate{Info: map[string]any{"name": "heuristic"}}}, now)
	if r.BookingExtracted || r.BookingInfo["name"] != "heuristic" {
		t.Fatalf("expected heuristic booking, got %+v", r.BookingInfo)
	}

	_ = Apply(&r, Patch{Booking: &BookingUpdate{Info: map[string]any{"name": "fn"}, Authoritative: true}}, now)
	if !r.BookingExtracted || r.BookingInfo["name"] != "fn" {
		t.Fatalf("expected authoritative booking, got %+v", r.BookingInfo)
	}

	_ = Apply(&r, Patch{Booking: &BookingUpdate{Info: map[string]any{"name": "later"}}}, now)
	if r.BookingInfo["name"] != "fn" {
		t.Fatalf("heuristic data must not replace authoritative data")
	}
}

func TestApply_OnlyIfUnprocessed(t *testing.T) {
	now := time.Now()
	summary := "Call ended"
	r := CallRequest{CallDetailsProcessed: true, CallSummary: "first"}

	err := Apply(&r, Patch{CallSummary: &summary, OnlyIfUnprocessed: true}, now)
	if !errors.Is(err, ErrAlreadyProcessed) {
		t.Fatalf("expected ErrAlreadyProcessed, got %v", err)
	}
	if r.CallSummary != "first" {
		t.Fatalf("record must be unchanged")
	}
}

func TestApply_MarkProcessedClearsManualFlag(t *testing.T) {
	now := time.Now()
	msg := "provider timeout"
	r := CallRequest{}

	_ = Apply(&r, Patch{NeedsManualProcessing: &msg}, now)
	if !r.NeedsManualProcessing || r.CallDetailsError != msg {
		t.Fatalf("expected manual flag")
	}

	_ = Apply(&r, Patch{MarkProcessed: &now}, now)
	if r.NeedsManualProcessing || r.CallDetailsError != "" || !r.CallDetailsProcessed {
		t.Fatalf("unexpected record: %+v", r)
	}
}

func TestStatusTerminal(t *testing.T) {
	if StatusPending.Terminal() || StatusInitiated.Terminal() {
		t.Fatalf("pending/initiated are not terminal")
	}
	if !StatusCompleted.Terminal() || !StatusFailed.Terminal() {
		t.Fatalf("completed/failed are terminal")
	}
	if Status("bogus").Valid() {
		t.Fatalf("expected invalid status")
	}
}
