package reporting

import (
	"context"
	"errors"
	"testing"
	"time"

	"call-pipeline/internal/callrequest"
)

func seed(t *testing.T, store *callrequest.MemoryStore, now time.Time, recs ...callrequest.CallRequest) {
	t.Helper()
	ctx := context.Background()
	for _, r := range recs {
		created, err := store.Create(ctx, callrequest.CallRequest{BusinessID: r.BusinessID, CallID: r.CallID})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		p := callrequest.Patch{
			Status:       &callrequest.StatusChange{To: r.Status, From: []callrequest.Status{callrequest.StatusPending}},
			CallDuration: &r.CallDuration,
			RecordingURL: &r.RecordingURL,
		}
		if r.BookingInfo != nil {
			p.Booking = &callrequest.BookingUpdate{Info: r.BookingInfo, Authoritative: r.BookingExtracted}
		}
		if r.CallDetailsProcessed {
			p.MarkProcessed = &now
		}
		if r.NeedsManualProcessing {
			reason := "retries exhausted"
			p.NeedsManualProcessing = &reason
		}
		if _, err := store.Update(ctx, r.BusinessID, created.ID, p); err != nil {
			t.Fatalf("update: %v", err)
		}
	}
}

func TestCallsSummary_Aggregates(t *testing.T) {
	store := callrequest.NewMemoryStore()
	now := time.Now().UTC()
	seed(t, store, now,
		callrequest.CallRequest{BusinessID: "b1", CallID: "c1", Status: callrequest.StatusCompleted, CallDuration: 30, RecordingURL: "https://r/1", CallDetailsProcessed: true, BookingInfo: map[string]any{"guests": 2}, BookingExtracted: true},
		callrequest.CallRequest{BusinessID: "b1", CallID: "c2", Status: callrequest.StatusCompleted, CallDuration: 90, BookingInfo: map[string]any{"email": "a@b.co"}},
		callrequest.CallRequest{BusinessID: "b1", CallID: "c3", Status: callrequest.StatusFailed, NeedsManualProcessing: true},
		callrequest.CallRequest{BusinessID: "b1", CallID: "c4", Status: callrequest.StatusInitiated},
		callrequest.CallRequest{BusinessID: "b2", CallID: "c5", Status: callrequest.StatusCompleted, CallDuration: 500},
	)

	svc := NewService(store)
	out, err := svc.CallsSummary(context.Background(), CallsSummaryRequest{BusinessID: "b1", Range: TimeRange{From: now.Add(-time.Hour), To: now.Add(time.Hour)}})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.TotalCalls != 4 || out.CompletedCalls != 2 || out.FailedCalls != 1 || out.InitiatedCalls != 1 {
		t.Fatalf("unexpected counts: %+v", out)
	}
	if out.ProcessedCalls != 1 || out.NeedsManualProcessing != 1 || out.RecordedCalls != 1 {
		t.Fatalf("unexpected flags: %+v", out)
	}
	if out.BookingsCaptured != 2 || out.BookingsAuthoritative != 1 {
		t.Fatalf("unexpected bookings: %+v", out)
	}
	if out.TotalDurationSeconds != 120 || out.AverageDurationSeconds != 60 {
		t.Fatalf("unexpected durations: %+v", out)
	}
}

func TestCallsSummary_RejectsBadRequests(t *testing.T) {
	svc := NewService(callrequest.NewMemoryStore())
	now := time.Now()
	bad := []CallsSummaryRequest{
		{Range: TimeRange{From: now.Add(-time.Hour), To: now}},
		{BusinessID: "b1"},
		{BusinessID: "b1", Range: TimeRange{From: now, To: now.Add(-time.Hour)}},
	}
	for _, req := range bad {
		if _, err := svc.CallsSummary(context.Background(), req); !errors.Is(err, ErrInvalidRequest) {
			t.Fatalf("expected ErrInvalidRequest for %+v, got %v", req, err)
		}
	}
}

func TestManualQueue(t *testing.T) {
	store := callrequest.NewMemoryStore()
	now := time.Now().UTC()
	seed(t, store, now,
		callrequest.CallRequest{BusinessID: "b1", CallID: "c1", Status: callrequest.StatusCompleted, NeedsManualProcessing: true},
		callrequest.CallRequest{BusinessID: "b1", CallID: "c2", Status: callrequest.StatusCompleted, CallDetailsProcessed: true},
		callrequest.CallRequest{BusinessID: "b2", CallID: "c3", Status: callrequest.StatusCompleted, NeedsManualProcessing: true},
	)

	got, err := NewService(store).ManualQueue(context.Background(), "b1", 0)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(got) != 1 || got[0].CallID != "c1" {
		t.Fatalf("unexpected queue: %+v", got)
	}
}
