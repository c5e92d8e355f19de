package lifecycle

import (
	"context"
	"strings"
	"testing"
	"time"

	"call-pipeline/internal/callrequest"
	"call-pipeline/internal/events"
)

type recordingScheduler struct {
	calls []string
}

func (r *recordingScheduler) Schedule(ctx context.Context, businessID, callID string) {
	r.calls = append(r.calls, businessID+"/"+callID)
}

func mustParse(t *testing.T, body string) events.Event {
	t.Helper()
	ev, err := events.Parse([]byte(body))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return ev
}

func newFixture(t *testing.T) (*Service, *callrequest.MemoryStore, *recordingScheduler, callrequest.CallRequest) {
	t.Helper()
	store := callrequest.NewMemoryStore()
	rec, err := store.Create(context.Background(), callrequest.CallRequest{BusinessID: "b1", CallID: "c1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	sched := &recordingScheduler{}
	svc := NewService(store, sched)
	svc.clock = func() time.Time { return time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC) }
	return svc, store, sched, rec
}

func TestHandle_UnknownCallIsNoop(t *testing.T) {
	svc, store, sched, _ := newFixture(t)
	bodies := []string{
		`{"type":"call-start","call":{"id":"other","metadata":{"businessId":"b1"}}}`,
		`{"type":"status-update","call":{"id":"other","status":"ended","metadata":{"businessId":"b1"}}}`,
		`{"type":"transcript","call":{"id":"other","metadata":{"businessId":"b1"}},"transcript":{"role":"user","text":"hi"}}`,
		`{"type":"call-end","call":{"id":"other","metadata":{"businessId":"b1"}}}`,
		`{"type":"call-end","call":{"id":"c1","metadata":{"businessId":"b2"}}}`,
		`{"type":"call-end","call":{"id":"c1"}}`,
	}
	for _, body := range bodies {
		out, err := svc.Handle(context.Background(), mustParse(t, body))
		if err != nil {
			t.Fatalf("expected nil, got %v", err)
		}
		if out.Matched || out.Applied {
			t.Fatalf("expected no-op for %s", body)
		}
	}
	for _, biz := range []string{"b1", "b2"} {
		list, _ := store.List(context.Background(), biz, callrequest.ListFilter{})
		want := 0
		if biz == "b1" {
			want = 1
		}
		if len(list) != want {
			t.Fatalf("business %s: expected %d records, got %d", biz, want, len(list))
		}
	}
	if len(sched.calls) != 0 {
		t.Fatalf("expected no reconciliation, got %v", sched.calls)
	}
}

func TestHandle_StatusConvergence(t *testing.T) {
	statusEnded := `{"type":"status-update","call":{"id":"c1","status":"ended","metadata":{"businessId":"b1"}}}`
	callEnd := `{"type":"call-end","call":{"id":"c1","endedReason":"hangup","duration":42,"metadata":{"businessId":"b1"}}}`

	for _, order := range [][]string{{statusEnded, callEnd}, {callEnd, statusEnded}} {
		svc, store, _, rec := newFixture(t)
		for _, body := range order {
			if _, err := svc.Handle(context.Background(), mustParse(t, body)); err != nil {
				t.Fatalf("handle: %v", err)
			}
		}
		got, _ := store.Get(context.Background(), "b1", rec.ID)
		if got.Status != callrequest.StatusCompleted || got.CallStatus != callrequest.CallStatusEnded {
			t.Fatalf("expected completed/ended, got %q/%q", got.Status, got.CallStatus)
		}
		if got.CompletedAt == nil || got.CallDuration != 42 || got.EndedReason != "hangup" {
			t.Fatalf("unexpected terminal fields: %+v", got)
		}
	}
}

func TestHandle_TerminalNeverRegresses(t *testing.T) {
	svc, store, _, rec := newFixture(t)
	ctx := context.Background()
	_, _ = svc.Handle(ctx, mustParse(t, `{"type":"status-update","call":{"id":"c1","status":"failed","endedReason":"customer-busy","metadata":{"businessId":"b1"}}}`))

	late := []string{
		`{"type":"call-start","call":{"id":"c1","metadata":{"businessId":"b1"}}}`,
		`{"type":"status-update","call":{"id":"c1","status":"ringing","metadata":{"businessId":"b1"}}}`,
		`{"type":"status-update","call":{"id":"c1","status":"ended","metadata":{"businessId":"b1"}}}`,
		`{"type":"call-end","call":{"id":"c1","endedReason":"customer-busy","metadata":{"businessId":"b1"}}}`,
	}
	for _, body := range late {
		_, _ = svc.Handle(ctx, mustParse(t, body))
	}
	got, _ := store.Get(ctx, "b1", rec.ID)
	if got.Status != callrequest.StatusFailed || got.FailureReason != "customer-busy" || got.FailedAt == nil {
		t.Fatalf("failed record changed: %+v", got)
	}
	if got.CompletedAt != nil {
		t.Fatalf("failed record must not get completedAt")
	}
}

func TestHandle_CallStartOnlyFromPending(t *testing.T) {
	svc, store, _, rec := newFixture(t)
	ctx := context.Background()
	_, _ = svc.Handle(ctx, mustParse(t, `{"type":"call-start","call":{"id":"c1","metadata":{"businessId":"b1"}}}`))
	first, _ := store.Get(ctx, "b1", rec.ID)
	if first.Status != callrequest.StatusInitiated || first.CallStartedAt == nil || first.CallStatus != callrequest.CallStatusInProgress {
		t.Fatalf("unexpected record: %+v", first)
	}

	svc.clock = func() time.Time { return time.Date(2024, 5, 1, 11, 0, 0, 0, time.UTC) }
	_, _ = svc.Handle(ctx, mustParse(t, `{"type":"call-start","call":{"id":"c1","metadata":{"businessId":"b1"}}}`))
	second, _ := store.Get(ctx, "b1", rec.ID)
	if !second.CallStartedAt.Equal(*first.CallStartedAt) {
		t.Fatalf("duplicate call-start must not move callStartedAt")
	}
	if second.LastWebhookAt == nil || !second.LastWebhookAt.After(*first.LastWebhookAt) {
		t.Fatalf("expected lastWebhookAt refresh")
	}
}

func TestHandle_TranscriptAndBooking(t *testing.T) {
	svc, store, _, rec := newFixture(t)
	ctx := context.Background()
	_, _ = svc.Handle(ctx, mustParse(t, `{"type":"transcript","call":{"id":"c1","metadata":{"businessId":"b1"}},"transcript":{"role":"assistant","text":"Hello"}}`))
	_, _ = svc.Handle(ctx, mustParse(t, `{"type":"transcript","call":{"id":"c1","metadata":{"businessId":"b1"}},"transcript":{"role":"user","text":"Hi"}}`))
	_, _ = svc.Handle(ctx, mustParse(t, `{"type":"function-call","call":{"id":"c1","metadata":{"businessId":"b1"}},"functionCall":{"name":"transfer_call","parameters":{"to":"x"}}}`))
	_, _ = svc.Handle(ctx, mustParse(t, `{"type":"function-call","call":{"id":"c1","metadata":{"businessId":"b1"}},"functionCall":{"name":"save_booking_info","parameters":{"customer_name":"Asha"}}}`))

	got, _ := store.Get(ctx, "b1", rec.ID)
	want := "[2024-05-01T10:00:00Z] assistant: Hello\n[2024-05-01T10:00:00Z] user: Hi"
	if got.Transcript != want {
		t.Fatalf("expected %q, got %q", want, got.Transcript)
	}
	if !got.BookingExtracted || got.BookingInfo["customer_name"] != "Asha" || len(got.BookingInfo) != 1 {
		t.Fatalf("unexpected booking: %+v", got.BookingInfo)
	}
}

func TestHandle_CallEndSchedulesReconcile(t *testing.T) {
	svc, store, sched, rec := newFixture(t)
	ctx := context.Background()

	out, err := svc.Handle(ctx, mustParse(t, `{"type":"call-start","call":{"id":"c1","metadata":{"businessId":"b1"}}}`))
	if err != nil || out.ReconcileScheduled {
		t.Fatalf("call-start must not schedule reconciliation: %v", err)
	}
	out, err = svc.Handle(ctx, mustParse(t, `{"type":"call-end","call":{"id":"c1","endedReason":"hangup","duration":61.5,"recordingUrl":"https://r/1.wav","metadata":{"businessId":"b1"}}}`))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !out.ReconcileScheduled || len(sched.calls) != 1 || sched.calls[0] != "b1/c1" {
		t.Fatalf("expected one reconciliation, got %v", sched.calls)
	}

	got, _ := store.Get(ctx, "b1", rec.ID)
	if got.Status != callrequest.StatusCompleted || got.CallDuration != 61.5 || got.RecordingURL != "https://r/1.wav" {
		t.Fatalf("unexpected record: %+v", got)
	}

	// Once processed, a duplicate call-end does not schedule again.
	now := time.Now()
	_, _ = store.Update(ctx, "b1", rec.ID, callrequest.Patch{MarkProcessed: &now})
	_, _ = svc.Handle(ctx, mustParse(t, `{"type":"call-end","call":{"id":"c1","metadata":{"businessId":"b1"}}}`))
	if len(sched.calls) != 1 {
		t.Fatalf("expected no further scheduling, got %v", sched.calls)
	}
}

func TestTransition_OtherSubStatus(t *testing.T) {
	p, ok := Transition(events.StatusUpdated{CallInfo: events.CallInfo{ID: "c1", Status: "forwarding"}}, time.Now())
	if !ok || p.Status == nil || p.Status.To != "" || p.Status.CallStatus != "forwarding" {
		t.Fatalf("unexpected patch: %+v", p)
	}
	if p.Status.Allowed(callrequest.StatusCompleted) {
		t.Fatalf("sub-status must not touch terminal records")
	}
	if _, ok := Transition(events.Unhandled{RawType: "speech-update"}, time.Now()); ok {
		t.Fatalf("unhandled events carry no patch")
	}
	if _, ok := Transition(events.TranscriptReceived{}, time.Now()); ok {
		t.Fatalf("empty transcript carries no patch")
	}
	if p, _ := Transition(events.CallEnded{}, time.Now()); p.CallDuration != nil || p.EndedReason != nil || !strings.EqualFold(p.Status.CallStatus, "ended") {
		t.Fatalf("unexpected call-end patch: %+v", p)
	}
}
