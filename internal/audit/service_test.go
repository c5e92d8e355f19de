package audit

import (
	"context"
	"encoding/json"
	"testing"
)

func TestService_AppendRequiresBusinessAndType(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	if err := svc.Append(context.Background(), Event{Type: EventTypeManualReconcile}); err == nil {
		t.Fatalf("expected error")
	}
	if err := svc.Append(context.Background(), Event{BusinessID: "b"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestService_AppendsImmutableEvents(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	if err := svc.LogManualReconcile(context.Background(), "b", "u", "owner", "1.2.3.4", "c1", "processed"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	evs := repo.Events("b", "")
	if len(evs) != 1 {
		t.Fatalf("expected 1 event")
	}
	if evs[0].IPAddress != "1.2.3.4" {
		t.Fatalf("expected ip captured")
	}
	if evs[0].Type != EventTypeManualReconcile || evs[0].ID == "" || evs[0].CreatedAt.IsZero() {
		t.Fatalf("unexpected event: %+v", evs[0])
	}
}

func TestService_LogReconcileGaveUpMetadata(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	if err := svc.LogReconcileGaveUp(context.Background(), "b", "c1", "r1", 5, "not ready"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	ev := repo.Events("b", "")[0]
	var meta map[string]any
	if err := json.Unmarshal([]byte(ev.Metadata), &meta); err != nil {
		t.Fatalf("metadata is not json: %v", err)
	}
	if meta["attempts"] != float64(5) || meta["error"] != "not ready" {
		t.Fatalf("unexpected metadata: %v", meta)
	}
}
