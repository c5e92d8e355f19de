package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
// No Update/Delete methods are provided by design.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service logs internal audit information.
//
// IMPORTANT:
// - Audit is internal-only. Do not expose these records to consumers.
// - Callers should treat audit logging as best-effort.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s == nil || s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.BusinessID == "" {
		return ErrInvalidEvent
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	now := s.clock().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	return s.repo.Append(ctx, e)
}

// LogReconcileGaveUp records that a call needs manual processing.
func (s *Service) LogReconcileGaveUp(ctx context.Context, businessID, callID, callRequestID string, attempts int, lastErr string) error {
	return s.Append(ctx, Event{
		BusinessID:    businessID,
		Type:          EventTypeReconcileGaveUp,
		CallID:        callID,
		CallRequestID: callRequestID,
		Message:       "provider call details unavailable after retries",
		Metadata:      metadataJSON(map[string]any{"attempts": attempts, "error": lastErr}),
	})
}

// LogManualReconcile records a staff-triggered reconciliation and its outcome.
func (s *Service) LogManualReconcile(ctx context.Context, businessID, actorUserID, actorRole, ip, callID, outcome string) error {
	return s.Append(ctx, Event{
		BusinessID:  businessID,
		Type:        EventTypeManualReconcile,
		ActorUserID: actorUserID,
		ActorRole:   actorRole,
		IPAddress:   ip,
		CallID:      callID,
		Message:     outcome,
	})
}

// LogStatusFixup records a status change made by reconciliation.
func (s *Service) LogStatusFixup(ctx context.Context, businessID, callID, callRequestID, from, to string) error {
	return s.Append(ctx, Event{
		BusinessID:    businessID,
		Type:          EventTypeStatusFixup,
		CallID:        callID,
		CallRequestID: callRequestID,
		Message:       "status moved from provider record",
		Metadata:      metadataJSON(map[string]any{"from": from, "to": to}),
	})
}

func metadataJSON(m map[string]any) string {
	b, err := json.Marshal(m)
	if err != nil {
		return ""
	}
	return string(b)
}
