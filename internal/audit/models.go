package audit

import "time"

// Event is an immutable, append-only audit log record.
//
// Invariants:
// - Events are never updated or deleted.
// - business_id is required for tenancy isolation.
// - actor and ip capture are best-effort; do not block call processing on audit failures.
//
// Storage (Postgres): table audit_events, INSERT-only (see repo_postgres.go).
type Event struct {
	ID         string `json:"id" db:"id"`
	BusinessID string `json:"business_id" db:"business_id"`

	Type EventType `json:"type" db:"type"`

	// ActorUserID is empty for events raised by the pipeline itself.
	ActorUserID string `json:"actor_user_id,omitempty" db:"actor_user_id"`
	ActorRole   string `json:"actor_role,omitempty" db:"actor_role"`
	IPAddress   string `json:"ip_address,omitempty" db:"ip_address"`

	// CallID is the provider call id; CallRequestID the local record id.
	CallID        string `json:"call_id,omitempty" db:"call_id"`
	CallRequestID string `json:"call_request_id,omitempty" db:"call_request_id"`

	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	// EventTypeReconcileGaveUp marks a record handed to staff after the
	// provider fetch budget was spent.
	EventTypeReconcileGaveUp EventType = "reconcile_gave_up"
	// EventTypeManualReconcile is a staff-triggered reconciliation.
	EventTypeManualReconcile EventType = "manual_reconcile"
	// EventTypeStatusFixup records a status moved by reconciliation because
	// the terminal webhook never arrived.
	EventTypeStatusFixup EventType = "status_fixup"
)
