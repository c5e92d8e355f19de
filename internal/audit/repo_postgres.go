package audit

import (
	"context"
	"database/sql"
)

// PostgresRepo appends events to audit_events.
//
// Expected schema:
//
//	CREATE TABLE audit_events (
//	  id              TEXT PRIMARY KEY,
//	  business_id     TEXT NOT NULL,
//	  type            TEXT NOT NULL,
//	  actor_user_id   TEXT NOT NULL DEFAULT '',
//	  actor_role      TEXT NOT NULL DEFAULT '',
//	  ip_address      TEXT NOT NULL DEFAULT '',
//	  call_id         TEXT NOT NULL DEFAULT '',
//	  call_request_id TEXT NOT NULL DEFAULT '',
//	  message         TEXT NOT NULL DEFAULT '',
//	  metadata        JSONB,
//	  created_at      TIMESTAMPTZ NOT NULL
//	);
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const schemaSQL = `
CREATE TABLE IF NOT EXISTS audit_events (
  id              TEXT PRIMARY KEY,
  business_id     TEXT NOT NULL,
  type            TEXT NOT NULL,
  actor_user_id   TEXT NOT NULL DEFAULT '',
  actor_role      TEXT NOT NULL DEFAULT '',
  ip_address      TEXT NOT NULL DEFAULT '',
  call_id         TEXT NOT NULL DEFAULT '',
  call_request_id TEXT NOT NULL DEFAULT '',
  message         TEXT NOT NULL DEFAULT '',
  metadata        JSONB,
  created_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS audit_events_business_created_idx ON audit_events (business_id, created_at DESC);
`

// EnsureSchema creates audit_events if missing.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, schemaSQL)
	return err
}

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	var metadata any
	if e.Metadata != "" {
		metadata = e.Metadata
	}
	const q = `
INSERT INTO audit_events (id, business_id, type, actor_user_id, actor_role, ip_address, call_id, call_request_id, message, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
`
	_, err := r.db.ExecContext(ctx, q,
		e.ID,
		e.BusinessID,
		string(e.Type),
		e.ActorUserID,
		e.ActorRole,
		e.IPAddress,
		e.CallID,
		e.CallRequestID,
		e.Message,
		metadata,
		e.CreatedAt,
	)
	return err
}
