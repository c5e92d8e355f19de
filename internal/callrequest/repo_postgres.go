package callrequest

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"call-pipeline/pkg/utils"

	"github.com/google/uuid"
)

//go:embed schema.sql
var schemaSQL string

// EnsureSchema creates the call_requests table and indexes if missing.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, schemaSQL)
	return err
}

// PostgresStore persists call requests in the call_requests table.
//
// Updates lock the single row for the duration of a short transaction,
// apply the patch in Go (see Apply) and write it back. No lock is held
// across network calls to the provider.
type PostgresStore struct {
	db    *sql.DB
	clock func() time.Time
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, clock: time.Now}
}

const callRequestColumns = `
id, business_id, consumer_id, call_id, phone_number, status, call_status,
call_started_at, completed_at, failed_at, failure_reason,
call_duration, ended_reason, recording_url, transcript, call_summary,
booking_info, booking_extracted,
call_details_processed, call_details_processed_at, needs_manual_processing, call_details_error,
last_webhook_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCallRequest(row rowScanner) (CallRequest, error) {
	var (
		r                                             CallRequest
		status                                        string
		startedAt, completedAt, failedAt, processedAt sql.NullTime
		webhookAt                                     sql.NullTime
		booking                                       []byte
	)
	if err := row.Scan(
		&r.ID,
		&r.BusinessID,
		&r.ConsumerID,
		&r.CallID,
		&r.PhoneNumber,
		&status,
		&r.CallStatus,
		&startedAt,
		&completedAt,
		&failedAt,
		&r.FailureReason,
		&r.CallDuration,
		&r.EndedReason,
		&r.RecordingURL,
		&r.Transcript,
		&r.CallSummary,
		&booking,
		&r.BookingExtracted,
		&r.CallDetailsProcessed,
		&processedAt,
		&r.NeedsManualProcessing,
		&r.CallDetailsError,
		&webhookAt,
		&r.CreatedAt,
		&r.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CallRequest{}, ErrNotFound
		}
		return CallRequest{}, err
	}
	r.Status = Status(status)
	r.CallStartedAt = nullTime(startedAt)
	r.CompletedAt = nullTime(completedAt)
	r.FailedAt = nullTime(failedAt)
	r.CallDetailsProcessedAt = nullTime(processedAt)
	r.LastWebhookAt = nullTime(webhookAt)
	if len(booking) > 0 && string(booking) != "null" {
		if err := json.Unmarshal(booking, &r.BookingInfo); err != nil {
			return CallRequest{}, fmt.Errorf("decode booking_info: %w", err)
		}
	}
	return r, nil
}

func (s *PostgresStore) Create(ctx context.Context, r CallRequest) (CallRequest, error) {
	if err := validateNew(r); err != nil {
		return CallRequest{}, err
	}
	now := s.clock().UTC()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Status == "" {
		r.Status = StatusPending
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now

	booking, err := encodeBooking(r.BookingInfo)
	if err != nil {
		return CallRequest{}, err
	}

	q := `INSERT INTO call_requests (` + callRequestColumns + `) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25
)`
	_, err = s.db.ExecContext(ctx, q,
		r.ID,
		r.BusinessID,
		r.ConsumerID,
		r.CallID,
		r.PhoneNumber,
		string(r.Status),
		r.CallStatus,
		r.CallStartedAt,
		r.CompletedAt,
		r.FailedAt,
		r.FailureReason,
		r.CallDuration,
		r.EndedReason,
		r.RecordingURL,
		r.Transcript,
		r.CallSummary,
		booking,
		r.BookingExtracted,
		r.CallDetailsProcessed,
		r.CallDetailsProcessedAt,
		r.NeedsManualProcessing,
		r.CallDetailsError,
		r.LastWebhookAt,
		r.CreatedAt,
		r.UpdatedAt,
	)
	if err != nil {
		if utils.IsUniqueViolation(err) {
			return CallRequest{}, ErrDuplicate
		}
		return CallRequest{}, err
	}
	return r, nil
}

func (s *PostgresStore) Get(ctx context.Context, businessID, id string) (CallRequest, error) {
	q := `SELECT ` + callRequestColumns + `
FROM call_requests
WHERE business_id = $1 AND id = $2`
	return scanCallRequest(s.db.QueryRowContext(ctx, q, businessID, id))
}

func (s *PostgresStore) FindByCallID(ctx context.Context, businessID, callID string) (CallRequest, error) {
	if businessID == "" || callID == "" {
		return CallRequest{}, ErrInvalidArgument
	}
	q := `SELECT ` + callRequestColumns + `
FROM call_requests
WHERE business_id = $1 AND call_id = $2
LIMIT 1`
	return scanCallRequest(s.db.QueryRowContext(ctx, q, businessID, callID))
}

func (s *PostgresStore) Update(ctx context.Context, businessID, id string, p Patch) (CallRequest, error) {
	var out CallRequest
	var applyErr error

	err := utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		q := `SELECT ` + callRequestColumns + `
FROM call_requests
WHERE business_id = $1 AND id = $2
FOR UPDATE`
		r, err := scanCallRequest(tx.QueryRowContext(ctx, q, businessID, id))
		if err != nil {
			return err
		}
		if applyErr = Apply(&r, p, s.clock().UTC()); applyErr != nil {
			// Nothing to write; returning the error rolls back and releases the row.
			out = r
			return applyErr
		}
		if err := writeMutable(ctx, tx, r); err != nil {
			return err
		}
		out = r
		return nil
	})
	if applyErr != nil {
		return out, applyErr
	}
	if err != nil {
		return CallRequest{}, err
	}
	return out, nil
}

func writeMutable(ctx context.Context, tx *sql.Tx, r CallRequest) error {
	booking, err := encodeBooking(r.BookingInfo)
	if err != nil {
		return err
	}
	const q = `
UPDATE call_requests SET
  status = $3,
  call_status = $4,
  call_started_at = $5,
  completed_at = $6,
  failed_at = $7,
  failure_reason = $8,
  call_duration = $9,
  ended_reason = $10,
  recording_url = $11,
  transcript = $12,
  call_summary = $13,
  booking_info = $14,
  booking_extracted = $15,
  call_details_processed = $16,
  call_details_processed_at = $17,
  needs_manual_processing = $18,
  call_details_error = $19,
  last_webhook_at = $20,
  updated_at = $21
WHERE business_id = $1 AND id = $2
`
	_, err = tx.ExecContext(ctx, q,
		r.BusinessID,
		r.ID,
		string(r.Status),
		r.CallStatus,
		r.CallStartedAt,
		r.CompletedAt,
		r.FailedAt,
		r.FailureReason,
		r.CallDuration,
		r.EndedReason,
		r.RecordingURL,
		r.Transcript,
		r.CallSummary,
		booking,
		r.BookingExtracted,
		r.CallDetailsProcessed,
		r.CallDetailsProcessedAt,
		r.NeedsManualProcessing,
		r.CallDetailsError,
		r.LastWebhookAt,
		r.UpdatedAt,
	)
	return err
}

func (s *PostgresStore) List(ctx context.Context, businessID string, f ListFilter) ([]CallRequest, error) {
	if businessID == "" {
		return nil, ErrInvalidArgument
	}
	var b strings.Builder
	args := []any{businessID}
	b.WriteString(`SELECT ` + callRequestColumns + `
FROM call_requests
WHERE business_id = $1`)
	if !f.From.IsZero() {
		args = append(args, f.From)
		fmt.Fprintf(&b, " AND created_at >= $%d", len(args))
	}
	if !f.To.IsZero() {
		args = append(args, f.To)
		fmt.Fprintf(&b, " AND created_at < $%d", len(args))
	}
	if f.NeedsManualProcessing {
		b.WriteString(" AND needs_manual_processing")
	}
	b.WriteString(" ORDER BY created_at DESC")
	if f.Limit > 0 {
		args = append(args, f.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]CallRequest, 0)
	for rows.Next() {
		r, err := scanCallRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func encodeBooking(m map[string]any) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode booking_info: %w", err)
	}
	return b, nil
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}
