package callrequest

import (
	"context"
	"errors"
	"reflect"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreStore keeps call requests under users/{businessId}/requestCalls.
// The request-initiation flow creates those documents (userId, userPhone,
// requestedAt and fields of its own such as userName or scriptId), so
// updates write only the fields a Patch changed and leave the rest alone.
//
// Every mutation runs inside a Firestore transaction so the guarded parts
// of a Patch are checked against the committed document.
type FirestoreStore struct {
	client *firestore.Client
	clock  func() time.Time
}

func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client, clock: time.Now}
}

func (s *FirestoreStore) collection(businessID string) *firestore.CollectionRef {
	return s.client.Collection("users").Doc(businessID).Collection("requestCalls")
}

func (s *FirestoreStore) Create(ctx context.Context, r CallRequest) (CallRequest, error) {
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

	col := s.collection(r.BusinessID)
	ref := col.Doc(r.ID)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		existing, err := tx.Documents(col.Where("callId", "==", r.CallID).Limit(1)).GetAll()
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return ErrDuplicate
		}
		return tx.Create(ref, r)
	})
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return CallRequest{}, ErrDuplicate
		}
		return CallRequest{}, err
	}
	return r, nil
}

func (s *FirestoreStore) Get(ctx context.Context, businessID, id string) (CallRequest, error) {
	if businessID == "" || id == "" {
		return CallRequest{}, ErrInvalidArgument
	}
	snap, err := s.collection(businessID).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return CallRequest{}, ErrNotFound
		}
		return CallRequest{}, err
	}
	return decodeSnapshot(snap)
}

func (s *FirestoreStore) FindByCallID(ctx context.Context, businessID, callID string) (CallRequest, error) {
	if businessID == "" || callID == "" {
		return CallRequest{}, ErrInvalidArgument
	}
	it := s.collection(businessID).Where("callId", "==", callID).Limit(1).Documents(ctx)
	defer it.Stop()

	snap, err := it.Next()
	if errors.Is(err, iterator.Done) {
		return CallRequest{}, ErrNotFound
	}
	if err != nil {
		return CallRequest{}, err
	}
	return decodeSnapshot(snap)
}

func (s *FirestoreStore) Update(ctx context.Context, businessID, id string, p Patch) (CallRequest, error) {
	if businessID == "" || id == "" {
		return CallRequest{}, ErrInvalidArgument
	}
	ref := s.collection(businessID).Doc(id)

	var out CallRequest
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return ErrNotFound
			}
			return err
		}
		before, err := decodeSnapshot(snap)
		if err != nil {
			return err
		}
		r := cloneRecord(before)
		if err := Apply(&r, p, s.clock().UTC()); err != nil {
			out = r
			return err
		}
		out = r
		ups := changedFields(before, r)
		if len(ups) == 0 {
			return nil
		}
		return tx.Update(ref, ups)
	})
	if errors.Is(err, ErrAlreadyProcessed) {
		return out, err
	}
	if err != nil {
		return CallRequest{}, err
	}
	return out, nil
}

func (s *FirestoreStore) List(ctx context.Context, businessID string, f ListFilter) ([]CallRequest, error) {
	if businessID == "" {
		return nil, ErrInvalidArgument
	}
	q := s.collection(businessID).Query
	if !f.From.IsZero() {
		q = q.Where("requestedAt", ">=", f.From)
	}
	if !f.To.IsZero() {
		q = q.Where("requestedAt", "<", f.To)
	}
	if f.NeedsManualProcessing {
		q = q.Where("needsManualProcessing", "==", true)
	}
	q = q.OrderBy("requestedAt", firestore.Desc)
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	it := q.Documents(ctx)
	defer it.Stop()

	out := make([]CallRequest, 0)
	for {
		snap, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		r, err := decodeSnapshot(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func decodeSnapshot(snap *firestore.DocumentSnapshot) (CallRequest, error) {
	var r CallRequest
	if err := snap.DataTo(&r); err != nil {
		return CallRequest{}, err
	}
	r.ID = snap.Ref.ID
	return r, nil
}

// changedFields lists the document fields that differ between before and
// after, by their stored names.
func changedFields(before, after CallRequest) []firestore.Update {
	var ups []firestore.Update
	set := func(path string, changed bool, v any) {
		if changed {
			ups = append(ups, firestore.Update{Path: path, Value: v})
		}
	}

	set("status", before.Status != after.Status, string(after.Status))
	set("callStatus", before.CallStatus != after.CallStatus, after.CallStatus)
	set("callStartedAt", !sameTime(before.CallStartedAt, after.CallStartedAt), after.CallStartedAt)
	set("completedAt", !sameTime(before.CompletedAt, after.CompletedAt), after.CompletedAt)
	set("failedAt", !sameTime(before.FailedAt, after.FailedAt), after.FailedAt)
	set("failureReason", before.FailureReason != after.FailureReason, after.FailureReason)

	set("callDuration", before.CallDuration != after.CallDuration, after.CallDuration)
	set("endedReason", before.EndedReason != after.EndedReason, after.EndedReason)
	set("recordingUrl", before.RecordingURL != after.RecordingURL, after.RecordingURL)

	set("transcript", before.Transcript != after.Transcript, after.Transcript)
	set("callSummary", before.CallSummary != after.CallSummary, after.CallSummary)
	set("bookingInfo", !reflect.DeepEqual(before.BookingInfo, after.BookingInfo), after.BookingInfo)
	set("bookingExtracted", before.BookingExtracted != after.BookingExtracted, after.BookingExtracted)

	set("callDetailsProcessed", before.CallDetailsProcessed != after.CallDetailsProcessed, after.CallDetailsProcessed)
	set("callDetailsProcessedAt", !sameTime(before.CallDetailsProcessedAt, after.CallDetailsProcessedAt), after.CallDetailsProcessedAt)
	set("needsManualProcessing", before.NeedsManualProcessing != after.NeedsManualProcessing, after.NeedsManualProcessing)
	set("callDetailsError", before.CallDetailsError != after.CallDetailsError, after.CallDetailsError)

	set("lastWebhookAt", !sameTime(before.LastWebhookAt, after.LastWebhookAt), after.LastWebhookAt)
	set("updatedAt", !before.UpdatedAt.Equal(after.UpdatedAt), after.UpdatedAt)
	return ups
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
