package callrequest

import (
	"context"
	"errors"
)

var (
	ErrNotFound         = errors.New("callrequest: not found")
	ErrDuplicate        = errors.New("callrequest: call id already registered for business")
	ErrAlreadyProcessed = errors.New("callrequest: call details already processed")
	ErrInvalidArgument  = errors.New("callrequest: invalid argument")
)

// Store is the persistence contract for call requests.
//
// Rules:
// - Every method is scoped by businessID; implementations must never match
//   records across businesses.
// - Update applies a Patch atomically with the semantics of Apply.
// - There is no Delete; records are retained for dashboards and audit.
type Store interface {
	// Create is used by the request-initiation flow only.
	Create(ctx context.Context, r CallRequest) (CallRequest, error)
	Get(ctx context.Context, businessID, id string) (CallRequest, error)
	FindByCallID(ctx context.Context, businessID, callID string) (CallRequest, error)
	Update(ctx context.Context, businessID, id string, p Patch) (CallRequest, error)
	List(ctx context.Context, businessID string, f ListFilter) ([]CallRequest, error)
}

func validateNew(r CallRequest) error {
	if r.BusinessID == "" || r.CallID == "" {
		return ErrInvalidArgument
	}
	if r.Status != "" && !r.Status.Valid() {
		return ErrInvalidArgument
	}
	return nil
}
