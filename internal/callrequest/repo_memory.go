package callrequest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store for tests and local development.
// It enforces business isolation on every read and write.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]CallRequest // key: id

	clock func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: map[string]CallRequest{}, clock: time.Now}
}

func (s *MemoryStore) Create(ctx context.Context, r CallRequest) (CallRequest, error) {
	if err := validateNew(r); err != nil {
		return CallRequest{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.records {
		if existing.BusinessID == r.BusinessID && existing.CallID == r.CallID {
			return CallRequest{}, ErrDuplicate
		}
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
	s.records[r.ID] = cloneRecord(r)
	return cloneRecord(r), nil
}

func (s *MemoryStore) Get(ctx context.Context, businessID, id string) (CallRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok || r.BusinessID != businessID {
		return CallRequest{}, ErrNotFound
	}
	return cloneRecord(r), nil
}

func (s *MemoryStore) FindByCallID(ctx context.Context, businessID, callID string) (CallRequest, error) {
	if businessID == "" || callID == "" {
		return CallRequest{}, ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.BusinessID == businessID && r.CallID == callID {
			return cloneRecord(r), nil
		}
	}
	return CallRequest{}, ErrNotFound
}

func (s *MemoryStore) Update(ctx context.Context, businessID, id string, p Patch) (CallRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok || r.BusinessID != businessID {
		return CallRequest{}, ErrNotFound
	}
	if err := Apply(&r, p, s.clock().UTC()); err != nil {
		return cloneRecord(r), err
	}
	s.records[id] = r
	return cloneRecord(r), nil
}

func (s *MemoryStore) List(ctx context.Context, businessID string, f ListFilter) ([]CallRequest, error) {
	if businessID == "" {
		return nil, ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]CallRequest, 0)
	for _, r := range s.records {
		if r.BusinessID != businessID || !f.match(r) {
			continue
		}
		out = append(out, cloneRecord(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}
