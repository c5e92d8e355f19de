package audit

import (
	"context"
	"sync"
)

// MemoryRepo keeps audit events in process. It backs STORE_BACKEND=memory
// and tests; events are lost on restart.
type MemoryRepo struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) Append(ctx context.Context, e Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// Events returns a business's events of the given type in append order.
// An empty typ matches every type.
func (r *MemoryRepo) Events(businessID string, typ EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.BusinessID != businessID || (typ != "" && e.Type != typ) {
			continue
		}
		out = append(out, e)
	}
	return out
}
