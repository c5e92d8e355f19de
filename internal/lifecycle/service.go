package lifecycle

import (
	"context"
	"errors"
	"time"

	"call-pipeline/internal/callrequest"
	"call-pipeline/internal/events"
	"call-pipeline/pkg/logger"
)

// Scheduler starts reconciliation for a finished call. Implementations
// must not block on the reconciliation itself.
type Scheduler interface {
	Schedule(ctx context.Context, businessID, callID string)
}

// Outcome describes what Handle did with one event.
type Outcome struct {
	// Matched is false when the event could not be tied to a stored record.
	Matched bool
	Applied bool

	Record             callrequest.CallRequest
	ReconcileScheduled bool
}

// Service routes decoded webhook events to the store.
//
// It never creates records; events for unknown calls are logged no-ops.
type Service struct {
	store     callrequest.Store
	scheduler Scheduler
	clock     func() time.Time
}

func NewService(store callrequest.Store, scheduler Scheduler) *Service {
	return &Service{store: store, scheduler: scheduler, clock: time.Now}
}

func (s *Service) Handle(ctx context.Context, ev events.Event) (Outcome, error) {
	if s == nil || s.store == nil {
		return Outcome{}, errors.New("lifecycle: service is not configured")
	}
	call := ev.Call()
	log := logger.ForCall(logger.From(ctx), call.BusinessID, call.ID).With("event_type", ev.Type())

	if _, unhandled := ev.(events.Unhandled); unhandled {
		log.Info("unhandled webhook type")
		return Outcome{}, nil
	}
	if call.BusinessID == "" {
		log.Warn("webhook without business scope ignored")
		return Outcome{}, nil
	}

	patch, ok := Transition(ev, s.clock())
	if !ok {
		if fc, isFn := ev.(events.FunctionCalled); isFn {
			log.Info("function call ignored", "function", fc.Name)
		} else {
			log.Debug("webhook carries nothing to store")
		}
		return Outcome{}, nil
	}

	rec, err := s.store.FindByCallID(ctx, call.BusinessID, call.ID)
	if errors.Is(err, callrequest.ErrNotFound) {
		log.Info("no call request for webhook")
		return Outcome{}, nil
	}
	if err != nil {
		return Outcome{}, err
	}

	updated, err := s.store.Update(ctx, call.BusinessID, rec.ID, patch)
	if err != nil {
		return Outcome{Matched: true, Record: rec}, err
	}
	out := Outcome{Matched: true, Applied: true, Record: updated}
	log.Info("webhook applied", "status", updated.Status, "call_status", updated.CallStatus)

	if _, ended := ev.(events.CallEnded); ended && s.scheduler != nil && !updated.CallDetailsProcessed {
		s.scheduler.Schedule(ctx, call.BusinessID, call.ID)
		out.ReconcileScheduled = true
	}
	return out, nil
}
