// Package reconcile fetches the provider's final call record after a call
// ends and stores the extracted transcript, summary and booking data.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/singleflight"

	"call-pipeline/internal/callrequest"
	"call-pipeline/internal/extract"
	"call-pipeline/internal/provider"
	"call-pipeline/internal/retry"
	"call-pipeline/pkg/logger"
)

var (
	ErrInProgress       = errors.New("reconcile: already in progress for this call")
	ErrRetriesExhausted = errors.New("reconcile: provider call details unavailable after retries")
	ErrStopped          = errors.New("reconcile: reconciler is shutting down")
)

// Claimer serializes reconciliation of one call across processes.
// Claim returns ErrInProgress when another holder owns the key.
type Claimer interface {
	Claim(ctx context.Context, key string) (release func(), err error)
}

// Auditor receives best-effort audit records.
type Auditor interface {
	LogReconcileGaveUp(ctx context.Context, businessID, callID, callRequestID string, attempts int, lastErr string) error
	LogStatusFixup(ctx context.Context, businessID, callID, callRequestID, from, to string) error
}

type Options struct {
	Policy  retry.Policy
	Claimer Claimer
	Auditor Auditor
	// NewTimer builds the timer for one run. Nil uses real time.
	NewTimer func() backoff.Timer
}

// Result is what a reconciliation produced or found already stored.
type Result struct {
	AlreadyProcessed bool
	Record           callrequest.CallRequest

	Summary     string
	Transcript  string
	BookingInfo map[string]any

	// Provider-side view, empty when AlreadyProcessed.
	ProviderStatus string
	EndedReason    string
	Duration       *float64
	Attempts       int
}

// Reconciler runs the fetch-with-retry and the conditional write.
//
// callDetailsProcessed is the only gate that matters for correctness: the
// final write is conditional on it in the store. The in-process
// singleflight and the optional Claimer only avoid paying for duplicate
// provider fetches.
//
// A run is shared by every caller asking for the same call and does not
// belong to any of them: a caller whose context ends stops waiting, the run
// carries on until it finishes or Stop is called.
type Reconciler struct {
	store    callrequest.Store
	fetcher  provider.CallFetcher
	policy   retry.Policy
	claimer  Claimer
	auditor  Auditor
	newTimer func() backoff.Timer
	clock    func() time.Time

	group singleflight.Group

	lifetime context.Context
	cancel   context.CancelFunc
	mu       sync.Mutex
	stopped  bool
	runs     sync.WaitGroup
}

func New(store callrequest.Store, fetcher provider.CallFetcher, opts Options) *Reconciler {
	policy := opts.Policy
	if policy.MaxAttempts <= 0 {
		policy = retry.DefaultPolicy()
	}
	lifetime, cancel := context.WithCancel(context.Background())
	return &Reconciler{
		store:    store,
		fetcher:  fetcher,
		policy:   policy,
		claimer:  opts.Claimer,
		auditor:  opts.Auditor,
		newTimer: opts.NewTimer,
		clock:    time.Now,
		lifetime: lifetime,
		cancel:   cancel,
	}
}

// Stop cancels in-flight runs and waits until each has recorded its outcome.
// Cancelled runs flag their record for manual processing. Later calls to
// Reconcile fail with ErrStopped.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()

	r.cancel()
	r.runs.Wait()
}

// Reconcile processes one call. It returns the stored data without touching
// the provider when the record is already processed.
func (r *Reconciler) Reconcile(ctx context.Context, businessID, callID string) (Result, error) {
	if businessID == "" || callID == "" {
		return Result{}, callrequest.ErrInvalidArgument
	}
	rec, err := r.store.FindByCallID(ctx, businessID, callID)
	if err != nil {
		return Result{}, err
	}
	if rec.CallDetailsProcessed {
		return stored(rec), nil
	}

	ch := r.group.DoChan(businessID+"/"+callID, func() (any, error) {
		return r.shared(ctx, rec)
	})
	select {
	case out := <-ch:
		res, _ := out.Val.(Result)
		return res, out.Err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// shared is the body of one singleflight run. It keeps ctx's values but not
// its cancellation; only Stop ends it early.
func (r *Reconciler) shared(ctx context.Context, rec callrequest.CallRequest) (res Result, err error) {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return Result{}, ErrStopped
	}
	r.runs.Add(1)
	r.mu.Unlock()
	defer r.runs.Done()

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()
	stop := context.AfterFunc(r.lifetime, cancel)
	defer stop()

	// DoChan re-panics on a goroutine nobody can recover.
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("reconcile: run panicked: %v", p)
		}
	}()
	return r.run(runCtx, rec)
}

func (r *Reconciler) run(ctx context.Context, rec callrequest.CallRequest) (Result, error) {
	log := logger.ForCall(logger.From(ctx), rec.BusinessID, rec.CallID)

	if r.claimer != nil {
		release, err := r.claimer.Claim(ctx, rec.BusinessID+"/"+rec.CallID)
		if err != nil {
			return Result{}, err
		}
		defer release()

		// Another replica may have finished between our read and the claim.
		fresh, err := r.store.Get(ctx, rec.BusinessID, rec.ID)
		if err != nil {
			return Result{}, err
		}
		if fresh.CallDetailsProcessed {
			return stored(fresh), nil
		}
		rec = fresh
	}

	var timer backoff.Timer
	if r.newTimer != nil {
		timer = r.newTimer()
	}

	var details provider.CallRecord
	attempts, err := retry.Do(ctx, r.policy, func(ctx context.Context, attempt int) error {
		got, err := r.fetcher.FetchCall(ctx, rec.CallID)
		if err != nil {
			if errors.Is(err, provider.ErrNotConfigured) {
				return retry.Permanent(err)
			}
			return err
		}
		details = got
		return nil
	}, retry.Options{
		Timer: timer,
		OnRetry: func(attempt int, err error, next time.Duration) {
			log.Info("call details fetch failed, retrying", "attempt", attempt, "max_attempts", r.policy.MaxAttempts, "next_in", next.String(), "err", err)
		},
	})
	if err != nil {
		return r.giveUp(ctx, rec, attempts, err)
	}

	log.Info("call details fetched", "attempts", attempts, "provider_status", details.Status)
	return r.persist(ctx, rec, details, attempts)
}

func (r *Reconciler) persist(ctx context.Context, rec callrequest.CallRequest, details provider.CallRecord, attempts int) (Result, error) {
	log := logger.ForCall(logger.From(ctx), rec.BusinessID, rec.CallID)
	now := r.clock().UTC()
	res := extract.Extract(details)

	p := callrequest.Patch{
		CallSummary:       &res.Summary,
		Transcript:        &res.Transcript,
		MarkProcessed:     &now,
		OnlyIfUnprocessed: true,
	}
	if res.BookingInfo != nil {
		p.Booking = &callrequest.BookingUpdate{Info: res.BookingInfo, Authoritative: res.BookingAuthoritative}
	}
	if details.RecordingURL != "" {
		p.RecordingURL = &details.RecordingURL
	}

	// The provider says the call is over but no terminal webhook made it here.
	fixup := details.Status == callrequest.CallStatusEnded && !rec.Status.Terminal()
	if fixup {
		p.Status = &callrequest.StatusChange{
			To:          callrequest.StatusCompleted,
			From:        []callrequest.Status{callrequest.StatusPending, callrequest.StatusInitiated},
			CallStatus:  callrequest.CallStatusEnded,
			CompletedAt: &now,
		}
		if details.Duration != nil && rec.CallDuration == 0 {
			p.CallDuration = details.Duration
		}
		if details.EndedReason != "" && rec.EndedReason == "" {
			p.EndedReason = &details.EndedReason
		}
	}

	// Writes must land even if the caller has gone away.
	writeCtx := context.WithoutCancel(ctx)
	updated, err := r.store.Update(writeCtx, rec.BusinessID, rec.ID, p)
	if errors.Is(err, callrequest.ErrAlreadyProcessed) {
		log.Info("call details already stored by a concurrent run")
		return stored(updated), nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("reconcile: store call details: %w", err)
	}

	if fixup && updated.Status != rec.Status && r.auditor != nil {
		if err := r.auditor.LogStatusFixup(writeCtx, rec.BusinessID, rec.CallID, rec.ID, string(rec.Status), string(updated.Status)); err != nil {
			log.Warn("audit status fixup failed", "err", err)
		}
	}

	log.Info("call details processed", "booking_extracted", updated.BookingExtracted)
	return Result{
		Record:         updated,
		Summary:        updated.CallSummary,
		Transcript:     updated.Transcript,
		BookingInfo:    updated.BookingInfo,
		ProviderStatus: details.Status,
		EndedReason:    details.EndedReason,
		Duration:       details.Duration,
		Attempts:       attempts,
	}, nil
}

func (r *Reconciler) giveUp(ctx context.Context, rec callrequest.CallRequest, attempts int, cause error) (Result, error) {
	log := logger.ForCall(logger.From(ctx), rec.BusinessID, rec.CallID)
	msg := cause.Error()
	writeCtx := context.WithoutCancel(ctx)

	updated, err := r.store.Update(writeCtx, rec.BusinessID, rec.ID, callrequest.Patch{
		NeedsManualProcessing: &msg,
		OnlyIfUnprocessed:     true,
	})
	if errors.Is(err, callrequest.ErrAlreadyProcessed) {
		return stored(updated), nil
	}
	if err != nil {
		log.Error("flag call for manual processing failed", "err", err)
	}

	if r.auditor != nil {
		if err := r.auditor.LogReconcileGaveUp(writeCtx, rec.BusinessID, rec.CallID, rec.ID, attempts, msg); err != nil {
			log.Warn("audit give-up failed", "err", err)
		}
	}

	log.Error("call details unavailable, flagged for manual processing", "attempts", attempts, "err", cause)
	return Result{Record: updated, Attempts: attempts}, fmt.Errorf("%w (%d attempts): %w", ErrRetriesExhausted, attempts, cause)
}

func stored(rec callrequest.CallRequest) Result {
	return Result{
		AlreadyProcessed: true,
		Record:           rec,
		Summary:          rec.CallSummary,
		Transcript:       rec.Transcript,
		BookingInfo:      rec.BookingInfo,
	}
}
