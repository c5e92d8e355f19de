package reconcile

import (
	"context"
	"errors"
	"sync"

	"call-pipeline/internal/callrequest"
	"call-pipeline/pkg/logger"
)

// AsyncRunner runs reconciliations on background goroutines so the webhook
// can be acknowledged immediately.
//
// A scheduled run outlives the request that scheduled it and keeps its
// logger. It is only cancelled by Shutdown once the drain deadline passes.
// Nothing is scheduled after Shutdown has started.
type AsyncRunner struct {
	rec *Reconciler

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func NewAsyncRunner(rec *Reconciler) *AsyncRunner {
	ctx, cancel := context.WithCancel(context.Background())
	return &AsyncRunner{rec: rec, ctx: ctx, cancel: cancel}
}

func (a *AsyncRunner) Schedule(ctx context.Context, businessID, callID string) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		logger.ForCall(logger.From(ctx), businessID, callID).Error("reconciliation not scheduled, runner is shut down")
		return
	}
	a.wg.Add(1)
	a.mu.Unlock()

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(a.ctx, cancel)

	go func() {
		defer a.wg.Done()
		defer stop()
		defer cancel()

		log := logger.ForCall(logger.From(runCtx), businessID, callID)
		defer func() {
			if p := recover(); p != nil {
				log.Error("reconciliation panicked", "panic", p)
			}
		}()

		res, err := a.rec.Reconcile(runCtx, businessID, callID)
		switch {
		case err == nil && res.AlreadyProcessed:
			log.Debug("reconciliation skipped, already processed")
		case err == nil:
		case errors.Is(err, ErrInProgress):
			log.Info("reconciliation already running elsewhere")
		case errors.Is(err, ErrStopped), errors.Is(err, context.Canceled):
			log.Warn("reconciliation abandoned at shutdown", "err", err)
		case errors.Is(err, callrequest.ErrNotFound):
			log.Info("reconciliation target disappeared")
		default:
			log.Error("reconciliation failed", "err", err)
		}
	}()
}

// Shutdown stops accepting work and waits for in-flight runs until ctx is
// done. It then stops the reconciler, which cancels whatever is left and
// waits for those runs to record their outcome.
func (a *AsyncRunner) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	a.cancel()
	<-done
	a.rec.Stop()
	return err
}

// InlineScheduler reconciles synchronously on the caller's goroutine.
// Used by tests and tools that want the outcome before returning.
type InlineScheduler struct {
	Reconciler *Reconciler
}

func (s InlineScheduler) Schedule(ctx context.Context, businessID, callID string) {
	if _, err := s.Reconciler.Reconcile(ctx, businessID, callID); err != nil {
		logger.ForCall(logger.From(ctx), businessID, callID).Warn("inline reconciliation failed", "err", err)
	}
}
