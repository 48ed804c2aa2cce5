package usecase

import (
	"context"
	"log/slog"
	"sync"

	"NewsletterWorkflow/internal/domain"
	"NewsletterWorkflow/internal/ports"
)

// Dispatcher executes runs in background goroutines, one per run id.
// Submitting a run id that is already executing is a no-op.
type Dispatcher struct {
	ctx      context.Context
	service  *Service
	notifier ports.FailureNotifier
	logger   *slog.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
	wg       sync.WaitGroup

	// onDone is called after every finished run; used by tests.
	onDone func(domain.RunResult)
}

// NewDispatcher binds background executions to ctx; canceling it stops runs
// before their next step.
func NewDispatcher(ctx context.Context, service *Service, notifier ports.FailureNotifier, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		ctx:      ctx,
		service:  service,
		notifier: notifier,
		logger:   logger.With("component", "dispatcher"),
		inflight: make(map[string]struct{}),
	}
}

// Submit validates the event, creates its run and starts execution. It returns
// the run id without waiting for the result.
func (d *Dispatcher) Submit(event domain.TriggerEvent) (string, error) {
	run, err := d.service.Prepare(d.ctx, event)
	if err != nil {
		return "", err
	}

	d.mu.Lock()
	if _, busy := d.inflight[run.ID]; busy {
		d.mu.Unlock()
		d.logger.Info("run already in flight", "run_id", run.ID)
		return run.ID, nil
	}
	d.inflight[run.ID] = struct{}{}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		defer d.release(run.ID)

		result := d.service.Execute(d.ctx, run)
		if result.Status == domain.RunFailed {
			d.notify(result)
		}
		if d.onDone != nil {
			d.onDone(result)
		}
	}()

	return run.ID, nil
}

// InFlight reports whether runID is currently executing.
func (d *Dispatcher) InFlight(runID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.inflight[runID]
	return ok
}

// Wait blocks until every submitted run finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) release(runID string) {
	d.mu.Lock()
	delete(d.inflight, runID)
	d.mu.Unlock()
}

func (d *Dispatcher) notify(result domain.RunResult) {
	if d.notifier == nil {
		return
	}
	if err := d.notifier.NotifyRunFailed(context.WithoutCancel(d.ctx), result); err != nil {
		d.logger.Warn("failure notification not sent", "run_id", result.RunID, "error", err)
	}
}
