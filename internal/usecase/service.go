package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"NewsletterWorkflow/internal/domain"
	"NewsletterWorkflow/internal/ports"
)

// Service accepts trigger events and turns them into executed runs.
type Service struct {
	orchestrator *Orchestrator
	runs         ports.RunStore
	logger       *slog.Logger
	now          func() time.Time
}

// NewService constructs the trigger use case.
func NewService(orchestrator *Orchestrator, runs ports.RunStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		orchestrator: orchestrator,
		runs:         runs,
		logger:       logger.With("component", "service"),
		now:          time.Now,
	}
}

// Prepare validates the event and loads or creates its run. A redelivered
// event resolves to the run already on file.
func (s *Service) Prepare(ctx context.Context, event domain.TriggerEvent) (domain.Run, error) {
	event = event.Normalize()
	if err := event.Validate(); err != nil {
		return domain.Run{}, err
	}

	runID := event.RunID()
	run, found, err := s.runs.LoadRun(ctx, runID)
	if err != nil {
		return domain.Run{}, fmt.Errorf("load run %s: %w", runID, err)
	}
	if found {
		s.logger.Info("trigger resumes existing run", "run_id", runID, "status", run.Status)
		return run, nil
	}

	run = domain.NewRun(runID, event, s.now())
	if err := s.runs.SaveRun(ctx, run); err != nil {
		return domain.Run{}, fmt.Errorf("create run %s: %w", runID, err)
	}
	s.logger.Info("run created", "run_id", runID, "trigger_id", event.ID)
	return run, nil
}

// Trigger prepares and synchronously executes the run for event. The error is
// only set when the event is rejected before execution starts.
func (s *Service) Trigger(ctx context.Context, event domain.TriggerEvent) (domain.RunResult, error) {
	run, err := s.Prepare(ctx, event)
	if err != nil {
		return domain.RunResult{}, err
	}
	return s.orchestrator.Execute(ctx, run), nil
}

// Execute runs a prepared run.
func (s *Service) Execute(ctx context.Context, run domain.Run) domain.RunResult {
	return s.orchestrator.Execute(ctx, run)
}

// Status returns the stored run with its step records.
func (s *Service) Status(ctx context.Context, runID string) (domain.Run, bool, error) {
	return s.runs.LoadRun(ctx, runID)
}
