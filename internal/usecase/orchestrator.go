package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"NewsletterWorkflow/internal/domain"
	"NewsletterWorkflow/internal/ports"
)

// Orchestrator executes an ordered list of steps for one run, replaying
// committed checkpoints and retrying transient failures.
type Orchestrator struct {
	steps       []Step
	checkpoints ports.CheckpointStore
	runs        ports.RunStore
	policy      RetryPolicy
	logger      *slog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	rand  func() float64
}

// OrchestratorDeps wires the orchestrator collaborators.
type OrchestratorDeps struct {
	Steps       []Step
	Checkpoints ports.CheckpointStore
	Runs        ports.RunStore
	Policy      RetryPolicy
	Logger      *slog.Logger
}

// NewOrchestrator constructs the step orchestrator.
func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		steps:       deps.Steps,
		checkpoints: deps.Checkpoints,
		runs:        deps.Runs,
		policy:      deps.Policy.normalized(),
		logger:      logger.With("component", "orchestrator"),
		now:         time.Now,
		sleep:       sleepContext,
		rand:        defaultRand,
	}
}

// Execute runs every step of the run in order and returns its terminal result.
// A step is only started after every earlier step has a committed checkpoint.
func (o *Orchestrator) Execute(ctx context.Context, run domain.Run) domain.RunResult {
	logger := o.logger.With("run_id", run.ID)
	persistCtx := context.WithoutCancel(ctx)

	if run.Status != domain.RunCompleted {
		if err := run.Transition(domain.RunRunning, o.now()); err != nil {
			return o.finish(persistCtx, logger, run, nil, domain.Fatal(domain.ErrRunState, err))
		}
		if err := o.saveRun(persistCtx, run); err != nil {
			logger.Warn("persist running status", "error", err)
		}
	}
	logger.Info("run started", "status", run.Status, "categories", run.Categories)

	state := &RunState{Run: run}
	var failure error
	for _, step := range o.steps {
		if err := ctx.Err(); err != nil {
			failure = domain.Fatal(domain.ErrRunCanceled, fmt.Errorf("before %s: %w", step.Name, err))
			break
		}
		if err := o.runStep(ctx, step, state); err != nil {
			failure = err
			break
		}
	}

	return o.finish(persistCtx, logger, run, state, failure)
}

func (o *Orchestrator) finish(ctx context.Context, logger *slog.Logger, run domain.Run, state *RunState, failure error) domain.RunResult {
	result := domain.RunResult{RunID: run.ID, Err: failure}

	next := domain.RunCompleted
	if failure != nil {
		next = domain.RunFailed
	}
	// A completed run that fails on replay keeps its stored record; only the
	// returned result reports the failure.
	updated := run
	if err := updated.Transition(next, o.now()); err != nil {
		logger.Warn("stored run left unchanged", "status", run.Status, "error", err)
	} else {
		updated.Error = ""
		if failure != nil {
			updated.Error = failure.Error()
		}
		if err := o.saveRun(ctx, updated); err != nil {
			logger.Warn("persist terminal status", "error", err)
		}
	}
	result.Status = next

	if o.checkpoints != nil {
		steps, err := o.checkpoints.ListSteps(ctx, run.ID)
		if err != nil {
			logger.Warn("list step records", "error", err)
		}
		result.Steps = steps
	}

	if failure == nil && state != nil {
		result.Artifact = &domain.Artifact{HTML: state.HTML, Receipt: state.Receipt}
		logger.Info("run completed", "message_id", state.Receipt.MessageID)
	} else {
		logger.Error("run failed", "error", failure)
	}
	return result
}

func (o *Orchestrator) saveRun(ctx context.Context, run domain.Run) error {
	if o.runs == nil {
		return nil
	}
	return o.runs.SaveRun(ctx, run)
}

// runStep replays the step from its checkpoint or executes it under the retry
// policy. On success the committed output is decoded into state.
func (o *Orchestrator) runStep(ctx context.Context, step Step, state *RunState) error {
	runID := state.Run.ID
	logger := o.logger.With("run_id", runID, "step", step.Name)
	persistCtx := context.WithoutCancel(ctx)

	existing, found, err := o.checkpoints.Get(ctx, runID, step.Name)
	if err != nil {
		return domain.Fatal(step.Kind, fmt.Errorf("load checkpoint: %w", err))
	}
	if found {
		logger.Debug("step replayed from checkpoint", "attempt", existing.Attempt)
		return step.replay(state, existing.Output)
	}

	// Run cancellation does not reach a step already in flight; it is
	// observed between attempts and at the next step boundary.
	stepCtx := persistCtx
	if o.policy.StepTimeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(persistCtx, o.policy.StepTimeout)
		defer cancel()
	}
	waitCtx, cancelWait := context.WithCancel(stepCtx)
	defer cancelWait()
	stopWait := context.AfterFunc(ctx, cancelWait)
	defer stopWait()

	started := o.now()
	var (
		lastErr error
		attempt int
	)
	for attempt = 1; attempt <= o.policy.MaxAttempts; attempt++ {
		output, runErr := step.run(stepCtx, state)
		if runErr == nil {
			record := domain.StepRecord{
				RunID:       runID,
				Step:        step.Name,
				Status:      domain.StepSucceeded,
				Attempt:     attempt,
				Output:      output,
				StartedAt:   started,
				CommittedAt: o.now(),
			}
			committed, current, err := o.checkpoints.CommitIfAbsent(persistCtx, record)
			if err != nil {
				return domain.Fatal(step.Kind, fmt.Errorf("commit checkpoint: %w", err))
			}
			if committed {
				logger.Info("step committed", "attempt", attempt)
			} else {
				logger.Info("step already committed by a concurrent execution, using stored output")
			}
			return step.replay(state, current.Output)
		}

		class, classified := o.classify(ctx, stepCtx, step, runErr)
		lastErr = classified
		if class == domain.ClassFatal || attempt == o.policy.MaxAttempts {
			logger.Warn("step attempt failed", "attempt", attempt, "class", class, "error", runErr)
			break
		}

		delay := o.policy.Backoff(attempt, o.rand)
		logger.Warn("step attempt failed, retrying", "attempt", attempt, "backoff", delay, "error", runErr)
		if err := o.sleep(waitCtx, delay); err != nil {
			_, lastErr = o.classify(ctx, stepCtx, step, fmt.Errorf("waiting to retry: %w", err))
			break
		}
	}

	failure := domain.StepRecord{
		RunID:       runID,
		Step:        step.Name,
		Status:      domain.StepFailed,
		Attempt:     attempt,
		Error:       lastErr.Error(),
		StartedAt:   started,
		CommittedAt: o.now(),
	}
	if err := o.checkpoints.RecordFailure(persistCtx, failure); err != nil {
		logger.Error("record step failure", "error", err)
	}
	logger.Error("step failed", "attempts", attempt, "error", lastErr)
	return lastErr
}

// classify decides whether err may be retried. Cancellation of the run and
// exhaustion of the step timeout are fatal; an explicit class on the error
// wins over the step default.
func (o *Orchestrator) classify(parent, stepCtx context.Context, step Step, err error) (domain.ErrorClass, error) {
	if parent.Err() != nil {
		return domain.ClassFatal, domain.Fatal(domain.ErrRunCanceled, err)
	}
	if errors.Is(stepCtx.Err(), context.DeadlineExceeded) {
		return domain.ClassFatal, domain.Fatal(step.Kind, fmt.Errorf("step exceeded %s: %w", o.policy.StepTimeout, err))
	}
	if class, ok := domain.ClassOf(err); ok {
		return class, err
	}
	return step.Class, &domain.StepError{Kind: step.Kind, Class: step.Class, Err: err}
}
