package usecase

import (
	"context"
	"encoding/json"
	"fmt"

	"NewsletterWorkflow/internal/domain"
)

// RunState accumulates step outputs for one run. Fields are only ever set
// from committed checkpoint payloads.
type RunState struct {
	Run      domain.Run
	Articles []domain.Article
	Summary  string
	HTML     string
	Receipt  domain.DeliveryReceipt
}

// Step is a named unit of work consumed generically by the Orchestrator.
// Kind and Class apply to errors the step function does not classify itself.
type Step struct {
	Name  domain.StepName
	Kind  error
	Class domain.ErrorClass

	run    func(ctx context.Context, state *RunState) ([]byte, error)
	replay func(state *RunState, output []byte) error
}

// NewStep builds a step whose typed output is JSON-encoded into its checkpoint
// and decoded back into the run state on replay.
func NewStep[T any](
	name domain.StepName,
	kind error,
	class domain.ErrorClass,
	fn func(ctx context.Context, state *RunState) (T, error),
	assign func(state *RunState, output T),
) Step {
	return Step{
		Name:  name,
		Kind:  kind,
		Class: class,
		run: func(ctx context.Context, state *RunState) ([]byte, error) {
			out, err := fn(ctx, state)
			if err != nil {
				return nil, err
			}
			payload, err := json.Marshal(out)
			if err != nil {
				return nil, domain.Fatal(kind, fmt.Errorf("encode %s output: %w", name, err))
			}
			return payload, nil
		},
		replay: func(state *RunState, output []byte) error {
			var out T
			if err := json.Unmarshal(output, &out); err != nil {
				return domain.Fatal(kind, fmt.Errorf("decode %s checkpoint: %w", name, err))
			}
			assign(state, out)
			return nil
		},
	}
}
