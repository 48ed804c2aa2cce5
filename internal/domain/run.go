package domain

import (
	"fmt"
	"time"
)

// RunStatus enumerates run lifecycle states.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// IsTerminal reports whether the status ends an execution.
func (s RunStatus) IsTerminal() bool {
	return s == RunCompleted || s == RunFailed
}

// CanTransition reports whether a run may move from s to next.
// A failed run may be resumed; a completed run never changes again.
func (s RunStatus) CanTransition(next RunStatus) bool {
	switch s {
	case RunPending:
		return next == RunRunning
	case RunRunning:
		return next == RunCompleted || next == RunFailed
	case RunFailed:
		return next == RunRunning
	default:
		return false
	}
}

// Run is one execution of the pipeline for one triggering event.
type Run struct {
	ID         string       `json:"id"`
	Categories []string     `json:"categories"`
	Recipient  string       `json:"email"`
	Status     RunStatus    `json:"status"`
	Steps      []StepRecord `json:"steps,omitempty"`
	Error      string       `json:"error,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// NewRun creates a pending run for a normalized trigger event.
func NewRun(id string, event TriggerEvent, now time.Time) Run {
	return Run{
		ID:         id,
		Categories: append([]string(nil), event.Categories...),
		Recipient:  event.Recipient,
		Status:     RunPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Event rebuilds the trigger payload the run was created from.
func (r Run) Event() TriggerEvent {
	return TriggerEvent{Categories: append([]string(nil), r.Categories...), Recipient: r.Recipient}
}

// Transition moves the run to next or reports why it cannot.
func (r *Run) Transition(next RunStatus, now time.Time) error {
	if r.Status == next {
		return nil
	}
	if !r.Status.CanTransition(next) {
		return fmt.Errorf("run %s: disallowed transition %s -> %s", r.ID, r.Status, next)
	}
	r.Status = next
	r.UpdatedAt = now
	return nil
}

// StepName identifies a pipeline step; together with the run id it forms the
// idempotency key.
type StepName string

const (
	StepFetch     StepName = "fetch"
	StepSummarize StepName = "summarize"
	StepRender    StepName = "render"
	StepDeliver   StepName = "deliver"
)

// PipelineOrder lists the steps in execution order.
var PipelineOrder = []StepName{StepFetch, StepSummarize, StepRender, StepDeliver}

// Ordinal is the position of the step in PipelineOrder, or -1.
func (s StepName) Ordinal() int {
	for i, name := range PipelineOrder {
		if name == s {
			return i
		}
	}
	return -1
}

// StepStatus is the recorded outcome of a step.
type StepStatus string

const (
	StepSucceeded StepStatus = "succeeded"
	StepFailed    StepStatus = "failed"
)

// StepRecord is the persisted outcome of a step for one run.
type StepRecord struct {
	RunID       string     `json:"run_id"`
	Step        StepName   `json:"step"`
	Status      StepStatus `json:"status"`
	Attempt     int        `json:"attempt"`
	Output      []byte     `json:"output,omitempty"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CommittedAt time.Time  `json:"committed_at"`
}

// Succeeded reports whether the record is a committed checkpoint.
func (r StepRecord) Succeeded() bool {
	return r.Status == StepSucceeded
}

// DeliveryReceipt is what the mail transport returns for an accepted send.
type DeliveryReceipt struct {
	MessageID  string    `json:"message_id"`
	Provider   string    `json:"provider"`
	AcceptedAt time.Time `json:"accepted_at"`
}

// Artifact is the final product of a completed run.
type Artifact struct {
	HTML    string          `json:"html"`
	Receipt DeliveryReceipt `json:"receipt"`
}

// RunResult is the single terminal outcome of an execution.
type RunResult struct {
	RunID    string
	Status   RunStatus
	Err      error
	Artifact *Artifact
	Steps    []StepRecord
}
