package storage

import (
	"errors"
	"fmt"

	"NewsletterWorkflow/internal/domain"
)

var errEmptyRunID = errors.New("run id is required")

func validateRecord(record domain.StepRecord, want domain.StepStatus) error {
	if record.RunID == "" {
		return errEmptyRunID
	}
	if record.Step.Ordinal() < 0 {
		return fmt.Errorf("unknown step %q", record.Step)
	}
	if record.Status != want {
		return fmt.Errorf("step %s: expected status %s, got %s", record.Step, want, record.Status)
	}
	return nil
}
