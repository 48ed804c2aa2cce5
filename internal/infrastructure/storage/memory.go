package storage

import (
	"context"
	"sort"
	"sync"

	"NewsletterWorkflow/internal/domain"
	"NewsletterWorkflow/internal/ports"
)

type stepKey struct {
	runID string
	step  domain.StepName
}

// MemoryStore keeps checkpoints and runs in process memory. It honours the
// same commit-if-absent contract as SQLStore but does not survive restarts.
type MemoryStore struct {
	mu    sync.Mutex
	steps map[stepKey]domain.StepRecord
	runs  map[string]domain.Run
}

var (
	_ ports.CheckpointStore = (*MemoryStore)(nil)
	_ ports.RunStore        = (*MemoryStore)(nil)
)

// NewMemoryStore builds an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		steps: map[stepKey]domain.StepRecord{},
		runs:  map[string]domain.Run{},
	}
}

func (m *MemoryStore) Get(_ context.Context, runID string, step domain.StepName) (domain.StepRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.steps[stepKey{runID, step}]
	if !ok || !rec.Succeeded() {
		return domain.StepRecord{}, false, nil
	}
	return cloneRecord(rec), true, nil
}

func (m *MemoryStore) CommitIfAbsent(_ context.Context, record domain.StepRecord) (bool, domain.StepRecord, error) {
	if err := validateRecord(record, domain.StepSucceeded); err != nil {
		return false, domain.StepRecord{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := stepKey{record.RunID, record.Step}
	if cur, ok := m.steps[key]; ok && cur.Succeeded() {
		return false, cloneRecord(cur), nil
	}
	m.steps[key] = cloneRecord(record)
	return true, cloneRecord(record), nil
}

func (m *MemoryStore) RecordFailure(_ context.Context, record domain.StepRecord) error {
	if err := validateRecord(record, domain.StepFailed); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := stepKey{record.RunID, record.Step}
	if cur, ok := m.steps[key]; ok && cur.Succeeded() {
		return nil
	}
	m.steps[key] = cloneRecord(record)
	return nil
}

func (m *MemoryStore) ListSteps(_ context.Context, runID string) ([]domain.StepRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.StepRecord
	for key, rec := range m.steps {
		if key.runID == runID {
			out = append(out, cloneRecord(rec))
		}
	}
	sortSteps(out)
	return out, nil
}

func (m *MemoryStore) SaveRun(_ context.Context, run domain.Run) error {
	if run.ID == "" {
		return errEmptyRunID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	run.Steps = nil
	run.Categories = append([]string(nil), run.Categories...)
	if prev, ok := m.runs[run.ID]; ok {
		run.CreatedAt = prev.CreatedAt
	}
	m.runs[run.ID] = run
	return nil
}

func (m *MemoryStore) LoadRun(ctx context.Context, runID string) (domain.Run, bool, error) {
	m.mu.Lock()
	run, ok := m.runs[runID]
	m.mu.Unlock()
	if !ok {
		return domain.Run{}, false, nil
	}

	steps, err := m.ListSteps(ctx, runID)
	if err != nil {
		return domain.Run{}, false, err
	}
	run.Categories = append([]string(nil), run.Categories...)
	run.Steps = steps
	return run, true, nil
}

func cloneRecord(rec domain.StepRecord) domain.StepRecord {
	if rec.Output != nil {
		rec.Output = append([]byte(nil), rec.Output...)
	}
	return rec
}

func sortSteps(records []domain.StepRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Step.Ordinal() < records[j].Step.Ordinal()
	})
}
