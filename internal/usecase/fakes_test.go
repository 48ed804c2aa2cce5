package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"NewsletterWorkflow/internal/domain"
	"NewsletterWorkflow/internal/infrastructure/storage"
	"NewsletterWorkflow/internal/logging"
)

var testTime = time.Date(2026, time.October, 19, 6, 0, 0, 0, time.UTC)

type fakeSource struct {
	mu       sync.Mutex
	calls    int
	articles []domain.Article
	errs     []error
	block    func(ctx context.Context) error
}

func (f *fakeSource) Fetch(ctx context.Context, categories []string) ([]domain.Article, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()

	if f.block != nil {
		if err := f.block(ctx); err != nil {
			return nil, err
		}
	}
	if call <= len(f.errs) && f.errs[call-1] != nil {
		return nil, f.errs[call-1]
	}
	return f.articles, nil
}

func (f *fakeSource) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeInference struct {
	mu       sync.Mutex
	calls    int
	text     string
	err      error
	messages []domain.Message
}

func (f *fakeInference) Infer(_ context.Context, messages []domain.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.messages = messages
	return f.text, f.err
}

func (f *fakeInference) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type paragraphRenderer struct{}

func (paragraphRenderer) Render(text string) string {
	if text == "" {
		return ""
	}
	return "<p>" + text + "</p>"
}

type fakeDelivery struct {
	mu    sync.Mutex
	calls int
	sent  []domain.Email
	err   error
}

func (f *fakeDelivery) Send(_ context.Context, email domain.Email) (domain.DeliveryReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return domain.DeliveryReceipt{}, f.err
	}
	f.sent = append(f.sent, email)
	return domain.DeliveryReceipt{
		MessageID:  fmt.Sprintf("msg-%d", f.calls),
		Provider:   "fake",
		AcceptedAt: testTime,
	}, nil
}

func (f *fakeDelivery) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeNotifier struct {
	mu      sync.Mutex
	results []domain.RunResult
}

func (f *fakeNotifier) NotifyRunFailed(_ context.Context, result domain.RunResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, result)
	return nil
}

func (f *fakeNotifier) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.results)
}

type harness struct {
	store     *storage.MemoryStore
	source    *fakeSource
	inference *fakeInference
	delivery  *fakeDelivery
	sleeps    []time.Duration
	orch      *Orchestrator
}

func threeArticles() []domain.Article {
	return []domain.Article{
		{ID: "a1", Title: "Chips", Description: "New chip launched", URL: "https://example.com/1", PublishedAt: testTime},
		{ID: "a2", Title: "Models", Description: "Model released", URL: "https://example.com/2", PublishedAt: testTime},
		{ID: "a3", Title: "Robots", Description: "Robot walks", URL: "https://example.com/3", PublishedAt: testTime},
	}
}

func newHarness(policy RetryPolicy) *harness {
	h := &harness{
		store:     storage.NewMemoryStore(),
		source:    &fakeSource{articles: threeArticles()},
		inference: &fakeInference{text: "# Weekly\n\nThree stories."},
		delivery:  &fakeDelivery{},
	}
	h.orch = NewOrchestrator(OrchestratorDeps{
		Steps: NewsletterSteps(PipelineDeps{
			Source:    h.source,
			Inference: h.inference,
			Renderer:  paragraphRenderer{},
			Delivery:  h.delivery,
		}),
		Checkpoints: h.store,
		Runs:        h.store,
		Policy:      policy,
		Logger:      logging.Discard(),
	})
	h.orch.now = func() time.Time { return testTime }
	h.orch.rand = func() float64 { return 0 }
	h.orch.sleep = func(ctx context.Context, d time.Duration) error {
		h.sleeps = append(h.sleeps, d)
		return ctx.Err()
	}
	return h
}

func defaultPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Second, MaxBackoff: 10 * time.Second, Multiplier: 2}
}

func newTestRun(id string, categories ...string) domain.Run {
	return domain.NewRun(id, domain.TriggerEvent{Categories: categories, Recipient: "reader@example.com"}, testTime)
}

var errUnavailable = errors.New("service unavailable")
