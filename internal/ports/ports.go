package ports

import (
	"context"
	"time"

	"NewsletterWorkflow/internal/domain"
)

// ArticleSource pulls candidate articles for the requested categories.
type ArticleSource interface {
	Fetch(ctx context.Context, categories []string) ([]domain.Article, error)
}

// InferenceClient turns a prompt into generated text. Implementations return
// domain.ErrEmptyCompletion when the provider answered without usable content.
type InferenceClient interface {
	Infer(ctx context.Context, messages []domain.Message) (string, error)
}

// Renderer converts generated markup into a sanitized HTML fragment.
type Renderer interface {
	Render(text string) string
}

// DeliveryClient attempts to send the newsletter. A permanent rejection wraps
// domain.ErrRecipientRejected; every other error is treated as transient.
type DeliveryClient interface {
	Send(ctx context.Context, email domain.Email) (domain.DeliveryReceipt, error)
}

// CheckpointStore durably records step outcomes keyed by (run id, step name).
type CheckpointStore interface {
	// Get returns the succeeded record for the key, if one was committed.
	Get(ctx context.Context, runID string, step domain.StepName) (domain.StepRecord, bool, error)
	// CommitIfAbsent stores a succeeded record unless one already exists.
	// It returns whether this call committed and the record now on file.
	CommitIfAbsent(ctx context.Context, record domain.StepRecord) (bool, domain.StepRecord, error)
	// RecordFailure stores a failed attempt; it never replaces a succeeded record.
	RecordFailure(ctx context.Context, record domain.StepRecord) error
	// ListSteps returns every record of the run in pipeline order.
	ListSteps(ctx context.Context, runID string) ([]domain.StepRecord, error)
}

// RunStore persists run metadata.
type RunStore interface {
	SaveRun(ctx context.Context, run domain.Run) error
	LoadRun(ctx context.Context, runID string) (domain.Run, bool, error)
}

// FailureNotifier alerts operators about runs that ended in failure.
type FailureNotifier interface {
	NotifyRunFailed(ctx context.Context, result domain.RunResult) error
}

// Scheduler controls when scheduled triggers fire.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
