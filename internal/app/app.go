package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"NewsletterWorkflow/internal/config"
	"NewsletterWorkflow/internal/domain"
	"NewsletterWorkflow/internal/infrastructure/llm"
	"NewsletterWorkflow/internal/infrastructure/mail"
	"NewsletterWorkflow/internal/infrastructure/newsapi"
	"NewsletterWorkflow/internal/infrastructure/parser"
	"NewsletterWorkflow/internal/infrastructure/scheduler"
	"NewsletterWorkflow/internal/infrastructure/storage"
	"NewsletterWorkflow/internal/infrastructure/telegram"
	"NewsletterWorkflow/internal/logging"
	"NewsletterWorkflow/internal/ports"
	"NewsletterWorkflow/internal/render"
	"NewsletterWorkflow/internal/scanner"
	"NewsletterWorkflow/internal/usecase"
	"NewsletterWorkflow/internal/web"
)

const (
	providerNewsAPI  = "newsapi"
	providerScanners = "scanners"
)

type store interface {
	ports.CheckpointStore
	ports.RunStore
}

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg      config.Config
	logger   *slog.Logger
	store    store
	closer   func() error
	service  *usecase.Service
	notifier ports.FailureNotifier
}

// New builds the application graph. The caller must Close it.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}

	st, closer, err := openStore(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}

	source, err := newSource(cfg, httpClient, baseLogger)
	if err != nil {
		_ = closer()
		return nil, err
	}

	inference, err := llm.NewOpenAIClient(cfg.OpenAI, nil)
	if err != nil {
		_ = closer()
		return nil, fmt.Errorf("inference client: %w", err)
	}

	delivery, err := mail.NewClient(cfg.Mail, httpClient)
	if err != nil {
		_ = closer()
		return nil, fmt.Errorf("mail client: %w", err)
	}

	var notifier ports.FailureNotifier
	if tg := telegram.NewNotifier(cfg.Notifications.Telegram, nil); tg != nil {
		notifier = tg
	}

	orchestrator := usecase.NewOrchestrator(usecase.OrchestratorDeps{
		Steps: usecase.NewsletterSteps(usecase.PipelineDeps{
			Source:       source,
			Inference:    inference,
			Renderer:     render.NewMarkdown(baseLogger.With("component", "render")),
			Delivery:     delivery,
			SystemPrompt: cfg.OpenAI.SystemPrompt,
		}),
		Checkpoints: st,
		Runs:        st,
		Policy:      usecase.RetryPolicyFromConfig(cfg.Retry),
		Logger:      baseLogger,
	})

	return &Application{
		cfg:      cfg,
		logger:   baseLogger,
		store:    st,
		closer:   closer,
		service:  usecase.NewService(orchestrator, st, baseLogger),
		notifier: notifier,
	}, nil
}

// Trigger executes one run synchronously.
func (a *Application) Trigger(ctx context.Context, event domain.TriggerEvent) (domain.RunResult, error) {
	if a.service == nil {
		return domain.RunResult{}, errors.New("application opened read-only")
	}
	result, err := a.service.Trigger(ctx, event)
	if err != nil {
		return result, err
	}
	if result.Status == domain.RunFailed && a.notifier != nil {
		if nErr := a.notifier.NotifyRunFailed(context.WithoutCancel(ctx), result); nErr != nil {
			a.logger.Warn("failure notification not sent", "run_id", result.RunID, "error", nErr)
		}
	}
	return result, nil
}

// Inspect opens only the store, for read-only commands that need no
// provider credentials.
func Inspect(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}
	st, closer, err := openStore(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	return &Application{cfg: cfg, logger: baseLogger, store: st, closer: closer}, nil
}

// Status loads a stored run with its step records.
func (a *Application) Status(ctx context.Context, runID string) (domain.Run, bool, error) {
	return a.store.LoadRun(ctx, runID)
}

// Serve runs the HTTP API and the scheduler until ctx is canceled, then waits
// for in-flight runs to stop at their next step boundary.
func (a *Application) Serve(ctx context.Context) error {
	if a.service == nil {
		return errors.New("application opened read-only")
	}
	dispatcher := usecase.NewDispatcher(ctx, a.service, a.notifier, a.logger)
	sched := usecase.NewScheduler(
		scheduler.NewIntervalScheduler(a.cfg.Scheduler.Interval),
		dispatcher,
		a.cfg.Scheduler,
		a.logger,
	)
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	server := web.NewServer(dispatcher, a.service, a.logger)
	serveErr := server.Run(ctx, a.cfg.Server.Addr)

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := sched.Stop(stopCtx); err != nil {
		a.logger.Warn("stop scheduler", "error", err)
	}
	dispatcher.Wait()

	return serveErr
}

// Close releases the store.
func (a *Application) Close() error {
	if a.closer == nil {
		return nil
	}
	return a.closer()
}

func openStore(ctx context.Context, cfg config.DatabaseConfig) (store, func() error, error) {
	if strings.EqualFold(strings.TrimSpace(cfg.Driver), "memory") {
		return storage.NewMemoryStore(), func() error { return nil }, nil
	}
	sqlStore, err := storage.Open(ctx, cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	return sqlStore, sqlStore.Close, nil
}

func newSource(cfg config.Config, httpClient *http.Client, logger *slog.Logger) (ports.ArticleSource, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Source.Provider)) {
	case "", providerNewsAPI:
		if cfg.Source.NewsAPI.APIKey == "" {
			return nil, errors.New("newsapi source requires an api key")
		}
		return newsapi.NewClient(cfg.Source.NewsAPI, cfg.Source.Lookback, httpClient, logger.With("component", "source.newsapi")), nil
	case providerScanners:
		registry := scanner.NewRegistry(parser.NewArxivScanner(nil, logger.With("component", "scanner.arxiv")))
		return parser.NewStrategySource(registry, cfg.Sites, cfg.Source.Lookback, logger.With("component", "source")), nil
	default:
		return nil, fmt.Errorf("unknown article source provider %q", cfg.Source.Provider)
	}
}
