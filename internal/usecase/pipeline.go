package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"NewsletterWorkflow/internal/domain"
	"NewsletterWorkflow/internal/ports"
)

// PipelineDeps wires all driven adapters into the newsletter steps.
type PipelineDeps struct {
	Source       ports.ArticleSource
	Inference    ports.InferenceClient
	Renderer     ports.Renderer
	Delivery     ports.DeliveryClient
	SystemPrompt string
}

// NewsletterSteps returns fetch, summarize, render and deliver in order.
func NewsletterSteps(deps PipelineDeps) []Step {
	return []Step{
		NewStep(domain.StepFetch, domain.ErrFetch, domain.ClassTransient,
			func(ctx context.Context, state *RunState) ([]domain.Article, error) {
				return fetchArticles(ctx, deps.Source, state.Run.Categories)
			},
			func(state *RunState, articles []domain.Article) { state.Articles = articles },
		),
		NewStep(domain.StepSummarize, domain.ErrContentGeneration, domain.ClassTransient,
			func(ctx context.Context, state *RunState) (string, error) {
				return summarize(ctx, deps.Inference, deps.SystemPrompt, state.Run.Categories, state.Articles)
			},
			func(state *RunState, summary string) { state.Summary = summary },
		),
		NewStep(domain.StepRender, domain.ErrRender, domain.ClassFatal,
			func(_ context.Context, state *RunState) (string, error) {
				return render(deps.Renderer, state.Summary)
			},
			func(state *RunState, html string) { state.HTML = html },
		),
		NewStep(domain.StepDeliver, domain.ErrDelivery, domain.ClassTransient,
			func(ctx context.Context, state *RunState) (domain.DeliveryReceipt, error) {
				return deliver(ctx, deps.Delivery, state)
			},
			func(state *RunState, receipt domain.DeliveryReceipt) { state.Receipt = receipt },
		),
	}
}

func fetchArticles(ctx context.Context, source ports.ArticleSource, categories []string) ([]domain.Article, error) {
	if source == nil {
		return nil, domain.Fatal(domain.ErrFetch, errors.New("article source is not configured"))
	}
	articles, err := source.Fetch(ctx, categories)
	if err != nil {
		return nil, err
	}
	if articles == nil {
		articles = []domain.Article{}
	}
	return articles, nil
}

// summarize calls the inference client once. An empty article list is a valid
// input; an empty answer is not.
func summarize(ctx context.Context, client ports.InferenceClient, systemPrompt string, categories []string, articles []domain.Article) (string, error) {
	if client == nil {
		return "", domain.Fatal(domain.ErrContentGeneration, errors.New("inference client is not configured"))
	}
	text, err := client.Infer(ctx, BuildSummaryPrompt(systemPrompt, categories, articles))
	if errors.Is(err, domain.ErrEmptyCompletion) {
		return "", domain.Fatal(domain.ErrContentGeneration, err)
	}
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", domain.Fatal(domain.ErrContentGeneration, domain.ErrEmptyCompletion)
	}
	return text, nil
}

func render(renderer ports.Renderer, summary string) (string, error) {
	if renderer == nil {
		return "", domain.Fatal(domain.ErrRender, errors.New("renderer is not configured"))
	}
	html := renderer.Render(summary)
	if strings.TrimSpace(html) == "" {
		return "", domain.Fatal(domain.ErrRender, errors.New("renderer produced no markup"))
	}
	return html, nil
}

func deliver(ctx context.Context, client ports.DeliveryClient, state *RunState) (domain.DeliveryReceipt, error) {
	if client == nil {
		return domain.DeliveryReceipt{}, domain.Fatal(domain.ErrDelivery, errors.New("delivery client is not configured"))
	}
	receipt, err := client.Send(ctx, domain.Email{
		Recipient:    state.Run.Recipient,
		SubjectLabel: state.Run.Event().Label(),
		ArticleCount: len(state.Articles),
		HTMLBody:     state.HTML,
	})
	if errors.Is(err, domain.ErrRecipientRejected) {
		return domain.DeliveryReceipt{}, domain.Fatal(domain.ErrDelivery, err)
	}
	if err != nil {
		return domain.DeliveryReceipt{}, domain.Transient(domain.ErrDelivery, fmt.Errorf("send to %s: %w", state.Run.Recipient, err))
	}
	return receipt, nil
}
