package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"NewsletterWorkflow/internal/config"
	"NewsletterWorkflow/internal/domain"
	"NewsletterWorkflow/internal/ports"
)

// OpenAIClient implements ports.InferenceClient with the official SDK.
type OpenAIClient struct {
	client openai.Client
	model  string
}

var _ ports.InferenceClient = (*OpenAIClient)(nil)

// NewOpenAIClient builds a client from configuration. SDK-level retries are
// disabled; the orchestrator owns the retry policy.
func NewOpenAIClient(cfg config.OpenAIConfig, httpClient *http.Client) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api key missing; set openai.apiKey or OPENAI_API_KEY")
	}
	if cfg.Model == "" {
		return nil, errors.New("openai model is required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 90 * time.Second}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIClient{client: openai.NewClient(opts...), model: cfg.Model}, nil
}

// Infer sends the prompt as a chat completion and returns the first choice.
func (c *OpenAIClient) Infer(ctx context.Context, messages []domain.Message) (string, error) {
	if len(messages) == 0 {
		return "", domain.Fatal(domain.ErrContentGeneration, errors.New("empty prompt"))
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: toSDKMessages(messages),
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: no choices: %w", domain.ErrEmptyCompletion)
	}

	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("openai: blank content (finish_reason=%s): %w", resp.Choices[0].FinishReason, domain.ErrEmptyCompletion)
	}
	return content, nil
}

func toSDKMessages(messages []domain.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case domain.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

// classify separates requests the provider will never accept from failures
// worth retrying.
func classify(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden,
			http.StatusNotFound, http.StatusUnprocessableEntity:
			return domain.Fatal(domain.ErrContentGeneration, fmt.Errorf("openai rejected request: %w", err))
		}
	}
	return fmt.Errorf("openai: %w", err)
}
