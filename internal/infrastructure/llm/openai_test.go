package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"NewsletterWorkflow/internal/config"
	"NewsletterWorkflow/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *OpenAIClient {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewOpenAIClient(config.OpenAIConfig{
		BaseURL: server.URL + "/",
		Model:   "gpt-4o",
		APIKey:  "test-key",
	}, server.Client())
	if err != nil {
		t.Fatalf("NewOpenAIClient: %v", err)
	}
	return client
}

func completion(content string) string {
	body, _ := json.Marshal(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1,
		"model":   "gpt-4o",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
	})
	return string(body)
}

func TestInferReturnsFirstChoice(t *testing.T) {
	t.Parallel()

	var got struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing bearer token")
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completion("# Weekly\n\nNews.")))
	})

	text, err := client.Infer(context.Background(), []domain.Message{
		{Role: domain.RoleSystem, Content: "be an editor"},
		{Role: domain.RoleUser, Content: "summarize"},
	})
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}
	if text != "# Weekly\n\nNews." {
		t.Fatalf("unexpected text: %q", text)
	}
	if got.Model != "gpt-4o" || len(got.Messages) != 2 || got.Messages[0].Role != "system" {
		t.Fatalf("unexpected request: %+v", got)
	}
}

func TestInferBlankContentIsEmptyCompletion(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completion("   ")))
	})

	_, err := client.Infer(context.Background(), []domain.Message{{Role: domain.RoleUser, Content: "x"}})
	if !errors.Is(err, domain.ErrEmptyCompletion) {
		t.Fatalf("expected ErrEmptyCompletion, got %v", err)
	}
}

func TestInferClassifiesProviderErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		status int
		fatal  bool
	}{
		{http.StatusUnauthorized, true},
		{http.StatusBadRequest, true},
		{http.StatusTooManyRequests, false},
		{http.StatusBadGateway, false},
	}

	for _, tc := range cases {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(tc.status)
			_, _ = w.Write([]byte(`{"error":{"message":"nope","type":"test","code":"x"}}`))
		})

		_, err := client.Infer(context.Background(), []domain.Message{{Role: domain.RoleUser, Content: "x"}})
		if err == nil {
			t.Fatalf("status %d: expected error", tc.status)
		}
		class, ok := domain.ClassOf(err)
		if tc.fatal && (!ok || class != domain.ClassFatal) {
			t.Fatalf("status %d: expected fatal, got %v", tc.status, err)
		}
		if !tc.fatal && ok {
			t.Fatalf("status %d: expected unclassified transient error, got %v", tc.status, err)
		}
	}
}

func TestNewOpenAIClientRequiresKeyAndModel(t *testing.T) {
	t.Parallel()

	if _, err := NewOpenAIClient(config.OpenAIConfig{Model: "gpt-4o"}, nil); err == nil {
		t.Fatalf("expected error without api key")
	}
	if _, err := NewOpenAIClient(config.OpenAIConfig{APIKey: "k"}, nil); err == nil {
		t.Fatalf("expected error without model")
	}
}
