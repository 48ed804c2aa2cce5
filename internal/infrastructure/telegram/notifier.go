package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"NewsletterWorkflow/internal/config"
	"NewsletterWorkflow/internal/domain"
	"NewsletterWorkflow/internal/ports"
)

const (
	defaultAPIBase = "https://api.telegram.org"
	// maxMessageRunes is the Bot API limit for one text message.
	maxMessageRunes = 4096
)

// Notifier alerts an operator chat about failed newsletter runs.
type Notifier struct {
	botToken string
	chatID   string
	apiBase  string
	http     *http.Client
}

var _ ports.FailureNotifier = (*Notifier)(nil)

// NewNotifier returns nil when the bot token or chat id is missing, so callers
// can treat alerts as optional.
func NewNotifier(cfg config.TelegramConfig, httpClient *http.Client) *Notifier {
	if cfg.BotToken == "" || cfg.ChatID == "" {
		return nil
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Second}
	}
	return &Notifier{
		botToken: cfg.BotToken,
		chatID:   cfg.ChatID,
		apiBase:  defaultAPIBase,
		http:     httpClient,
	}
}

type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// NotifyRunFailed posts the failure summary of result to the chat.
func (n *Notifier) NotifyRunFailed(ctx context.Context, result domain.RunResult) error {
	if n == nil {
		return errors.New("telegram notifier not configured")
	}

	body, err := json.Marshal(sendMessageRequest{
		ChatID:                n.chatID,
		Text:                  truncate(FailureMessage(result), maxMessageRunes),
		DisableWebPagePreview: true,
	})
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	endpoint := strings.TrimSuffix(n.apiBase, "/") + "/bot" + n.botToken + "/sendMessage"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.http.Do(req)
	if err != nil {
		return fmt.Errorf("send alert: %w", err)
	}
	defer resp.Body.Close()

	var decoded apiResponse
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	if resp.StatusCode != http.StatusOK || !decoded.OK {
		if decoded.Description != "" {
			return fmt.Errorf("telegram rejected alert (%s): %s", resp.Status, decoded.Description)
		}
		return fmt.Errorf("telegram rejected alert: %s", resp.Status)
	}
	return nil
}

// FailureMessage formats the alert text: the run error, then one line per
// recorded step.
func FailureMessage(result domain.RunResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Newsletter run %s failed", result.RunID)
	if result.Err != nil {
		fmt.Fprintf(&b, ": %v", result.Err)
	}
	for _, step := range result.Steps {
		fmt.Fprintf(&b, "\n- %s: %s (attempt %d)", step.Step, step.Status, step.Attempt)
		if step.Error != "" {
			fmt.Fprintf(&b, " %s", step.Error)
		}
	}
	return b.String()
}

func truncate(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit-1]) + "…"
}
