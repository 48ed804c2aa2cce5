package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	netmail "net/mail"
	"strings"
	"time"

	"NewsletterWorkflow/internal/config"
	"NewsletterWorkflow/internal/domain"
	"NewsletterWorkflow/internal/ports"
)

const providerName = "mail-api"

var layout = template.Must(template.New("email").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Subject}}</title></head>
<body style="font-family: Arial, sans-serif; max-width: 640px; margin: 0 auto;">
<p style="color: #666; font-size: 13px;">{{.ArticleCount}} {{if eq .ArticleCount 1}}article{{else}}articles{{end}} on {{.Label}}</p>
{{.Body}}
<hr>
<p style="color: #999; font-size: 12px;">You receive this newsletter because you subscribed to {{.Label}}.</p>
</body>
</html>`))

// Client sends newsletters through a JSON mail API (Resend-compatible).
type Client struct {
	endpoint string
	apiKey   string
	from     string
	http     *http.Client
	now      func() time.Time
}

var _ ports.DeliveryClient = (*Client)(nil)

// NewClient builds a client from configuration.
func NewClient(cfg config.MailConfig, httpClient *http.Client) (*Client, error) {
	if cfg.Endpoint == "" || cfg.APIKey == "" || cfg.From == "" {
		return nil, errors.New("mail client misconfigured: endpoint, apiKey and from are required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		from:     cfg.From,
		http:     httpClient,
		now:      time.Now,
	}, nil
}

// Subject builds the subject line for a category label.
func Subject(label string) string {
	return fmt.Sprintf("Your %s newsletter", label)
}

// Send posts one message. Rejections the provider will repeat forever wrap
// domain.ErrRecipientRejected; everything else is left for retry.
func (c *Client) Send(ctx context.Context, email domain.Email) (domain.DeliveryReceipt, error) {
	if _, err := netmail.ParseAddress(email.Recipient); err != nil {
		return domain.DeliveryReceipt{}, fmt.Errorf("recipient %q: %v: %w", email.Recipient, err, domain.ErrRecipientRejected)
	}

	subject := Subject(email.SubjectLabel)
	html, err := renderBody(subject, email)
	if err != nil {
		return domain.DeliveryReceipt{}, fmt.Errorf("render email body: %w", err)
	}

	body, err := json.Marshal(map[string]any{
		"from":    c.from,
		"to":      []string{email.Recipient},
		"subject": subject,
		"html":    html,
	})
	if err != nil {
		return domain.DeliveryReceipt{}, fmt.Errorf("marshal mail payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.DeliveryReceipt{}, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.DeliveryReceipt{}, fmt.Errorf("send mail: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		statusErr := fmt.Errorf("mail api error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
		switch resp.StatusCode {
		case http.StatusBadRequest, http.StatusForbidden, http.StatusUnprocessableEntity:
			return domain.DeliveryReceipt{}, fmt.Errorf("%w: %w", domain.ErrRecipientRejected, statusErr)
		}
		return domain.DeliveryReceipt{}, statusErr
	}

	// Accepted. A body that does not decode leaves MessageID empty.
	var accepted struct {
		ID string `json:"id"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&accepted)

	return domain.DeliveryReceipt{
		MessageID:  accepted.ID,
		Provider:   providerName,
		AcceptedAt: c.now().UTC(),
	}, nil
}

func renderBody(subject string, email domain.Email) (string, error) {
	var buf bytes.Buffer
	err := layout.Execute(&buf, struct {
		Subject      string
		Label        string
		ArticleCount int
		Body         template.HTML
	}{
		Subject:      subject,
		Label:        email.SubjectLabel,
		ArticleCount: email.ArticleCount,
		Body:         template.HTML(email.HTMLBody),
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}
