package newsapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"NewsletterWorkflow/internal/config"
	"NewsletterWorkflow/internal/domain"
	"NewsletterWorkflow/internal/ports"
)

// Client searches a NewsAPI-compatible /everything endpoint per category.
type Client struct {
	endpoint string
	apiKey   string
	pageSize int
	language string
	lookback time.Duration
	http     *http.Client
	logger   *slog.Logger
	now      func() time.Time
}

var _ ports.ArticleSource = (*Client)(nil)

// NewClient creates a reusable HTTP client.
func NewClient(cfg config.NewsAPIConfig, lookback time.Duration, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 5
	}
	return &Client{
		endpoint: strings.TrimSuffix(cfg.Endpoint, "/"),
		apiKey:   cfg.APIKey,
		pageSize: pageSize,
		language: cfg.Language,
		lookback: lookback,
		http:     httpClient,
		logger:   logger,
		now:      time.Now,
	}
}

type response struct {
	Status   string `json:"status"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Articles []struct {
		Source struct {
			Name string `json:"name"`
		} `json:"source"`
		Title       string    `json:"title"`
		Description string    `json:"description"`
		URL         string    `json:"url"`
		PublishedAt time.Time `json:"publishedAt"`
	} `json:"articles"`
}

// Fetch queries each category in order and merges results, dropping
// duplicates by URL.
func (c *Client) Fetch(ctx context.Context, categories []string) ([]domain.Article, error) {
	if c.endpoint == "" {
		return nil, domain.Fatal(domain.ErrFetch, errors.New("newsapi endpoint is not configured"))
	}

	results := make([]domain.Article, 0)
	seen := map[string]struct{}{}

	for _, category := range categories {
		batch, err := c.search(ctx, category)
		if err != nil {
			return nil, fmt.Errorf("category %s: %w", category, err)
		}
		for _, article := range batch {
			if _, ok := seen[article.URL]; ok {
				continue
			}
			seen[article.URL] = struct{}{}
			results = append(results, article)
		}
		c.debug("category fetched", "category", category, "count", len(batch))
	}

	return results, nil
}

func (c *Client) search(ctx context.Context, category string) ([]domain.Article, error) {
	query := url.Values{}
	query.Set("q", category)
	query.Set("sortBy", "publishedAt")
	query.Set("pageSize", strconv.Itoa(c.pageSize))
	if c.language != "" {
		query.Set("language", c.language)
	}
	if c.lookback > 0 {
		query.Set("from", c.now().Add(-c.lookback).UTC().Format("2006-01-02"))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/everything?"+query.Encode(), nil)
	if err != nil {
		return nil, domain.Fatal(domain.ErrFetch, fmt.Errorf("new request: %w", err))
	}
	req.Header.Set("User-Agent", "NewsletterWorkflow/1.0")
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, domain.Transient(domain.ErrFetch, fmt.Errorf("do request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		statusErr := fmt.Errorf("newsapi error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return nil, domain.Fatal(domain.ErrFetch, statusErr)
		}
		return nil, domain.Transient(domain.ErrFetch, statusErr)
	}

	var body response
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, domain.Transient(domain.ErrFetch, fmt.Errorf("decode response: %w", err))
	}
	if body.Status != "" && body.Status != "ok" {
		return nil, domain.Transient(domain.ErrFetch, fmt.Errorf("newsapi status %s: %s %s", body.Status, body.Code, body.Message))
	}

	articles := make([]domain.Article, 0, len(body.Articles))
	for _, item := range body.Articles {
		if strings.TrimSpace(item.URL) == "" {
			continue
		}
		source := item.Source.Name
		if source == "" {
			source = "newsapi"
		}
		articles = append(articles, domain.Article{
			ID:          item.URL,
			Title:       strings.TrimSpace(item.Title),
			Description: strings.TrimSpace(item.Description),
			URL:         item.URL,
			Source:      fmt.Sprintf("%s/%s", source, category),
			PublishedAt: item.PublishedAt,
		})
	}
	return articles, nil
}

func (c *Client) debug(msg string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}
