package parser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"

	"NewsletterWorkflow/internal/config"
	"NewsletterWorkflow/internal/scanner"
)

const listingHTML = `
<dl>
  <dt>
    <span class="list-identifier"><a href="/abs/2510.00001">arXiv:2510.00001</a></span>
  </dt>
  <dd>
    <div class="list-date">Date: 18 Oct 2026</div>
    <div class="list-title mathjax">Title: Fresh Article</div>
    <p class="mathjax">Abstract: brand new.</p>
  </dd>
  <dt>
    <span class="list-identifier"><a href="/abs/2510.00002">arXiv:2510.00002</a></span>
  </dt>
  <dd>
    <div class="list-date">Date: 13 Oct 2026</div>
    <div class="list-title mathjax">Title: Still In Window</div>
    <p class="mathjax">Abstract: a few days old.</p>
  </dd>
  <dt>
    <span class="list-identifier"><a href="/abs/2509.00003">arXiv:2509.00003</a></span>
  </dt>
  <dd>
    <div class="list-date">Date: 1 Oct 2026</div>
    <div class="list-title mathjax">Title: Old Article</div>
    <p class="mathjax">Abstract: older.</p>
  </dd>
</dl>`

func TestBuildPageURL(t *testing.T) {
	t.Parallel()

	base := "https://export.arxiv.org/list/cs.AI/pastweek"
	u, err := buildPageURL(base, 200, 100)
	if err != nil {
		t.Fatalf("buildPageURL returned error: %v", err)
	}

	parsed, err := url.Parse(u)
	if err != nil {
		t.Fatalf("parse result: %v", err)
	}

	if parsed.Scheme != "https" || parsed.Host != "export.arxiv.org" {
		t.Fatalf("unexpected host: %s", parsed.Host)
	}

	q := parsed.Query()
	if q.Get("skip") != "200" || q.Get("show") != "100" {
		t.Fatalf("unexpected paging query: %s", parsed.RawQuery)
	}
}

func TestParseEntry(t *testing.T) {
	t.Parallel()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(listingHTML))
	if err != nil {
		t.Fatalf("new document: %v", err)
	}

	dt := doc.Find("dt").First()
	article, ok := parseEntry(dt, dt.Next(), "arxiv-ai", "ai")
	if !ok {
		t.Fatalf("parseEntry rejected a valid entry")
	}

	if article.ID != "arXiv:2510.00001" {
		t.Fatalf("unexpected id: %s", article.ID)
	}
	if article.Title != "Fresh Article" {
		t.Fatalf("unexpected title: %s", article.Title)
	}
	if article.Description != "brand new." {
		t.Fatalf("unexpected description: %s", article.Description)
	}
	if article.URL != "https://arxiv.org/abs/2510.00001" {
		t.Fatalf("unexpected url: %s", article.URL)
	}
	if article.Source != "arxiv-ai/ai" {
		t.Fatalf("unexpected source: %s", article.Source)
	}
	if got := article.PublishedAt.Format("2006-01-02"); got != "2026-10-18" {
		t.Fatalf("unexpected published date: %s", got)
	}
}

func TestArxivScannerScanStopsAtWindow(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(listingHTML))
	}))
	defer server.Close()

	sc := NewArxivScanner(server.Client(), nil)
	sc.pageSize = 10

	articles, err := sc.Scan(context.Background(), scanner.Request{
		Since: time.Date(2026, time.October, 12, 6, 0, 0, 0, time.UTC),
		Site:  "arxiv-ai",
		Listings: []scanner.Listing{
			{Category: "ai", URL: server.URL + "/list/cs.AI"},
		},
	})
	if err != nil {
		t.Fatalf("Scan error: %v", err)
	}

	if len(articles) != 2 {
		t.Fatalf("expected 2 articles inside the window, got %d", len(articles))
	}
	if articles[1].Title != "Still In Window" {
		t.Fatalf("unexpected article: %+v", articles[1])
	}
}

func TestStrategySourceMatchesRequestedCategories(t *testing.T) {
	t.Parallel()

	var hits []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits = append(hits, r.URL.Path)
		_, _ = w.Write([]byte(listingHTML))
	}))
	defer server.Close()

	sc := NewArxivScanner(server.Client(), nil)
	sc.pageSize = 10
	reg := scanner.NewRegistry(sc)

	sites := []config.SiteConfig{{
		Name:    "arxiv",
		Scanner: "arxiv",
		Categories: []config.CategoryConfig{
			{Name: "ai", URL: server.URL + "/list/cs.AI"},
			{Name: "robotics", URL: server.URL + "/list/cs.RO"},
		},
	}}

	source := NewStrategySource(reg, sites, 7*24*time.Hour, nil)
	source.now = func() time.Time { return time.Date(2026, time.October, 19, 6, 0, 0, 0, time.UTC) }

	articles, err := source.Fetch(context.Background(), []string{"ai", "unknown"})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(hits) != 1 || hits[0] != "/list/cs.AI" {
		t.Fatalf("only the requested category should be scanned, got %v", hits)
	}
	if len(articles) != 2 {
		t.Fatalf("expected 2 articles, got %d", len(articles))
	}
}
