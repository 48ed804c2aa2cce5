package parser

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"NewsletterWorkflow/internal/config"
	"NewsletterWorkflow/internal/domain"
	"NewsletterWorkflow/internal/ports"
	"NewsletterWorkflow/internal/scanner"
)

// StrategySource implements ArticleSource by resolving each newsletter
// category to the configured site listings and running their scanners.
type StrategySource struct {
	registry *scanner.Registry
	sites    []config.SiteConfig
	lookback time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

var _ ports.ArticleSource = (*StrategySource)(nil)

// NewStrategySource wires scanner registry with config-defined sites.
func NewStrategySource(reg *scanner.Registry, sites []config.SiteConfig, lookback time.Duration, log *slog.Logger) *StrategySource {
	return &StrategySource{
		registry: reg,
		sites:    sites,
		lookback: lookback,
		logger:   log,
		now:      time.Now,
	}
}

// Fetch scans every site listing whose category matches a requested one.
// Categories no site knows about contribute nothing.
func (s *StrategySource) Fetch(ctx context.Context, categories []string) ([]domain.Article, error) {
	if s.registry == nil {
		return nil, domain.Fatal(domain.ErrFetch, fmt.Errorf("scanner registry is not configured"))
	}

	wanted := make(map[string]struct{}, len(categories))
	for _, c := range categories {
		wanted[c] = struct{}{}
	}
	since := s.now().Add(-s.lookback)

	var aggregated []domain.Article
	seen := map[string]struct{}{}
	matched := map[string]struct{}{}

	for _, site := range s.sites {
		listings := matchingListings(site.Categories, wanted)
		if len(listings) == 0 {
			continue
		}
		for _, l := range listings {
			matched[l.Category] = struct{}{}
		}

		strategy, err := s.registry.Resolve(site.Scanner)
		if err != nil {
			return nil, domain.Fatal(domain.ErrFetch, fmt.Errorf("site %s (available: %v): %w", site.Name, s.registry.Names(), err))
		}

		s.debug("process site", "site", site.Name, "scanner", site.Scanner, "listings", len(listings))
		results, err := strategy.Scan(ctx, scanner.Request{
			Since:    since,
			Site:     site.Name,
			Options:  site.Options,
			Listings: listings,
		})
		if err != nil {
			return nil, domain.Transient(domain.ErrFetch, fmt.Errorf("scan site %s: %w", site.Name, err))
		}

		for _, article := range results {
			if _, ok := seen[article.ID]; ok {
				continue
			}
			seen[article.ID] = struct{}{}
			if article.Source == "" {
				article.Source = site.Name
			}
			aggregated = append(aggregated, article)
		}
		s.debug("site produced articles", "site", site.Name, "count", len(results))
	}

	for _, c := range categories {
		if _, ok := matched[c]; !ok && s.logger != nil {
			s.logger.Warn("no site configured for category", "category", c)
		}
	}

	s.debug("strategy source done", "total_articles", len(aggregated))
	return aggregated, nil
}

func matchingListings(cfg []config.CategoryConfig, wanted map[string]struct{}) []scanner.Listing {
	var listings []scanner.Listing
	for _, cat := range cfg {
		if _, ok := wanted[cat.Name]; !ok {
			continue
		}
		listings = append(listings, scanner.Listing{Category: cat.Name, URL: cat.URL})
	}
	return listings
}

func (s *StrategySource) debug(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
