package scanner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"NewsletterWorkflow/internal/domain"
)

// ErrUnknownScanner is returned by Resolve for names nobody registered.
var ErrUnknownScanner = errors.New("scanner is not registered")

// Listing is one listing page that serves a newsletter category.
type Listing struct {
	Category string
	URL      string
}

// Request asks a scanner for articles published at or after Since.
type Request struct {
	Since    time.Time
	Site     string
	Listings []Listing
	Options  map[string]string
}

// Scanner is a site-specific crawling strategy (arXiv listings and the like).
type Scanner interface {
	Name() string
	Scan(ctx context.Context, req Request) ([]domain.Article, error)
}

// Registry maps strategy names to scanners. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	scanners map[string]Scanner
}

// NewRegistry builds a registry holding the given scanners.
func NewRegistry(scanners ...Scanner) *Registry {
	r := &Registry{scanners: make(map[string]Scanner, len(scanners))}
	for _, s := range scanners {
		_ = r.Register(s)
	}
	return r
}

// Register adds a scanner; a second scanner with the same name is rejected.
func (r *Registry) Register(s Scanner) error {
	if s == nil || s.Name() == "" {
		return errors.New("scanner without a name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.scanners == nil {
		r.scanners = map[string]Scanner{}
	}
	if _, dup := r.scanners[s.Name()]; dup {
		return fmt.Errorf("scanner %s already registered", s.Name())
	}
	r.scanners[s.Name()] = s
	return nil
}

// Resolve returns the scanner registered under name.
func (r *Registry) Resolve(name string) (Scanner, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.scanners[name]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownScanner, name)
}

// Names lists registered strategies in lexical order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.scanners))
	for name := range r.scanners {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
