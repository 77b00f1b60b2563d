// Package scrape implements the search and fetch capabilities enrichment
// methods are built on, with provider fallback and per-call timeouts.
package scrape

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/enrichment-cli/internal/model"
	"github.com/sells-group/enrichment-cli/internal/resilience"
)

// Searcher runs a web search.
type Searcher interface {
	Name() string
	Search(ctx context.Context, query string) ([]model.SearchHit, error)
}

// Fetcher returns the text content of a URL.
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context, url string) (string, error)
}

// Source is the capability pair the waterfall methods consume.
type Source interface {
	Search(ctx context.Context, query string) ([]model.SearchHit, error)
	Fetch(ctx context.Context, url string) (string, error)
}

// Adapter is a Source that tries providers in order. The first provider to
// return a non-empty result wins. If every provider failed the error is
// transient; if at least one answered with nothing, the result is empty.
type Adapter struct {
	searchers     []Searcher
	fetchers      []Fetcher
	searchTimeout time.Duration
	fetchTimeout  time.Duration
}

// NewAdapter builds an Adapter. searchTimeout and fetchTimeout bound each
// search and fetch provider call; zero means no deadline beyond ctx.
func NewAdapter(searchers []Searcher, fetchers []Fetcher, searchTimeout, fetchTimeout time.Duration) *Adapter {
	return &Adapter{searchers: searchers, fetchers: fetchers, searchTimeout: searchTimeout, fetchTimeout: fetchTimeout}
}

// Searchers returns the configured search providers in order.
func (a *Adapter) Searchers() []string {
	out := make([]string, len(a.searchers))
	for i, s := range a.searchers {
		out[i] = s.Name()
	}
	return out
}

// Fetchers returns the configured fetch providers in order.
func (a *Adapter) Fetchers() []string {
	out := make([]string, len(a.fetchers))
	for i, f := range a.fetchers {
		out[i] = f.Name()
	}
	return out
}

func callCtx(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// Search implements Source.
func (a *Adapter) Search(ctx context.Context, query string) ([]model.SearchHit, error) {
	if len(a.searchers) == 0 {
		return nil, eris.New("scrape: no search providers configured")
	}

	var errs []string
	answered := false
	for _, s := range a.searchers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cctx, cancel := callCtx(ctx, a.searchTimeout)
		hits, err := s.Search(cctx, query)
		cancel()
		if err != nil {
			zap.L().Debug("scrape: search provider failed",
				zap.String("provider", s.Name()),
				zap.String("query", query),
				zap.Error(err),
			)
			errs = append(errs, s.Name()+": "+err.Error())
			continue
		}
		answered = true
		if len(hits) > 0 {
			return hits, nil
		}
	}
	if answered {
		return nil, nil
	}
	return nil, resilience.Transient("search", 0, eris.Errorf("all providers failed: %s", strings.Join(errs, "; ")))
}

// Fetch implements Source.
func (a *Adapter) Fetch(ctx context.Context, url string) (string, error) {
	if len(a.fetchers) == 0 {
		return "", eris.New("scrape: no fetch providers configured")
	}

	var errs []string
	answered := false
	for _, f := range a.fetchers {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		cctx, cancel := callCtx(ctx, a.fetchTimeout)
		text, err := f.Fetch(cctx, url)
		cancel()
		if err != nil {
			zap.L().Debug("scrape: fetch provider failed",
				zap.String("provider", f.Name()),
				zap.String("url", url),
				zap.Error(err),
			)
			errs = append(errs, f.Name()+": "+err.Error())
			continue
		}
		answered = true
		if strings.TrimSpace(text) != "" {
			return text, nil
		}
	}
	if answered {
		return "", nil
	}
	return "", resilience.Transient("fetch", 0, eris.Errorf("all providers failed for %s: %s", url, strings.Join(errs, "; ")))
}

// classify turns a provider's status code into a transient or permanent error.
func classify(provider string, code int, body string) error {
	return resilience.StatusError(provider, code, body)
}
