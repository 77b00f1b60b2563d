package scrape

import (
	"context"
	"errors"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/enrichment-cli/internal/model"
	"github.com/sells-group/enrichment-cli/internal/resilience"
	"github.com/sells-group/enrichment-cli/pkg/jina"
)

// JinaSearcher searches through s.jina.ai.
type JinaSearcher struct {
	client jina.Client
	guard  resilience.Guard
}

// NewJinaSearcher wraps client with a breaker and retry.
func NewJinaSearcher(client jina.Client, b resilience.Backoff, br resilience.BreakerConfig) *JinaSearcher {
	b.OnRetry = resilience.LogRetry("jina", "search")
	return &JinaSearcher{client: client, guard: resilience.Guard{
		Breaker: resilience.NewBreaker("jina_search", br),
		Backoff: b,
	}}
}

// Name implements Searcher.
func (j *JinaSearcher) Name() string { return "jina" }

// Search implements Searcher.
func (j *JinaSearcher) Search(ctx context.Context, query string) ([]model.SearchHit, error) {
	resp, err := resilience.Do(ctx, j.guard, func(ctx context.Context) (*jina.SearchResponse, error) {
		r, err := j.client.Search(ctx, query)
		return r, jinaError(err)
	})
	if err != nil {
		return nil, err
	}

	hits := make([]model.SearchHit, 0, len(resp.Data))
	for _, r := range resp.Data {
		desc := r.Description
		if desc == "" {
			desc = r.Content
		}
		hits = append(hits, model.SearchHit{Title: r.Title, Description: desc, URL: r.URL})
	}
	return hits, nil
}

// JinaFetcher renders pages through r.jina.ai.
type JinaFetcher struct {
	client jina.Client
	guard  resilience.Guard
}

// NewJinaFetcher wraps client with a breaker and retry.
func NewJinaFetcher(client jina.Client, b resilience.Backoff, br resilience.BreakerConfig) *JinaFetcher {
	b.OnRetry = resilience.LogRetry("jina", "read")
	return &JinaFetcher{client: client, guard: resilience.Guard{
		Breaker: resilience.NewBreaker("jina_read", br),
		Backoff: b,
	}}
}

// Name implements Fetcher.
func (j *JinaFetcher) Name() string { return "jina" }

// Fetch implements Fetcher. Challenge pages and near-empty renders are
// reported as errors so the adapter falls through to the next fetcher.
func (j *JinaFetcher) Fetch(ctx context.Context, target string) (string, error) {
	resp, err := resilience.Do(ctx, j.guard, func(ctx context.Context) (*jina.ReadResponse, error) {
		r, err := j.client.Read(ctx, target)
		return r, jinaError(err)
	})
	if err != nil {
		return "", err
	}
	if unusable(resp) {
		return "", eris.Errorf("jina: unusable render for %s", target)
	}
	return resp.Data.Content, nil
}

func jinaError(err error) error {
	var se *jina.StatusError
	if errors.As(err, &se) {
		return classify("jina", se.Code, se.Body)
	}
	return err
}

var challengeSignatures = []string{
	"checking your browser",
	"enable javascript",
	"please enable cookies",
	"access denied",
	"403 forbidden",
	"just a moment",
	"attention required",
}

// unusable reports whether a render is a bot wall or too short to hold
// contact details.
func unusable(resp *jina.ReadResponse) bool {
	if resp == nil || (resp.Code != 0 && resp.Code != 200) {
		return true
	}
	content := strings.TrimSpace(resp.Data.Content)
	if len(content) < 50 {
		return true
	}
	if len(content) < 1000 {
		lower := strings.ToLower(content)
		for _, sig := range challengeSignatures {
			if strings.Contains(lower, sig) {
				return true
			}
		}
	}
	return false
}
