package scrape

import (
	"context"
	"errors"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/enrichment-cli/internal/resilience"
	"github.com/sells-group/enrichment-cli/pkg/firecrawl"
)

// FirecrawlFetcher renders pages through Firecrawl. It is the most expensive
// fetcher and normally sits last.
type FirecrawlFetcher struct {
	client firecrawl.Client
	guard  resilience.Guard
}

// NewFirecrawlFetcher wraps client with retry.
func NewFirecrawlFetcher(client firecrawl.Client, b resilience.Backoff) *FirecrawlFetcher {
	b.OnRetry = resilience.LogRetry("firecrawl", "scrape")
	return &FirecrawlFetcher{client: client, guard: resilience.Guard{Backoff: b}}
}

// Name implements Fetcher.
func (f *FirecrawlFetcher) Name() string { return "firecrawl" }

// Fetch implements Fetcher. Contact links are appended like LocalFetcher.
func (f *FirecrawlFetcher) Fetch(ctx context.Context, target string) (string, error) {
	resp, err := resilience.Do(ctx, f.guard, func(ctx context.Context) (*firecrawl.ScrapeResponse, error) {
		r, err := f.client.Scrape(ctx, firecrawl.ScrapeRequest{URL: target})
		var apiErr *firecrawl.APIError
		if errors.As(err, &apiErr) {
			return nil, classify("firecrawl", apiErr.StatusCode, apiErr.Body)
		}
		return r, err
	})
	if err != nil {
		return "", err
	}
	if !resp.Success {
		return "", eris.Errorf("firecrawl: scrape of %s unsuccessful", target)
	}
	if code := resp.Data.Metadata.StatusCode; code >= 400 {
		return "", classify("firecrawl", code, "target returned error")
	}

	var b strings.Builder
	b.WriteString(resp.Data.Markdown)
	for _, link := range resp.Data.Links {
		lower := strings.ToLower(link)
		if strings.HasPrefix(lower, "mailto:") || strings.HasPrefix(lower, "tel:") {
			b.WriteString("\n")
			b.WriteString(link[strings.IndexByte(link, ':')+1:])
		}
	}
	return b.String(), nil
}
