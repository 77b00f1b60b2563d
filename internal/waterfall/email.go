package waterfall

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/enrichment-cli/internal/extract"
	"github.com/sells-group/enrichment-cli/internal/model"
	"github.com/sells-group/enrichment-cli/internal/scrape"
)

// SearchEmail looks for an address in search result titles and snippets.
type SearchEmail struct {
	src    scrape.Source
	policy extract.Policy
}

// NewSearchEmail creates the search_email method.
func NewSearchEmail(src scrape.Source, p extract.Policy) *SearchEmail {
	return &SearchEmail{src: src, policy: p.WithDefaults()}
}

// Name implements Method.
func (m *SearchEmail) Name() string { return MethodSearchEmail }

func emailQueries(c model.Company) []string {
	quoted := `"` + c.Name + `"`
	qs := []string{quoted + " email contact"}
	if city := strings.TrimSpace(c.City); city != "" {
		qs = append(qs, quoted+" "+city+" email")
	}
	return append(qs, quoted+" contact email address")
}

// Attempt runs each query variant until one yields an address.
func (m *SearchEmail) Attempt(ctx context.Context, c model.Company, known Known) (string, error) {
	hints := extract.EmailHints{CompanyName: c.Name, Domain: extract.Domain(known.Website)}
	var lastErr error
	answered := false

	for _, q := range emailQueries(c) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		hits, err := m.src.Search(ctx, q)
		if err != nil {
			lastErr = err
			continue
		}
		answered = true

		var text strings.Builder
		for _, h := range hits {
			text.WriteString(h.Text())
			text.WriteByte('\n')
		}
		if email := extract.BestEmail(text.String(), hints, m.policy); email != "" {
			return email, nil
		}
		zap.L().Debug("waterfall: query miss", zap.String("method", MethodSearchEmail), zap.String("query", q))
	}

	if !answered && lastErr != nil {
		return "", eris.Wrap(lastErr, MethodSearchEmail)
	}
	return "", nil
}

// SiteEmail scrapes the company website and its contact pages.
type SiteEmail struct {
	src         scrape.Source
	policy      extract.Policy
	paths       []string
	concurrency int
}

// NewSiteEmail creates the site_email method.
func NewSiteEmail(src scrape.Source, p extract.Policy, contactPaths []string, concurrency int) *SiteEmail {
	return &SiteEmail{src: src, policy: p.WithDefaults(), paths: contactPaths, concurrency: concurrency}
}

// Name implements Method.
func (m *SiteEmail) Name() string { return MethodSiteEmail }

// Attempt fetches the homepage and contact pages concurrently and extracts
// from their combined text. Without a known website it is a clean miss.
func (m *SiteEmail) Attempt(ctx context.Context, c model.Company, known Known) (string, error) {
	urls := pageURLs(known.Website, m.paths)
	if len(urls) == 0 {
		return "", nil
	}

	texts, err := fetchPages(ctx, m.src, urls, m.concurrency)
	if err != nil {
		return "", eris.Wrap(err, MethodSiteEmail)
	}

	hints := extract.EmailHints{CompanyName: c.Name, Domain: extract.Domain(known.Website)}
	return extract.BestEmail(strings.Join(texts, "\n"), hints, m.policy), nil
}
