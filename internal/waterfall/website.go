package waterfall

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/enrichment-cli/internal/extract"
	"github.com/sells-group/enrichment-cli/internal/model"
	"github.com/sells-group/enrichment-cli/internal/scrape"
)

// SearchWebsite picks the best-ranked result domain for the company name.
type SearchWebsite struct {
	src    scrape.Source
	policy extract.Policy
}

// NewSearchWebsite creates the search_website method.
func NewSearchWebsite(src scrape.Source, p extract.Policy) *SearchWebsite {
	return &SearchWebsite{src: src, policy: p.WithDefaults()}
}

// Name implements Method.
func (m *SearchWebsite) Name() string { return MethodSearchWebsite }

func websiteQueries(c model.Company) []string {
	base := strings.TrimSpace(c.Name + " " + strings.TrimSpace(c.City))
	return []string{base + " official website", base}
}

// Attempt implements Method.
func (m *SearchWebsite) Attempt(ctx context.Context, c model.Company, _ Known) (string, error) {
	var lastErr error
	answered := false
	for _, q := range websiteQueries(c) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		hits, err := m.src.Search(ctx, q)
		if err != nil {
			lastErr = err
			continue
		}
		answered = true
		if site := extract.SelectWebsite(hits, c.Name, m.policy); site != "" {
			return site, nil
		}
	}
	if !answered && lastErr != nil {
		return "", eris.Wrap(lastErr, MethodSearchWebsite)
	}
	return "", nil
}

// PlacesWebsite takes the website from the first matching Places listing.
type PlacesWebsite struct {
	places *scrape.Places
	policy extract.Policy
}

// NewPlacesWebsite creates the places_website method.
func NewPlacesWebsite(p *scrape.Places, policy extract.Policy) *PlacesWebsite {
	return &PlacesWebsite{places: p, policy: policy.WithDefaults()}
}

// Name implements Method.
func (m *PlacesWebsite) Name() string { return MethodPlacesWebsite }

func placesQuery(c model.Company) string {
	return strings.TrimSpace(c.Name + " " + c.SearchLocation())
}

// Attempt implements Method.
func (m *PlacesWebsite) Attempt(ctx context.Context, c model.Company, _ Known) (string, error) {
	listings, err := m.places.Lookup(ctx, placesQuery(c))
	if err != nil {
		return "", eris.Wrap(err, MethodPlacesWebsite)
	}
	for _, l := range listings {
		d := extract.Domain(l.Website)
		if d == "" || extract.ExcludedDomain(d, m.policy.WebsiteExclusions) {
			continue
		}
		return extract.NormalizeURL(l.Website), nil
	}
	return "", nil
}
