package waterfall

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/enrichment-cli/internal/extract"
	"github.com/sells-group/enrichment-cli/internal/model"
	"github.com/sells-group/enrichment-cli/internal/scrape"
)

// SitePhone scrapes the homepage, then the contact pages, for a phone number.
type SitePhone struct {
	src   scrape.Source
	paths []string
}

// NewSitePhone creates the site_phone method.
func NewSitePhone(src scrape.Source, contactPaths []string) *SitePhone {
	return &SitePhone{src: src, paths: contactPaths}
}

// Name implements Method.
func (m *SitePhone) Name() string { return MethodSitePhone }

// Attempt fetches pages one at a time and stops at the first number found.
func (m *SitePhone) Attempt(ctx context.Context, _ model.Company, known Known) (string, error) {
	urls := pageURLs(known.Website, m.paths)
	if len(urls) == 0 {
		return "", nil
	}

	var firstErr error
	failed := 0
	for _, u := range urls {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		text, err := m.src.Fetch(ctx, u)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			failed++
			continue
		}
		if phone := extract.Phone(text); phone != "" {
			return phone, nil
		}
	}
	if failed == len(urls) {
		return "", eris.Wrap(firstErr, MethodSitePhone)
	}
	return "", nil
}

// PlacesPhone takes the phone number from the first Places listing that
// has a valid national number.
type PlacesPhone struct {
	places *scrape.Places
}

// NewPlacesPhone creates the places_phone method.
func NewPlacesPhone(p *scrape.Places) *PlacesPhone {
	return &PlacesPhone{places: p}
}

// Name implements Method.
func (m *PlacesPhone) Name() string { return MethodPlacesPhone }

// Attempt implements Method.
func (m *PlacesPhone) Attempt(ctx context.Context, c model.Company, _ Known) (string, error) {
	listings, err := m.places.Lookup(ctx, placesQuery(c))
	if err != nil {
		return "", eris.Wrap(err, MethodPlacesPhone)
	}
	for _, l := range listings {
		if phone := extract.NormalizePhone(l.Phone); phone != "" {
			return phone, nil
		}
	}
	return "", nil
}
