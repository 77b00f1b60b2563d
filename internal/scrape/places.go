package scrape

import (
	"context"
	"errors"
	"strings"

	"github.com/sells-group/enrichment-cli/internal/model"
	"github.com/sells-group/enrichment-cli/internal/resilience"
	"github.com/sells-group/enrichment-cli/pkg/google"
)

// Listing is the structured part of a Places result.
type Listing struct {
	Name    string
	Address string
	Website string
	Phone   string
}

// Places looks companies up in Google Places. It serves both as a Searcher
// (listing websites become hits) and as a direct source of website and
// phone for the places_* waterfall methods.
type Places struct {
	client google.Client
	guard  resilience.Guard
}

// NewPlaces wraps client with a breaker and retry.
func NewPlaces(client google.Client, b resilience.Backoff, br resilience.BreakerConfig) *Places {
	b.OnRetry = resilience.LogRetry("places", "text_search")
	return &Places{client: client, guard: resilience.Guard{
		Breaker: resilience.NewBreaker("places", br),
		Backoff: b,
	}}
}

// Name implements Searcher.
func (p *Places) Name() string { return "places" }

// Lookup returns listings for a text query in relevance order.
func (p *Places) Lookup(ctx context.Context, query string) ([]Listing, error) {
	resp, err := resilience.Do(ctx, p.guard, func(ctx context.Context) (*google.TextSearchResponse, error) {
		r, err := p.client.TextSearch(ctx, query)
		var se *google.StatusError
		if errors.As(err, &se) {
			return nil, classify("places", se.Code, se.Body)
		}
		return r, err
	})
	if err != nil {
		return nil, err
	}

	out := make([]Listing, 0, len(resp.Places))
	for _, pl := range resp.Places {
		phone := pl.NationalPhoneNumber
		if phone == "" {
			phone = pl.InternationalPhoneNumber
		}
		out = append(out, Listing{
			Name:    pl.DisplayName.Text,
			Address: pl.FormattedAddress,
			Website: strings.TrimSpace(pl.WebsiteURI),
			Phone:   strings.TrimSpace(phone),
		})
	}
	return out, nil
}

// Search implements Searcher. Listings without a website are dropped.
func (p *Places) Search(ctx context.Context, query string) ([]model.SearchHit, error) {
	listings, err := p.Lookup(ctx, query)
	if err != nil {
		return nil, err
	}
	var hits []model.SearchHit
	for _, l := range listings {
		if l.Website == "" {
			continue
		}
		hits = append(hits, model.SearchHit{
			Title:       l.Name,
			Description: strings.TrimSpace(l.Address + " " + l.Phone),
			URL:         l.Website,
		})
	}
	return hits, nil
}
