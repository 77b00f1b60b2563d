package scrape

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/sells-group/enrichment-cli/internal/model"
	"github.com/sells-group/enrichment-cli/internal/resilience"
)

const ddgBaseURL = "https://html.duckduckgo.com/html/"

// DDGSearcher scrapes DuckDuckGo's HTML endpoint. It needs no API key.
type DDGSearcher struct {
	baseURL   string
	client    *http.Client
	userAgent string
	limiter   *HostLimiter
	guard     resilience.Guard
}

// DDGOption configures a DDGSearcher.
type DDGOption func(*DDGSearcher)

// WithDDGBaseURL overrides the endpoint (for testing).
func WithDDGBaseURL(u string) DDGOption {
	return func(d *DDGSearcher) { d.baseURL = u }
}

// WithDDGLimiter shares a host limiter with the searcher.
func WithDDGLimiter(l *HostLimiter) DDGOption {
	return func(d *DDGSearcher) { d.limiter = l }
}

// NewDDGSearcher creates a DuckDuckGo searcher.
func NewDDGSearcher(userAgent string, b resilience.Backoff, br resilience.BreakerConfig, opts ...DDGOption) *DDGSearcher {
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	b.OnRetry = resilience.LogRetry("ddg", "search")
	d := &DDGSearcher{
		baseURL:   ddgBaseURL,
		client:    &http.Client{Timeout: 15 * time.Second},
		userAgent: userAgent,
		guard:     resilience.Guard{Breaker: resilience.NewBreaker("ddg", br), Backoff: b},
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Name implements Searcher.
func (d *DDGSearcher) Name() string { return "ddg" }

// Search implements Searcher.
func (d *DDGSearcher) Search(ctx context.Context, query string) ([]model.SearchHit, error) {
	return resilience.Do(ctx, d.guard, func(ctx context.Context) ([]model.SearchHit, error) {
		return d.search(ctx, query)
	})
}

func (d *DDGSearcher) search(ctx context.Context, query string) ([]model.SearchHit, error) {
	u := d.baseURL + "?q=" + url.QueryEscape(query)
	if err := d.limiter.Wait(ctx, u); err != nil {
		return nil, eris.Wrap(err, "ddg: rate limit")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, eris.Wrap(err, "ddg: create request")
	}
	req.Header.Set("User-Agent", d.userAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "ddg: search")
	}
	defer resp.Body.Close() //nolint:errcheck

	// DDG answers bot suspicion with 202 and a challenge page.
	if resp.StatusCode == http.StatusAccepted {
		return nil, resilience.Transient("ddg", resp.StatusCode, eris.New("ddg: anomaly challenge"))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, classify("ddg", resp.StatusCode, "")
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "ddg: parse results")
	}
	return parseDDG(doc), nil
}

func parseDDG(doc *goquery.Document) []model.SearchHit {
	var hits []model.SearchHit
	doc.Find(".result").Each(func(_ int, s *goquery.Selection) {
		a := s.Find("a.result__a").First()
		href, ok := a.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}
		hits = append(hits, model.SearchHit{
			Title:       strings.TrimSpace(a.Text()),
			Description: strings.Join(strings.Fields(s.Find(".result__snippet").Text()), " "),
			URL:         decodeDDGRedirect(href),
		})
	})
	return hits
}

// decodeDDGRedirect unwraps //duckduckgo.com/l/?uddg=<target> links.
func decodeDDGRedirect(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	if u.Scheme == "" && strings.HasPrefix(href, "//") {
		return "https:" + href
	}
	return href
}
