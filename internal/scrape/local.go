package scrape

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
)

const blockElements = "br, p, div, li, tr, td, th, h1, h2, h3, h4, h5, h6, address, section, article, header, footer, a, dd, dt"

const (
	defaultUserAgent = "Mozilla/5.0 (compatible; enrichment-cli/1.0)"
	defaultMaxBody   = 2 << 20
)

// LocalOptions configures LocalFetcher.
type LocalOptions struct {
	UserAgent string
	Timeout   time.Duration
	MaxBody   int64
	Limiter   *HostLimiter
	Client    *http.Client
}

// LocalFetcher downloads pages directly and reduces them to text. Contact
// links (mailto:, tel:) are appended so extractors see addresses that only
// appear in hrefs.
type LocalFetcher struct {
	client    *http.Client
	userAgent string
	maxBody   int64
	limiter   *HostLimiter
}

// NewLocalFetcher creates a LocalFetcher.
func NewLocalFetcher(opts LocalOptions) *LocalFetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.MaxBody <= 0 {
		opts.MaxBody = defaultMaxBody
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				DialContext:         (&net.Dialer{Timeout: 10 * time.Second}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     60 * time.Second,
			},
		}
	}
	return &LocalFetcher{client: client, userAgent: opts.UserAgent, maxBody: opts.MaxBody, limiter: opts.Limiter}
}

// Name implements Fetcher.
func (l *LocalFetcher) Name() string { return "local" }

// Fetch implements Fetcher.
func (l *LocalFetcher) Fetch(ctx context.Context, target string) (string, error) {
	if err := l.limiter.Wait(ctx, target); err != nil {
		return "", eris.Wrap(err, "local: rate limit")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", eris.Wrap(err, "local: create request")
	}
	req.Header.Set("User-Agent", l.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "nl,en;q=0.8")

	resp, err := l.client.Do(req)
	if err != nil {
		return "", eris.Wrapf(err, "local: fetch %s", target)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, l.maxBody))
	if err != nil {
		return "", eris.Wrap(err, "local: read body")
	}

	if block := DetectBlock(resp, body); block != BlockNone {
		return "", eris.Errorf("local: %s blocked (%s)", target, block)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		l.limiter.Backoff(target)
	}
	if resp.StatusCode >= 400 {
		return "", classify("local", resp.StatusCode, "")
	}

	return PageText(body)
}

// PageText reduces an HTML document to whitespace-collapsed visible text,
// followed by the targets of any mailto: and tel: links. Footers are kept
// because that is where contact details usually live.
func PageText(html []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return "", eris.Wrap(err, "local: parse html")
	}
	doc.Find("script, style, noscript, svg, template").Remove()
	// Text() concatenates adjacent nodes; separate block boundaries first.
	doc.Find(blockElements).AfterHtml(" ")

	var links []string
	seen := map[string]bool{}
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		lower := strings.ToLower(href)
		var v string
		switch {
		case strings.HasPrefix(lower, "mailto:"):
			v = href[len("mailto:"):]
		case strings.HasPrefix(lower, "tel:"):
			v = href[len("tel:"):]
		default:
			return
		}
		if i := strings.IndexByte(v, '?'); i >= 0 {
			v = v[:i]
		}
		if v != "" && !seen[v] {
			seen[v] = true
			links = append(links, v)
		}
	})

	var b strings.Builder
	b.WriteString(strings.Join(strings.Fields(doc.Find("body").Text()), " "))
	if b.Len() == 0 {
		b.WriteString(strings.Join(strings.Fields(doc.Text()), " "))
	}
	for _, l := range links {
		b.WriteString("\n")
		b.WriteString(l)
	}
	return strings.TrimSpace(b.String()), nil
}
