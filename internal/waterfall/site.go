package waterfall

import (
	"context"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/enrichment-cli/internal/extract"
	"github.com/sells-group/enrichment-cli/internal/scrape"
)

const defaultPageConcurrency = 3

// pageURLs returns the homepage followed by each contact path joined to the
// site root, deduplicated.
func pageURLs(website string, paths []string) []string {
	home := extract.NormalizeURL(website)
	u, err := url.Parse(home)
	if err != nil || u.Host == "" {
		return nil
	}
	root := u.Scheme + "://" + u.Host

	seen := map[string]bool{strings.TrimRight(home, "/"): true}
	out := []string{home}
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		full := root + "/" + strings.TrimLeft(p, "/")
		key := strings.TrimRight(full, "/")
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, full)
	}
	return out
}

// fetchPages fetches urls with bounded concurrency and returns their text in
// url order. A page that fails is an empty entry; the error is returned
// only when every page failed.
func fetchPages(ctx context.Context, src scrape.Source, urls []string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = defaultPageConcurrency
	}
	texts := make([]string, len(urls))
	errs := make([]error, len(urls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, u := range urls {
		g.Go(func() error {
			text, err := src.Fetch(gctx, u)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				zap.L().Debug("waterfall: page fetch failed", zap.String("url", u), zap.Error(err))
				errs[i] = err
				return nil
			}
			texts[i] = text
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	failed := 0
	for _, err := range errs {
		if err != nil {
			failed++
		}
	}
	if failed > 0 && failed == len(urls) {
		return nil, eris.Wrapf(errs[0], "all %d pages failed", failed)
	}
	return texts, nil
}
