package main

import (
	"context"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/enrichment-cli/internal/export"
	"github.com/sells-group/enrichment-cli/internal/input"
	"github.com/sells-group/enrichment-cli/internal/normalize"
	"github.com/sells-group/enrichment-cli/internal/progress"
	"github.com/sells-group/enrichment-cli/internal/remote"
	"github.com/sells-group/enrichment-cli/internal/resilience"
	"github.com/sells-group/enrichment-cli/internal/scheduler"
	"github.com/sells-group/enrichment-cli/internal/scrape"
	"github.com/sells-group/enrichment-cli/internal/service"
	"github.com/sells-group/enrichment-cli/internal/waterfall"
	"github.com/sells-group/enrichment-cli/pkg/firecrawl"
	"github.com/sells-group/enrichment-cli/pkg/google"
	"github.com/sells-group/enrichment-cli/pkg/jina"
	"github.com/sells-group/enrichment-cli/pkg/notion"
	"github.com/sells-group/enrichment-cli/pkg/salesforce"
)

// enrichEnv holds everything the enrich and serve commands share.
type enrichEnv struct {
	Persister progress.Persister
	Store     *progress.Tracker
	Service   *service.Service
	Registry  *prometheus.Registry
}

// Close releases the progress store and its lock.
func (e *enrichEnv) Close() {
	if e.Persister != nil {
		if err := e.Persister.Close(); err != nil {
			zap.L().Warn("close progress store", zap.Error(err))
		}
	}
}

// initEnv validates cfg for mode and builds the service with every
// configured provider and sink. Callers should defer env.Close().
func initEnv(ctx context.Context, mode string) (*enrichEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	src, places := buildSource()
	wfCfg, err := waterfall.LoadConfig(cfg.Waterfall.Path)
	if err != nil {
		return nil, err
	}
	set, err := waterfall.Build(wfCfg, waterfall.Deps{
		Source:          src,
		Places:          places,
		Policy:          cfg.Enrich,
		ContactPaths:    cfg.Scrape.ContactPaths,
		PageConcurrency: cfg.Scrape.PageConcurrency,
	})
	if err != nil {
		return nil, err
	}

	normalizer, err := buildNormalizer(ctx)
	if err != nil {
		return nil, err
	}

	var notionClient notion.Client
	if cfg.Notion.Token != "" {
		notionClient = notion.NewClient(cfg.Notion.Token, notion.WithRateLimit(cfg.Notion.RateLimit))
	}
	ftpClient := remote.NewClient(remote.DefaultTimeout)

	sinks, err := buildSinks(notionClient, ftpClient)
	if err != nil {
		return nil, err
	}

	p, err := openPersister(ctx, false)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	tracker := progress.NewTracker(p)

	svc := service.New(service.Deps{
		Store:      tracker,
		Waterfalls: set,
		Metrics:    scheduler.NewMetrics(reg),
		Input: input.Options{
			Path:           cfg.Input.Path,
			Sheet:          cfg.Input.Sheet,
			NameColumn:     cfg.Input.NameColumn,
			NotionDatabase: cfg.Input.NotionDatabase,
			Notion:         notionClient,
			NotionProps: input.NotionProperties{
				Name:    cfg.Notion.NameProperty,
				Website: cfg.Notion.WebsiteProperty,
				Email:   cfg.Notion.EmailProperty,
				Phone:   cfg.Notion.PhoneProperty,
			},
			FTP: ftpClient,
		},
		Normalizer: normalizer,
		Sinks:      sinks,
		Policy:     cfg.Enrich,
		BatchSize:  cfg.Batch.Size,
		BatchDelay: cfg.Batch.Delay,
	})

	zap.L().Info("enrichment environment ready",
		zap.String("store", cfg.Store.Driver),
		zap.Strings("searchers", cfg.Search.Providers),
		zap.Strings("fetchers", cfg.Scrape.Fetchers),
		zap.Strings("email_methods", wfCfg.Email),
		zap.Strings("website_methods", wfCfg.Website),
		zap.Strings("phone_methods", wfCfg.Phone),
		zap.Int("sinks", len(sinks)),
	)

	return &enrichEnv{Persister: p, Store: tracker, Service: svc, Registry: reg}, nil
}

// openPersister opens the configured store. A read-only file store takes
// no lock so status works while a run is active.
func openPersister(ctx context.Context, readOnly bool) (progress.Persister, error) {
	p, err := progress.Open(ctx, progress.Options{
		Driver:      cfg.Store.Driver,
		Path:        cfg.Store.Path,
		DatabaseURL: cfg.Store.DatabaseURL,
		Pool:        progress.PoolConfig{MaxConns: cfg.Store.MaxConns, MinConns: cfg.Store.MinConns},
		ReadOnly:    readOnly,
	})
	if err != nil {
		return nil, eris.Wrap(err, "open progress store")
	}
	return p, nil
}

// buildSource assembles the search and fetch chain in configured order.
// The Places lookup is returned separately for the places_* methods and is
// nil without a Google key.
func buildSource() (*scrape.Adapter, *scrape.Places) {
	backoff := resilience.DefaultBackoff()
	if cfg.Search.MaxRetries > 0 {
		backoff.Attempts = cfg.Search.MaxRetries
	}
	breaker := resilience.DefaultBreakerConfig()
	limiter := scrape.NewHostLimiter(cfg.Scrape.HostRPS, cfg.Scrape.HostBurst)

	jinaOpts := []jina.Option{}
	if cfg.Jina.BaseURL != "" {
		jinaOpts = append(jinaOpts, jina.WithBaseURL(cfg.Jina.BaseURL))
	}
	if cfg.Jina.SearchBaseURL != "" {
		jinaOpts = append(jinaOpts, jina.WithSearchBaseURL(cfg.Jina.SearchBaseURL))
	}
	jinaClient := jina.NewClient(cfg.Jina.Key, jinaOpts...)

	var places *scrape.Places
	if cfg.Google.Key != "" {
		gOpts := []google.Option{google.WithRegion(cfg.Google.Region)}
		if cfg.Google.BaseURL != "" {
			gOpts = append(gOpts, google.WithBaseURL(cfg.Google.BaseURL))
		}
		places = scrape.NewPlaces(google.NewClient(cfg.Google.Key, gOpts...), backoff, breaker)
	} else {
		zap.L().Debug("ENRICH_GOOGLE_KEY not set, Places lookups disabled")
	}

	var searchers []scrape.Searcher
	for _, name := range cfg.Search.Providers {
		switch name {
		case "jina":
			searchers = append(searchers, scrape.NewJinaSearcher(jinaClient, backoff, breaker))
		case "ddg":
			searchers = append(searchers, scrape.NewDDGSearcher(cfg.Scrape.UserAgent, backoff, breaker, scrape.WithDDGLimiter(limiter)))
		case "places":
			if places != nil {
				searchers = append(searchers, places)
			}
		}
	}

	var fetchers []scrape.Fetcher
	for _, name := range cfg.Scrape.Fetchers {
		switch name {
		case "local":
			fetchers = append(fetchers, scrape.NewLocalFetcher(scrape.LocalOptions{
				UserAgent: cfg.Scrape.UserAgent,
				Timeout:   cfg.ScrapeTimeout(),
				MaxBody:   cfg.Scrape.MaxBodyBytes,
				Limiter:   limiter,
			}))
		case "jina":
			fetchers = append(fetchers, scrape.NewJinaFetcher(jinaClient, backoff, breaker))
		case "firecrawl":
			var fcOpts []firecrawl.Option
			if cfg.Firecrawl.BaseURL != "" {
				fcOpts = append(fcOpts, firecrawl.WithBaseURL(cfg.Firecrawl.BaseURL))
			}
			fetchers = append(fetchers, scrape.NewFirecrawlFetcher(firecrawl.NewClient(cfg.Firecrawl.Key, fcOpts...), backoff))
		}
	}

	return scrape.NewAdapter(searchers, fetchers, cfg.SearchTimeout(), cfg.ScrapeTimeout()), places
}

func buildNormalizer(ctx context.Context) (normalize.Normalizer, error) {
	opts := normalize.Options{
		Columns:   cfg.Normalize.Columns,
		ChunkSize: cfg.Normalize.ChunkSize,
		Backoff:   resilience.DefaultBackoff(),
	}
	switch cfg.Normalize.Provider {
	case "anthropic":
		return normalize.NewAnthropic(normalize.AnthropicConfig{APIKey: cfg.Anthropic.Key, Model: cfg.Anthropic.Model, Options: opts})
	case "gemini":
		return normalize.NewGemini(ctx, normalize.GeminiConfig{APIKey: cfg.Gemini.Key, Model: cfg.Gemini.Model, Options: opts})
	default:
		return normalize.Noop{}, nil
	}
}

// buildSinks returns the export sinks in the order they must run: local
// files first so the FTP sink can upload them.
func buildSinks(notionClient notion.Client, ftpClient *remote.Client) ([]export.Sink, error) {
	sinks := []export.Sink{&export.CSVSink{Dir: cfg.Output.Dir, Layout: cfg.Output.FileLayout}}
	if cfg.Output.XLSX {
		sinks = append(sinks, &export.XLSXSink{Dir: cfg.Output.Dir, Layout: cfg.Output.FileLayout})
	}
	if cfg.Output.FTPURL != "" {
		sinks = append(sinks, &export.FTPSink{URL: cfg.Output.FTPURL, Uploader: ftpClient})
	}
	if cfg.Output.Notion && notionClient != nil {
		sinks = append(sinks, &export.NotionSink{Client: notionClient, Props: notion.ContactProperties{
			Website: cfg.Notion.WebsiteProperty,
			Email:   cfg.Notion.EmailProperty,
			Phone:   cfg.Notion.PhoneProperty,
		}})
	}
	if cfg.Output.Salesforce {
		sf, err := initSalesforce()
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, &export.SalesforceSink{Client: sf})
	}
	return sinks, nil
}

func initSalesforce() (salesforce.Client, error) {
	key, err := os.ReadFile(cfg.Salesforce.KeyPath)
	if err != nil {
		return nil, eris.Wrap(err, "read salesforce key")
	}
	client, err := salesforce.Connect(salesforce.Creds{
		LoginURL:   cfg.Salesforce.LoginURL,
		Username:   cfg.Salesforce.Username,
		ClientID:   cfg.Salesforce.ClientID,
		PrivateKey: string(key),
	}, salesforce.WithRateLimit(cfg.Salesforce.RateLimit))
	if err != nil {
		return nil, eris.Wrap(err, "connect salesforce")
	}
	return client, nil
}
