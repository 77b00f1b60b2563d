package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
)

// Validation modes.
const (
	// ModeRun checks everything an enrichment run touches.
	ModeRun = "run"
	// ModeStatus only needs the progress store.
	ModeStatus = "status"
	// ModeServe is a run plus the HTTP listener.
	ModeServe = "serve"
)

// Known provider names.
var (
	SearchProviders = []string{"jina", "ddg", "places"}
	FetchProviders  = []string{"local", "jina", "firecrawl"}
)

// Validate reports every configuration problem for mode in one error,
// before any work begins.
func (c *Config) Validate(mode string) error {
	var errs []string
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	switch mode {
	case ModeRun, ModeStatus, ModeServe:
	default:
		return eris.Errorf("config: unknown validation mode %q", mode)
	}

	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			add("store.database_url is required for the postgres driver")
		}
	case "file", "sqlite":
		if c.Store.Path == "" {
			add("store.path is required for the %s driver", c.Store.Driver)
		}
	default:
		add("unknown store driver %q", c.Store.Driver)
	}

	if mode != ModeStatus {
		c.validateRun(add)
	}
	if mode == ModeServe && c.Server.Port <= 0 {
		add("server.port must be > 0")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: invalid for %s: %s", mode, strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateRun(add func(string, ...any)) {
	if c.Batch.Size < 1 {
		add("batch.size must be >= 1, got %d", c.Batch.Size)
	}
	if c.Batch.Delay < 0 {
		add("batch.delay must not be negative, got %s", c.Batch.Delay)
	}

	if len(c.Search.Providers) == 0 && len(c.Scrape.Fetchers) == 0 {
		add("no search providers or fetchers configured")
	}
	for _, p := range c.Search.Providers {
		if !slices.Contains(SearchProviders, p) {
			add("unknown search provider %q", p)
		}
		if p == "places" && c.Google.Key == "" {
			add("google.key is required for the places provider")
		}
	}
	for _, f := range c.Scrape.Fetchers {
		if !slices.Contains(FetchProviders, f) {
			add("unknown fetcher %q", f)
		}
		if f == "firecrawl" && c.Firecrawl.Key == "" {
			add("firecrawl.key is required for the firecrawl fetcher")
		}
	}

	switch c.Normalize.Provider {
	case "none", "":
	case "anthropic":
		if c.Anthropic.Key == "" {
			add("anthropic.key is required for anthropic normalization")
		}
	case "gemini":
		if c.Gemini.Key == "" {
			add("gemini.key is required for gemini normalization")
		}
	default:
		add("unknown normalize provider %q", c.Normalize.Provider)
	}

	if c.Input.NotionDatabase != "" && c.Notion.Token == "" {
		add("notion.token is required for a notion input")
	}
	if c.Output.Notion && c.Input.NotionDatabase == "" {
		add("output.notion needs input.notion_database")
	}
	if c.Output.FTPURL != "" && !strings.HasPrefix(c.Output.FTPURL, "ftp://") {
		add("output.ftp_url must start with ftp://")
	}
	if c.Output.Salesforce {
		sf := c.Salesforce
		if sf.ClientID == "" || sf.Username == "" || sf.KeyPath == "" {
			add("salesforce.client_id, salesforce.username and salesforce.key_path are required for salesforce output")
		}
	}
}
