package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/enrichment-cli/internal/extract"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Input      InputConfig      `yaml:"input" mapstructure:"input"`
	Output     OutputConfig     `yaml:"output" mapstructure:"output"`
	Jina       JinaConfig       `yaml:"jina" mapstructure:"jina"`
	Firecrawl  FirecrawlConfig  `yaml:"firecrawl" mapstructure:"firecrawl"`
	Google     GoogleConfig     `yaml:"google" mapstructure:"google"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Gemini     GeminiConfig     `yaml:"gemini" mapstructure:"gemini"`
	Notion     NotionConfig     `yaml:"notion" mapstructure:"notion"`
	Salesforce SalesforceConfig `yaml:"salesforce" mapstructure:"salesforce"`
	Search     SearchConfig     `yaml:"search" mapstructure:"search"`
	Scrape     ScrapeConfig     `yaml:"scrape" mapstructure:"scrape"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Enrich     extract.Policy   `yaml:"enrich" mapstructure:"enrich"`
	Waterfall  WaterfallConfig  `yaml:"waterfall" mapstructure:"waterfall"`
	Normalize  NormalizeConfig  `yaml:"normalize" mapstructure:"normalize"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig selects the progress store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// InputConfig locates the company list.
type InputConfig struct {
	Path           string `yaml:"path" mapstructure:"path"`
	Sheet          string `yaml:"sheet" mapstructure:"sheet"`
	NotionDatabase string `yaml:"notion_database" mapstructure:"notion_database"`
	NameColumn     string `yaml:"name_column" mapstructure:"name_column"`
}

// OutputConfig controls where merged results go.
type OutputConfig struct {
	Dir        string `yaml:"dir" mapstructure:"dir"`
	FileLayout string `yaml:"file_layout" mapstructure:"file_layout"`
	XLSX       bool   `yaml:"xlsx" mapstructure:"xlsx"`
	FTPURL     string `yaml:"ftp_url" mapstructure:"ftp_url"`
	Notion     bool   `yaml:"notion" mapstructure:"notion"`
	Salesforce bool   `yaml:"salesforce" mapstructure:"salesforce"`
}

// JinaConfig holds Jina reader and search settings. The key is optional.
type JinaConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	BaseURL       string `yaml:"base_url" mapstructure:"base_url"`
	SearchBaseURL string `yaml:"search_base_url" mapstructure:"search_base_url"`
}

// FirecrawlConfig holds Firecrawl scrape settings.
type FirecrawlConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// GoogleConfig holds Places API settings.
type GoogleConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Region  string `yaml:"region" mapstructure:"region"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// GeminiConfig holds Gemini API settings.
type GeminiConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// NotionConfig holds the integration token and the property names used
// when reading and writing a company database.
type NotionConfig struct {
	Token           string  `yaml:"token" mapstructure:"token"`
	RateLimit       float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	NameProperty    string  `yaml:"name_property" mapstructure:"name_property"`
	WebsiteProperty string  `yaml:"website_property" mapstructure:"website_property"`
	EmailProperty   string  `yaml:"email_property" mapstructure:"email_property"`
	PhoneProperty   string  `yaml:"phone_property" mapstructure:"phone_property"`
}

// SalesforceConfig holds Salesforce JWT auth settings.
type SalesforceConfig struct {
	ClientID  string  `yaml:"client_id" mapstructure:"client_id"`
	Username  string  `yaml:"username" mapstructure:"username"`
	KeyPath   string  `yaml:"key_path" mapstructure:"key_path"`
	LoginURL  string  `yaml:"login_url" mapstructure:"login_url"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// SearchConfig orders the search providers.
type SearchConfig struct {
	Providers   []string `yaml:"providers" mapstructure:"providers"`
	TimeoutSecs int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int      `yaml:"max_retries" mapstructure:"max_retries"`
}

// ScrapeConfig orders the fetchers and tunes the local one.
type ScrapeConfig struct {
	Fetchers        []string `yaml:"fetchers" mapstructure:"fetchers"`
	TimeoutSecs     int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	ContactPaths    []string `yaml:"contact_paths" mapstructure:"contact_paths"`
	UserAgent       string   `yaml:"user_agent" mapstructure:"user_agent"`
	MaxBodyBytes    int64    `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	HostRPS         float64  `yaml:"host_rps" mapstructure:"host_rps"`
	HostBurst       int      `yaml:"host_burst" mapstructure:"host_burst"`
	PageConcurrency int      `yaml:"page_concurrency" mapstructure:"page_concurrency"`
}

// BatchConfig sets batch size and the pause between batches.
type BatchConfig struct {
	Size  int           `yaml:"size" mapstructure:"size"`
	Delay time.Duration `yaml:"delay" mapstructure:"delay"`
}

// WaterfallConfig points at the method-order document.
type WaterfallConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// NormalizeConfig configures the optional text cleanup pass on output.
type NormalizeConfig struct {
	Provider  string   `yaml:"provider" mapstructure:"provider"`
	Columns   []string `yaml:"columns" mapstructure:"columns"`
	ChunkSize int      `yaml:"chunk_size" mapstructure:"chunk_size"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from config.yaml (optional) and ENRICH_* env vars.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("ENRICH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	cfg.Enrich = cfg.Enrich.WithDefaults()
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", "file")
	v.SetDefault("store.path", "progress/enrichment_progress.json")
	v.SetDefault("input.name_column", "Name")
	v.SetDefault("output.dir", "output")
	v.SetDefault("output.file_layout", "2006-01-02 - Companies Enriched.csv")
	v.SetDefault("jina.base_url", "https://r.jina.ai")
	v.SetDefault("jina.search_base_url", "https://s.jina.ai")
	v.SetDefault("firecrawl.base_url", "https://api.firecrawl.dev/v2")
	v.SetDefault("google.region", "NL")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("gemini.model", "gemini-2.5-flash")
	v.SetDefault("notion.rate_limit", 3)
	v.SetDefault("notion.name_property", "Name")
	v.SetDefault("notion.website_property", "Website")
	v.SetDefault("notion.email_property", "Email")
	v.SetDefault("notion.phone_property", "Phone")
	v.SetDefault("salesforce.login_url", "https://login.salesforce.com")
	v.SetDefault("salesforce.rate_limit", 5)
	v.SetDefault("search.providers", []string{"jina", "ddg"})
	v.SetDefault("search.timeout_secs", 30)
	v.SetDefault("search.max_retries", 3)
	v.SetDefault("scrape.fetchers", []string{"local", "jina"})
	v.SetDefault("scrape.timeout_secs", 30)
	v.SetDefault("scrape.contact_paths", []string{"/contact", "/kontakt", "/about", "/over-ons"})
	v.SetDefault("scrape.user_agent", "Mozilla/5.0 (compatible; enrichment-cli/1.0)")
	v.SetDefault("scrape.max_body_bytes", 2<<20)
	v.SetDefault("scrape.host_rps", 2)
	v.SetDefault("scrape.host_burst", 2)
	v.SetDefault("scrape.page_concurrency", 3)
	v.SetDefault("batch.size", 15)
	v.SetDefault("batch.delay", "2s")
	v.SetDefault("waterfall.path", "waterfall.yaml")
	v.SetDefault("normalize.provider", "none")
	v.SetDefault("normalize.columns", []string{"Name"})
	v.SetDefault("normalize.chunk_size", 50)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Registered so ENRICH_* env vars reach Unmarshal without a file entry.
	for _, k := range []string{
		"store.database_url", "input.path", "input.notion_database", "output.ftp_url",
		"jina.key", "firecrawl.key", "google.key", "google.base_url",
		"anthropic.key", "gemini.key", "notion.token",
		"salesforce.client_id", "salesforce.username", "salesforce.key_path",
	} {
		v.SetDefault(k, "")
	}
}

// SearchTimeout returns the per-call search timeout.
func (c *Config) SearchTimeout() time.Duration {
	return time.Duration(c.Search.TimeoutSecs) * time.Second
}

// ScrapeTimeout returns the per-call fetch timeout.
func (c *Config) ScrapeTimeout() time.Duration {
	return time.Duration(c.Scrape.TimeoutSecs) * time.Second
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)
	return nil
}
