package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "file", cfg.Store.Driver)
	assert.Equal(t, "progress/enrichment_progress.json", cfg.Store.Path)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 15, cfg.Batch.Size)
	assert.Equal(t, 2*time.Second, cfg.Batch.Delay)
	assert.Equal(t, 30*time.Second, cfg.SearchTimeout())
	assert.Equal(t, 30*time.Second, cfg.ScrapeTimeout())
	assert.Equal(t, 3, cfg.Search.MaxRetries)
	assert.Equal(t, []string{"/contact", "/kontakt", "/about", "/over-ons"}, cfg.Scrape.ContactPaths)
	assert.Equal(t, []string{"jina", "ddg"}, cfg.Search.Providers)
	assert.Equal(t, []string{"local", "jina"}, cfg.Scrape.Fetchers)
	assert.Equal(t, "2006-01-02 - Companies Enriched.csv", cfg.Output.FileLayout)
	assert.Equal(t, "https://r.jina.ai", cfg.Jina.BaseURL)
	assert.Equal(t, "https://api.firecrawl.dev/v2", cfg.Firecrawl.BaseURL)
	assert.Equal(t, "https://login.salesforce.com", cfg.Salesforce.LoginURL)
	assert.Equal(t, "none", cfg.Normalize.Provider)
	assert.Equal(t, "info", cfg.Enrich.ProbablePrefix)
	assert.NotEmpty(t, cfg.Enrich.EmailExclusions)
	assert.NotEmpty(t, cfg.Enrich.WebsiteExclusions)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
  path: state/progress.db
log:
  level: debug
  format: console
batch:
  size: 5
  delay: 500ms
enrich:
  probable_prefix: contact
  priority_prefixes: [sales, info]
scrape:
  contact_paths: [/contact-us]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "state/progress.db", cfg.Store.Path)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 5, cfg.Batch.Size)
	assert.Equal(t, 500*time.Millisecond, cfg.Batch.Delay)
	assert.Equal(t, "contact", cfg.Enrich.ProbablePrefix)
	assert.Equal(t, []string{"sales", "info"}, cfg.Enrich.PriorityPrefixes)
	assert.Equal(t, []string{"/contact-us"}, cfg.Scrape.ContactPaths)
	// Defaults still apply for unset values
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.NotEmpty(t, cfg.Enrich.EmailExclusions)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store:\n  driver: sqlite\nlog:\n  level: debug\n"), 0644))

	t.Setenv("ENRICH_STORE_DRIVER", "postgres")
	t.Setenv("ENRICH_LOG_LEVEL", "warn")
	t.Setenv("ENRICH_JINA_KEY", "jina-env")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "jina-env", cfg.Jina.Key)
}

func TestLoadBadYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unclosed"), 0644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config that passes run validation.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "file"
	cfg.Store.Path = "progress.json"
	cfg.Batch.Size = 15
	cfg.Batch.Delay = 2 * time.Second
	cfg.Search.Providers = []string{"jina", "ddg"}
	cfg.Scrape.Fetchers = []string{"local"}
	cfg.Normalize.Provider = "none"
	cfg.Server.Port = 8080
	return cfg
}

func TestValidateRun_Defaults(t *testing.T) {
	assert.NoError(t, validDefaults().Validate(ModeRun))
}

func TestValidateRun_CollectsAllProblems(t *testing.T) {
	cfg := validDefaults()
	cfg.Batch.Size = 0
	cfg.Batch.Delay = -time.Second
	cfg.Search.Providers = []string{"places", "bing"}
	cfg.Scrape.Fetchers = []string{"firecrawl"}
	cfg.Normalize.Provider = "gemini"

	err := cfg.Validate(ModeRun)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch.size must be >= 1")
	assert.Contains(t, err.Error(), "batch.delay must not be negative")
	assert.Contains(t, err.Error(), "google.key is required")
	assert.Contains(t, err.Error(), `unknown search provider "bing"`)
	assert.Contains(t, err.Error(), "firecrawl.key is required")
	assert.Contains(t, err.Error(), "gemini.key is required")
}

func TestValidateStore(t *testing.T) {
	tests := []struct {
		name    string
		driver  string
		path    string
		url     string
		wantErr string
	}{
		{name: "file", driver: "file", path: "p.json"},
		{name: "sqlite", driver: "sqlite", path: "p.db"},
		{name: "postgres", driver: "postgres", url: "postgres://localhost/enrich"},
		{name: "postgres without url", driver: "postgres", wantErr: "store.database_url is required"},
		{name: "file without path", driver: "file", wantErr: "store.path is required"},
		{name: "unknown", driver: "redis", path: "x", wantErr: `unknown store driver "redis"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validDefaults()
			cfg.Store.Driver = tt.driver
			cfg.Store.Path = tt.path
			cfg.Store.DatabaseURL = tt.url
			err := cfg.Validate(ModeStatus)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateStatus_IgnoresRunSettings(t *testing.T) {
	cfg := validDefaults()
	cfg.Batch.Size = 0
	cfg.Normalize.Provider = "anthropic"
	assert.NoError(t, cfg.Validate(ModeStatus))
}

func TestValidateOutputs(t *testing.T) {
	cfg := validDefaults()
	cfg.Output.Notion = true
	cfg.Output.FTPURL = "sftp://host/out"
	cfg.Output.Salesforce = true

	err := cfg.Validate(ModeRun)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "output.notion needs input.notion_database")
	assert.Contains(t, err.Error(), "output.ftp_url must start with ftp://")
	assert.Contains(t, err.Error(), "salesforce.client_id")
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate(ModeServe)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateUnknownMode(t *testing.T) {
	err := validDefaults().Validate("bogus")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown validation mode")
}

func TestResolveSecrets_FillsOnlyEmpty(t *testing.T) {
	keyring.MockInit()
	require.NoError(t, keyring.Set(KeyringService, "jina", "jina-from-keychain"))
	require.NoError(t, keyring.Set(KeyringService, "google", "google-from-keychain"))

	cfg := validDefaults()
	cfg.Google.Key = "google-from-env"

	require.NoError(t, ResolveSecrets(cfg, keyring.Get))
	assert.Equal(t, "jina-from-keychain", cfg.Jina.Key)
	assert.Equal(t, "google-from-env", cfg.Google.Key)
	assert.Empty(t, cfg.Firecrawl.Key)
}

func TestResolveSecrets_KeychainUnavailable(t *testing.T) {
	keyring.MockInitWithError(assert.AnError)

	cfg := validDefaults()
	require.NoError(t, ResolveSecrets(cfg, nil))
	assert.Empty(t, cfg.Jina.Key)
}

func TestSetAndDeleteSecret(t *testing.T) {
	keyring.MockInit()

	require.NoError(t, SetSecret("anthropic", "sk-ant"))
	v, err := keyring.Get(KeyringService, "anthropic")
	require.NoError(t, err)
	assert.Equal(t, "sk-ant", v)

	require.NoError(t, DeleteSecret("anthropic"))
	_, err = keyring.Get(KeyringService, "anthropic")
	assert.ErrorIs(t, err, keyring.ErrNotFound)

	// Deleting again is a no-op.
	assert.NoError(t, DeleteSecret("anthropic"))

	assert.Error(t, SetSecret("openai", "x"))
	assert.Error(t, SetSecret("jina", ""))
}

func TestSecretProviders(t *testing.T) {
	assert.Equal(t, []string{"anthropic", "firecrawl", "gemini", "google", "jina", "notion"}, SecretProviders())
}
