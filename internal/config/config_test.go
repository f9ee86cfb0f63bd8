package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
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

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "redis", cfg.Staging.Driver)
	assert.Zero(t, cfg.Staging.TTLHours)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 1350, cfg.Browser.ViewportWidth)
	assert.Equal(t, 750, cfg.Browser.ViewportHeight)
	assert.Equal(t, "en", cfg.Browser.Language)
	assert.Equal(t, 30, cfg.Crawl.MaxRequestsPerCrawl)
	assert.Equal(t, 3, cfg.Crawl.MaxRequestRetries)
	assert.Equal(t, 10, cfg.Crawl.MaxRequestsPerMinute)
	assert.Equal(t, 3, cfg.Crawl.ProbeMaxRequests)
	assert.Equal(t, 2000, cfg.Extract.FrameWaitMs)
	assert.Equal(t, "https://adstransparency.google.com", cfg.Site.BaseURL)
	assert.Equal(t, "adcrawl", cfg.Temporal.TaskQueue)
	assert.Equal(t, "localhost:7233", cfg.Temporal.HostPort)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, 300, cfg.Monitoring.CheckIntervalSecs)
	assert.Equal(t, 24, cfg.Monitoring.LookbackWindowHours)
	assert.InDelta(t, 0.25, cfg.Monitoring.FailureRateThreshold, 1e-9)
	assert.Empty(t, cfg.Monitoring.WebhookURL)
	assert.Equal(t, 60, cfg.Monitoring.AlertCooldownMins)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
  database_url: adcrawl.db
staging:
  driver: sqlite
  ttl_hours: 48
browser:
  flags:
    lang: de-DE
crawl:
  max_requests_per_crawl: 100
log:
  level: debug
  format: console
server:
  port: 9090
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "sqlite", cfg.Staging.Driver)
	assert.Equal(t, 48*time.Hour, cfg.Staging.TTL())
	assert.Equal(t, "de-DE", cfg.Browser.Flags["lang"])
	assert.Equal(t, 100, cfg.Crawl.MaxRequestsPerCrawl)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	// Defaults still apply for unset values
	assert.Equal(t, 3, cfg.Crawl.MaxRequestRetries)
}

func TestLoadFile_ExplicitPath(t *testing.T) {
	chdirTemp(t)
	path := filepath.Join(t.TempDir(), "prod.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  driver: sqlite\ncrawl:\n  max_concurrency: 4\n"), 0644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, 4, cfg.Crawl.MaxConcurrency)
	assert.Equal(t, 30, cfg.Crawl.MaxRequestsPerCrawl)
}

func TestLoadFile_MissingExplicitPath(t *testing.T) {
	chdirTemp(t)
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("ADCRAWL_STORE_DRIVER", "postgres")
	t.Setenv("ADCRAWL_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("ADCRAWL_SERVER_PORT", "8081")
	t.Setenv("ADCRAWL_WEBHOOK_TOKEN", "secret")
	t.Setenv("ADCRAWL_TEMPORAL_TASK_QUEUE", "ads")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, "secret", cfg.Webhook.Token)
	assert.Equal(t, "ads", cfg.Temporal.TaskQueue)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [\n"), 0644))

	_, err := Load()
	assert.Error(t, err)
}

func TestCrawlerConfig(t *testing.T) {
	chdirTemp(t)
	cfg, err := Load()
	require.NoError(t, err)

	cc := cfg.CrawlerConfig()
	assert.Equal(t, 30, cc.MaxRequestsPerCrawl)
	assert.Equal(t, 3*time.Minute, cc.RequestTimeout)
	assert.Equal(t, 2*time.Second, cc.RetryBackoff)
	assert.Equal(t, 5*time.Minute, cc.BlockCooldown)

	assert.Equal(t, 3, cfg.ProbeConfig().MaxRequestsPerCrawl)
}

func TestRouterAndAssemblerConfig(t *testing.T) {
	cfg := &Config{}
	cfg.Site.BaseURL = "https://ads.test"
	cfg.Extract.FrameWaitMs = 500
	cfg.Extract.ThumbnailWaitMs = 100
	cfg.Extract.VideoSettleMs = 0
	cfg.Extract.SanitizeHTML = true

	rc := cfg.RouterConfig()
	assert.Equal(t, "https://ads.test", rc.BaseURL)
	assert.Equal(t, 500*time.Millisecond, rc.FrameWait)
	assert.Equal(t, 100*time.Millisecond, rc.ThumbnailWait)
	assert.Equal(t, 30*time.Second, rc.ElementTimeout)

	ac := cfg.AssemblerConfig()
	assert.Equal(t, 500*time.Millisecond, ac.FrameWait)
	assert.Zero(t, ac.VideoSettle)
	assert.True(t, ac.SanitizeHTML)
}

func TestBrowserManagerConfig(t *testing.T) {
	cfg := &Config{}
	cfg.Browser.Headless = true
	cfg.Browser.Flags = map[string]string{"autoplay-policy": "user-gesture-required", "lang": "en-US"}

	bc := cfg.BrowserManagerConfig()
	assert.True(t, bc.Headless)
	assert.Equal(t, "user-gesture-required", bc.Flags["autoplay-policy"])
	assert.Equal(t, "en-US", bc.Flags["lang"])
	assert.Equal(t, "AutomationControlled", bc.Flags["disable-blink-features"])
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

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "postgres"
	cfg.Store.DatabaseURL = "postgres://localhost/adcrawl"
	cfg.Staging.Driver = "redis"
	cfg.Staging.RedisURL = "redis://localhost:6379/0"
	cfg.Crawl.MaxRequestsPerCrawl = 30
	cfg.Crawl.MaxRequestRetries = 3
	cfg.Crawl.MaxConcurrency = 2
	cfg.Temporal.HostPort = "localhost:7233"
	cfg.Temporal.TaskQueue = "adcrawl"
	cfg.Server.Port = 3000
	return cfg
}

func TestValidate_AllModes(t *testing.T) {
	cfg := validDefaults()
	for _, mode := range []string{"crawl", "serve", "worker", "jobs", "store"} {
		assert.NoError(t, cfg.Validate(mode), mode)
	}
}

func TestValidate_MissingStore(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.DatabaseURL = ""

	err := cfg.Validate("crawl")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")

	cfg.Store.Driver = "sqlite"
	assert.NoError(t, cfg.Validate("crawl"))

	cfg.Store.Driver = "mysql"
	err = cfg.Validate("store")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver")
}

func TestValidate_Staging(t *testing.T) {
	cfg := validDefaults()
	cfg.Staging.Driver = "sqlite"
	err := cfg.Validate("crawl")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "staging.sqlite_path is required")

	cfg.Staging.Driver = "memcached"
	err = cfg.Validate("crawl")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "staging.driver")

	// jobs mode never stages
	assert.NoError(t, cfg.Validate("jobs"))
}

func TestValidate_CrawlBounds(t *testing.T) {
	cfg := validDefaults()
	cfg.Crawl.MaxConcurrency = 0
	err := cfg.Validate("crawl")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_concurrency must be between 1 and 16")

	cfg.Crawl.MaxConcurrency = 2
	cfg.Crawl.MaxRequestsPerCrawl = 0
	cfg.Crawl.MaxRequestRetries = -1
	err = cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_requests_per_crawl")
	assert.Contains(t, err.Error(), "max_request_retries")
}

func TestValidate_WorkerNeedsTemporal(t *testing.T) {
	cfg := validDefaults()
	cfg.Temporal.HostPort = ""
	assert.NoError(t, cfg.Validate("crawl"))

	err := cfg.Validate("worker")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "temporal.host_port is required")
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
