package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/adcrawl/internal/browser/rodbrowser"
	"github.com/sells-group/adcrawl/internal/crawler"
	"github.com/sells-group/adcrawl/internal/jobs"
	"github.com/sells-group/adcrawl/internal/media"
	"github.com/sells-group/adcrawl/internal/router"
	"github.com/sells-group/adcrawl/internal/staging"
	"github.com/sells-group/adcrawl/internal/store"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Staging    staging.Config   `yaml:"staging" mapstructure:"staging"`
	Browser    BrowserConfig    `yaml:"browser" mapstructure:"browser"`
	Crawl      CrawlConfig      `yaml:"crawl" mapstructure:"crawl"`
	Extract    ExtractConfig    `yaml:"extract" mapstructure:"extract"`
	Site       SiteConfig       `yaml:"site" mapstructure:"site"`
	Webhook    WebhookConfig    `yaml:"webhook" mapstructure:"webhook"`
	Temporal   jobs.Config      `yaml:"temporal" mapstructure:"temporal"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string           `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string           `yaml:"database_url" mapstructure:"database_url"`
	Pool        store.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// BrowserConfig configures Chrome.
type BrowserConfig struct {
	RemoteURL      string            `yaml:"remote_url" mapstructure:"remote_url"`
	Headless       bool              `yaml:"headless" mapstructure:"headless"`
	Stealth        bool              `yaml:"stealth" mapstructure:"stealth"`
	ViewportWidth  int               `yaml:"viewport_width" mapstructure:"viewport_width"`
	ViewportHeight int               `yaml:"viewport_height" mapstructure:"viewport_height"`
	Language       string            `yaml:"language" mapstructure:"language"`
	Flags          map[string]string `yaml:"flags" mapstructure:"flags"`
}

// CrawlConfig bounds each crawl run.
type CrawlConfig struct {
	MaxRequestsPerCrawl  int `yaml:"max_requests_per_crawl" mapstructure:"max_requests_per_crawl"`
	MaxRequestRetries    int `yaml:"max_request_retries" mapstructure:"max_request_retries"`
	MaxRequestsPerMinute int `yaml:"max_requests_per_minute" mapstructure:"max_requests_per_minute"`
	MaxConcurrency       int `yaml:"max_concurrency" mapstructure:"max_concurrency"`
	RequestTimeoutSecs   int `yaml:"request_timeout_secs" mapstructure:"request_timeout_secs"`
	RetryBackoffMs       int `yaml:"retry_backoff_ms" mapstructure:"retry_backoff_ms"`
	BlockThreshold       int `yaml:"block_threshold" mapstructure:"block_threshold"`
	BlockCooldownSecs    int `yaml:"block_cooldown_secs" mapstructure:"block_cooldown_secs"`
	// ProbeMaxRequests caps single-URL crawls from the API.
	ProbeMaxRequests int `yaml:"probe_max_requests" mapstructure:"probe_max_requests"`
}

// ExtractConfig configures page waits and variant capture.
type ExtractConfig struct {
	FrameWaitMs       int    `yaml:"frame_wait_ms" mapstructure:"frame_wait_ms"`
	ThumbnailWaitMs   int    `yaml:"thumbnail_wait_ms" mapstructure:"thumbnail_wait_ms"`
	VideoSettleMs     int    `yaml:"video_settle_ms" mapstructure:"video_settle_ms"`
	ElementTimeoutSec int    `yaml:"element_timeout_secs" mapstructure:"element_timeout_secs"`
	SanitizeHTML      bool   `yaml:"sanitize_html" mapstructure:"sanitize_html"`
	SelectorsPath     string `yaml:"selectors_path" mapstructure:"selectors_path"`
}

// SiteConfig points at the transparency site.
type SiteConfig struct {
	BaseURL         string `yaml:"base_url" mapstructure:"base_url"`
	ListingAPIMatch string `yaml:"listing_api_match" mapstructure:"listing_api_match"`
}

// WebhookConfig holds the webhook bearer token.
type WebhookConfig struct {
	Token string `yaml:"token" mapstructure:"token"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// MonitoringConfig configures crawl health alerting. Alerts are only sent
// when WebhookURL is set. An alert type is repeated at most once per
// AlertCooldownMins.
type MonitoringConfig struct {
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	AlertCooldownMins    int     `yaml:"alert_cooldown_mins" mapstructure:"alert_cooldown_mins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load reading an explicit config file instead of ./config.yaml.
// An explicit file that does not exist is an error.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("ADCRAWL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("staging.driver", "redis")
	v.SetDefault("staging.redis_url", "redis://localhost:6379/0")
	v.SetDefault("staging.sqlite_path", "staging.db")
	v.SetDefault("staging.ttl_hours", 0)
	v.SetDefault("browser.remote_url", "")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.stealth", true)
	v.SetDefault("browser.viewport_width", 1350)
	v.SetDefault("browser.viewport_height", 750)
	v.SetDefault("browser.language", "en")
	v.SetDefault("crawl.max_requests_per_crawl", 30)
	v.SetDefault("crawl.max_request_retries", 3)
	v.SetDefault("crawl.max_requests_per_minute", 10)
	v.SetDefault("crawl.max_concurrency", 2)
	v.SetDefault("crawl.request_timeout_secs", 180)
	v.SetDefault("crawl.retry_backoff_ms", 2000)
	v.SetDefault("crawl.block_threshold", 3)
	v.SetDefault("crawl.block_cooldown_secs", 300)
	v.SetDefault("crawl.probe_max_requests", 3)
	v.SetDefault("extract.frame_wait_ms", 2000)
	v.SetDefault("extract.thumbnail_wait_ms", 5000)
	v.SetDefault("extract.video_settle_ms", 1500)
	v.SetDefault("extract.element_timeout_secs", 30)
	v.SetDefault("extract.sanitize_html", false)
	v.SetDefault("extract.selectors_path", "")
	v.SetDefault("site.base_url", "https://adstransparency.google.com")
	v.SetDefault("site.listing_api_match", "")
	v.SetDefault("webhook.token", "")
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "adcrawl")
	v.SetDefault("temporal.cron", "0 3 * * *")
	v.SetDefault("server.port", 3000)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.alert_cooldown_mins", 60)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// CrawlerConfig converts the crawl section for crawler.New.
func (c *Config) CrawlerConfig() crawler.Config {
	return crawler.Config{
		MaxRequestsPerCrawl:  c.Crawl.MaxRequestsPerCrawl,
		MaxRequestRetries:    c.Crawl.MaxRequestRetries,
		MaxRequestsPerMinute: c.Crawl.MaxRequestsPerMinute,
		MaxConcurrency:       c.Crawl.MaxConcurrency,
		RequestTimeout:       time.Duration(c.Crawl.RequestTimeoutSecs) * time.Second,
		RetryBackoff:         time.Duration(c.Crawl.RetryBackoffMs) * time.Millisecond,
		BlockThreshold:       c.Crawl.BlockThreshold,
		BlockCooldown:        time.Duration(c.Crawl.BlockCooldownSecs) * time.Second,
	}
}

// ProbeConfig is CrawlerConfig capped to the probe request budget.
func (c *Config) ProbeConfig() crawler.Config {
	cc := c.CrawlerConfig()
	cc.MaxRequestsPerCrawl = c.Crawl.ProbeMaxRequests
	return cc
}

// RouterConfig converts the site and extract sections for router.New.
func (c *Config) RouterConfig() router.Config {
	rc := router.DefaultConfig()
	if c.Site.BaseURL != "" {
		rc.BaseURL = c.Site.BaseURL
	}
	if c.Extract.ElementTimeoutSec > 0 {
		rc.ElementTimeout = time.Duration(c.Extract.ElementTimeoutSec) * time.Second
	}
	if c.Extract.ThumbnailWaitMs > 0 {
		rc.ThumbnailWait = time.Duration(c.Extract.ThumbnailWaitMs) * time.Millisecond
	}
	if c.Extract.FrameWaitMs > 0 {
		rc.FrameWait = time.Duration(c.Extract.FrameWaitMs) * time.Millisecond
	}
	return rc
}

// AssemblerConfig converts the extract section for media.NewAssembler.
func (c *Config) AssemblerConfig() media.AssemblerConfig {
	ac := media.DefaultAssemblerConfig()
	if c.Extract.FrameWaitMs > 0 {
		ac.FrameWait = time.Duration(c.Extract.FrameWaitMs) * time.Millisecond
	}
	if c.Extract.VideoSettleMs >= 0 {
		ac.VideoSettle = time.Duration(c.Extract.VideoSettleMs) * time.Millisecond
	}
	ac.SanitizeHTML = c.Extract.SanitizeHTML
	return ac
}

// BrowserManagerConfig converts the browser section for rodbrowser. Launch
// flags from the file are layered over the defaults.
func (c *Config) BrowserManagerConfig() rodbrowser.Config {
	flags := rodbrowser.DefaultFlags()
	for k, v := range c.Browser.Flags {
		flags[k] = v
	}
	return rodbrowser.Config{
		RemoteURL: c.Browser.RemoteURL,
		Headless:  c.Browser.Headless,
		Stealth:   c.Browser.Stealth,
		Flags:     flags,
	}
}

// Validate checks that required configuration is present for the given mode.
// Valid modes: "crawl", "serve", "worker", "jobs", "store".
func (c *Config) Validate(mode string) error {
	var errs []string

	needStore := func() {
		switch c.Store.Driver {
		case "postgres":
			if c.Store.DatabaseURL == "" {
				errs = append(errs, "store.database_url is required")
			}
		case "sqlite":
		default:
			errs = append(errs, "store.driver must be postgres or sqlite")
		}
	}
	needStaging := func() {
		switch c.Staging.Driver {
		case "", "redis":
			if c.Staging.RedisURL == "" {
				errs = append(errs, "staging.redis_url is required")
			}
		case "sqlite":
			if c.Staging.SQLitePath == "" {
				errs = append(errs, "staging.sqlite_path is required")
			}
		default:
			errs = append(errs, "staging.driver must be redis or sqlite")
		}
	}
	needCrawl := func() {
		if c.Crawl.MaxRequestsPerCrawl < 1 {
			errs = append(errs, "crawl.max_requests_per_crawl must be > 0")
		}
		if c.Crawl.MaxRequestRetries < 0 {
			errs = append(errs, "crawl.max_request_retries must be >= 0")
		}
		if c.Crawl.MaxConcurrency < 1 || c.Crawl.MaxConcurrency > 16 {
			errs = append(errs, "crawl.max_concurrency must be between 1 and 16")
		}
	}
	needTemporal := func() {
		if c.Temporal.HostPort == "" {
			errs = append(errs, "temporal.host_port is required")
		}
		if c.Temporal.TaskQueue == "" {
			errs = append(errs, "temporal.task_queue is required")
		}
	}

	switch mode {
	case "crawl", "worker":
		needStore()
		needStaging()
		needCrawl()
		if mode == "worker" {
			needTemporal()
		}
	case "serve":
		needStore()
		needStaging()
		needCrawl()
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case "jobs":
		needStore()
		needTemporal()
	case "store":
		needStore()
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
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
