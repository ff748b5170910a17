package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Browser   BrowserConfig   `yaml:"browser"`
	Scraper   ScraperConfig   `yaml:"scraper"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string `yaml:"host" env:"PAGESCRAPE_HOST" env-default:"0.0.0.0"`
	Port int    `yaml:"port" env:"PAGESCRAPE_PORT" env-default:"8080"`

	// Mode is the gin mode: "debug", "release" or "test".
	Mode string `yaml:"mode" env:"PAGESCRAPE_MODE" env-default:"release"`

	// ShutdownTimeout bounds the graceful drain of in-flight requests.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"PAGESCRAPE_SHUTDOWN_TIMEOUT" env-default:"120s"`
}

// BrowserConfig controls the shared Chromium process.
type BrowserConfig struct {
	Headless bool `yaml:"headless" env:"PAGESCRAPE_HEADLESS" env-default:"true"`

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool `yaml:"no_sandbox" env:"PAGESCRAPE_NO_SANDBOX" env-default:"false"`

	// Bin overrides the Chromium binary path.
	Bin string `yaml:"bin" env:"PAGESCRAPE_BROWSER_BIN"`

	// Proxy is passed to Chromium as --proxy-server.
	Proxy string `yaml:"proxy" env:"PAGESCRAPE_PROXY"`

	// UserAgent and the viewport are applied to every session.
	UserAgent      string `yaml:"user_agent" env:"PAGESCRAPE_USER_AGENT" env-default:"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"`
	ViewportWidth  int    `yaml:"viewport_width" env:"PAGESCRAPE_VIEWPORT_WIDTH" env-default:"1280"`
	ViewportHeight int    `yaml:"viewport_height" env:"PAGESCRAPE_VIEWPORT_HEIGHT" env-default:"720"`
}

// ScraperConfig holds the timeouts of the scrape pipeline.
type ScraperConfig struct {
	// NavigationTimeout bounds the initial page load unless the scrape
	// config sets its own.
	NavigationTimeout time.Duration `yaml:"navigation_timeout" env:"PAGESCRAPE_NAV_TIMEOUT" env-default:"60s"`

	// WaitForSelectorTimeout bounds the optional post-load selector wait.
	WaitForSelectorTimeout time.Duration `yaml:"wait_for_selector_timeout" env:"PAGESCRAPE_WAIT_SELECTOR_TIMEOUT" env-default:"30s"`

	// StepTimeout bounds target resolution of each interaction step.
	StepTimeout time.Duration `yaml:"step_timeout" env:"PAGESCRAPE_STEP_TIMEOUT" env-default:"10s"`

	// NavigationRaceTimeout bounds each branch of a waitForNavigation step.
	NavigationRaceTimeout time.Duration `yaml:"navigation_race_timeout" env:"PAGESCRAPE_NAV_RACE_TIMEOUT" env-default:"10s"`

	// KeystrokeDelay is the pause between characters of a type step.
	KeystrokeDelay time.Duration `yaml:"keystroke_delay" env:"PAGESCRAPE_KEYSTROKE_DELAY" env-default:"100ms"`

	// BlockedResourceTypes are blocked for every scrape, in addition to
	// the config's own blockResources.
	BlockedResourceTypes []string `yaml:"blocked_resource_types" env:"PAGESCRAPE_BLOCKED_RESOURCES" env-separator:","`
}

// CatalogConfig points at user-supplied named configs.
type CatalogConfig struct {
	// Dir holds *.yaml scrape configs loaded next to the built-ins.
	Dir string `yaml:"dir" env:"PAGESCRAPE_CATALOG_DIR"`
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	Enabled bool     `yaml:"enabled" env:"PAGESCRAPE_AUTH_ENABLED" env-default:"false"`
	APIKeys []string `yaml:"api_keys" env:"PAGESCRAPE_API_KEYS" env-separator:","`
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 `yaml:"requests_per_second" env:"PAGESCRAPE_RATE_RPS" env-default:"2"`

	// Burst is the maximum burst size per API key.
	Burst int `yaml:"burst" env:"PAGESCRAPE_RATE_BURST" env-default:"5"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string `yaml:"level" env:"PAGESCRAPE_LOG_LEVEL" env-default:"info"`
	Format string `yaml:"format" env:"PAGESCRAPE_LOG_FORMAT" env-default:"json"` // "json" or "text"
}

// Defaults applied to zero fields of a hand-built BrowserConfig or
// ScraperConfig. They match the env-default tags.
const (
	DefaultUserAgent              = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"
	DefaultViewportWidth          = 1280
	DefaultViewportHeight         = 720
	DefaultNavigationTimeout      = 60 * time.Second
	DefaultWaitForSelectorTimeout = 30 * time.Second
	DefaultStepTimeout            = 10 * time.Second
	DefaultNavigationRaceTimeout  = 10 * time.Second
	DefaultKeystrokeDelay         = 100 * time.Millisecond
)

// WithDefaults returns c with unset fields filled in.
func (c BrowserConfig) WithDefaults() BrowserConfig {
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.ViewportWidth <= 0 {
		c.ViewportWidth = DefaultViewportWidth
	}
	if c.ViewportHeight <= 0 {
		c.ViewportHeight = DefaultViewportHeight
	}
	return c
}

// WithDefaults returns c with zero or negative durations replaced by the
// defaults.
func (c ScraperConfig) WithDefaults() ScraperConfig {
	orDefault := func(d *time.Duration, def time.Duration) {
		if *d <= 0 {
			*d = def
		}
	}
	orDefault(&c.NavigationTimeout, DefaultNavigationTimeout)
	orDefault(&c.WaitForSelectorTimeout, DefaultWaitForSelectorTimeout)
	orDefault(&c.StepTimeout, DefaultStepTimeout)
	orDefault(&c.NavigationRaceTimeout, DefaultNavigationRaceTimeout)
	orDefault(&c.KeystrokeDelay, DefaultKeystrokeDelay)
	return c
}

// FileEnv names the optional YAML file overlaid by the environment.
const FileEnv = "PAGESCRAPE_CONFIG"

// Load reads configuration from environment variables with sane defaults.
// When PAGESCRAPE_CONFIG names a YAML file, it is read first and the
// environment still wins.
func Load() (*Config, error) {
	var cfg Config
	if path := os.Getenv(FileEnv); path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		return &cfg, nil
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config: read environment: %w", err)
	}
	return &cfg, nil
}

// Usage describes every supported environment variable.
func Usage() string {
	var cfg Config
	text, err := cleanenv.GetDescription(&cfg, nil)
	if err != nil {
		return err.Error()
	}
	return text
}
