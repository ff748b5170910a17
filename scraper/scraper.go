package scraper

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/use-agent/pagescrape/config"
	"github.com/use-agent/pagescrape/models"
	"github.com/use-agent/pagescrape/observe"
)

// Scraper owns the process-wide browser handle and runs scrapes against it.
// It is safe for concurrent use.
//
// The handle is created lazily by EnsureBrowser and released by Shutdown.
// Session creation holds the read lock and Shutdown the write lock, so a
// session is either fully opened before the browser closes or fails with
// a session error.
type Scraper struct {
	browserCfg config.BrowserConfig
	scraperCfg config.ScraperConfig
	obs        observe.Observer
	hooks      *HookRegistry

	mu         sync.RWMutex
	browser    *rod.Browser
	launcher   *launcher.Launcher
	launchedAt time.Time

	activeSessions atomic.Int64
	totalSessions  atomic.Int64
}

// Option configures a Scraper.
type Option func(*Scraper)

// WithObserver sets the collaborator that receives pipeline events.
func WithObserver(o observe.Observer) Option {
	return func(s *Scraper) { s.obs = o }
}

// WithHooks replaces the post-processing hook registry.
func WithHooks(r *HookRegistry) Option {
	return func(s *Scraper) { s.hooks = r }
}

// New builds a Scraper. No browser is launched until EnsureBrowser. Unset
// timeouts, user agent and viewport fall back to the config defaults.
func New(browserCfg config.BrowserConfig, scraperCfg config.ScraperConfig, opts ...Option) *Scraper {
	s := &Scraper{
		browserCfg: browserCfg.WithDefaults(),
		scraperCfg: scraperCfg.WithDefaults(),
		obs:        observe.NewSlogObserver(slog.Default()),
		hooks:      DefaultHooks(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Initialize prepares the shared browser. Call it once before serving.
func (s *Scraper) Initialize() error {
	return s.EnsureBrowser()
}

// EnsureBrowser launches the shared browser if it is not running.
func (s *Scraper) EnsureBrowser() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.browser != nil {
		return nil
	}

	l := s.newLauncher()
	controlURL, err := l.Launch()
	if err != nil {
		return models.NewScrapeError(
			models.ErrCodeBrowserLaunch,
			"failed to launch browser",
			err,
		)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return models.NewScrapeError(
			models.ErrCodeBrowserLaunch,
			"failed to connect to browser",
			err,
		)
	}
	slog.Info("browser launched", "controlURL", controlURL)

	s.browser = browser
	s.launcher = l
	s.launchedAt = time.Now()
	return nil
}

func (s *Scraper) newLauncher() *launcher.Launcher {
	l := launcher.New().
		Headless(s.browserCfg.Headless).
		NoSandbox(s.browserCfg.NoSandbox)

	if s.browserCfg.Bin != "" {
		l = l.Bin(s.browserCfg.Bin)
	}
	if s.browserCfg.Proxy != "" {
		l = l.Proxy(s.browserCfg.Proxy)
	}

	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-popup-blocking"))
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))
	return l
}

// Shutdown closes the shared browser and kills its process. A later
// EnsureBrowser launches a new one.
func (s *Scraper) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.browser == nil {
		return nil
	}

	slog.Info("scraper shutting down: closing browser",
		"activeSessions", s.activeSessions.Load(),
	)
	err := s.browser.Close()
	if s.launcher != nil {
		s.launcher.Kill()
		s.launcher.Cleanup()
	}
	s.browser = nil
	s.launcher = nil
	s.launchedAt = time.Time{}
	slog.Info("scraper shutdown complete")

	if err != nil {
		return fmt.Errorf("close browser: %w", err)
	}
	return nil
}

// Stats returns a snapshot of the browser handle and session counters.
func (s *Scraper) Stats() models.SessionStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := models.SessionStats{
		BrowserConnected: s.browser != nil,
		ActiveSessions:   s.activeSessions.Load(),
		TotalSessions:    s.totalSessions.Load(),
	}
	if s.browser != nil {
		t := s.launchedAt
		stats.LaunchedAt = &t
	}
	return stats
}

// Hooks returns the post-processing hook registry.
func (s *Scraper) Hooks() *HookRegistry {
	return s.hooks
}
