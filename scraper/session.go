package scraper

import (
	"context"
	"log/slog"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/google/uuid"
	"github.com/ysmood/gson"
	"github.com/use-agent/pagescrape/models"
)

// SessionOptions tune a session before its first navigation.
type SessionOptions struct {
	// Stealth masks navigator.webdriver and similar headless tells.
	Stealth bool

	// BlockResources are request types aborted by the hijack router.
	BlockResources []string

	// BlockAds aborts requests to known ad and tracking hosts.
	BlockAds bool

	// Headers are sent with every request of the session.
	Headers map[string]string
}

// Session is an isolated browser context with a single page, owned by
// exactly one scrape.
type Session struct {
	ID string

	context *rod.Browser // incognito browser context
	page    *rod.Page
	router  *rod.HijackRouter

	closeOnce sync.Once
	closeErr  error
	onClose   func()
}

// Page returns the session's page bound to ctx.
func (sess *Session) Page(ctx context.Context) *rod.Page {
	return sess.page.Context(ctx)
}

// Close disposes the browser context and every page in it. Only the first
// call has an effect.
func (sess *Session) Close() error {
	sess.closeOnce.Do(func() {
		if sess.router != nil {
			_ = sess.router.Stop()
		}
		sess.closeErr = sess.context.Close()
		if sess.onClose != nil {
			sess.onClose()
		}
	})
	return sess.closeErr
}

// OpenSession creates a fresh incognito context with the configured user
// agent and viewport.
func (s *Scraper) OpenSession(ctx context.Context, opts SessionOptions) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.browser == nil {
		return nil, models.NewScrapeError(
			models.ErrCodeSession,
			"browser is not running",
			nil,
		)
	}

	incognito, err := s.browser.Incognito()
	if err != nil {
		return nil, models.NewScrapeError(
			models.ErrCodeSession,
			"failed to create browser context",
			err,
		)
	}

	page, err := incognito.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = incognito.Close()
		return nil, models.NewScrapeError(
			models.ErrCodeSession,
			"failed to open page",
			err,
		)
	}

	if err := s.preparePage(page, opts); err != nil {
		_ = incognito.Close()
		return nil, models.NewScrapeError(
			models.ErrCodeSession,
			"failed to prepare page",
			err,
		)
	}

	sess := &Session{
		ID:      uuid.NewString(),
		context: incognito,
		page:    page,
		router:  setupHijack(page, mergeBlocked(s.scraperCfg.BlockedResourceTypes, opts.BlockResources), opts.BlockAds),
	}
	s.activeSessions.Add(1)
	s.totalSessions.Add(1)
	sess.onClose = func() { s.activeSessions.Add(-1) }

	slog.Debug("session opened", "session", sess.ID)
	return sess, nil
}

// preparePage applies the fixed fingerprint. Stealth and blocking must be
// installed before the first navigation to take effect.
func (s *Scraper) preparePage(page *rod.Page, opts SessionOptions) error {
	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent: s.browserCfg.UserAgent,
	}); err != nil {
		return err
	}
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             s.browserCfg.ViewportWidth,
		Height:            s.browserCfg.ViewportHeight,
		DeviceScaleFactor: 1,
	}); err != nil {
		return err
	}
	if len(opts.Headers) > 0 {
		err := proto.NetworkSetExtraHTTPHeaders{Headers: toHeadersMap(opts.Headers)}.Call(page)
		if err != nil {
			return err
		}
	}
	if opts.Stealth {
		if _, err := page.EvalOnNewDocument(stealth.JS); err != nil {
			slog.Warn("stealth injection failed, proceeding without stealth",
				"error", err,
			)
		}
	}
	return nil
}

// CloseSession releases sess. It is safe to call more than once.
func (s *Scraper) CloseSession(sess *Session) {
	if sess == nil {
		return
	}
	if err := sess.Close(); err != nil {
		slog.Warn("session close failed", "session", sess.ID, "error", err)
		return
	}
	slog.Debug("session closed", "session", sess.ID)
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}

func mergeBlocked(global, local []string) []string {
	if len(local) == 0 {
		return global
	}
	out := make([]string, 0, len(global)+len(local))
	out = append(out, global...)
	return append(out, local...)
}
