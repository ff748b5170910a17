package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/use-agent/pagescrape/models"
	"github.com/use-agent/pagescrape/observe"
)

// ResolveURL substitutes params into the {name} placeholders of tmpl.
// Every name in required must be present in params; otherwise the error
// names all absent parameters. Values are escaped as a URL component.
func ResolveURL(tmpl string, required []string, params models.Params) (string, error) {
	var missing []string
	for _, name := range required {
		if _, ok := params[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return "", models.NewMissingParameterError(missing)
	}
	return models.ExpandTemplate(tmpl, params, escapeComponent), nil
}

func escapeComponent(v string) string {
	return strings.ReplaceAll(url.QueryEscape(v), "+", "%20")
}

// navigate loads target and waits until the document has been parsed.
// Background connections are not awaited.
func (s *Scraper) navigate(ctx context.Context, sess *Session, target string, timeout time.Duration) error {
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	p := sess.Page(navCtx)
	if err := p.Navigate(target); err != nil {
		return navigationError(err, timeout, "navigation to target URL failed")
	}
	if err := p.Wait(rod.Eval(`() => document.readyState !== "loading"`)); err != nil {
		return navigationError(err, timeout, "page did not finish parsing")
	}
	return nil
}

// settle honors the optional post-load selector and delay. A selector
// that never appears is only reported.
func (s *Scraper) settle(ctx context.Context, sess *Session, cfg *models.ScrapeConfig, obs observe.Observer) error {
	if cfg.WaitForSelector != "" {
		timeout := s.scraperCfg.WaitForSelectorTimeout
		wctx, cancel := context.WithTimeout(ctx, timeout)
		_, err := sess.Page(wctx).Element(cfg.WaitForSelector)
		cancel()
		if err != nil {
			observe.Warn(ctx, obs, observe.StageNavigation, "waitForSelector not satisfied, continuing",
				"selector", cfg.WaitForSelector,
				"timeout", timeout.String(),
				"error", err,
			)
		} else {
			observe.Debug(ctx, obs, observe.StageNavigation, "waitForSelector satisfied",
				"selector", cfg.WaitForSelector,
			)
		}
	}
	if d := cfg.SettleDelay(); d > 0 {
		observe.Debug(ctx, obs, observe.StageNavigation, "settling", "delay", d.String())
		return sleep(ctx, d)
	}
	return nil
}

// navigationError wraps raw errors so the API layer can map them.
func navigationError(err error, timeout time.Duration, msg string) *models.ScrapeError {
	if errors.Is(err, context.DeadlineExceeded) {
		return models.NewScrapeError(
			models.ErrCodeNavigation,
			fmt.Sprintf("navigation timed out after %s", timeout),
			err,
		)
	}
	return models.NewScrapeError(models.ErrCodeNavigation, msg, err)
}

// navigationWaiter races a "structure parsed" lifecycle event against a
// "network idle" one for the page's main frame. It subscribes when armed,
// so it must be armed before the action that triggers the transition; the
// branch timeouts start when wait is called.
type navigationWaiter struct {
	parsed, idle func()
	ctx          context.Context
	cancel       context.CancelFunc
	timeout      time.Duration
}

func armNavigation(ctx context.Context, page *rod.Page, timeout time.Duration) *navigationWaiter {
	_ = proto.PageSetLifecycleEventsEnabled{Enabled: true}.Call(page)

	wctx, cancel := context.WithCancel(ctx)
	p := page.Context(wctx)
	return &navigationWaiter{
		parsed:  waitLifecycle(p, proto.PageLifecycleEventNameDOMContentLoaded),
		idle:    waitLifecycle(p, proto.PageLifecycleEventNameNetworkIdle),
		ctx:     wctx,
		cancel:  cancel,
		timeout: timeout,
	}
}

func waitLifecycle(page *rod.Page, name proto.PageLifecycleEventName) func() {
	return page.EachEvent(func(e *proto.PageLifecycleEvent) bool {
		return e.Name == name && e.FrameID == page.FrameID
	})
}

// wait returns as soon as either branch sees its event. An idle timeout is
// tolerated; the step fails only when the parsed branch times out too.
func (w *navigationWaiter) wait() error {
	defer w.cancel()

	parsed, idle := closeWhenDone(w.parsed), closeWhenDone(w.idle)
	parsedTimer := time.NewTimer(w.timeout)
	defer parsedTimer.Stop()
	idleTimer := time.NewTimer(w.timeout)
	defer idleTimer.Stop()

	for parsed != nil || idle != nil {
		select {
		case <-parsed:
			return w.ctx.Err()
		case <-idle:
			return w.ctx.Err()
		case <-parsedTimer.C:
			parsed = nil
		case <-idleTimer.C:
			idle = nil
		}
	}
	return fmt.Errorf("no navigation observed within %s", w.timeout)
}

func (w *navigationWaiter) stop() {
	w.cancel()
}

func closeWhenDone(wait func()) <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		wait()
		close(ch)
	}()
	return ch
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
