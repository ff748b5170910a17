package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/use-agent/pagescrape/models"
	"github.com/use-agent/pagescrape/observe"
)

// Scrape runs one config end to end and always returns a result: every
// failure, including a panic inside the pipeline, becomes the failure
// shape, and the session is closed on every path.
//
// Lifecycle (numbered steps match the inline comments):
//
//  1. Validate + resolve  – malformed config or missing params fail before any browser work
//  2. Ensure browser      – lazy launch of the shared handle
//  3. Open session        – isolated context; stealth and hijack before navigation
//  4. Navigate + settle   – load, optional waitForSelector (non-fatal), delay
//  5. Interactions        – sequential, first failure aborts
//  6. Extraction          – field errors degrade to null
//  7. Capture             – screenshot / HTML / markdown, failures fatal
//
// ctx bounds the whole scrape. The HTTP front end passes a context detached
// from the client connection, so only the stage timeouts apply.
func (s *Scraper) Scrape(ctx context.Context, cfg *models.ScrapeConfig, params models.Params) (result models.ScrapeResult) {
	started := time.Now()
	if cfg == nil {
		return models.NewFailureResult("", started,
			models.NewScrapeError(models.ErrCodeInvalidInput, "scrape config is required", nil))
	}

	var rec *observe.Recorder
	base := s.obs
	if cfg.Debug {
		rec = observe.NewRecorder()
		base = observe.Multi(s.obs, rec)
	}
	obs := observe.Scoped(base, cfg.Debug, "url", cfg.URL)

	target := cfg.URL
	timing := &models.TimingInfo{}

	defer func() {
		if r := recover(); r != nil {
			// The stack goes to the process log only; debug traces are
			// returned to API clients.
			slog.Error("scrape panicked",
				"url", target,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
			observe.Error(ctx, obs, observe.StageResult, "scrape panicked", "panic", fmt.Sprint(r))
			result = models.NewFailureResult(target, started, models.NewScrapeError(
				models.ErrCodeInternal,
				fmt.Sprintf("internal error: %v", r),
				nil,
			))
		}
		timing.TotalMs = time.Since(started).Milliseconds()
		result.Timing = timing

		observe.Info(ctx, obs, observe.StageResult, "scrape finished",
			"success", result.Success,
			"code", result.Code,
			"totalMs", timing.TotalMs,
		)
		if rec != nil {
			result.Trace = rec.Trace()
		}
	}()

	data, captures, err := s.run(ctx, cfg, params, &target, obs, timing)
	if err != nil {
		return models.NewFailureResult(target, started, err)
	}
	return models.NewSuccessResult(target, started, data, captures)
}

// run is the pipeline behind Scrape. target is updated once the URL is
// resolved so failures report the URL that was actually attempted.
func (s *Scraper) run(
	ctx context.Context,
	cfg *models.ScrapeConfig,
	params models.Params,
	target *string,
	obs observe.Observer,
	timing *models.TimingInfo,
) (models.ExtractedData, models.Captures, error) {
	var none models.Captures

	// ── 1. Validate + resolve ─────────────────────────────────────────
	if err := cfg.Validate(); err != nil {
		return nil, none, err
	}
	resolved, err := ResolveURL(cfg.URL, cfg.RequiredParams(), params)
	if err != nil {
		observe.Warn(ctx, obs, observe.StageNavigation, "missing parameters", "error", err)
		return nil, none, err
	}
	*target = resolved
	if undeclared := cfg.UndeclaredPlaceholders(); len(undeclared) > 0 {
		observe.Warn(ctx, obs, observe.StageNavigation, "url placeholders not declared in urlParams",
			"placeholders", undeclared,
		)
	}

	// ── 2. Ensure browser ─────────────────────────────────────────────
	stageStart := time.Now()
	if err := s.EnsureBrowser(); err != nil {
		return nil, none, err
	}

	// ── 3. Open session ───────────────────────────────────────────────
	sess, err := s.OpenSession(ctx, SessionOptions{
		Stealth:        cfg.Stealth,
		BlockResources: cfg.BlockResources,
		BlockAds:       cfg.BlockAds,
		Headers:        cfg.Headers,
	})
	if err != nil {
		return nil, none, err
	}
	defer s.CloseSession(sess)

	obs = observe.Scoped(obs, false, "session", sess.ID)
	timing.SessionMs = time.Since(stageStart).Milliseconds()
	observe.Debug(ctx, obs, observe.StageSession, "session opened", "elapsed", time.Since(stageStart).String())

	// ── 4. Navigate + settle ──────────────────────────────────────────
	stageStart = time.Now()
	navTimeout := cfg.NavigationTimeoutOr(s.scraperCfg.NavigationTimeout)
	observe.Debug(ctx, obs, observe.StageNavigation, "navigating", "target", resolved, "timeout", navTimeout.String())
	if err := s.navigate(ctx, sess, resolved, navTimeout); err != nil {
		observe.Error(ctx, obs, observe.StageNavigation, "navigation failed", "error", err)
		return nil, none, err
	}
	if err := s.settle(ctx, sess, cfg, obs); err != nil {
		return nil, none, models.NewScrapeError(models.ErrCodeNavigation, "interrupted while settling", err)
	}
	timing.NavigationMs = time.Since(stageStart).Milliseconds()

	// ── 5. Interactions ───────────────────────────────────────────────
	stageStart = time.Now()
	if err := s.executeInteractions(ctx, sess, cfg.Interactions, params, obs); err != nil {
		return nil, none, err
	}
	timing.InteractionMs = time.Since(stageStart).Milliseconds()

	// ── 6. Extraction ─────────────────────────────────────────────────
	stageStart = time.Now()
	data := s.extract(ctx, sess, cfg, obs)
	timing.ExtractionMs = time.Since(stageStart).Milliseconds()

	// ── 7. Capture ────────────────────────────────────────────────────
	stageStart = time.Now()
	captures, err := s.capture(ctx, sess, cfg, resolved, obs)
	if err != nil {
		observe.Error(ctx, obs, observe.StageCapture, "capture failed", "error", err)
		return nil, none, err
	}
	timing.CaptureMs = time.Since(stageStart).Milliseconds()

	return data, captures, nil
}
