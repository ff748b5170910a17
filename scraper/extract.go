package scraper

import (
	"context"
	"fmt"
	"slices"

	"github.com/go-rod/rod"
	"github.com/use-agent/pagescrape/models"
	"github.com/use-agent/pagescrape/observe"
)

// matchesJS snapshots every element matching a selector, in document order.
const matchesJS = `(sel) => Array.from(document.querySelectorAll(sel), (el) => ({
	text: el.textContent ?? "",
	tag: el.tagName.toLowerCase(),
	classes: Array.from(el.classList),
}))`

// extract evaluates every configured selector independently. A field that
// fails degrades to null with a warning; the other fields are unaffected.
func (s *Scraper) extract(ctx context.Context, sess *Session, cfg *models.ScrapeConfig, obs observe.Observer) models.ExtractedData {
	page := sess.Page(ctx)
	data := make(models.ExtractedData, len(cfg.Selectors))

	for _, field := range sortedFields(cfg.Selectors) {
		selector := cfg.Selectors[field]

		matches, err := queryMatches(page, selector)
		if err != nil {
			observe.Warn(ctx, obs, observe.StageExtraction, "field extraction failed, using null",
				"field", field,
				"selector", selector,
				"code", models.ErrCodeExtraction,
				"error", err,
			)
			data[field] = models.Null()
			continue
		}

		data[field] = applyHook(ctx, s.hooks, field, cfg.PostProcess[field], matches, obs)
		observe.Debug(ctx, obs, observe.StageExtraction, "field extracted",
			"field", field,
			"selector", selector,
			"matches", len(matches),
		)
	}
	return data
}

// queryMatches runs one evaluation per selector so a broken selector only
// affects its own field.
func queryMatches(page *rod.Page, selector string) ([]Match, error) {
	res, err := page.Eval(matchesJS, selector)
	if err != nil {
		return nil, err
	}
	var matches []Match
	if err := res.Value.Unmarshal(&matches); err != nil {
		return nil, fmt.Errorf("decode matches: %w", err)
	}
	return matches, nil
}

// valueFromMatches applies the cardinality rule to the matched texts.
func valueFromMatches(matches []Match) models.ExtractedValue {
	texts := make([]string, len(matches))
	for i, m := range matches {
		texts[i] = m.Text
	}
	return models.FromTexts(texts)
}

// applyHook runs the named post-process hook, if any, on the raw value. A
// panicking hook degrades to the raw value like an unknown one.
func applyHook(ctx context.Context, hooks *HookRegistry, field, hookName string, matches []Match, obs observe.Observer) (v models.ExtractedValue) {
	raw := valueFromMatches(matches)
	if hookName == "" {
		return raw
	}
	hook, ok := hooks.Lookup(hookName)
	if !ok {
		observe.Warn(ctx, obs, observe.StageExtraction, "unknown post-process hook, keeping raw value",
			"field", field,
			"hook", hookName,
		)
		return raw
	}
	defer func() {
		if r := recover(); r != nil {
			observe.Warn(ctx, obs, observe.StageExtraction, "post-process hook panicked, keeping raw value",
				"field", field,
				"hook", hookName,
				"panic", fmt.Sprint(r),
			)
			v = raw
		}
	}()
	return hook(field, slices.Clone(matches), raw)
}

func sortedFields(selectors map[string]string) []string {
	fields := make([]string, 0, len(selectors))
	for f := range selectors {
		fields = append(fields, f)
	}
	slices.Sort(fields)
	return fields
}
