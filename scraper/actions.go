package scraper

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
	"github.com/use-agent/pagescrape/models"
	"github.com/use-agent/pagescrape/observe"
)

// pollInterval is how often target resolution re-queries the DOM.
const pollInterval = 100 * time.Millisecond

// executeInteractions runs the steps in order. The first failing step
// aborts the remaining steps and is returned as an interaction error
// naming the step and its selector.
func (s *Scraper) executeInteractions(ctx context.Context, sess *Session, steps []models.InteractionStep, params models.Params, obs observe.Observer) error {
	var armed *navigationWaiter
	defer func() {
		if armed != nil {
			armed.stop()
		}
	}()

	for i, step := range steps {
		start := time.Now()

		var err error
		if step.Kind == models.StepWaitForNavigation {
			w := armed
			armed = nil
			if w == nil {
				w = armNavigation(ctx, sess.page, s.scraperCfg.NavigationRaceTimeout)
			}
			err = w.wait()
		} else {
			// A transition triggered by this step must not be missed by
			// the waitForNavigation that follows it.
			if i+1 < len(steps) && steps[i+1].Kind == models.StepWaitForNavigation {
				armed = armNavigation(ctx, sess.page, s.scraperCfg.NavigationRaceTimeout)
			}
			err = s.executeStep(ctx, sess, step, params)
		}

		if err != nil {
			observe.Error(ctx, obs, observe.StageInteraction, "interaction failed",
				"index", i,
				"step", step.String(),
				"completed", i,
				"error", err,
			)
			return interactionError(i, step, err)
		}
		observe.Debug(ctx, obs, observe.StageInteraction, "interaction completed",
			"index", i,
			"step", step.String(),
			"elapsed", time.Since(start).String(),
		)
	}
	return nil
}

func interactionError(i int, step models.InteractionStep, err error) *models.ScrapeError {
	msg := fmt.Sprintf("interaction %d (%s) failed", i, step.Kind)
	if step.Selector != "" {
		msg = fmt.Sprintf("interaction %d (%s) failed on selector %q", i, step.Kind, step.Selector)
	}
	return models.NewScrapeError(models.ErrCodeInteraction, msg, err)
}

// executeStep dispatches a single step.
func (s *Scraper) executeStep(ctx context.Context, sess *Session, step models.InteractionStep, params models.Params) error {
	page := sess.page

	switch step.Kind {
	case models.StepWait:
		return sleep(ctx, step.WaitDuration())

	case models.StepWaitForSelector:
		_, err := firstVisible(ctx, page, step.Selector, s.scraperCfg.StepTimeout)
		return err

	case models.StepFill:
		value, err := step.ResolveValue(params)
		if err != nil {
			return err
		}
		el, err := firstVisible(ctx, page, step.Selector, s.scraperCfg.StepTimeout)
		if err != nil {
			return err
		}
		return fillValue(el, value)

	case models.StepType:
		value, err := step.ResolveValue(params)
		if err != nil {
			return err
		}
		el, err := firstVisible(ctx, page, step.Selector, s.scraperCfg.StepTimeout)
		if err != nil {
			return err
		}
		return typeValue(ctx, page.Context(ctx), el, value, s.scraperCfg.KeystrokeDelay)

	case models.StepClick:
		el, err := firstVisible(ctx, page, step.Selector, s.scraperCfg.StepTimeout)
		if err != nil {
			return err
		}
		// The activation key is not intercepted by overlays the way a
		// pointer click at the element's coordinates can be.
		return el.Type(input.Enter)

	case models.StepKeyPress:
		key, err := parseKey(step.Key)
		if err != nil {
			return err
		}
		el, err := firstVisible(ctx, page, step.Selector, s.scraperCfg.StepTimeout)
		if err != nil {
			return err
		}
		return el.Type(key)

	default:
		return fmt.Errorf("unknown interaction type: %s", step.Kind)
	}
}

// firstVisible enumerates the elements matching selector in document order
// and returns the first visible one, polling until timeout. A malformed
// selector fails immediately.
func firstVisible(ctx context.Context, page *rod.Page, selector string, timeout time.Duration) (*rod.Element, error) {
	p := page.Context(ctx)
	deadline := time.Now().Add(timeout)

	for {
		els, err := p.Elements(selector)
		if err != nil {
			return nil, fmt.Errorf("query %q: %w", selector, err)
		}
		for _, el := range els {
			if ok, err := el.Visible(); err == nil && ok {
				return el, nil
			}
		}
		if time.Now().After(deadline) {
			return nil, noVisibleMatch(selector, len(els), timeout)
		}
		if err := sleep(ctx, pollInterval); err != nil {
			return nil, err
		}
	}
}

func noVisibleMatch(selector string, matched int, timeout time.Duration) error {
	return fmt.Errorf("no visible element matching %q within %s (%d matched)", selector, timeout, matched)
}

// fillValue assigns the value directly and fires the events a form
// library listens for. The native setter is used so frameworks that wrap
// the value property still observe the change.
func fillValue(el *rod.Element, value string) error {
	_, err := el.Eval(`(v) => {
		this.focus();
		let proto = null;
		if (this instanceof HTMLInputElement) proto = HTMLInputElement.prototype;
		else if (this instanceof HTMLTextAreaElement) proto = HTMLTextAreaElement.prototype;
		else if (this instanceof HTMLSelectElement) proto = HTMLSelectElement.prototype;
		const desc = proto && Object.getOwnPropertyDescriptor(proto, "value");
		if (desc && desc.set) desc.set.call(this, v);
		else if (this.isContentEditable) this.textContent = v;
		else this.value = v;
		this.dispatchEvent(new Event("input", { bubbles: true }));
		this.dispatchEvent(new Event("change", { bubbles: true }));
	}`, value)
	return err
}

// typeValue focuses the element and sends one key down/up pair per
// character, so the page's own keystroke listeners run.
func typeValue(ctx context.Context, page *rod.Page, el *rod.Element, value string, delay time.Duration) error {
	if err := el.Focus(); err != nil {
		return err
	}
	first := true
	for _, r := range value {
		if !first && delay > 0 {
			if err := sleep(ctx, delay); err != nil {
				return err
			}
		}
		first = false

		ch := string(r)
		if err := (proto.InputDispatchKeyEvent{
			Type:           proto.InputDispatchKeyEventTypeKeyDown,
			Key:            ch,
			Text:           ch,
			UnmodifiedText: ch,
		}).Call(page); err != nil {
			return err
		}
		if err := (proto.InputDispatchKeyEvent{
			Type: proto.InputDispatchKeyEventTypeKeyUp,
			Key:  ch,
		}).Call(page); err != nil {
			return err
		}
	}
	return nil
}
