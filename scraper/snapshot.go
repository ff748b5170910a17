package scraper

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/use-agent/pagescrape/models"
	"github.com/use-agent/pagescrape/observe"
	"golang.org/x/net/html"
)

// Snapshot is a parsed HTML capture. Selectors evaluated against it see the
// same elements the live page had when the capture was taken.
type Snapshot struct {
	doc *goquery.Document
}

// ParseSnapshot parses a captured page, typically a result's htmlSource.
func ParseSnapshot(raw string) (*Snapshot, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	return &Snapshot{doc: doc}, nil
}

func (s *Snapshot) query(selector string) (*goquery.Selection, error) {
	group, err := cascadia.ParseGroup(selector)
	if err != nil {
		return nil, fmt.Errorf("invalid selector %q: %w", selector, err)
	}
	var nodes []*html.Node
	for _, root := range s.doc.Nodes {
		nodes = append(nodes, cascadia.QueryAll(root, group)...)
	}
	return s.doc.FindNodes(nodes...), nil
}

// Matches returns the elements matching selector in document order.
func (s *Snapshot) Matches(selector string) ([]Match, error) {
	sel, err := s.query(selector)
	if err != nil {
		return nil, err
	}
	matches := make([]Match, 0, sel.Length())
	sel.Each(func(_ int, el *goquery.Selection) {
		matches = append(matches, Match{
			Text:    el.Text(),
			Tag:     goquery.NodeName(el),
			Classes: strings.Fields(el.AttrOr("class", "")),
		})
	})
	return matches, nil
}

// OuterHTML renders every element matching selector.
func (s *Snapshot) OuterHTML(selector string) ([]string, error) {
	sel, err := s.query(selector)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(sel.Nodes))
	for _, n := range sel.Nodes {
		var buf bytes.Buffer
		if err := html.Render(&buf, n); err != nil {
			return nil, err
		}
		out = append(out, buf.String())
	}
	return out, nil
}

// SnapshotOptions controls extraction beyond the selector map.
type SnapshotOptions struct {
	// PostProcess names a hook per field, as in ScrapeConfig.
	PostProcess map[string]string

	// Hooks resolves PostProcess names. Nil means DefaultHooks.
	Hooks *HookRegistry

	// OuterHTML also renders each field's matched elements.
	OuterHTML bool
}

// SnapshotResult is what Extract found in a snapshot.
type SnapshotResult struct {
	Data      models.ExtractedData
	OuterHTML map[string][]string

	// Problems lists fields that degraded to null or kept their raw value.
	Problems []models.FieldError
}

// Extract evaluates a selector map with the same rules as live extraction:
// each field on its own, cardinality applied, post-process hooks run, and
// errors degrading to null.
func (s *Snapshot) Extract(ctx context.Context, selectors map[string]string, opts SnapshotOptions) SnapshotResult {
	hooks := opts.Hooks
	if hooks == nil {
		hooks = DefaultHooks()
	}
	res := SnapshotResult{Data: make(models.ExtractedData, len(selectors))}
	if opts.OuterHTML {
		res.OuterHTML = make(map[string][]string, len(selectors))
	}

	for _, field := range sortedFields(selectors) {
		matches, err := s.Matches(selectors[field])
		if err != nil {
			res.Data[field] = models.Null()
			res.Problems = append(res.Problems, models.FieldError{Field: field, Reason: err.Error()})
			continue
		}

		hookName := opts.PostProcess[field]
		if hookName != "" {
			if _, ok := hooks.Lookup(hookName); !ok {
				res.Problems = append(res.Problems, models.FieldError{
					Field:  field,
					Reason: fmt.Sprintf("unknown post-process hook %q, kept raw value", hookName),
				})
			}
		}
		res.Data[field] = applyHook(ctx, hooks, field, hookName, matches, observe.Nop{})

		if opts.OuterHTML {
			fragments, err := s.OuterHTML(selectors[field])
			if err != nil {
				res.Problems = append(res.Problems, models.FieldError{Field: field, Reason: err.Error()})
				continue
			}
			res.OuterHTML[field] = fragments
		}
	}
	return res
}

// ExtractSnapshot parses raw and evaluates selectors against it.
func ExtractSnapshot(ctx context.Context, raw string, selectors map[string]string, opts SnapshotOptions) (SnapshotResult, error) {
	snap, err := ParseSnapshot(raw)
	if err != nil {
		return SnapshotResult{}, err
	}
	return snap.Extract(ctx, selectors, opts), nil
}
