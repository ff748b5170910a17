package models

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"
)

// StepKind tags the variant of an InteractionStep.
type StepKind string

const (
	StepFill              StepKind = "fill"
	StepType              StepKind = "type"
	StepClick             StepKind = "click"
	StepKeyPress          StepKind = "keyPress"
	StepWaitForSelector   StepKind = "waitForSelector"
	StepWait              StepKind = "wait"
	StepWaitForNavigation StepKind = "waitForNavigation"
)

// Valid reports whether k is one of the known step kinds.
func (k StepKind) Valid() bool {
	switch k {
	case StepFill, StepType, StepClick, StepKeyPress,
		StepWaitForSelector, StepWait, StepWaitForNavigation:
		return true
	}
	return false
}

// Targeted reports whether steps of this kind act on a selector.
func (k StepKind) Targeted() bool {
	switch k {
	case StepFill, StepType, StepClick, StepKeyPress, StepWaitForSelector:
		return true
	}
	return false
}

// InteractionStep is one simulated user action performed before extraction.
// Only the fields relevant to Kind are meaningful:
//
//	fill, type:        Selector + (Value | ParamName)
//	click:             Selector
//	keyPress:          Selector + Key
//	waitForSelector:   Selector
//	wait:              Duration (milliseconds)
//	waitForNavigation: nothing
type InteractionStep struct {
	Kind StepKind `json:"type" yaml:"type"`

	Selector string `json:"selector,omitempty" yaml:"selector,omitempty"`

	// Value is a literal. {name} placeholders are substituted from Params.
	Value string `json:"value,omitempty" yaml:"value,omitempty"`

	// ParamName references a caller-supplied parameter. It wins over Value.
	ParamName string `json:"paramName,omitempty" yaml:"paramName,omitempty"`

	// Duration is the delay of a wait step, in milliseconds.
	Duration int `json:"duration,omitempty" yaml:"duration,omitempty"`

	// Key is the key name for keyPress, e.g. "Enter" or "ArrowDown".
	Key string `json:"key,omitempty" yaml:"key,omitempty"`
}

func Fill(selector, value string) InteractionStep {
	return InteractionStep{Kind: StepFill, Selector: selector, Value: value}
}

func FillParam(selector, param string) InteractionStep {
	return InteractionStep{Kind: StepFill, Selector: selector, ParamName: param}
}

func Type(selector, value string) InteractionStep {
	return InteractionStep{Kind: StepType, Selector: selector, Value: value}
}

func TypeParam(selector, param string) InteractionStep {
	return InteractionStep{Kind: StepType, Selector: selector, ParamName: param}
}

func Click(selector string) InteractionStep {
	return InteractionStep{Kind: StepClick, Selector: selector}
}

func KeyPress(selector, key string) InteractionStep {
	return InteractionStep{Kind: StepKeyPress, Selector: selector, Key: key}
}

func WaitForSelector(selector string) InteractionStep {
	return InteractionStep{Kind: StepWaitForSelector, Selector: selector}
}

func Wait(d time.Duration) InteractionStep {
	return InteractionStep{Kind: StepWait, Duration: int(d / time.Millisecond)}
}

func WaitForNavigation() InteractionStep {
	return InteractionStep{Kind: StepWaitForNavigation}
}

// WaitDuration returns Duration as a time.Duration.
func (s InteractionStep) WaitDuration() time.Duration {
	return time.Duration(s.Duration) * time.Millisecond
}

// ResolveValue returns the string a fill or type step enters.
func (s InteractionStep) ResolveValue(params Params) (string, error) {
	if s.ParamName != "" {
		v, ok := params[s.ParamName]
		if !ok {
			return "", NewMissingParameterError([]string{s.ParamName})
		}
		return v, nil
	}
	return ExpandTemplate(s.Value, params, nil), nil
}

// String describes the step for logs and error messages.
func (s InteractionStep) String() string {
	switch {
	case s.Kind == StepWait:
		return fmt.Sprintf("%s(%dms)", s.Kind, s.Duration)
	case s.Kind == StepKeyPress:
		return fmt.Sprintf("%s(%q, %s)", s.Kind, s.Selector, s.Key)
	case s.Kind.Targeted():
		return fmt.Sprintf("%s(%q)", s.Kind, s.Selector)
	}
	return string(s.Kind)
}

// Params is the explicit mapping from parameter name to caller-supplied value.
// It is built once per scrape and passed alongside the config.
type Params map[string]string

// ResourceTypes are the request types a config may block.
var ResourceTypes = []string{"Image", "Stylesheet", "Font", "Media", "Script"}

// ScrapeConfig declaratively describes one scrape.
type ScrapeConfig struct {
	// URL is the target page, possibly with {name} placeholders.
	URL string `json:"url" yaml:"url"`

	// URLParams are the placeholder names that must be supplied.
	URLParams []string `json:"urlParams,omitempty" yaml:"urlParams,omitempty"`

	// Interactions run in order after the page loads.
	Interactions []InteractionStep `json:"interactions,omitempty" yaml:"interactions,omitempty"`

	// Selectors maps output field names to CSS selectors.
	Selectors map[string]string `json:"selectors" yaml:"selectors"`

	// WaitForSelector is awaited after load. A timeout only logs a warning.
	WaitForSelector string `json:"waitForSelector,omitempty" yaml:"waitForSelector,omitempty"`

	// WaitForTimeout is an unconditional settle delay in milliseconds.
	WaitForTimeout int `json:"waitForTimeout,omitempty" yaml:"waitForTimeout,omitempty"`

	// NavigationTimeout bounds the initial load, in milliseconds.
	// Zero means the service default (60s).
	NavigationTimeout int `json:"navigationTimeout,omitempty" yaml:"navigationTimeout,omitempty"`

	Screenshot bool `json:"screenshot,omitempty" yaml:"screenshot,omitempty"`
	HTMLSource bool `json:"htmlSource,omitempty" yaml:"htmlSource,omitempty"`
	Markdown   bool `json:"markdown,omitempty" yaml:"markdown,omitempty"`
	Debug      bool `json:"debug,omitempty" yaml:"debug,omitempty"`

	// Stealth masks common headless fingerprints before navigation.
	Stealth bool `json:"stealth,omitempty" yaml:"stealth,omitempty"`

	// BlockResources lists request types to abort, see ResourceTypes.
	BlockResources []string `json:"blockResources,omitempty" yaml:"blockResources,omitempty"`
	BlockAds       bool     `json:"blockAds,omitempty" yaml:"blockAds,omitempty"`

	// PostProcess maps a field name to the name of a registered hook.
	PostProcess map[string]string `json:"postProcess,omitempty" yaml:"postProcess,omitempty"`

	// Headers are extra HTTP headers sent with every request of the session.
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
}

// NavigationTimeoutOr returns the configured navigation timeout or fallback.
func (c *ScrapeConfig) NavigationTimeoutOr(fallback time.Duration) time.Duration {
	if c.NavigationTimeout > 0 {
		return time.Duration(c.NavigationTimeout) * time.Millisecond
	}
	return fallback
}

// SettleDelay returns WaitForTimeout as a time.Duration.
func (c *ScrapeConfig) SettleDelay() time.Duration {
	return time.Duration(c.WaitForTimeout) * time.Millisecond
}

// Clone returns a deep copy so callers can merge runtime flags without
// touching a shared catalog entry.
func (c ScrapeConfig) Clone() ScrapeConfig {
	out := c
	out.URLParams = slices.Clone(c.URLParams)
	out.Interactions = slices.Clone(c.Interactions)
	out.BlockResources = slices.Clone(c.BlockResources)
	out.Selectors = cloneMap(c.Selectors)
	out.PostProcess = cloneMap(c.PostProcess)
	out.Headers = cloneMap(c.Headers)
	return out
}

func cloneMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// RequiredParams returns every parameter name the config needs: the URL
// params followed by any step paramName, without duplicates.
func (c *ScrapeConfig) RequiredParams() []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(name string) {
		if name == "" {
			return
		}
		if _, dup := seen[name]; dup {
			return
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	for _, p := range c.URLParams {
		add(p)
	}
	for _, s := range c.Interactions {
		add(s.ParamName)
	}
	return out
}

// UndeclaredPlaceholders returns URL placeholders missing from URLParams.
func (c *ScrapeConfig) UndeclaredPlaceholders() []string {
	var out []string
	for _, name := range PlaceholderNames(c.URL) {
		if !slices.Contains(c.URLParams, name) {
			out = append(out, name)
		}
	}
	return out
}

// Validate checks the config shape before it reaches the scraper.
func (c *ScrapeConfig) Validate() error {
	v := &ValidationError{}

	if strings.TrimSpace(c.URL) == "" {
		v.add("url", "is required")
	}
	if c.Selectors == nil {
		v.add("selectors", "is required")
	}
	for name, sel := range c.Selectors {
		if strings.TrimSpace(name) == "" {
			v.add("selectors", "field name must not be empty")
		}
		if strings.TrimSpace(sel) == "" {
			v.add("selectors."+name, "selector must not be empty")
		}
	}
	for i, p := range c.URLParams {
		switch {
		case strings.TrimSpace(p) == "":
			v.add(fmt.Sprintf("urlParams[%d]", i), "must not be empty")
		case !paramNameRe.MatchString(p):
			v.add(fmt.Sprintf("urlParams[%d]", i), fmt.Sprintf("%q cannot appear as a {name} placeholder", p))
		}
	}
	if c.WaitForTimeout < 0 {
		v.add("waitForTimeout", "must not be negative")
	}
	if c.NavigationTimeout < 0 {
		v.add("navigationTimeout", "must not be negative")
	}
	for i, rt := range c.BlockResources {
		if !slices.Contains(ResourceTypes, rt) {
			v.add(fmt.Sprintf("blockResources[%d]", i), fmt.Sprintf("unknown resource type %q", rt))
		}
	}
	for name := range c.Headers {
		if strings.TrimSpace(name) == "" {
			v.add("headers", "header name must not be empty")
		}
	}
	for field := range c.PostProcess {
		if _, ok := c.Selectors[field]; !ok {
			v.add("postProcess."+field, "no selector with this field name")
		}
	}

	for i, s := range c.Interactions {
		field := fmt.Sprintf("interactions[%d]", i)
		if !s.Kind.Valid() {
			v.add(field+".type", fmt.Sprintf("unknown interaction type %q", s.Kind))
			continue
		}
		if s.Kind.Targeted() && strings.TrimSpace(s.Selector) == "" {
			v.add(field+".selector", fmt.Sprintf("is required for %s", s.Kind))
		}
		switch s.Kind {
		case StepKeyPress:
			if s.Key == "" {
				v.add(field+".key", "is required for keyPress")
			}
		case StepWait:
			if s.Duration <= 0 {
				v.add(field+".duration", "must be positive for wait")
			}
		}
	}

	return v.orNil()
}

var (
	placeholderRe = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_-]*)\}`)
	paramNameRe   = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]*$`)
)

// PlaceholderNames returns the distinct {name} placeholders in tmpl, in order.
func PlaceholderNames(tmpl string) []string {
	var out []string
	for _, m := range placeholderRe.FindAllStringSubmatch(tmpl, -1) {
		if !slices.Contains(out, m[1]) {
			out = append(out, m[1])
		}
	}
	return out
}

// ExpandTemplate substitutes {name} placeholders present in values. Unknown
// placeholders are left untouched. escape, when non-nil, is applied to each
// substituted value.
func ExpandTemplate(tmpl string, values map[string]string, escape func(string) string) string {
	return placeholderRe.ReplaceAllStringFunc(tmpl, func(m string) string {
		name := m[1 : len(m)-1]
		v, ok := values[name]
		if !ok {
			return m
		}
		if escape != nil {
			return escape(v)
		}
		return v
	})
}
