package scraper

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/use-agent/pagescrape/models"
)

// Match is the snapshot of one element matched by a field's selector.
// Hooks see only this snapshot and never query the page again.
type Match struct {
	Text    string   `json:"text"`
	Tag     string   `json:"tag"`
	Classes []string `json:"classes"`
}

// Hook transforms a field's raw value. It must be a pure function of its
// arguments.
type Hook func(field string, matches []Match, raw models.ExtractedValue) models.ExtractedValue

// HookRegistry maps hook names to hooks. It is safe for concurrent use.
type HookRegistry struct {
	mu    sync.RWMutex
	hooks map[string]Hook
}

func NewHookRegistry() *HookRegistry {
	return &HookRegistry{hooks: make(map[string]Hook)}
}

// DefaultHooks returns a registry holding the built-in hooks.
func DefaultHooks() *HookRegistry {
	r := NewHookRegistry()
	_ = r.Register("unit-from-class", UnitFromClass)
	_ = r.Register("trim", Trim)
	return r
}

// Register adds h under name. Names are unique.
func (r *HookRegistry) Register(name string, h Hook) error {
	if name == "" || h == nil {
		return fmt.Errorf("hook: name and function are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.hooks[name]; dup {
		return fmt.Errorf("hook: %q already registered", name)
	}
	r.hooks[name] = h
	return nil
}

func (r *HookRegistry) Lookup(name string) (Hook, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.hooks[name]
	return h, ok
}

// Names returns the registered hook names, sorted.
func (r *HookRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.hooks))
	for name := range r.hooks {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Trim strips surrounding whitespace and collapses inner runs of it.
func Trim(_ string, matches []Match, raw models.ExtractedValue) models.ExtractedValue {
	texts := raw.Texts()
	for i, t := range texts {
		texts[i] = strings.Join(strings.Fields(t), " ")
	}
	return rebuild(raw, texts)
}

// unitSuffixes maps the last dash-separated segment of a CSS class to the
// unit appended to the text, e.g. "wu-unit-mph" or "unit-fahrenheit".
var unitSuffixes = map[string]string{
	"fahrenheit": "°F",
	"celsius":    "°C",
	"kelvin":     " K",
	"mph":        " mph",
	"kmh":        " km/h",
	"kph":        " km/h",
	"knots":      " kn",
	"inhg":       " inHg",
	"hpa":        " hPa",
	"mb":         " mb",
	"percent":    "%",
	"in":         " in",
	"mm":         " mm",
	"cm":         " cm",
	"miles":      " mi",
	"mi":         " mi",
	"km":         " km",
}

// unitFor returns the unit named by the first recognised class.
func unitFor(classes []string) (string, bool) {
	for _, c := range classes {
		seg := c
		if i := strings.LastIndexByte(c, '-'); i >= 0 {
			seg = c[i+1:]
		}
		if u, ok := unitSuffixes[strings.ToLower(seg)]; ok {
			return u, true
		}
	}
	return "", false
}

// UnitFromClass appends the unit of measure a matched element declares
// through its CSS classes. Elements without a unit class keep their text.
func UnitFromClass(_ string, matches []Match, raw models.ExtractedValue) models.ExtractedValue {
	texts := raw.Texts()
	if len(texts) != len(matches) {
		return raw
	}
	for i, m := range matches {
		unit, ok := unitFor(m.Classes)
		if !ok {
			continue
		}
		t := strings.TrimSpace(texts[i])
		if t == "" || strings.HasSuffix(t, strings.TrimSpace(unit)) {
			texts[i] = t
			continue
		}
		texts[i] = t + unit
	}
	return rebuild(raw, texts)
}

// rebuild keeps the variant of raw while replacing its texts.
func rebuild(raw models.ExtractedValue, texts []string) models.ExtractedValue {
	switch raw.Kind() {
	case models.ValueScalar:
		return models.Scalar(texts[0])
	case models.ValueList:
		return models.List(texts)
	}
	return raw
}
