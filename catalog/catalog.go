// Package catalog holds the named scrape configs served by the API.
package catalog

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/use-agent/pagescrape/models"
	"gopkg.in/yaml.v3"
)

// ErrDuplicate is returned when a name is registered twice.
var ErrDuplicate = errors.New("duplicate scraper name")

// Catalog is a concurrency-safe name → config registry. Get always returns
// a deep copy, so callers may merge request flags into it freely.
type Catalog struct {
	mu      sync.RWMutex
	configs map[string]models.ScrapeConfig
}

// New returns an empty catalog.
func New() *Catalog {
	return &Catalog{configs: make(map[string]models.ScrapeConfig)}
}

// NewWithBuiltins returns a catalog seeded with Builtins.
func NewWithBuiltins() *Catalog {
	c := New()
	for name, cfg := range Builtins() {
		// Builtins are validated by tests; a failure here is a programming error.
		if err := c.Add(name, cfg); err != nil {
			panic(err)
		}
	}
	return c
}

// Add validates cfg and registers it under name.
func (c *Catalog) Add(name string, cfg models.ScrapeConfig) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("scraper name must not be empty")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("scraper %q: %w", name, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.configs[name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicate, name)
	}
	c.configs[name] = cfg.Clone()
	return nil
}

// Get returns a copy of the named config.
func (c *Catalog) Get(name string) (models.ScrapeConfig, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cfg, ok := c.configs[name]
	if !ok {
		return models.ScrapeConfig{}, false
	}
	return cfg.Clone(), true
}

// Names returns the registered names, sorted.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.configs))
	for name := range c.configs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Info describes every registered config for listing.
func (c *Catalog) Info() []models.ScraperInfo {
	names := c.Names()
	out := make([]models.ScraperInfo, 0, len(names))
	for _, name := range names {
		cfg, ok := c.Get(name)
		if !ok {
			continue
		}
		fields := make([]string, 0, len(cfg.Selectors))
		for f := range cfg.Selectors {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		out = append(out, models.ScraperInfo{
			Name:           name,
			URL:            cfg.URL,
			RequiredParams: cfg.RequiredParams(),
			Fields:         fields,
		})
	}
	return out
}

// entry is the on-disk shape of one config file: a ScrapeConfig plus an
// optional name that overrides the file stem.
type entry struct {
	Name                string `yaml:"name,omitempty"`
	models.ScrapeConfig `yaml:",inline"`
}

// LoadDir registers every *.yaml and *.yml file in dir. Files are read in
// name order and the first error aborts the load.
func (c *Catalog) LoadDir(dir string) (int, error) {
	var files []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		m, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return 0, err
		}
		files = append(files, m...)
	}
	sort.Strings(files)

	for i, path := range files {
		name, cfg, err := loadFile(path)
		if err != nil {
			return i, err
		}
		if err := c.Add(name, cfg); err != nil {
			return i, fmt.Errorf("%s: %w", path, err)
		}
		slog.Debug("catalog entry loaded", "name", name, "file", path)
	}
	return len(files), nil
}

func loadFile(path string) (string, models.ScrapeConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", models.ScrapeConfig{}, err
	}
	defer f.Close()

	e, err := decode(f)
	if err != nil {
		return "", models.ScrapeConfig{}, fmt.Errorf("%s: %w", path, err)
	}
	if e.Name == "" {
		e.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return e.Name, e.ScrapeConfig, nil
}

func decode(r io.Reader) (entry, error) {
	var e entry
	d := yaml.NewDecoder(r)
	d.KnownFields(true)
	if err := d.Decode(&e); err != nil {
		if errors.Is(err, io.EOF) {
			return e, errors.New("empty config file")
		}
		return e, err
	}
	return e, nil
}
