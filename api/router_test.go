package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/pagescrape/catalog"
	"github.com/use-agent/pagescrape/config"
	"github.com/use-agent/pagescrape/models"
	"github.com/use-agent/pagescrape/scraper"
	"github.com/use-agent/pagescrape/webhook"
)

// fakeScraper records the last call and answers with a canned result.
type fakeScraper struct {
	mu     sync.Mutex
	cfg    *models.ScrapeConfig
	params models.Params
	ctxErr error
	result models.ScrapeResult
	stats  models.SessionStats
}

func (f *fakeScraper) Scrape(ctx context.Context, cfg *models.ScrapeConfig, params models.Params) models.ScrapeResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cfg, f.params, f.ctxErr = cfg, params, ctx.Err()
	return f.result
}

func (f *fakeScraper) Stats() models.SessionStats { return f.stats }

func (f *fakeScraper) Hooks() *scraper.HookRegistry { return scraper.DefaultHooks() }

// syncDispatcher runs the work inline so tests can inspect the event.
type syncDispatcher struct {
	url    string
	events []*webhook.Event
}

func (d *syncDispatcher) Dispatch(url, secret string, produce func() *webhook.Event) {
	d.url = url
	d.events = append(d.events, produce())
}

func testConfig() *config.Config {
	return &config.Config{
		Server:    config.ServerConfig{Mode: "test"},
		RateLimit: config.RateLimitConfig{RequestsPerSecond: 1000, Burst: 1000},
	}
}

func newTestRouter(t *testing.T, fs *fakeScraper, cfg *config.Config) (http.Handler, *syncDispatcher) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	d := &syncDispatcher{}
	r := NewRouter(ctx, Deps{
		Scraper:   fs,
		Catalog:   catalog.NewWithBuiltins(),
		Webhooks:  d,
		Config:    cfg,
		StartTime: time.Now(),
	})
	return r, d
}

func do(h http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func successResult() models.ScrapeResult {
	return models.NewSuccessResult("https://example.com/news", time.Now(),
		models.ExtractedData{"headlines": models.List([]string{"a", "b"})}, models.Captures{})
}

func TestHealth(t *testing.T) {
	fs := &fakeScraper{stats: models.SessionStats{BrowserConnected: true, TotalSessions: 3}}
	r, _ := newTestRouter(t, fs, testConfig())

	w := do(r, http.MethodGet, "/api/v1/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, int64(3), resp.SessionStats.TotalSessions)

	fs.stats.BrowserConnected = false
	w = do(r, http.MethodGet, "/api/v1/health", "")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
}

func TestListScrapers(t *testing.T) {
	r, _ := newTestRouter(t, &fakeScraper{}, testConfig())

	w := do(r, http.MethodGet, "/api/v1/scrapers", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.ScrapersResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	var names []string
	for _, s := range resp.Scrapers {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"alameda-jury-reporting", "example-news", "wunderground-home"}, names)
}

func TestScrapeNamed(t *testing.T) {
	fs := &fakeScraper{result: successResult()}
	r, _ := newTestRouter(t, fs, testConfig())

	w := do(r, http.MethodPost, "/api/v1/scrape/example-news",
		`{"params":{"zip":"94110"},"screenshot":true}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	assert.True(t, fs.cfg.Screenshot)
	assert.Equal(t, "https://example.com/news", fs.cfg.URL)
	assert.Equal(t, models.Params{"zip": "94110"}, fs.params)
	assert.NoError(t, fs.ctxErr)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	assert.Equal(t, true, raw["success"])
	assert.Equal(t, []any{"a", "b"}, raw["data"].(map[string]any)["headlines"])

	// Flags are merged into a copy; the catalog entry is untouched.
	w = do(r, http.MethodPost, "/api/v1/scrape/example-news", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, fs.cfg.Screenshot)
}

func TestScrapeNamedUnknown(t *testing.T) {
	fs := &fakeScraper{}
	r, _ := newTestRouter(t, fs, testConfig())

	w := do(r, http.MethodPost, "/api/v1/scrape/nope", "{}")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Nil(t, fs.cfg)

	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, models.ErrCodeNotFound, resp.Error.Code)
}

func TestScrapeFailureStatus(t *testing.T) {
	tests := []struct {
		code   string
		status int
	}{
		{models.ErrCodeMissingParameter, http.StatusBadRequest},
		{models.ErrCodeNavigation, http.StatusBadGateway},
		{models.ErrCodeInteraction, http.StatusUnprocessableEntity},
		{models.ErrCodeBrowserLaunch, http.StatusServiceUnavailable},
		{models.ErrCodeSession, http.StatusServiceUnavailable},
		{models.ErrCodeCapture, http.StatusInternalServerError},
		{models.ErrCodeInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			fs := &fakeScraper{result: models.NewFailureResult("u", time.Now(),
				models.NewScrapeError(tt.code, "boom", nil))}
			r, _ := newTestRouter(t, fs, testConfig())

			w := do(r, http.MethodPost, "/api/v1/scrape/example-news", "{}")
			assert.Equal(t, tt.status, w.Code)

			var raw map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
			assert.Equal(t, tt.code, raw["code"])
			assert.NotContains(t, raw, "data")
		})
	}
}

func TestScrapeCustomValidation(t *testing.T) {
	fs := &fakeScraper{}
	r, _ := newTestRouter(t, fs, testConfig())

	w := do(r, http.MethodPost, "/api/v1/scrape",
		`{"interactions":[{"type":"hover","selector":"a"}]}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Nil(t, fs.cfg)

	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, models.ErrCodeInvalidInput, resp.Error.Code)
	var fields []string
	for _, p := range resp.Problems {
		fields = append(fields, p.Field)
	}
	assert.ElementsMatch(t, []string{"url", "selectors", "interactions[0].type"}, fields)

	w = do(r, http.MethodPost, "/api/v1/scrape", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestScrapeCustom(t *testing.T) {
	fs := &fakeScraper{result: successResult()}
	r, _ := newTestRouter(t, fs, testConfig())

	w := do(r, http.MethodPost, "/api/v1/scrape", `{
		"url": "https://example.com/{page}",
		"urlParams": ["page"],
		"interactions": [{"type":"click","selector":".more"}],
		"selectors": {"title": "h1"},
		"params": {"page": "news"}
	}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	assert.Equal(t, "https://example.com/{page}", fs.cfg.URL)
	assert.Equal(t, []models.InteractionStep{models.Click(".more")}, fs.cfg.Interactions)
	assert.Equal(t, models.Params{"page": "news"}, fs.params)
}

func TestScrapeWithWebhook(t *testing.T) {
	fs := &fakeScraper{result: successResult()}
	r, d := newTestRouter(t, fs, testConfig())

	w := do(r, http.MethodPost, "/api/v1/scrape/example-news",
		`{"webhook":{"url":"https://hooks.example.com/in","secret":"s"}}`)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var resp models.AcceptedResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.ID)

	require.Len(t, d.events, 1)
	assert.Equal(t, "https://hooks.example.com/in", d.url)
	assert.Equal(t, webhook.EventScrapeCompleted, d.events[0].Type)
	assert.Equal(t, resp.ID, d.events[0].ID)
	assert.True(t, d.events[0].Data.(models.ScrapeResult).Success)

	w = do(r, http.MethodPost, "/api/v1/scrape/example-news", `{"webhook":{"url":"not a url"}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExtractSnapshot(t *testing.T) {
	r, _ := newTestRouter(t, &fakeScraper{}, testConfig())

	w := do(r, http.MethodPost, "/api/v1/extract", `{
		"html": "<h1>Hello</h1><li class=\"x\">a</li><li class=\"x\">b</li>",
		"selectors": {"title": "h1", "items": ".x", "none": ".none", "bad": "h1["}
	}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var raw map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	data := raw["data"].(map[string]any)
	assert.Equal(t, "Hello", data["title"])
	assert.Equal(t, []any{"a", "b"}, data["items"])
	assert.Nil(t, data["none"])
	assert.Nil(t, data["bad"])
	assert.Len(t, raw["warnings"], 1)

	w = do(r, http.MethodPost, "/api/v1/extract", `{"selectors":{}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExtractSnapshotRunsHooks(t *testing.T) {
	r, _ := newTestRouter(t, &fakeScraper{}, testConfig())

	w := do(r, http.MethodPost, "/api/v1/extract", `{
		"html": "<p class=\"temp wu-unit-fahrenheit\">72</p><p class=\"cond\">  Sunny </p>",
		"selectors": {"temp": ".temp", "cond": ".cond"},
		"postProcess": {"temp": "unit-from-class", "cond": "trim"},
		"outerHTML": true
	}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp models.SnapshotExtractResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, models.Scalar("72°F").Equal(resp.Data["temp"]))
	assert.True(t, models.Scalar("Sunny").Equal(resp.Data["cond"]))
	assert.Equal(t, []string{`<p class="temp wu-unit-fahrenheit">72</p>`}, resp.OuterHTML["temp"])
	assert.Empty(t, resp.Warnings)

	w = do(r, http.MethodPost, "/api/v1/extract", `{
		"html": "<h1>x</h1>",
		"selectors": {"title": "h1"},
		"postProcess": {"other": "trim"}
	}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuthAndRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Auth = config.AuthConfig{Enabled: true, APIKeys: []string{"k1"}}
	cfg.RateLimit = config.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1}
	r, _ := newTestRouter(t, &fakeScraper{}, cfg)

	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/api/v1/health", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/api/v1/scrapers", "").Code)
	assert.Equal(t, http.StatusUnauthorized,
		do(r, http.MethodGet, "/api/v1/scrapers", "", "X-API-Key", "wrong").Code)

	assert.Equal(t, http.StatusOK,
		do(r, http.MethodGet, "/api/v1/scrapers", "", "Authorization", "Bearer k1").Code)

	w := do(r, http.MethodGet, "/api/v1/scrapers", "", "X-API-Key", "k1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}
