package scraper

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/launcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/pagescrape/config"
	"github.com/use-agent/pagescrape/models"
	"github.com/use-agent/pagescrape/observe"
)

// Tests in this file drive a real Chromium and are skipped when none is
// installed locally or when running with -short.

const formPage = `<!DOCTYPE html>
<html><body>
  <input id="a" oninput="document.getElementById('a-mirror').textContent=this.value">
  <span id="a-mirror"></span>
  <span id="a-keys">0</span>

  <input id="b" oninput="document.getElementById('b-mirror').textContent=this.value">
  <span id="b-mirror"></span>
  <span id="b-keys">0</span>

  <button class="target" style="display:none" onclick="document.getElementById('clicked').textContent='first'">hidden</button>
  <button class="target" onclick="document.getElementById('clicked').textContent='second'">shown</button>
  <span id="clicked"></span>

  <button class="submit" style="display:none">never</button>

  <form action="/results" method="get"><input id="q" name="q"></form>

  <script>
    for (const id of ['a', 'b']) {
      document.getElementById(id).addEventListener('keydown', () => {
        const el = document.getElementById(id + '-keys');
        el.textContent = String(Number(el.textContent) + 1);
      });
    }
  </script>
</body></html>`

func fixtureServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/news", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, newsPage)
	})
	mux.HandleFunc("/form", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, formPage)
	})
	mux.HandleFunc("/results", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><body><h2 id="echo">%s</h2></body></html>`, html.EscapeString(r.URL.Query().Get("q")))
	})
	mux.HandleFunc("/delayed", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><p id="late">pending</p>
<script>setTimeout(() => { document.getElementById('late').textContent = 'ready' }, 200)</script>
</body></html>`)
	})
	mux.HandleFunc("/headers", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><body><p id="h">%s</p></body></html>`, html.EscapeString(r.Header.Get("X-Pagescrape-Test")))
	})
	mux.HandleFunc("/city/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><body><h1>%s</h1></body></html>`, html.EscapeString(r.URL.Path))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newBrowserScraper(t *testing.T, opts ...Option) *Scraper {
	t.Helper()
	if testing.Short() {
		t.Skip("browser test skipped in -short mode")
	}
	bin, ok := launcher.LookPath()
	if !ok {
		t.Skip("no local Chromium found")
	}

	s := New(config.BrowserConfig{
		Headless:       true,
		NoSandbox:      true,
		Bin:            bin,
		UserAgent:      "pagescrape-test",
		ViewportWidth:  1280,
		ViewportHeight: 720,
	}, config.ScraperConfig{
		NavigationTimeout:      20 * time.Second,
		WaitForSelectorTimeout: time.Second,
		StepTimeout:            time.Second,
		NavigationRaceTimeout:  5 * time.Second,
		KeystrokeDelay:         5 * time.Millisecond,
	}, append([]Option{WithObserver(observe.Nop{})}, opts...)...)

	require.NoError(t, s.Initialize())
	t.Cleanup(func() { _ = s.Shutdown() })
	return s
}

func TestBrowserExtractsFields(t *testing.T) {
	s := newBrowserScraper(t)
	srv := fixtureServer(t)

	res := s.Scrape(context.Background(), &models.ScrapeConfig{
		URL: srv.URL + "/news",
		Selectors: map[string]string{
			"title":     "h1",
			"headlines": ".article-title",
			"missing":   ".missing",
			"broken":    "h1[",
		},
	}, nil)

	require.True(t, res.Success, res.Error)
	assert.True(t, models.Scalar("Hello").Equal(res.Data["title"]))
	assert.True(t, models.List([]string{"First", "Second", "Third"}).Equal(res.Data["headlines"]))
	assert.True(t, res.Data["missing"].IsNull())
	assert.True(t, res.Data["broken"].IsNull())
	assert.Empty(t, res.Screenshot)
	assert.Empty(t, res.HTMLSource)
	require.NotNil(t, res.Timing)

	assert.Zero(t, s.Stats().ActiveSessions)
}

func TestBrowserResolvesURLParams(t *testing.T) {
	s := newBrowserScraper(t)
	srv := fixtureServer(t)

	res := s.Scrape(context.Background(), &models.ScrapeConfig{
		URL:       srv.URL + "/city/{name}",
		URLParams: []string{"name"},
		Selectors: map[string]string{"path": "h1"},
	}, models.Params{"name": "san jose"})

	require.True(t, res.Success, res.Error)
	assert.Equal(t, srv.URL+"/city/san%20jose", res.URL)
	assert.True(t, models.Scalar("/city/san jose").Equal(res.Data["path"]))
}

func TestBrowserSendsExtraHeaders(t *testing.T) {
	s := newBrowserScraper(t)
	srv := fixtureServer(t)

	res := s.Scrape(context.Background(), &models.ScrapeConfig{
		URL:       srv.URL + "/headers",
		Headers:   map[string]string{"X-Pagescrape-Test": "yes"},
		Selectors: map[string]string{"h": "#h"},
	}, nil)

	require.True(t, res.Success, res.Error)
	assert.True(t, models.Scalar("yes").Equal(res.Data["h"]))
}

func TestBrowserFillAndTypeDiffer(t *testing.T) {
	s := newBrowserScraper(t)
	srv := fixtureServer(t)

	res := s.Scrape(context.Background(), &models.ScrapeConfig{
		URL: srv.URL + "/form",
		Interactions: []models.InteractionStep{
			models.Fill("#a", "hello"),
			models.TypeParam("#b", "word"),
		},
		Selectors: map[string]string{
			"aMirror": "#a-mirror",
			"aKeys":   "#a-keys",
			"bMirror": "#b-mirror",
			"bKeys":   "#b-keys",
		},
	}, models.Params{"word": "abc"})

	require.True(t, res.Success, res.Error)
	assert.True(t, models.Scalar("hello").Equal(res.Data["aMirror"]))
	assert.True(t, models.Scalar("0").Equal(res.Data["aKeys"]))
	assert.True(t, models.Scalar("abc").Equal(res.Data["bMirror"]))
	assert.True(t, models.Scalar("3").Equal(res.Data["bKeys"]))
}

func TestBrowserClickUsesFirstVisibleMatch(t *testing.T) {
	s := newBrowserScraper(t)
	srv := fixtureServer(t)

	res := s.Scrape(context.Background(), &models.ScrapeConfig{
		URL:          srv.URL + "/form",
		Interactions: []models.InteractionStep{models.Click(".target")},
		Selectors:    map[string]string{"clicked": "#clicked"},
	}, nil)

	require.True(t, res.Success, res.Error)
	assert.True(t, models.Scalar("second").Equal(res.Data["clicked"]))
}

func TestBrowserInvisibleTargetFails(t *testing.T) {
	s := newBrowserScraper(t)
	srv := fixtureServer(t)

	res := s.Scrape(context.Background(), &models.ScrapeConfig{
		URL:          srv.URL + "/form",
		Interactions: []models.InteractionStep{models.Click(".submit")},
		Selectors:    map[string]string{"clicked": "#clicked"},
	}, nil)

	assert.False(t, res.Success)
	assert.Equal(t, models.ErrCodeInteraction, res.Code)
	assert.Contains(t, res.Error, ".submit")
	assert.Nil(t, res.Data)
	assert.Zero(t, s.Stats().ActiveSessions)
}

func TestBrowserInteractionFailuresAreFatal(t *testing.T) {
	s := newBrowserScraper(t)
	srv := fixtureServer(t)

	tests := []struct {
		name  string
		steps []models.InteractionStep
		want  string
	}{
		{
			name:  "waitForSelector step times out",
			steps: []models.InteractionStep{models.WaitForSelector("#never")},
			want:  "#never",
		},
		{
			name:  "waitForNavigation without a navigation",
			steps: []models.InteractionStep{
				models.Fill("#a", "stay"),
				models.WaitForNavigation(),
			},
			want: "waitForNavigation",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := s.Scrape(context.Background(), &models.ScrapeConfig{
				URL:          srv.URL + "/form",
				Interactions: tt.steps,
				Selectors:    map[string]string{"clicked": "#clicked"},
			}, nil)

			assert.False(t, res.Success)
			assert.Equal(t, models.ErrCodeInteraction, res.Code)
			assert.Contains(t, res.Error, tt.want)
			assert.Nil(t, res.Data)
			assert.Zero(t, s.Stats().ActiveSessions)
		})
	}
}

func TestBrowserWaitStepLetsPageSettle(t *testing.T) {
	s := newBrowserScraper(t)
	srv := fixtureServer(t)

	res := s.Scrape(context.Background(), &models.ScrapeConfig{
		URL:          srv.URL + "/delayed",
		Interactions: []models.InteractionStep{models.Wait(800 * time.Millisecond)},
		Selectors:    map[string]string{"late": "#late"},
	}, nil)

	require.True(t, res.Success, res.Error)
	assert.True(t, models.Scalar("ready").Equal(res.Data["late"]))
	require.NotNil(t, res.Timing)
	assert.GreaterOrEqual(t, res.Timing.InteractionMs, int64(800))
}

func TestBrowserShutdownRacingOpenSession(t *testing.T) {
	s := newBrowserScraper(t)

	const n = 8
	errs := make([]error, n)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			sess, err := s.OpenSession(context.Background(), SessionOptions{})
			errs[i] = err
			s.CloseSession(sess)
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-start
		_ = s.Shutdown()
	}()
	close(start)
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			assert.Equal(t, models.ErrCodeSession, models.CodeOf(err))
		}
	}
	assert.Zero(t, s.Stats().ActiveSessions)
	assert.False(t, s.Stats().BrowserConnected)

	// Once the browser is gone, sessions fail cleanly until it relaunches.
	_, err := s.OpenSession(context.Background(), SessionOptions{})
	assert.Equal(t, models.ErrCodeSession, models.CodeOf(err))
	assert.Zero(t, s.Stats().ActiveSessions)
}

func TestBrowserUnknownKeyFails(t *testing.T) {
	s := newBrowserScraper(t)
	srv := fixtureServer(t)

	res := s.Scrape(context.Background(), &models.ScrapeConfig{
		URL:          srv.URL + "/form",
		Interactions: []models.InteractionStep{models.KeyPress("#q", "Hyper")},
		Selectors:    map[string]string{},
	}, nil)

	assert.False(t, res.Success)
	assert.Equal(t, models.ErrCodeInteraction, res.Code)
	assert.Contains(t, res.Error, "#q")
}

func TestBrowserSubmitAndWaitForNavigation(t *testing.T) {
	s := newBrowserScraper(t)
	srv := fixtureServer(t)

	res := s.Scrape(context.Background(), &models.ScrapeConfig{
		URL: srv.URL + "/form",
		Interactions: []models.InteractionStep{
			models.FillParam("#q", "term"),
			models.KeyPress("#q", "Enter"),
			models.WaitForNavigation(),
		},
		Selectors: map[string]string{"echo": "#echo"},
	}, models.Params{"term": "pagescrape go"})

	require.True(t, res.Success, res.Error)
	assert.True(t, models.Scalar("pagescrape go").Equal(res.Data["echo"]))
}

func TestBrowserSlowSelectorIsNotFatal(t *testing.T) {
	s := newBrowserScraper(t)
	srv := fixtureServer(t)

	res := s.Scrape(context.Background(), &models.ScrapeConfig{
		URL:             srv.URL + "/news",
		WaitForSelector: "#never",
		Selectors:       map[string]string{"title": "h1"},
		Debug:           true,
	}, nil)

	require.True(t, res.Success, res.Error)
	assert.True(t, models.Scalar("Hello").Equal(res.Data["title"]))

	var warned bool
	for _, e := range res.Trace {
		if e.Level == slog.LevelWarn.String() && e.Stage == string(observe.StageNavigation) {
			warned = true
		}
	}
	assert.True(t, warned, "expected a navigation warning in the trace")
}

func TestBrowserNavigationFailure(t *testing.T) {
	s := newBrowserScraper(t)

	res := s.Scrape(context.Background(), &models.ScrapeConfig{
		URL:       "http://127.0.0.1:1/",
		Selectors: map[string]string{"title": "h1"},
	}, nil)

	assert.False(t, res.Success)
	assert.Equal(t, models.ErrCodeNavigation, res.Code)
	assert.Zero(t, s.Stats().ActiveSessions)
}

func TestBrowserCapturesRoundTrip(t *testing.T) {
	s := newBrowserScraper(t)
	srv := fixtureServer(t)
	selectors := map[string]string{
		"title":     "h1",
		"headlines": ".article-title",
		"authors":   ".article-author",
		"missing":   ".missing",
	}

	res := s.Scrape(context.Background(), &models.ScrapeConfig{
		URL:        srv.URL + "/news",
		Selectors:  selectors,
		Screenshot: true,
		HTMLSource: true,
		Markdown:   true,
	}, nil)
	require.True(t, res.Success, res.Error)

	png, err := base64.StdEncoding.DecodeString(res.Screenshot)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))
	assert.Contains(t, res.Markdown, "# Hello")

	snap, err := ExtractSnapshot(context.Background(), res.HTMLSource, selectors, SnapshotOptions{})
	require.NoError(t, err)
	assert.Empty(t, snap.Problems)
	offline := snap.Data
	for field := range selectors {
		assert.True(t, res.Data[field].Equal(offline[field]), "field %s: live %s, offline %s",
			field, res.Data[field], offline[field])
	}
}

func TestBrowserRelaunchAfterShutdown(t *testing.T) {
	s := newBrowserScraper(t)
	srv := fixtureServer(t)

	require.NoError(t, s.Shutdown())
	assert.False(t, s.Stats().BrowserConnected)

	res := s.Scrape(context.Background(), &models.ScrapeConfig{
		URL:       srv.URL + "/news",
		Selectors: map[string]string{"title": "h1"},
	}, nil)
	require.True(t, res.Success, res.Error)
	assert.True(t, s.Stats().BrowserConnected)
}

func TestBrowserConcurrentScrapes(t *testing.T) {
	s := newBrowserScraper(t)
	srv := fixtureServer(t)

	const n = 4
	results := make([]models.ScrapeResult, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = s.Scrape(context.Background(), &models.ScrapeConfig{
				URL:       srv.URL + "/news",
				Selectors: map[string]string{"title": "h1"},
			}, nil)
		}()
	}
	wg.Wait()

	for _, res := range results {
		require.True(t, res.Success, res.Error)
		assert.True(t, models.Scalar("Hello").Equal(res.Data["title"]))
	}
	stats := s.Stats()
	assert.Zero(t, stats.ActiveSessions)
	assert.GreaterOrEqual(t, stats.TotalSessions, int64(n))
}
