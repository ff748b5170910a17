package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/use-agent/pagescrape/models"
)

// paramFlags collects repeated -param name=value flags.
type paramFlags models.Params

func (p paramFlags) String() string {
	parts := make([]string, 0, len(p))
	for k, v := range p {
		parts = append(parts, k+"="+v)
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

func (p paramFlags) Set(s string) error {
	k, v, ok := strings.Cut(s, "=")
	if !ok || k == "" {
		return fmt.Errorf("want name=value, got %q", s)
	}
	p[k] = v
	return nil
}

// CLI flags
var (
	apiURL = flag.String("api-url", "http://localhost:8080", "pagescrape API base URL")
	apiKey = flag.String("api-key", "", "API key for authenticated requests")
	runs   = flag.Int("runs", 3, "Number of runs per scraper for averaging")
	only   = flag.String("scrapers", "", "Comma-separated scraper names (default: every scraper without required params)")
	output = flag.String("output", "benchmark-results.json", "JSON output file path")
	params = paramFlags{}
	client = &http.Client{Timeout: 180 * time.Second}
)

func init() {
	flag.Var(params, "param", "Scraper parameter as name=value (repeatable)")
}

// --- Benchmark result types ---

type runResult struct {
	Run           int    `json:"run"`
	HTTPStatus    int    `json:"http_status"`
	TotalMs       int64  `json:"total_ms"`
	NavigationMs  int64  `json:"navigation_ms"`
	InteractionMs int64  `json:"interaction_ms"`
	ExtractionMs  int64  `json:"extraction_ms"`
	FieldsFound   int    `json:"fields_found"`
	FieldsTotal   int    `json:"fields_total"`
	Success       bool   `json:"success"`
	Code          string `json:"code,omitempty"`
	Error         string `json:"error,omitempty"`
}

type averages struct {
	TotalMs      float64 `json:"total_ms"`
	NavigationMs float64 `json:"navigation_ms"`
	ExtractionMs float64 `json:"extraction_ms"`
	FieldsFound  float64 `json:"fields_found"`
	SuccessRate  float64 `json:"success_rate"`
}

type scraperResult struct {
	Name     string      `json:"name"`
	URL      string      `json:"url"`
	Runs     []runResult `json:"runs"`
	Averages *averages   `json:"averages,omitempty"`
}

type benchmarkReport struct {
	Timestamp      string          `json:"timestamp"`
	APIURL         string          `json:"api_url"`
	RunsPerScraper int             `json:"runs_per_scraper"`
	Results        []scraperResult `json:"results"`
}

func main() {
	flag.Parse()

	fmt.Println("=== pagescrape Benchmark Suite ===")
	fmt.Printf("API URL:      %s\n", *apiURL)
	fmt.Printf("Runs/scraper: %d\n", *runs)
	fmt.Printf("Output:       %s\n", *output)
	fmt.Println()

	catalog, err := listScrapers()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot reach API at %s: %v\n", *apiURL, err)
		fmt.Fprintf(os.Stderr, "Make sure pagescrape is running\n")
		os.Exit(1)
	}

	targets := selectTargets(catalog)
	if len(targets) == 0 {
		fmt.Fprintln(os.Stderr, "Error: no scrapers selected")
		os.Exit(1)
	}

	report := benchmarkReport{
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
		APIURL:         *apiURL,
		RunsPerScraper: *runs,
	}

	for _, info := range targets {
		fmt.Printf("Benchmarking %s (%s) ...\n", info.Name, info.URL)
		sr := scraperResult{Name: info.Name, URL: info.URL}

		for i := 1; i <= *runs; i++ {
			fmt.Printf("  Run %d/%d ... ", i, *runs)
			rr := runScraper(info.Name, i)
			if rr.Success {
				fmt.Printf("OK  %dms  %d/%d fields\n", rr.TotalMs, rr.FieldsFound, rr.FieldsTotal)
			} else {
				fmt.Printf("FAILED [%s]: %s\n", rr.Code, rr.Error)
			}
			sr.Runs = append(sr.Runs, rr)
		}

		sr.Averages = computeAverages(sr.Runs)
		report.Results = append(report.Results, sr)
		fmt.Println()
	}

	printTable(report.Results)

	if err := writeJSON(*output, report); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing JSON output: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nDetailed results written to %s\n", *output)
}

func newRequest(method, path string, body []byte) (*http.Request, error) {
	req, err := http.NewRequest(method, *apiURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if *apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+*apiKey)
	}
	return req, nil
}

func listScrapers() ([]models.ScraperInfo, error) {
	req, err := newRequest(http.MethodGet, "/api/v1/scrapers", nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET /api/v1/scrapers: status %d", resp.StatusCode)
	}

	var out models.ScrapersResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out.Scrapers, nil
}

// selectTargets honours -scrapers, or picks every scraper whose required
// params are all supplied through -param.
func selectTargets(all []models.ScraperInfo) []models.ScraperInfo {
	if *only != "" {
		want := map[string]bool{}
		for _, n := range strings.Split(*only, ",") {
			want[strings.TrimSpace(n)] = true
		}
		var out []models.ScraperInfo
		for _, s := range all {
			if want[s.Name] {
				out = append(out, s)
			}
		}
		return out
	}

	var out []models.ScraperInfo
	for _, s := range all {
		ok := true
		for _, p := range s.RequiredParams {
			if _, has := params[p]; !has {
				ok = false
			}
		}
		if ok {
			out = append(out, s)
		} else {
			fmt.Printf("Skipping %s: needs params %s\n", s.Name, strings.Join(s.RequiredParams, ", "))
		}
	}
	return out
}

func runScraper(name string, run int) runResult {
	rr := runResult{Run: run}

	body, err := json.Marshal(models.NamedScrapeRequest{Params: models.Params(params)})
	if err != nil {
		rr.Error = fmt.Sprintf("marshal error: %v", err)
		return rr
	}
	req, err := newRequest(http.MethodPost, "/api/v1/scrape/"+name, body)
	if err != nil {
		rr.Error = fmt.Sprintf("request error: %v", err)
		return rr
	}

	resp, err := client.Do(req)
	if err != nil {
		rr.Error = fmt.Sprintf("request failed: %v", err)
		return rr
	}
	defer resp.Body.Close()
	rr.HTTPStatus = resp.StatusCode

	var res models.ScrapeResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		rr.Error = fmt.Sprintf("decode error: %v", err)
		return rr
	}

	rr.Success = res.Success
	rr.Code = res.Code
	rr.Error = res.Error
	if res.Timing != nil {
		rr.TotalMs = res.Timing.TotalMs
		rr.NavigationMs = res.Timing.NavigationMs
		rr.InteractionMs = res.Timing.InteractionMs
		rr.ExtractionMs = res.Timing.ExtractionMs
	}
	rr.FieldsTotal = len(res.Data)
	for _, v := range res.Data {
		if !v.IsNull() {
			rr.FieldsFound++
		}
	}
	return rr
}

func computeAverages(runs []runResult) *averages {
	var ok int
	var avg averages
	for _, r := range runs {
		if !r.Success {
			continue
		}
		ok++
		avg.TotalMs += float64(r.TotalMs)
		avg.NavigationMs += float64(r.NavigationMs)
		avg.ExtractionMs += float64(r.ExtractionMs)
		avg.FieldsFound += float64(r.FieldsFound)
	}
	if ok == 0 {
		return nil
	}

	n := float64(ok)
	avg.TotalMs /= n
	avg.NavigationMs /= n
	avg.ExtractionMs /= n
	avg.FieldsFound /= n
	avg.SuccessRate = n / float64(len(runs)) * 100
	return &avg
}

func printTable(results []scraperResult) {
	fmt.Println(strings.Repeat("─", 85))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Scraper\tAvg Latency\tNavigation\tFields Found\tSuccess\n")
	fmt.Fprintf(w, "───────\t───────────\t──────────\t────────────\t───────\n")

	for _, r := range results {
		if r.Averages == nil {
			fmt.Fprintf(w, "%s\tFAILED\t-\t-\t0%%\n", r.Name)
			continue
		}
		fmt.Fprintf(w, "%s\t%dms\t%dms\t%.1f\t%.0f%%\n",
			r.Name,
			int64(r.Averages.TotalMs),
			int64(r.Averages.NavigationMs),
			r.Averages.FieldsFound,
			r.Averages.SuccessRate,
		)
	}

	w.Flush()
	fmt.Println(strings.Repeat("─", 85))
}

func writeJSON(path string, report benchmarkReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
