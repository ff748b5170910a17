package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/use-agent/pagescrape/models"
)

func main() {
	apiURL := os.Getenv("PAGESCRAPE_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	apiKey := os.Getenv("PAGESCRAPE_API_KEY")

	s := server.NewMCPServer(
		"pagescrape",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	c := &apiClient{
		baseURL: strings.TrimRight(apiURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 180 * time.Second},
	}

	listTool := mcp.NewTool("list_scrapers",
		mcp.WithDescription("List the named scrapers configured on the pagescrape server, with the parameters each one requires and the fields it returns."),
	)
	s.AddTool(listTool, handleListScrapers(c))

	runTool := mcp.NewTool("run_scraper",
		mcp.WithDescription("Run a named scraper in a headless browser and return the extracted fields. Use list_scrapers first to see which params are required."),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Name of the scraper, e.g. 'wunderground-home'"),
		),
		mcp.WithObject("params",
			mcp.Description("Parameter values keyed by name, e.g. {\"zip\": \"94110\"}"),
		),
		mcp.WithBoolean("markdown",
			mcp.Description("Also return the final page as markdown"),
		),
	)
	s.AddTool(runTool, handleRunScraper(c))

	pageTool := mcp.NewTool("scrape_page",
		mcp.WithDescription("Scrape a page with an inline configuration: a URL, optional interaction steps (fill, type, click, keyPress, waitForSelector, wait, waitForNavigation) and a map of field name to CSS selector."),
		mcp.WithString("config",
			mcp.Required(),
			mcp.Description("Scrape config as JSON, e.g. {\"url\":\"https://example.com\",\"selectors\":{\"title\":\"h1\"}}"),
		),
		mcp.WithObject("params",
			mcp.Description("Parameter values for {name} placeholders and paramName steps"),
		),
	)
	s.AddTool(pageTool, handleScrapePage(c))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

// apiClient talks to a running pagescrape API.
type apiClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func (c *apiClient) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func handleListScrapers(c *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		body, err := c.do(ctx, http.MethodGet, "/api/v1/scrapers", nil)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		var resp models.ScrapersResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}

		var sb strings.Builder
		for _, s := range resp.Scrapers {
			fmt.Fprintf(&sb, "%s\n  url:    %s\n", s.Name, s.URL)
			if len(s.RequiredParams) > 0 {
				fmt.Fprintf(&sb, "  params: %s\n", strings.Join(s.RequiredParams, ", "))
			}
			fmt.Fprintf(&sb, "  fields: %s\n", strings.Join(s.Fields, ", "))
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

func handleRunScraper(c *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, err := request.RequireString("name")
		if err != nil {
			return mcp.NewToolResultError("name is required"), nil
		}
		params, err := paramsArg(request)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		markdown := request.GetBool("markdown", false)
		payload := models.NamedScrapeRequest{Params: params, Markdown: &markdown}

		body, err := c.do(ctx, http.MethodPost, "/api/v1/scrape/"+name, payload)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return formatResult(body), nil
	}
}

func handleScrapePage(c *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		raw, err := request.RequireString("config")
		if err != nil {
			return mcp.NewToolResultError("config is required"), nil
		}
		var cfg models.ScrapeConfig
		if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("config is not valid JSON: %v", err)), nil
		}
		if err := cfg.Validate(); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		params, err := paramsArg(request)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		body, err := c.do(ctx, http.MethodPost, "/api/v1/scrape", models.CustomScrapeRequest{
			ScrapeConfig: cfg,
			Params:       params,
		})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return formatResult(body), nil
	}
}

// paramsArg reads the optional "params" object. Non-string values are
// rendered with %v so numbers such as zip codes work unquoted.
func paramsArg(request mcp.CallToolRequest) (models.Params, error) {
	v, ok := request.GetArguments()["params"]
	if !ok || v == nil {
		return nil, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("params must be an object")
	}
	out := make(models.Params, len(m))
	for k, val := range m {
		out[k] = fmt.Sprint(val)
	}
	return out, nil
}

func formatResult(body []byte) *mcp.CallToolResult {
	// Requests rejected before scraping carry an error object instead of
	// a ScrapeResult.
	var probe struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err))
	}
	if len(probe.Error) > 0 && probe.Error[0] == '{' {
		var rejected models.ErrorResponse
		if err := json.Unmarshal(body, &rejected); err != nil || rejected.Error == nil {
			return mcp.NewToolResultError("request rejected")
		}
		msg := fmt.Sprintf("[%s] %s", rejected.Error.Code, rejected.Error.Message)
		for _, p := range rejected.Problems {
			msg += fmt.Sprintf("\n  %s: %s", p.Field, p.Reason)
		}
		return mcp.NewToolResultError(msg)
	}

	var res models.ScrapeResult
	if err := json.Unmarshal(body, &res); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err))
	}
	if !res.Success {
		return mcp.NewToolResultError(fmt.Sprintf("[%s] %s", res.Code, res.Error))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Source: %s\n\n", res.URL)

	fields := make([]string, 0, len(res.Data))
	for f := range res.Data {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, f := range fields {
		v := res.Data[f]
		switch {
		case v.IsNull():
			fmt.Fprintf(&sb, "%s: (not found)\n", f)
		case v.Kind() == models.ValueList:
			items, _ := v.List()
			fmt.Fprintf(&sb, "%s:\n", f)
			for _, it := range items {
				fmt.Fprintf(&sb, "  - %s\n", it)
			}
		default:
			s, _ := v.Scalar()
			fmt.Fprintf(&sb, "%s: %s\n", f, s)
		}
	}

	if res.Markdown != "" {
		sb.WriteString("\n---\n")
		sb.WriteString(res.Markdown)
	}
	if res.Timing != nil {
		fmt.Fprintf(&sb, "\n---\nTook %dms", res.Timing.TotalMs)
	}
	return mcp.NewToolResultText(sb.String())
}
