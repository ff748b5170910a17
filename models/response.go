package models

import "time"

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status       string       `json:"status"` // "healthy" or "degraded"
	Uptime       string       `json:"uptime"`
	SessionStats SessionStats `json:"sessionStats"`
	Version      string       `json:"version"`
}

// SessionStats reports the browser handle and the sessions it carries.
type SessionStats struct {
	BrowserConnected bool       `json:"browserConnected"`
	ActiveSessions   int64      `json:"activeSessions"`
	TotalSessions    int64      `json:"totalSessions"`
	LaunchedAt       *time.Time `json:"launchedAt,omitempty"`
}

// ScraperInfo describes one catalog entry.
type ScraperInfo struct {
	Name           string   `json:"name"`
	URL            string   `json:"url"`
	RequiredParams []string `json:"requiredParams"`
	Fields         []string `json:"fields"`
}

// ScrapersResponse is the response for GET /api/v1/scrapers.
type ScrapersResponse struct {
	Scrapers []ScraperInfo `json:"scrapers"`
}

// SnapshotExtractResponse is the response for POST /api/v1/extract.
type SnapshotExtractResponse struct {
	Success bool          `json:"success"`
	Data    ExtractedData `json:"data,omitempty"`

	// OuterHTML holds the matched markup per field when requested.
	OuterHTML map[string][]string `json:"outerHTML,omitempty"`

	// Warnings lists fields that degraded to null or kept their raw value.
	Warnings []FieldError `json:"warnings,omitempty"`

	Error *ErrorDetail `json:"error,omitempty"`
}

// ErrorResponse is returned for requests rejected before a scrape starts.
type ErrorResponse struct {
	Success bool         `json:"success"`
	Error   *ErrorDetail `json:"error"`

	// Problems carries per-field validation failures.
	Problems []FieldError `json:"problems,omitempty"`
}

// AcceptedResponse is returned when a scrape runs in the background and its
// result is delivered to a webhook.
type AcceptedResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
	Status  string `json:"status"` // always "accepted"
}
