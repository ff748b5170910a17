package models

import (
	"encoding/json"
	"errors"
	"time"
)

// ScrapeResult is the normalized outcome of one scrape. Exactly one of the
// success shape (Data plus optional captures) or the failure shape
// (Error and Code) is populated; Timestamp and URL are always set.
type ScrapeResult struct {
	Success bool `json:"success"`

	// Data holds one entry per configured field on success.
	Data ExtractedData `json:"data,omitempty"`

	// Screenshot is a base64 PNG of the full page, when requested.
	Screenshot string `json:"screenshot,omitempty"`

	// HTMLSource is the serialized DOM after interactions, when requested.
	HTMLSource string `json:"htmlSource,omitempty"`

	// Markdown is HTMLSource converted to markdown, when requested.
	Markdown string `json:"markdown,omitempty"`

	Error string `json:"error,omitempty"`
	Code  string `json:"code,omitempty"`

	// Timestamp is when the scrape started.
	Timestamp time.Time `json:"timestamp"`

	// URL is the resolved URL, or the template when resolution failed.
	URL string `json:"url"`

	Timing *TimingInfo `json:"timing,omitempty"`

	// Trace holds the pipeline events of a debug scrape.
	Trace []TraceEntry `json:"trace,omitempty"`
}

// TraceEntry is one pipeline event.
type TraceEntry struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"`
	Stage   string         `json:"stage"`
	Message string         `json:"message"`
	Attrs   map[string]any `json:"attrs,omitempty"`
}

// TimingInfo breaks down the time spent in each stage.
type TimingInfo struct {
	TotalMs       int64 `json:"totalMs"`
	SessionMs     int64 `json:"sessionMs"`
	NavigationMs  int64 `json:"navigationMs"`
	InteractionMs int64 `json:"interactionMs"`
	ExtractionMs  int64 `json:"extractionMs"`
	CaptureMs     int64 `json:"captureMs"`
}

// Captures carries the optional page artifacts of a successful scrape.
type Captures struct {
	Screenshot string
	HTMLSource string
	Markdown   string
}

// NewSuccessResult builds the success shape. A nil data map becomes empty.
func NewSuccessResult(url string, started time.Time, data ExtractedData, c Captures) ScrapeResult {
	if data == nil {
		data = ExtractedData{}
	}
	return ScrapeResult{
		Success:    true,
		Data:       data,
		Screenshot: c.Screenshot,
		HTMLSource: c.HTMLSource,
		Markdown:   c.Markdown,
		Timestamp:  started.UTC(),
		URL:        url,
	}
}

// NewFailureResult builds the failure shape from err. Errors without a code
// are reported as ErrCodeInternal.
func NewFailureResult(url string, started time.Time, err error) ScrapeResult {
	if err == nil {
		err = errors.New("unknown failure")
	}
	return ScrapeResult{
		Success:   false,
		Error:     FailureMessage(err),
		Code:      CodeOf(err),
		Timestamp: started.UTC(),
		URL:       url,
	}
}

// FailureMessage renders err without the code prefix of ScrapeError.Error.
func FailureMessage(err error) string {
	var se *ScrapeError
	if !errors.As(err, &se) {
		return err.Error()
	}
	if se.Err != nil {
		return se.Message + ": " + se.Err.Error()
	}
	return se.Message
}

// MarshalJSON always emits "data" on success, even for an empty selector
// map, and never on failure.
func (r ScrapeResult) MarshalJSON() ([]byte, error) {
	type alias ScrapeResult
	out := struct {
		alias
		Data *ExtractedData `json:"data,omitempty"`
	}{alias: alias(r)}
	if r.Success {
		d := r.Data
		if d == nil {
			d = ExtractedData{}
		}
		out.Data = &d
	}
	return json.Marshal(out)
}
