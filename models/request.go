package models

// WebhookConfig asks for the result to be delivered to a callback URL.
type WebhookConfig struct {
	URL string `json:"url" binding:"required,url"`

	// Secret signs the payload with HMAC-SHA256 when non-empty.
	Secret string `json:"secret,omitempty"`
}

// NamedScrapeRequest is the payload for POST /api/v1/scrape/:name.
// Nil flags keep the catalog config's value.
type NamedScrapeRequest struct {
	// Params supplies the values of the config's URL params and paramName steps.
	Params Params `json:"params,omitempty"`

	Debug      *bool `json:"debug,omitempty"`
	Screenshot *bool `json:"screenshot,omitempty"`
	HTMLSource *bool `json:"htmlSource,omitempty"`
	Markdown   *bool `json:"markdown,omitempty"`

	Webhook *WebhookConfig `json:"webhook,omitempty"`
}

// Apply merges the request flags into cfg.
func (r *NamedScrapeRequest) Apply(cfg *ScrapeConfig) {
	if r.Debug != nil {
		cfg.Debug = *r.Debug
	}
	if r.Screenshot != nil {
		cfg.Screenshot = *r.Screenshot
	}
	if r.HTMLSource != nil {
		cfg.HTMLSource = *r.HTMLSource
	}
	if r.Markdown != nil {
		cfg.Markdown = *r.Markdown
	}
}

// CustomScrapeRequest is the payload for POST /api/v1/scrape: an inline
// config plus the parameter mapping.
type CustomScrapeRequest struct {
	ScrapeConfig

	Params  Params         `json:"params,omitempty"`
	Webhook *WebhookConfig `json:"webhook,omitempty"`
}

// SnapshotExtractRequest is the payload for POST /api/v1/extract.
type SnapshotExtractRequest struct {
	// HTML is a previously captured page, e.g. a result's htmlSource.
	HTML string `json:"html" binding:"required"`

	Selectors map[string]string `json:"selectors" binding:"required"`

	// PostProcess names a hook per field, as in ScrapeConfig.
	PostProcess map[string]string `json:"postProcess,omitempty"`

	// OuterHTML also returns the rendered markup of each field's matches.
	OuterHTML bool `json:"outerHTML,omitempty"`
}
