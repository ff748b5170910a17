package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/use-agent/pagescrape/catalog"
	"github.com/use-agent/pagescrape/models"
	"github.com/use-agent/pagescrape/webhook"
)

// Runner executes one scrape. *scraper.Scraper satisfies it.
type Runner interface {
	Scrape(ctx context.Context, cfg *models.ScrapeConfig, params models.Params) models.ScrapeResult
}

// Dispatcher runs work in the background and delivers its result to a
// webhook. *webhook.Sender satisfies it.
type Dispatcher interface {
	Dispatch(url, secret string, produce func() *webhook.Event)
}

// ScrapeNamed returns a handler for POST /api/v1/scrape/:name.
//
// Orchestration flow:
//  1. Look up the catalog entry (404 if unknown).
//  2. Parse the optional body and merge its flags into a copy of the entry.
//  3. Run the scrape detached from the client connection.
//  4. Respond with the ScrapeResult, status derived from its code.
func ScrapeNamed(run Runner, cat *catalog.Catalog, hooks Dispatcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		// ── 1. Catalog lookup ───────────────────────────────────────
		name := c.Param("name")
		cfg, ok := cat.Get(name)
		if !ok {
			respondRejected(c, http.StatusNotFound, models.ErrCodeNotFound,
				"unknown scraper "+name, nil)
			return
		}

		// ── 2. Parse request ────────────────────────────────────────
		var req models.NamedScrapeRequest
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				respondRejected(c, http.StatusBadRequest, models.ErrCodeInvalidInput, err.Error(), nil)
				return
			}
		}
		req.Apply(&cfg)

		slog.Info("named scrape requested",
			"scraper", name,
			"params", len(req.Params),
			"webhook", req.Webhook != nil,
		)

		// ── 3-4. Scrape + respond ───────────────────────────────────
		runAndRespond(c, run, hooks, &cfg, req.Params, req.Webhook)
	}
}

// ScrapeCustom returns a handler for POST /api/v1/scrape. The body is an
// inline ScrapeConfig plus params; it is validated before any browser work.
func ScrapeCustom(run Runner, hooks Dispatcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.CustomScrapeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondRejected(c, http.StatusBadRequest, models.ErrCodeInvalidInput, err.Error(), nil)
			return
		}

		cfg := req.ScrapeConfig
		if err := cfg.Validate(); err != nil {
			var ve *models.ValidationError
			errors.As(err, &ve)
			var problems []models.FieldError
			if ve != nil {
				problems = ve.Problems
			}
			respondRejected(c, http.StatusBadRequest, models.ErrCodeInvalidInput,
				"invalid scrape config", problems)
			return
		}

		runAndRespond(c, run, hooks, &cfg, req.Params, req.Webhook)
	}
}

// runAndRespond runs cfg synchronously, or in the background when a webhook
// is configured. Either way the scrape context is detached from the client
// connection so a disconnect cannot abort it halfway.
func runAndRespond(
	c *gin.Context,
	run Runner,
	hooks Dispatcher,
	cfg *models.ScrapeConfig,
	params models.Params,
	hook *models.WebhookConfig,
) {
	ctx := context.WithoutCancel(c.Request.Context())

	if hook != nil {
		id := uuid.NewString()
		hooks.Dispatch(hook.URL, hook.Secret, func() *webhook.Event {
			result := run.Scrape(ctx, cfg, params)
			return &webhook.Event{
				Type:      webhook.EventScrapeCompleted,
				ID:        id,
				Timestamp: time.Now().Unix(),
				Data:      result,
			}
		})
		c.JSON(http.StatusAccepted, models.AcceptedResponse{
			Success: true,
			ID:      id,
			Status:  "accepted",
		})
		return
	}

	result := run.Scrape(ctx, cfg, params)
	c.JSON(StatusFor(result), result)
}

// StatusFor maps a ScrapeResult to its HTTP status code.
func StatusFor(r models.ScrapeResult) int {
	if r.Success {
		return http.StatusOK
	}
	switch r.Code {
	case models.ErrCodeMissingParameter, models.ErrCodeInvalidInput:
		return http.StatusBadRequest // 400
	case models.ErrCodeNotFound:
		return http.StatusNotFound // 404
	case models.ErrCodeInteraction:
		return http.StatusUnprocessableEntity // 422
	case models.ErrCodeNavigation:
		return http.StatusBadGateway // 502
	case models.ErrCodeBrowserLaunch, models.ErrCodeSession:
		return http.StatusServiceUnavailable // 503
	default:
		return http.StatusInternalServerError // 500
	}
}

// respondRejected writes the error shape for requests that never reached
// the scraper.
func respondRejected(c *gin.Context, status int, code, msg string, problems []models.FieldError) {
	c.JSON(status, models.ErrorResponse{
		Success:  false,
		Error:    &models.ErrorDetail{Code: code, Message: msg},
		Problems: problems,
	})
}
