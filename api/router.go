package api

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/pagescrape/api/handler"
	"github.com/use-agent/pagescrape/api/middleware"
	"github.com/use-agent/pagescrape/catalog"
	"github.com/use-agent/pagescrape/config"
)

// Scraper is what the router needs from *scraper.Scraper.
type Scraper interface {
	handler.Runner
	handler.StatsSource
	handler.HookSource
}

// Deps are the collaborators shared by every handler.
type Deps struct {
	Scraper   Scraper
	Catalog   *catalog.Catalog
	Webhooks  handler.Dispatcher
	Config    *config.Config
	StartTime time.Time
}

// NewRouter creates a configured Gin engine with all routes and middleware.
// ctx stops the rate limiter's background eviction.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health endpoint is intentionally outside auth so monitoring probes always work.
func NewRouter(ctx context.Context, d Deps) *gin.Engine {
	gin.SetMode(d.Config.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	v1 := r.Group("/api/v1")

	// Health, no auth required.
	v1.GET("/health", handler.Health(d.Scraper, d.StartTime))

	// Protected group: auth and rate limit.
	protected := v1.Group("")
	if d.Config.Auth.Enabled {
		protected.Use(middleware.Auth(d.Config.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(ctx, d.Config.RateLimit))

	// Catalog
	protected.GET("/scrapers", handler.ListScrapers(d.Catalog))

	// Scrape
	protected.POST("/scrape/:name", handler.ScrapeNamed(d.Scraper, d.Catalog, d.Webhooks))
	protected.POST("/scrape", handler.ScrapeCustom(d.Scraper, d.Webhooks))

	// Snapshot extraction, no browser involved
	protected.POST("/extract", handler.Extract(d.Scraper))

	return r
}
