package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/pagescrape/models"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// StatsSource reports session counters. *scraper.Scraper satisfies it.
type StatsSource interface {
	Stats() models.SessionStats
}

// Health returns a handler for GET /api/v1/health.
//
// Status degrades while no browser is connected; the next scrape relaunches it.
func Health(src StatsSource, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats := src.Stats()

		status := "healthy"
		if !stats.BrowserConnected {
			status = "degraded"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:       status,
			Uptime:       time.Since(startTime).Round(time.Second).String(),
			SessionStats: stats,
			Version:      Version,
		})
	}
}
