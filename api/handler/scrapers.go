package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/pagescrape/catalog"
	"github.com/use-agent/pagescrape/models"
)

// ListScrapers returns a handler for GET /api/v1/scrapers.
func ListScrapers(cat *catalog.Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, models.ScrapersResponse{Scrapers: cat.Info()})
	}
}
