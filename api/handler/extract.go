package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/pagescrape/models"
	"github.com/use-agent/pagescrape/scraper"
)

// HookSource provides the post-process hooks live scrapes use, so snapshot
// extraction produces the same values.
type HookSource interface {
	Hooks() *scraper.HookRegistry
}

// Extract returns a handler for POST /api/v1/extract.
//
// It applies selectors to a previously captured document, e.g. the
// htmlSource of an earlier result, without touching the browser. Field
// errors degrade to null and are listed as warnings.
func Extract(hooks HookSource) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.SnapshotExtractRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondRejected(c, http.StatusBadRequest, models.ErrCodeInvalidInput, err.Error(), nil)
			return
		}

		var problems []models.FieldError
		for field := range req.PostProcess {
			if _, ok := req.Selectors[field]; !ok {
				problems = append(problems, models.FieldError{Field: "postProcess." + field, Reason: "no selector with this field name"})
			}
		}
		if len(problems) > 0 {
			respondRejected(c, http.StatusBadRequest, models.ErrCodeInvalidInput, "invalid extract request", problems)
			return
		}

		res, err := scraper.ExtractSnapshot(c.Request.Context(), req.HTML, req.Selectors, scraper.SnapshotOptions{
			PostProcess: req.PostProcess,
			Hooks:       hooks.Hooks(),
			OuterHTML:   req.OuterHTML,
		})
		if err != nil {
			c.JSON(http.StatusUnprocessableEntity, models.SnapshotExtractResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeExtraction,
					Message: err.Error(),
				},
			})
			return
		}

		c.JSON(http.StatusOK, models.SnapshotExtractResponse{
			Success:   true,
			Data:      res.Data,
			OuterHTML: res.OuterHTML,
			Warnings:  res.Problems,
		})
	}
}
