package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imyashkale/mcphub/internal/logger"
	"github.com/imyashkale/mcphub/internal/models"
	"github.com/imyashkale/mcphub/internal/services"
)

// ReadmeHandler previews the README of a GitHub repository
type ReadmeHandler struct {
	fetcher *services.ReadmeFetcher
}

// NewReadmeHandler creates a new README handler
func NewReadmeHandler(fetcher *services.ReadmeFetcher) *ReadmeHandler {
	return &ReadmeHandler{fetcher: fetcher}
}

// Get fetches the README for ?url=. A repository without a README is not
// an error; found is false.
// GET /api/v1/readme
func (h *ReadmeHandler) Get(c *gin.Context) {
	repoURL := c.Query("url")
	if repoURL == "" {
		badRequest(c, "url query parameter is required")
		return
	}

	content, err := h.fetcher.Fetch(c.Request.Context(), repoURL)
	switch {
	case errors.Is(err, services.ErrNotGitHubURL):
		respondError(c, err, "")
		return
	case err != nil:
		logger.WithFields(map[string]interface{}{
			"url":   repoURL,
			"error": err.Error(),
		}).Debug("README not available")
		c.JSON(http.StatusOK, models.ReadmeResponse{Url: repoURL})
		return
	}

	c.JSON(http.StatusOK, models.ReadmeResponse{
		Url:     repoURL,
		Found:   true,
		Content: content,
	})
}
