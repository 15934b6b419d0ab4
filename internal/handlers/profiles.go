package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imyashkale/mcphub/internal/logger"
	"github.com/imyashkale/mcphub/internal/models"
	"github.com/imyashkale/mcphub/internal/repository"
)

// ProfileHandler serves the profile rows that mirror identities
type ProfileHandler struct {
	repo repository.ProfileRepository
}

// NewProfileHandler creates a new profile handler
func NewProfileHandler(repo repository.ProfileRepository) *ProfileHandler {
	return &ProfileHandler{repo: repo}
}

// Get returns the profile rows for an id. The store may hold more than
// one; all are returned so the caller can decide.
// GET /api/v1/profiles/:id
func (h *ProfileHandler) Get(c *gin.Context) {
	if _, ok := requireUser(c); !ok {
		return
	}

	profiles, err := h.repo.FindProfiles(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, "Failed to fetch profile")
		return
	}

	c.JSON(http.StatusOK, models.ProfileListResponse{
		Profiles: profiles,
		Total:    len(profiles),
	})
}

// Put creates or replaces the caller's own profile
// PUT /api/v1/profiles/:id
func (h *ProfileHandler) Put(c *gin.Context) {
	userId, ok := requireUser(c)
	if !ok {
		return
	}

	id := c.Param("id")
	if id != userId {
		forbidden(c, "You can only update your own profile")
		return
	}

	var profile models.Profile
	if err := c.ShouldBindJSON(&profile); err != nil {
		badRequest(c, err.Error())
		return
	}
	profile.Id = id

	stored, err := h.repo.UpsertProfile(c.Request.Context(), profile)
	if err != nil {
		respondError(c, err, "Failed to save profile")
		return
	}

	logger.WithField("user_id", userId).Info("Profile saved")
	c.JSON(http.StatusOK, stored)
}
