package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imyashkale/mcphub/internal/authgate"
	"github.com/imyashkale/mcphub/internal/middleware"
	"github.com/imyashkale/mcphub/internal/models"
	"github.com/imyashkale/mcphub/internal/repository"
	"github.com/imyashkale/mcphub/internal/session"
)

// AuthHandler exposes the sign-in configuration and the caller's identity
type AuthHandler struct {
	providers authgate.Providers
	profiles  repository.ProfileRepository
}

// NewAuthHandler creates a new AuthHandler instance
func NewAuthHandler(providers authgate.Providers, profiles repository.ProfileRepository) *AuthHandler {
	return &AuthHandler{
		providers: providers,
		profiles:  profiles,
	}
}

// Providers lists the enabled sign-in methods
// GET /api/v1/auth/providers
func (h *AuthHandler) Providers(c *gin.Context) {
	c.JSON(http.StatusOK, models.ProvidersResponse{
		Providers: h.providers.Enabled(),
		GitHub:    h.providers.GitHubEnabled(),
		Email:     h.providers.EmailEnabled(),
	})
}

// Me returns the caller's identity and makes sure the profile row exists.
// A reconciliation failure is reported in the body, not as an error status.
// GET /api/v1/me
func (h *AuthHandler) Me(c *gin.Context) {
	user, ok := middleware.Identity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{
			Error:   "unauthorized",
			Message: "Identity not found in context",
		})
		return
	}

	synced := session.ReconcileProfile(c.Request.Context(), h.profiles, user)

	c.JSON(http.StatusOK, models.MeResponse{
		User:        user,
		ProfileSync: synced,
	})
}
