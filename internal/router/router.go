package router

import (
	"github.com/gin-gonic/gin"

	"github.com/imyashkale/mcphub/internal/handlers"
	"github.com/imyashkale/mcphub/internal/middleware"
)

// Handlers groups the route handlers
type Handlers struct {
	Health   *handlers.HealthHandler
	Auth     *handlers.AuthHandler
	Servers  *handlers.ServerHandler
	Profiles *handlers.ProfileHandler
	Readme   *handlers.ReadmeHandler
	Drafts   *handlers.DraftHandler
}

// Options configures the middleware chain
type Options struct {
	CorsAllowedOrigin string
	JWTSecret         string
	JWTAudience       string
}

// Setup configures and returns the application router
func Setup(h Handlers, opts Options) *gin.Engine {
	// Create a new Gin router
	router := gin.Default()

	// Apply CORS middleware globally
	router.Use(middleware.CORS(opts.CorsAllowedOrigin))

	// API v1 routes
	v1 := router.Group("/api/v1")

	// Public routes
	v1.GET("/health", h.Health.Check)
	v1.GET("/auth/providers", h.Auth.Providers)
	v1.GET("/servers", h.Servers.List)
	v1.GET("/servers/:id", h.Servers.Get)
	v1.GET("/readme", h.Readme.Get)

	// Authenticated routes
	authed := v1.Group("")
	authed.Use(middleware.Authentication(opts.JWTSecret, opts.JWTAudience))

	authed.GET("/me", h.Auth.Me)

	profiles := authed.Group("/profiles")
	{
		profiles.GET("/:id", h.Profiles.Get)
		profiles.PUT("/:id", h.Profiles.Put)
	}

	servers := authed.Group("/servers")
	{
		servers.POST("", h.Servers.Create)
		servers.PATCH("/:id", h.Servers.Update)
		servers.DELETE("/:id", h.Servers.Delete)
		servers.POST("/:id/test", h.Servers.Test)
	}

	drafts := authed.Group("/drafts")
	{
		drafts.POST("", h.Drafts.Create)
		drafts.GET("/:id", h.Drafts.Get)
		drafts.PATCH("/:id", h.Drafts.Update)
		drafts.POST("/:id/save", h.Drafts.Save)
		drafts.DELETE("/:id", h.Drafts.Delete)
	}

	return router
}
