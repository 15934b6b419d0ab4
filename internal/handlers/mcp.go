package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"github.com/imyashkale/mcphub/internal/catalog"
	"github.com/imyashkale/mcphub/internal/draft"
	"github.com/imyashkale/mcphub/internal/logger"
	"github.com/imyashkale/mcphub/internal/models"
	"github.com/imyashkale/mcphub/internal/repository"
	"github.com/imyashkale/mcphub/internal/services"
)

// ServerHandler handles MCP server listing requests. Ownership of a
// listing is enforced here.
type ServerHandler struct {
	repo   repository.ServerRepository
	tester *services.Tester
}

// NewServerHandler creates a new server handler
func NewServerHandler(repo repository.ServerRepository, tester *services.Tester) *ServerHandler {
	return &ServerHandler{
		repo:   repo,
		tester: tester,
	}
}

// List returns every listing, filtered and sorted by the query parameters
// status, sort_by, sort_order, search, tag (repeatable), featured and limit.
// GET /api/v1/servers
func (h *ServerHandler) List(c *gin.Context) {
	filter, err := filterFromQuery(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	servers, err := h.repo.ListServers(c.Request.Context())
	if err != nil {
		respondError(c, err, "Failed to retrieve MCP servers")
		return
	}

	servers = catalog.Apply(servers, filter)

	responses := make([]models.ServerResponse, 0, len(servers))
	for i := range servers {
		responses = append(responses, servers[i].ToResponse())
	}

	c.JSON(http.StatusOK, models.ServerListResponse{
		Servers: responses,
		Total:   len(responses),
	})
}

func filterFromQuery(c *gin.Context) (catalog.Filter, error) {
	var f catalog.Filter
	var err error

	if status := c.Query("status"); status != "" {
		f.Status = models.ServerStatus(strings.ToLower(status))
		if !f.Status.Valid() {
			return f, repository.ErrInvalidStatus
		}
	}
	if f.SortBy, err = catalog.ParseSortField(c.Query("sort_by")); err != nil {
		return f, err
	}
	if f.SortOrder, err = catalog.ParseSortOrder(c.Query("sort_order")); err != nil {
		return f, err
	}
	f.Search = c.Query("search")
	f.Tags = models.NormalizeTags(c.QueryArray("tag"))

	if limit := c.Query("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			return f, fmt.Errorf("invalid limit %q", limit)
		}
		f.Limit = n
	}
	if featured, _ := strconv.ParseBool(c.Query("featured")); featured {
		f.SortBy = catalog.SortRating
		f.Limit = catalog.FeaturedCount
	}
	return f, nil
}

// Get returns a single listing
// GET /api/v1/servers/:id
func (h *ServerHandler) Get(c *gin.Context) {
	server, err := h.repo.GetServer(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, "MCP server not found")
		return
	}

	c.JSON(http.StatusOK, server.ToResponse())
}

// Create registers a listing owned by the caller
// POST /api/v1/servers
func (h *ServerHandler) Create(c *gin.Context) {
	userId, ok := requireUser(c)
	if !ok {
		return
	}

	var req models.CreateServerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	server := req.ToDomain(userId)
	if fields := draft.ValidateListing(server); fields != nil {
		respondError(c, &draft.ValidationError{Fields: fields}, "Invalid MCP server")
		return
	}

	stored, err := h.repo.CreateServer(c.Request.Context(), server)
	if err != nil {
		respondError(c, err, "Failed to create MCP server")
		return
	}

	logger.WithFields(map[string]interface{}{
		"server_id": stored.Id,
		"user_id":   userId,
	}).Info("MCP server registered")

	c.JSON(http.StatusCreated, stored.ToResponse())
}

// Update applies a partial update to a listing the caller owns
// PATCH /api/v1/servers/:id
func (h *ServerHandler) Update(c *gin.Context) {
	userId, ok := requireUser(c)
	if !ok {
		return
	}

	var req models.UpdateServerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	current, ok := h.owned(c, userId, "You don't have permission to update this MCP server")
	if !ok {
		return
	}
	if req.ChangesImmutable(current) {
		respondError(c, repository.ErrImmutableField, "")
		return
	}

	patch := req.ToPatch()
	merged := current.Clone()
	patch.ApplyTo(&merged)
	if fields := draft.ValidateListing(merged); fields != nil {
		respondError(c, &draft.ValidationError{Fields: fields}, "Invalid MCP server")
		return
	}

	stored, err := h.repo.UpdateServer(c.Request.Context(), current.Id, patch)
	if err != nil {
		respondError(c, err, "Failed to update MCP server")
		return
	}

	c.JSON(http.StatusOK, stored.ToResponse())
}

// Delete removes a listing the caller owns
// DELETE /api/v1/servers/:id
func (h *ServerHandler) Delete(c *gin.Context) {
	userId, ok := requireUser(c)
	if !ok {
		return
	}

	server, ok := h.owned(c, userId, "You don't have permission to delete this MCP server")
	if !ok {
		return
	}

	if err := h.repo.DeleteServer(c.Request.Context(), server.Id); err != nil {
		respondError(c, err, "Failed to delete MCP server")
		return
	}

	logger.WithFields(map[string]interface{}{
		"server_id": server.Id,
		"user_id":   userId,
	}).Info("MCP server deleted")

	c.JSON(http.StatusOK, gin.H{
		"message": "MCP server deleted successfully",
	})
}

// Test calls the listing's endpoint, either with an echo request or with
// an MCP handshake. Any signed-in user may test any listing.
// POST /api/v1/servers/:id/test
func (h *ServerHandler) Test(c *gin.Context) {
	if _, ok := requireUser(c); !ok {
		return
	}

	var req models.TestServerRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
	}

	server, err := h.repo.GetServer(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, "MCP server not found")
		return
	}

	result, err := h.tester.Run(c.Request.Context(), server.EndpointUrl, req)
	if err != nil {
		respondError(c, err, "Failed to test MCP server")
		return
	}
	result.ServerName = lo.CoalesceOrEmpty(result.ServerName, server.Name)

	c.JSON(http.StatusOK, result)
}

// owned loads the :id listing and checks that userId owns it
func (h *ServerHandler) owned(c *gin.Context, userId, denied string) (models.ServerListing, bool) {
	server, err := h.repo.GetServer(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, "MCP server not found")
		return models.ServerListing{}, false
	}

	if server.OwnerId != userId {
		logger.WithFields(map[string]interface{}{
			"server_id": server.Id,
			"user_id":   userId,
		}).Warn("Rejected change to a server owned by another user")
		forbidden(c, denied)
		return models.ServerListing{}, false
	}
	return server, true
}
