package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imyashkale/mcphub/internal/draft"
	"github.com/imyashkale/mcphub/internal/logger"
	"github.com/imyashkale/mcphub/internal/models"
	"github.com/imyashkale/mcphub/internal/repository"
)

// DraftHandler hosts server-side registration and edit drafts. README
// enrichment of a draft runs on the enrichment worker pool.
type DraftHandler struct {
	store   *draft.Store
	servers repository.ServerRepository
	deps    draft.Deps
}

// NewDraftHandler creates a new draft handler
func NewDraftHandler(store *draft.Store, servers repository.ServerRepository, deps draft.Deps) *DraftHandler {
	return &DraftHandler{
		store:   store,
		servers: servers,
		deps:    deps,
	}
}

// Create opens a draft. Without a serverId it starts a registration,
// otherwise an edit of a listing the caller owns.
// POST /api/v1/drafts
func (h *DraftHandler) Create(c *gin.Context) {
	userId, ok := requireUser(c)
	if !ok {
		return
	}

	var req models.CreateDraftRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
	}

	var d *draft.Draft
	if req.ServerId == "" {
		d = draft.NewCreateDraft(userId, h.deps)
	} else {
		server, err := h.servers.GetServer(c.Request.Context(), req.ServerId)
		if err != nil {
			respondError(c, err, "MCP server not found")
			return
		}
		if server.OwnerId != userId {
			forbidden(c, "You don't have permission to edit this MCP server")
			return
		}
		d = draft.NewEditDraft(server, h.deps)
	}
	h.store.Put(d)

	logger.WithFields(map[string]interface{}{
		"draft_id":  d.Id(),
		"server_id": req.ServerId,
		"user_id":   userId,
		"mode":      d.Mode(),
	}).Info("Draft opened")

	c.JSON(http.StatusCreated, d.Snapshot())
}

// Get returns the current state of a draft, including enrichment progress
// GET /api/v1/drafts/:id
func (h *DraftHandler) Get(c *gin.Context) {
	d, ok := h.load(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, d.Snapshot())
}

// Update applies field edits. Changing the endpoint URL may start a README
// fetch; poll Get to see it land.
// PATCH /api/v1/drafts/:id
func (h *DraftHandler) Update(c *gin.Context) {
	d, ok := h.load(c)
	if !ok {
		return
	}

	var req models.UpdateServerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if req.ChangesImmutable(d.Listing()) {
		respondError(c, repository.ErrImmutableField, "")
		return
	}

	d.Apply(req.ToPatch())
	c.JSON(http.StatusOK, d.Snapshot())
}

// Save validates and commits the draft. The draft stays open, now editing
// the stored listing.
// POST /api/v1/drafts/:id/save
func (h *DraftHandler) Save(c *gin.Context) {
	d, ok := h.load(c)
	if !ok {
		return
	}

	stored, err := d.Save(c.Request.Context(), h.servers)
	if err != nil {
		respondError(c, err, "Failed to save MCP server")
		return
	}

	logger.WithFields(map[string]interface{}{
		"draft_id":  d.Id(),
		"server_id": stored.Id,
	}).Info("Draft saved")

	c.JSON(http.StatusOK, models.DraftSaveResponse{
		Server: stored.ToResponse(),
		Draft:  d.Snapshot(),
	})
}

// Delete discards a draft and cancels its enrichment
// DELETE /api/v1/drafts/:id
func (h *DraftHandler) Delete(c *gin.Context) {
	d, ok := h.load(c)
	if !ok {
		return
	}
	h.store.Delete(d.Id())
	c.Status(http.StatusNoContent)
}

// load finds the :id draft and checks that the caller owns it
func (h *DraftHandler) load(c *gin.Context) (*draft.Draft, bool) {
	userId, ok := requireUser(c)
	if !ok {
		return nil, false
	}

	d, ok := h.store.Get(c.Param("id"))
	if !ok {
		respondError(c, draft.ErrNotFound, "Draft not found")
		return nil, false
	}
	if d.OwnerId() != userId {
		forbidden(c, "You don't have permission to access this draft")
		return nil, false
	}
	return d, true
}
