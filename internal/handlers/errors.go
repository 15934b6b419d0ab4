package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imyashkale/mcphub/internal/draft"
	"github.com/imyashkale/mcphub/internal/logger"
	"github.com/imyashkale/mcphub/internal/models"
	"github.com/imyashkale/mcphub/internal/repository"
	"github.com/imyashkale/mcphub/internal/services"
)

// respondError maps err to a status code and writes an ErrorResponse.
// message is used for failures that have no more specific mapping.
func respondError(c *gin.Context, err error, message string) {
	var validation *draft.ValidationError
	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "validation_failed",
			Message: "Please correct the highlighted fields",
			Fields:  validation.Fields,
		})
	case errors.Is(err, repository.ErrInvalidStatus):
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_status",
			Message: "Status must be one of active, inactive or deprecated",
			Fields:  map[string]string{draft.FieldStatus: err.Error()},
		})
	case errors.Is(err, repository.ErrImmutableField):
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "immutable_field",
			Message: "The id and owner of a server cannot be changed",
		})
	case errors.Is(err, services.ErrNotGitHubURL), errors.Is(err, services.ErrTestFailed):
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "bad_request",
			Message: err.Error(),
		})
	case errors.Is(err, draft.ErrNotSignedIn):
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{
			Error:   "unauthorized",
			Message: err.Error(),
		})
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, draft.ErrNotFound), errors.Is(err, draft.ErrClosed):
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error:   "not_found",
			Message: message,
		})
	case errors.Is(err, repository.ErrAlreadyExists), errors.Is(err, draft.ErrSaveInProgress):
		c.JSON(http.StatusConflict, models.ErrorResponse{
			Error:   "conflict",
			Message: err.Error(),
		})
	default:
		logger.WithFields(map[string]interface{}{
			"path":  c.Request.URL.Path,
			"error": err.Error(),
		}).Error(message)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "internal_error",
			Message: message,
		})
	}
}

// forbidden writes a 403 for an action on someone else's resource
func forbidden(c *gin.Context, message string) {
	c.JSON(http.StatusForbidden, models.ErrorResponse{
		Error:   "forbidden",
		Message: message,
	})
}

// badRequest writes a 400 for a malformed request
func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Error:   "bad_request",
		Message: message,
	})
}

// requireUser returns the authenticated user id or writes a 401
func requireUser(c *gin.Context) (string, bool) {
	userId := c.GetString("user_id")
	if userId == "" {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{
			Error:   "unauthorized",
			Message: "User ID not found in context",
		})
		return "", false
	}
	return userId, true
}
