package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/acadhub/curricula-api/internal/dto"
	"github.com/acadhub/curricula-api/internal/models"
	appErrors "github.com/acadhub/curricula-api/pkg/errors"
	"github.com/acadhub/curricula-api/pkg/response"
)

type collaboratorManager interface {
	Add(ctx context.Context, entityID, userID string, actor *models.JWTClaims) error
	Remove(ctx context.Context, entityID, userID string, actor *models.JWTClaims) error
	List(ctx context.Context, entityID string) ([]models.Collaborator, error)
}

// CollaboratorHandler manages edit grants on entity versions.
type CollaboratorHandler struct {
	service collaboratorManager
}

// NewCollaboratorHandler constructs the handler.
func NewCollaboratorHandler(service collaboratorManager) *CollaboratorHandler {
	return &CollaboratorHandler{service: service}
}

// Add godoc
// @Summary Grant a user edit access to an entity version
// @Tags Collaborators
// @Accept json
// @Produce json
// @Param type path string true "Entity type"
// @Param id path string true "Entity ID"
// @Param payload body dto.CollaboratorRequest true "User to grant"
// @Success 201 {object} response.Envelope
// @Router /{type}/{id}/collaborators [post]
func (h *CollaboratorHandler) Add(c *gin.Context) {
	if _, ok := entityKindFromContext(c); !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown entity type"))
		return
	}
	var req dto.CollaboratorRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.UserID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "userId is required"))
		return
	}
	if err := h.service.Add(c.Request.Context(), c.Param("id"), req.UserID, claimsFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, gin.H{"entityId": c.Param("id"), "userId": req.UserID}, nil)
}

// Remove godoc
// @Summary Revoke a user's edit access
// @Tags Collaborators
// @Produce json
// @Param type path string true "Entity type"
// @Param id path string true "Entity ID"
// @Param userId path string true "User ID"
// @Success 204
// @Router /{type}/{id}/collaborators/{userId} [delete]
func (h *CollaboratorHandler) Remove(c *gin.Context) {
	if _, ok := entityKindFromContext(c); !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown entity type"))
		return
	}
	if err := h.service.Remove(c.Request.Context(), c.Param("id"), c.Param("userId"), claimsFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// List godoc
// @Summary List collaborator grants on an entity version
// @Tags Collaborators
// @Produce json
// @Param type path string true "Entity type"
// @Param id path string true "Entity ID"
// @Success 200 {object} response.Envelope
// @Router /{type}/{id}/collaborators [get]
func (h *CollaboratorHandler) List(c *gin.Context) {
	if _, ok := entityKindFromContext(c); !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown entity type"))
		return
	}
	collaborators, err := h.service.List(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, collaborators, nil)
}
