package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/acadhub/curricula-api/internal/dto"
	"github.com/acadhub/curricula-api/internal/models"
	appErrors "github.com/acadhub/curricula-api/pkg/errors"
	"github.com/acadhub/curricula-api/pkg/response"
)

type approvalCoordinator interface {
	Create(ctx context.Context, kind models.EntityKind, req dto.CreateEntityRequest, actor *models.JWTClaims) (*models.Entity, error)
	Get(ctx context.Context, id string) (*models.Entity, error)
	List(ctx context.Context, filter models.EntityFilter) ([]models.Entity, error)
	Lineage(ctx context.Context, id string) ([]models.Entity, error)
	Timeline(ctx context.Context, id string) ([]models.AuditEvent, error)
	UpdateContent(ctx context.Context, id string, req dto.UpdateEntityRequest, actor *models.JWTClaims) (*models.Entity, error)
	Submit(ctx context.Context, id string, actor *models.JWTClaims) (*models.Entity, error)
	Decide(ctx context.Context, id string, req dto.DecideRequest, actor *models.JWTClaims) (*models.Entity, error)
	Publish(ctx context.Context, id string, actor *models.JWTClaims) (*models.Entity, error)
	RequestEdit(ctx context.Context, id string, req dto.EditRequest, actor *models.JWTClaims) (*dto.EditTarget, error)
	PendingQueue(ctx context.Context, kind models.EntityKind, actor *models.JWTClaims) ([]dto.PendingApprovalItem, error)
}

// EntityHandler exposes REST endpoints for the course/degree approval
// workflow. The route group it is mounted under selects the entity kind
// via the EntityType middleware.
type EntityHandler struct {
	service approvalCoordinator
}

// NewEntityHandler constructs the handler.
func NewEntityHandler(service approvalCoordinator) *EntityHandler {
	return &EntityHandler{service: service}
}

func (h *EntityHandler) kind(c *gin.Context) (models.EntityKind, bool) {
	kind, ok := entityKindFromContext(c)
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown entity type"))
	}
	return kind, ok
}

// Create godoc
// @Summary Create a new course or degree draft
// @Tags Entities
// @Accept json
// @Produce json
// @Param type path string true "Entity type (courses or degrees)"
// @Param payload body dto.CreateEntityRequest true "Entity payload"
// @Success 201 {object} response.Envelope
// @Router /{type} [post]
func (h *EntityHandler) Create(c *gin.Context) {
	kind, ok := h.kind(c)
	if !ok {
		return
	}
	var req dto.CreateEntityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid entity payload"))
		return
	}
	entity, err := h.service.Create(c.Request.Context(), kind, req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, entity, nil)
}

// List godoc
// @Summary List entity versions
// @Tags Entities
// @Produce json
// @Param type path string true "Entity type"
// @Param status query string false "Comma separated statuses"
// @Param department query string false "Department code"
// @Param baseCode query string false "Base code"
// @Success 200 {object} response.Envelope
// @Router /{type} [get]
func (h *EntityHandler) List(c *gin.Context) {
	kind, ok := h.kind(c)
	if !ok {
		return
	}
	filter := models.EntityFilter{
		Kind:           kind,
		DepartmentCode: strings.ToUpper(strings.TrimSpace(c.Query("department"))),
		BaseCode:       strings.ToUpper(strings.TrimSpace(c.Query("baseCode"))),
	}
	if rawStatus := c.Query("status"); rawStatus != "" {
		for _, part := range strings.Split(rawStatus, ",") {
			part = strings.ToUpper(strings.TrimSpace(part))
			if part != "" {
				filter.Status = append(filter.Status, models.EntityStatus(part))
			}
		}
	}
	entities, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entities, nil)
}

// Get godoc
// @Summary Get one entity version
// @Tags Entities
// @Produce json
// @Param type path string true "Entity type"
// @Param id path string true "Entity ID"
// @Success 200 {object} response.Envelope
// @Router /{type}/{id} [get]
func (h *EntityHandler) Get(c *gin.Context) {
	if _, ok := h.kind(c); !ok {
		return
	}
	entity, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entity, nil)
}

// Update godoc
// @Summary Edit a draft or rejected version in place
// @Tags Entities
// @Accept json
// @Produce json
// @Param type path string true "Entity type"
// @Param id path string true "Entity ID"
// @Param payload body dto.UpdateEntityRequest true "Content fields"
// @Success 200 {object} response.Envelope
// @Router /{type}/{id} [put]
func (h *EntityHandler) Update(c *gin.Context) {
	if _, ok := h.kind(c); !ok {
		return
	}
	var req dto.UpdateEntityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid entity payload"))
		return
	}
	entity, err := h.service.UpdateContent(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entity, nil)
}

// Submit godoc
// @Summary Submit a draft for approval
// @Tags Workflow
// @Produce json
// @Param type path string true "Entity type"
// @Param id path string true "Entity ID"
// @Success 200 {object} response.Envelope
// @Router /{type}/{id}/submit [post]
func (h *EntityHandler) Submit(c *gin.Context) {
	if _, ok := h.kind(c); !ok {
		return
	}
	entity, err := h.service.Submit(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entity, nil)
}

// Decide godoc
// @Summary Approve, reject, or request changes on a pending version
// @Tags Workflow
// @Accept json
// @Produce json
// @Param type path string true "Entity type"
// @Param id path string true "Entity ID"
// @Param payload body dto.DecideRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Router /{type}/{id}/decide [post]
func (h *EntityHandler) Decide(c *gin.Context) {
	if _, ok := h.kind(c); !ok {
		return
	}
	var req dto.DecideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid decision payload"))
		return
	}
	entity, err := h.service.Decide(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entity, nil)
}

// Publish godoc
// @Summary Activate an approved version, archiving the prior active one
// @Tags Workflow
// @Produce json
// @Param type path string true "Entity type"
// @Param id path string true "Entity ID"
// @Success 200 {object} response.Envelope
// @Router /{type}/{id}/publish [post]
func (h *EntityHandler) Publish(c *gin.Context) {
	if _, ok := h.kind(c); !ok {
		return
	}
	entity, err := h.service.Publish(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entity, nil)
}

// RequestEdit godoc
// @Summary Resolve where an edit should happen (in place or a new fork)
// @Tags Workflow
// @Accept json
// @Produce json
// @Param type path string true "Entity type"
// @Param id path string true "Entity ID"
// @Param payload body dto.EditRequest false "Edit options"
// @Success 200 {object} response.Envelope
// @Router /{type}/{id}/edit-request [post]
func (h *EntityHandler) RequestEdit(c *gin.Context) {
	if _, ok := h.kind(c); !ok {
		return
	}
	var req dto.EditRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid edit request payload"))
			return
		}
	}
	target, err := h.service.RequestEdit(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, target, nil)
}

// Lineage godoc
// @Summary List every version sharing the entity's base code
// @Tags Entities
// @Produce json
// @Param type path string true "Entity type"
// @Param id path string true "Entity ID"
// @Success 200 {object} response.Envelope
// @Router /{type}/{id}/lineage [get]
func (h *EntityHandler) Lineage(c *gin.Context) {
	if _, ok := h.kind(c); !ok {
		return
	}
	lineage, err := h.service.Lineage(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lineage, nil)
}

// Timeline godoc
// @Summary Get the audit timeline of an entity version
// @Tags Entities
// @Produce json
// @Param type path string true "Entity type"
// @Param id path string true "Entity ID"
// @Success 200 {object} response.Envelope
// @Router /{type}/{id}/timeline [get]
func (h *EntityHandler) Timeline(c *gin.Context) {
	if _, ok := h.kind(c); !ok {
		return
	}
	events, err := h.service.Timeline(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, events, nil)
}

// PendingApprovals godoc
// @Summary List the department's approval queue
// @Tags Workflow
// @Produce json
// @Param type query string true "Entity type (courses or degrees)"
// @Success 200 {object} response.Envelope
// @Router /approvals/pending [get]
func (h *EntityHandler) PendingApprovals(c *gin.Context) {
	kind, ok := entityKindFromParam(c.DefaultQuery("type", "courses"))
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown entity type"))
		return
	}
	items, err := h.service.PendingQueue(c.Request.Context(), kind, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}
