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

type enrollmentManager interface {
	Create(ctx context.Context, req dto.CreateEnrollmentRequest, actor *models.JWTClaims) (*models.Enrollment, error)
	Submit(ctx context.Context, id string, actor *models.JWTClaims) (*models.Enrollment, error)
	ListMine(ctx context.Context, actor *models.JWTClaims) ([]models.Enrollment, error)
	PendingGroups(ctx context.Context) ([]models.EnrollmentGroup, error)
	Decide(ctx context.Context, req dto.DecideEnrollmentsRequest, actor *models.JWTClaims) (*models.EnrollmentDecisionResult, error)
}

// EnrollmentHandler exposes REST endpoints for enrollment requests and
// batch review.
type EnrollmentHandler struct {
	service enrollmentManager
}

// NewEnrollmentHandler constructs the handler.
func NewEnrollmentHandler(service enrollmentManager) *EnrollmentHandler {
	return &EnrollmentHandler{service: service}
}

// Create godoc
// @Summary Draft an enrollment request
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param payload body dto.CreateEnrollmentRequest true "Enrollment payload"
// @Success 201 {object} response.Envelope
// @Router /enrollments [post]
func (h *EnrollmentHandler) Create(c *gin.Context) {
	var req dto.CreateEnrollmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid enrollment payload"))
		return
	}
	enrollment, err := h.service.Create(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, enrollment, nil)
}

// Submit godoc
// @Summary Submit a draft enrollment for review
// @Tags Enrollments
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/submit [post]
func (h *EnrollmentHandler) Submit(c *gin.Context) {
	enrollment, err := h.service.Submit(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}

// ListMine godoc
// @Summary List the caller's enrollments
// @Tags Enrollments
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /enrollments/mine [get]
func (h *EnrollmentHandler) ListMine(c *gin.Context) {
	enrollments, err := h.service.ListMine(c.Request.Context(), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollments, nil)
}

// Pending godoc
// @Summary List pending enrollments grouped by student and semester
// @Tags Enrollments
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /enrollments/pending [get]
func (h *EnrollmentHandler) Pending(c *gin.Context) {
	groups, err := h.service.PendingGroups(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, groups, nil)
}

// Decide godoc
// @Summary Apply one decision across a batch of enrollment ids
// @Description Each id is decided independently; the response lists
// @Description which ids succeeded and which failed with a reason.
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param payload body dto.DecideEnrollmentsRequest true "Batch decision"
// @Success 200 {object} response.Envelope
// @Router /enrollments/decide [post]
func (h *EnrollmentHandler) Decide(c *gin.Context) {
	var req dto.DecideEnrollmentsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid decision payload"))
		return
	}
	result, err := h.service.Decide(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	status := http.StatusOK
	if len(result.Failed) > 0 && len(result.Succeeded) > 0 {
		status = http.StatusMultiStatus
	}
	response.JSON(c, status, result, nil)
}
