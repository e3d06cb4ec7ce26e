package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/acadhub/curricula-api/internal/dto"
	"github.com/acadhub/curricula-api/internal/middleware"
	"github.com/acadhub/curricula-api/internal/models"
	"github.com/acadhub/curricula-api/internal/workflow"
	appErrors "github.com/acadhub/curricula-api/pkg/errors"
	"github.com/acadhub/curricula-api/pkg/response"
)

type approvalCoordinatorStub struct {
	entity  *models.Entity
	target  *dto.EditTarget
	pending []dto.PendingApprovalItem
	err     error

	decideReq dto.DecideRequest
}

func (s *approvalCoordinatorStub) Create(ctx context.Context, kind models.EntityKind, req dto.CreateEntityRequest, actor *models.JWTClaims) (*models.Entity, error) {
	return s.entity, s.err
}

func (s *approvalCoordinatorStub) Get(ctx context.Context, id string) (*models.Entity, error) {
	return s.entity, s.err
}

func (s *approvalCoordinatorStub) List(ctx context.Context, filter models.EntityFilter) ([]models.Entity, error) {
	if s.entity == nil {
		return nil, s.err
	}
	return []models.Entity{*s.entity}, s.err
}

func (s *approvalCoordinatorStub) Lineage(ctx context.Context, id string) ([]models.Entity, error) {
	if s.entity == nil {
		return nil, s.err
	}
	return []models.Entity{*s.entity}, s.err
}

func (s *approvalCoordinatorStub) Timeline(ctx context.Context, id string) ([]models.AuditEvent, error) {
	return []models.AuditEvent{}, s.err
}

func (s *approvalCoordinatorStub) UpdateContent(ctx context.Context, id string, req dto.UpdateEntityRequest, actor *models.JWTClaims) (*models.Entity, error) {
	return s.entity, s.err
}

func (s *approvalCoordinatorStub) Submit(ctx context.Context, id string, actor *models.JWTClaims) (*models.Entity, error) {
	return s.entity, s.err
}

func (s *approvalCoordinatorStub) Decide(ctx context.Context, id string, req dto.DecideRequest, actor *models.JWTClaims) (*models.Entity, error) {
	s.decideReq = req
	return s.entity, s.err
}

func (s *approvalCoordinatorStub) Publish(ctx context.Context, id string, actor *models.JWTClaims) (*models.Entity, error) {
	return s.entity, s.err
}

func (s *approvalCoordinatorStub) RequestEdit(ctx context.Context, id string, req dto.EditRequest, actor *models.JWTClaims) (*dto.EditTarget, error) {
	return s.target, s.err
}

func (s *approvalCoordinatorStub) PendingQueue(ctx context.Context, kind models.EntityKind, actor *models.JWTClaims) ([]dto.PendingApprovalItem, error) {
	return s.pending, s.err
}

func setupEntityRouter(stub *approvalCoordinatorStub, claims *models.JWTClaims) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	if claims != nil {
		router.Use(func(c *gin.Context) {
			c.Set(middleware.ContextUserKey, claims)
			c.Next()
		})
	}
	h := NewEntityHandler(stub)
	for _, segment := range []string{"courses", "degrees"} {
		group := router.Group("/"+segment, EntityType(segment))
		group.POST("", h.Create)
		group.GET("/:id", h.Get)
		group.POST("/:id/submit", h.Submit)
		group.POST("/:id/decide", h.Decide)
		group.POST("/:id/edit-request", h.RequestEdit)
	}
	router.GET("/approvals/pending", h.PendingApprovals)
	return router
}

func decodeEnvelope(t *testing.T, recorder *httptest.ResponseRecorder) response.Envelope {
	t.Helper()
	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &envelope))
	return envelope
}

func TestEntityHandlerCreate(t *testing.T) {
	stub := &approvalCoordinatorStub{entity: &models.Entity{
		ID: "c1", Kind: models.EntityKindCourse, BaseCode: "CS101",
		Version: 1, VersionCode: "CS101", Status: models.EntityStatusDraft,
	}}
	router := setupEntityRouter(stub, &models.JWTClaims{UserID: "fac-1", Role: models.RoleFaculty})

	body := `{"baseCode":"CS101","departmentCode":"CS","name":"Intro","credits":4}`
	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodPost, "/courses", strings.NewReader(body))
	request.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(recorder, request)

	require.Equal(t, http.StatusCreated, recorder.Code)
	envelope := decodeEnvelope(t, recorder)
	require.Nil(t, envelope.Error)
	require.NotNil(t, envelope.Data)
}

func TestEntityHandlerPendingApprovalsRejectsUnknownType(t *testing.T) {
	router := setupEntityRouter(&approvalCoordinatorStub{}, &models.JWTClaims{UserID: "hod-1", Role: models.RoleHOD})

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/approvals/pending?type=teachers", nil)
	router.ServeHTTP(recorder, request)

	require.Equal(t, http.StatusBadRequest, recorder.Code)
	envelope := decodeEnvelope(t, recorder)
	require.NotNil(t, envelope.Error)
	require.Equal(t, appErrors.ErrValidation.Code, envelope.Error.Code)
}

func TestEntityHandlerDecidePassesPayload(t *testing.T) {
	stub := &approvalCoordinatorStub{entity: &models.Entity{ID: "c1", Status: models.EntityStatusRejected}}
	router := setupEntityRouter(stub, &models.JWTClaims{UserID: "hod-1", Role: models.RoleHOD, DepartmentCode: "CS"})

	body := `{"action":"REJECT","reason":"missing prerequisite structure"}`
	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodPost, "/courses/c1/decide", strings.NewReader(body))
	request.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(recorder, request)

	require.Equal(t, http.StatusOK, recorder.Code)
	require.Equal(t, workflow.ActionReject, stub.decideReq.Action)
	require.Equal(t, "missing prerequisite structure", stub.decideReq.Reason)
}

func TestEntityHandlerDecideErrorPropagates(t *testing.T) {
	stub := &approvalCoordinatorStub{err: appErrors.ErrStaleState}
	router := setupEntityRouter(stub, &models.JWTClaims{UserID: "hod-1", Role: models.RoleHOD})

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodPost, "/courses/c1/decide", strings.NewReader(`{"action":"APPROVE"}`))
	request.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(recorder, request)

	require.Equal(t, http.StatusConflict, recorder.Code)
	envelope := decodeEnvelope(t, recorder)
	require.Equal(t, appErrors.ErrStaleState.Code, envelope.Error.Code)
}

func TestEntityHandlerEditRequestWithoutBody(t *testing.T) {
	stub := &approvalCoordinatorStub{target: &dto.EditTarget{EditTargetID: "c2", Mode: workflow.EditModeFork}}
	router := setupEntityRouter(stub, &models.JWTClaims{UserID: "fac-1", Role: models.RoleFaculty})

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodPost, "/courses/c1/edit-request", nil)
	router.ServeHTTP(recorder, request)

	require.Equal(t, http.StatusOK, recorder.Code)
}

func TestEntityHandlerPendingApprovals(t *testing.T) {
	stub := &approvalCoordinatorStub{pending: []dto.PendingApprovalItem{
		{Entity: models.Entity{ID: "c1"}, WaitingDays: 2},
	}}
	router := setupEntityRouter(stub, &models.JWTClaims{UserID: "hod-1", Role: models.RoleHOD, DepartmentCode: "CS"})

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/approvals/pending?type=courses", nil)
	router.ServeHTTP(recorder, request)

	require.Equal(t, http.StatusOK, recorder.Code)
	envelope := decodeEnvelope(t, recorder)
	require.NotNil(t, envelope.Data)
}
