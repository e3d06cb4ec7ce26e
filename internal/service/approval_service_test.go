package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/acadhub/curricula-api/internal/dto"
	"github.com/acadhub/curricula-api/internal/models"
	"github.com/acadhub/curricula-api/internal/repository"
	"github.com/acadhub/curricula-api/internal/workflow"
	appErrors "github.com/acadhub/curricula-api/pkg/errors"
)

type entityStoreStub struct {
	entities   map[string]*models.Entity
	createErrs []error
	updateErr  error
	nextID     int
}

func newEntityStoreStub() *entityStoreStub {
	return &entityStoreStub{entities: make(map[string]*models.Entity)}
}

func (s *entityStoreStub) seed(entity *models.Entity) *models.Entity {
	if entity.VersionCode == "" {
		entity.VersionCode = workflow.VersionCode(entity.BaseCode, entity.Version)
	}
	s.entities[entity.ID] = entity
	return entity
}

func (s *entityStoreStub) Create(ctx context.Context, entity *models.Entity) error {
	if len(s.createErrs) > 0 {
		err := s.createErrs[0]
		s.createErrs = s.createErrs[1:]
		if err != nil {
			return err
		}
	}
	s.nextID++
	if entity.ID == "" {
		entity.ID = fmt.Sprintf("entity-%d", s.nextID)
	}
	entity.VersionCode = workflow.VersionCode(entity.BaseCode, entity.Version)
	copied := *entity
	s.entities[entity.ID] = &copied
	return nil
}

func (s *entityStoreStub) GetByID(ctx context.Context, id string) (*models.Entity, error) {
	if entity, ok := s.entities[id]; ok {
		copied := *entity
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (s *entityStoreStub) ListLineage(ctx context.Context, kind models.EntityKind, baseCode string) ([]models.Entity, error) {
	var result []models.Entity
	for _, entity := range s.entities {
		if entity.Kind == kind && entity.BaseCode == baseCode {
			result = append(result, *entity)
		}
	}
	return result, nil
}

func (s *entityStoreStub) MaxVersion(ctx context.Context, kind models.EntityKind, baseCode string) (int, error) {
	max := 0
	for _, entity := range s.entities {
		if entity.Kind == kind && entity.BaseCode == baseCode && entity.Version > max {
			max = entity.Version
		}
	}
	return max, nil
}

func (s *entityStoreStub) List(ctx context.Context, filter models.EntityFilter) ([]models.Entity, error) {
	var result []models.Entity
	for _, entity := range s.entities {
		if entity.Kind != filter.Kind {
			continue
		}
		if filter.DepartmentCode != "" && entity.DepartmentCode != filter.DepartmentCode {
			continue
		}
		if len(filter.Status) > 0 {
			matched := false
			for _, status := range filter.Status {
				if entity.Status == status {
					matched = true
					break
				}
			}
			if !matched {
				continue
			}
		}
		result = append(result, *entity)
	}
	return result, nil
}

func (s *entityStoreStub) UpdateStatus(ctx context.Context, params repository.UpdateStatusParams) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	entity, ok := s.entities[params.ID]
	if !ok || entity.Status != params.From {
		return sql.ErrNoRows
	}
	entity.Status = params.To
	if params.SubmittedAt != nil {
		entity.SubmittedAt = params.SubmittedAt
	}
	return nil
}

func (s *entityStoreStub) UpdateContent(ctx context.Context, entity *models.Entity) error {
	stored, ok := s.entities[entity.ID]
	if !ok || (stored.Status != models.EntityStatusDraft && stored.Status != models.EntityStatusRejected) {
		return sql.ErrNoRows
	}
	stored.Name = entity.Name
	stored.Description = entity.Description
	stored.Credits = entity.Credits
	return nil
}

func (s *entityStoreStub) Publish(ctx context.Context, id string) (repository.PublishResult, error) {
	entity, ok := s.entities[id]
	if !ok || entity.Status != models.EntityStatusApproved {
		return repository.PublishResult{}, sql.ErrNoRows
	}
	var archivedID *string
	for _, other := range s.entities {
		if other.ID != id && other.Kind == entity.Kind && other.BaseCode == entity.BaseCode && other.Status == models.EntityStatusActive {
			other.Status = models.EntityStatusArchived
			archived := other.ID
			archivedID = &archived
		}
	}
	entity.Status = models.EntityStatusActive
	return repository.PublishResult{ArchivedID: archivedID}, nil
}

type collaboratorStoreStub struct {
	grants map[string]map[string]bool
	copies [][2]string
}

func newCollaboratorStoreStub() *collaboratorStoreStub {
	return &collaboratorStoreStub{grants: make(map[string]map[string]bool)}
}

func (s *collaboratorStoreStub) grant(entityID, userID string) {
	if s.grants[entityID] == nil {
		s.grants[entityID] = make(map[string]bool)
	}
	s.grants[entityID][userID] = true
}

func (s *collaboratorStoreStub) Exists(ctx context.Context, entityID, userID string) (bool, error) {
	return s.grants[entityID][userID], nil
}

func (s *collaboratorStoreStub) CopyGrants(ctx context.Context, fromEntityID, toEntityID string) error {
	s.copies = append(s.copies, [2]string{fromEntityID, toEntityID})
	return nil
}

type departmentAuthorityStub struct {
	heads map[string]string
}

func (s *departmentAuthorityStub) IsHeadOfDepartment(ctx context.Context, userID, departmentCode string) (bool, error) {
	return s.heads[userID] == departmentCode, nil
}

type auditLoggerStub struct {
	events []*models.AuditEvent
}

func (s *auditLoggerStub) CreateAuditEvent(ctx context.Context, event *models.AuditEvent) error {
	s.events = append(s.events, event)
	return nil
}

func claimsFor(userID string, role models.UserRole, department string) *models.JWTClaims {
	return &models.JWTClaims{UserID: userID, Role: role, DepartmentCode: department}
}

func newApprovalFixture() (*ApprovalService, *entityStoreStub, *collaboratorStoreStub, *auditLoggerStub) {
	entities := newEntityStoreStub()
	collaborators := newCollaboratorStoreStub()
	departments := &departmentAuthorityStub{heads: map[string]string{"hod-1": "CS"}}
	audit := &auditLoggerStub{}
	svc := NewApprovalService(entities, collaborators, departments, audit, nil)
	return svc, entities, collaborators, audit
}

func TestApprovalServiceCreateAndSubmit(t *testing.T) {
	svc, entities, _, audit := newApprovalFixture()
	creator := claimsFor("fac-1", models.RoleFaculty, "CS")

	entity, err := svc.Create(context.Background(), models.EntityKindCourse, dto.CreateEntityRequest{
		BaseCode:       "cs101",
		Name:           "Intro to Computing",
		Description:    "First programming course",
		Credits:        4,
		DepartmentCode: "cs",
	}, creator)
	require.NoError(t, err)
	require.Equal(t, models.EntityStatusDraft, entity.Status)
	require.Equal(t, 1, entity.Version)
	require.Equal(t, "CS101", entity.BaseCode)
	require.Equal(t, "CS101", entity.VersionCode)

	submitted, err := svc.Submit(context.Background(), entity.ID, creator)
	require.NoError(t, err)
	require.Equal(t, models.EntityStatusPendingApproval, submitted.Status)
	require.NotNil(t, submitted.SubmittedAt)
	require.NotNil(t, entities.entities[entity.ID].SubmittedAt)
	require.Len(t, audit.events, 2)
	require.Equal(t, models.AuditActionSubmit, audit.events[1].Action)
}

func TestApprovalServiceCreateRejectsDuplicateCode(t *testing.T) {
	svc, entities, _, _ := newApprovalFixture()
	entities.seed(&models.Entity{
		ID: "c1", Kind: models.EntityKindCourse, BaseCode: "CS101", Version: 1,
		Status: models.EntityStatusActive, DepartmentCode: "CS", CreatorID: "fac-1",
	})

	_, err := svc.Create(context.Background(), models.EntityKindCourse, dto.CreateEntityRequest{
		BaseCode: "CS101", Name: "Intro", Description: "dup", Credits: 3, DepartmentCode: "CS",
	}, claimsFor("fac-2", models.RoleFaculty, "CS"))
	requireErrorCode(t, err, appErrors.ErrConflict.Code)
}

func TestApprovalServiceSubmitRequiresAuthor(t *testing.T) {
	svc, entities, collaborators, _ := newApprovalFixture()
	entities.seed(&models.Entity{
		ID: "c1", Kind: models.EntityKindCourse, BaseCode: "CS101", Version: 1,
		Status: models.EntityStatusDraft, DepartmentCode: "CS", CreatorID: "fac-1",
	})

	_, err := svc.Submit(context.Background(), "c1", claimsFor("fac-2", models.RoleFaculty, "CS"))
	requireErrorCode(t, err, appErrors.ErrForbidden.Code)

	collaborators.grant("c1", "fac-2")
	submitted, err := svc.Submit(context.Background(), "c1", claimsFor("fac-2", models.RoleFaculty, "CS"))
	require.NoError(t, err)
	require.Equal(t, models.EntityStatusPendingApproval, submitted.Status)
}

func TestApprovalServiceDecideApprovePublishSupersedes(t *testing.T) {
	svc, entities, _, audit := newApprovalFixture()
	submitted := time.Now().UTC().Add(-48 * time.Hour)
	entities.seed(&models.Entity{
		ID: "v1", Kind: models.EntityKindCourse, BaseCode: "CS101", Version: 1,
		Status: models.EntityStatusActive, DepartmentCode: "CS", CreatorID: "fac-1",
	})
	entities.seed(&models.Entity{
		ID: "v2", Kind: models.EntityKindCourse, BaseCode: "CS101", Version: 2,
		Status: models.EntityStatusPendingApproval, DepartmentCode: "CS", CreatorID: "fac-1",
		SubmittedAt: &submitted,
	})

	hod := claimsFor("hod-1", models.RoleHOD, "CS")
	decided, err := svc.Decide(context.Background(), "v2", dto.DecideRequest{Action: workflow.ActionApprove}, hod)
	require.NoError(t, err)
	require.Equal(t, models.EntityStatusApproved, decided.Status)

	published, err := svc.Publish(context.Background(), "v2", claimsFor("fac-1", models.RoleFaculty, "CS"))
	require.NoError(t, err)
	require.Equal(t, models.EntityStatusActive, published.Status)
	require.Equal(t, models.EntityStatusArchived, entities.entities["v1"].Status)

	var archiveEvents int
	for _, event := range audit.events {
		if event.Action == models.AuditActionArchive {
			archiveEvents++
			require.Equal(t, "v1", *event.ResourceID)
		}
	}
	require.Equal(t, 1, archiveEvents)
}

func TestApprovalServiceDecideRejectReasonTooShort(t *testing.T) {
	svc, entities, _, audit := newApprovalFixture()
	entities.seed(&models.Entity{
		ID: "v1", Kind: models.EntityKindCourse, BaseCode: "CS101", Version: 1,
		Status: models.EntityStatusPendingApproval, DepartmentCode: "CS", CreatorID: "fac-1",
	})

	_, err := svc.Decide(context.Background(), "v1", dto.DecideRequest{
		Action: workflow.ActionReject,
		Reason: "too short",
	}, claimsFor("hod-1", models.RoleHOD, "CS"))
	requireErrorCode(t, err, appErrors.ErrValidation.Code)
	require.Equal(t, models.EntityStatusPendingApproval, entities.entities["v1"].Status)
	require.Empty(t, audit.events)
}

func TestApprovalServiceDecideLostRace(t *testing.T) {
	svc, entities, _, _ := newApprovalFixture()
	entities.seed(&models.Entity{
		ID: "v1", Kind: models.EntityKindCourse, BaseCode: "CS101", Version: 1,
		Status: models.EntityStatusPendingApproval, DepartmentCode: "CS", CreatorID: "fac-1",
	})
	entities.updateErr = sql.ErrNoRows

	_, err := svc.Decide(context.Background(), "v1", dto.DecideRequest{
		Action: workflow.ActionApprove,
	}, claimsFor("hod-1", models.RoleHOD, "CS"))
	requireErrorCode(t, err, appErrors.ErrStaleState.Code)
}

func TestApprovalServiceDecideWrongDepartment(t *testing.T) {
	svc, entities, _, _ := newApprovalFixture()
	entities.seed(&models.Entity{
		ID: "v1", Kind: models.EntityKindCourse, BaseCode: "CS101", Version: 1,
		Status: models.EntityStatusPendingApproval, DepartmentCode: "CS", CreatorID: "fac-1",
	})

	_, err := svc.Decide(context.Background(), "v1", dto.DecideRequest{
		Action: workflow.ActionApprove,
	}, claimsFor("hod-2", models.RoleHOD, "MATH"))
	requireErrorCode(t, err, appErrors.ErrForbidden.Code)
}

func TestApprovalServiceRequestEditInPlace(t *testing.T) {
	svc, entities, _, _ := newApprovalFixture()
	entities.seed(&models.Entity{
		ID: "v1", Kind: models.EntityKindCourse, BaseCode: "CS101", Version: 1,
		Status: models.EntityStatusRejected, DepartmentCode: "CS", CreatorID: "fac-1",
	})

	target, err := svc.RequestEdit(context.Background(), "v1", dto.EditRequest{}, claimsFor("fac-1", models.RoleFaculty, "CS"))
	require.NoError(t, err)
	require.Equal(t, workflow.EditModeInPlace, target.Mode)
	require.Equal(t, "v1", target.EditTargetID)
}

func TestApprovalServiceRequestEditForksActiveVersion(t *testing.T) {
	svc, entities, collaborators, _ := newApprovalFixture()
	submitted := time.Now().UTC()
	entities.seed(&models.Entity{
		ID: "v1", Kind: models.EntityKindCourse, BaseCode: "CS101", Version: 1,
		Status: models.EntityStatusActive, DepartmentCode: "CS", CreatorID: "fac-1",
		Name: "Intro", Credits: 4, SubmittedAt: &submitted,
	})

	target, err := svc.RequestEdit(context.Background(), "v1", dto.EditRequest{}, claimsFor("fac-1", models.RoleFaculty, "CS"))
	require.NoError(t, err)
	require.Equal(t, workflow.EditModeFork, target.Mode)
	require.NotEqual(t, "v1", target.EditTargetID)

	fork := entities.entities[target.EditTargetID]
	require.Equal(t, 2, fork.Version)
	require.Equal(t, "CS101_V2", fork.VersionCode)
	require.Equal(t, models.EntityStatusDraft, fork.Status)
	require.Nil(t, fork.SubmittedAt)
	require.Equal(t, "Intro", fork.Name)

	require.Equal(t, models.EntityStatusActive, entities.entities["v1"].Status)
	require.Empty(t, collaborators.copies)
}

func TestApprovalServiceRequestEditCopiesGrantsWhenAsked(t *testing.T) {
	svc, entities, collaborators, _ := newApprovalFixture()
	entities.seed(&models.Entity{
		ID: "v1", Kind: models.EntityKindCourse, BaseCode: "CS101", Version: 1,
		Status: models.EntityStatusActive, DepartmentCode: "CS", CreatorID: "fac-1",
	})

	target, err := svc.RequestEdit(context.Background(), "v1", dto.EditRequest{CopyCollaborators: true}, claimsFor("fac-1", models.RoleFaculty, "CS"))
	require.NoError(t, err)
	require.Len(t, collaborators.copies, 1)
	require.Equal(t, [2]string{"v1", target.EditTargetID}, collaborators.copies[0])
}

func TestApprovalServiceRequestEditRetriesVersionCollision(t *testing.T) {
	svc, entities, _, _ := newApprovalFixture()
	entities.seed(&models.Entity{
		ID: "v1", Kind: models.EntityKindCourse, BaseCode: "CS101", Version: 1,
		Status: models.EntityStatusActive, DepartmentCode: "CS", CreatorID: "fac-1",
	})
	entities.createErrs = []error{&pq.Error{Code: "23505"}}

	// a concurrent fork grabbed version 2 between MaxVersion and Create
	entities.seed(&models.Entity{
		ID: "v2", Kind: models.EntityKindCourse, BaseCode: "CS101", Version: 2,
		Status: models.EntityStatusDraft, DepartmentCode: "CS", CreatorID: "fac-2",
	})

	target, err := svc.RequestEdit(context.Background(), "v1", dto.EditRequest{}, claimsFor("fac-1", models.RoleFaculty, "CS"))
	require.NoError(t, err)
	require.Equal(t, 3, entities.entities[target.EditTargetID].Version)
	require.Equal(t, "CS101_V3", entities.entities[target.EditTargetID].VersionCode)
}

func TestApprovalServiceRequestEditConflictAfterRetry(t *testing.T) {
	svc, entities, _, _ := newApprovalFixture()
	entities.seed(&models.Entity{
		ID: "v1", Kind: models.EntityKindCourse, BaseCode: "CS101", Version: 1,
		Status: models.EntityStatusActive, DepartmentCode: "CS", CreatorID: "fac-1",
	})
	entities.createErrs = []error{&pq.Error{Code: "23505"}, &pq.Error{Code: "23505"}}

	_, err := svc.RequestEdit(context.Background(), "v1", dto.EditRequest{}, claimsFor("fac-1", models.RoleFaculty, "CS"))
	requireErrorCode(t, err, appErrors.ErrConflict.Code)
}

func TestApprovalServicePendingQueueScopesDepartment(t *testing.T) {
	svc, entities, _, _ := newApprovalFixture()
	submitted := time.Now().UTC().Add(-72 * time.Hour)
	entities.seed(&models.Entity{
		ID: "cs-1", Kind: models.EntityKindCourse, BaseCode: "CS101", Version: 1,
		Status: models.EntityStatusPendingApproval, DepartmentCode: "CS", CreatorID: "fac-1",
		SubmittedAt: &submitted,
	})
	entities.seed(&models.Entity{
		ID: "math-1", Kind: models.EntityKindCourse, BaseCode: "MATH201", Version: 1,
		Status: models.EntityStatusPendingApproval, DepartmentCode: "MATH", CreatorID: "fac-2",
	})

	items, err := svc.PendingQueue(context.Background(), models.EntityKindCourse, claimsFor("hod-1", models.RoleHOD, "CS"))
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "cs-1", items[0].Entity.ID)
	require.Equal(t, 3, items[0].WaitingDays)

	_, err = svc.PendingQueue(context.Background(), models.EntityKindCourse, claimsFor("fac-1", models.RoleFaculty, "CS"))
	requireErrorCode(t, err, appErrors.ErrForbidden.Code)
}

func TestApprovalServiceUpdateContentOutsideWindow(t *testing.T) {
	svc, entities, _, _ := newApprovalFixture()
	entities.seed(&models.Entity{
		ID: "v1", Kind: models.EntityKindCourse, BaseCode: "CS101", Version: 1,
		Status: models.EntityStatusPendingApproval, DepartmentCode: "CS", CreatorID: "fac-1",
	})

	_, err := svc.UpdateContent(context.Background(), "v1", dto.UpdateEntityRequest{
		Name: "Renamed", Description: "changed body", Credits: 3,
	}, claimsFor("fac-1", models.RoleFaculty, "CS"))
	requireErrorCode(t, err, appErrors.ErrEditWindowClosed.Code)
}

func TestApprovalServiceDecideAcceptsLowercaseAction(t *testing.T) {
	svc, entities, _, _ := newApprovalFixture()
	submitted := time.Now().UTC().Add(-time.Hour)
	entities.seed(&models.Entity{
		ID: "c1", Kind: models.EntityKindCourse, BaseCode: "CS101", Version: 1,
		Status: models.EntityStatusPendingApproval, DepartmentCode: "CS", CreatorID: "fac-1",
		SubmittedAt: &submitted,
	})
	entities.seed(&models.Entity{
		ID: "c2", Kind: models.EntityKindCourse, BaseCode: "MA201", Version: 1,
		Status: models.EntityStatusPendingApproval, DepartmentCode: "CS", CreatorID: "fac-1",
		SubmittedAt: &submitted,
	})
	hod := claimsFor("hod-1", models.RoleHOD, "CS")

	approved, err := svc.Decide(context.Background(), "c1", dto.DecideRequest{
		Action: workflow.Action("approve"),
	}, hod)
	require.NoError(t, err)
	require.Equal(t, models.EntityStatusApproved, approved.Status)

	rejected, err := svc.Decide(context.Background(), "c2", dto.DecideRequest{
		Action: workflow.Action(" Reject "),
		Reason: "needs a complete syllabus rework",
	}, hod)
	require.NoError(t, err)
	require.Equal(t, models.EntityStatusRejected, rejected.Status)
}

type cacheStoreStub struct {
	setKeys     []string
	deletedKeys []string
}

func (s *cacheStoreStub) Get(ctx context.Context, key string, dest interface{}) error {
	return appErrors.ErrCacheMiss
}

func (s *cacheStoreStub) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	s.setKeys = append(s.setKeys, key)
	return nil
}

func (s *cacheStoreStub) Delete(ctx context.Context, keys ...string) error {
	s.deletedKeys = append(s.deletedKeys, keys...)
	return nil
}

func TestApprovalServicePendingQueueSkipsCacheForUnscopedAdmins(t *testing.T) {
	entities := newEntityStoreStub()
	cacheStub := &cacheStoreStub{}
	svc := NewApprovalService(entities, newCollaboratorStoreStub(),
		&departmentAuthorityStub{heads: map[string]string{"hod-1": "CS"}}, &auditLoggerStub{}, nil,
		WithApprovalQueueCache(NewApprovalQueueCache(cacheStub, time.Minute, nil)))
	entities.seed(&models.Entity{
		ID: "cs-1", Kind: models.EntityKindCourse, BaseCode: "CS101", Version: 1,
		Status: models.EntityStatusPendingApproval, DepartmentCode: "CS", CreatorID: "fac-1",
	})

	items, err := svc.PendingQueue(context.Background(), models.EntityKindCourse, claimsFor("admin-1", models.RoleAdmin, ""))
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Empty(t, cacheStub.setKeys)

	items, err = svc.PendingQueue(context.Background(), models.EntityKindCourse, claimsFor("hod-1", models.RoleHOD, "CS"))
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, []string{"approvals:pending:COURSE:CS"}, cacheStub.setKeys)
}

func requireErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr), "expected app error, got %v", err)
	require.Equal(t, code, appErr.Code)
}
