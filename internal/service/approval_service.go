package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/acadhub/curricula-api/internal/dto"
	"github.com/acadhub/curricula-api/internal/models"
	"github.com/acadhub/curricula-api/internal/repository"
	"github.com/acadhub/curricula-api/internal/workflow"
	appErrors "github.com/acadhub/curricula-api/pkg/errors"
)

type entityStore interface {
	Create(ctx context.Context, entity *models.Entity) error
	GetByID(ctx context.Context, id string) (*models.Entity, error)
	ListLineage(ctx context.Context, kind models.EntityKind, baseCode string) ([]models.Entity, error)
	MaxVersion(ctx context.Context, kind models.EntityKind, baseCode string) (int, error)
	List(ctx context.Context, filter models.EntityFilter) ([]models.Entity, error)
	UpdateStatus(ctx context.Context, params repository.UpdateStatusParams) error
	UpdateContent(ctx context.Context, entity *models.Entity) error
	Publish(ctx context.Context, id string) (repository.PublishResult, error)
}

type collaboratorStore interface {
	Exists(ctx context.Context, entityID, userID string) (bool, error)
	CopyGrants(ctx context.Context, fromEntityID, toEntityID string) error
}

type departmentAuthority interface {
	IsHeadOfDepartment(ctx context.Context, userID, departmentCode string) (bool, error)
}

type auditLogger interface {
	CreateAuditEvent(ctx context.Context, event *models.AuditEvent) error
}

type transitionRecorder interface {
	RecordTransition(resource string, action workflow.Action, outcome string)
	ObserveDecisionWait(resource string, wait time.Duration)
	SetPendingQueueSize(resource, department string, size int)
}

// ApprovalService orchestrates the entity approval workflow: it combines
// the state machine, the versioning policy, and authorization checks and
// drives the durable mutations.
type ApprovalService struct {
	entities      entityStore
	collaborators collaboratorStore
	departments   departmentAuthority
	audit         auditLogger
	dispatcher    NotificationDispatcher
	queueCache    *ApprovalQueueCache
	metrics       transitionRecorder
	timeline      timelineReader
	validator     *validator.Validate
	logger        *zap.Logger
	reasonRule    workflow.ReasonRule
	forkRetries   int
}

// ApprovalServiceOption configures the service.
type ApprovalServiceOption func(*ApprovalService)

// WithNotificationDispatcher overrides the default log-only dispatcher.
func WithNotificationDispatcher(dispatcher NotificationDispatcher) ApprovalServiceOption {
	return func(s *ApprovalService) {
		if dispatcher != nil {
			s.dispatcher = dispatcher
		}
	}
}

// WithApprovalQueueCache enables pending-queue caching.
func WithApprovalQueueCache(cache *ApprovalQueueCache) ApprovalServiceOption {
	return func(s *ApprovalService) { s.queueCache = cache }
}

// WithTransitionRecorder wires workflow metrics.
func WithTransitionRecorder(metrics transitionRecorder) ApprovalServiceOption {
	return func(s *ApprovalService) { s.metrics = metrics }
}

// WithTimelineReader enables the audit timeline endpoint.
func WithTimelineReader(timeline timelineReader) ApprovalServiceOption {
	return func(s *ApprovalService) { s.timeline = timeline }
}

// WithEntityReasonRule overrides the decision reason validation rule.
func WithEntityReasonRule(rule workflow.ReasonRule) ApprovalServiceOption {
	return func(s *ApprovalService) { s.reasonRule = rule }
}

// WithForkRetries sets how many times a version collision is retried
// before surfacing a conflict.
func WithForkRetries(retries int) ApprovalServiceOption {
	return func(s *ApprovalService) {
		if retries >= 0 {
			s.forkRetries = retries
		}
	}
}

// NewApprovalService constructs the coordinator with defaults.
func NewApprovalService(
	entities entityStore,
	collaborators collaboratorStore,
	departments departmentAuthority,
	audit auditLogger,
	logger *zap.Logger,
	opts ...ApprovalServiceOption,
) *ApprovalService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &ApprovalService{
		entities:      entities,
		collaborators: collaborators,
		departments:   departments,
		audit:         audit,
		dispatcher:    NewLogDispatcher(logger),
		validator:     validator.New(),
		logger:        logger,
		reasonRule:    workflow.ReasonRule{Min: 10, Max: 500},
		forkRetries:   1,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Create starts a new entity at version 1 in DRAFT.
func (s *ApprovalService) Create(ctx context.Context, kind models.EntityKind, req dto.CreateEntityRequest, actor *models.JWTClaims) (*models.Entity, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid entity payload")
	}
	baseCode := strings.ToUpper(strings.TrimSpace(req.BaseCode))
	existing, err := s.entities.MaxVersion(ctx, kind, baseCode)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing versions")
	}
	if existing > 0 {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("code %s already exists", baseCode))
	}
	entity := &models.Entity{
		Kind:           kind,
		BaseCode:       baseCode,
		Version:        1,
		Status:         models.EntityStatusDraft,
		DepartmentCode: strings.ToUpper(strings.TrimSpace(req.DepartmentCode)),
		CreatorID:      actor.UserID,
		Name:           req.Name,
		Description:    req.Description,
		Credits:        req.Credits,
	}
	if err := s.entities.Create(ctx, entity); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("code %s already exists", baseCode))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create entity")
	}
	s.emitAudit(ctx, entity, actor.UserID, models.AuditActionCreate, nil, string(models.EntityStatusDraft), nil)
	return entity, nil
}

// Get loads one entity version.
func (s *ApprovalService) Get(ctx context.Context, id string) (*models.Entity, error) {
	entity, err := s.entities.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load entity")
	}
	return entity, nil
}

// List returns entities matching the filter.
func (s *ApprovalService) List(ctx context.Context, filter models.EntityFilter) ([]models.Entity, error) {
	entities, err := s.entities.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list entities")
	}
	return entities, nil
}

// Lineage returns all versions sharing the entity's base code, oldest
// first.
func (s *ApprovalService) Lineage(ctx context.Context, id string) ([]models.Entity, error) {
	entity, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	lineage, err := s.entities.ListLineage(ctx, entity.Kind, entity.BaseCode)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lineage")
	}
	return lineage, nil
}

// Timeline returns the entity's audit trail, oldest first.
func (s *ApprovalService) Timeline(ctx context.Context, id string) ([]models.AuditEvent, error) {
	entity, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.timeline == nil {
		return []models.AuditEvent{}, nil
	}
	events, err := s.timeline.ListByResource(ctx, resourceName(entity.Kind), entity.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timeline")
	}
	return events, nil
}

// UpdateContent edits a draft/rejected version in place. Edits to any
// other status must go through RequestEdit.
func (s *ApprovalService) UpdateContent(ctx context.Context, id string, req dto.UpdateEntityRequest, actor *models.JWTClaims) (*models.Entity, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid entity payload")
	}
	entity, err := s.requireAuthor(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if plan := workflow.PlanEdit(entity, entity.Version); plan.Mode != workflow.EditModeInPlace {
		return nil, appErrors.Clone(appErrors.ErrEditWindowClosed,
			fmt.Sprintf("version %s is %s; request an edit to get a new draft", entity.VersionCode, entity.Status))
	}
	entity.Name = req.Name
	entity.Description = req.Description
	entity.Credits = req.Credits
	if err := s.entities.UpdateContent(ctx, entity); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrStaleState, "entity left the editable window")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update entity")
	}
	return entity, nil
}

// Submit moves a draft into the approval queue and stamps submitted_at.
func (s *ApprovalService) Submit(ctx context.Context, id string, actor *models.JWTClaims) (*models.Entity, error) {
	entity, err := s.requireAuthor(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	next, err := workflow.EntityTransition(entity.Status, workflow.ActionSubmit, workflow.RelationAuthor)
	if err != nil {
		s.recordTransition(entity, workflow.ActionSubmit, "rejected")
		return nil, err
	}
	now := time.Now().UTC()
	if err := s.entities.UpdateStatus(ctx, repository.UpdateStatusParams{
		ID:          entity.ID,
		From:        entity.Status,
		To:          next,
		SubmittedAt: &now,
	}); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrStaleState, "entity status changed concurrently")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to submit entity")
	}
	from := string(entity.Status)
	entity.Status = next
	entity.SubmittedAt = &now
	s.emitAudit(ctx, entity, actor.UserID, string(workflow.ActionSubmit), &from, string(next), nil)
	s.recordTransition(entity, workflow.ActionSubmit, "applied")
	s.invalidateQueue(ctx, entity)
	return entity, nil
}

// Decide applies an HOD decision (approve, reject, request changes) on a
// pending entity. Rejection feedback is mandatory and length-checked
// before any mutation happens.
func (s *ApprovalService) Decide(ctx context.Context, id string, req dto.DecideRequest, actor *models.JWTClaims) (*models.Entity, error) {
	action := workflow.Action(strings.ToUpper(strings.TrimSpace(string(req.Action))))
	switch action {
	case workflow.ActionApprove, workflow.ActionReject, workflow.ActionRequestChanges:
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "action must be APPROVE, REJECT, or REQUEST_CHANGES")
	}
	if workflow.RequiresReason(action) {
		if err := s.reasonRule.Validate(req.Reason); err != nil {
			return nil, err
		}
	}
	entity, err := s.requireApprover(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	next, err := workflow.EntityTransition(entity.Status, action, workflow.RelationApprover)
	if err != nil {
		s.recordTransition(entity, action, "rejected")
		return nil, err
	}
	if err := s.entities.UpdateStatus(ctx, repository.UpdateStatusParams{
		ID:   entity.ID,
		From: entity.Status,
		To:   next,
	}); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrStaleState, "entity was already decided by another actor")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply decision")
	}
	from := string(entity.Status)
	entity.Status = next
	var reason *string
	if trimmed := strings.TrimSpace(req.Reason); trimmed != "" {
		reason = &trimmed
	}
	s.emitAudit(ctx, entity, actor.UserID, string(action), &from, string(next), reason)
	s.recordTransition(entity, action, "applied")
	if s.metrics != nil && entity.SubmittedAt != nil {
		s.metrics.ObserveDecisionWait(resourceName(entity.Kind), time.Since(*entity.SubmittedAt))
	}
	s.invalidateQueue(ctx, entity)
	s.notify(ctx, Notification{
		RecipientID: entity.CreatorID,
		Subject:     fmt.Sprintf("%s %s", entity.VersionCode, strings.ToLower(string(action))),
		Body:        req.Reason,
	})
	return entity, nil
}

// Publish activates an approved version and archives the previously
// active one in the same transaction.
func (s *ApprovalService) Publish(ctx context.Context, id string, actor *models.JWTClaims) (*models.Entity, error) {
	entity, err := s.requireAuthorOrApprover(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if _, err := workflow.EntityTransition(entity.Status, workflow.ActionPublish, workflow.RelationAuthor); err != nil {
		s.recordTransition(entity, workflow.ActionPublish, "rejected")
		return nil, err
	}
	result, err := s.entities.Publish(ctx, entity.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrStaleState, "entity is no longer approved")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to publish entity")
	}
	from := string(entity.Status)
	entity.Status = models.EntityStatusActive
	s.emitAudit(ctx, entity, actor.UserID, string(workflow.ActionPublish), &from, string(models.EntityStatusActive), nil)
	if result.ArchivedID != nil {
		archivedFrom := string(models.EntityStatusActive)
		s.emitAudit(ctx, &models.Entity{ID: *result.ArchivedID, Kind: entity.Kind},
			actor.UserID, models.AuditActionArchive, &archivedFrom, string(models.EntityStatusArchived), nil)
	}
	s.recordTransition(entity, workflow.ActionPublish, "applied")
	s.notify(ctx, Notification{
		RecipientID: entity.CreatorID,
		Subject:     fmt.Sprintf("%s is now active", entity.VersionCode),
	})
	return entity, nil
}

// RequestEdit decides where an edit goes. Draft/rejected rows are edited
// in place; anything else forks a fresh draft version and the caller is
// redirected to it. The source row is never mutated on fork.
func (s *ApprovalService) RequestEdit(ctx context.Context, id string, req dto.EditRequest, actor *models.JWTClaims) (*dto.EditTarget, error) {
	entity, err := s.requireAuthor(ctx, id, actor)
	if err != nil {
		return nil, err
	}

	maxVersion, err := s.entities.MaxVersion(ctx, entity.Kind, entity.BaseCode)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute next version")
	}
	plan := workflow.PlanEdit(entity, maxVersion)
	if plan.Mode == workflow.EditModeInPlace {
		return &dto.EditTarget{EditTargetID: entity.ID, Mode: workflow.EditModeInPlace}, nil
	}

	fork := workflow.Fork(entity, plan.NextVersion)
	for attempt := 0; ; attempt++ {
		err = s.entities.Create(ctx, fork)
		if err == nil {
			break
		}
		if !repository.IsUniqueViolation(err) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create new version")
		}
		if attempt >= s.forkRetries {
			return nil, appErrors.Clone(appErrors.ErrConflict, "a new version was created concurrently; refetch and retry")
		}
		maxVersion, err = s.entities.MaxVersion(ctx, entity.Kind, entity.BaseCode)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to recompute next version")
		}
		fork = workflow.Fork(entity, maxVersion+1)
	}

	if req.CopyCollaborators {
		if err := s.collaborators.CopyGrants(ctx, entity.ID, fork.ID); err != nil {
			s.logger.Warn("failed to copy collaborator grants to fork", zap.Error(err))
		}
	}
	s.emitAudit(ctx, fork, actor.UserID, models.AuditActionFork, nil, string(models.EntityStatusDraft), nil)
	return &dto.EditTarget{EditTargetID: fork.ID, Mode: workflow.EditModeFork}, nil
}

// PendingQueue lists the HOD's department-scoped approval queue, served
// from cache when fresh.
func (s *ApprovalService) PendingQueue(ctx context.Context, kind models.EntityKind, actor *models.JWTClaims) ([]dto.PendingApprovalItem, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleHOD && actor.Role != models.RoleAdmin {
		return nil, appErrors.ErrForbidden
	}
	department := actor.DepartmentCode

	// An empty department means an unscoped (admin) view; decisions
	// invalidate per-department keys only, so caching it would go stale.
	useCache := s.queueCache != nil && department != ""
	if useCache {
		var cached []dto.PendingApprovalItem
		if hit := s.queueCache.Get(ctx, kind, department, &cached); hit {
			return cached, nil
		}
	}

	entities, err := s.entities.List(ctx, models.EntityFilter{
		Kind:           kind,
		Status:         []models.EntityStatus{models.EntityStatusPendingApproval},
		DepartmentCode: department,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list pending entities")
	}
	now := time.Now().UTC()
	items := make([]dto.PendingApprovalItem, 0, len(entities))
	for _, entity := range entities {
		waiting := 0
		if entity.SubmittedAt != nil {
			waiting = int(now.Sub(*entity.SubmittedAt).Hours() / 24)
		}
		items = append(items, dto.PendingApprovalItem{Entity: entity, WaitingDays: waiting})
	}
	if s.metrics != nil {
		s.metrics.SetPendingQueueSize(resourceName(kind), department, len(items))
	}
	if useCache {
		s.queueCache.Set(ctx, kind, department, items)
	}
	return items, nil
}

func (s *ApprovalService) requireAuthor(ctx context.Context, id string, actor *models.JWTClaims) (*models.Entity, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	entity, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	ok, err := s.isAuthor(ctx, entity, actor.UserID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the creator or a collaborator may do this")
	}
	return entity, nil
}

func (s *ApprovalService) requireApprover(ctx context.Context, id string, actor *models.JWTClaims) (*models.Entity, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	entity, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	ok, err := s.isApprover(ctx, entity, actor)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the head of the owning department may decide")
	}
	return entity, nil
}

func (s *ApprovalService) requireAuthorOrApprover(ctx context.Context, id string, actor *models.JWTClaims) (*models.Entity, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	entity, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	author, err := s.isAuthor(ctx, entity, actor.UserID)
	if err != nil {
		return nil, err
	}
	if author {
		return entity, nil
	}
	approver, err := s.isApprover(ctx, entity, actor)
	if err != nil {
		return nil, err
	}
	if !approver {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not an author or department head for this entity")
	}
	return entity, nil
}

func (s *ApprovalService) isAuthor(ctx context.Context, entity *models.Entity, userID string) (bool, error) {
	if entity.CreatorID == userID {
		return true, nil
	}
	ok, err := s.collaborators.Exists(ctx, entity.ID, userID)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check collaborator grant")
	}
	return ok, nil
}

func (s *ApprovalService) isApprover(ctx context.Context, entity *models.Entity, actor *models.JWTClaims) (bool, error) {
	if actor.Role != models.RoleHOD || actor.DepartmentCode != entity.DepartmentCode {
		return false, nil
	}
	ok, err := s.departments.IsHeadOfDepartment(ctx, actor.UserID, entity.DepartmentCode)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify department head")
	}
	return ok, nil
}

func (s *ApprovalService) emitAudit(ctx context.Context, entity *models.Entity, actorID, action string, from *string, to string, reason *string) {
	if s.audit == nil {
		return
	}
	resource := resourceName(entity.Kind)
	event := &models.AuditEvent{
		ActorID:    &actorID,
		Action:     action,
		Resource:   resource,
		ResourceID: &entity.ID,
		FromStatus: from,
		ToStatus:   &to,
		Reason:     reason,
	}
	if err := s.audit.CreateAuditEvent(ctx, event); err != nil {
		s.logger.Warn("failed to persist audit event", zap.Error(err))
	}
}

func (s *ApprovalService) notify(ctx context.Context, notification Notification) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Dispatch(ctx, notification); err != nil {
		s.logger.Warn("notification dispatch failed",
			zap.String("recipient", notification.RecipientID), zap.Error(err))
	}
}

func (s *ApprovalService) recordTransition(entity *models.Entity, action workflow.Action, outcome string) {
	if s.metrics != nil {
		s.metrics.RecordTransition(resourceName(entity.Kind), action, outcome)
	}
}

func (s *ApprovalService) invalidateQueue(ctx context.Context, entity *models.Entity) {
	if s.queueCache != nil {
		s.queueCache.Invalidate(ctx, entity.Kind, entity.DepartmentCode)
	}
}

func resourceName(kind models.EntityKind) string {
	switch kind {
	case models.EntityKindDegree:
		return "degree"
	default:
		return "course"
	}
}
