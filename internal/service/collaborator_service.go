package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/acadhub/curricula-api/internal/models"
	appErrors "github.com/acadhub/curricula-api/pkg/errors"
)

type collaboratorGrants interface {
	Add(ctx context.Context, entityID, userID, grantedBy string) error
	Remove(ctx context.Context, entityID, userID string) error
	List(ctx context.Context, entityID string) ([]models.Collaborator, error)
}

type collaboratorEntityReader interface {
	GetByID(ctx context.Context, id string) (*models.Entity, error)
}

type userReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// CollaboratorService manages edit grants on entity versions. Grants
// can only change while the version is still in its authoring window;
// once a version is submitted its collaborator set is frozen.
type CollaboratorService struct {
	grants   collaboratorGrants
	entities collaboratorEntityReader
	users    userReader
	audit    auditLogger
	logger   *zap.Logger
}

// NewCollaboratorService constructs the service.
func NewCollaboratorService(
	grants collaboratorGrants,
	entities collaboratorEntityReader,
	users userReader,
	audit auditLogger,
	logger *zap.Logger,
) *CollaboratorService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CollaboratorService{
		grants:   grants,
		entities: entities,
		users:    users,
		audit:    audit,
		logger:   logger,
	}
}

// Add grants a user edit access to the entity version.
func (s *CollaboratorService) Add(ctx context.Context, entityID, userID string, actor *models.JWTClaims) error {
	entity, err := s.requireGrantWindow(ctx, entityID, actor)
	if err != nil {
		return err
	}
	if userID == entity.CreatorID {
		return appErrors.Clone(appErrors.ErrValidation, "the creator is already an author")
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up user")
	}
	if user.Role == models.RoleStudent {
		return appErrors.Clone(appErrors.ErrValidation, "students cannot be collaborators")
	}
	if err := s.grants.Add(ctx, entityID, userID, actor.UserID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to add collaborator")
	}
	s.emitAudit(ctx, entity, actor.UserID, fmt.Sprintf("granted edit access to %s", userID))
	return nil
}

// Remove revokes a user's edit access.
func (s *CollaboratorService) Remove(ctx context.Context, entityID, userID string, actor *models.JWTClaims) error {
	entity, err := s.requireGrantWindow(ctx, entityID, actor)
	if err != nil {
		return err
	}
	if err := s.grants.Remove(ctx, entityID, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "no such collaborator grant")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove collaborator")
	}
	s.emitAudit(ctx, entity, actor.UserID, fmt.Sprintf("revoked edit access from %s", userID))
	return nil
}

// List returns the entity's collaborator grants.
func (s *CollaboratorService) List(ctx context.Context, entityID string) ([]models.Collaborator, error) {
	if _, err := s.entity(ctx, entityID); err != nil {
		return nil, err
	}
	collaborators, err := s.grants.List(ctx, entityID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list collaborators")
	}
	return collaborators, nil
}

func (s *CollaboratorService) requireGrantWindow(ctx context.Context, entityID string, actor *models.JWTClaims) (*models.Entity, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	entity, err := s.entity(ctx, entityID)
	if err != nil {
		return nil, err
	}
	if entity.CreatorID != actor.UserID && actor.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the creator may manage collaborators")
	}
	switch entity.Status {
	case models.EntityStatusDraft, models.EntityStatusRejected:
		return entity, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrEditWindowClosed,
			fmt.Sprintf("collaborators are frozen while the version is %s", entity.Status))
	}
}

func (s *CollaboratorService) entity(ctx context.Context, entityID string) (*models.Entity, error) {
	entity, err := s.entities.GetByID(ctx, entityID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load entity")
	}
	return entity, nil
}

func (s *CollaboratorService) emitAudit(ctx context.Context, entity *models.Entity, actorID, detail string) {
	if s.audit == nil {
		return
	}
	event := &models.AuditEvent{
		ActorID:    &actorID,
		Action:     models.AuditActionCollaborator,
		Resource:   resourceName(entity.Kind),
		ResourceID: &entity.ID,
		Reason:     &detail,
	}
	if err := s.audit.CreateAuditEvent(ctx, event); err != nil {
		s.logger.Warn("failed to persist audit event", zap.Error(err))
	}
}
