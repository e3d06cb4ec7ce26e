package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/acadhub/curricula-api/internal/models"
)

// CollaboratorRepository manages the entity-version/user join table.
type CollaboratorRepository struct {
	db *sqlx.DB
}

// NewCollaboratorRepository constructs the repository.
func NewCollaboratorRepository(db *sqlx.DB) *CollaboratorRepository {
	return &CollaboratorRepository{db: db}
}

// Add grants a user collaborator access on one entity version. Adding an
// existing pair is a no-op.
func (r *CollaboratorRepository) Add(ctx context.Context, entityID, userID, grantedBy string) error {
	const query = `INSERT INTO collaborators (entity_id, user_id, granted_by, created_at)
	VALUES ($1, $2, $3, $4) ON CONFLICT (entity_id, user_id) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, entityID, userID, grantedBy, time.Now().UTC()); err != nil {
		return fmt.Errorf("add collaborator: %w", err)
	}
	return nil
}

// Remove revokes a collaborator grant.
func (r *CollaboratorRepository) Remove(ctx context.Context, entityID, userID string) error {
	const query = `DELETE FROM collaborators WHERE entity_id = $1 AND user_id = $2`
	if _, err := r.db.ExecContext(ctx, query, entityID, userID); err != nil {
		return fmt.Errorf("remove collaborator: %w", err)
	}
	return nil
}

// List returns all collaborator grants on an entity version.
func (r *CollaboratorRepository) List(ctx context.Context, entityID string) ([]models.Collaborator, error) {
	const query = `SELECT entity_id, user_id, granted_by, created_at FROM collaborators WHERE entity_id = $1 ORDER BY created_at ASC`
	var collaborators []models.Collaborator
	if err := r.db.SelectContext(ctx, &collaborators, query, entityID); err != nil {
		return nil, fmt.Errorf("list collaborators: %w", err)
	}
	return collaborators, nil
}

// Exists reports whether the user holds a collaborator grant on the
// entity version.
func (r *CollaboratorRepository) Exists(ctx context.Context, entityID, userID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM collaborators WHERE entity_id = $1 AND user_id = $2)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, entityID, userID); err != nil {
		return false, fmt.Errorf("check collaborator: %w", err)
	}
	return exists, nil
}

// CopyGrants copies every grant from one entity version onto another.
// Used when a fork explicitly opts in to carrying collaborators over.
func (r *CollaboratorRepository) CopyGrants(ctx context.Context, fromEntityID, toEntityID string) error {
	const query = `INSERT INTO collaborators (entity_id, user_id, granted_by, created_at)
	SELECT $2, user_id, granted_by, $3 FROM collaborators WHERE entity_id = $1
	ON CONFLICT (entity_id, user_id) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, fromEntityID, toEntityID, time.Now().UTC()); err != nil {
		return fmt.Errorf("copy collaborator grants: %w", err)
	}
	return nil
}
