package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/acadhub/curricula-api/internal/models"
)

// AuditRepository appends to and reads the audit_events table. The table
// is append-only; there are no update or delete paths.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository constructs the repository.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// CreateAuditEvent appends one timeline record.
func (r *AuditRepository) CreateAuditEvent(ctx context.Context, event *models.AuditEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO audit_events
	(id, actor_id, action, resource, resource_id, from_status, to_status, reason, created_at)
	VALUES (:id, :actor_id, :action, :resource, :resource_id, :from_status, :to_status, :reason, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, event); err != nil {
		return fmt.Errorf("create audit event: %w", err)
	}
	return nil
}

// ListByResource returns the timeline for one resource, oldest first.
func (r *AuditRepository) ListByResource(ctx context.Context, resource, resourceID string) ([]models.AuditEvent, error) {
	const query = `SELECT id, actor_id, action, resource, resource_id, from_status, to_status, reason, created_at
	FROM audit_events WHERE resource = $1 AND resource_id = $2 ORDER BY created_at ASC`
	var events []models.AuditEvent
	if err := r.db.SelectContext(ctx, &events, query, resource, resourceID); err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	return events, nil
}
