package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/acadhub/curricula-api/internal/models"
	"github.com/acadhub/curricula-api/internal/workflow"
)

const entityColumns = `id, kind, base_code, version, version_code, status, department_code, creator_id,
       name, description, credits, created_at, updated_at, submitted_at`

// EntityRepository persists versioned Course/Degree rows. The database
// carries a unique index on (kind, base_code, version) which is the
// ultimate guard against concurrent forks.
type EntityRepository struct {
	db *sqlx.DB
}

// NewEntityRepository constructs the repository.
func NewEntityRepository(db *sqlx.DB) *EntityRepository {
	return &EntityRepository{db: db}
}

// IsUniqueViolation reports whether err is a Postgres unique-constraint
// failure, which on this table means a version-number collision.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

// Create inserts a new entity version row.
func (r *EntityRepository) Create(ctx context.Context, entity *models.Entity) error {
	if entity.ID == "" {
		entity.ID = uuid.NewString()
	}
	if entity.Version <= 0 {
		entity.Version = 1
	}
	entity.VersionCode = workflow.VersionCode(entity.BaseCode, entity.Version)
	if entity.Status == "" {
		entity.Status = models.EntityStatusDraft
	}
	now := time.Now().UTC()
	if entity.CreatedAt.IsZero() {
		entity.CreatedAt = now
	}
	entity.UpdatedAt = now

	const query = `INSERT INTO entities
	(id, kind, base_code, version, version_code, status, department_code, creator_id, name, description, credits, created_at, updated_at, submitted_at)
	VALUES (:id, :kind, :base_code, :version, :version_code, :status, :department_code, :creator_id, :name, :description, :credits, :created_at, :updated_at, :submitted_at)`
	if _, err := r.db.NamedExecContext(ctx, query, entity); err != nil {
		if IsUniqueViolation(err) {
			return err
		}
		return fmt.Errorf("create entity: %w", err)
	}
	return nil
}

// GetByID fetches an entity version by identifier.
func (r *EntityRepository) GetByID(ctx context.Context, id string) (*models.Entity, error) {
	query := fmt.Sprintf(`SELECT %s FROM entities WHERE id = $1`, entityColumns)
	var entity models.Entity
	if err := r.db.GetContext(ctx, &entity, query, id); err != nil {
		return nil, err
	}
	return &entity, nil
}

// ListLineage returns every version row sharing the base code, oldest
// version first.
func (r *EntityRepository) ListLineage(ctx context.Context, kind models.EntityKind, baseCode string) ([]models.Entity, error) {
	query := fmt.Sprintf(`SELECT %s FROM entities WHERE kind = $1 AND base_code = $2 ORDER BY version ASC`, entityColumns)
	var entities []models.Entity
	if err := r.db.SelectContext(ctx, &entities, query, kind, baseCode); err != nil {
		return nil, fmt.Errorf("list lineage: %w", err)
	}
	return entities, nil
}

// MaxVersion returns the highest version number for a base code, 0 when
// none exist.
func (r *EntityRepository) MaxVersion(ctx context.Context, kind models.EntityKind, baseCode string) (int, error) {
	const query = `SELECT COALESCE(MAX(version), 0) FROM entities WHERE kind = $1 AND base_code = $2`
	var max int
	if err := r.db.GetContext(ctx, &max, query, kind, baseCode); err != nil {
		return 0, fmt.Errorf("max version: %w", err)
	}
	return max, nil
}

// List returns entities matching the filter, newest first.
func (r *EntityRepository) List(ctx context.Context, filter models.EntityFilter) ([]models.Entity, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 6)
	builder.WriteString(fmt.Sprintf(`SELECT %s FROM entities`, entityColumns))

	conditions := make([]string, 0, 5)
	if filter.Kind != "" {
		args = append(args, filter.Kind)
		conditions = append(conditions, fmt.Sprintf("kind = $%d", len(args)))
	}
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.DepartmentCode != "" {
		args = append(args, filter.DepartmentCode)
		conditions = append(conditions, fmt.Sprintf("department_code = $%d", len(args)))
	}
	if filter.BaseCode != "" {
		args = append(args, filter.BaseCode)
		conditions = append(conditions, fmt.Sprintf("base_code = $%d", len(args)))
	}
	if filter.CreatorID != "" {
		args = append(args, filter.CreatorID)
		conditions = append(conditions, fmt.Sprintf("creator_id = $%d", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY updated_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var entities []models.Entity
	if err := r.db.SelectContext(ctx, &entities, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	return entities, nil
}

// UpdateStatusParams groups the optimistic status update inputs.
type UpdateStatusParams struct {
	ID          string
	From        models.EntityStatus
	To          models.EntityStatus
	SubmittedAt *time.Time
}

// UpdateStatus performs an optimistic transition: the row must still be
// in the expected status. Zero rows affected surfaces as sql.ErrNoRows so
// the service can report a lost race.
func (r *EntityRepository) UpdateStatus(ctx context.Context, params UpdateStatusParams) error {
	setParts := []string{"status = $1", "updated_at = $2"}
	args := []interface{}{params.To, time.Now().UTC()}
	if params.SubmittedAt != nil {
		args = append(args, *params.SubmittedAt)
		setParts = append(setParts, fmt.Sprintf("submitted_at = $%d", len(args)))
	}
	args = append(args, params.ID)
	idPos := len(args)
	args = append(args, params.From)
	query := fmt.Sprintf("UPDATE entities SET %s WHERE id = $%d AND status = $%d",
		strings.Join(setParts, ", "), idPos, idPos+1)

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update entity status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check entity status rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateContent mutates the content fields of a draft/rejected row. The
// status guard keeps in-place edits off published versions even if the
// caller's view of the row was stale.
func (r *EntityRepository) UpdateContent(ctx context.Context, entity *models.Entity) error {
	const query = `UPDATE entities SET name = $2, description = $3, credits = $4, updated_at = $5
	WHERE id = $1 AND status IN ('DRAFT', 'REJECTED')`
	result, err := r.db.ExecContext(ctx, query, entity.ID, entity.Name, entity.Description, entity.Credits, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update entity content: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check entity content rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// PublishResult reports the outcome of a publish, including the version
// row that was superseded, if any.
type PublishResult struct {
	ArchivedID *string
}

// Publish moves an APPROVED row to ACTIVE and archives any currently
// ACTIVE row of the same base code inside one transaction. Both rows are
// locked before either is mutated so there is never a window with zero or
// two active versions.
func (r *EntityRepository) Publish(ctx context.Context, id string) (result PublishResult, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("begin publish tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var publishing struct {
		Kind     models.EntityKind   `db:"kind"`
		BaseCode string              `db:"base_code"`
		Status   models.EntityStatus `db:"status"`
	}
	const lockQuery = `SELECT kind, base_code, status FROM entities WHERE id = $1 FOR UPDATE`
	if err = tx.GetContext(ctx, &publishing, lockQuery, id); err != nil {
		return result, err
	}
	if publishing.Status != models.EntityStatusApproved {
		err = sql.ErrNoRows
		return result, err
	}

	var activeID string
	const activeQuery = `SELECT id FROM entities WHERE kind = $1 AND base_code = $2 AND status = 'ACTIVE' AND id <> $3 FOR UPDATE`
	switch err = tx.GetContext(ctx, &activeID, activeQuery, publishing.Kind, publishing.BaseCode, id); err {
	case nil:
		now := time.Now().UTC()
		if _, err = tx.ExecContext(ctx, `UPDATE entities SET status = 'ARCHIVED', updated_at = $2 WHERE id = $1`, activeID, now); err != nil {
			return result, fmt.Errorf("archive superseded version: %w", err)
		}
		result.ArchivedID = &activeID
	case sql.ErrNoRows:
		err = nil
	default:
		return result, fmt.Errorf("lock active version: %w", err)
	}

	if _, err = tx.ExecContext(ctx, `UPDATE entities SET status = 'ACTIVE', updated_at = $2 WHERE id = $1`, id, time.Now().UTC()); err != nil {
		return result, fmt.Errorf("activate version: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return result, fmt.Errorf("commit publish tx: %w", err)
	}
	return result, nil
}
