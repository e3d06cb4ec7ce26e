package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/acadhub/curricula-api/internal/models"
)

const enrollmentColumns = `id, student_id, course_codes, semester, academic_year, status, rejection_reason, submitted_at, created_at, updated_at`

// EnrollmentRepository persists enrollment requests. Rows sharing
// (student_id, semester) form one approval group but stay individually
// addressable for partial decisions.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// Create inserts a new draft enrollment.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.Status == "" {
		enrollment.Status = models.EnrollmentStatusDraft
	}
	now := time.Now().UTC()
	enrollment.CreatedAt = now
	enrollment.UpdatedAt = now

	const query = `INSERT INTO enrollments
	(id, student_id, course_codes, semester, academic_year, status, rejection_reason, submitted_at, created_at, updated_at)
	VALUES (:id, :student_id, :course_codes, :semester, :academic_year, :status, :rejection_reason, :submitted_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, enrollment); err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// GetByID fetches one enrollment.
func (r *EnrollmentRepository) GetByID(ctx context.Context, id string) (*models.Enrollment, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollments WHERE id = $1`, enrollmentColumns)
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// ListByStudent returns one student's enrollments, newest first.
func (r *EnrollmentRepository) ListByStudent(ctx context.Context, studentID string) ([]models.Enrollment, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollments WHERE student_id = $1 ORDER BY created_at DESC`, enrollmentColumns)
	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, studentID); err != nil {
		return nil, fmt.Errorf("list enrollments by student: %w", err)
	}
	return enrollments, nil
}

// ListPending returns all pending enrollments ordered so callers can
// group them by (student_id, semester).
func (r *EnrollmentRepository) ListPending(ctx context.Context) ([]models.Enrollment, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollments WHERE status = 'PENDING_APPROVAL' ORDER BY student_id, semester, submitted_at ASC`, enrollmentColumns)
	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query); err != nil {
		return nil, fmt.Errorf("list pending enrollments: %w", err)
	}
	return enrollments, nil
}

// UpdateEnrollmentStatusParams groups the optimistic update inputs.
type UpdateEnrollmentStatusParams struct {
	ID              string
	From            models.EnrollmentStatus
	To              models.EnrollmentStatus
	RejectionReason *string
	SubmittedAt     *time.Time
}

// UpdateStatus transitions one enrollment, guarded by the expected
// current status. Zero rows affected surfaces as sql.ErrNoRows.
func (r *EnrollmentRepository) UpdateStatus(ctx context.Context, params UpdateEnrollmentStatusParams) error {
	setParts := []string{"status = $1", "updated_at = $2"}
	args := []interface{}{params.To, time.Now().UTC()}
	if params.RejectionReason != nil {
		args = append(args, *params.RejectionReason)
		setParts = append(setParts, fmt.Sprintf("rejection_reason = $%d", len(args)))
	}
	if params.SubmittedAt != nil {
		args = append(args, *params.SubmittedAt)
		setParts = append(setParts, fmt.Sprintf("submitted_at = $%d", len(args)))
	}
	args = append(args, params.ID)
	idPos := len(args)
	args = append(args, params.From)
	query := fmt.Sprintf("UPDATE enrollments SET %s WHERE id = $%d AND status = $%d",
		strings.Join(setParts, ", "), idPos, idPos+1)

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update enrollment status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check enrollment status rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
