package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/acadhub/curricula-api/internal/dto"
	"github.com/acadhub/curricula-api/internal/models"
	"github.com/acadhub/curricula-api/internal/repository"
	"github.com/acadhub/curricula-api/internal/workflow"
	appErrors "github.com/acadhub/curricula-api/pkg/errors"
)

type enrollmentStore interface {
	Create(ctx context.Context, enrollment *models.Enrollment) error
	GetByID(ctx context.Context, id string) (*models.Enrollment, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.Enrollment, error)
	ListPending(ctx context.Context) ([]models.Enrollment, error)
	UpdateStatus(ctx context.Context, params repository.UpdateEnrollmentStatusParams) error
}

// EnrollmentService manages student enrollment requests and the
// registrar's batch decisions over them.
type EnrollmentService struct {
	enrollments enrollmentStore
	audit       auditLogger
	dispatcher  NotificationDispatcher
	validator   *validator.Validate
	logger      *zap.Logger
	reasonRule  workflow.ReasonRule
	maxBatch    int
}

// NewEnrollmentService constructs the service. reasonRule governs batch
// rejection reasons and is configured independently of the entity rule.
func NewEnrollmentService(
	enrollments enrollmentStore,
	audit auditLogger,
	dispatcher NotificationDispatcher,
	reasonRule workflow.ReasonRule,
	maxBatch int,
	logger *zap.Logger,
) *EnrollmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dispatcher == nil {
		dispatcher = NewLogDispatcher(logger)
	}
	if maxBatch <= 0 {
		maxBatch = 100
	}
	return &EnrollmentService{
		enrollments: enrollments,
		audit:       audit,
		dispatcher:  dispatcher,
		validator:   validator.New(),
		logger:      logger,
		reasonRule:  reasonRule,
		maxBatch:    maxBatch,
	}
}

// Create opens a draft enrollment for the acting student.
func (s *EnrollmentService) Create(ctx context.Context, req dto.CreateEnrollmentRequest, actor *models.JWTClaims) (*models.Enrollment, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}
	enrollment := &models.Enrollment{
		StudentID:    actor.UserID,
		Semester:     strings.TrimSpace(req.Semester),
		AcademicYear: strings.TrimSpace(req.AcademicYear),
		CourseCodes:  pq.StringArray(req.CourseCodes),
		Status:       models.EnrollmentStatusDraft,
	}
	if err := s.enrollments.Create(ctx, enrollment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}
	return enrollment, nil
}

// Submit queues a draft enrollment for review.
func (s *EnrollmentService) Submit(ctx context.Context, id string, actor *models.JWTClaims) (*models.Enrollment, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	enrollment, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if enrollment.StudentID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the owning student may submit an enrollment")
	}
	next, err := workflow.EnrollmentTransition(enrollment.Status, workflow.ActionSubmit, workflow.RelationAuthor)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if err := s.enrollments.UpdateStatus(ctx, repository.UpdateEnrollmentStatusParams{
		ID:          enrollment.ID,
		From:        enrollment.Status,
		To:          next,
		SubmittedAt: &now,
	}); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrStaleState, "enrollment status changed concurrently")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to submit enrollment")
	}
	from := string(enrollment.Status)
	enrollment.Status = next
	enrollment.SubmittedAt = &now
	s.emitAudit(ctx, enrollment.ID, actor.UserID, string(workflow.ActionSubmit), &from, string(next), nil)
	return enrollment, nil
}

// ListMine returns the acting student's enrollments.
func (s *EnrollmentService) ListMine(ctx context.Context, actor *models.JWTClaims) ([]models.Enrollment, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	enrollments, err := s.enrollments.ListByStudent(ctx, actor.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	return enrollments, nil
}

// PendingGroups returns the review queue bucketed by student and
// semester, the shape reviewers act on.
func (s *EnrollmentService) PendingGroups(ctx context.Context) ([]models.EnrollmentGroup, error) {
	pending, err := s.enrollments.ListPending(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list pending enrollments")
	}
	groups := make([]models.EnrollmentGroup, 0)
	for _, enrollment := range pending {
		n := len(groups)
		if n > 0 && groups[n-1].StudentID == enrollment.StudentID && groups[n-1].Semester == enrollment.Semester {
			groups[n-1].Rows = append(groups[n-1].Rows, enrollment)
			continue
		}
		groups = append(groups, models.EnrollmentGroup{
			StudentID: enrollment.StudentID,
			Semester:  enrollment.Semester,
			Rows:      []models.Enrollment{enrollment},
		})
	}
	return groups, nil
}

// Decide applies one action to a batch of enrollment ids. Each id is
// decided independently: ids that fail validation or lost a race are
// reported in the failed list while the rest commit. A rejected
// enrollment returns to draft carrying the reason so the student can
// rework it.
func (s *EnrollmentService) Decide(ctx context.Context, req dto.DecideEnrollmentsRequest, actor *models.JWTClaims) (*models.EnrollmentDecisionResult, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	action := workflow.Action(strings.ToUpper(strings.TrimSpace(string(req.Action))))
	switch action {
	case workflow.ActionApprove, workflow.ActionReject:
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "action must be APPROVE or REJECT")
	}
	if len(req.IDs) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "ids must not be empty")
	}
	if len(req.IDs) > s.maxBatch {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("at most %d ids per batch", s.maxBatch))
	}
	var reason *string
	if action == workflow.ActionReject {
		if err := s.reasonRule.Validate(req.Reason); err != nil {
			return nil, err
		}
		trimmed := strings.TrimSpace(req.Reason)
		reason = &trimmed
	}

	result := &models.EnrollmentDecisionResult{
		Succeeded: make([]string, 0, len(req.IDs)),
		Failed:    make([]models.EnrollmentDecisionFailure, 0),
	}
	for _, id := range req.IDs {
		if err := s.decideOne(ctx, id, action, reason, actor); err != nil {
			result.Failed = append(result.Failed, models.EnrollmentDecisionFailure{
				ID:     id,
				Reason: failureMessage(err),
			})
			continue
		}
		result.Succeeded = append(result.Succeeded, id)
	}
	return result, nil
}

func (s *EnrollmentService) decideOne(ctx context.Context, id string, action workflow.Action, reason *string, actor *models.JWTClaims) error {
	enrollment, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	next, err := workflow.EnrollmentTransition(enrollment.Status, action, workflow.RelationApprover)
	if err != nil {
		return err
	}
	if err := s.enrollments.UpdateStatus(ctx, repository.UpdateEnrollmentStatusParams{
		ID:              enrollment.ID,
		From:            enrollment.Status,
		To:              next,
		RejectionReason: reason,
	}); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrStaleState, "enrollment was already decided")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply decision")
	}
	from := string(enrollment.Status)
	s.emitAudit(ctx, enrollment.ID, actor.UserID, string(action), &from, string(next), reason)
	body := ""
	if reason != nil {
		body = *reason
	}
	s.notify(ctx, Notification{
		RecipientID: enrollment.StudentID,
		Subject:     fmt.Sprintf("enrollment for %s %s", enrollment.Semester, strings.ToLower(string(action))),
		Body:        body,
	})
	return nil
}

func (s *EnrollmentService) get(ctx context.Context, id string) (*models.Enrollment, error) {
	enrollment, err := s.enrollments.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return enrollment, nil
}

func (s *EnrollmentService) emitAudit(ctx context.Context, enrollmentID, actorID, action string, from *string, to string, reason *string) {
	if s.audit == nil {
		return
	}
	event := &models.AuditEvent{
		ActorID:    &actorID,
		Action:     action,
		Resource:   "enrollment",
		ResourceID: &enrollmentID,
		FromStatus: from,
		ToStatus:   &to,
		Reason:     reason,
	}
	if err := s.audit.CreateAuditEvent(ctx, event); err != nil {
		s.logger.Warn("failed to persist audit event", zap.Error(err))
	}
}

func (s *EnrollmentService) notify(ctx context.Context, notification Notification) {
	if err := s.dispatcher.Dispatch(ctx, notification); err != nil {
		s.logger.Warn("notification dispatch failed",
			zap.String("recipient", notification.RecipientID), zap.Error(err))
	}
}

// failureMessage extracts a stable, client-facing reason from a per-id
// decision error.
func failureMessage(err error) string {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "internal error"
}
