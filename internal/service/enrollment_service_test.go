package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acadhub/curricula-api/internal/dto"
	"github.com/acadhub/curricula-api/internal/models"
	"github.com/acadhub/curricula-api/internal/repository"
	"github.com/acadhub/curricula-api/internal/workflow"
	appErrors "github.com/acadhub/curricula-api/pkg/errors"
)

type enrollmentStoreStub struct {
	enrollments map[string]*models.Enrollment
	nextID      int
}

func newEnrollmentStoreStub() *enrollmentStoreStub {
	return &enrollmentStoreStub{enrollments: make(map[string]*models.Enrollment)}
}

func (s *enrollmentStoreStub) seed(enrollment *models.Enrollment) *models.Enrollment {
	s.enrollments[enrollment.ID] = enrollment
	return enrollment
}

func (s *enrollmentStoreStub) Create(ctx context.Context, enrollment *models.Enrollment) error {
	s.nextID++
	if enrollment.ID == "" {
		enrollment.ID = fmt.Sprintf("enr-%d", s.nextID)
	}
	copied := *enrollment
	s.enrollments[enrollment.ID] = &copied
	return nil
}

func (s *enrollmentStoreStub) GetByID(ctx context.Context, id string) (*models.Enrollment, error) {
	if enrollment, ok := s.enrollments[id]; ok {
		copied := *enrollment
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (s *enrollmentStoreStub) ListByStudent(ctx context.Context, studentID string) ([]models.Enrollment, error) {
	var result []models.Enrollment
	for _, enrollment := range s.enrollments {
		if enrollment.StudentID == studentID {
			result = append(result, *enrollment)
		}
	}
	return result, nil
}

func (s *enrollmentStoreStub) ListPending(ctx context.Context) ([]models.Enrollment, error) {
	var result []models.Enrollment
	for _, enrollment := range s.enrollments {
		if enrollment.Status == models.EnrollmentStatusPendingApproval {
			result = append(result, *enrollment)
		}
	}
	return result, nil
}

func (s *enrollmentStoreStub) UpdateStatus(ctx context.Context, params repository.UpdateEnrollmentStatusParams) error {
	enrollment, ok := s.enrollments[params.ID]
	if !ok || enrollment.Status != params.From {
		return sql.ErrNoRows
	}
	enrollment.Status = params.To
	enrollment.RejectionReason = params.RejectionReason
	if params.SubmittedAt != nil {
		enrollment.SubmittedAt = params.SubmittedAt
	}
	return nil
}

func newEnrollmentFixture() (*EnrollmentService, *enrollmentStoreStub, *auditLoggerStub) {
	store := newEnrollmentStoreStub()
	audit := &auditLoggerStub{}
	svc := NewEnrollmentService(store, audit, nil, workflow.ReasonRule{Min: 1, Max: 500}, 100, nil)
	return svc, store, audit
}

func pendingEnrollment(id, studentID, semester string) *models.Enrollment {
	submitted := time.Now().UTC()
	return &models.Enrollment{
		ID:          id,
		StudentID:   studentID,
		Semester:    semester,
		CourseCodes: []string{"CS101"},
		Status:      models.EnrollmentStatusPendingApproval,
		SubmittedAt: &submitted,
	}
}

func TestEnrollmentServiceCreateAndSubmit(t *testing.T) {
	svc, store, _ := newEnrollmentFixture()
	student := claimsFor("stu-1", models.RoleStudent, "CS")

	enrollment, err := svc.Create(context.Background(), dto.CreateEnrollmentRequest{
		CourseCodes:  []string{"CS101", "MATH201"},
		Semester:     "FALL",
		AcademicYear: "2026/2027",
	}, student)
	require.NoError(t, err)
	require.Equal(t, models.EnrollmentStatusDraft, enrollment.Status)
	require.Equal(t, "stu-1", enrollment.StudentID)

	submitted, err := svc.Submit(context.Background(), enrollment.ID, student)
	require.NoError(t, err)
	require.Equal(t, models.EnrollmentStatusPendingApproval, submitted.Status)
	require.NotNil(t, store.enrollments[enrollment.ID].SubmittedAt)
}

func TestEnrollmentServiceSubmitRequiresOwner(t *testing.T) {
	svc, store, _ := newEnrollmentFixture()
	store.seed(&models.Enrollment{ID: "enr-1", StudentID: "stu-1", Semester: "FALL", Status: models.EnrollmentStatusDraft})

	_, err := svc.Submit(context.Background(), "enr-1", claimsFor("stu-2", models.RoleStudent, "CS"))
	requireErrorCode(t, err, appErrors.ErrForbidden.Code)
}

func TestEnrollmentServiceDecidePartialBatch(t *testing.T) {
	svc, store, audit := newEnrollmentFixture()
	store.seed(pendingEnrollment("enr-1", "stu-1", "FALL"))
	store.seed(pendingEnrollment("enr-2", "stu-1", "FALL"))
	store.seed(&models.Enrollment{ID: "enr-3", StudentID: "stu-2", Semester: "FALL", Status: models.EnrollmentStatusApproved})

	result, err := svc.Decide(context.Background(), dto.DecideEnrollmentsRequest{
		IDs:    []string{"enr-1", "enr-2", "enr-3", "missing"},
		Action: workflow.ActionApprove,
	}, claimsFor("hod-1", models.RoleHOD, "CS"))
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"enr-1", "enr-2"}, result.Succeeded)
	require.Len(t, result.Failed, 2)

	require.Equal(t, models.EnrollmentStatusApproved, store.enrollments["enr-1"].Status)
	require.Equal(t, models.EnrollmentStatusApproved, store.enrollments["enr-2"].Status)
	require.Len(t, audit.events, 2)
}

func TestEnrollmentServiceDecideRejectReturnsToDraft(t *testing.T) {
	svc, store, _ := newEnrollmentFixture()
	store.seed(pendingEnrollment("enr-1", "stu-1", "FALL"))

	result, err := svc.Decide(context.Background(), dto.DecideEnrollmentsRequest{
		IDs:    []string{"enr-1"},
		Action: workflow.ActionReject,
		Reason: "course load exceeds the credit limit",
	}, claimsFor("hod-1", models.RoleHOD, "CS"))
	require.NoError(t, err)
	require.Equal(t, []string{"enr-1"}, result.Succeeded)

	enrollment := store.enrollments["enr-1"]
	require.Equal(t, models.EnrollmentStatusDraft, enrollment.Status)
	require.NotNil(t, enrollment.RejectionReason)
	require.Equal(t, "course load exceeds the credit limit", *enrollment.RejectionReason)
}

func TestEnrollmentServiceDecideRejectRequiresReason(t *testing.T) {
	svc, store, _ := newEnrollmentFixture()
	store.seed(pendingEnrollment("enr-1", "stu-1", "FALL"))

	_, err := svc.Decide(context.Background(), dto.DecideEnrollmentsRequest{
		IDs:    []string{"enr-1"},
		Action: workflow.ActionReject,
		Reason: "   ",
	}, claimsFor("hod-1", models.RoleHOD, "CS"))
	requireErrorCode(t, err, appErrors.ErrValidation.Code)
	require.Equal(t, models.EnrollmentStatusPendingApproval, store.enrollments["enr-1"].Status)
}

func TestEnrollmentServiceDecideInvalidAction(t *testing.T) {
	svc, _, _ := newEnrollmentFixture()

	_, err := svc.Decide(context.Background(), dto.DecideEnrollmentsRequest{
		IDs:    []string{"enr-1"},
		Action: workflow.ActionPublish,
	}, claimsFor("hod-1", models.RoleHOD, "CS"))
	requireErrorCode(t, err, appErrors.ErrValidation.Code)
}

func TestEnrollmentServiceDecideAcceptsLowercaseAction(t *testing.T) {
	svc, store, _ := newEnrollmentFixture()
	store.seed(pendingEnrollment("enr-1", "stu-1", "FALL"))

	result, err := svc.Decide(context.Background(), dto.DecideEnrollmentsRequest{
		IDs:    []string{"enr-1"},
		Action: workflow.Action("approve"),
	}, claimsFor("hod-1", models.RoleHOD, "CS"))
	require.NoError(t, err)
	require.Equal(t, []string{"enr-1"}, result.Succeeded)
	require.Equal(t, models.EnrollmentStatusApproved, store.enrollments["enr-1"].Status)
}

func TestEnrollmentServicePendingGroups(t *testing.T) {
	svc, store, _ := newEnrollmentFixture()
	store.seed(pendingEnrollment("enr-1", "stu-1", "FALL"))
	store.seed(pendingEnrollment("enr-2", "stu-1", "FALL"))
	store.seed(pendingEnrollment("enr-3", "stu-2", "FALL"))

	groups, err := svc.PendingGroups(context.Background())
	require.NoError(t, err)

	total := 0
	for _, group := range groups {
		total += len(group.Rows)
		for _, row := range group.Rows {
			require.Equal(t, group.StudentID, row.StudentID)
			require.Equal(t, group.Semester, row.Semester)
		}
	}
	require.Equal(t, 3, total)
}
