package dto

import "github.com/acadhub/curricula-api/internal/workflow"

// CreateEnrollmentRequest drafts a student's course selections for a
// semester.
type CreateEnrollmentRequest struct {
	CourseCodes  []string `json:"courseCodes" validate:"required,min=1,dive,required"`
	Semester     string   `json:"semester" validate:"required,max=16"`
	AcademicYear string   `json:"academicYear" validate:"required,max=9"`
}

// DecideEnrollmentsRequest applies one decision across a set of
// enrollment ids; the result reports per-id outcomes.
type DecideEnrollmentsRequest struct {
	IDs    []string        `json:"ids" validate:"required,min=1"`
	Action workflow.Action `json:"action"`
	Reason string          `json:"reason"`
}
