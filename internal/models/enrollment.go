package models

import (
	"time"

	"github.com/lib/pq"
)

// EnrollmentStatus represents the lifecycle of an enrollment request.
// Rejection returns the row to DRAFT so the student can amend and
// resubmit; there is no terminal rejected state.
type EnrollmentStatus string

const (
	EnrollmentStatusDraft           EnrollmentStatus = "DRAFT"
	EnrollmentStatusPendingApproval EnrollmentStatus = "PENDING_APPROVAL"
	EnrollmentStatusApproved        EnrollmentStatus = "APPROVED"
)

// Enrollment captures a student's course selections for one semester.
// All rows sharing (student_id, semester) form one approval group.
type Enrollment struct {
	ID              string           `db:"id" json:"id"`
	StudentID       string           `db:"student_id" json:"student_id"`
	CourseCodes     pq.StringArray   `db:"course_codes" json:"course_codes"`
	Semester        string           `db:"semester" json:"semester"`
	AcademicYear    string           `db:"academic_year" json:"academic_year"`
	Status          EnrollmentStatus `db:"status" json:"status"`
	RejectionReason *string          `db:"rejection_reason" json:"rejection_reason,omitempty"`
	SubmittedAt     *time.Time       `db:"submitted_at" json:"submitted_at,omitempty"`
	CreatedAt       time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time        `db:"updated_at" json:"updated_at"`
}

// EnrollmentGroup is the unit HOD/office staff decide on: every pending
// enrollment of one student in one semester.
type EnrollmentGroup struct {
	StudentID string       `json:"student_id"`
	Semester  string       `json:"semester"`
	Rows      []Enrollment `json:"rows"`
}

// EnrollmentDecisionResult reports per-id outcomes of a bulk decision.
// Callers must never assume full-batch success.
type EnrollmentDecisionResult struct {
	Succeeded []string                    `json:"succeeded"`
	Failed    []EnrollmentDecisionFailure `json:"failed"`
}

// EnrollmentDecisionFailure names a row that could not be decided.
type EnrollmentDecisionFailure struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}
