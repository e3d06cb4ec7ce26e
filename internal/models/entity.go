package models

import "time"

// EntityKind discriminates the two versioned entity families.
type EntityKind string

const (
	EntityKindCourse EntityKind = "COURSE"
	EntityKindDegree EntityKind = "DEGREE"
)

// EntityStatus captures the approval workflow state of an entity version.
type EntityStatus string

const (
	EntityStatusDraft           EntityStatus = "DRAFT"
	EntityStatusPendingApproval EntityStatus = "PENDING_APPROVAL"
	EntityStatusApproved        EntityStatus = "APPROVED"
	EntityStatusRejected        EntityStatus = "REJECTED"
	EntityStatusActive          EntityStatus = "ACTIVE"
	EntityStatusArchived        EntityStatus = "ARCHIVED"
)

// Entity is one version row of a course or degree. All versions of a
// logical entity share base_code; (base_code, version) is unique.
type Entity struct {
	ID             string       `db:"id" json:"id"`
	Kind           EntityKind   `db:"kind" json:"kind"`
	BaseCode       string       `db:"base_code" json:"base_code"`
	Version        int          `db:"version" json:"version"`
	VersionCode    string       `db:"version_code" json:"version_code"`
	Status         EntityStatus `db:"status" json:"status"`
	DepartmentCode string       `db:"department_code" json:"department_code"`
	CreatorID      string       `db:"creator_id" json:"creator_id"`
	Name           string       `db:"name" json:"name"`
	Description    string       `db:"description" json:"description"`
	Credits        int          `db:"credits" json:"credits"`
	CreatedAt      time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time    `db:"updated_at" json:"updated_at"`
	SubmittedAt    *time.Time   `db:"submitted_at" json:"submitted_at,omitempty"`
}

// Collaborator associates a user with one entity version for joint
// authorship. The grant is scoped to that version only.
type Collaborator struct {
	EntityID  string    `db:"entity_id" json:"entity_id"`
	UserID    string    `db:"user_id" json:"user_id"`
	GrantedBy string    `db:"granted_by" json:"granted_by"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// EntityFilter constrains entity listing queries.
type EntityFilter struct {
	Kind           EntityKind
	Status         []EntityStatus
	DepartmentCode string
	BaseCode       string
	CreatorID      string
	Limit          int
	Offset         int
}
