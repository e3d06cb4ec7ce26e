package workflow

import (
	"fmt"

	"github.com/acadhub/curricula-api/internal/models"
	appErrors "github.com/acadhub/curricula-api/pkg/errors"
)

// Action is a workflow verb applied to an entity or enrollment.
type Action string

const (
	ActionSubmit         Action = "SUBMIT"
	ActionApprove        Action = "APPROVE"
	ActionReject         Action = "REJECT"
	ActionRequestChanges Action = "REQUEST_CHANGES"
	ActionPublish        Action = "PUBLISH"
)

// Relation is the actor's relationship to the record being transitioned.
// Authorship (creator or collaborator) and approval authority (HOD of the
// owning department) are resolved by the caller; the machine only checks
// that the relation is allowed for the transition.
type Relation string

const (
	RelationAuthor   Relation = "AUTHOR"
	RelationApprover Relation = "APPROVER"
)

type entityTransition struct {
	to        models.EntityStatus
	relations map[Relation]struct{}
}

type entityKey struct {
	from   models.EntityStatus
	action Action
}

func relations(rs ...Relation) map[Relation]struct{} {
	set := make(map[Relation]struct{}, len(rs))
	for _, r := range rs {
		set[r] = struct{}{}
	}
	return set
}

// entityTable is the closed transition table for Course/Degree versions.
// Edits to APPROVED/ACTIVE rows are not transitions at all; they go
// through the versioning policy and produce a new row.
var entityTable = map[entityKey]entityTransition{
	{models.EntityStatusDraft, ActionSubmit}:                   {models.EntityStatusPendingApproval, relations(RelationAuthor)},
	{models.EntityStatusPendingApproval, ActionApprove}:        {models.EntityStatusApproved, relations(RelationApprover)},
	{models.EntityStatusPendingApproval, ActionReject}:         {models.EntityStatusRejected, relations(RelationApprover)},
	{models.EntityStatusPendingApproval, ActionRequestChanges}: {models.EntityStatusDraft, relations(RelationApprover)},
	{models.EntityStatusApproved, ActionPublish}:               {models.EntityStatusActive, relations(RelationAuthor, RelationApprover)},
}

// EntityTransition validates one entity transition and returns the target
// status. The transition pair is named in the error so callers can surface
// it verbatim.
func EntityTransition(from models.EntityStatus, action Action, rel Relation) (models.EntityStatus, error) {
	t, ok := entityTable[entityKey{from, action}]
	if !ok {
		return "", appErrors.Clone(appErrors.ErrIllegalTransition,
			fmt.Sprintf("action %s is not allowed from status %s", action, from))
	}
	if _, ok := t.relations[rel]; !ok {
		return "", appErrors.Clone(appErrors.ErrForbidden,
			fmt.Sprintf("actor relation %s may not perform %s", rel, action))
	}
	return t.to, nil
}

type enrollmentTransition struct {
	to        models.EnrollmentStatus
	relations map[Relation]struct{}
}

type enrollmentKey struct {
	from   models.EnrollmentStatus
	action Action
}

// enrollmentTable mirrors the entity table but with the smaller status
// set; reject always returns the row to DRAFT.
var enrollmentTable = map[enrollmentKey]enrollmentTransition{
	{models.EnrollmentStatusDraft, ActionSubmit}:            {models.EnrollmentStatusPendingApproval, relations(RelationAuthor)},
	{models.EnrollmentStatusPendingApproval, ActionApprove}: {models.EnrollmentStatusApproved, relations(RelationApprover)},
	{models.EnrollmentStatusPendingApproval, ActionReject}:  {models.EnrollmentStatusDraft, relations(RelationApprover)},
}

// EnrollmentTransition validates one enrollment transition.
func EnrollmentTransition(from models.EnrollmentStatus, action Action, rel Relation) (models.EnrollmentStatus, error) {
	t, ok := enrollmentTable[enrollmentKey{from, action}]
	if !ok {
		return "", appErrors.Clone(appErrors.ErrIllegalTransition,
			fmt.Sprintf("action %s is not allowed from enrollment status %s", action, from))
	}
	if _, ok := t.relations[rel]; !ok {
		return "", appErrors.Clone(appErrors.ErrForbidden,
			fmt.Sprintf("actor relation %s may not perform %s", rel, action))
	}
	return t.to, nil
}
