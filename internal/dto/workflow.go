package dto

import (
	"github.com/acadhub/curricula-api/internal/models"
	"github.com/acadhub/curricula-api/internal/workflow"
)

// CreateEntityRequest starts a new course or degree at version 1.
type CreateEntityRequest struct {
	BaseCode       string `json:"baseCode" validate:"required,max=32"`
	DepartmentCode string `json:"departmentCode" validate:"required,max=16"`
	Name           string `json:"name" validate:"required,max=200"`
	Description    string `json:"description" validate:"max=5000"`
	Credits        int    `json:"credits" validate:"gte=0,lte=60"`
}

// UpdateEntityRequest mutates content fields of a draft/rejected version.
type UpdateEntityRequest struct {
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description" validate:"max=5000"`
	Credits     int    `json:"credits" validate:"gte=0,lte=60"`
}

// DecideRequest carries an HOD decision on a pending entity.
type DecideRequest struct {
	Action workflow.Action `json:"action"`
	Reason string          `json:"reason"`
}

// EditRequest asks where an edit should go. CopyCollaborators opts a
// fork into carrying the source version's grants over.
type EditRequest struct {
	CopyCollaborators bool `json:"copyCollaborators"`
}

// EditTarget tells the caller which row to edit next.
type EditTarget struct {
	EditTargetID string            `json:"editTargetId"`
	Mode         workflow.EditMode `json:"mode"`
}

// CollaboratorRequest adds or removes a collaborator grant.
type CollaboratorRequest struct {
	UserID string `json:"userId" validate:"required"`
}

// CollaboratorList is the response shape for grant listings.
type CollaboratorList struct {
	EntityID string   `json:"entityId"`
	UserIDs  []string `json:"userIds"`
}

// PendingApprovalItem is one entry in the HOD queue.
type PendingApprovalItem struct {
	Entity      models.Entity `json:"entity"`
	WaitingDays int           `json:"waiting_days"`
}
