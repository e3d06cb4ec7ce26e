package models

import "time"

// Audit actions recorded on the approval timeline.
const (
	AuditActionCreate         = "CREATE"
	AuditActionArchive        = "ARCHIVE"
	AuditActionLogin          = "LOGIN"
	AuditActionLogout         = "LOGOUT"
	AuditActionSubmit         = "SUBMIT"
	AuditActionApprove        = "APPROVE"
	AuditActionReject         = "REJECT"
	AuditActionRequestChanges = "REQUEST_CHANGES"
	AuditActionPublish        = "PUBLISH"
	AuditActionFork           = "FORK"
	AuditActionExport         = "EXPORT"
	AuditActionCollaborator   = "COLLABORATOR_CHANGE"
)

// AuditEvent is one append-only record on an entity's approval timeline.
type AuditEvent struct {
	ID         string    `db:"id" json:"id"`
	ActorID    *string   `db:"actor_id" json:"actor_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	FromStatus *string   `db:"from_status" json:"from_status,omitempty"`
	ToStatus   *string   `db:"to_status" json:"to_status,omitempty"`
	Reason     *string   `db:"reason" json:"reason,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
