package workflow

import (
	"fmt"

	"github.com/acadhub/curricula-api/internal/models"
)

// EditMode says whether an edit may mutate the row or must fork a new
// version.
type EditMode string

const (
	EditModeInPlace EditMode = "in_place"
	EditModeFork    EditMode = "fork"
)

// EditPlan is the outcome of planning an edit against one entity version.
// NextVersion/NextVersionCode are only set for fork plans.
type EditPlan struct {
	Mode            EditMode `json:"mode"`
	NextVersion     int      `json:"next_version,omitempty"`
	NextVersionCode string   `json:"next_version_code,omitempty"`
}

// VersionCode derives the display code for a version. Version 1 carries
// the bare base code; later versions get a _V<n> suffix.
func VersionCode(baseCode string, version int) string {
	if version <= 1 {
		return baseCode
	}
	return fmt.Sprintf("%s_V%d", baseCode, version)
}

// PlanEdit decides between in-place editing and forking. Only DRAFT and
// REJECTED rows may be mutated directly; every other status forks a new
// draft at maxVersion+1 so published state is never touched.
func PlanEdit(entity *models.Entity, maxVersion int) EditPlan {
	switch entity.Status {
	case models.EntityStatusDraft, models.EntityStatusRejected:
		return EditPlan{Mode: EditModeInPlace}
	}
	next := maxVersion + 1
	return EditPlan{
		Mode:            EditModeFork,
		NextVersion:     next,
		NextVersionCode: VersionCode(entity.BaseCode, next),
	}
}

// Fork copies the source version's content into a fresh draft row at the
// given version. The source row is left untouched. Collaborator grants do
// not carry over; the caller copies them explicitly when requested.
func Fork(source *models.Entity, version int) *models.Entity {
	return &models.Entity{
		Kind:           source.Kind,
		BaseCode:       source.BaseCode,
		Version:        version,
		VersionCode:    VersionCode(source.BaseCode, version),
		Status:         models.EntityStatusDraft,
		DepartmentCode: source.DepartmentCode,
		CreatorID:      source.CreatorID,
		Name:           source.Name,
		Description:    source.Description,
		Credits:        source.Credits,
	}
}
