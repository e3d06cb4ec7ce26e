package workflow

import (
	"fmt"
	"strings"

	appErrors "github.com/acadhub/curricula-api/pkg/errors"
)

// ReasonRule validates decision reasons. Entity and enrollment decisions
// carry separate rules so the two can diverge without code changes.
type ReasonRule struct {
	Min int
	Max int
}

// Validate checks a reason against the rule. Whitespace-only reasons are
// treated as empty.
func (r ReasonRule) Validate(reason string) error {
	trimmed := strings.TrimSpace(reason)
	if len(trimmed) < r.Min {
		return appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("reason must be at least %d characters", r.Min))
	}
	if r.Max > 0 && len(trimmed) > r.Max {
		return appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("reason must be at most %d characters", r.Max))
	}
	return nil
}

// RequiresReason reports whether the action demands a mandatory reason.
// Rejection feedback is never optional; authors always see why.
func RequiresReason(action Action) bool {
	return action == ActionReject || action == ActionRequestChanges
}
