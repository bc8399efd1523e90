package domain

import "errors"

// Workflow error taxonomy. These are expected, user-facing outcomes shared
// by the incident, violation and dispute workflows; handlers map them to
// HTTP statuses, services log them at info level and never retry them.
var (
	// ErrForbidden means the role or assignment check failed.
	ErrForbidden = errors.New("actor is not allowed to perform this transition")

	// ErrInvalidTransition means the target status is unreachable from the
	// current status, or the caller acted on a stale version.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrMissingJustification means a required text field is below the
	// minimum length.
	ErrMissingJustification = errors.New("justification is required and must be at least 10 characters")

	// ErrPrerequisitesNotMet means the closure checklist is incomplete.
	ErrPrerequisitesNotMet = errors.New("closure prerequisites not met")

	// ErrNotFound means the referenced entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrStaleVersion is returned by the store when an optimistic update
	// lost the race. Services surface it as ErrInvalidTransition.
	ErrStaleVersion = errors.New("entity was modified concurrently")
)

// MinJustificationLen is the minimum length for rejection reasons,
// override justifications and dispute-exit notes.
const MinJustificationLen = 10

// ValidJustification reports whether s satisfies the minimum length after
// trimming nothing: length is measured on the raw string, matching the
// submission forms.
func ValidJustification(s string) bool {
	return len(s) >= MinJustificationLen
}
