package ordering

import (
	"errors"
	"fmt"

	"github.com/asakaida/junban/internal/entities"
)

var (
	// ErrReferenceNotFound is matched by every ReferenceError
	ErrReferenceNotFound = errors.New("relation reference not found")

	// ErrDuplicateID reports a broken uniqueness invariant
	ErrDuplicateID = errors.New("duplicate relation ID")
)

// ReferenceError is returned when a before/after anchor is not part of the set
type ReferenceError struct {
	ID       string                // ID being connected
	Position entities.Position     // Requested position
	Kind     entities.PositionKind // before or after
}

// Error implements the error interface
func (e *ReferenceError) Error() string {
	return fmt.Sprintf("cannot connect relation %q %s %q: anchor not found",
		e.ID, e.Kind, e.Position.Anchor())
}

// Is makes errors.Is(err, ErrReferenceNotFound) succeed
func (e *ReferenceError) Is(target error) bool {
	return target == ErrReferenceNotFound
}

// Anchor returns the missing anchor ID
func (e *ReferenceError) Anchor() string {
	return e.Position.Anchor()
}
