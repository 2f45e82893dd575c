package charging

import "errors"

var (
	// ErrNotFound is returned for unknown child identifiers.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when a child with the same id exists.
	ErrAlreadyExists = errors.New("already exists")
	// ErrAdditionVetoed is returned when a voter rejected an addition.
	ErrAdditionVetoed = errors.New("addition vetoed")
	// ErrRemovalVetoed is returned when a voter rejected a removal.
	ErrRemovalVetoed = errors.New("removal vetoed")
	// ErrOperatorMismatch is returned when a child id carries another operator prefix.
	ErrOperatorMismatch = errors.New("operator mismatch")
	// ErrHasChildren is returned when removing an entity that still has children.
	ErrHasChildren = errors.New("entity still has children")
)
