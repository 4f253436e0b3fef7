package contentdirectory

import "errors"

// Domain errors for the catalog.
var (
	// ErrObjectNotFound is returned when an object ID does not exist.
	ErrObjectNotFound = errors.New("contentdirectory: object not found")

	// ErrNotContainer is returned when adding a child to an item.
	ErrNotContainer = errors.New("contentdirectory: object is not a container")
)
