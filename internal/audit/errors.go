package audit

import "errors"

// ErrInvalidEntry is returned when an entry lacks required fields.
var ErrInvalidEntry = errors.New("invalid audit entry")
