package telemetry

import "errors"

// ErrNoRegisterer indicates Options.Registerer was not set.
var ErrNoRegisterer = errors.New("telemetry: registerer is required")
