package engine

import "errors"

// ErrNotStarted is returned when feeds are observed before Start or after
// Stop.
var ErrNotStarted = errors.New("engine not started")
