package config

import (
	"errors"
)

// Error kinds the loader wraps its failures in, so callers can tell a bad
// value apart from a file or env layer that failed to load.
var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrLoadConfig    = errors.New("load config failed")
)
