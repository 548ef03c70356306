package docstore

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound  = errors.New("document not found")
	ErrClosed    = errors.New("store closed")
	ErrTransport = errors.New("store transport failure")
)
