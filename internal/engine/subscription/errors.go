package subscription

import "errors"

// Sentinel kinds for subscription errors.
var (
	ErrManagerClosed = errors.New("subscription manager closed")
)
