package reconcile

import "time"

// Option applies a configuration option to the View.
type Option func(*View)

// WithMatchWindow bounds how old a pending entry may be and still match
// an authoritative entity.
func WithMatchWindow(window time.Duration) Option {
	return func(v *View) {
		if window > 0 {
			v.window = window
		}
	}
}

// WithClock overrides the provisional-timestamp clock. Tests use this for
// deterministic ordering.
func WithClock(now func() time.Time) Option {
	return func(v *View) {
		if now != nil {
			v.now = now
		}
	}
}
