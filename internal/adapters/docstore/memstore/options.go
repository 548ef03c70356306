package memstore

import "time"

// Option applies a configuration option to the Store.
type Option func(*Store)

// WithClock overrides the commit-time clock used for server timestamps.
// Tests use this to simulate clock skew at the store.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithBufferSize sets the per-subscription batch buffer size.
func WithBufferSize(size int) Option {
	return func(s *Store) {
		if size > 0 {
			s.bufferSize = size
		}
	}
}
