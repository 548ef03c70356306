package subscription

import "time"

// Option applies a configuration option to the Manager.
type Option func(*Manager)

// WithBackoff sets the reopen backoff bounds.
func WithBackoff(base, max time.Duration) Option {
	return func(m *Manager) {
		if base > 0 && max >= base {
			m.backoffBase = base
			m.backoffMax = max
		}
	}
}

// WithBufferSize sets the per-consumer snapshot buffer size.
func WithBufferSize(size int) Option {
	return func(m *Manager) {
		if size > 0 {
			m.bufferSize = size
		}
	}
}
