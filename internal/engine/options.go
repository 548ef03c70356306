package engine

import (
	"time"

	"github.com/sadwik-learner/feedsync/internal/domain/identity"
	"github.com/sadwik-learner/feedsync/pkg/logger"
)

// Option configures the engine.
type Option func(*Engine)

// WithLogger sets the logger used by the engine and its components.
func WithLogger(log logger.Logger) Option {
	return func(e *Engine) {
		e.log = log
	}
}

// WithResolver replaces the identity resolver.
func WithResolver(r *identity.Resolver) Option {
	return func(e *Engine) {
		if r != nil {
			e.resolver = r
		}
	}
}

// WithMatchWindow sets the recency window used to match optimistic
// pending entries against their authoritative echoes.
func WithMatchWindow(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.matchWindow = d
		}
	}
}

// WithReopenBackoff sets the base and cap for subscription reopen delays.
func WithReopenBackoff(base, max time.Duration) Option {
	return func(e *Engine) {
		if base > 0 && max >= base {
			e.backoffBase = base
			e.backoffMax = max
		}
	}
}

// WithHandleBuffer sets the per-consumer snapshot buffer size.
func WithHandleBuffer(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.handleBuffer = n
		}
	}
}
