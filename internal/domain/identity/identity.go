// Package identity resolves the display identity embedded in a write.
package identity

import (
	"strings"

	"github.com/sadwik-learner/feedsync/internal/domain/model"
)

// Fixed masked values used for anonymous contributions.
const (
	AnonymousName = "Anonymous"
	HiddenContact = "Hidden"
)

// Option applies a configuration option to the Resolver.
type Option func(*Resolver)

// WithPseudonym overrides the fixed pseudonym used for anonymous writes.
func WithPseudonym(name string) Option {
	return func(r *Resolver) {
		if name != "" {
			r.pseudonym = name
		}
	}
}

// Resolver derives the display identity attached to a write from the
// authenticated principal and a per-write anonymous flag. Resolution
// happens once per write; the result is embedded in the written entity
// and never re-derived on read.
type Resolver struct {
	pseudonym string
}

// NewResolver creates a resolver with configuration options.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		pseudonym: AnonymousName,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the identity to embed in a write. An anonymous request
// yields the fixed pseudonym and masked contact regardless of the
// principal; otherwise the principal's display name is used, falling back
// to its contact address, falling back to the pseudonym.
func (r *Resolver) Resolve(principal model.Principal, anonymous bool) model.DisplayIdentity {
	if anonymous {
		return model.DisplayIdentity{Name: r.pseudonym, Contact: HiddenContact}
	}

	name := strings.TrimSpace(principal.DisplayName)
	if name == "" {
		name = strings.TrimSpace(principal.Email)
	}
	if name == "" {
		name = r.pseudonym
	}

	contact := strings.TrimSpace(principal.Email)
	if contact == "" {
		contact = HiddenContact
	}

	return model.DisplayIdentity{Name: name, Contact: contact}
}
