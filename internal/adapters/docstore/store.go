// Package docstore defines the document store boundary the engine writes
// to and subscribes on. Implementations provide per-collection ordering,
// atomic numeric increments, and push-delivered full snapshots.
package docstore

import (
	"context"
	"time"
)

// Fields is the schemaless field set of one document.
type Fields map[string]any

type serverTimestamp struct{}

// ServerTimestamp is a sentinel field value. A create replaces it with the
// store's own commit-time clock; callers never supply ordering timestamps.
var ServerTimestamp = serverTimestamp{} //nolint:gochecknoglobals // sentinel value

// Document is one stored entity as delivered on a subscription.
type Document struct {
	ID     string
	Fields Fields
}

// Str returns a string field, or "" when absent or mistyped.
func (d Document) Str(key string) string {
	v, _ := d.Fields[key].(string)
	return v
}

// Int64 returns a numeric field, tolerating the numeric types JSON
// round-trips produce.
func (d Document) Int64(key string) int64 {
	switch v := d.Fields[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}

// Time returns a timestamp field, tolerating RFC3339 strings from
// JSON-backed stores.
func (d Document) Time(key string) time.Time {
	switch v := d.Fields[key].(type) {
	case time.Time:
		return v
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}
		}
		return t
	default:
		return time.Time{}
	}
}

// Query selects one feed: a collection, an optional single-field equality
// filter, and a single-field sort.
type Query struct {
	Collection  string
	FilterField string
	FilterValue any
	OrderField  string
	Descending  bool
}

// Batch is one push-delivered snapshot. Docs is always the full ordered
// result of the query, never a delta; Revision increases with every commit
// that touched the feed, letting consumers drop replays after a reopen.
type Batch struct {
	Revision uint64
	Docs     []Document
}

// Subscription is a standing registration for one query.
type Subscription interface {
	// Batches delivers ordered snapshots. The channel closes on transport
	// failure or Close; after a failure Err reports the cause.
	Batches() <-chan Batch

	// Err returns the transport error that closed the stream, or nil after
	// a clean Close.
	Err() error

	// Close releases the registration. Idempotent.
	Close()
}

// Store is the adapter boundary over the external document store.
type Store interface {
	// Create commits a new document and returns its store-assigned id.
	Create(ctx context.Context, collection string, fields Fields) (string, error)

	// AtomicIncrement adds delta to a numeric field without a read step.
	// Returns ErrNotFound if the document does not exist.
	AtomicIncrement(ctx context.Context, collection, id, field string, delta int64) error

	// Lookup fetches one document by id. Returns ErrNotFound if absent.
	Lookup(ctx context.Context, collection, id string) (Document, error)

	// Subscribe opens a live query. The first batch is the current full
	// snapshot; later batches follow the store's commit order for the feed.
	Subscribe(ctx context.Context, q Query) (Subscription, error)
}
