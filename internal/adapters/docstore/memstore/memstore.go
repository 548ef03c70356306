// Package memstore is the in-memory reference implementation of the
// document store boundary. It assigns commit-ordered ids, applies
// server-side timestamps, and pushes full ordered snapshots to
// subscribers on every commit.
package memstore

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/sadwik-learner/feedsync/internal/adapters/docstore"
)

const defaultBufferSize = 16

// Store implements docstore.Store entirely in memory.
type Store struct {
	mu          sync.Mutex
	byID        map[string]map[string]docstore.Fields // collection -> id -> fields
	order       map[string][]string                   // collection -> ids in commit order
	subs        map[*subscription]struct{}
	seq         uint64
	now         func() time.Time
	entropy     *ulid.MonotonicEntropy
	bufferSize  int
	closed      bool
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		byID:       make(map[string]map[string]docstore.Fields),
		order:      make(map[string][]string),
		subs:       make(map[*subscription]struct{}),
		now:        time.Now,
		entropy:    ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0), //nolint:gosec // id entropy, not crypto
		bufferSize: defaultBufferSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create commits a new document. The id is a monotonic ULID, so the
// lexicographic id order matches commit order and serves as the ordering
// tiebreak even when the timestamp clock is skewed.
func (s *Store) Create(ctx context.Context, collection string, fields docstore.Fields) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", docstore.ErrClosed
	}

	id := ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()

	stored := make(docstore.Fields, len(fields))
	for k, v := range fields {
		if v == docstore.ServerTimestamp {
			stored[k] = s.now()
			continue
		}
		stored[k] = v
	}

	if s.byID[collection] == nil {
		s.byID[collection] = make(map[string]docstore.Fields)
	}
	s.byID[collection][id] = stored
	s.order[collection] = append(s.order[collection], id)

	s.commitLocked(collection)
	return id, nil
}

// AtomicIncrement adds delta to a numeric field under the store lock.
// Concurrent callers never lose updates because the read-modify-write
// happens inside the store, not at the caller.
func (s *Store) AtomicIncrement(ctx context.Context, collection, id, field string, delta int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return docstore.ErrClosed
	}

	fields, ok := s.byID[collection][id]
	if !ok {
		return docstore.ErrNotFound
	}

	fields[field] = asInt64(fields[field]) + delta
	s.commitLocked(collection)
	return nil
}

// Lookup fetches one document by id.
func (s *Store) Lookup(ctx context.Context, collection, id string) (docstore.Document, error) {
	if err := ctx.Err(); err != nil {
		return docstore.Document{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	fields, ok := s.byID[collection][id]
	if !ok {
		return docstore.Document{}, docstore.ErrNotFound
	}
	return docstore.Document{ID: id, Fields: copyFields(fields)}, nil
}

// Subscribe opens a live query. The first batch is pushed before Subscribe
// returns so consumers can treat it as the initial full replace.
func (s *Store) Subscribe(ctx context.Context, q docstore.Query) (docstore.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, docstore.ErrClosed
	}

	sub := &subscription{
		store: s,
		query: q,
		ch:    make(chan docstore.Batch, s.bufferSize),
	}
	s.subs[sub] = struct{}{}
	sub.push(docstore.Batch{Revision: s.seq, Docs: s.snapshotLocked(q)})
	return sub, nil
}

// FailSubscriptions force-closes every open subscription with a transport
// error. Test hook for resilience scenarios; later Subscribe calls succeed.
func (s *Store) FailSubscriptions() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for sub := range s.subs {
		sub.fail(docstore.ErrTransport)
		delete(s.subs, sub)
	}
}

// Close shuts the store down and closes all subscriptions cleanly.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	for sub := range s.subs {
		sub.fail(nil)
		delete(s.subs, sub)
	}
	return nil
}

// commitLocked advances the commit counter and fans the new snapshot out
// to every subscription watching the touched collection.
func (s *Store) commitLocked(collection string) {
	s.seq++
	for sub := range s.subs {
		if sub.query.Collection != collection {
			continue
		}
		sub.push(docstore.Batch{Revision: s.seq, Docs: s.snapshotLocked(sub.query)})
	}
}

// snapshotLocked computes the full ordered result of a query.
func (s *Store) snapshotLocked(q docstore.Query) []docstore.Document {
	var docs []docstore.Document
	for _, id := range s.order[q.Collection] {
		fields := s.byID[q.Collection][id]
		if q.FilterField != "" && fields[q.FilterField] != q.FilterValue {
			continue
		}
		docs = append(docs, docstore.Document{ID: id, Fields: copyFields(fields)})
	}

	if q.OrderField != "" {
		sort.SliceStable(docs, func(i, j int) bool {
			ti := docs[i].Time(q.OrderField)
			tj := docs[j].Time(q.OrderField)
			if !ti.Equal(tj) {
				if q.Descending {
					return ti.After(tj)
				}
				return ti.Before(tj)
			}
			if q.Descending {
				return docs[i].ID > docs[j].ID
			}
			return docs[i].ID < docs[j].ID
		})
	}
	return docs
}

type subscription struct {
	store *Store
	query docstore.Query
	ch    chan docstore.Batch

	closeOnce sync.Once
	err       error
}

func (s *subscription) Batches() <-chan docstore.Batch { return s.ch }

func (s *subscription) Err() error { return s.err }

func (s *subscription) Close() {
	s.store.mu.Lock()
	delete(s.store.subs, s)
	s.store.mu.Unlock()
	s.closeOnce.Do(func() { close(s.ch) })
}

// fail is called with the store lock held.
func (s *subscription) fail(err error) {
	s.closeOnce.Do(func() {
		s.err = err
		close(s.ch)
	})
}

// push delivers a batch without ever blocking a commit. A full buffer
// coalesces: the oldest snapshot is dropped, which is safe because every
// batch is a full replace.
func (s *subscription) push(b docstore.Batch) {
	for {
		select {
		case s.ch <- b:
			return
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}

func copyFields(fields docstore.Fields) docstore.Fields {
	out := make(docstore.Fields, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
