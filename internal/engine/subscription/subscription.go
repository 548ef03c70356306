// Package subscription maintains live queries against the document store,
// one per distinct feed selector, and fans ordered snapshots out to any
// number of logical consumers.
package subscription

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/sadwik-learner/feedsync/internal/adapters/docstore"
	"github.com/sadwik-learner/feedsync/internal/domain/model"
	"github.com/sadwik-learner/feedsync/pkg/logger"
	"github.com/sadwik-learner/feedsync/pkg/metrics"
)

// Default reopen backoff bounds. Reopening never busy-loops; attempts are
// spaced by an exponential, jittered delay capped at the maximum.
const (
	defaultBackoffBase = 250 * time.Millisecond
	defaultBackoffMax  = 30 * time.Second
	defaultBufferSize  = 8
)

// Feed states, logged on every transition.
const (
	stateOpening   = "opening"
	stateLive      = "live"
	stateReopening = "reopening"
	stateClosed    = "closed"
)

// Manager owns all live store registrations. At most one registration
// exists per distinct selector regardless of consumer count.
type Manager struct {
	mu     sync.Mutex
	store  docstore.Store
	log    logger.Logger
	feeds  map[string]*feed
	closed bool

	backoffBase time.Duration
	backoffMax  time.Duration
	bufferSize  int
}

// NewManager creates a subscription manager over a store.
func NewManager(store docstore.Store, log logger.Logger, opts ...Option) *Manager {
	m := &Manager{
		store:       store,
		log:         log.Named("subscription"),
		feeds:       make(map[string]*feed),
		backoffBase: defaultBackoffBase,
		backoffMax:  defaultBackoffMax,
		bufferSize:  defaultBufferSize,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Observe attaches a consumer to the feed named by selector, opening the
// underlying live query if this is the first consumer. The handle's
// channel receives the current snapshot first, then every later one.
func (m *Manager) Observe(selector model.Selector) (*Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrManagerClosed
	}

	key := selector.Key()
	f, ok := m.feeds[key]
	if !ok {
		ctx, cancel := context.WithCancel(context.Background())
		f = &feed{
			manager:   m,
			selector:  selector,
			consumers: make(map[*Handle]struct{}),
			cancel:    cancel,
			done:      make(chan struct{}),
		}
		m.feeds[key] = f
		go f.pump(ctx)
	}

	h := &Handle{
		feed: f,
		ch:   make(chan []model.Entry, m.bufferSize),
	}
	f.consumers[h] = struct{}{}
	if f.delivered {
		h.push(f.lastEntries)
	}

	m.updateGaugesLocked()
	return h, nil
}

// Close shuts every feed down and releases all registrations.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	feeds := make([]*feed, 0, len(m.feeds))
	for key, f := range m.feeds {
		feeds = append(feeds, f)
		delete(m.feeds, key)
	}
	m.updateGaugesLocked()
	m.mu.Unlock()

	for _, f := range feeds {
		f.cancel()
		<-f.done
		f.closeConsumers()
	}
}

func (m *Manager) updateGaugesLocked() {
	total := 0
	for _, f := range m.feeds {
		total += len(f.consumers)
	}
	metrics.UpdateLiveQueries(len(m.feeds))
	metrics.UpdateSubscriptionsOpen(total)
}

// feed is one live registration plus its consumer set.
type feed struct {
	manager  *Manager
	selector model.Selector
	cancel   context.CancelFunc
	done     chan struct{}

	// Guarded by manager.mu.
	consumers    map[*Handle]struct{}
	lastEntries  []model.Entry
	delivered    bool
	lastRevision uint64
}

// pump runs the per-feed state machine: Opening, then Live, bouncing
// through Reopening on transport failure until the last consumer leaves.
func (f *feed) pump(ctx context.Context) {
	defer close(f.done)

	log := f.manager.log.Named(f.selector.Key())
	query := queryFor(f.selector)
	attempt := 0

	for {
		if ctx.Err() != nil {
			return
		}
		if attempt == 0 {
			log.Debug(ctx, "state", logger.String("state", stateOpening))
		}

		sub, err := f.manager.store.Subscribe(ctx, query)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			attempt++
			metrics.RecordSubscriptionReopen()
			log.Warn(ctx, "state", logger.String("state", stateReopening),
				logger.Int("attempt", attempt), logger.Error(err))
			if !sleep(ctx, f.manager.backoffDelay(attempt)) {
				return
			}
			continue
		}

		live := false
	liveLoop:
		for {
			select {
			case <-ctx.Done():
				sub.Close()
				log.Debug(ctx, "state", logger.String("state", stateClosed))
				return
			case batch, ok := <-sub.Batches():
				if !ok {
					break liveLoop
				}
				if !f.accept(batch) {
					continue
				}
				if !live {
					live = true
					attempt = 0
					log.Debug(ctx, "state", logger.String("state", stateLive))
				}
			}
		}
		sub.Close()

		if ctx.Err() != nil {
			log.Debug(ctx, "state", logger.String("state", stateClosed))
			return
		}

		// Stream ended without disposal: transport failure. Reopen with
		// the same selector after a bounded backoff. Pending optimistic
		// entries elsewhere stay pending through this window.
		attempt++
		metrics.RecordSubscriptionReopen()
		log.Warn(ctx, "state", logger.String("state", stateReopening),
			logger.Int("attempt", attempt), logger.Error(sub.Err()))
		if !sleep(ctx, f.manager.backoffDelay(attempt)) {
			return
		}
	}
}

// accept converts and fans out one batch. Batches at or below the last
// seen revision are replays from a reopen and are dropped so consumers
// never see duplicates.
func (f *feed) accept(batch docstore.Batch) bool {
	m := f.manager
	m.mu.Lock()
	defer m.mu.Unlock()

	if f.delivered && batch.Revision <= f.lastRevision {
		metrics.RecordSnapshotDropped()
		return false
	}
	f.lastRevision = batch.Revision
	f.delivered = true

	entries := make([]model.Entry, len(batch.Docs))
	for i, doc := range batch.Docs {
		entries[i] = entryFromDoc(f.selector, doc)
	}
	f.lastEntries = entries

	for h := range f.consumers {
		h.push(entries)
	}
	metrics.RecordSnapshotDelivered()
	metrics.RecordSnapshotFanout(len(f.consumers))
	return true
}

// closeConsumers closes every handle channel after the pump has stopped.
func (f *feed) closeConsumers() {
	f.manager.mu.Lock()
	handles := make([]*Handle, 0, len(f.consumers))
	for h := range f.consumers {
		handles = append(handles, h)
		delete(f.consumers, h)
	}
	f.manager.mu.Unlock()

	for _, h := range handles {
		h.closeOnce.Do(func() { close(h.ch) })
	}
}

func (m *Manager) backoffDelay(attempt int) time.Duration {
	delay := m.backoffBase << uint(attempt-1) //nolint:gosec // attempt is small and positive
	if delay > m.backoffMax || delay <= 0 {
		delay = m.backoffMax
	}
	// Up to 50% jitter keeps reopen stampedes apart.
	jitter := time.Duration(rand.Int63n(int64(delay)/2 + 1)) //nolint:gosec // jitter, not crypto
	return delay + jitter
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// Handle is one consumer's view of a feed.
type Handle struct {
	feed      *feed
	ch        chan []model.Entry
	closeOnce sync.Once
}

// Snapshots delivers ordered full snapshots. Slow consumers are coalesced
// to the latest snapshot, never blocked on.
func (h *Handle) Snapshots() <-chan []model.Entry { return h.ch }

// Close detaches the consumer. The last consumer of a selector releases
// the underlying registration. Idempotent from any state.
func (h *Handle) Close() {
	f := h.feed
	m := f.manager

	m.mu.Lock()
	if _, ok := f.consumers[h]; ok {
		delete(f.consumers, h)
		if len(f.consumers) == 0 {
			delete(m.feeds, f.selector.Key())
			f.cancel()
		}
	}
	m.updateGaugesLocked()
	m.mu.Unlock()

	h.closeOnce.Do(func() { close(h.ch) })
}

// push never blocks: a full buffer drops the oldest snapshot, which is
// safe because each snapshot is a full replace. Called with manager.mu
// held, so it cannot race a Close.
func (h *Handle) push(entries []model.Entry) {
	for {
		select {
		case h.ch <- entries:
			return
		default:
		}
		select {
		case <-h.ch:
			metrics.RecordSnapshotDropped()
		default:
		}
	}
}

// queryFor maps a feed selector onto the store's query shape.
func queryFor(s model.Selector) docstore.Query {
	q := docstore.Query{
		OrderField: model.FieldCreatedAt,
		Descending: !s.Ascending(),
	}
	switch s.Kind {
	case model.KindPost:
		q.Collection = model.CollectionPosts
	case model.KindComment:
		q.Collection = model.CollectionComments
		q.FilterField = model.FieldPostID
		q.FilterValue = s.ParentID
	case model.KindSkill:
		q.Collection = model.CollectionSkills
	case model.KindMessage:
		q.Collection = model.CollectionMessages
	case model.KindProfile:
		q.Collection = model.CollectionProfiles
	}
	return q
}

// entryFromDoc converts an authoritative document into a feed entry.
func entryFromDoc(s model.Selector, doc docstore.Document) model.Entry {
	return model.Entry{
		ID:          doc.ID,
		Kind:        s.Kind,
		ParentID:    doc.Str(model.FieldPostID),
		DisplayName: doc.Str(model.FieldUserName),
		Contact:     doc.Str(model.FieldUserEmail),
		Text:        doc.Str(model.FieldText),
		Title:       doc.Str(model.FieldTitle),
		Description: doc.Str(model.FieldDescription),
		CreatedAt:   doc.Time(model.FieldCreatedAt),
		LikeCount:   doc.Int64(model.FieldLikes),
		State:       model.StateConfirmed,
	}
}
