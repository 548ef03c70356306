// Package engine assembles the live feed synchronization engine: the
// write coordinator, the subscription manager, and per-feed local
// reconciliation, behind an observe/submit surface.
package engine

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sadwik-learner/feedsync/internal/adapters/docstore"
	"github.com/sadwik-learner/feedsync/internal/domain/identity"
	"github.com/sadwik-learner/feedsync/internal/domain/model"
	"github.com/sadwik-learner/feedsync/internal/domain/reconcile"
	"github.com/sadwik-learner/feedsync/internal/engine/subscription"
	"github.com/sadwik-learner/feedsync/internal/engine/writer"
	"github.com/sadwik-learner/feedsync/pkg/logger"
)

const defaultHandleBuffer = 8

// Engine is the caller-facing service. Consumers observe feeds through
// cancellable handles; all mutations go through the Submit methods, which
// apply optimistically to any observed feed before the store acknowledges.
type Engine struct {
	mu sync.Mutex

	store    docstore.Store
	resolver *identity.Resolver
	writes   *writer.Coordinator
	subs     *subscription.Manager
	feeds    map[string]*feedState

	matchWindow  time.Duration
	backoffBase  time.Duration
	backoffMax   time.Duration
	handleBuffer int

	started bool
	log     logger.Logger
}

// feedState is the per-selector reconciliation pipeline: one subscription
// handle feeding one view, broadcast to any number of consumers.
type feedState struct {
	selector  model.Selector
	view      *reconcile.View
	handle    *subscription.Handle
	consumers map[*FeedHandle]struct{}
	delivered bool
	done      chan struct{}
}

// New constructs an engine over a document store.
func New(store docstore.Store, opts ...Option) *Engine {
	e := &Engine{
		store:        store,
		resolver:     identity.NewResolver(),
		feeds:        make(map[string]*feedState),
		handleBuffer: defaultHandleBuffer,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start wires the components. Idempotent.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return nil
	}
	if e.log == nil {
		e.log = logger.Get()
	}

	e.writes = writer.NewCoordinator(e.store, e.resolver, e.log)

	var subOpts []subscription.Option
	if e.backoffBase > 0 {
		subOpts = append(subOpts, subscription.WithBackoff(e.backoffBase, e.backoffMax))
	}
	e.subs = subscription.NewManager(e.store, e.log, subOpts...)

	e.started = true
	e.log.Info(ctx, "feed engine started")
	return nil
}

// Stop tears the engine down, closing every open feed handle. It returns
// only after every feed pipeline has finished its cleanup, so a
// subsequent Start begins from a clean slate.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return
	}
	e.started = false
	stale := make([]*feedState, 0, len(e.feeds))
	for key, fs := range e.feeds {
		stale = append(stale, fs)
		delete(e.feeds, key)
	}
	e.mu.Unlock()

	e.subs.Close()
	for _, fs := range stale {
		<-fs.done
	}
	e.log.Info(context.Background(), "feed engine stopped")
}

// ObserveFeed opens a live, reconciled view of a feed. The handle's
// channel delivers full ordered snapshots: the authoritative state plus
// any unconfirmed optimistic entries.
func (e *Engine) ObserveFeed(selector model.Selector) (*FeedHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.started {
		return nil, ErrNotStarted
	}

	key := selector.Key()
	fs, ok := e.feeds[key]
	if !ok {
		var viewOpts []reconcile.Option
		if e.matchWindow > 0 {
			viewOpts = append(viewOpts, reconcile.WithMatchWindow(e.matchWindow))
		}
		handle, err := e.subs.Observe(selector)
		if err != nil {
			return nil, err
		}
		fs = &feedState{
			selector:  selector,
			view:      reconcile.NewView(selector, viewOpts...),
			handle:    handle,
			consumers: make(map[*FeedHandle]struct{}),
			done:      make(chan struct{}),
		}
		e.feeds[key] = fs
		go e.pipe(fs)
	}

	h := &FeedHandle{
		engine: e,
		state:  fs,
		ch:     make(chan []model.Entry, e.handleBuffer),
	}
	fs.consumers[h] = struct{}{}
	if fs.delivered {
		h.push(fs.view.Entries())
	}
	return h, nil
}

// pipe drives one feed: authoritative snapshots in, reconciled renders out.
func (e *Engine) pipe(fs *feedState) {
	defer close(fs.done)

	for snapshot := range fs.handle.Snapshots() {
		rendered := fs.view.ApplySnapshot(snapshot)
		e.mu.Lock()
		fs.delivered = true
		for h := range fs.consumers {
			h.push(rendered)
		}
		e.mu.Unlock()
	}

	// Subscription gone for good (engine stopping): release consumers.
	e.mu.Lock()
	handles := make([]*FeedHandle, 0, len(fs.consumers))
	for h := range fs.consumers {
		handles = append(handles, h)
		delete(fs.consumers, h)
	}
	e.mu.Unlock()
	for _, h := range handles {
		h.closeOnce.Do(func() { close(h.ch) })
	}
}

// broadcast re-renders a feed after a local pending change.
func (e *Engine) broadcast(fs *feedState) {
	rendered := fs.view.Entries()
	e.mu.Lock()
	for h := range fs.consumers {
		h.push(rendered)
	}
	e.mu.Unlock()
}

// feedFor returns the observed feed state for a selector, or nil when no
// consumer is watching it (no local view to apply optimism to).
func (e *Engine) feedFor(selector model.Selector) *feedState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.feeds[selector.Key()]
}

// running reports whether the engine is between Start and Stop.
func (e *Engine) running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.started
}

// submitOptimistic stages entry into the selector's view (when observed),
// runs the write, and rolls the pending entry back if the write fails.
func (e *Engine) submitOptimistic(selector model.Selector, entry model.Entry, do func() (string, error)) (string, error) {
	if !e.running() {
		return "", ErrNotStarted
	}

	var localID string
	fs := e.feedFor(selector)
	if fs != nil {
		localID = fs.view.StagePending(entry)
		e.broadcast(fs)
	}

	id, err := do()
	if err != nil {
		if fs != nil && fs.view.Fail(localID) {
			e.broadcast(fs)
		}
		return "", err
	}
	return id, nil
}

// SubmitPost creates a post, optimistically visible on the posts feed.
func (e *Engine) SubmitPost(ctx context.Context, principal *model.Principal, req writer.CreatePostRequest) (string, error) {
	entry := model.Entry{Kind: model.KindPost, Text: strings.TrimSpace(req.Text)}
	if principal != nil {
		entry.DisplayName = e.resolver.Resolve(*principal, req.Anonymous).Name
	}
	return e.submitOptimistic(model.PostsFeed(), entry, func() (string, error) {
		return e.writes.CreatePost(ctx, principal, req)
	})
}

// SubmitComment creates a comment, optimistically visible on the post's
// comment feed.
func (e *Engine) SubmitComment(ctx context.Context, principal *model.Principal, req writer.CreateCommentRequest) (string, error) {
	entry := model.Entry{
		Kind:     model.KindComment,
		ParentID: req.PostID,
		Text:     strings.TrimSpace(req.Text),
	}
	if principal != nil {
		entry.DisplayName = e.resolver.Resolve(*principal, req.Anonymous).Name
	}
	return e.submitOptimistic(model.CommentsFeed(req.PostID), entry, func() (string, error) {
		return e.writes.CreateComment(ctx, principal, req)
	})
}

// SubmitLike applies an atomic +1 to a post's like counter. Likes are not
// staged optimistically: the increment commutes and the authoritative
// count arrives on the next snapshot.
func (e *Engine) SubmitLike(ctx context.Context, principal *model.Principal, postID string) error {
	if !e.running() {
		return ErrNotStarted
	}
	return e.writes.IncrementLike(ctx, principal, postID)
}

// SubmitSkillListing creates a skill listing, optimistically visible on
// the skills feed.
func (e *Engine) SubmitSkillListing(ctx context.Context, principal *model.Principal, req writer.CreateSkillRequest) (string, error) {
	entry := model.Entry{
		Kind:        model.KindSkill,
		Title:       strings.TrimSpace(req.Title),
		Description: strings.TrimSpace(req.Description),
	}
	if principal != nil {
		entry.DisplayName = e.resolver.Resolve(*principal, req.Anonymous).Name
	}
	return e.submitOptimistic(model.SkillsFeed(), entry, func() (string, error) {
		return e.writes.CreateSkillListing(ctx, principal, req)
	})
}

// SubmitMessage creates a chat message, optimistically visible on the
// messages feed.
func (e *Engine) SubmitMessage(ctx context.Context, principal *model.Principal, req writer.CreateMessageRequest) (string, error) {
	entry := model.Entry{Kind: model.KindMessage, Text: strings.TrimSpace(req.Text)}
	if principal != nil {
		id := e.resolver.Resolve(*principal, req.Anonymous)
		entry.DisplayName = id.Name
		entry.Contact = id.Contact
	}
	return e.submitOptimistic(model.MessagesFeed(), entry, func() (string, error) {
		return e.writes.CreateMessage(ctx, principal, req)
	})
}

// SubmitProfile writes the signup profile for the principal.
func (e *Engine) SubmitProfile(ctx context.Context, principal *model.Principal, req writer.CreateProfileRequest) (string, error) {
	if !e.running() {
		return "", ErrNotStarted
	}
	return e.writes.CreateProfile(ctx, principal, req)
}

// ProfileOf fetches a principal's profile.
func (e *Engine) ProfileOf(ctx context.Context, principalID string) (model.Profile, error) {
	if !e.running() {
		return model.Profile{}, ErrNotStarted
	}
	return e.writes.ProfileOf(ctx, principalID)
}

// Stats reports engine state for monitoring.
func (e *Engine) Stats() map[string]any {
	e.mu.Lock()
	defer e.mu.Unlock()

	consumers := 0
	pending := 0
	for _, fs := range e.feeds {
		consumers += len(fs.consumers)
		pending += fs.view.PendingCount()
	}
	return map[string]any{
		"started":       e.started,
		"observedFeeds": len(e.feeds),
		"consumers":     consumers,
		"pendingWrites": pending,
	}
}

// FeedHandle is one consumer's reconciled view of a feed.
type FeedHandle struct {
	engine *Engine
	state  *feedState
	ch     chan []model.Entry

	closeOnce sync.Once
}

// Snapshots delivers reconciled full snapshots in display order.
func (h *FeedHandle) Snapshots() <-chan []model.Entry { return h.ch }

// Close detaches the consumer; the last consumer of a selector releases
// the underlying subscription. Idempotent from any state.
func (h *FeedHandle) Close() {
	e := h.engine
	fs := h.state

	e.mu.Lock()
	if _, ok := fs.consumers[h]; ok {
		delete(fs.consumers, h)
		if len(fs.consumers) == 0 {
			// A restart may have registered a fresh feed under the same
			// key; only evict our own.
			if cur, registered := e.feeds[fs.selector.Key()]; registered && cur == fs {
				delete(e.feeds, fs.selector.Key())
			}
			defer fs.handle.Close()
		}
	}
	e.mu.Unlock()

	h.closeOnce.Do(func() { close(h.ch) })
}

// push never blocks a producer: a full buffer coalesces to the latest
// snapshot. Called with engine.mu held.
func (h *FeedHandle) push(entries []model.Entry) {
	for {
		select {
		case h.ch <- entries:
			return
		default:
		}
		select {
		case <-h.ch:
		default:
		}
	}
}
