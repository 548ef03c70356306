package subscription

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sadwik-learner/feedsync/internal/adapters/docstore"
	"github.com/sadwik-learner/feedsync/internal/adapters/docstore/memstore"
	"github.com/sadwik-learner/feedsync/internal/domain/model"
	"github.com/sadwik-learner/feedsync/pkg/logger"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

// countingStore counts live registrations to verify selector deduplication.
type countingStore struct {
	docstore.Store
	subscribes atomic.Int64
}

func (c *countingStore) Subscribe(ctx context.Context, q docstore.Query) (docstore.Subscription, error) {
	c.subscribes.Add(1)
	return c.Store.Subscribe(ctx, q)
}

func createPost(t *testing.T, s *memstore.Store, text string) string {
	t.Helper()
	id, err := s.Create(context.Background(), model.CollectionPosts, docstore.Fields{
		model.FieldText:      text,
		model.FieldUserName:  "Tester",
		model.FieldLikes:     int64(0),
		model.FieldCreatedAt: docstore.ServerTimestamp,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return id
}

func waitSnapshot(t *testing.T, h *Handle, want func([]model.Entry) bool) []model.Entry {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case entries, ok := <-h.Snapshots():
			if !ok {
				t.Fatal("snapshot channel closed")
			}
			if want(entries) {
				return entries
			}
		case <-deadline:
			t.Fatal("timed out waiting for snapshot")
		}
	}
}

func TestObserveDeliversInitialAndUpdates(t *testing.T) {
	store := memstore.New()
	createPost(t, store, "first")

	m := NewManager(store, logger.Get())
	defer m.Close()

	h, err := m.Observe(model.PostsFeed())
	if err != nil {
		t.Fatalf("Observe failed: %v", err)
	}
	defer h.Close()

	initial := waitSnapshot(t, h, func(e []model.Entry) bool { return len(e) == 1 })
	if initial[0].Text != "first" {
		t.Errorf("initial entry text = %q, want first", initial[0].Text)
	}
	if initial[0].State != model.StateConfirmed {
		t.Errorf("initial entry state = %q, want confirmed", initial[0].State)
	}

	createPost(t, store, "second")
	next := waitSnapshot(t, h, func(e []model.Entry) bool { return len(e) == 2 })
	// Posts feed is newest first.
	if next[0].Text != "second" {
		t.Errorf("newest entry = %q, want second", next[0].Text)
	}
}

func TestObserveDeduplicatesBySelector(t *testing.T) {
	counting := &countingStore{Store: memstore.New()}
	m := NewManager(counting, logger.Get())
	defer m.Close()

	h1, err := m.Observe(model.PostsFeed())
	if err != nil {
		t.Fatalf("Observe failed: %v", err)
	}
	defer h1.Close()
	h2, err := m.Observe(model.PostsFeed())
	if err != nil {
		t.Fatalf("Observe failed: %v", err)
	}
	defer h2.Close()

	// Distinct selector opens its own registration.
	h3, err := m.Observe(model.SkillsFeed())
	if err != nil {
		t.Fatalf("Observe failed: %v", err)
	}
	defer h3.Close()

	// Give the pumps a moment to register.
	time.Sleep(50 * time.Millisecond)
	if got := counting.subscribes.Load(); got != 2 {
		t.Errorf("store registrations = %d, want 2 (one per distinct selector)", got)
	}
}

func TestFanOutReachesAllConsumers(t *testing.T) {
	store := memstore.New()
	m := NewManager(store, logger.Get())
	defer m.Close()

	h1, _ := m.Observe(model.PostsFeed())
	defer h1.Close()
	h2, _ := m.Observe(model.PostsFeed())
	defer h2.Close()

	createPost(t, store, "shared")

	for _, h := range []*Handle{h1, h2} {
		got := waitSnapshot(t, h, func(e []model.Entry) bool { return len(e) == 1 })
		if got[0].Text != "shared" {
			t.Errorf("consumer saw %q, want shared", got[0].Text)
		}
	}
}

func TestReopenAfterTransportFailure(t *testing.T) {
	store := memstore.New()
	createPost(t, store, "before")

	m := NewManager(store, logger.Get(), WithBackoff(5*time.Millisecond, 50*time.Millisecond))
	defer m.Close()

	h, err := m.Observe(model.PostsFeed())
	if err != nil {
		t.Fatalf("Observe failed: %v", err)
	}
	defer h.Close()

	waitSnapshot(t, h, func(e []model.Entry) bool { return len(e) == 1 })

	store.FailSubscriptions()

	// Without a new commit the reopened registration replays the already
	// seen snapshot; it must be suppressed, so only the post-failure
	// commit reaches the consumer.
	createPost(t, store, "after")

	next := waitSnapshot(t, h, func(e []model.Entry) bool { return len(e) == 2 })
	if next[0].Text != "after" {
		t.Errorf("newest entry = %q, want after", next[0].Text)
	}
}

func TestReopenSuppressesReplayedBatches(t *testing.T) {
	store := memstore.New()
	createPost(t, store, "only")

	m := NewManager(store, logger.Get(), WithBackoff(5*time.Millisecond, 50*time.Millisecond))
	defer m.Close()

	h, err := m.Observe(model.PostsFeed())
	if err != nil {
		t.Fatalf("Observe failed: %v", err)
	}
	defer h.Close()

	waitSnapshot(t, h, func(e []model.Entry) bool { return len(e) == 1 })

	store.FailSubscriptions()

	// The reopen replays revision 1; nothing new may arrive.
	select {
	case entries, ok := <-h.Snapshots():
		if ok {
			t.Errorf("unexpected snapshot after reopen with no commits: %d entries", len(entries))
		}
	case <-time.After(200 * time.Millisecond):
	}
}

func TestHandleCloseIdempotent(t *testing.T) {
	store := memstore.New()
	m := NewManager(store, logger.Get(), WithBackoff(5*time.Millisecond, 50*time.Millisecond))
	defer m.Close()

	h, err := m.Observe(model.PostsFeed())
	if err != nil {
		t.Fatalf("Observe failed: %v", err)
	}

	h.Close()
	h.Close() // must not panic

	// Close after a forced error state must also be safe.
	h2, _ := m.Observe(model.PostsFeed())
	store.FailSubscriptions()
	time.Sleep(20 * time.Millisecond)
	h2.Close()
	h2.Close()
}

func TestLastCloseReleasesRegistration(t *testing.T) {
	counting := &countingStore{Store: memstore.New()}
	m := NewManager(counting, logger.Get())
	defer m.Close()

	h, err := m.Observe(model.PostsFeed())
	if err != nil {
		t.Fatalf("Observe failed: %v", err)
	}
	h.Close()

	// A fresh observe after full release opens a new registration.
	h2, err := m.Observe(model.PostsFeed())
	if err != nil {
		t.Fatalf("Observe failed: %v", err)
	}
	defer h2.Close()

	time.Sleep(50 * time.Millisecond)
	if got := counting.subscribes.Load(); got < 2 {
		t.Errorf("store registrations = %d, want a new one after release", got)
	}
}

func TestSlowFeedDoesNotStallAnother(t *testing.T) {
	store := memstore.New()
	m := NewManager(store, logger.Get(), WithBufferSize(1))
	defer m.Close()

	slow, _ := m.Observe(model.PostsFeed()) // never read
	defer slow.Close()
	fast, _ := m.Observe(model.MessagesFeed())
	defer fast.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			createPost(t, store, "flood")
		}
	}()
	wg.Wait()

	if _, err := store.Create(context.Background(), model.CollectionMessages, docstore.Fields{
		model.FieldText:      "ping",
		model.FieldUserName:  "Tester",
		model.FieldCreatedAt: docstore.ServerTimestamp,
	}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got := waitSnapshot(t, fast, func(e []model.Entry) bool { return len(e) == 1 })
	if got[0].Text != "ping" {
		t.Errorf("fast feed saw %q, want ping", got[0].Text)
	}
}

func TestObserveAfterManagerClose(t *testing.T) {
	m := NewManager(memstore.New(), logger.Get())
	m.Close()

	if _, err := m.Observe(model.PostsFeed()); err == nil {
		t.Error("expected error observing a closed manager")
	}
}
