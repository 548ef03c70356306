package memstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sadwik-learner/feedsync/internal/adapters/docstore"
)

func TestCreateAssignsServerTimestamp(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s := New(WithClock(func() time.Time { return fixed }))

	id, err := s.Create(ctx, "posts", docstore.Fields{
		"text":      "hello",
		"createdAt": docstore.ServerTimestamp,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if id == "" {
		t.Fatal("expected store-assigned id")
	}

	doc, err := s.Lookup(ctx, "posts", id)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if got := doc.Time("createdAt"); !got.Equal(fixed) {
		t.Errorf("createdAt = %v, want store clock %v", got, fixed)
	}
	if doc.Str("text") != "hello" {
		t.Errorf("text = %q, want hello", doc.Str("text"))
	}
}

func TestCreateIDsFollowCommitOrder(t *testing.T) {
	ctx := context.Background()
	s := New()

	var prev string
	for i := 0; i < 100; i++ {
		id, err := s.Create(ctx, "posts", docstore.Fields{"text": "x"})
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if prev != "" && id <= prev {
			t.Fatalf("id %q not greater than previous %q", id, prev)
		}
		prev = id
	}
}

func TestAtomicIncrementConcurrent(t *testing.T) {
	ctx := context.Background()
	s := New()

	id, err := s.Create(ctx, "posts", docstore.Fields{"text": "x", "likes": int64(0)})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	const n = 200
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			if err := s.AtomicIncrement(ctx, "posts", id, "likes", 1); err != nil {
				t.Errorf("AtomicIncrement failed: %v", err)
			}
		}()
	}
	wg.Wait()

	doc, err := s.Lookup(ctx, "posts", id)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if got := doc.Int64("likes"); got != n {
		t.Errorf("likes = %d, want %d", got, n)
	}
}

func TestAtomicIncrementNotFound(t *testing.T) {
	s := New()
	err := s.AtomicIncrement(context.Background(), "posts", "missing", "likes", 1)
	if !errors.Is(err, docstore.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSubscribeInitialSnapshotAndUpdates(t *testing.T) {
	ctx := context.Background()
	s := New()

	if _, err := s.Create(ctx, "posts", docstore.Fields{"text": "first", "createdAt": docstore.ServerTimestamp}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	sub, err := s.Subscribe(ctx, docstore.Query{
		Collection: "posts",
		OrderField: "createdAt",
		Descending: true,
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Close()

	initial := <-sub.Batches()
	if len(initial.Docs) != 1 {
		t.Fatalf("initial snapshot has %d docs, want 1", len(initial.Docs))
	}

	if _, err := s.Create(ctx, "posts", docstore.Fields{"text": "second", "createdAt": docstore.ServerTimestamp}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	next := <-sub.Batches()
	if len(next.Docs) != 2 {
		t.Fatalf("update snapshot has %d docs, want 2", len(next.Docs))
	}
	if next.Revision <= initial.Revision {
		t.Errorf("revision %d not greater than %d", next.Revision, initial.Revision)
	}
}

func TestSubscribeOrderingUnderClockSkew(t *testing.T) {
	ctx := context.Background()

	// The store clock runs backwards: later commits get earlier timestamps.
	ts := []time.Time{
		time.Date(2025, 6, 1, 12, 0, 3, 0, time.UTC),
		time.Date(2025, 6, 1, 12, 0, 1, 0, time.UTC),
		time.Date(2025, 6, 1, 12, 0, 2, 0, time.UTC),
	}
	i := 0
	s := New(WithClock(func() time.Time { t := ts[i%len(ts)]; i++; return t }))

	for range ts {
		if _, err := s.Create(ctx, "posts", docstore.Fields{"createdAt": docstore.ServerTimestamp}); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	sub, err := s.Subscribe(ctx, docstore.Query{Collection: "posts", OrderField: "createdAt", Descending: true})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Close()

	batch := <-sub.Batches()
	if len(batch.Docs) != 3 {
		t.Fatalf("snapshot has %d docs, want 3", len(batch.Docs))
	}
	for j := 1; j < len(batch.Docs); j++ {
		prev := batch.Docs[j-1].Time("createdAt")
		cur := batch.Docs[j].Time("createdAt")
		if cur.After(prev) {
			t.Errorf("snapshot not sorted descending at %d: %v before %v", j, prev, cur)
		}
	}
}

func TestSubscribeEqualityFilter(t *testing.T) {
	ctx := context.Background()
	s := New()

	if _, err := s.Create(ctx, "comments", docstore.Fields{"postId": "p1", "text": "a", "createdAt": docstore.ServerTimestamp}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := s.Create(ctx, "comments", docstore.Fields{"postId": "p2", "text": "b", "createdAt": docstore.ServerTimestamp}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	sub, err := s.Subscribe(ctx, docstore.Query{
		Collection:  "comments",
		FilterField: "postId",
		FilterValue: "p1",
		OrderField:  "createdAt",
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Close()

	batch := <-sub.Batches()
	if len(batch.Docs) != 1 {
		t.Fatalf("filtered snapshot has %d docs, want 1", len(batch.Docs))
	}
	if batch.Docs[0].Str("text") != "a" {
		t.Errorf("filtered doc text = %q, want a", batch.Docs[0].Str("text"))
	}
}

func TestFailSubscriptions(t *testing.T) {
	ctx := context.Background()
	s := New()

	sub, err := s.Subscribe(ctx, docstore.Query{Collection: "posts", OrderField: "createdAt", Descending: true})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	<-sub.Batches() // initial

	s.FailSubscriptions()

	if _, ok := <-sub.Batches(); ok {
		t.Error("expected channel to close on transport failure")
	}
	if !errors.Is(sub.Err(), docstore.ErrTransport) {
		t.Errorf("Err() = %v, want ErrTransport", sub.Err())
	}

	// Reopening still works.
	sub2, err := s.Subscribe(ctx, docstore.Query{Collection: "posts", OrderField: "createdAt", Descending: true})
	if err != nil {
		t.Fatalf("Subscribe after failure returned error: %v", err)
	}
	sub2.Close()
}

func TestSubscriptionCloseIdempotent(t *testing.T) {
	s := New()
	sub, err := s.Subscribe(context.Background(), docstore.Query{Collection: "posts"})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	sub.Close()
	sub.Close() // must not panic

	if sub.Err() != nil {
		t.Errorf("clean close must leave Err nil, got %v", sub.Err())
	}
}

func TestSlowConsumerCoalesces(t *testing.T) {
	ctx := context.Background()
	s := New(WithBufferSize(2))

	sub, err := s.Subscribe(ctx, docstore.Query{Collection: "posts", OrderField: "createdAt", Descending: true})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Close()

	// Never reading; commits must not block.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			if _, err := s.Create(ctx, "posts", docstore.Fields{"createdAt": docstore.ServerTimestamp}); err != nil {
				t.Errorf("Create failed: %v", err)
				return
			}
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("commits blocked on a slow consumer")
	}

	// Drain whatever survived coalescing; the last batch must be complete.
	var last docstore.Batch
	for b := range sub.Batches() {
		last = b
		if len(last.Docs) == 50 {
			break
		}
	}
	if len(last.Docs) != 50 {
		t.Errorf("final snapshot has %d docs, want 50", len(last.Docs))
	}
}
