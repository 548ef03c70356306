package pgstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/sadwik-learner/feedsync/internal/adapters/docstore"
	"github.com/sadwik-learner/feedsync/pkg/logger"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	_ = logger.SetLevelString("error")
	os.Exit(m.Run())
}

// openStore connects to the database named by FEEDSYNC_TEST_POSTGRES_DSN
// and skips the test when it is unset. Each test works in a collection
// name unique to the run so shared databases stay usable.
func openStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("FEEDSYNC_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("FEEDSYNC_TEST_POSTGRES_DSN not set")
	}
	store, err := New(context.Background(), dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testCollection(t *testing.T) string {
	return fmt.Sprintf("t_%s_%d", t.Name(), time.Now().UnixNano())
}

func TestCreateAndLookup(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	coll := testCollection(t)

	id, err := store.Create(ctx, coll, docstore.Fields{
		"text":      "hello",
		"likes":     int64(0),
		"createdAt": docstore.ServerTimestamp,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	doc, err := store.Lookup(ctx, coll, id)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if doc.Str("text") != "hello" {
		t.Fatalf("text = %q", doc.Str("text"))
	}
	if doc.Time("createdAt").IsZero() {
		t.Fatal("createdAt not assigned by the database")
	}

	if _, err := store.Lookup(ctx, coll, "missing"); !errors.Is(err, docstore.ErrNotFound) {
		t.Fatalf("lookup missing err = %v, want ErrNotFound", err)
	}
}

func TestAtomicIncrementConcurrent(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	coll := testCollection(t)

	id, err := store.Create(ctx, coll, docstore.Fields{"likes": int64(0)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	const n = 32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := store.AtomicIncrement(ctx, coll, id, "likes", 1); err != nil {
				t.Errorf("increment: %v", err)
			}
		}()
	}
	wg.Wait()

	doc, err := store.Lookup(ctx, coll, id)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if doc.Int64("likes") != n {
		t.Fatalf("likes = %d, want %d", doc.Int64("likes"), n)
	}

	if err := store.AtomicIncrement(ctx, coll, "missing", "likes", 1); !errors.Is(err, docstore.ErrNotFound) {
		t.Fatalf("increment missing err = %v, want ErrNotFound", err)
	}
}

func TestSubscribeDeliversSnapshots(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	coll := testCollection(t)

	sub, err := store.Subscribe(ctx, docstore.Query{Collection: coll, OrderField: "createdAt"})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	waitBatch := func(pred func(docstore.Batch) bool) docstore.Batch {
		t.Helper()
		deadline := time.After(5 * time.Second)
		for {
			select {
			case batch, ok := <-sub.Batches():
				if !ok {
					t.Fatalf("subscription closed: %v", sub.Err())
				}
				if pred(batch) {
					return batch
				}
			case <-deadline:
				t.Fatal("timed out waiting for batch")
			}
		}
	}

	initial := waitBatch(func(docstore.Batch) bool { return true })
	if len(initial.Docs) != 0 {
		t.Fatalf("initial snapshot has %d docs", len(initial.Docs))
	}

	if _, err := store.Create(ctx, coll, docstore.Fields{"text": "one"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	next := waitBatch(func(b docstore.Batch) bool { return len(b.Docs) == 1 })
	if next.Revision <= initial.Revision && initial.Revision != 0 {
		t.Fatalf("revision did not advance: %d -> %d", initial.Revision, next.Revision)
	}
	if next.Docs[0].Str("text") != "one" {
		t.Fatalf("doc = %+v", next.Docs[0])
	}
}

func TestSubscribeEqualityFilter(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	coll := testCollection(t)

	for _, parent := range []string{"p1", "p1", "p2"} {
		if _, err := store.Create(ctx, coll, docstore.Fields{"postId": parent}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	sub, err := store.Subscribe(ctx, docstore.Query{
		Collection:  coll,
		FilterField: "postId",
		FilterValue: "p1",
		OrderField:  "createdAt",
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	select {
	case batch := <-sub.Batches():
		if len(batch.Docs) != 2 {
			t.Fatalf("filtered snapshot has %d docs, want 2", len(batch.Docs))
		}
		for _, doc := range batch.Docs {
			if doc.Str("postId") != "p1" {
				t.Fatalf("filter leaked doc: %+v", doc)
			}
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
}
