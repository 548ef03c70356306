// Package pgstore is the Postgres-backed implementation of the document
// store boundary. Documents live in one jsonb table; commit timestamps
// come from the database clock; subscriptions ride on LISTEN/NOTIFY.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sadwik-learner/feedsync/internal/adapters/docstore"
	"github.com/sadwik-learner/feedsync/pkg/logger"
)

const (
	notifyChannel = "feedsync_commits"

	schemaSQL = `
CREATE TABLE IF NOT EXISTS documents (
    id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
    collection TEXT NOT NULL,
    fields     JSONB NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    seq        BIGSERIAL
);
CREATE INDEX IF NOT EXISTS documents_collection_created_idx
    ON documents (collection, created_at, id);`
)

// Store implements docstore.Store on a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
	log  logger.Logger
}

// New connects to Postgres and ensures the schema exists.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheStatement

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	return &Store{pool: pool, log: logger.Named("pgstore")}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Create commits a new document. Server-timestamp sentinels are stripped
// from the jsonb payload; the created_at column is authoritative and is
// merged back into the field set on reads.
func (s *Store) Create(ctx context.Context, collection string, fields docstore.Fields) (string, error) {
	// Sentinel timestamps are stripped here; the created_at column carries
	// the server-assigned commit time for every row.
	payload := make(map[string]any, len(fields))
	for k, v := range fields {
		if v == docstore.ServerTimestamp {
			continue
		}
		payload[k] = v
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode fields: %w", err)
	}

	var id string
	err = s.pool.QueryRow(ctx,
		`INSERT INTO documents (collection, fields) VALUES ($1, $2) RETURNING id`,
		collection, raw,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("%w: %v", docstore.ErrTransport, err)
	}

	s.notify(ctx, collection)
	return id, nil
}

// AtomicIncrement adds delta to a numeric jsonb field in a single UPDATE,
// so concurrent callers serialize on the row lock and no update is lost.
func (s *Store) AtomicIncrement(ctx context.Context, collection, id, field string, delta int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE documents
		    SET fields = jsonb_set(fields, ARRAY[$1],
		        to_jsonb(COALESCE((fields->>$1)::bigint, 0) + $2))
		  WHERE collection = $3 AND id = $4`,
		field, delta, collection, id,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", docstore.ErrTransport, err)
	}
	if tag.RowsAffected() == 0 {
		return docstore.ErrNotFound
	}

	s.notify(ctx, collection)
	return nil
}

// Lookup fetches one document by id.
func (s *Store) Lookup(ctx context.Context, collection, id string) (docstore.Document, error) {
	var (
		raw       []byte
		createdAt time.Time
	)
	err := s.pool.QueryRow(ctx,
		`SELECT fields, created_at FROM documents WHERE collection = $1 AND id = $2`,
		collection, id,
	).Scan(&raw, &createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return docstore.Document{}, docstore.ErrNotFound
	}
	if err != nil {
		return docstore.Document{}, fmt.Errorf("%w: %v", docstore.ErrTransport, err)
	}
	return decodeDocument(id, raw, createdAt)
}

// Subscribe opens a live query. A dedicated connection LISTENs for commit
// notifications and re-queries the full snapshot on every wakeup; the
// first batch is the current snapshot.
func (s *Store) Subscribe(ctx context.Context, q docstore.Query) (docstore.Subscription, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", docstore.ErrTransport, err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		conn.Release()
		return nil, fmt.Errorf("%w: %v", docstore.ErrTransport, err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &subscription{
		ch:     make(chan docstore.Batch, 16),
		cancel: cancel,
	}

	go s.pump(subCtx, conn, q, sub)
	return sub, nil
}

// pump owns the listening connection for one subscription.
func (s *Store) pump(ctx context.Context, conn *pgxpool.Conn, q docstore.Query, sub *subscription) {
	defer conn.Release()
	defer sub.closeWith(nil)

	var revision uint64
	send := func() bool {
		docs, seq, err := s.snapshot(ctx, q)
		if err != nil {
			sub.closeWith(err)
			return false
		}
		if seq <= revision && revision != 0 {
			return true // nothing new for this feed
		}
		revision = seq
		select {
		case sub.ch <- docstore.Batch{Revision: seq, Docs: docs}:
		case <-ctx.Done():
			return false
		}
		return true
	}

	if !send() {
		return
	}

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			sub.closeWith(fmt.Errorf("%w: %v", docstore.ErrTransport, err))
			return
		}
		if n.Payload != q.Collection {
			continue
		}
		if !send() {
			return
		}
	}
}

// snapshot runs the full ordered query and returns the current commit seq
// for the collection as the batch revision.
func (s *Store) snapshot(ctx context.Context, q docstore.Query) ([]docstore.Document, uint64, error) {
	// Read the commit seq first: a commit landing between the two queries
	// then yields at worst a duplicate snapshot on the next notify, never
	// a suppressed one.
	var seq uint64
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM documents WHERE collection = $1`,
		q.Collection,
	).Scan(&seq)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", docstore.ErrTransport, err)
	}

	dir := "ASC"
	if q.Descending {
		dir = "DESC"
	}
	sql := `SELECT id, fields, created_at FROM documents WHERE collection = $1`
	args := []any{q.Collection}
	if q.FilterField != "" {
		sql += ` AND fields->>$2 = $3`
		args = append(args, q.FilterField, fmt.Sprint(q.FilterValue))
	}
	sql += fmt.Sprintf(` ORDER BY created_at %s, id %s`, dir, dir)

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", docstore.ErrTransport, err)
	}
	defer rows.Close()

	var docs []docstore.Document
	for rows.Next() {
		var (
			id        string
			raw       []byte
			createdAt time.Time
		)
		if err := rows.Scan(&id, &raw, &createdAt); err != nil {
			return nil, 0, fmt.Errorf("%w: %v", docstore.ErrTransport, err)
		}
		doc, err := decodeDocument(id, raw, createdAt)
		if err != nil {
			return nil, 0, err
		}
		docs = append(docs, doc)
	}
	if rows.Err() != nil {
		return nil, 0, fmt.Errorf("%w: %v", docstore.ErrTransport, rows.Err())
	}
	return docs, seq, nil
}

func (s *Store) notify(ctx context.Context, collection string) {
	if _, err := s.pool.Exec(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, collection); err != nil {
		s.log.Warn(ctx, "notify failed", logger.String("collection", collection), logger.Error(err))
	}
}

func decodeDocument(id string, raw []byte, createdAt time.Time) (docstore.Document, error) {
	fields := make(docstore.Fields)
	if err := json.Unmarshal(raw, &fields); err != nil {
		return docstore.Document{}, fmt.Errorf("decode fields: %w", err)
	}
	fields["createdAt"] = createdAt
	return docstore.Document{ID: id, Fields: fields}, nil
}

type subscription struct {
	ch     chan docstore.Batch
	cancel context.CancelFunc

	closeOnce sync.Once
	err       error
}

func (s *subscription) Batches() <-chan docstore.Batch { return s.ch }

func (s *subscription) Err() error { return s.err }

// Close cancels the pump; the channel closes when the pump exits, so a
// concurrent in-flight send can never hit a closed channel.
func (s *subscription) Close() {
	s.cancel()
}

func (s *subscription) closeWith(err error) {
	s.closeOnce.Do(func() {
		s.err = err
		close(s.ch)
	})
}
