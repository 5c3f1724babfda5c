// Package postgres stores documents in a single jsonb table and publishes
// every committed write to a change feed.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/ryujihub/MMHHINVmobile/internal/docstore"
)

// DB is satisfied by *pgxpool.Pool and by pgxmock pools.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Feed carries committed changes to subscribers in other processes.
type Feed interface {
	Publish(ctx context.Context, c docstore.Change) error
	Subscribe(ctx context.Context, collection string, h docstore.Handler) (stop func(), err error)
}

const (
	insertSQL = `INSERT INTO documents (collection, id, version, data) VALUES ($1, $2, 1, $3) RETURNING version, updated_at`
	getSQL    = `SELECT id, version, data, updated_at FROM documents WHERE collection = $1 AND id = $2`
	lockSQL   = `SELECT id, version, data, updated_at FROM documents WHERE collection = $1 AND id = $2 FOR UPDATE`
	updateSQL = `UPDATE documents SET data = $3, version = version + 1, updated_at = now() WHERE collection = $1 AND id = $2 RETURNING version, updated_at`
	upsertSQL = `INSERT INTO documents (collection, id, version, data) VALUES ($1, $2, 1, $3) ` +
		`ON CONFLICT (collection, id) DO UPDATE SET data = EXCLUDED.data, version = documents.version + 1, updated_at = now() ` +
		`RETURNING version, updated_at`
	deleteSQL = `DELETE FROM documents WHERE collection = $1 AND id = $2 RETURNING id, version, data, updated_at`
)

type Store struct {
	db   DB
	feed Feed
	log  *zap.Logger
	psql sq.StatementBuilderType
}

func New(db DB, feed Feed, log *zap.Logger) *Store {
	return &Store{
		db:   db,
		feed: feed,
		log:  log.With(zap.String("component", "docstore")),
		psql: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func (s *Store) Create(ctx context.Context, collection string, data json.RawMessage) (docstore.Document, error) {
	doc := docstore.Document{ID: uuid.NewString(), Data: data}
	err := s.db.QueryRow(ctx, insertSQL, collection, doc.ID, []byte(data)).Scan(&doc.Version, &doc.UpdatedAt)
	if err != nil {
		return docstore.Document{}, fmt.Errorf("insert %s: %w", collection, err)
	}
	s.publish(ctx, docstore.Change{Kind: docstore.Added, Collection: collection, Doc: doc})
	return doc, nil
}

func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	doc, err := scanDoc(s.db.QueryRow(ctx, getSQL, collection, id))
	if err != nil {
		return docstore.Document{}, mapError(collection, id, err)
	}
	return doc, nil
}

func (s *Store) Set(ctx context.Context, collection, id string, data json.RawMessage) (docstore.Document, error) {
	doc := docstore.Document{ID: id, Data: data}
	err := s.db.QueryRow(ctx, upsertSQL, collection, id, []byte(data)).Scan(&doc.Version, &doc.UpdatedAt)
	if err != nil {
		return docstore.Document{}, fmt.Errorf("upsert %s/%s: %w", collection, id, err)
	}
	kind := docstore.Modified
	if doc.Version == 1 {
		kind = docstore.Added
	}
	s.publish(ctx, docstore.Change{Kind: kind, Collection: collection, Doc: doc})
	return doc, nil
}

// Mutate locks the row for the duration of fn, so concurrent mutations of
// one document are applied one after another.
func (s *Store) Mutate(ctx context.Context, collection, id string, fn docstore.MutateFunc) (docstore.Document, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return docstore.Document{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	cur, err := scanDoc(tx.QueryRow(ctx, lockSQL, collection, id))
	if err != nil {
		return docstore.Document{}, mapError(collection, id, err)
	}
	data, err := fn(cur)
	if err != nil {
		return docstore.Document{}, err
	}
	next := docstore.Document{ID: id, Data: data}
	if err := tx.QueryRow(ctx, updateSQL, collection, id, []byte(data)).Scan(&next.Version, &next.UpdatedAt); err != nil {
		return docstore.Document{}, fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return docstore.Document{}, fmt.Errorf("commit: %w", err)
	}
	s.publish(ctx, docstore.Change{Kind: docstore.Modified, Collection: collection, Doc: next})
	return next, nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	doc, err := scanDoc(s.db.QueryRow(ctx, deleteSQL, collection, id))
	if err != nil {
		return mapError(collection, id, err)
	}
	s.publish(ctx, docstore.Change{Kind: docstore.Removed, Collection: collection, Doc: doc})
	return nil
}

func (s *Store) Query(ctx context.Context, collection string, filter docstore.Filter) ([]docstore.Document, error) {
	q := s.psql.Select("id", "version", "data", "updated_at").
		From("documents").
		Where(sq.Eq{"collection": collection})
	for _, c := range filter {
		q = q.Where("data->>? = ?", c.Field, c.Value)
	}
	query, args, err := q.OrderBy("created_at", "id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	defer rows.Close()

	var out []docstore.Document
	for rows.Next() {
		doc, err := scanDoc(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", collection, err)
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

// Subscribe attaches to the feed first and then loads the snapshot, so no
// change committed in between is lost. Feed changes already covered by the
// snapshot are dropped.
func (s *Store) Subscribe(ctx context.Context, collection string, filter docstore.Filter, h docstore.Handler) (docstore.Subscription, error) {
	if s.feed == nil {
		return nil, errors.New("docstore: change feed not configured")
	}
	ctx, cancel := context.WithCancel(ctx)
	p := docstore.NewPump(ctx, h)

	var (
		mu      sync.Mutex
		ready   bool
		pending []docstore.Change
	)
	stop, err := s.feed.Subscribe(ctx, collection, func(c docstore.Change) {
		if !filter.Match(c.Doc.Data) {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if !ready {
			pending = append(pending, c)
			return
		}
		p.Push(c)
	})
	if err != nil {
		cancel()
		p.Stop()
		return nil, fmt.Errorf("subscribe %s: %w", collection, err)
	}

	docs, err := s.Query(ctx, collection, filter)
	if err != nil {
		stop()
		cancel()
		p.Stop()
		return nil, err
	}

	mu.Lock()
	seen := make(map[string]int64, len(docs))
	for _, d := range docs {
		seen[d.ID] = d.Version
		p.Push(docstore.Change{Kind: docstore.Added, Collection: collection, Doc: d})
	}
	for _, c := range pending {
		if v, ok := seen[c.Doc.ID]; ok && c.Kind != docstore.Removed && c.Doc.Version <= v {
			continue
		}
		p.Push(c)
	}
	pending = nil
	ready = true
	mu.Unlock()

	return &subscription{cancel: cancel, stop: stop, pump: p}, nil
}

func (s *Store) publish(ctx context.Context, c docstore.Change) {
	if s.feed == nil {
		return
	}
	if err := s.feed.Publish(ctx, c); err != nil {
		s.log.Error("change not published",
			zap.String("collection", c.Collection),
			zap.String("id", c.Doc.ID),
			zap.String("kind", string(c.Kind)),
			zap.Error(err),
		)
	}
}

type subscription struct {
	once   sync.Once
	cancel context.CancelFunc
	stop   func()
	pump   *docstore.Pump
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		s.cancel()
		s.stop()
		s.pump.Stop()
	})
}

func scanDoc(row pgx.Row) (docstore.Document, error) {
	var (
		doc  docstore.Document
		data []byte
		at   time.Time
	)
	if err := row.Scan(&doc.ID, &doc.Version, &data, &at); err != nil {
		return docstore.Document{}, err
	}
	doc.Data = data
	doc.UpdatedAt = at
	return doc, nil
}

func mapError(collection, id string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s/%s: %w", collection, id, docstore.ErrNotFound)
	}
	return fmt.Errorf("%s/%s: %w", collection, id, err)
}
