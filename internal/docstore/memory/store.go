// Package memory is an in-process docstore.Store. It keeps the same
// ordering and change-stream contract as the postgres store and backs
// tests and single-node runs.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ryujihub/MMHHINVmobile/internal/docstore"
)

type entry struct {
	doc docstore.Document
	seq int64
}

type subscriber struct {
	filter docstore.Filter
	pump   *docstore.Pump
}

type Store struct {
	mu     sync.Mutex
	seq    int64
	nextID int64
	colls  map[string]map[string]*entry
	subs   map[string]map[int64]*subscriber
	now    func() time.Time
}

func New() *Store {
	return &Store{
		colls: make(map[string]map[string]*entry),
		subs:  make(map[string]map[int64]*subscriber),
		now:   time.Now,
	}
}

func (s *Store) coll(name string) map[string]*entry {
	c, ok := s.colls[name]
	if !ok {
		c = make(map[string]*entry)
		s.colls[name] = c
	}
	return c
}

func (s *Store) Create(ctx context.Context, collection string, data json.RawMessage) (docstore.Document, error) {
	if err := ctx.Err(); err != nil {
		return docstore.Document{}, err
	}
	if !json.Valid(data) {
		return docstore.Document{}, fmt.Errorf("create %s: invalid json", collection)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	doc := docstore.Document{
		ID:        uuid.NewString(),
		Version:   1,
		Data:      clone(data),
		UpdatedAt: s.now().UTC(),
	}
	s.coll(collection)[doc.ID] = &entry{doc: doc, seq: s.seq}
	s.broadcast(collection, docstore.Change{Kind: docstore.Added, Collection: collection, Doc: doc})
	return doc, nil
}

func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	if err := ctx.Err(); err != nil {
		return docstore.Document{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.coll(collection)[id]
	if !ok {
		return docstore.Document{}, fmt.Errorf("%s/%s: %w", collection, id, docstore.ErrNotFound)
	}
	return copyDoc(e.doc), nil
}

func (s *Store) Set(ctx context.Context, collection, id string, data json.RawMessage) (docstore.Document, error) {
	if err := ctx.Err(); err != nil {
		return docstore.Document{}, err
	}
	if !json.Valid(data) {
		return docstore.Document{}, fmt.Errorf("set %s/%s: invalid json", collection, id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.coll(collection)
	kind := docstore.Modified
	e, ok := c[id]
	if !ok {
		s.seq++
		e = &entry{seq: s.seq, doc: docstore.Document{ID: id}}
		c[id] = e
		kind = docstore.Added
	}
	e.doc.Version++
	e.doc.Data = clone(data)
	e.doc.UpdatedAt = s.now().UTC()
	s.broadcast(collection, docstore.Change{Kind: kind, Collection: collection, Doc: copyDoc(e.doc)})
	return copyDoc(e.doc), nil
}

func (s *Store) Mutate(ctx context.Context, collection, id string, fn docstore.MutateFunc) (docstore.Document, error) {
	if err := ctx.Err(); err != nil {
		return docstore.Document{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.coll(collection)[id]
	if !ok {
		return docstore.Document{}, fmt.Errorf("%s/%s: %w", collection, id, docstore.ErrNotFound)
	}
	data, err := fn(copyDoc(e.doc))
	if err != nil {
		return docstore.Document{}, err
	}
	if !json.Valid(data) {
		return docstore.Document{}, fmt.Errorf("mutate %s/%s: invalid json", collection, id)
	}
	e.doc.Version++
	e.doc.Data = clone(data)
	e.doc.UpdatedAt = s.now().UTC()
	s.broadcast(collection, docstore.Change{Kind: docstore.Modified, Collection: collection, Doc: copyDoc(e.doc)})
	return copyDoc(e.doc), nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.coll(collection)
	e, ok := c[id]
	if !ok {
		return fmt.Errorf("%s/%s: %w", collection, id, docstore.ErrNotFound)
	}
	delete(c, id)
	s.broadcast(collection, docstore.Change{Kind: docstore.Removed, Collection: collection, Doc: copyDoc(e.doc)})
	return nil
}

func (s *Store) Query(ctx context.Context, collection string, filter docstore.Filter) ([]docstore.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.matching(collection, filter), nil
}

func (s *Store) Subscribe(ctx context.Context, collection string, filter docstore.Filter, h docstore.Handler) (docstore.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p := docstore.NewPump(ctx, h)
	for _, d := range s.matching(collection, filter) {
		p.Push(docstore.Change{Kind: docstore.Added, Collection: collection, Doc: d})
	}

	s.nextID++
	id := s.nextID
	subs, ok := s.subs[collection]
	if !ok {
		subs = make(map[int64]*subscriber)
		s.subs[collection] = subs
	}
	subs[id] = &subscriber{filter: filter, pump: p}

	// drop the registration once the pump exits on ctx cancellation
	go func() {
		<-p.Done()
		s.mu.Lock()
		delete(s.subs[collection], id)
		s.mu.Unlock()
	}()
	return subscription{pump: p}, nil
}

// matching must be called with s.mu held.
func (s *Store) matching(collection string, filter docstore.Filter) []docstore.Document {
	c := s.coll(collection)
	entries := make([]*entry, 0, len(c))
	for _, e := range c {
		if filter.Match(e.doc.Data) {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	out := make([]docstore.Document, 0, len(entries))
	for _, e := range entries {
		out = append(out, copyDoc(e.doc))
	}
	return out
}

// broadcast must be called with s.mu held.
func (s *Store) broadcast(collection string, ch docstore.Change) {
	for _, sub := range s.subs[collection] {
		if sub.filter.Match(ch.Doc.Data) {
			sub.pump.Push(ch)
		}
	}
}

type subscription struct {
	pump *docstore.Pump
}

func (s subscription) Unsubscribe() { s.pump.Stop() }

func clone(b []byte) json.RawMessage {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func copyDoc(d docstore.Document) docstore.Document {
	d.Data = clone(d.Data)
	return d
}
