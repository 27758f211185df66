// Package memory is an in-process docstore.Store with live queries. It
// backs tests and single-node development runs (UNILEND_STORE=memory).
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/MrSnakeDoc/unilend/internal/docstore"
	"github.com/MrSnakeDoc/unilend/internal/id"
)

// WriteHook can veto a write before it is applied. op is one of
// "create", "update", "delete".
type WriteHook func(op, collection, id string) error

type watcher struct {
	pred docstore.Predicate
	feed *docstore.Feed
}

// Store keeps collections in maps guarded by one RWMutex.
type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string]map[string]any // collection -> id -> fields
	watchers    map[string]map[int]*watcher          // collection -> watcher id -> watcher
	nextWatcher int
	hook        WriteHook
}

func New() *Store {
	return &Store{
		collections: make(map[string]map[string]map[string]any),
		watchers:    make(map[string]map[int]*watcher),
	}
}

// SetWriteHook installs a hook consulted before every write.
func (s *Store) SetWriteHook(h WriteHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hook = h
}

// Put stores fields under a caller-chosen id, replacing any existing document.
func (s *Store) Put(ctx context.Context, collection, docID string, fields map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkHook("create", collection, docID); err != nil {
		return err
	}
	s.collection(collection)[docID] = docstore.CloneFields(fields)
	s.notifyLocked(collection)
	return nil
}

func (s *Store) Create(ctx context.Context, collection string, fields map[string]any) (string, error) {
	docID := id.Document()
	if err := s.Put(ctx, collection, docID, fields); err != nil {
		return "", err
	}
	return docID, nil
}

func (s *Store) Get(ctx context.Context, collection, docID string) (docstore.Document, error) {
	if err := ctx.Err(); err != nil {
		return docstore.Document{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	fields, ok := s.collections[collection][docID]
	if !ok {
		return docstore.Document{}, fmt.Errorf("%s/%s: %w", collection, docID, docstore.ErrNotFound)
	}
	return docstore.Document{ID: docID, Fields: docstore.CloneFields(fields)}, nil
}

func (s *Store) Query(ctx context.Context, collection string, preds ...docstore.Predicate) ([]docstore.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.matchLocked(collection, preds...), nil
}

func (s *Store) Update(ctx context.Context, collection, docID string, muts ...docstore.Mutation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkHook("update", collection, docID); err != nil {
		return err
	}
	fields, ok := s.collections[collection][docID]
	if !ok {
		return fmt.Errorf("%s/%s: %w", collection, docID, docstore.ErrNotFound)
	}
	s.collections[collection][docID] = docstore.Apply(fields, muts...)
	s.notifyLocked(collection)
	return nil
}

func (s *Store) Delete(ctx context.Context, collection, docID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkHook("delete", collection, docID); err != nil {
		return err
	}
	if _, ok := s.collections[collection][docID]; !ok {
		return fmt.Errorf("%s/%s: %w", collection, docID, docstore.ErrNotFound)
	}
	delete(s.collections[collection], docID)
	s.notifyLocked(collection)
	return nil
}

// Watch delivers the current matching set immediately, then again after
// every write to the collection. The subscription ends when ctx is done
// or Close is called.
func (s *Store) Watch(ctx context.Context, collection string, pred docstore.Predicate) (docstore.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	wid := s.nextWatcher
	s.nextWatcher++
	feed := docstore.NewFeed(func() { s.removeWatcher(collection, wid) })
	if s.watchers[collection] == nil {
		s.watchers[collection] = make(map[int]*watcher)
	}
	s.watchers[collection][wid] = &watcher{pred: pred, feed: feed}
	feed.Publish(s.matchLocked(collection, pred))
	s.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			feed.Close()
		case <-feed.Done():
		}
	}()

	return feed, nil
}

// FailWatchers ends every subscription on collection with err, the way a
// dropped connection or revoked permission would.
func (s *Store) FailWatchers(collection string, err error) {
	s.mu.RLock()
	feeds := make([]*docstore.Feed, 0, len(s.watchers[collection]))
	for _, w := range s.watchers[collection] {
		feeds = append(feeds, w.feed)
	}
	s.mu.RUnlock()

	for _, f := range feeds {
		f.Fail(err)
	}
}

// WatcherCount returns the number of open subscriptions on collection.
func (s *Store) WatcherCount(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.watchers[collection])
}

func (s *Store) removeWatcher(collection string, wid int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.watchers[collection], wid)
}

func (s *Store) collection(name string) map[string]map[string]any {
	c, ok := s.collections[name]
	if !ok {
		c = make(map[string]map[string]any)
		s.collections[name] = c
	}
	return c
}

func (s *Store) checkHook(op, collection, docID string) error {
	if s.hook == nil {
		return nil
	}
	return s.hook(op, collection, docID)
}

func (s *Store) matchLocked(collection string, preds ...docstore.Predicate) []docstore.Document {
	docs := make([]docstore.Document, 0)
	for docID, fields := range s.collections[collection] {
		if docstore.MatchAll(fields, preds...) {
			docs = append(docs, docstore.Document{ID: docID, Fields: docstore.CloneFields(fields)})
		}
	}
	docstore.SortByID(docs)
	return docs
}

func (s *Store) notifyLocked(collection string) {
	for _, w := range s.watchers[collection] {
		w.feed.Publish(s.matchLocked(collection, w.pred))
	}
}
