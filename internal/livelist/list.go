// Package livelist merges the live book and note subscriptions of one view
// into a single list and applies optimistic favorite and status changes on
// top of it until the server confirms them.
package livelist

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/MrSnakeDoc/unilend/internal/docstore"
	"github.com/MrSnakeDoc/unilend/internal/domain"
	apperrors "github.com/MrSnakeDoc/unilend/internal/errors"
	"github.com/MrSnakeDoc/unilend/internal/logger"
)

var ErrClosed = apperrors.New("live list closed")

// EventKind tells what an Event reports.
type EventKind int

const (
	// EventSnapshot means the visible items changed.
	EventSnapshot EventKind = iota
	// EventSourceError means one origin's subscription ended with an error.
	// Its last items stay in the list.
	EventSourceError
	// EventWriteError means a remote write started by this list failed.
	EventWriteError
)

func (k EventKind) String() string {
	switch k {
	case EventSourceError:
		return "source_error"
	case EventWriteError:
		return "write_error"
	default:
		return "snapshot"
	}
}

// Event carries the visible items at the time it was emitted.
type Event struct {
	Kind   EventKind
	Origin domain.Origin
	Key    domain.Key
	Items  []domain.ListingItem
	Err    error
}

type pendingKey struct {
	key   domain.Key
	field string
}

// pending is an optimistic field value not yet confirmed by a snapshot.
type pending struct {
	value any
	gen   uint64
	acked bool
}

type removal struct {
	item  domain.ListingItem
	index int
}

// List is the merged view over the two collections. All state is guarded by
// mu; snapshot pumps and write completions serialize on it.
type List struct {
	store docstore.Store
	opts  options

	mu         sync.Mutex
	base       map[domain.Origin][]domain.ListingItem
	loaded     map[domain.Origin]bool
	overlays   map[pendingKey]*pending
	inflight   map[pendingKey]int
	tombstones map[domain.Key]removal
	sourceErrs map[domain.Origin]error
	activeTag  string
	search     string
	gen        uint64
	closed     bool
	events     chan Event

	cancel context.CancelFunc
	subs   []docstore.Subscription
	pumps  sync.WaitGroup
	writes sync.WaitGroup
}

// New returns a list that is fed manually through ApplySnapshot.
func New(store docstore.Store, opts ...Option) *List {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &List{
		store:      store,
		opts:       o,
		base:       make(map[domain.Origin][]domain.ListingItem, 2),
		loaded:     make(map[domain.Origin]bool, 2),
		overlays:   make(map[pendingKey]*pending),
		inflight:   make(map[pendingKey]int),
		tombstones: make(map[domain.Key]removal),
		sourceErrs: make(map[domain.Origin]error, 2),
		events:     make(chan Event, o.eventBuffer),
	}
}

// Subscribe opens one live query per collection and keeps the list in sync
// with both until Close is called or ctx is done.
func Subscribe(ctx context.Context, store docstore.Store, src Sources, opts ...Option) (*List, error) {
	l := New(store, opts...)
	watchCtx, cancel := context.WithCancel(ctx)

	subs := make(map[domain.Origin]docstore.Subscription, 2)
	for _, origin := range domain.Origins() {
		sub, err := store.Watch(watchCtx, origin.Collection(), src.For(origin))
		if err != nil {
			cancel()
			for _, s := range subs {
				s.Close()
			}
			return nil, fmt.Errorf("watch %s: %w", origin.Collection(), err)
		}
		subs[origin] = sub
	}

	l.mu.Lock()
	l.cancel = cancel
	for _, origin := range domain.Origins() {
		l.subs = append(l.subs, subs[origin])
		l.pumps.Add(1)
		go l.pump(origin, subs[origin])
	}
	l.mu.Unlock()

	go func() {
		<-watchCtx.Done()
		l.Close()
	}()

	return l, nil
}

func (l *List) pump(origin domain.Origin, sub docstore.Subscription) {
	defer l.pumps.Done()
	for docs := range sub.Snapshots() {
		l.ApplySnapshot(origin, docs)
	}
	if err := sub.Err(); err != nil {
		l.failSource(origin, err)
	}
}

// Events delivers change notifications. When the consumer falls behind the
// oldest undelivered event is dropped. The channel is closed by Close.
func (l *List) Events() <-chan Event {
	return l.events
}

// ApplySnapshot replaces every item of origin with docs and leaves the other
// origin untouched. Deleted keys stay out even if docs still lists them.
func (l *List) ApplySnapshot(origin domain.Origin, docs []docstore.Document) {
	items := make([]domain.ListingItem, 0, len(docs))
	seen := make(map[string]struct{}, len(docs))
	for _, d := range docs {
		if _, dup := seen[d.ID]; dup {
			continue
		}
		seen[d.ID] = struct{}{}
		items = append(items, domain.Normalize(d.ID, d.Fields, origin))
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}

	kept := items[:0]
	for _, it := range items {
		if _, gone := l.tombstones[it.Key()]; !gone {
			kept = append(kept, it)
		}
	}
	l.base[origin] = kept
	l.loaded[origin] = true

	for pk, p := range l.overlays {
		if pk.key.Origin == origin && p.acked && l.inflight[pk] == 0 {
			delete(l.overlays, pk)
		}
	}

	l.emitLocked(Event{Kind: EventSnapshot, Origin: origin})
}

// Items returns the merged list, books first, with optimistic patches
// applied and no filter.
func (l *List) Items() []domain.ListingItem {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.mergedLocked()
}

// Visible returns the items after the active tag or search text.
func (l *List) Visible() []domain.ListingItem {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.visibleLocked()
}

// Item returns one merged item.
func (l *List) Item(key domain.Key) (domain.ListingItem, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.findLocked(key)
}

// Loaded reports whether both origins delivered at least one snapshot.
func (l *List) Loaded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loaded[domain.OriginBook] && l.loaded[domain.OriginNote]
}

// SourceErr returns the error that ended origin's subscription, if any.
func (l *List) SourceErr(origin domain.Origin) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sourceErrs[origin]
}

// ClearSource drops the items kept from a failed origin.
func (l *List) ClearSource(origin domain.Origin) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.base[origin] = nil
	l.emitLocked(Event{Kind: EventSnapshot, Origin: origin})
}

func (l *List) FilterByTagPrefix(text string) []domain.ListingItem {
	return domain.FilterByTagPrefix(l.Items(), text)
}

func (l *List) FilterByExactTag(tag string) []domain.ListingItem {
	return domain.FilterByExactTag(l.Items(), tag)
}

// SelectTag activates tag, or clears it when it is already active, and
// returns the visible items. Filter changes are also emitted as snapshots.
func (l *List) SelectTag(tag string) []domain.ListingItem {
	tag = strings.ToLower(strings.TrimSpace(tag))

	l.mu.Lock()
	defer l.mu.Unlock()
	if tag == "" || tag == l.activeTag {
		l.activeTag = ""
	} else {
		l.activeTag = tag
		l.search = ""
	}
	items := l.visibleLocked()
	l.emitLocked(Event{Kind: EventSnapshot, Items: items})
	return items
}

func (l *List) ActiveTag() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.activeTag
}

// Search sets the tag prefix filter and clears the active tag.
func (l *List) Search(text string) []domain.ListingItem {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.search = text
	l.activeTag = ""
	items := l.visibleLocked()
	l.emitLocked(Event{Kind: EventSnapshot, Items: items})
	return items
}

func (l *List) SearchText() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.search
}

// Close stops both subscriptions and closes Events. Writes already started
// keep running; their outcome is ignored.
func (l *List) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	close(l.events)
	subs := l.subs
	cancel := l.cancel
	l.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	for _, s := range subs {
		s.Close()
	}
	l.pumps.Wait()
}

func (l *List) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// WaitWrites blocks until every write started by the list has finished.
func (l *List) WaitWrites() {
	l.writes.Wait()
}

func (l *List) failSource(origin domain.Origin, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.sourceErrs[origin] = err
	l.opts.log.Warn("live source failed",
		logger.String("origin", string(origin)),
		logger.Error(err),
	)
	l.emitLocked(Event{Kind: EventSourceError, Origin: origin, Err: err})
}

func (l *List) mergedLocked() []domain.ListingItem {
	out := make([]domain.ListingItem, 0, len(l.base[domain.OriginBook])+len(l.base[domain.OriginNote]))
	for _, origin := range domain.Origins() {
		for _, it := range l.base[origin] {
			out = append(out, l.overlaidLocked(it))
		}
	}
	return out
}

func (l *List) visibleLocked() []domain.ListingItem {
	items := l.mergedLocked()
	if l.activeTag != "" {
		return domain.FilterByExactTag(items, l.activeTag)
	}
	return domain.FilterByTagPrefix(items, l.search)
}

func (l *List) overlaidLocked(it domain.ListingItem) domain.ListingItem {
	c := it.Clone()
	if p, ok := l.overlays[pendingKey{key: it.Key(), field: domain.FieldFavoritedBy}]; ok {
		c.FavoritedBy = append([]string{}, p.value.([]string)...)
	}
	if p, ok := l.overlays[pendingKey{key: it.Key(), field: it.Origin.StatusField()}]; ok {
		c.Status = p.value.(int)
	}
	return c
}

func (l *List) findLocked(key domain.Key) (domain.ListingItem, bool) {
	for _, it := range l.base[key.Origin] {
		if it.ID == key.ID {
			return l.overlaidLocked(it), true
		}
	}
	return domain.ListingItem{}, false
}

func (l *List) emitLocked(ev Event) {
	if l.closed {
		return
	}
	if ev.Items == nil {
		ev.Items = l.visibleLocked()
	}
	for {
		select {
		case l.events <- ev:
			return
		default:
		}
		select {
		case <-l.events:
		default:
		}
	}
}
