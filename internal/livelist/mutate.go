package livelist

import (
	"context"
	"sort"

	"github.com/MrSnakeDoc/unilend/internal/docstore"
	"github.com/MrSnakeDoc/unilend/internal/domain"
	apperrors "github.com/MrSnakeDoc/unilend/internal/errors"
	"github.com/MrSnakeDoc/unilend/internal/logger"
)

// Write is the outcome of a remote write started by the list.
type Write struct {
	done chan struct{}
	err  error
}

func newWrite() *Write {
	return &Write{done: make(chan struct{})}
}

func (w *Write) finish(err error) {
	w.err = err
	close(w.done)
}

func (w *Write) Done() <-chan struct{} { return w.done }

// Err returns the write error once Done is closed, nil before.
func (w *Write) Err() error {
	select {
	case <-w.done:
		return w.err
	default:
		return nil
	}
}

// Wait blocks until the write finishes or ctx is done. Giving up on the
// wait does not cancel the write.
func (w *Write) Wait(ctx context.Context) error {
	select {
	case <-w.done:
		return w.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ToggleFavorite adds userID to the item's favorited-by set, or removes it,
// immediately in the list, then issues the matching array write. It returns
// the patched item.
func (l *List) ToggleFavorite(ctx context.Context, key domain.Key, userID string) (domain.ListingItem, *Write, error) {
	if userID == "" {
		return domain.ListingItem{}, nil, apperrors.Validation("user is required")
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return domain.ListingItem{}, nil, ErrClosed
	}
	item, ok := l.findLocked(key)
	if !ok {
		l.mu.Unlock()
		return domain.ListingItem{}, nil, apperrors.NotFoundf("listing %s is not in this view", key)
	}

	patch := domain.ToggleFavorite(item, userID)
	pk := pendingKey{key: key, field: domain.FieldFavoritedBy}
	gen := l.pushLocked(pk, append([]string{}, patch.FavoritedBy...))
	item.FavoritedBy = patch.FavoritedBy
	l.emitLocked(Event{Kind: EventSnapshot, Origin: key.Origin})
	l.mu.Unlock()

	mut := docstore.ArrayRemove(patch.Write.Field, patch.Write.UserID)
	if patch.Write.Add {
		mut = docstore.ArrayUnion(patch.Write.Field, patch.Write.UserID)
	}
	w := l.dispatch(ctx, key, "favorite",
		func(wctx context.Context) error {
			return l.store.Update(wctx, key.Origin.Collection(), key.ID, mut)
		},
		func(err error) { l.settle(pk, gen, err) },
	)
	return item, w, nil
}

// UpdateStatus applies a status action. "sold" deletes the listing and is
// refused with a confirmation-required error unless confirmed is set; the
// item then leaves the list at once and never comes back for the life of
// the list. Other actions update the status flag optimistically.
func (l *List) UpdateStatus(ctx context.Context, key domain.Key, action domain.StatusAction, confirmed bool) (domain.StatusIntent, *Write, error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return domain.StatusIntent{}, nil, ErrClosed
	}
	item, ok := l.findLocked(key)
	if !ok {
		l.mu.Unlock()
		return domain.StatusIntent{}, nil, apperrors.NotFoundf("listing %s is not in this view", key)
	}

	intent, err := domain.UpdateStatus(item, action)
	if err != nil {
		l.mu.Unlock()
		return domain.StatusIntent{}, nil, apperrors.Validation(err.Error())
	}

	if intent.Destructive() {
		if !confirmed {
			l.mu.Unlock()
			return intent, nil, apperrors.ConfirmationRequired("marking a listing as sold deletes it permanently")
		}
		l.removeLocked(key)
		l.emitLocked(Event{Kind: EventSnapshot, Origin: key.Origin})
		l.mu.Unlock()

		w := l.dispatch(ctx, key, "delete",
			func(wctx context.Context) error {
				err := l.store.Delete(wctx, key.Origin.Collection(), key.ID)
				if apperrors.Is(err, docstore.ErrNotFound) {
					return nil
				}
				return err
			},
			func(err error) { l.settleDelete(key, err) },
		)
		return intent, w, nil
	}

	pk := pendingKey{key: key, field: intent.Field}
	gen := l.pushLocked(pk, intent.Value)
	l.emitLocked(Event{Kind: EventSnapshot, Origin: key.Origin})
	l.mu.Unlock()

	w := l.dispatch(ctx, key, "status",
		func(wctx context.Context) error {
			return l.store.Update(wctx, key.Origin.Collection(), key.ID, docstore.Set(intent.Field, intent.Value))
		},
		func(err error) { l.settle(pk, gen, err) },
	)
	return intent, w, nil
}

func (l *List) pushLocked(pk pendingKey, value any) uint64 {
	l.gen++
	l.overlays[pk] = &pending{value: value, gen: l.gen}
	l.inflight[pk]++
	return l.gen
}

// removeLocked prunes key from its origin and tombstones it.
func (l *List) removeLocked(key domain.Key) {
	items := l.base[key.Origin]
	rm := removal{index: -1}
	for i, it := range items {
		if it.ID == key.ID {
			rm = removal{item: it, index: i}
			l.base[key.Origin] = append(items[:i:i], items[i+1:]...)
			break
		}
	}
	l.tombstones[key] = rm
	for pk := range l.overlays {
		if pk.key == key {
			delete(l.overlays, pk)
		}
	}
}

func (l *List) dispatch(ctx context.Context, key domain.Key, op string, write func(context.Context) error, settle func(error)) *Write {
	w := newWrite()
	l.writes.Add(1)
	go func() {
		defer l.writes.Done()
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.opts.writeTimeout)
		defer cancel()

		err := write(wctx)
		if err != nil {
			l.opts.log.Warn("live list write failed",
				logger.String("op", op),
				logger.String("key", key.String()),
				logger.Error(err),
			)
		}
		settle(err)
		w.finish(err)
	}()
	return w
}

// settle records the outcome of a field write. Only the newest write for a
// field decides the fate of its overlay.
func (l *List) settle(pk pendingKey, gen uint64, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}

	if l.inflight[pk]--; l.inflight[pk] <= 0 {
		delete(l.inflight, pk)
	}

	if err != nil {
		l.emitLocked(Event{Kind: EventWriteError, Origin: pk.key.Origin, Key: pk.key, Err: err})
	}

	p, ok := l.overlays[pk]
	if !ok || p.gen != gen {
		return
	}

	switch {
	case err == nil:
		p.acked = true
		if l.inflight[pk] == 0 && l.baseHoldsLocked(pk, p.value) {
			delete(l.overlays, pk)
		}
	case l.opts.rollback:
		delete(l.overlays, pk)
		l.emitLocked(Event{Kind: EventSnapshot, Origin: pk.key.Origin})
	default:
		p.acked = true
	}
}

func (l *List) settleDelete(key domain.Key, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || err == nil {
		return
	}

	l.emitLocked(Event{Kind: EventWriteError, Origin: key.Origin, Key: key, Err: err})
	if !l.opts.rollback {
		return
	}

	rm, ok := l.tombstones[key]
	if !ok {
		return
	}
	delete(l.tombstones, key)
	if rm.index < 0 {
		return
	}
	items := l.base[key.Origin]
	for _, it := range items {
		if it.ID == key.ID {
			return
		}
	}
	idx := rm.index
	if idx > len(items) {
		idx = len(items)
	}
	restored := make([]domain.ListingItem, 0, len(items)+1)
	restored = append(restored, items[:idx]...)
	restored = append(restored, rm.item)
	restored = append(restored, items[idx:]...)
	l.base[key.Origin] = restored
	l.emitLocked(Event{Kind: EventSnapshot, Origin: key.Origin})
}

// baseHoldsLocked reports whether the last snapshot already shows value.
func (l *List) baseHoldsLocked(pk pendingKey, value any) bool {
	for _, it := range l.base[pk.key.Origin] {
		if it.ID != pk.key.ID {
			continue
		}
		switch v := value.(type) {
		case []string:
			return sameSet(it.FavoritedBy, v)
		case int:
			return it.Status == v
		}
	}
	return false
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	x := append([]string{}, a...)
	y := append([]string{}, b...)
	sort.Strings(x)
	sort.Strings(y)
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}
