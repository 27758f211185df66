package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrSnakeDoc/unilend/internal/docstore"
	"github.com/MrSnakeDoc/unilend/internal/domain"
	apperrors "github.com/MrSnakeDoc/unilend/internal/errors"
	"github.com/MrSnakeDoc/unilend/internal/id"
	"github.com/MrSnakeDoc/unilend/internal/livelist"
	"github.com/MrSnakeDoc/unilend/internal/logger"
)

// ViewKind selects which listings a live view follows.
type ViewKind string

const (
	// ViewUploads follows the caller's own listings.
	ViewUploads ViewKind = "uploads"
	// ViewFavorites follows the listings the caller favorited.
	ViewFavorites ViewKind = "favorites"
	// ViewBrowse follows everyone else's listings.
	ViewBrowse ViewKind = "browse"
)

func ParseViewKind(s string) (ViewKind, error) {
	switch k := ViewKind(s); k {
	case ViewUploads, ViewFavorites, ViewBrowse:
		return k, nil
	default:
		return "", apperrors.Validationf("unknown view kind %q (want uploads, favorites or browse)", s)
	}
}

func (k ViewKind) sources(email string) livelist.Sources {
	switch k {
	case ViewUploads:
		return livelist.UploadedBy(email)
	case ViewFavorites:
		return livelist.FavoritedBy(email)
	default:
		return livelist.NotUploadedBy(email)
	}
}

// View is one caller's live list, addressed by ID across requests.
type View struct {
	ID       string
	Kind     ViewKind
	Owner    domain.Identity
	OpenedAt time.Time

	list     *livelist.List
	lastSeen atomic.Int64
	streams  atomic.Int32
}

func (v *View) List() *livelist.List { return v.list }

func (v *View) touch(now time.Time) { v.lastSeen.Store(now.UnixNano()) }

func (v *View) LastSeen() time.Time { return time.Unix(0, v.lastSeen.Load()) }

// Attach claims the view's event stream; a view has at most one reader
// and attached views are never reaped. ok is false when another stream
// holds it. detach releases the claim.
func (v *View) Attach() (detach func(), ok bool) {
	if !v.streams.CompareAndSwap(0, 1) {
		return nil, false
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			v.streams.Store(0)
			v.touch(time.Now())
		})
	}, true
}

func (v *View) Streams() int { return int(v.streams.Load()) }

// ToggleFavorite flips the owner's favorite on key and waits for the
// remote write. The list already shows the change when the wait starts.
func (v *View) ToggleFavorite(ctx context.Context, key domain.Key) (domain.ListingItem, error) {
	item, w, err := v.list.ToggleFavorite(ctx, key, v.Owner.Email)
	if err != nil {
		return domain.ListingItem{}, listErr(err)
	}
	if err := w.Wait(ctx); err != nil {
		return item, writeErr(err)
	}
	return item, nil
}

// UpdateStatus changes the status of one of the owner's listings.
func (v *View) UpdateStatus(ctx context.Context, key domain.Key, action domain.StatusAction, confirmed bool) (domain.StatusIntent, error) {
	item, ok := v.list.Item(key)
	if !ok {
		return domain.StatusIntent{}, apperrors.NotFoundf("listing %s is not in this view", key)
	}
	if item.UploadedBy != v.Owner.Email {
		return domain.StatusIntent{}, apperrors.Forbidden("only the uploader can change a listing's status")
	}

	intent, w, err := v.list.UpdateStatus(ctx, key, action, confirmed)
	if err != nil {
		return intent, listErr(err)
	}
	if err := w.Wait(ctx); err != nil {
		return intent, writeErr(err)
	}
	return intent, nil
}

func listErr(err error) error {
	if apperrors.Is(err, livelist.ErrClosed) {
		return apperrors.NotFoundf("view is closed")
	}
	return err
}

func writeErr(err error) error {
	if apperrors.Is(err, context.Canceled) || apperrors.Is(err, context.DeadlineExceeded) {
		return apperrors.Upstream(err, "write still pending")
	}
	if apperrors.Is(err, docstore.ErrNotFound) {
		return apperrors.NotFoundf("listing no longer exists")
	}
	return apperrors.Upstream(err, "write failed and was rolled back")
}

// ViewRegistry owns the open views. Views outlive the request that opened
// them and are closed explicitly, by Reap once idle, or by CloseAll.
type ViewRegistry struct {
	store docstore.Store
	opts  []livelist.Option
	log   logger.Logger
	now   func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	views    map[string]*View
	opening  map[string]int // per user, views between reservation and insert
	perOwner int
}

type ViewConfig struct {
	// MaxPerOwner caps open views per user; 0 means unlimited.
	MaxPerOwner int
	ListOptions []livelist.Option
}

func NewViewRegistry(store docstore.Store, cfg ViewConfig, log logger.Logger) *ViewRegistry {
	ctx, cancel := context.WithCancel(context.Background())
	return &ViewRegistry{
		store:    store,
		opts:     cfg.ListOptions,
		log:      log,
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
		views:    make(map[string]*View),
		opening:  make(map[string]int),
		perOwner: cfg.MaxPerOwner,
	}
}

// Open subscribes a new view of kind for ident.
func (r *ViewRegistry) Open(ctx context.Context, ident domain.Identity, kind ViewKind) (*View, error) {
	if ident.Email == "" {
		return nil, apperrors.Unauthorized("sign in to open a view")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// The slot is reserved before subscribing so concurrent opens cannot
	// overshoot the cap.
	r.mu.Lock()
	if r.perOwner > 0 && r.countLocked(ident.UserID)+r.opening[ident.UserID] >= r.perOwner {
		r.mu.Unlock()
		return nil, apperrors.Conflict("too many open views, close one first")
	}
	r.opening[ident.UserID]++
	r.mu.Unlock()

	v, err := r.subscribe(ident, kind)

	r.mu.Lock()
	r.opening[ident.UserID]--
	if r.opening[ident.UserID] == 0 {
		delete(r.opening, ident.UserID)
	}
	if err == nil {
		r.views[v.ID] = v
	}
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}

	r.log.Debug("view opened",
		logger.String("view_id", v.ID),
		logger.String("kind", string(kind)),
		logger.String("user_id", ident.UserID))
	return v, nil
}

func (r *ViewRegistry) subscribe(ident domain.Identity, kind ViewKind) (*View, error) {
	viewID, err := id.Generate("view")
	if err != nil {
		return nil, apperrors.Internal(err, "failed to open view")
	}

	list, err := livelist.Subscribe(r.ctx, r.store, kind.sources(ident.Email), r.opts...)
	if err != nil {
		return nil, apperrors.Upstream(err, "failed to subscribe")
	}

	v := &View{ID: viewID, Kind: kind, Owner: ident, OpenedAt: r.now(), list: list}
	v.touch(r.now())
	return v, nil
}

// Get returns the caller's view. Views of other users read as missing.
func (r *ViewRegistry) Get(viewID string, ident domain.Identity) (*View, error) {
	r.mu.Lock()
	v, ok := r.views[viewID]
	r.mu.Unlock()

	if !ok || v.Owner.UserID != ident.UserID {
		return nil, apperrors.NotFoundf("view %s not found", viewID)
	}
	if v.list.Closed() {
		r.drop(viewID)
		return nil, apperrors.NotFoundf("view %s is closed", viewID)
	}
	v.touch(r.now())
	return v, nil
}

func (r *ViewRegistry) Close(viewID string, ident domain.Identity) error {
	if _, err := r.Get(viewID, ident); err != nil {
		return err
	}
	r.drop(viewID)
	return nil
}

// Reap closes views with no attached stream that were idle longer than
// idle, and views whose list already closed. It returns how many went.
func (r *ViewRegistry) Reap(idle time.Duration) int {
	cutoff := r.now().Add(-idle)

	r.mu.Lock()
	var stale []*View
	for viewID, v := range r.views {
		if v.list.Closed() || (v.Streams() == 0 && v.LastSeen().Before(cutoff)) {
			stale = append(stale, v)
			delete(r.views, viewID)
		}
	}
	r.mu.Unlock()

	for _, v := range stale {
		v.list.Close()
		r.log.Debug("view reaped", logger.String("view_id", v.ID), logger.String("user_id", v.Owner.UserID))
	}
	return len(stale)
}

// CloseAll closes every view; the registry is unusable afterwards.
func (r *ViewRegistry) CloseAll() {
	r.cancel()

	r.mu.Lock()
	views := r.views
	r.views = make(map[string]*View)
	r.mu.Unlock()

	for _, v := range views {
		v.list.Close()
		v.list.WaitWrites()
	}
	r.log.Info("views closed", logger.Int("count", len(views)))
}

func (r *ViewRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.views)
}

func (r *ViewRegistry) drop(viewID string) {
	r.mu.Lock()
	v, ok := r.views[viewID]
	delete(r.views, viewID)
	r.mu.Unlock()
	if ok {
		v.list.Close()
	}
}

func (r *ViewRegistry) countLocked(userID string) int {
	n := 0
	for _, v := range r.views {
		if v.Owner.UserID == userID {
			n++
		}
	}
	return n
}
