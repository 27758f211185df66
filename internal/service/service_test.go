package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/unilend/internal/auth"
	"github.com/MrSnakeDoc/unilend/internal/docstore"
	"github.com/MrSnakeDoc/unilend/internal/docstore/memory"
	"github.com/MrSnakeDoc/unilend/internal/domain"
	apperrors "github.com/MrSnakeDoc/unilend/internal/errors"
	"github.com/MrSnakeDoc/unilend/internal/logger"
	"github.com/MrSnakeDoc/unilend/internal/media"
)

// cheapHasher keeps argon2 fast in tests.
var cheapHasher = auth.Hasher{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 8, KeyLength: 16}

type fakeUploader struct {
	enabled bool
	url     string
	err     error
	calls   []string
}

func (f *fakeUploader) Enabled() bool { return f.enabled }

func (f *fakeUploader) Upload(_ context.Context, _ media.Image, publicID string) (string, error) {
	f.calls = append(f.calls, publicID)
	return f.url, f.err
}

var alice = domain.Identity{UserID: "u-alice", Email: "alice@campus.edu"}

func newListings(t *testing.T, up *fakeUploader) (*ListingService, *memory.Store) {
	t.Helper()
	store := memory.New()
	return NewListingService(store, up, NewCatalog(), logger.Nop()), store
}

func TestCreateBook(t *testing.T) {
	svc, store := newListings(t, &fakeUploader{})
	ctx := context.Background()

	item, err := svc.CreateBook(ctx, alice, BookInput{
		Title:       " Calculus ",
		Author:      "Stewart",
		Description: "8th edition, light notes",
		Price:       "250",
		Condition:   "Good",
		Tags:        "Maths calculus",
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, domain.OriginBook, item.Origin)
	assert.Equal(t, "Calculus", item.Title)
	assert.Equal(t, alice.Email, item.UploadedBy)
	assert.Equal(t, []string{"maths", "calculus"}, item.Tags)
	assert.True(t, item.Available())
	assert.NotNil(t, item.CreatedAt)

	doc, err := store.Get(ctx, domain.CollectionBooks, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "", doc.Fields["borrowed_by"])

	got, err := svc.Get(ctx, domain.OriginBook, item.ID)
	require.NoError(t, err)
	assert.Equal(t, item.ID, got.ID)
}

func TestCreateBookValidation(t *testing.T) {
	svc, _ := newListings(t, &fakeUploader{})
	ctx := context.Background()

	_, err := svc.CreateBook(ctx, alice, BookInput{Title: "x"}, nil)
	require.ErrorIs(t, err, apperrors.ErrValidation)

	var appErr *apperrors.Error
	require.True(t, errors.As(err, &appErr))
	details, ok := appErr.Details.(map[string]string)
	require.True(t, ok)
	assert.Contains(t, details, "author")
	assert.Contains(t, details, "description")

	_, err = svc.CreateBook(ctx, alice, BookInput{Title: "x", Author: "y", Description: "z", Condition: "Mint"}, nil)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestCreateRequiresIdentity(t *testing.T) {
	svc, _ := newListings(t, &fakeUploader{})
	_, err := svc.CreateBook(context.Background(), domain.Identity{}, BookInput{Title: "x", Author: "y", Description: "z"}, nil)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestCreateNoteUsesUploaderFirstName(t *testing.T) {
	svc, store := newListings(t, &fakeUploader{})
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, domain.CollectionUsers, alice.UserID, map[string]any{
		domain.FieldEmail:     alice.Email,
		domain.FieldFirstName: "Alice",
	}))

	in := NoteInput{Subject: "DSA", Semester: "3", Description: "trees", Format: "PDF", Price: "0", Tags: "dsa"}
	item, err := svc.CreateNote(ctx, alice, in, nil)
	require.NoError(t, err)
	assert.Equal(t, "Alice", item.Author)
	assert.Equal(t, "PDF", item.Condition)

	doc, err := store.Get(ctx, domain.CollectionNotes, item.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, doc.Fields["note_id"])

	bob := domain.Identity{UserID: "u-bob", Email: "bob@campus.edu"}
	item, err = svc.CreateNote(ctx, bob, in, nil)
	require.NoError(t, err)
	assert.Equal(t, bob.Email, item.Author, "falls back to the email")
}

func TestCreateNoteRejectsUnknownFormat(t *testing.T) {
	svc, _ := newListings(t, &fakeUploader{})
	in := NoteInput{Subject: "DSA", Semester: "3", Description: "trees", Format: "Scroll", Price: "0"}
	_, err := svc.CreateNote(context.Background(), alice, in, nil)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestCreateWithImage(t *testing.T) {
	up := &fakeUploader{enabled: true, url: "https://img.example/c.png"}
	svc, _ := newListings(t, up)
	img := &media.Image{Filename: "c.png", ContentType: "image/png", Data: []byte{1}}

	item, err := svc.CreateBook(context.Background(), alice, BookInput{Title: "x", Author: "y", Description: "z"}, img)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://img.example/c.png"}, item.CoverImages)
	require.Len(t, up.calls, 1)
	assert.Contains(t, up.calls[0], "book-")
}

func TestFailedUploadWritesNothing(t *testing.T) {
	up := &fakeUploader{enabled: true, err: errors.New("host down")}
	svc, store := newListings(t, up)
	img := &media.Image{Filename: "c.png", ContentType: "image/png", Data: []byte{1}}
	ctx := context.Background()

	_, err := svc.CreateBook(ctx, alice, BookInput{Title: "x", Author: "y", Description: "z"}, img)
	require.ErrorIs(t, err, apperrors.ErrUpstream)

	docs, err := store.Query(ctx, domain.CollectionBooks)
	require.NoError(t, err)
	assert.Empty(t, docs)

	svc.uploader = &fakeUploader{}
	_, err = svc.CreateBook(ctx, alice, BookInput{Title: "x", Author: "y", Description: "z"}, img)
	assert.ErrorIs(t, err, apperrors.ErrValidation, "upload disabled")
}

func TestGetUnknownListing(t *testing.T) {
	svc, _ := newListings(t, &fakeUploader{})
	_, err := svc.Get(context.Background(), domain.OriginNote, "nope")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func newUsers(t *testing.T) (*UserService, *memory.Store, *auth.MemorySessions) {
	t.Helper()
	store := memory.New()
	sessions := auth.NewMemorySessions()
	svc := NewUserService(store, sessions, UserConfig{Hasher: cheapHasher, SessionTTL: time.Hour}, logger.Nop())
	return svc, store, sessions
}

func signUp(t *testing.T, svc *UserService, email string) domain.User {
	t.Helper()
	u, err := svc.SignUp(context.Background(), SignUpInput{
		Email:           email,
		Password:        "correct horse",
		ConfirmPassword: "correct horse",
		FirstName:       "Alice",
		Branch:          "ECE",
	})
	require.NoError(t, err)
	return u
}

func TestSignUpAndSignIn(t *testing.T) {
	svc, _, _ := newUsers(t)
	ctx := context.Background()

	u := signUp(t, svc, " Alice@Campus.edu ")
	assert.Equal(t, "alice@campus.edu", u.Email)
	assert.Equal(t, domain.RoleBuyer, u.Role)
	assert.NotEmpty(t, u.PasswordHash)

	sess, err := svc.SignIn(ctx, SignInInput{Email: "ALICE@campus.edu", Password: "correct horse"})
	require.NoError(t, err)
	assert.NotEmpty(t, sess.Token)
	assert.Equal(t, u.ID, sess.User.ID)

	ident, err := svc.Authenticate(ctx, sess.Token)
	require.NoError(t, err)
	assert.Equal(t, domain.Identity{UserID: u.ID, Email: u.Email}, ident)

	require.NoError(t, svc.SignOut(ctx, sess.Token))
	_, err = svc.Authenticate(ctx, sess.Token)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestSignUpRejectsDuplicatesAndMismatch(t *testing.T) {
	svc, _, _ := newUsers(t)
	ctx := context.Background()
	signUp(t, svc, "alice@campus.edu")

	_, err := svc.SignUp(ctx, SignUpInput{Email: "ALICE@campus.edu", Password: "whatever1", ConfirmPassword: "whatever1", FirstName: "A"})
	assert.ErrorIs(t, err, apperrors.ErrAlreadyExists)

	_, err = svc.SignUp(ctx, SignUpInput{Email: "bob@campus.edu", Password: "whatever1", ConfirmPassword: "whatever2", FirstName: "B"})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestSignInFailuresLookAlike(t *testing.T) {
	svc, _, _ := newUsers(t)
	ctx := context.Background()
	signUp(t, svc, "alice@campus.edu")

	_, wrongPassword := svc.SignIn(ctx, SignInInput{Email: "alice@campus.edu", Password: "nope"})
	_, unknownUser := svc.SignIn(ctx, SignInInput{Email: "carol@campus.edu", Password: "nope"})
	assert.ErrorIs(t, wrongPassword, apperrors.ErrInvalidCredentials)
	assert.ErrorIs(t, unknownUser, apperrors.ErrInvalidCredentials)
	assert.Equal(t, wrongPassword.Error(), unknownUser.Error())
}

func TestUpdateProfile(t *testing.T) {
	svc, _, _ := newUsers(t)
	ctx := context.Background()
	u := signUp(t, svc, "alice@campus.edu")
	ident := domain.Identity{UserID: u.ID, Email: u.Email}

	updated, err := svc.UpdateProfile(ctx, ident, ProfileInput{FirstName: "Al", LastName: "Ice", Contact: "555", Address: "Hostel 4", Branch: "CSE"})
	require.NoError(t, err)
	assert.Equal(t, "Al", updated.FirstName)
	assert.Equal(t, "CSE", updated.Branch)
	assert.Equal(t, u.Email, updated.Email, "email is not editable")

	_, err = svc.UpdateProfile(ctx, domain.Identity{UserID: "ghost"}, ProfileInput{FirstName: "G"})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestPasswordReset(t *testing.T) {
	store := memory.New()
	sessions := auth.NewMemorySessions()
	svc := NewUserService(store, sessions, UserConfig{Hasher: cheapHasher}, logger.Nop())
	ctx := context.Background()
	signUp(t, svc, "alice@campus.edu")

	// Capture the token through the session store.
	rec := &recordingSessions{SessionStore: sessions}
	svc.sessions = rec

	before, err := svc.SignIn(ctx, SignInInput{Email: "alice@campus.edu", Password: "correct horse"})
	require.NoError(t, err)

	require.NoError(t, svc.RequestPasswordReset(ctx, "alice@campus.edu"))
	require.NoError(t, svc.RequestPasswordReset(ctx, "nobody@campus.edu"), "unknown emails are not revealed")
	require.Len(t, rec.resetTokens, 1)

	in := ResetPasswordInput{Token: rec.resetTokens[0], Password: "new secret!", ConfirmPassword: "new secret!"}
	require.NoError(t, svc.ResetPassword(ctx, in))
	assert.ErrorIs(t, svc.ResetPassword(ctx, in), apperrors.ErrUnauthorized, "tokens are single-use")

	_, err = svc.Authenticate(ctx, before.Token)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized, "sessions from before the reset are revoked")

	after, err := svc.SignIn(ctx, SignInInput{Email: "alice@campus.edu", Password: "new secret!"})
	require.NoError(t, err)
	_, err = svc.Authenticate(ctx, after.Token)
	assert.NoError(t, err)
}

type recordingSessions struct {
	auth.SessionStore
	resetTokens []string
}

func (r *recordingSessions) SaveResetToken(ctx context.Context, token, email string, ttl time.Duration) error {
	r.resetTokens = append(r.resetTokens, token)
	return r.SessionStore.SaveResetToken(ctx, token, email, ttl)
}

func TestCatalogCopies(t *testing.T) {
	c := NewCatalog()
	got := c.Get()
	got.QuickTags[0] = "mutated"
	assert.NotEqual(t, "mutated", c.Get().QuickTags[0])

	c.Set(domain.Catalog{QuickTags: []string{"law"}}, "file")
	source, at := c.Info()
	assert.Equal(t, "file", source)
	assert.False(t, at.IsZero())
	assert.Equal(t, []string{"law"}, c.Get().QuickTags)
}

func seedViews(t *testing.T, store *memory.Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, domain.CollectionBooks, "b1", map[string]any{
		domain.FieldUploadedBy: alice.Email, domain.FieldBookStatus: 1, domain.FieldFavoritedBy: []any{},
	}))
	require.NoError(t, store.Put(ctx, domain.CollectionBooks, "b2", map[string]any{
		domain.FieldUploadedBy: "bob@campus.edu", domain.FieldBookStatus: 1, domain.FieldFavoritedBy: []any{},
	}))
	require.NoError(t, store.Put(ctx, domain.CollectionNotes, "n1", map[string]any{
		domain.FieldUploadedBy: "bob@campus.edu", domain.FieldNoteStatus: 1, domain.FieldFavoritedBy: []any{alice.Email},
	}))
}

func itemKeys(items []domain.ListingItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Key().String()
	}
	return out
}

func TestViewKinds(t *testing.T) {
	store := memory.New()
	seedViews(t, store)
	reg := NewViewRegistry(store, ViewConfig{}, logger.Nop())
	defer reg.CloseAll()
	ctx := context.Background()

	cases := map[ViewKind][]string{
		ViewUploads:   {"book/b1"},
		ViewBrowse:    {"book/b2", "note/n1"},
		ViewFavorites: {"note/n1"},
	}
	for kind, want := range cases {
		v, err := reg.Open(ctx, alice, kind)
		require.NoError(t, err)
		require.Eventually(t, v.List().Loaded, time.Second, 5*time.Millisecond)
		assert.Equal(t, want, itemKeys(v.List().Items()), kind)
	}
	assert.Equal(t, 3, reg.Count())

	_, err := ParseViewKind("everything")
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestViewOwnership(t *testing.T) {
	store := memory.New()
	seedViews(t, store)
	reg := NewViewRegistry(store, ViewConfig{}, logger.Nop())
	defer reg.CloseAll()
	ctx := context.Background()

	v, err := reg.Open(ctx, alice, ViewBrowse)
	require.NoError(t, err)

	_, err = reg.Get(v.ID, domain.Identity{UserID: "u-bob", Email: "bob@campus.edu"})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	got, err := reg.Get(v.ID, alice)
	require.NoError(t, err)
	assert.Same(t, v, got)

	require.NoError(t, reg.Close(v.ID, alice))
	assert.True(t, v.List().Closed())
	_, err = reg.Get(v.ID, alice)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestViewFavoriteAndStatus(t *testing.T) {
	store := memory.New()
	seedViews(t, store)
	reg := NewViewRegistry(store, ViewConfig{}, logger.Nop())
	defer reg.CloseAll()
	ctx := context.Background()

	browse, err := reg.Open(ctx, alice, ViewBrowse)
	require.NoError(t, err)
	require.Eventually(t, browse.List().Loaded, time.Second, 5*time.Millisecond)

	b2 := domain.Key{Origin: domain.OriginBook, ID: "b2"}
	item, err := browse.ToggleFavorite(ctx, b2)
	require.NoError(t, err)
	assert.True(t, item.FavoritedByUser(alice.Email))

	doc, err := store.Get(ctx, domain.CollectionBooks, "b2")
	require.NoError(t, err)
	assert.Equal(t, []any{alice.Email}, doc.Fields[domain.FieldFavoritedBy])

	_, err = browse.UpdateStatus(ctx, b2, domain.ActionLent, false)
	assert.ErrorIs(t, err, apperrors.ErrForbidden, "only the uploader changes status")

	uploads, err := reg.Open(ctx, alice, ViewUploads)
	require.NoError(t, err)
	require.Eventually(t, uploads.List().Loaded, time.Second, 5*time.Millisecond)

	b1 := domain.Key{Origin: domain.OriginBook, ID: "b1"}
	_, err = uploads.UpdateStatus(ctx, b1, domain.ActionSold, false)
	assert.ErrorIs(t, err, apperrors.ErrConfirmationRequired)

	intent, err := uploads.UpdateStatus(ctx, b1, domain.ActionSold, true)
	require.NoError(t, err)
	assert.True(t, intent.Destructive())
	_, err = store.Get(ctx, domain.CollectionBooks, "b1")
	assert.ErrorIs(t, err, docstore.ErrNotFound)
	assert.Empty(t, uploads.List().Items())
}

func TestViewWriteFailureIsReported(t *testing.T) {
	store := memory.New()
	seedViews(t, store)
	reg := NewViewRegistry(store, ViewConfig{}, logger.Nop())
	defer reg.CloseAll()
	ctx := context.Background()

	v, err := reg.Open(ctx, alice, ViewBrowse)
	require.NoError(t, err)
	require.Eventually(t, v.List().Loaded, time.Second, 5*time.Millisecond)

	store.SetWriteHook(func(op, collection, docID string) error { return errors.New("permission denied") })

	b2 := domain.Key{Origin: domain.OriginBook, ID: "b2"}
	_, err = v.ToggleFavorite(ctx, b2)
	assert.ErrorIs(t, err, apperrors.ErrUpstream)

	item, ok := v.List().Item(b2)
	require.True(t, ok)
	assert.False(t, item.FavoritedByUser(alice.Email), "rolled back")
}

func TestViewLimitPerOwner(t *testing.T) {
	reg := NewViewRegistry(memory.New(), ViewConfig{MaxPerOwner: 1}, logger.Nop())
	defer reg.CloseAll()
	ctx := context.Background()

	_, err := reg.Open(ctx, alice, ViewBrowse)
	require.NoError(t, err)
	_, err = reg.Open(ctx, alice, ViewUploads)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

// gatedStore holds every Watch until gate is closed and can fail them.
type gatedStore struct {
	docstore.Store
	gate    chan struct{}
	entered atomic.Int32
	fail    atomic.Bool
}

func (g *gatedStore) Watch(ctx context.Context, collection string, pred docstore.Predicate) (docstore.Subscription, error) {
	g.entered.Add(1)
	if g.gate != nil {
		<-g.gate
	}
	if g.fail.Load() {
		return nil, errors.New("watch refused")
	}
	return g.Store.Watch(ctx, collection, pred)
}

func TestOpenLimitHoldsUnderConcurrentOpens(t *testing.T) {
	store := &gatedStore{Store: memory.New(), gate: make(chan struct{})}
	reg := NewViewRegistry(store, ViewConfig{MaxPerOwner: 2}, logger.Nop())
	defer reg.CloseAll()
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = reg.Open(ctx, alice, ViewBrowse)
		}()
	}
	require.Eventually(t, func() bool { return store.entered.Load() == 2 }, time.Second, 5*time.Millisecond)

	_, err := reg.Open(ctx, alice, ViewUploads)
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	close(store.gate)
	wg.Wait()
	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 2, reg.Count())
}

func TestFailedOpenReleasesSlot(t *testing.T) {
	store := &gatedStore{Store: memory.New()}
	reg := NewViewRegistry(store, ViewConfig{MaxPerOwner: 1}, logger.Nop())
	defer reg.CloseAll()
	ctx := context.Background()

	store.fail.Store(true)
	_, err := reg.Open(ctx, alice, ViewBrowse)
	assert.ErrorIs(t, err, apperrors.ErrUpstream)

	store.fail.Store(false)
	_, err = reg.Open(ctx, alice, ViewBrowse)
	require.NoError(t, err)
	assert.Equal(t, 1, reg.Count())
}

func TestReapSkipsAttachedViews(t *testing.T) {
	reg := NewViewRegistry(memory.New(), ViewConfig{}, logger.Nop())
	defer reg.CloseAll()
	ctx := context.Background()

	idle, err := reg.Open(ctx, alice, ViewBrowse)
	require.NoError(t, err)
	streamed, err := reg.Open(ctx, alice, ViewUploads)
	require.NoError(t, err)
	detach, ok := streamed.Attach()
	require.True(t, ok)
	_, ok = streamed.Attach()
	assert.False(t, ok, "one stream per view")

	reg.now = func() time.Time { return time.Now().Add(time.Hour) }
	assert.Equal(t, 1, reg.Reap(time.Minute))
	assert.True(t, idle.List().Closed())
	assert.False(t, streamed.List().Closed())

	detach()
	detach()
	assert.Equal(t, 0, streamed.Streams())
	assert.Equal(t, 1, reg.Reap(time.Minute))
	assert.Equal(t, 0, reg.Count())
}
