package service

import (
	"context"
	"strings"
	"time"

	"github.com/MrSnakeDoc/unilend/internal/docstore"
	"github.com/MrSnakeDoc/unilend/internal/domain"
	apperrors "github.com/MrSnakeDoc/unilend/internal/errors"
	"github.com/MrSnakeDoc/unilend/internal/id"
	"github.com/MrSnakeDoc/unilend/internal/logger"
	"github.com/MrSnakeDoc/unilend/internal/media"
	"github.com/MrSnakeDoc/unilend/internal/validation"
)

// ImageUploader hosts listing cover images.
type ImageUploader interface {
	Enabled() bool
	Upload(ctx context.Context, img media.Image, publicID string) (string, error)
}

type BookInput struct {
	Title       string `json:"title" validate:"required,max=200"`
	Author      string `json:"author" validate:"required,max=200"`
	Description string `json:"description" validate:"required,max=4000"`
	Edition     string `json:"edition" validate:"max=50"`
	Price       string `json:"price" validate:"max=20"`
	Condition   string `json:"condition" validate:"max=50"`
	// Tags is free text; words are split on spaces or commas.
	Tags string `json:"tags" validate:"max=500"`
}

type NoteInput struct {
	Title       string `json:"title" validate:"max=200"`
	Subject     string `json:"subject" validate:"required,max=200"`
	Semester    string `json:"semester" validate:"required,max=20"`
	Description string `json:"description" validate:"required,max=4000"`
	Format      string `json:"format" validate:"required,max=50"`
	Price       string `json:"price" validate:"required,max=20"`
	FileURL     string `json:"file_url" validate:"omitempty,url,max=2000"`
	Tags        string `json:"tags" validate:"max=500"`
}

// ListingService creates and reads listings.
type ListingService struct {
	store    docstore.Store
	uploader ImageUploader
	catalog  *Catalog
	validate *validation.Validator
	log      logger.Logger
	now      func() time.Time
}

func NewListingService(store docstore.Store, uploader ImageUploader, catalog *Catalog, log logger.Logger) *ListingService {
	return &ListingService{
		store:    store,
		uploader: uploader,
		catalog:  catalog,
		validate: validation.New(),
		log:      log,
		now:      time.Now,
	}
}

// CreateBook validates in, uploads img first when given, and writes the
// book. A failed upload aborts before anything is written.
func (s *ListingService) CreateBook(ctx context.Context, ident domain.Identity, in BookInput, img *media.Image) (domain.ListingItem, error) {
	in = trimBook(in)
	if err := s.validate.Validate(in); err != nil {
		return domain.ListingItem{}, err
	}
	if in.Condition != "" && !s.catalog.Get().AllowsCondition(in.Condition) {
		return domain.ListingItem{}, apperrors.ValidationWithDetails("validation failed",
			map[string]string{"condition": "must be one of: " + strings.Join(s.catalog.Get().Conditions, " ")})
	}

	fields := map[string]any{
		domain.FieldTitle:       in.Title,
		domain.FieldAuthor:      in.Author,
		domain.FieldDescription: in.Description,
		domain.FieldEdition:     in.Edition,
		domain.FieldPrice:       in.Price,
		domain.FieldCondition:   in.Condition,
		domain.FieldTags:        domain.ParseTags(in.Tags),
		domain.FieldBookStatus:  domain.StatusAvailable,
		"borrowed_by":           "",
	}
	return s.create(ctx, ident, domain.OriginBook, fields, img)
}

// CreateNote validates in and writes the note with the uploader's first
// name as author.
func (s *ListingService) CreateNote(ctx context.Context, ident domain.Identity, in NoteInput, img *media.Image) (domain.ListingItem, error) {
	in = trimNote(in)
	if err := s.validate.Validate(in); err != nil {
		return domain.ListingItem{}, err
	}
	if !s.catalog.Get().AllowsFormat(in.Format) {
		return domain.ListingItem{}, apperrors.ValidationWithDetails("validation failed",
			map[string]string{"format": "must be one of: " + strings.Join(s.catalog.Get().Formats, " ")})
	}

	noteID, err := id.Generate("note")
	if err != nil {
		return domain.ListingItem{}, apperrors.Internal(err, "failed to create note")
	}

	fields := map[string]any{
		domain.FieldTitle:       in.Title,
		domain.FieldSubject:     in.Subject,
		domain.FieldSemester:    in.Semester,
		domain.FieldDescription: in.Description,
		domain.FieldFormat:      in.Format,
		domain.FieldPrice:       in.Price,
		domain.FieldFileURL:     in.FileURL,
		domain.FieldTags:        domain.ParseTags(in.Tags),
		domain.FieldNoteStatus:  domain.StatusAvailable,
		domain.FieldAuthor:      s.uploaderName(ctx, ident.Email),
		"borrowed_by":           "",
		"note_id":               noteID,
	}
	return s.create(ctx, ident, domain.OriginNote, fields, img)
}

// Get returns one normalized listing.
func (s *ListingService) Get(ctx context.Context, origin domain.Origin, listingID string) (domain.ListingItem, error) {
	doc, err := s.store.Get(ctx, origin.Collection(), listingID)
	if err != nil {
		if apperrors.Is(err, docstore.ErrNotFound) {
			return domain.ListingItem{}, apperrors.NotFoundf("%s %s not found", origin, listingID)
		}
		return domain.ListingItem{}, apperrors.Internal(err, "failed to load listing")
	}
	return domain.Normalize(doc.ID, doc.Fields, origin), nil
}

func (s *ListingService) create(ctx context.Context, ident domain.Identity, origin domain.Origin, fields map[string]any, img *media.Image) (domain.ListingItem, error) {
	if ident.Email == "" {
		return domain.ListingItem{}, apperrors.Unauthorized("sign in to upload")
	}

	fields[domain.FieldUploadedBy] = ident.Email
	fields[domain.FieldCreatedAt] = s.now().UTC()
	fields[domain.FieldFavoritedBy] = []any{}

	if img != nil {
		if !s.uploader.Enabled() {
			return domain.ListingItem{}, apperrors.Validation("image upload is not available")
		}
		publicID := string(origin) + "-" + id.Document()
		url, err := s.uploader.Upload(ctx, *img, publicID)
		if err != nil {
			s.log.Warn("image upload failed",
				logger.String("origin", string(origin)),
				logger.String("public_id", publicID),
				logger.Error(err))
			return domain.ListingItem{}, apperrors.Upstream(err, "image upload failed, listing was not created")
		}
		fields[domain.FieldCoverImage] = url
	}

	docID, err := s.store.Create(ctx, origin.Collection(), fields)
	if err != nil {
		return domain.ListingItem{}, apperrors.Internal(err, "failed to save listing")
	}

	s.log.Info("listing created",
		logger.String("origin", string(origin)),
		logger.String("id", docID),
		logger.String("uploaded_by", ident.Email))
	return domain.Normalize(docID, fields, origin), nil
}

// uploaderName resolves the uploader's first name; any miss falls back
// to the email.
func (s *ListingService) uploaderName(ctx context.Context, email string) string {
	docs, err := s.store.Query(ctx, domain.CollectionUsers, docstore.Where(domain.FieldEmail, docstore.OpEqual, email))
	if err != nil {
		s.log.Warn("uploader lookup failed", logger.String("email", email), logger.Error(err))
		return email
	}
	if len(docs) == 0 {
		return email
	}
	return domain.UserFromDocument(docs[0].ID, docs[0].Fields).DisplayName()
}

func trimBook(in BookInput) BookInput {
	in.Title = strings.TrimSpace(in.Title)
	in.Author = strings.TrimSpace(in.Author)
	in.Description = strings.TrimSpace(in.Description)
	in.Edition = strings.TrimSpace(in.Edition)
	in.Price = strings.TrimSpace(in.Price)
	in.Condition = strings.TrimSpace(in.Condition)
	return in
}

func trimNote(in NoteInput) NoteInput {
	in.Title = strings.TrimSpace(in.Title)
	in.Subject = strings.TrimSpace(in.Subject)
	in.Semester = strings.TrimSpace(in.Semester)
	in.Description = strings.TrimSpace(in.Description)
	in.Format = strings.TrimSpace(in.Format)
	in.Price = strings.TrimSpace(in.Price)
	in.FileURL = strings.TrimSpace(in.FileURL)
	return in
}
