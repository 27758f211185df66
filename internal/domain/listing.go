package domain

import (
	"fmt"
	"strings"
	"time"
)

// Origin tells which remote collection a listing came from. The
// collections do not self-identify, so the origin is stamped client-side.
type Origin string

const (
	OriginBook Origin = "book"
	OriginNote Origin = "note"
)

// Collection names in the document store.
const (
	CollectionBooks = "books"
	CollectionNotes = "notes"
	CollectionUsers = "users"
)

// Document field names shared by both listing collections.
const (
	FieldTitle       = "title"
	FieldAuthor      = "author"
	FieldSubject     = "subject"
	FieldPrice       = "price"
	FieldDescription = "description"
	FieldUploadedBy  = "uploaded_by"
	FieldCondition   = "condition"
	FieldFormat      = "format"
	FieldEdition     = "edition"
	FieldSemester    = "semester"
	FieldFileURL     = "file_url"
	FieldCreatedAt   = "created_at"
	FieldTags        = "tags"
	FieldFavoritedBy = "favourited_by"
	FieldCoverImage  = "cover_image_url"
	FieldBookStatus  = "book_status"
	FieldNoteStatus  = "note_status"
)

// Origins returns both origins in merge order.
func Origins() []Origin {
	return []Origin{OriginBook, OriginNote}
}

// Collection returns the document store collection backing this origin.
func (o Origin) Collection() string {
	if o == OriginNote {
		return CollectionNotes
	}
	return CollectionBooks
}

// StatusField returns the name of the availability flag for this origin.
func (o Origin) StatusField() string {
	if o == OriginNote {
		return FieldNoteStatus
	}
	return FieldBookStatus
}

func (o Origin) Valid() bool {
	return o == OriginBook || o == OriginNote
}

// ParseOrigin accepts both the singular origin and the collection name.
func ParseOrigin(s string) (Origin, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "book", "books":
		return OriginBook, nil
	case "note", "notes":
		return OriginNote, nil
	default:
		return "", fmt.Errorf("unknown origin %q", s)
	}
}

// Key identifies a listing in a merged list. IDs are only unique within a
// collection, so the origin is part of the key.
type Key struct {
	Origin Origin
	ID     string
}

func (k Key) String() string {
	return string(k.Origin) + "/" + k.ID
}

// Availability flag values as stored remotely.
const (
	StatusUnavailable = 0
	StatusAvailable   = 1
)

// ListingItem is a normalized book or note.
type ListingItem struct {
	ID     string `json:"id"`
	Origin Origin `json:"origin"`

	Title       string `json:"title"`
	Author      string `json:"author,omitempty"`
	Subject     string `json:"subject,omitempty"`
	Price       string `json:"price"`
	Description string `json:"description"`
	UploadedBy  string `json:"uploaded_by"`

	// Condition holds a book's condition or a note's format.
	Condition string `json:"condition,omitempty"`
	Edition   string `json:"edition,omitempty"`
	Semester  string `json:"semester,omitempty"`
	FileURL   string `json:"file_url,omitempty"`

	// CreatedAt is nil when the remote record carries no timestamp.
	CreatedAt *time.Time `json:"created_at,omitempty"`

	// Status is the raw flag; anything but 1 reads as unavailable.
	Status int `json:"status"`

	Tags        []string `json:"tags"`
	FavoritedBy []string `json:"favorited_by"`

	// CoverImages is nil when the record has no cover.
	CoverImages []string `json:"cover_images,omitempty"`

	// Extra carries remote fields this model does not know about.
	Extra map[string]any `json:"extra,omitempty"`
}

func (i ListingItem) Key() Key {
	return Key{Origin: i.Origin, ID: i.ID}
}

func (i ListingItem) Available() bool {
	return i.Status == StatusAvailable
}

// FavoritedByUser reports whether userID is in the favorited-by set.
func (i ListingItem) FavoritedByUser(userID string) bool {
	for _, u := range i.FavoritedBy {
		if u == userID {
			return true
		}
	}
	return false
}

// Clone returns a copy that shares no slices with i.
func (i ListingItem) Clone() ListingItem {
	c := i
	c.Tags = append([]string{}, i.Tags...)
	c.FavoritedBy = append([]string{}, i.FavoritedBy...)
	if i.CoverImages != nil {
		c.CoverImages = append([]string{}, i.CoverImages...)
	}
	if i.CreatedAt != nil {
		t := *i.CreatedAt
		c.CreatedAt = &t
	}
	if i.Extra != nil {
		c.Extra = make(map[string]any, len(i.Extra))
		for k, v := range i.Extra {
			c.Extra[k] = v
		}
	}
	return c
}
