package livelist

import (
	"github.com/MrSnakeDoc/unilend/internal/docstore"
	"github.com/MrSnakeDoc/unilend/internal/domain"
)

// Sources holds the predicate each collection is watched with.
type Sources struct {
	Books docstore.Predicate
	Notes docstore.Predicate
}

// For returns the predicate for origin.
func (s Sources) For(origin domain.Origin) docstore.Predicate {
	if origin == domain.OriginNote {
		return s.Notes
	}
	return s.Books
}

// Same applies one predicate to both collections.
func Same(p docstore.Predicate) Sources {
	return Sources{Books: p, Notes: p}
}

// UploadedBy selects the listings a user uploaded.
func UploadedBy(email string) Sources {
	return Same(docstore.Where(domain.FieldUploadedBy, docstore.OpEqual, email))
}

// FavoritedBy selects the listings a user favorited.
func FavoritedBy(email string) Sources {
	return Same(docstore.Where(domain.FieldFavoritedBy, docstore.OpArrayContains, email))
}

// NotUploadedBy selects everyone else's listings.
func NotUploadedBy(email string) Sources {
	return Same(docstore.Where(domain.FieldUploadedBy, docstore.OpNotEqual, email))
}
