package domain

import (
	"fmt"
	"strings"
)

// FavoriteWrite is the remote half of a favorite toggle: an atomic
// array-add or array-remove of one member, never a full overwrite.
type FavoriteWrite struct {
	Key    Key
	Field  string
	UserID string
	Add    bool
}

// OptimisticPatch pairs the locally applied favorited_by value with the
// write that should eventually make it true remotely.
type OptimisticPatch struct {
	Key         Key
	FavoritedBy []string
	Write       FavoriteWrite
}

// ToggleFavorite removes userID from the item's favorited-by set if present,
// otherwise adds it. Applying it twice restores the original set.
func ToggleFavorite(item ListingItem, userID string) OptimisticPatch {
	add := !item.FavoritedByUser(userID)

	next := make([]string, 0, len(item.FavoritedBy)+1)
	for _, u := range item.FavoritedBy {
		if u != userID {
			next = append(next, u)
		}
	}
	if add {
		next = append(next, userID)
	}

	return OptimisticPatch{
		Key:         item.Key(),
		FavoritedBy: next,
		Write: FavoriteWrite{
			Key:    item.Key(),
			Field:  FieldFavoritedBy,
			UserID: userID,
			Add:    add,
		},
	}
}

// StatusAction is a status transition requested by the listing owner.
type StatusAction string

const (
	ActionSold      StatusAction = "sold"
	ActionLent      StatusAction = "lent"
	ActionAvailable StatusAction = "available"
)

// IntentKind is the kind of remote write a status change produces.
type IntentKind int

const (
	IntentUpdateField IntentKind = iota
	IntentDelete
)

func (k IntentKind) String() string {
	if k == IntentDelete {
		return "delete"
	}
	return "update"
}

// StatusIntent describes the remote write for a status transition.
type StatusIntent struct {
	Key   Key
	Kind  IntentKind
	Field string
	Value int
}

// Destructive reports whether the intent deletes the remote document.
// Destructive intents must be confirmed by the caller before they run.
func (i StatusIntent) Destructive() bool {
	return i.Kind == IntentDelete
}

// UpdateStatus maps a requested transition to a remote write. "sold"
// deletes the document; "available" sets the flag to 1; any other
// non-empty action (e.g. "lent") sets it to 0.
func UpdateStatus(item ListingItem, action StatusAction) (StatusIntent, error) {
	a := StatusAction(strings.ToLower(strings.TrimSpace(string(action))))
	if a == "" {
		return StatusIntent{}, fmt.Errorf("no status selected")
	}

	if a == ActionSold {
		return StatusIntent{Key: item.Key(), Kind: IntentDelete}, nil
	}

	value := StatusUnavailable
	if a == ActionAvailable {
		value = StatusAvailable
	}
	return StatusIntent{
		Key:   item.Key(),
		Kind:  IntentUpdateField,
		Field: item.Origin.StatusField(),
		Value: value,
	}, nil
}
