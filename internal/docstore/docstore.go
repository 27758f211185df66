// Package docstore defines the contract of the remote document store the
// marketplace reads and writes: named collections of schemaless documents,
// live queries delivering full snapshots, and atomic partial updates.
package docstore

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("document not found")
	ErrClosed   = errors.New("subscription closed")
)

// Document is one record of a collection.
type Document struct {
	ID     string
	Fields map[string]any
}

// Subscription is a live query. Snapshots delivers the complete matching
// set, first immediately and then after every change to the collection.
// Intermediate snapshots may be skipped when the consumer is slow; the
// latest one is always delivered. When the channel closes, Err reports
// why (nil after Close).
type Subscription interface {
	Snapshots() <-chan []Document
	Err() error
	Close()
}

// Store is implemented by the memory and redis backends.
type Store interface {
	Create(ctx context.Context, collection string, fields map[string]any) (string, error)
	Get(ctx context.Context, collection, id string) (Document, error)
	Query(ctx context.Context, collection string, preds ...Predicate) ([]Document, error)
	Update(ctx context.Context, collection, id string, muts ...Mutation) error
	Delete(ctx context.Context, collection, id string) error
	Watch(ctx context.Context, collection string, pred Predicate) (Subscription, error)
}
