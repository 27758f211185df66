package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/unilend/internal/docstore"
	"github.com/MrSnakeDoc/unilend/internal/id"
	"github.com/MrSnakeDoc/unilend/internal/logger"
)

// maxTxAttempts bounds optimistic transaction retries under contention.
const maxTxAttempts = 8

// Store is the redis-backed docstore.Store. Documents are JSON strings, each
// collection keeps a set of its ids, and every write publishes the document
// id on the collection's change channel.
type Store struct {
	client *redis.Client
	log    logger.Logger
}

// NewStore creates a new Redis store
func NewStore(client *redis.Client, log logger.Logger) *Store {
	if log == nil {
		log = logger.Nop()
	}
	return &Store{
		client: client,
		log:    log,
	}
}

// Ping checks the connection, used by readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Create(ctx context.Context, collection string, fields map[string]any) (string, error) {
	docID := id.Document()
	if err := s.Put(ctx, collection, docID, fields); err != nil {
		return "", err
	}
	return docID, nil
}

// Put stores fields under a caller-chosen id, replacing any existing document.
func (s *Store) Put(ctx context.Context, collection, docID string, fields map[string]any) error {
	data, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("failed to marshal %s/%s: %w", collection, docID, err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, DocKey(collection, docID), data, 0)
		pipe.SAdd(ctx, CollectionKey(collection), docID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save %s/%s: %w", collection, docID, err)
	}

	s.notify(ctx, collection, docID)
	return nil
}

func (s *Store) Get(ctx context.Context, collection, docID string) (docstore.Document, error) {
	data, err := s.client.Get(ctx, DocKey(collection, docID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return docstore.Document{}, fmt.Errorf("%s/%s: %w", collection, docID, docstore.ErrNotFound)
		}
		return docstore.Document{}, fmt.Errorf("failed to get %s/%s: %w", collection, docID, err)
	}

	fields, err := decodeFields(data)
	if err != nil {
		return docstore.Document{}, fmt.Errorf("failed to unmarshal %s/%s: %w", collection, docID, err)
	}
	return docstore.Document{ID: docID, Fields: fields}, nil
}

// Query loads every document of collection and keeps those matching preds.
// Ids whose document vanished between SMEMBERS and MGET are skipped.
func (s *Store) Query(ctx context.Context, collection string, preds ...docstore.Predicate) ([]docstore.Document, error) {
	ids, err := s.client.SMembers(ctx, CollectionKey(collection)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get %s ids: %w", collection, err)
	}

	docs := make([]docstore.Document, 0, len(ids))
	if len(ids) == 0 {
		return docs, nil
	}

	keys := make([]string, len(ids))
	for i, docID := range ids {
		keys[i] = DocKey(collection, docID)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", collection, err)
	}

	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		fields, err := decodeFields([]byte(raw))
		if err != nil {
			s.log.Warn("skipping undecodable document",
				logger.String("collection", collection),
				logger.String("id", ids[i]),
				logger.Error(err))
			continue
		}
		if docstore.MatchAll(fields, preds...) {
			docs = append(docs, docstore.Document{ID: ids[i], Fields: fields})
		}
	}

	docstore.SortByID(docs)
	return docs, nil
}

// Update applies muts inside a WATCH/MULTI transaction, retrying when
// another writer changed the document in between.
func (s *Store) Update(ctx context.Context, collection, docID string, muts ...docstore.Mutation) error {
	key := DocKey(collection, docID)

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return fmt.Errorf("%s/%s: %w", collection, docID, docstore.ErrNotFound)
			}
			return err
		}
		fields, err := decodeFields(data)
		if err != nil {
			return fmt.Errorf("failed to unmarshal %s/%s: %w", collection, docID, err)
		}

		next, err := json.Marshal(docstore.Apply(fields, muts...))
		if err != nil {
			return fmt.Errorf("failed to marshal %s/%s: %w", collection, docID, err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, 0)
			return nil
		})
		return err
	}

	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			s.log.Debug("update conflict, retrying",
				logger.String("key", key),
				logger.Int("attempt", attempt))
			continue
		}
		if err != nil {
			if errors.Is(err, docstore.ErrNotFound) {
				return err
			}
			return fmt.Errorf("failed to update %s/%s: %w", collection, docID, err)
		}
		s.notify(ctx, collection, docID)
		return nil
	}
	return fmt.Errorf("failed to update %s/%s: gave up after %d conflicting attempts", collection, docID, maxTxAttempts)
}

func (s *Store) Delete(ctx context.Context, collection, docID string) error {
	var del *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, DocKey(collection, docID))
		pipe.SRem(ctx, CollectionKey(collection), docID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", collection, docID, err)
	}
	if del.Val() == 0 {
		return fmt.Errorf("%s/%s: %w", collection, docID, docstore.ErrNotFound)
	}

	s.notify(ctx, collection, docID)
	return nil
}

// notify publishes a change. A lost notification only delays watchers
// until the next write, so failures are logged and not returned.
func (s *Store) notify(ctx context.Context, collection, docID string) {
	if err := s.client.Publish(ctx, ChangesChannel(collection), docID).Err(); err != nil {
		s.log.Warn("failed to publish change",
			logger.String("collection", collection),
			logger.String("id", docID),
			logger.Error(err))
	}
}

func decodeFields(data []byte) (map[string]any, error) {
	fields := make(map[string]any)
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}
