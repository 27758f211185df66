package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/unilend/internal/docstore"
	"github.com/MrSnakeDoc/unilend/internal/logger"
)

// Watch subscribes to the collection's change channel before taking the
// first snapshot, so no write between the two is missed. Each notification
// re-runs the query; notifications that piled up meanwhile collapse into one
// snapshot.
func (s *Store) Watch(ctx context.Context, collection string, pred docstore.Predicate) (docstore.Subscription, error) {
	pubsub := s.client.Subscribe(ctx, ChangesChannel(collection))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", collection, err)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	feed := docstore.NewFeed(func() {
		cancel()
		_ = pubsub.Close()
	})

	docs, err := s.Query(watchCtx, collection, pred)
	if err != nil {
		feed.Close()
		return nil, err
	}
	feed.Publish(docs)

	go s.follow(watchCtx, feed, pubsub.Channel(), collection, pred)
	return feed, nil
}

func (s *Store) follow(ctx context.Context, feed *docstore.Feed, changes <-chan *redis.Message, collection string, pred docstore.Predicate) {
	for {
		select {
		case <-ctx.Done():
			feed.Close()
			return
		case _, ok := <-changes:
			if !ok {
				feed.Fail(docstore.ErrClosed)
				return
			}
			drain(changes)

			docs, err := s.Query(ctx, collection, pred)
			if err != nil {
				if ctx.Err() != nil {
					feed.Close()
					return
				}
				s.log.Warn("live query failed",
					logger.String("collection", collection),
					logger.String("predicate", pred.String()),
					logger.Error(err))
				feed.Fail(err)
				return
			}
			feed.Publish(docs)
		}
	}
}

func drain(changes <-chan *redis.Message) {
	for {
		select {
		case _, ok := <-changes:
			if !ok {
				return
			}
		default:
			return
		}
	}
}
