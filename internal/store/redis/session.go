package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/unilend/internal/auth"
	"github.com/MrSnakeDoc/unilend/internal/domain"
)

// SaveSession stores the identity behind a session token until ttl elapses.
func (s *Store) SaveSession(ctx context.Context, token string, ident domain.Identity, ttl time.Duration) error {
	data, err := json.Marshal(ident)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	// The per-user index lives as long as the newest session.
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, SessionKey(token), data, ttl)
		pipe.SAdd(ctx, UserSessionsKey(ident.UserID), token)
		pipe.Expire(ctx, UserSessionsKey(ident.UserID), ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// LookupSession returns the identity of a live session.
func (s *Store) LookupSession(ctx context.Context, token string) (domain.Identity, error) {
	data, err := s.client.Get(ctx, SessionKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Identity{}, auth.ErrTokenNotFound
		}
		return domain.Identity{}, fmt.Errorf("failed to get session: %w", err)
	}

	var ident domain.Identity
	if err := json.Unmarshal(data, &ident); err != nil {
		return domain.Identity{}, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return ident, nil
}

func (s *Store) DeleteSession(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, SessionKey(token)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteUserSessions revokes every session of userID. Index entries of
// already expired sessions are dropped without counting.
func (s *Store) DeleteUserSessions(ctx context.Context, userID string) (int, error) {
	tokens, err := s.client.SMembers(ctx, UserSessionsKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list sessions: %w", err)
	}

	keys := make([]string, len(tokens))
	for i, token := range tokens {
		keys[i] = SessionKey(token)
	}
	var del *redis.IntCmd
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(keys) > 0 {
			del = pipe.Del(ctx, keys...)
		}
		pipe.Del(ctx, UserSessionsKey(userID))
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to revoke sessions: %w", err)
	}
	if del == nil {
		return 0, nil
	}
	return int(del.Val()), nil
}

// SaveResetToken records a password reset request for email.
func (s *Store) SaveResetToken(ctx context.Context, token, email string, ttl time.Duration) error {
	if err := s.client.Set(ctx, ResetKey(token), email, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save reset token: %w", err)
	}
	return nil
}

// ConsumeResetToken returns the email of a reset token and deletes it.
func (s *Store) ConsumeResetToken(ctx context.Context, token string) (string, error) {
	email, err := s.client.GetDel(ctx, ResetKey(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", auth.ErrTokenNotFound
		}
		return "", fmt.Errorf("failed to consume reset token: %w", err)
	}
	return email, nil
}
