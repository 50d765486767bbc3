package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when the requested session does not exist.
var ErrNotFound = errors.New("session not found")

// ErrCorrupt is returned when a stored session blob cannot be decoded.
var ErrCorrupt = errors.New("session record corrupt")

// ErrRedisUnavailable wraps transport-level Redis failures.
var ErrRedisUnavailable = errors.New("redis unavailable")

const minTTL = time.Second

// Store persists sessions in Redis. Each session lives under its own key
// with a TTL; a per-user set indexes live session ids for bulk revocation.
type Store struct {
	client redis.UniversalClient
	prefix string
}

// NewStore creates a session store using the given key prefix.
func NewStore(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "tgs"
	}
	return &Store{client: client, prefix: prefix}
}

func (s *Store) sessionKey(sessionID string) string {
	return s.prefix + ":sess:" + sessionID
}

func (s *Store) userKey(userID string) string {
	return s.prefix + ":user:" + userID
}

// Save writes sess with a TTL derived from its expiry and records it in the
// user index.
func (s *Store) Save(ctx context.Context, sess *Session) error {
	ttl := sess.TTL(time.Now())
	if ttl < minTTL {
		return errors.New("session already expired")
	}

	record := sessionRecord{
		Version:           schemaVersionCurrent,
		SessionID:         sess.SessionID,
		UserID:            sess.UserID,
		TeamID:            sess.TeamID,
		DeviceID:          sess.DeviceID,
		TwoFactorVerified: sess.TwoFactorVerified,
		Persistent:        sess.Persistent,
		CreatedAt:         sess.CreatedAt,
		ExpiresAt:         sess.ExpiresAt,
	}
	blob, err := json.Marshal(record)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.sessionKey(sess.SessionID), blob, ttl)
	pipe.SAdd(ctx, s.userKey(sess.UserID), sess.SessionID)
	pipe.Expire(ctx, s.userKey(sess.UserID), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrRedisUnavailable, err)
	}
	return nil
}

// Get loads the session for sessionID.
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	blob, err := s.client.Get(ctx, s.sessionKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRedisUnavailable, err)
	}

	var record sessionRecord
	if err := json.Unmarshal(blob, &record); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if record.Version != schemaVersionCurrent {
		return nil, fmt.Errorf("%w: unknown schema version %d", ErrCorrupt, record.Version)
	}

	return &Session{
		SessionID:         record.SessionID,
		UserID:            record.UserID,
		TeamID:            record.TeamID,
		DeviceID:          record.DeviceID,
		TwoFactorVerified: record.TwoFactorVerified,
		Persistent:        record.Persistent,
		CreatedAt:         record.CreatedAt,
		ExpiresAt:         record.ExpiresAt,
	}, nil
}

// Delete removes one session. Deleting an absent session is not an error;
// the bool reports whether it existed.
func (s *Store) Delete(ctx context.Context, userID, sessionID string) (bool, error) {
	pipe := s.client.TxPipeline()
	del := pipe.Del(ctx, s.sessionKey(sessionID))
	pipe.SRem(ctx, s.userKey(userID), sessionID)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("%w: %w", ErrRedisUnavailable, err)
	}
	return del.Val() > 0, nil
}

// DeleteAllForUser removes every live session recorded for userID and
// returns how many were deleted.
func (s *Store) DeleteAllForUser(ctx context.Context, userID string) (int, error) {
	ids, err := s.client.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrRedisUnavailable, err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, s.sessionKey(id))
	}
	keys = append(keys, s.userKey(userID))

	deleted, err := s.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrRedisUnavailable, err)
	}

	// The index key itself counts toward Del's total.
	n := int(deleted) - 1
	if n < 0 {
		n = 0
	}
	return n, nil
}
