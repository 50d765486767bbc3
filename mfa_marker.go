package teamgate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// mfaMarkerStore tracks devices with a pending MFA challenge. The marker is
// written when a sign-in enters the MFA step and cleared on successful
// verification; its TTL bounds how long a challenge stays answerable.
type mfaMarkerStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func newMfaMarkerStore(client redis.UniversalClient, ttl time.Duration) *mfaMarkerStore {
	return &mfaMarkerStore{client: client, ttl: ttl}
}

func (s *mfaMarkerStore) key(teamID, userID, deviceID string) string {
	return "pmm:" + teamID + ":" + userID + ":" + deviceID
}

func (s *mfaMarkerStore) Set(ctx context.Context, teamID, userID, deviceID string) error {
	if err := s.client.Set(ctx, s.key(teamID, userID, deviceID), "1", s.ttl).Err(); err != nil {
		return fmt.Errorf("%w: set: %w", ErrMarkerUnavailable, err)
	}
	return nil
}

func (s *mfaMarkerStore) Clear(ctx context.Context, teamID, userID, deviceID string) error {
	if err := s.client.Del(ctx, s.key(teamID, userID, deviceID)).Err(); err != nil {
		return fmt.Errorf("%w: clear: %w", ErrMarkerUnavailable, err)
	}
	return nil
}

func (s *mfaMarkerStore) Exists(ctx context.Context, teamID, userID, deviceID string) (bool, error) {
	err := s.client.Get(ctx, s.key(teamID, userID, deviceID)).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: check: %w", ErrMarkerUnavailable, err)
	}
	return true, nil
}
