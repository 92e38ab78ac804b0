package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "orderengine:idem:"

// RedisStore keeps entries as JSON values whose Redis TTL matches the entry expiry.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore constructs a RedisStore over the given client.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client, prefix: redisKeyPrefix}
}

func (s *RedisStore) redisKey(key string) string {
	return s.prefix + documentID(key)
}

func (s *RedisStore) load(ctx context.Context, id string) (Entry, bool, error) {
	raw, err := s.client.Get(ctx, id).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("idempotency: redis get: %w", err)
	}
	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return Entry{}, false, fmt.Errorf("idempotency: decode entry: %w", err)
	}
	return entry, true, nil
}

// Claim implements Store with SET NX so only one request acquires the key.
func (s *RedisStore) Claim(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Claim, Entry, error) {
	id := s.redisKey(key)
	entry := newEntry(key, fingerprint, now.UTC(), ttl)
	payload, err := json.Marshal(entry)
	if err != nil {
		return ClaimInFlight, Entry{}, fmt.Errorf("idempotency: encode entry: %w", err)
	}
	acquired, err := s.client.SetNX(ctx, id, payload, ttlOrDefault(ttl)).Result()
	if err != nil {
		return ClaimInFlight, Entry{}, fmt.Errorf("idempotency: redis setnx: %w", err)
	}
	if acquired {
		return ClaimAcquired, entry, nil
	}
	existing, ok, err := s.load(ctx, id)
	if err != nil {
		return ClaimInFlight, Entry{}, err
	}
	if !ok {
		// expired between SETNX and GET; the caller may retry
		return ClaimInFlight, Entry{}, nil
	}
	claim, err := classify(existing, fingerprint)
	return claim, existing, err
}

// Complete implements Store.
func (s *RedisStore) Complete(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	id := s.redisKey(key)
	existing, ok, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if ok && existing.Fingerprint != fingerprint {
		return ErrFingerprintMismatch
	}
	if !ok {
		existing = Entry{Key: key, Fingerprint: fingerprint}
	}
	payload, err := json.Marshal(completeEntry(existing, resp, now.UTC(), ttl))
	if err != nil {
		return fmt.Errorf("idempotency: encode entry: %w", err)
	}
	if err := s.client.Set(ctx, id, payload, ttlOrDefault(ttl)).Err(); err != nil {
		return fmt.Errorf("idempotency: redis set: %w", err)
	}
	return nil
}

// Release implements Store.
func (s *RedisStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.redisKey(key)).Err(); err != nil {
		return fmt.Errorf("idempotency: redis del: %w", err)
	}
	return nil
}

// Purge is a no-op: Redis expires entries on its own.
func (s *RedisStore) Purge(context.Context, time.Time, int) (int, error) {
	return 0, nil
}
