package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	predis "github.com/RaghuChandrasekaran/kubecon-india-2025/internal/platform/redis"
)

const defaultRedisPrefix = "idem:"

// RedisStore keeps one JSON record per key and lets Redis expire it. It shares the cart store's client.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore constructs a Redis-backed idempotency store. An empty prefix selects "idem:".
func NewRedisStore(client redis.UniversalClient, prefix string) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("idempotency: redis client is required")
	}
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}, nil
}

// Reserve claims the key with SET NX. When the key is taken the stored record decides the outcome.
func (s *RedisStore) Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	redisKey := s.key(key)
	pending := newPendingRecord(key, fingerprint, now.UTC(), ttl)
	payload, err := json.Marshal(pending)
	if err != nil {
		return Reservation{}, fmt.Errorf("idempotency: encode record: %w", err)
	}

	// a second pass covers a record expiring between SET NX and GET
	for attempt := 0; attempt < 2; attempt++ {
		claimed, err := s.client.SetNX(ctx, redisKey, payload, ttl).Result()
		if err != nil {
			return Reservation{}, predis.WrapError("idempotency.reserve", err)
		}
		if claimed {
			return Reservation{State: ReservationStateNew, Record: pending}, nil
		}

		data, err := s.client.Get(ctx, redisKey).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return Reservation{}, predis.WrapError("idempotency.reserve", err)
		}
		var record Record
		if err := json.Unmarshal(data, &record); err != nil {
			return Reservation{}, fmt.Errorf("idempotency: decode record %s: %w", redisKey, err)
		}
		return classify(record, fingerprint)
	}
	return Reservation{}, fmt.Errorf("idempotency: could not reserve key %q", key)
}

// SaveResponse stores the completed response, failing when the key belongs to another fingerprint.
func (s *RedisStore) SaveResponse(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	redisKey := s.key(key)

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		record := Record{Key: key, Fingerprint: fingerprint}
		data, err := tx.Get(ctx, redisKey).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			if err := json.Unmarshal(data, &record); err != nil {
				return fmt.Errorf("idempotency: decode record %s: %w", redisKey, err)
			}
			if record.Fingerprint != fingerprint {
				return ErrFingerprintMismatch
			}
		}

		payload, err := json.Marshal(completeRecord(record, resp, now.UTC(), ttl))
		if err != nil {
			return fmt.Errorf("idempotency: encode record: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, redisKey, payload, ttl)
			return nil
		})
		return err
	}, redisKey)
	return s.wrap("idempotency.save", err)
}

// Release removes the reservation when it is still held by fingerprint.
func (s *RedisStore) Release(ctx context.Context, key, fingerprint string) error {
	redisKey := s.key(key)

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, redisKey).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		var record Record
		if err := json.Unmarshal(data, &record); err == nil && record.Fingerprint != fingerprint {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, redisKey)
			return nil
		})
		return err
	}, redisKey)
	return s.wrap("idempotency.release", err)
}

// CleanupExpired is a no-op; Redis expires records on its own.
func (s *RedisStore) CleanupExpired(context.Context, time.Time, int) (int, error) {
	return 0, nil
}

func (s *RedisStore) key(key string) string {
	return s.prefix + compositeKey(key)
}

func (s *RedisStore) wrap(op string, err error) error {
	if err == nil || errors.Is(err, ErrFingerprintMismatch) {
		return err
	}
	return predis.WrapError(op, err)
}
