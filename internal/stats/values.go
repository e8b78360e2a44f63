package stats

import (
	"context"
	"time"

	"github.com/redis/rueidis"
)

// Plain key/value helpers for the non-ranked state the aggregates carry
// alongside the buckets: processed-item markers, the install date and other
// one-off keys. Kept on the same client so everything shares one database.

// GetValue returns the value stored at key, or ok=false if absent.
func (s *Store) GetValue(ctx context.Context, key string) (string, bool, error) {
	value, err := s.client.Do(ctx, s.client.B().Get().Key(key).Build()).ToString()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return "", false, nil
		}

		return "", false, err
	}

	return value, true, nil
}

// SetValue stores value at key with an optional TTL. A zero ttl stores the
// value without expiry.
func (s *Store) SetValue(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl > 0 {
		return s.client.Do(ctx,
			s.client.B().Set().Key(key).Value(value).Ex(ttl).Build(),
		).Error()
	}

	return s.client.Do(ctx, s.client.B().Set().Key(key).Value(value).Build()).Error()
}

// SetValueIfAbsent stores value only when the key does not exist yet and
// reports whether the write happened. Used for single-flight markers.
func (s *Store) SetValueIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	builder := s.client.B().Set().Key(key).Value(value).Nx()

	var cmd rueidis.Completed
	if ttl > 0 {
		cmd = builder.Ex(ttl).Build()
	} else {
		cmd = builder.Build()
	}

	err := s.client.Do(ctx, cmd).Error()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return false, nil
		}

		return false, err
	}

	return true, nil
}

// DeleteValue removes the value stored at key, if any.
func (s *Store) DeleteValue(ctx context.Context, key string) error {
	return s.client.Do(ctx, s.client.B().Del().Key(key).Build()).Error()
}
