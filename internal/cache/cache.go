package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss: ключа нет в кэше или он истёк.
var ErrCacheMiss = errors.New("cache miss")

const (
	defaultTTL       = 10 * time.Minute
	defaultMaxJitter = 2 * time.Minute
	keyPrefix        = "pdv:"
)

// jsonStore хранит значения в redis как JSON. Срок жизни размазывается
// случайным джиттером, чтобы справочники не истекали одновременно.
type jsonStore[T any] struct {
	client    redis.Cmdable
	namespace string
	ttl       time.Duration
	maxJitter time.Duration
}

func newJSONStore[T any](client redis.Cmdable, namespace string, ttl time.Duration) *jsonStore[T] {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	jitter := defaultMaxJitter
	if ttl < 4*jitter {
		jitter = ttl / 4
	}
	return &jsonStore[T]{client: client, namespace: namespace, ttl: ttl, maxJitter: jitter}
}

func (s *jsonStore[T]) key(id string) string {
	return fmt.Sprintf("%s%s:%s", keyPrefix, s.namespace, id)
}

func (s *jsonStore[T]) get(ctx context.Context, id string) (T, error) {
	var value T

	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return value, ErrCacheMiss
	}
	if err != nil {
		return value, fmt.Errorf("redis get failed: %w", err)
	}

	if err := json.Unmarshal(data, &value); err != nil {
		return value, fmt.Errorf("unmarshal %s failed: %w", s.namespace, err)
	}
	return value, nil
}

func (s *jsonStore[T]) set(ctx context.Context, id string, value T) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s failed: %w", s.namespace, err)
	}

	ttl := s.ttl
	if s.maxJitter > 0 {
		ttl += time.Duration(rand.Int63n(int64(s.maxJitter)))
	}
	if err := s.client.Set(ctx, s.key(id), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (s *jsonStore[T]) delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

// Ping проверяет доступность redis для health-проверки.
func Ping(client redis.Cmdable) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}
