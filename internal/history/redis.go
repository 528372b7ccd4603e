package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/twinlabs/twind/internal/persona"
)

// RedisStore keeps transcripts in Redis lists, one per user, so history
// survives restarts and can be shared between instances.
type RedisStore struct {
	client *redis.Client
	limit  int
	ttl    time.Duration
}

func NewRedisStore(addr string, limit int, ttl time.Duration) *RedisStore {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		limit:  limit,
		ttl:    ttl,
	}
}

func (s *RedisStore) key(user string) string {
	return "twin:history:" + user
}

// Ping verifies connectivity at startup.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Append(ctx context.Context, user string, msgs ...persona.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	values := make([]interface{}, 0, len(msgs))
	for _, m := range msgs {
		b, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("encoding history message: %w", err)
		}
		values = append(values, b)
	}

	key := s.key(user)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, values...)
	pipe.LTrim(ctx, key, int64(-s.limit), -1)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("appending history: %w", err)
	}
	return nil
}

func (s *RedisStore) Recent(ctx context.Context, user string) ([]persona.Message, error) {
	items, err := s.client.LRange(ctx, s.key(user), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("reading history: %w", err)
	}

	msgs := make([]persona.Message, 0, len(items))
	for _, item := range items {
		var m persona.Message
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			return nil, fmt.Errorf("decoding history message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

func (s *RedisStore) Clear(ctx context.Context, user string) error {
	if err := s.client.Del(ctx, s.key(user)).Err(); err != nil {
		return fmt.Errorf("clearing history: %w", err)
	}
	return nil
}
