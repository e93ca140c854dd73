package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/farm-market/internal/core/domain"
	"github.com/rl1809/farm-market/internal/port"
)

const (
	idempotencyKeyPrefix = "idem:"
	sessionKeyPrefix     = "session:"
	feedChannelPrefix    = "feed:"
	idempotencyKeyTTL    = 24 * time.Hour
)

type RedisAdapter struct {
	client *redis.Client
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

var (
	_ port.CacheRepository = (*RedisAdapter)(nil)
	_ port.ChangeFeed      = (*RedisAdapter)(nil)
)

func (r *RedisAdapter) SetIdempotency(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, idempotencyKeyPrefix+key, 1, idempotencyKeyTTL).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

func (r *RedisAdapter) ReleaseIdempotency(ctx context.Context, key string) error {
	return r.client.Del(ctx, idempotencyKeyPrefix+key).Err()
}

func (r *RedisAdapter) SaveSession(ctx context.Context, session domain.Session, ttl time.Duration) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return r.client.Set(ctx, sessionKeyPrefix+session.ID, raw, ttl).Err()
}

func (r *RedisAdapter) GetSession(ctx context.Context, id string) (domain.Session, error) {
	raw, err := r.client.Get(ctx, sessionKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Session{}, port.ErrNotFound
	}
	if err != nil {
		return domain.Session{}, err
	}

	var session domain.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return domain.Session{}, fmt.Errorf("decode session: %w", err)
	}
	return session, nil
}

func (r *RedisAdapter) DeleteSession(ctx context.Context, id string) error {
	return r.client.Del(ctx, sessionKeyPrefix+id).Err()
}

func (r *RedisAdapter) Publish(ctx context.Context, topic string, change domain.Change) error {
	raw, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("encode change: %w", err)
	}
	return r.client.Publish(ctx, feedChannelPrefix+topic, raw).Err()
}

func (r *RedisAdapter) Subscribe(ctx context.Context, topics ...string) (<-chan domain.Change, error) {
	channels := make([]string, len(topics))
	for i, t := range topics {
		channels[i] = feedChannelPrefix + t
	}

	sub := r.client.Subscribe(ctx, channels...)
	// Receive blocks until the subscription is confirmed, so nothing
	// published after Subscribe returns is missed.
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("subscribe %v: %w", topics, err)
	}

	out := make(chan domain.Change, 64)
	msgs := sub.Channel()
	go func() {
		defer close(out)
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var change domain.Change
				if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
					continue
				}
				select {
				case out <- change:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}
