package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/grupoimpulso/seat-sales/internal/core/domain"
)

type RedisAdapter struct {
	client *redis.Client
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

func (r *RedisAdapter) SetIdempotency(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, key, 1, ttl).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

func (r *RedisAdapter) ClearIdempotency(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

func (r *RedisAdapter) GetListing(ctx context.Context, key string) (*domain.Listing, error) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var l domain.Listing
	if err := json.Unmarshal(raw, &l); err != nil {
		return nil, fmt.Errorf("decode cached listing: %w", err)
	}
	return &l, nil
}

func (r *RedisAdapter) SetListing(ctx context.Context, key string, listing domain.Listing, ttl time.Duration) error {
	raw, err := json.Marshal(listing)
	if err != nil {
		return fmt.Errorf("encode listing: %w", err)
	}
	return r.client.Set(ctx, key, raw, ttl).Err()
}

func (r *RedisAdapter) InvalidateListings(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return r.client.Del(ctx, keys...).Err()
}
