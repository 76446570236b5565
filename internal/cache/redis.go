package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/axellelanca/campaignshortener/internal/models"
)

const (
	// CampaignPrefix is the prefix for campaign keys in Redis
	CampaignPrefix = "campaign:code:"
	DefaultTTL     = 10 * time.Minute
)

// CampaignCache is a cache-aside store for campaign lookups. Get returns nil, nil on a miss.
type CampaignCache interface {
	Get(ctx context.Context, shortCode string) (*models.Campaign, error)
	Set(ctx context.Context, campaign *models.Campaign) error
	Delete(ctx context.Context, shortCode string) error
}

// RedisCache wraps the Redis client
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache connects and pings Redis.
func NewRedisCache(addr, password string, db int, ttl time.Duration) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisCacheWithClient(client, ttl), nil
}

func NewRedisCacheWithClient(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCache{client: client, ttl: ttl}
}

func (r *RedisCache) Get(ctx context.Context, shortCode string) (*models.Campaign, error) {
	val, err := r.client.Get(ctx, CampaignPrefix+shortCode).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get from Redis: %w", err)
	}
	var c models.Campaign
	if err := json.Unmarshal(val, &c); err != nil {
		return nil, fmt.Errorf("failed to decode cached campaign: %w", err)
	}
	return &c, nil
}

func (r *RedisCache) Set(ctx context.Context, campaign *models.Campaign) error {
	payload, err := json.Marshal(campaign)
	if err != nil {
		return fmt.Errorf("failed to encode campaign: %w", err)
	}
	if err := r.client.Set(ctx, CampaignPrefix+campaign.ShortCode, payload, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set in Redis: %w", err)
	}
	return nil
}

func (r *RedisCache) Delete(ctx context.Context, shortCode string) error {
	if err := r.client.Del(ctx, CampaignPrefix+shortCode).Err(); err != nil {
		return fmt.Errorf("failed to delete from Redis: %w", err)
	}
	return nil
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}

// NoopCache is used when no Redis address is configured.
type NoopCache struct{}

func (NoopCache) Get(context.Context, string) (*models.Campaign, error) { return nil, nil }
func (NoopCache) Set(context.Context, *models.Campaign) error           { return nil }
func (NoopCache) Delete(context.Context, string) error                  { return nil }
