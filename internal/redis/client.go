package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/CR-AudioViz-AI/market-oracle-app-sub001/internal/config"
	"github.com/CR-AudioViz-AI/market-oracle-app-sub001/internal/models"
)

const latestRunKey = "oracle:picks:latest"

// ErrCacheMiss is returned when no run has been cached yet
var ErrCacheMiss = errors.New("cache miss")

// Client wraps the Redis client with pipeline-run caching
type Client struct {
	rdb *redis.Client
	ttl time.Duration
}

// New creates a new Redis client
func New(cfg config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Address(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewFromClient(rdb, cfg.TTL), nil
}

// NewFromClient wraps an existing go-redis client
func NewFromClient(rdb *redis.Client, ttl time.Duration) *Client {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Client{rdb: rdb, ttl: ttl}
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks if Redis is reachable
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// SetLatestRun caches run as the most recent pipeline run
func (c *Client) SetLatestRun(ctx context.Context, run *models.PipelineRun) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal pipeline run: %w", err)
	}
	if err := c.rdb.Set(ctx, latestRunKey, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache pipeline run: %w", err)
	}
	return nil
}

// GetLatestRun returns the cached run, or ErrCacheMiss
func (c *Client) GetLatestRun(ctx context.Context) (*models.PipelineRun, error) {
	data, err := c.rdb.Get(ctx, latestRunKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cached run: %w", err)
	}

	var run models.PipelineRun
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached run: %w", err)
	}
	return &run, nil
}
