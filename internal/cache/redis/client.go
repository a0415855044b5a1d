package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/eda-agent/backend/pkg/logger"
)

// Client is a best-effort cache in front of the profile and plot stores.
// Every miss or redis failure falls back to the filesystem, so the cache is
// never a correctness dependency.
type Client struct {
	client *redis.Client
	ttl    time.Duration
}

func NewClient(host string, port int, password string, db int, ttl time.Duration) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis cache initialized", zap.String("addr", fmt.Sprintf("%s:%d", host, port)))

	return &Client{client: client, ttl: ttl}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) SetProfile(ctx context.Context, datasetID string, data []byte) error {
	err := c.client.Set(ctx, profileKey(datasetID), data, c.ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to cache profile: %w", err)
	}

	logger.Debug("Profile cached", zap.String("dataset", datasetID))
	return nil
}

func (c *Client) GetProfile(ctx context.Context, datasetID string) ([]byte, bool, error) {
	data, err := c.client.Get(ctx, profileKey(datasetID)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read profile cache: %w", err)
	}

	logger.Debug("Profile cache hit", zap.String("dataset", datasetID))
	return data, true, nil
}

func (c *Client) DelProfile(ctx context.Context, datasetID string) error {
	return c.client.Del(ctx, profileKey(datasetID)).Err()
}

// SetArtifact caches the metadata of a rendered plot under its content key.
func (c *Client) SetArtifact(ctx context.Context, key string, meta interface{}) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal artifact meta: %w", err)
	}

	err = c.client.Set(ctx, artifactKey(key), data, c.ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to cache artifact meta: %w", err)
	}
	return nil
}

func (c *Client) GetArtifact(ctx context.Context, key string, meta interface{}) (bool, error) {
	data, err := c.client.Get(ctx, artifactKey(key)).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read artifact cache: %w", err)
	}

	if err := json.Unmarshal(data, meta); err != nil {
		return false, fmt.Errorf("failed to unmarshal artifact meta: %w", err)
	}

	logger.Debug("Artifact cache hit", zap.String("key", key))
	return true, nil
}

func profileKey(datasetID string) string {
	return fmt.Sprintf("profile:%s", datasetID)
}

func artifactKey(key string) string {
	return fmt.Sprintf("plot:%s", key)
}
