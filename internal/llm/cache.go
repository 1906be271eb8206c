package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"rxaudit/internal/config"
)

// Cache stores engine responses in Redis keyed by a hash of model + prompt.
// Cache errors are never fatal; a miss is returned instead.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewCache returns nil when no Redis address is configured, which disables
// caching entirely.
func NewCache(cfg config.RedisConfig, logger *zap.Logger) *Cache {
	if cfg.Addr == "" {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		logger.Warn("failed to connect to Redis, caching disabled", zap.Error(err))
		return nil
	}

	return &Cache{client: client, ttl: cfg.TTL.Std(), logger: logger}
}

func cacheKey(model, prompt string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + prompt))
	return "rxaudit:engine:" + hex.EncodeToString(sum[:])
}

func (c *Cache) Get(ctx context.Context, model, prompt string) (string, bool) {
	val, err := c.client.Get(ctx, cacheKey(model, prompt)).Result()
	if err == redis.Nil {
		return "", false
	}
	if err != nil {
		c.logger.Warn("redis get failed", zap.Error(err))
		return "", false
	}
	return val, true
}

func (c *Cache) Set(ctx context.Context, model, prompt, response string) {
	if err := c.client.Set(ctx, cacheKey(model, prompt), response, c.ttl).Err(); err != nil {
		c.logger.Warn("redis set failed", zap.Error(err))
	}
}

func (c *Cache) Close() error {
	return c.client.Close()
}
