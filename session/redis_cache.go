package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisCache keeps JSON snapshots of sessions in Redis so a restarted
// process (or a read-only observer) can inspect recent conversation
// state. It is a cache, not the source of truth: the live Session in
// memory always wins.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// RedisCacheConfig configures the snapshot cache.
type RedisCacheConfig struct {
	Addr     string        `yaml:"addr" json:"addr"`
	Password string        `yaml:"password" json:"password"`
	DB       int           `yaml:"db" json:"db"`
	TTL      time.Duration `yaml:"ttl" json:"ttl"`
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(cfg RedisCacheConfig, logger *zap.Logger) (*RedisCache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisCache{
		client: client,
		ttl:    ttl,
		logger: logger.With(zap.String("component", "session_cache")),
	}, nil
}

func snapshotKey(id string) string {
	return "datamind:session:" + id
}

// Save stores a JSON snapshot of the session.
func (c *RedisCache) Save(ctx context.Context, sess *Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	return c.client.Set(ctx, snapshotKey(sess.ID), data, c.ttl).Err()
}

// Load reads a session snapshot back.
func (c *RedisCache) Load(ctx context.Context, id string) (*Session, error) {
	data, err := c.client.Get(ctx, snapshotKey(id)).Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to load session snapshot: %w", err)
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session snapshot: %w", err)
	}
	return &sess, nil
}

// Delete drops a session snapshot.
func (c *RedisCache) Delete(ctx context.Context, id string) error {
	return c.client.Del(ctx, snapshotKey(id)).Err()
}

// Close closes the underlying Redis client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
