package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/commhub/pkg/commhub"
	"github.com/dmitrymomot/commhub/pkg/logger"
	"github.com/dmitrymomot/commhub/pkg/messaging"
)

// RedisConfig configures the Redis client.
type RedisConfig struct {
	ConnectionURL  string        `env:"REDIS_URL"`                              // Empty disables the preference cache. Format: "redis://:password@localhost:6379/0".
	RetryAttempts  int           `env:"REDIS_RETRY_ATTEMPTS" envDefault:"3"`    // RetryAttempts is the number of attempts to connect.
	RetryInterval  time.Duration `env:"REDIS_RETRY_INTERVAL" envDefault:"5s"`   // RetryInterval is the delay between attempts.
	ConnectTimeout time.Duration `env:"REDIS_CONNECT_TIMEOUT" envDefault:"30s"` // ConnectTimeout bounds the whole connection phase.
	PreferenceTTL  time.Duration `env:"REDIS_PREFERENCE_TTL" envDefault:"10m"`  // PreferenceTTL is how long cached preferences live.
}

// ConnectRedis connects and pings, retrying until ConnectTimeout.
func ConnectRedis(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	opts, err := redis.ParseURL(cfg.ConnectionURL)
	if err != nil {
		return nil, errors.Join(ErrFailedToParseRedisConnString, err)
	}

	for range max(cfg.RetryAttempts, 1) {
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err == nil {
			return client, nil
		}
		_ = client.Close()

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrRedisNotReady, ctx.Err())
		case <-time.After(cfg.RetryInterval):
		}
	}
	return nil, ErrRedisNotReady
}

// RedisHealthcheck returns a check for health endpoints.
func RedisHealthcheck(client redis.UniversalClient) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := client.Ping(ctx).Err(); err != nil {
			return errors.Join(ErrHealthcheckFailed, err)
		}
		return nil
	}
}

// PreferenceCache is a read-through Redis cache in front of a preference repository.
// Users without stored preferences are not cached. Cache failures fall back to the
// repository and are only logged.
type PreferenceCache struct {
	next   commhub.PreferenceRepository
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
	logger *slog.Logger
}

// PreferenceCacheOption configures a PreferenceCache.
type PreferenceCacheOption func(*PreferenceCache)

// WithCacheTTL sets how long entries live.
func WithCacheTTL(ttl time.Duration) PreferenceCacheOption {
	return func(c *PreferenceCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithCachePrefix sets the key prefix.
func WithCachePrefix(prefix string) PreferenceCacheOption {
	return func(c *PreferenceCache) {
		if prefix != "" {
			c.prefix = prefix
		}
	}
}

// WithCacheLogger sets the logger.
func WithCacheLogger(l *slog.Logger) PreferenceCacheOption {
	return func(c *PreferenceCache) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewPreferenceCache wraps next with a Redis cache.
func NewPreferenceCache(next commhub.PreferenceRepository, client redis.UniversalClient, opts ...PreferenceCacheOption) *PreferenceCache {
	c := &PreferenceCache{
		next:   next,
		client: client,
		ttl:    10 * time.Minute,
		prefix: "commhub:prefs:",
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ commhub.PreferenceRepository = (*PreferenceCache)(nil)

// Preferences serves cached users from Redis and loads the rest from the repository.
func (c *PreferenceCache) Preferences(ctx context.Context, userIDs ...string) (map[string]messaging.Preferences, error) {
	out := make(map[string]messaging.Preferences, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}

	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = c.key(id)
	}

	misses := userIDs
	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		c.logger.LogAttrs(ctx, slog.LevelWarn, "preference cache read failed", logger.Error(err))
	} else {
		misses = misses[:0:0]
		for i, v := range values {
			s, ok := v.(string)
			if !ok {
				misses = append(misses, userIDs[i])
				continue
			}
			var p messaging.Preferences
			if err := json.Unmarshal([]byte(s), &p); err != nil {
				misses = append(misses, userIDs[i])
				continue
			}
			out[userIDs[i]] = p
		}
	}
	if len(misses) == 0 {
		return out, nil
	}

	loaded, err := c.next.Preferences(ctx, misses...)
	if err != nil {
		return nil, err
	}

	pipe := c.client.Pipeline()
	for id, p := range loaded {
		out[id] = p
		data, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("encode preferences of %s: %w", id, err)
		}
		pipe.Set(ctx, c.key(id), data, c.ttl)
	}
	if len(loaded) > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			c.logger.LogAttrs(ctx, slog.LevelWarn, "preference cache write failed", logger.Error(err))
		}
	}
	return out, nil
}

// SavePreferences writes to the repository and drops the cached copy.
func (c *PreferenceCache) SavePreferences(ctx context.Context, p messaging.Preferences) error {
	if err := c.next.SavePreferences(ctx, p); err != nil {
		return err
	}
	if err := c.client.Del(ctx, c.key(p.UserID)).Err(); err != nil {
		c.logger.LogAttrs(ctx, slog.LevelWarn, "preference cache invalidation failed",
			logger.UserID(p.UserID),
			logger.Error(err),
		)
	}
	return nil
}

func (c *PreferenceCache) key(userID string) string {
	return c.prefix + userID
}
