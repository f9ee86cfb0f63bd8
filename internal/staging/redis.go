package staging

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// RedisStager stages keys in Redis so listing and detail visits can run on
// different workers.
type RedisStager struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedis connects to one or more comma-separated Redis URLs or addresses.
func NewRedis(ctx context.Context, redisURL string, ttl time.Duration) (*RedisStager, error) {
	if redisURL == "" {
		return nil, eris.New("staging: redis url must be provided")
	}
	opts, err := universalOptions(redisURL)
	if err != nil {
		return nil, eris.Wrap(err, "staging: parse redis url")
	}
	client := redis.NewUniversalClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, eris.Wrap(err, "staging: connect redis")
	}
	zap.L().Debug("staging: connected to redis", zap.Strings("addrs", opts.Addrs))
	return NewRedisFromClient(client, ttl), nil
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(client redis.UniversalClient, ttl time.Duration) *RedisStager {
	return &RedisStager{client: client, ttl: ttl}
}

func universalOptions(raw string) (*redis.UniversalOptions, error) {
	opts := &redis.UniversalOptions{}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !strings.Contains(part, "://") {
			opts.Addrs = append(opts.Addrs, part)
			continue
		}
		parsed, err := redis.ParseURL(part)
		if err != nil {
			return nil, err
		}
		opts.Addrs = append(opts.Addrs, parsed.Addr)
		if opts.Username == "" {
			opts.Username = parsed.Username
		}
		if opts.Password == "" {
			opts.Password = parsed.Password
		}
		if opts.DB == 0 {
			opts.DB = parsed.DB
		}
		if opts.TLSConfig == nil {
			opts.TLSConfig = parsed.TLSConfig
		}
	}
	if len(opts.Addrs) == 0 {
		return nil, eris.New("no redis addresses provided")
	}
	if len(opts.Addrs) > 1 {
		opts.DB = 0
	}
	return opts, nil
}

// Stage implements Stager.
func (r *RedisStager) Stage(ctx context.Context, key, value string) error {
	return eris.Wrapf(r.client.Set(ctx, key, value, r.ttl).Err(), "staging: set %s", key)
}

// ReadStage implements Stager.
func (r *RedisStager) ReadStage(ctx context.Context, key string) (string, bool, error) {
	v, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, eris.Wrapf(err, "staging: get %s", key)
	}
	return v, true, nil
}

// Consume implements Consumer.
func (r *RedisStager) Consume(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return eris.Wrap(r.client.Del(ctx, keys...).Err(), "staging: delete keys")
}

// Close closes the client.
func (r *RedisStager) Close() error {
	return r.client.Close()
}
