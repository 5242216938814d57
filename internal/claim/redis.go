package claim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"vidshrink/internal/logging"
)

// RedisStore keeps claims as plain keys set with SETNX. Keys carry no TTL;
// abandoned claims are cleared by RecoverStale exactly like directory markers.
type RedisStore struct {
	client   *redis.Client
	prefix   string
	hostname string
	now      func() time.Time
	logger   *slog.Logger
}

// RedisOptions describes how to reach the Redis instance.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// NewRedisStore connects to Redis and verifies the connection with PING.
func NewRedisStore(ctx context.Context, ro RedisOptions, hostname string, opts ...Option) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     ro.Addr,
		Password: ro.Password,
		DB:       ro.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", ro.Addr, err)
	}
	return NewRedisStoreWithClient(client, ro.Prefix, hostname, opts...), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, prefix, hostname string, opts ...Option) *RedisStore {
	o := buildOptions(opts)
	if strings.TrimSpace(prefix) == "" {
		prefix = "vidshrink:claim:"
	}
	return &RedisStore{client: client, prefix: prefix, hostname: hostname, now: o.now, logger: o.logger}
}

// Close releases the underlying connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) redisKey(path string) string {
	return s.prefix + Key(path)
}

// Claim stores the payload with SETNX.
func (s *RedisStore) Claim(ctx context.Context, path string) (bool, error) {
	if canonicalPath(path) == "" {
		return false, ErrEmptyPath
	}
	data, err := encodePayload(s.hostname, path, s.now())
	if err != nil {
		return false, err
	}
	ok, err := s.client.SetNX(ctx, s.redisKey(path), data, 0).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	if ok {
		s.logger.Debug("claim acquired",
			logging.Video(path),
			logging.String("claim_key", Key(path)),
		)
	}
	return ok, nil
}

// Release deletes the key.
func (s *RedisStore) Release(ctx context.Context, path string) error {
	if canonicalPath(path) == "" {
		return ErrEmptyPath
	}
	if err := s.client.Del(ctx, s.redisKey(path)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// IsClaimed reports whether the key exists.
func (s *RedisStore) IsClaimed(ctx context.Context, path string) (bool, error) {
	if canonicalPath(path) == "" {
		return false, ErrEmptyPath
	}
	n, err := s.client.Exists(ctx, s.redisKey(path)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

// List scans every key under the prefix.
func (s *RedisStore) List(ctx context.Context) ([]Claim, error) {
	var claims []Claim
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 256).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		data, err := s.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("redis get %s: %w", key, err)
		}
		claims = append(claims, parseClaim(strings.TrimPrefix(key, s.prefix), key, data, time.Time{}))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan: %w", err)
	}
	sort.Slice(claims, func(i, j int) bool { return claims[i].Key < claims[j].Key })
	return claims, nil
}

// RecoverStale deletes keys older than maxAge and keys with corrupted payloads.
func (s *RedisStore) RecoverStale(ctx context.Context, maxAge time.Duration, dryRun bool) ([]Claim, error) {
	maxAge = normalizeMaxAge(maxAge)
	claims, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	var recovered []Claim
	for _, c := range claims {
		if !isStale(c, now, maxAge) {
			continue
		}
		if !dryRun {
			if err := s.client.Del(ctx, c.Location).Err(); err != nil {
				return recovered, fmt.Errorf("redis del %s: %w", c.Location, err)
			}
		}
		logRecovered(s.logger, c, dryRun)
		recovered = append(recovered, c)
	}
	return recovered, nil
}

var _ Store = (*RedisStore)(nil)
