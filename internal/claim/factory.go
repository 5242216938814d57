package claim

import (
	"context"
	"fmt"
	"log/slog"

	"vidshrink/internal/config"
)

// Open builds the store selected by claims.backend. The returned close
// function is always non-nil.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Store, func() error, error) {
	noop := func() error { return nil }
	host := cfg.MachineName()
	switch cfg.Claims.Backend {
	case config.ClaimsDirectory, "":
		return NewDirStore(cfg.Paths.ClaimDir, host, WithLogger(logger)), noop, nil
	case config.ClaimsRedis:
		store, err := NewRedisStore(ctx, RedisOptions{
			Addr:     cfg.Claims.RedisAddr,
			Password: cfg.Claims.RedisPassword,
			DB:       cfg.Claims.RedisDB,
			Prefix:   cfg.Claims.RedisPrefix,
		}, host, WithLogger(logger))
		if err != nil {
			return nil, noop, err
		}
		return store, store.Close, nil
	default:
		return nil, noop, fmt.Errorf("unsupported claims backend %q", cfg.Claims.Backend)
	}
}
