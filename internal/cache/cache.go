// Package cache holds the per-flow attachments (PKCE verifier, nonce, SAML
// request ID) that providers need back once the redirect arrives.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/marcogenualdo/sso-relay/internal/config"
)

var ErrNotFound = errors.New("key not found")

type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Take returns the value and removes it in one step. Two concurrent
	// Takes of the same key never both succeed.
	Take(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}

func New(cfg config.CacheConfig, logger *slog.Logger) (Cache, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Type {
	case "memory":
		logger.Debug("using in-memory cache", "cleanup_interval", cfg.CleanupInterval)
		return NewMemoryCache(cfg.CleanupInterval), nil
	case "redis":
		if cfg.Redis == nil {
			return nil, errors.New("redis config is required for redis cache type")
		}
		logger.Debug("using redis cache", "address", cfg.Redis.Address, "db", cfg.Redis.DB)
		return NewRedisCache(*cfg.Redis)
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}
