package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/surveylab/codeframe-backend/internal/platform/envutil"
	"github.com/surveylab/codeframe-backend/internal/platform/logger"
)

// ValidationCache memoizes validation results per (term, category). The
// engine itself is stateless; the cache lives entirely on the caller side.
type ValidationCache interface {
	Get(ctx context.Context, term, category string) ([]byte, bool, error)
	Set(ctx context.Context, term, category string, payload []byte) error
	Close() error
}

type validationCache struct {
	log *logger.Logger
	rdb *goredis.Client
	ttl time.Duration
}

func NewValidationCache(log *logger.Logger) (ValidationCache, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr := strings.TrimSpace(envutil.String("REDIS_ADDR", ""))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &validationCache{
		log: log.With("service", "ValidationCache"),
		rdb: rdb,
		ttl: envutil.Duration("VALIDATION_CACHE_TTL", 6*time.Hour),
	}, nil
}

func cacheKey(term, category string) string {
	h := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(term)) + "\x00" + strings.ToLower(strings.TrimSpace(category))))
	return "validation:" + hex.EncodeToString(h[:16])
}

func (c *validationCache) Get(ctx context.Context, term, category string) ([]byte, bool, error) {
	if c == nil || c.rdb == nil {
		return nil, false, fmt.Errorf("validation cache not initialized")
	}
	raw, err := c.rdb.Get(ctx, cacheKey(term, category)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

func (c *validationCache) Set(ctx context.Context, term, category string, payload []byte) error {
	if c == nil || c.rdb == nil {
		return fmt.Errorf("validation cache not initialized")
	}
	return c.rdb.Set(ctx, cacheKey(term, category), payload, c.ttl).Err()
}

func (c *validationCache) Close() error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}
