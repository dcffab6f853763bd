package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/vantler/adcomply-backend/internal/platform/logger"
)

// EmbeddingCache stores review-example embedding vectors so the librarian
// does not re-embed the corpus on every lookup. A cache miss is never an
// error: callers fall through to the embeddings API.
type EmbeddingCache interface {
	Get(ctx context.Context, exampleID uuid.UUID) ([]float32, bool)
	Put(ctx context.Context, exampleID uuid.UUID, vec []float32)
	Close() error
}

type embeddingCache struct {
	log    *logger.Logger
	rdb    *goredis.Client
	prefix string
	ttl    time.Duration
}

func NewEmbeddingCache(log *logger.Logger) (EmbeddingCache, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	prefix := strings.TrimSpace(os.Getenv("REDIS_EMBED_PREFIX"))
	if prefix == "" {
		prefix = "embed:example:"
	}

	ttl := 24 * time.Hour
	if v := strings.TrimSpace(os.Getenv("REDIS_EMBED_TTL_HOURS")); v != "" {
		var hours int
		if _, err := fmt.Sscanf(v, "%d", &hours); err == nil && hours > 0 {
			ttl = time.Duration(hours) * time.Hour
		}
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

	return &embeddingCache{
		log:    log.With("service", "RedisEmbeddingCache"),
		rdb:    rdb,
		prefix: prefix,
		ttl:    ttl,
	}, nil
}

func (c *embeddingCache) key(exampleID uuid.UUID) string {
	return c.prefix + exampleID.String()
}

func (c *embeddingCache) Get(ctx context.Context, exampleID uuid.UUID) ([]float32, bool) {
	if c == nil || c.rdb == nil {
		return nil, false
	}
	raw, err := c.rdb.Get(ctx, c.key(exampleID)).Bytes()
	if err != nil {
		if err != goredis.Nil {
			c.log.Warn("embedding cache read failed", "error", err)
		}
		return nil, false
	}
	var vec []float32
	if err := json.Unmarshal(raw, &vec); err != nil {
		c.log.Warn("bad cached embedding payload, dropping", "error", err)
		_ = c.rdb.Del(ctx, c.key(exampleID)).Err()
		return nil, false
	}
	return vec, true
}

func (c *embeddingCache) Put(ctx context.Context, exampleID uuid.UUID, vec []float32) {
	if c == nil || c.rdb == nil || len(vec) == 0 {
		return
	}
	raw, err := json.Marshal(vec)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, c.key(exampleID), raw, c.ttl).Err(); err != nil {
		c.log.Warn("embedding cache write failed", "error", err)
	}
}

func (c *embeddingCache) Close() error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}
