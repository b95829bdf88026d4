package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/medianamer-platform/medianamer/internal/config"
	"github.com/medianamer-platform/medianamer/internal/metrics"
)

// ArtifactType names the three cached artifact families. Each has its own
// TTL: content analysis ages slowest, suggestions fastest.
type ArtifactType string

const (
	TypeContentAnalysis ArtifactType = "content_analysis"
	TypeContext         ArtifactType = "context"
	TypeSuggestions     ArtifactType = "suggestions"
)

const (
	entryPrefix = "cache:"
	indexPrefix = "cacheidx:"
)

// Key derives a content-addressed cache key from resource identity and its
// last-modified signal. Any mutation of the resource yields a new key, so
// stale reads fall away without explicit bookkeeping.
func Key(resourceID string, modifiedAt time.Time) string {
	sum := sha256.Sum256([]byte(resourceID + ":" + fmt.Sprintf("%d", modifiedAt.UTC().Unix())))
	return hex.EncodeToString(sum[:16])
}

// Manager is the Redis-backed cache for analysis, context, and suggestion
// artifacts. When disabled via config, Get always misses and Set is a no-op.
type Manager struct {
	rdb redis.Cmdable
	cfg config.CacheConfig
}

func NewManager(rdb redis.Cmdable, cfg config.CacheConfig) *Manager {
	return &Manager{rdb: rdb, cfg: cfg}
}

// Get loads the cached payload for (typ, key) into dest. It returns false
// on a miss; expired entries are treated as absent.
func (m *Manager) Get(ctx context.Context, typ ArtifactType, key string, dest any) (bool, error) {
	if !m.cfg.Enabled {
		return false, nil
	}

	data, err := m.rdb.Get(ctx, entryKey(typ, key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			metrics.CacheLookupsTotal.WithLabelValues(string(typ), "miss").Inc()
			return false, nil
		}
		return false, fmt.Errorf("cache get %s/%s: %w", typ, key, err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("unmarshaling cached %s: %w", typ, err)
	}

	metrics.CacheLookupsTotal.WithLabelValues(string(typ), "hit").Inc()
	return true, nil
}

// Set stores payload under (typ, key) with the type's TTL and records the
// key in the resource index so Invalidate can purge it later.
func (m *Manager) Set(ctx context.Context, typ ArtifactType, key, resourceID string, payload any) error {
	if !m.cfg.Enabled {
		return nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling %s payload: %w", typ, err)
	}

	ttl := m.ttl(typ)

	pipe := m.rdb.Pipeline()
	pipe.Set(ctx, entryKey(typ, key), data, ttl)
	pipe.SAdd(ctx, indexKey(resourceID), entryKey(typ, key))
	// Index lives as long as the longest-lived entry could.
	pipe.Expire(ctx, indexKey(resourceID), m.maxTTL())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache set %s/%s: %w", typ, key, err)
	}
	return nil
}

// Invalidate purges every cached artifact recorded for the resource and
// returns how many entries were removed. Used after a committed rename.
func (m *Manager) Invalidate(ctx context.Context, resourceID string) (int, error) {
	if !m.cfg.Enabled {
		return 0, nil
	}

	idx := indexKey(resourceID)
	keys, err := m.rdb.SMembers(ctx, idx).Result()
	if err != nil {
		return 0, fmt.Errorf("reading cache index for %s: %w", resourceID, err)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	removed, err := m.rdb.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("purging cache entries for %s: %w", resourceID, err)
	}
	if err := m.rdb.Del(ctx, idx).Err(); err != nil {
		return int(removed), fmt.Errorf("purging cache index for %s: %w", resourceID, err)
	}
	return int(removed), nil
}

func (m *Manager) ttl(typ ArtifactType) time.Duration {
	switch typ {
	case TypeContentAnalysis:
		return m.cfg.ContentTTL
	case TypeContext:
		return m.cfg.ContextTTL
	default:
		return m.cfg.SuggestionsTTL
	}
}

func (m *Manager) maxTTL() time.Duration {
	ttl := m.cfg.ContentTTL
	if m.cfg.ContextTTL > ttl {
		ttl = m.cfg.ContextTTL
	}
	if m.cfg.SuggestionsTTL > ttl {
		ttl = m.cfg.SuggestionsTTL
	}
	return ttl
}

func entryKey(typ ArtifactType, key string) string {
	return entryPrefix + string(typ) + ":" + key
}

func indexKey(resourceID string) string {
	return indexPrefix + resourceID
}
