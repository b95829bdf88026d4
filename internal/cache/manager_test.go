package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medianamer-platform/medianamer/internal/config"
)

func testCacheCfg() config.CacheConfig {
	return config.CacheConfig{
		Enabled:        true,
		ContentTTL:     24 * time.Hour,
		ContextTTL:     6 * time.Hour,
		SuggestionsTTL: time.Hour,
	}
}

func setupManager(t *testing.T, cfg config.CacheConfig) (*Manager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewManager(client, cfg), mr
}

func TestKey_Deterministic(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, Key("res-1", at), Key("res-1", at))
	assert.NotEqual(t, Key("res-1", at), Key("res-2", at))
	// A resource mutation produces a new key.
	assert.NotEqual(t, Key("res-1", at), Key("res-1", at.Add(time.Second)))
}

func TestRoundTrip(t *testing.T) {
	m, _ := setupManager(t, testCacheCfg())
	ctx := context.Background()
	key := Key("res-1", time.Now())

	payload := []string{"garden-bench-oak", "outdoor-seating-bench"}
	require.NoError(t, m.Set(ctx, TypeSuggestions, key, "res-1", payload))

	var got []string
	hit, err := m.Get(ctx, TypeSuggestions, key, &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, payload, got)
}

func TestGet_MissAfterTTL(t *testing.T) {
	m, mr := setupManager(t, testCacheCfg())
	ctx := context.Background()
	key := Key("res-1", time.Now())

	require.NoError(t, m.Set(ctx, TypeSuggestions, key, "res-1", []string{"a"}))

	mr.FastForward(time.Hour + time.Minute)

	var got []string
	hit, err := m.Get(ctx, TypeSuggestions, key, &got)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestTTL_PerType(t *testing.T) {
	m, mr := setupManager(t, testCacheCfg())
	ctx := context.Background()
	key := Key("res-1", time.Now())

	require.NoError(t, m.Set(ctx, TypeContentAnalysis, key, "res-1", map[string]string{"descriptor": "wooden bench"}))
	require.NoError(t, m.Set(ctx, TypeSuggestions, key, "res-1", []string{"a"}))

	// Past the suggestions TTL but well within the content-analysis TTL.
	mr.FastForward(2 * time.Hour)

	var desc map[string]string
	hit, err := m.Get(ctx, TypeContentAnalysis, key, &desc)
	require.NoError(t, err)
	assert.True(t, hit)

	var sugg []string
	hit, err = m.Get(ctx, TypeSuggestions, key, &sugg)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestInvalidate_PurgesAllTypes(t *testing.T) {
	m, _ := setupManager(t, testCacheCfg())
	ctx := context.Background()
	key := Key("res-1", time.Now())

	require.NoError(t, m.Set(ctx, TypeContentAnalysis, key, "res-1", "analysis"))
	require.NoError(t, m.Set(ctx, TypeContext, key, "res-1", "context"))
	require.NoError(t, m.Set(ctx, TypeSuggestions, key, "res-1", "suggestions"))

	removed, err := m.Invalidate(ctx, "res-1")
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	var got string
	hit, err := m.Get(ctx, TypeContentAnalysis, key, &got)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestInvalidate_UnknownResource(t *testing.T) {
	m, _ := setupManager(t, testCacheCfg())

	removed, err := m.Invalidate(context.Background(), "never-cached")
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}

func TestDisabled(t *testing.T) {
	cfg := testCacheCfg()
	cfg.Enabled = false
	m, _ := setupManager(t, cfg)
	ctx := context.Background()
	key := Key("res-1", time.Now())

	require.NoError(t, m.Set(ctx, TypeSuggestions, key, "res-1", []string{"a"}))

	var got []string
	hit, err := m.Get(ctx, TypeSuggestions, key, &got)
	require.NoError(t, err)
	assert.False(t, hit)

	removed, err := m.Invalidate(ctx, "res-1")
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}
