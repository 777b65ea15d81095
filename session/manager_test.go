package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datamind-ai/datamind/types"
)

func TestManager_Lifecycle(t *testing.T) {
	m := NewManager(nil, nil)

	sess := m.Create()
	require.NotEmpty(t, sess.ID)
	assert.Equal(t, 1, m.Len())

	got, err := m.Get(sess.ID)
	require.NoError(t, err)
	assert.Same(t, sess, got)

	_, err = m.Get("ghost")
	require.Error(t, err)

	m.Remove(context.Background(), sess.ID)
	assert.Equal(t, 0, m.Len())
	_, err = m.Get(sess.ID)
	require.Error(t, err)
}

func testCache(t *testing.T) *RedisCache {
	t.Helper()
	srv := miniredis.RunT(t)
	cache, err := NewRedisCache(RedisCacheConfig{Addr: srv.Addr(), TTL: time.Hour}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })
	return cache
}

func TestRedisCache_SnapshotRoundTrip(t *testing.T) {
	cache := testCache(t)
	ctx := context.Background()

	sess := New()
	ds := types.NewDataset("x")
	require.NoError(t, ds.AppendRow(float64(7)))
	sess.SetDataset("raw", ds)
	sess.AddKnowledge("units", "column x is in meters")
	sess.RecordToolCall("c1", "descriptive_stats", map[string]any{"column": "x"}, true)

	require.NoError(t, cache.Save(ctx, sess))

	loaded, err := cache.Load(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, loaded.ID)
	require.Contains(t, loaded.Datasets, "raw")
	assert.True(t, ds.Equal(loaded.Datasets["raw"]))
	require.Len(t, loaded.Knowledge, 1)
	assert.Equal(t, "units", loaded.Knowledge[0].Topic)
	require.Len(t, loaded.ToolCalls, 1)
	assert.Equal(t, "descriptive_stats", loaded.ToolCalls[0].Skill)
}

func TestRedisCache_DeleteAndMissing(t *testing.T) {
	cache := testCache(t)
	ctx := context.Background()

	sess := New()
	require.NoError(t, cache.Save(ctx, sess))
	require.NoError(t, cache.Delete(ctx, sess.ID))

	_, err := cache.Load(ctx, sess.ID)
	require.Error(t, err)
}

func TestRedisCache_ConnectFailure(t *testing.T) {
	_, err := NewRedisCache(RedisCacheConfig{Addr: "127.0.0.1:1"}, nil)
	require.Error(t, err)
}

func TestManager_SnapshotWriteThrough(t *testing.T) {
	srv := miniredis.RunT(t)
	cache, err := NewRedisCache(RedisCacheConfig{Addr: srv.Addr(), TTL: time.Hour}, nil)
	require.NoError(t, err)
	m := NewManager(cache, nil)
	ctx := context.Background()

	sess := m.Create()
	sess.AppendMessage(types.Message{Role: "user", Content: "describe x"})
	m.Snapshot(ctx, sess)

	loaded, err := cache.Load(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Messages, 1)

	// Removing the session drops its snapshot too.
	m.Remove(ctx, sess.ID)
	_, err = cache.Load(ctx, sess.ID)
	require.Error(t, err)
}
