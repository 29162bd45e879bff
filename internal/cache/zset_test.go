package cache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) (*ScoredSetStore, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewScoredSetStore(NewFromRedis(rdb)), mr
}

func TestPopulateMarksWarm(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	warm, err := store.Exists(ctx, "user:1:posts")
	require.NoError(t, err)
	assert.False(t, warm, "set should start cold")

	err = store.Populate(ctx, "user:1:posts", []ScoredMember{
		{Score: 2, Member: "00000000000000000001"},
		{Score: 5, Member: "00000000000000000002"},
	})
	require.NoError(t, err)

	warm, err = store.Exists(ctx, "user:1:posts")
	require.NoError(t, err)
	assert.True(t, warm)
}

func TestPopulateEmptySetIsStillWarm(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Populate(ctx, "user:7:posts", nil))

	warm, err := store.Exists(ctx, "user:7:posts")
	require.NoError(t, err)
	assert.True(t, warm, "an empty but populated set must read as warm")

	members, err := store.RangeByScoreDesc(ctx, "user:7:posts", 0, -1)
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestRangeByScoreDescOrdersByScoreThenNewest(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	err := store.Populate(ctx, "user:1:posts", []ScoredMember{
		{Score: 3, Member: "00000000000000000010"},
		{Score: 3, Member: "00000000000000000009"},
		{Score: 7, Member: "00000000000000000002"},
	})
	require.NoError(t, err)

	members, err := store.RangeByScoreDesc(ctx, "user:1:posts", 0, -1)
	require.NoError(t, err)

	// Highest score first; ties resolve to the larger (newer) ID because
	// members are zero-padded to fixed width.
	assert.Equal(t, []string{
		"00000000000000000002",
		"00000000000000000010",
		"00000000000000000009",
	}, members)
}

func TestIncrementScoreMovesMember(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Populate(ctx, "tag:news:posts", []ScoredMember{
		{Score: 1, Member: "00000000000000000001"},
		{Score: 2, Member: "00000000000000000002"},
	}))

	require.NoError(t, store.IncrementScore(ctx, "tag:news:posts", "00000000000000000001", 5))

	members, err := store.RangeByScoreDesc(ctx, "tag:news:posts", 0, 0)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "00000000000000000001", members[0])
}

func TestRemoveAndDrop(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Populate(ctx, "user:3:posts", []ScoredMember{
		{Score: 1, Member: "00000000000000000001"},
		{Score: 2, Member: "00000000000000000002"},
	}))

	require.NoError(t, store.Remove(ctx, "user:3:posts", "00000000000000000001"))

	n, err := store.Cardinality(ctx, "user:3:posts")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, store.Drop(ctx, "user:3:posts"))

	warm, err := store.Exists(ctx, "user:3:posts")
	require.NoError(t, err)
	assert.False(t, warm, "Drop must clear the warm marker too")
}

func TestRemoveOnColdSetIsNoop(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Remove(ctx, "user:9:posts", "00000000000000000004"))

	warm, err := store.Exists(ctx, "user:9:posts")
	require.NoError(t, err)
	assert.False(t, warm, "removing from a cold set must not warm it")
}

func TestUpsertRange(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Populate(ctx, "users:zset:all", nil))
	for i, score := range []float64{4, 1, 9, 6} {
		member := []string{"a", "b", "c", "d"}[i]
		require.NoError(t, store.Upsert(ctx, "users:zset:all", score, member))
	}

	top, err := store.RangeByScoreDesc(ctx, "users:zset:all", 0, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "d"}, top)

	rest, err := store.RangeByScoreDesc(ctx, "users:zset:all", 2, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, rest)
}
