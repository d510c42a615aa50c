package ids

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/shardex/core"
	"github.com/hupe1980/shardex/internal/rows"
	"github.com/hupe1980/shardex/store"
)

func newTestAllocator(t *testing.T, numShards int, optFns ...func(*Options)) (*StoreAllocator, *store.MemoryStore) {
	t.Helper()

	router, err := core.NewRouter(numShards)
	require.NoError(t, err)

	st := store.NewMemoryStore()
	return NewStoreAllocator(st, router, optFns...), st
}

func TestGetID_Miss(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestAllocator(t, 4)

	_, found, err := a.GetID(ctx, "catalog", "sku-42")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestNextID_FirstIDIsOne(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestAllocator(t, 4)

	id, err := a.NextID(ctx, "catalog", "sku-42")
	require.NoError(t, err)
	assert.Equal(t, core.GlobalID(1), id)
}

func TestNextID_Monotone(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestAllocator(t, 4)

	for want := uint64(1); want <= 10; want++ {
		id, err := a.NextID(ctx, "catalog", fmt.Sprintf("sku-%d", want))
		require.NoError(t, err)
		assert.Equal(t, core.GlobalID(want), id)
	}
}

func TestNextID_RecordsLookupAndReuseRows(t *testing.T) {
	ctx := context.Background()
	a, st := newTestAllocator(t, 4)

	id, err := a.NextID(ctx, "catalog", "sku-42")
	require.NoError(t, err)

	lookup, err := st.Read(ctx, rows.Lookup("catalog"), []string{"sku-42"}, store.Quorum)
	require.NoError(t, err)
	assert.Equal(t, []byte(id.String()), lookup["sku-42"])

	// id 1 with 4 shards routes to shard 1, local 0.
	reuse, err := st.ReadRow(ctx, rows.Reuse(rows.Shard("catalog", 1)), store.Quorum)
	require.NoError(t, err)
	assert.Equal(t, []byte("sku-42"), reuse["0"])
}

func TestNextID_ThenGetID(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestAllocator(t, 4)

	issued, err := a.NextID(ctx, "catalog", "sku-42")
	require.NoError(t, err)

	got, found, err := a.GetID(ctx, "catalog", "sku-42")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, issued, got)
}

func TestNextID_IndexesIndependent(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestAllocator(t, 4)

	id1, err := a.NextID(ctx, "catalog", "sku-1")
	require.NoError(t, err)
	id2, err := a.NextID(ctx, "inventory", "sku-1")
	require.NoError(t, err)

	// Each index has its own sequence.
	assert.Equal(t, core.GlobalID(1), id1)
	assert.Equal(t, core.GlobalID(1), id2)
}

func TestNextID_ReclaimsFreedIDs(t *testing.T) {
	ctx := context.Background()
	a, st := newTestAllocator(t, 2, func(o *Options) { o.RangeSize = 4 })

	// Exhaust the first range: ids 1..4.
	for i := 1; i <= 4; i++ {
		_, err := a.NextID(ctx, "catalog", fmt.Sprintf("sku-%d", i))
		require.NoError(t, err)
	}

	// Release id 3 (shard 1, local 1) the way the delete path does.
	shard, local := mustRoute(t, 2, 3)
	require.NoError(t, st.Apply(ctx, store.Quorum,
		store.Delete(rows.Lookup("catalog"), "sku-3", time.Now()),
		store.Delete(rows.Reuse(rows.Shard("catalog", shard)), local.String(), time.Now()),
	))

	// The next allocation reuses the freed id instead of advancing.
	id, err := a.NextID(ctx, "catalog", "sku-5")
	require.NoError(t, err)
	assert.Equal(t, core.GlobalID(3), id)

	// And its reuse column is claimed again.
	reuse, err := st.ReadRow(ctx, rows.Reuse(rows.Shard("catalog", shard)), store.Quorum)
	require.NoError(t, err)
	assert.Equal(t, []byte("sku-5"), reuse[local.String()])
}

func TestNextID_AdvancesSequenceWhenNothingFreed(t *testing.T) {
	ctx := context.Background()
	a, st := newTestAllocator(t, 2, func(o *Options) { o.RangeSize = 2 })

	for i := 1; i <= 5; i++ {
		id, err := a.NextID(ctx, "catalog", fmt.Sprintf("sku-%d", i))
		require.NoError(t, err)
		assert.Equal(t, core.GlobalID(i), id)
	}

	seq, err := st.Read(ctx, rows.Sequence("catalog"), []string{rows.SequenceColumn}, store.Quorum)
	require.NoError(t, err)
	assert.Equal(t, []byte("7"), seq[rows.SequenceColumn])
}

func TestNextID_SkipsIDsClaimedElsewhere(t *testing.T) {
	ctx := context.Background()
	a, st := newTestAllocator(t, 2, func(o *Options) { o.RangeSize = 4 })

	// Another allocator claimed local 0 of shard 1 (id 1) out from under us.
	ok, err := st.CompareAndSet(ctx, rows.Reuse(rows.Shard("catalog", 1)), "0", nil, []byte("other"))
	require.NoError(t, err)
	require.True(t, ok)

	id, err := a.NextID(ctx, "catalog", "sku-1")
	require.NoError(t, err)
	assert.Equal(t, core.GlobalID(2), id)
}

func mustRoute(t *testing.T, numShards int, id core.GlobalID) (int, core.LocalID) {
	t.Helper()

	router, err := core.NewRouter(numShards)
	require.NoError(t, err)
	shard, local := router.Route(id)
	return shard, local
}
