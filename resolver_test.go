package shardex

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/shardex/core"
)

// slowAllocator hands out sequential ids with an artificial delay so
// concurrent resolutions overlap.
type slowAllocator struct {
	mu    sync.Mutex
	known map[string]core.GlobalID
	next  uint64

	getCalls  atomic.Int64
	nextCalls atomic.Int64
}

func newSlowAllocator() *slowAllocator {
	return &slowAllocator{known: make(map[string]core.GlobalID)}
}

func (a *slowAllocator) GetID(ctx context.Context, index, key string) (core.GlobalID, bool, error) {
	a.getCalls.Add(1)

	a.mu.Lock()
	defer a.mu.Unlock()

	id, ok := a.known[index+"\x00"+key]

	return id, ok, nil
}

func (a *slowAllocator) NextID(ctx context.Context, index, key string) (core.GlobalID, error) {
	a.nextCalls.Add(1)

	time.Sleep(50 * time.Millisecond)

	a.mu.Lock()
	defer a.mu.Unlock()

	a.next++
	id := core.GlobalID(a.next)
	a.known[index+"\x00"+key] = id

	return id, nil
}

func TestResolver_KnownKey(t *testing.T) {
	alloc := newSlowAllocator()
	r := newResolver(alloc)
	ctx := context.Background()

	id, known, err := r.resolve(ctx, "catalog", "sku-1")
	require.NoError(t, err)
	assert.False(t, known)

	again, known, err := r.resolve(ctx, "catalog", "sku-1")
	require.NoError(t, err)
	assert.True(t, known)
	assert.Equal(t, id, again)
}

func TestResolver_CollapsesConcurrentAllocations(t *testing.T) {
	alloc := newSlowAllocator()
	r := newResolver(alloc)
	ctx := context.Background()

	const racers = 8

	var (
		wg      sync.WaitGroup
		results [racers]core.GlobalID
	)

	for i := 0; i < racers; i++ {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			id, _, err := r.resolve(ctx, "catalog", "sku-1")
			assert.NoError(t, err)

			results[i] = id
		}(i)
	}

	wg.Wait()

	for i := 1; i < racers; i++ {
		assert.Equal(t, results[0], results[i])
	}

	// The racers overlap inside the allocator's delay, so they collapse
	// into a single allocation.
	assert.Equal(t, int64(1), alloc.nextCalls.Load())
}

func TestResolver_KeysAreIndependent(t *testing.T) {
	alloc := newSlowAllocator()
	r := newResolver(alloc)
	ctx := context.Background()

	a, _, err := r.resolve(ctx, "catalog", "sku-1")
	require.NoError(t, err)

	b, _, err := r.resolve(ctx, "users", "sku-1")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}
