package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRouter_Validation(t *testing.T) {
	_, err := NewRouter(0)
	require.Error(t, err)

	_, err = NewRouter(-3)
	require.Error(t, err)

	_, err = NewRouter(MaxShards + 1)
	require.Error(t, err)

	r, err := NewRouter(1)
	require.NoError(t, err)
	assert.Equal(t, 1, r.NumShards())
}

func TestRouter_Route(t *testing.T) {
	r, err := NewRouter(4)
	require.NoError(t, err)

	// Pinned: id 1 with 4 shards lands on shard 1, local 0.
	shard, local := r.Route(1)
	assert.Equal(t, 1, shard)
	assert.Equal(t, LocalID(0), local)

	shard, local = r.Route(0)
	assert.Equal(t, 0, shard)
	assert.Equal(t, LocalID(0), local)

	shard, local = r.Route(7)
	assert.Equal(t, 3, shard)
	assert.Equal(t, LocalID(1), local)
}

func TestRouter_Deterministic(t *testing.T) {
	r, err := NewRouter(8)
	require.NoError(t, err)

	for id := GlobalID(0); id < 1000; id++ {
		s1, l1 := r.Route(id)
		s2, l2 := r.Route(id)
		require.Equal(t, s1, s2)
		require.Equal(t, l1, l2)
	}
}

func TestRouter_ComposeRoundTrip(t *testing.T) {
	r, err := NewRouter(5)
	require.NoError(t, err)

	for id := GlobalID(0); id < 1000; id++ {
		shard, local := r.Route(id)
		require.Equal(t, id, r.Compose(shard, local))
	}
}

func TestRouter_SequentialIDsRoundRobin(t *testing.T) {
	r, err := NewRouter(3)
	require.NoError(t, err)

	counts := make(map[int]int)
	for id := GlobalID(0); id < 300; id++ {
		shard, _ := r.Route(id)
		counts[shard]++
	}

	for shard := 0; shard < 3; shard++ {
		assert.Equal(t, 100, counts[shard])
	}
}

func TestGlobalID_WireForm(t *testing.T) {
	id := GlobalID(42)
	assert.Equal(t, "42", id.String())

	parsed, err := ParseGlobalID("42")
	require.NoError(t, err)
	assert.Equal(t, id, parsed)

	_, err = ParseGlobalID("not-a-number")
	require.Error(t, err)

	_, err = ParseLocalID("4294967296") // MaxLocalID+1
	require.Error(t, err)
}
