package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_ReadMissing(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	got, err := s.Read(ctx, "nope", []string{"a"}, Quorum)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = s.ReadRow(ctx, "nope", Quorum)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemoryStore_ApplyAndRead(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now()

	require.NoError(t, s.Apply(ctx, Quorum,
		Put("r", "a", []byte("1"), now),
		Put("r", "b", []byte("2"), now),
	))

	got, err := s.Read(ctx, "r", []string{"a", "missing"}, Quorum)
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"a": []byte("1")}, got)

	row, err := s.ReadRow(ctx, "r", Quorum)
	require.NoError(t, err)
	assert.Len(t, row, 2)
}

func TestMemoryStore_LastWriteWins(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now()

	require.NoError(t, s.Apply(ctx, Quorum, Put("r", "a", []byte("new"), now)))
	// A write with an older timestamp loses silently.
	require.NoError(t, s.Apply(ctx, Quorum, Put("r", "a", []byte("old"), now.Add(-time.Second))))

	got, err := s.Read(ctx, "r", []string{"a"}, Quorum)
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), got["a"])
}

func TestMemoryStore_TombstoneOrdering(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now()

	require.NoError(t, s.Apply(ctx, Quorum, Put("r", "a", []byte("v"), now.Add(-time.Minute))))
	// Tombstone slightly in the past still shadows the older insert.
	require.NoError(t, s.Apply(ctx, Quorum, Delete("r", "a", now.Add(-10*time.Millisecond))))

	got, err := s.Read(ctx, "r", []string{"a"}, Quorum)
	require.NoError(t, err)
	assert.Empty(t, got)

	// A tombstone older than the live cell loses.
	require.NoError(t, s.Apply(ctx, Quorum, Put("r", "b", []byte("v"), now)))
	require.NoError(t, s.Apply(ctx, Quorum, Delete("r", "b", now.Add(-time.Second))))

	got, err = s.Read(ctx, "r", []string{"b"}, Quorum)
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got["b"])
}

func TestMemoryStore_TombstoneWinsTie(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now()

	require.NoError(t, s.Apply(ctx, Quorum, Put("r", "a", []byte("v"), now)))
	require.NoError(t, s.Apply(ctx, Quorum, Delete("r", "a", now)))

	got, err := s.Read(ctx, "r", []string{"a"}, Quorum)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemoryStore_CompareAndSet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	// Create iff absent.
	ok, err := s.CompareAndSet(ctx, "r", "seq", nil, []byte("100"))
	require.NoError(t, err)
	assert.True(t, ok)

	// Second create fails.
	ok, err = s.CompareAndSet(ctx, "r", "seq", nil, []byte("200"))
	require.NoError(t, err)
	assert.False(t, ok)

	// Swap with wrong expectation fails.
	ok, err = s.CompareAndSet(ctx, "r", "seq", []byte("999"), []byte("200"))
	require.NoError(t, err)
	assert.False(t, ok)

	// Swap with right expectation succeeds.
	ok, err = s.CompareAndSet(ctx, "r", "seq", []byte("100"), []byte("200"))
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := s.Read(ctx, "r", []string{"seq"}, Quorum)
	require.NoError(t, err)
	assert.Equal(t, []byte("200"), got["seq"])
}
