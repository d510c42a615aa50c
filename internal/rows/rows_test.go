package rows

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRowNames(t *testing.T) {
	assert.Equal(t, "catalog~1", Shard("catalog", 1))
	assert.Equal(t, "catalog!keys", Lookup("catalog"))
	assert.Equal(t, "catalog~1!ids", Reuse(Shard("catalog", 1)))
	assert.Equal(t, "catalog!seq", Sequence("catalog"))
	assert.Equal(t, "catalog~1!cache", Cache(Shard("catalog", 1)))
}

func TestRowNamesDisjoint(t *testing.T) {
	// Different concerns for the same index must never share a row.
	names := []string{
		Lookup("catalog"),
		Sequence("catalog"),
		Reuse(Shard("catalog", 0)),
		Cache(Shard("catalog", 0)),
	}
	seen := make(map[string]bool)
	for _, n := range names {
		assert.False(t, seen[n], "duplicate row name %q", n)
		seen[n] = true
	}
}
