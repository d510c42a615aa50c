// Package rows fixes the row naming scheme shared by the write path, the
// allocation service, and maintenance. Row names are plain strings so every
// store adapter can key on them directly.
package rows

import "strconv"

// ShardDelimiter joins an index name and a shard number into the namespaced
// shard identifier ("catalog~1").
const ShardDelimiter = "~"

const (
	suffixKeys     = "!keys"
	suffixIDs      = "!ids"
	suffixSequence = "!seq"
	suffixCache    = "!cache"
)

// SequenceColumn is the single column of a sequence row.
const SequenceColumn = "next"

// CacheColumn is the single column of an invalidation marker row.
const CacheColumn = "invalidate"

// Shard composes the namespaced shard identifier for an index and shard
// number.
func Shard(index string, shard int) string {
	return index + ShardDelimiter + strconv.Itoa(shard)
}

// Lookup names the key→id lookup row of an index: one column per live key.
func Lookup(index string) string {
	return index + suffixKeys
}

// Reuse names the identifier-reuse row of a shard: one column per assigned
// shard-local id, valued with the owning key.
func Reuse(shardName string) string {
	return shardName + suffixIDs
}

// Sequence names the id-sequence row of an index.
func Sequence(index string) string {
	return index + suffixSequence
}

// Cache names the invalidation marker row of a shard.
func Cache(shardName string) string {
	return shardName + suffixCache
}
