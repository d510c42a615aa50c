package core

import "fmt"

// MaxShards bounds the configured shard count. The limit exists so a
// GlobalID always round-trips through Route/Compose without overflow.
const MaxShards = 1 << 16

// Router deterministically maps a GlobalID to its shard and shard-local ID.
//
// Routing is a pure function of the ID and the configured shard count:
//
//	shard = id mod numShards
//	local = id div numShards
//
// Sequentially issued IDs therefore round-robin across shards, and a
// document's shard never changes for the lifetime of its ID. The shard count
// is fixed at construction; changing it requires an explicit re-shard
// migration, which this package does not provide.
type Router struct {
	numShards uint64
}

// NewRouter creates a Router for the given shard count.
func NewRouter(numShards int) (*Router, error) {
	if numShards < 1 || numShards > MaxShards {
		return nil, fmt.Errorf("core: shard count %d out of range [1,%d]", numShards, MaxShards)
	}
	return &Router{numShards: uint64(numShards)}, nil
}

// NumShards returns the configured shard count.
func (r *Router) NumShards() int {
	return int(r.numShards)
}

// Route returns the shard number and shard-local ID for a GlobalID.
//
// Calling Route with an ID that was never issued by the allocation service
// is a programming error; the result is well-defined arithmetic but does not
// correspond to any live document.
func (r *Router) Route(id GlobalID) (int, LocalID) {
	return int(uint64(id) % r.numShards), LocalID(uint64(id) / r.numShards)
}

// Compose is the inverse of Route. It reconstructs the GlobalID that routes
// to (shard, local).
func (r *Router) Compose(shard int, local LocalID) GlobalID {
	return GlobalID(uint64(local)*r.numShards + uint64(shard))
}
