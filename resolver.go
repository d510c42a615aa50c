package shardex

import (
	"context"
	"fmt"

	"golang.org/x/sync/singleflight"

	"github.com/hupe1980/shardex/core"
	"github.com/hupe1980/shardex/ids"
)

// resolver maps (index, key) to a global id, allocating one on first
// sight. Concurrent resolutions of the same key are collapsed into a
// single allocator call so racing upserts of one document agree on its
// id instead of burning ids on both sides of the race.
type resolver struct {
	alloc ids.Allocator
	group singleflight.Group
}

func newResolver(alloc ids.Allocator) *resolver {
	return &resolver{alloc: alloc}
}

type resolution struct {
	id    core.GlobalID
	known bool
}

// resolve returns the id for key and whether the key was already known.
// A false second return means the id was freshly allocated by this call
// (or the call it was coalesced into).
func (r *resolver) resolve(ctx context.Context, index, key string) (core.GlobalID, bool, error) {
	v, err, _ := r.group.Do(index+"\x00"+key, func() (any, error) {
		id, found, err := r.alloc.GetID(ctx, index, key)
		if err != nil {
			return nil, fmt.Errorf("lookup id: %w", err)
		}

		if found {
			return resolution{id: id, known: true}, nil
		}

		id, err = r.alloc.NextID(ctx, index, key)
		if err != nil {
			return nil, fmt.Errorf("allocate id: %w", err)
		}

		return resolution{id: id}, nil
	})
	if err != nil {
		return 0, false, err
	}

	res := v.(resolution)

	return res.id, res.known, nil
}
