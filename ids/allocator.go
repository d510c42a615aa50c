// Package ids implements the identifier allocation service. Global document
// IDs are issued monotonically per index by reserving contiguous ranges
// through compare-and-set on a sequence row, so concurrent allocators on
// different processes never share a range. IDs released by deletes are
// reclaimed: an id below the sequence watermark whose reuse-row column is
// gone is free, and reclaiming it is guarded by compare-and-set so two
// processes cannot reissue the same id.
package ids

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/shardex/core"
	"github.com/hupe1980/shardex/internal/rows"
	"github.com/hupe1980/shardex/store"
)

// DefaultRangeSize is the number of ids reserved per sequence-row
// compare-and-set.
const DefaultRangeSize = 1024

// reserveRetries bounds the CAS retry loop for range reservation.
const reserveRetries = 16

// Allocator issues global document ids.
//
// GetID returns the live id of a key, if any. NextID issues a fresh id for
// the key and records the key→id lookup column and the shard reuse column.
// NextID must never reissue an id that is still live.
type Allocator interface {
	GetID(ctx context.Context, index, key string) (core.GlobalID, bool, error)
	NextID(ctx context.Context, index, key string) (core.GlobalID, error)
}

// Options configures a StoreAllocator.
type Options struct {
	// RangeSize is the number of ids reserved per sequence advance.
	RangeSize uint64

	// Consistency is the level used for lookup reads and bookkeeping
	// writes.
	Consistency store.ConsistencyLevel

	// Logger receives allocation events. Nil discards.
	Logger *slog.Logger

	// Now supplies write timestamps. Defaults to time.Now.
	Now func() time.Time
}

// StoreAllocator is a store-backed Allocator.
type StoreAllocator struct {
	store  store.Store
	router *core.Router
	opts   Options

	mu     sync.Mutex
	ranges map[string]*indexRange
}

var _ Allocator = (*StoreAllocator)(nil)

// indexRange is the in-process allocation state for one index: the reserved
// but unissued range plus reclaimed ids awaiting claim.
type indexRange struct {
	next  uint64
	limit uint64
	free  []core.GlobalID
}

// NewStoreAllocator creates an allocator over the given store and router.
func NewStoreAllocator(st store.Store, router *core.Router, optFns ...func(*Options)) *StoreAllocator {
	opts := Options{
		RangeSize:   DefaultRangeSize,
		Consistency: store.Quorum,
		Now:         time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.RangeSize == 0 {
		opts.RangeSize = DefaultRangeSize
	}

	return &StoreAllocator{
		store:  st,
		router: router,
		opts:   opts,
		ranges: make(map[string]*indexRange),
	}
}

// GetID returns the live id mapped to key in the index's lookup row.
func (a *StoreAllocator) GetID(ctx context.Context, index, key string) (core.GlobalID, bool, error) {
	vals, err := a.store.Read(ctx, rows.Lookup(index), []string{key}, a.opts.Consistency)
	if err != nil {
		return 0, false, fmt.Errorf("ids: lookup %q/%q: %w", index, key, err)
	}
	raw, ok := vals[key]
	if !ok {
		return 0, false, nil
	}
	id, err := core.ParseGlobalID(string(raw))
	if err != nil {
		return 0, false, fmt.Errorf("ids: corrupt lookup column %q/%q: %w", index, key, err)
	}
	return id, true, nil
}

// NextID issues a fresh id for (index, key) and records the lookup and
// reuse columns. Reclaimed ids are preferred over advancing the sequence.
func (a *StoreAllocator) NextID(ctx context.Context, index, key string) (core.GlobalID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	r, ok := a.ranges[index]
	if !ok {
		r = &indexRange{}
		a.ranges[index] = r
	}

	for {
		// Reclaimed ids first; each claim is CAS-guarded so a concurrent
		// allocator that reclaimed the same id loses or wins cleanly.
		for len(r.free) > 0 {
			id := r.free[0]
			r.free = r.free[1:]

			claimed, err := a.claim(ctx, index, id, key)
			if err != nil {
				return 0, err
			}
			if !claimed {
				continue
			}
			if err := a.writeLookup(ctx, index, key, id); err != nil {
				return 0, err
			}
			return id, nil
		}

		if r.next < r.limit {
			id := core.GlobalID(r.next)
			r.next++

			// Fresh ids claim their reuse column the same way reclaimed
			// ones do, so a reclaimer racing into this range loses or wins
			// cleanly.
			claimed, err := a.claim(ctx, index, id, key)
			if err != nil {
				return 0, err
			}
			if !claimed {
				continue
			}
			if err := a.writeLookup(ctx, index, key, id); err != nil {
				return 0, err
			}
			return id, nil
		}

		// refill leaves either reclaimed ids or a fresh range behind.
		if err := a.refill(ctx, index, r); err != nil {
			return 0, err
		}
	}
}

// claim takes ownership of a reclaimed id by creating its reuse column.
func (a *StoreAllocator) claim(ctx context.Context, index string, id core.GlobalID, key string) (bool, error) {
	shard, local := a.router.Route(id)
	ok, err := a.store.CompareAndSet(ctx, rows.Reuse(rows.Shard(index, shard)), local.String(), nil, []byte(key))
	if err != nil {
		return false, fmt.Errorf("ids: claim reclaimed id %d in %q: %w", id, index, err)
	}
	return ok, nil
}

func (a *StoreAllocator) writeLookup(ctx context.Context, index, key string, id core.GlobalID) error {
	err := a.store.Apply(ctx, a.opts.Consistency,
		store.Put(rows.Lookup(index), key, []byte(id.String()), a.opts.Now()),
	)
	if err != nil {
		return fmt.Errorf("ids: record id %d for %q/%q: %w", id, index, key, err)
	}
	return nil
}

// refill reclaims freed ids below the sequence watermark and, if none are
// found, reserves a fresh range by advancing the sequence row.
func (a *StoreAllocator) refill(ctx context.Context, index string, r *indexRange) error {
	watermark, raw, err := a.readSequence(ctx, index)
	if err != nil {
		return err
	}
	// id 0 is never issued; it stands for "unallocated".
	if watermark == 0 {
		watermark = 1
	}

	free, err := a.reclaimable(ctx, index, watermark)
	if err != nil {
		return err
	}
	if len(free) > 0 {
		r.free = free
		a.opts.Logger.Debug("reclaimed freed ids", "index", index, "count", len(free))
		return nil
	}

	for attempt := 0; attempt < reserveRetries; attempt++ {
		next := watermark + a.opts.RangeSize
		ok, err := a.store.CompareAndSet(ctx, rows.Sequence(index), rows.SequenceColumn, raw, []byte(core.GlobalID(next).String()))
		if err != nil {
			return fmt.Errorf("ids: reserve range for %q: %w", index, err)
		}
		if ok {
			r.next, r.limit = watermark, next
			a.opts.Logger.Debug("reserved id range", "index", index, "from", watermark, "to", next)
			return nil
		}
		// Lost the race; reread and retry.
		watermark, raw, err = a.readSequence(ctx, index)
		if err != nil {
			return err
		}
		if watermark == 0 {
			watermark = 1
		}
	}
	return fmt.Errorf("ids: reserve range for %q: gave up after %d contended attempts", index, reserveRetries)
}

func (a *StoreAllocator) readSequence(ctx context.Context, index string) (uint64, []byte, error) {
	vals, err := a.store.Read(ctx, rows.Sequence(index), []string{rows.SequenceColumn}, a.opts.Consistency)
	if err != nil {
		return 0, nil, fmt.Errorf("ids: read sequence for %q: %w", index, err)
	}
	raw, ok := vals[rows.SequenceColumn]
	if !ok {
		return 0, nil, nil
	}
	id, err := core.ParseGlobalID(string(raw))
	if err != nil {
		return 0, nil, fmt.Errorf("ids: corrupt sequence row for %q: %w", index, err)
	}
	return uint64(id), raw, nil
}

// reclaimable scans every shard's reuse row for ids below the watermark
// whose columns are gone. At most RangeSize ids are collected per call.
func (a *StoreAllocator) reclaimable(ctx context.Context, index string, watermark uint64) ([]core.GlobalID, error) {
	if watermark == 0 {
		return nil, nil
	}

	numShards := uint64(a.router.NumShards())
	var free []core.GlobalID

	for shard := uint64(0); shard < numShards && uint64(len(free)) < a.opts.RangeSize; shard++ {
		// Number of locals issued to this shard below the watermark.
		if watermark <= shard {
			continue
		}
		localCount := (watermark - shard + numShards - 1) / numShards

		row, err := a.store.ReadRow(ctx, rows.Reuse(rows.Shard(index, int(shard))), a.opts.Consistency)
		if err != nil {
			return nil, fmt.Errorf("ids: scan reuse row for %q shard %d: %w", index, shard, err)
		}

		assigned := roaring.New()
		for col := range row {
			local, err := core.ParseLocalID(col)
			if err != nil {
				return nil, fmt.Errorf("ids: corrupt reuse column %q in %q shard %d: %w", col, index, shard, err)
			}
			assigned.Add(uint32(local))
		}

		candidates := roaring.New()
		candidates.AddRange(0, localCount)
		if shard == 0 {
			candidates.Remove(0) // id 0 is never issued
		}
		candidates.AndNot(assigned)

		it := candidates.Iterator()
		for it.HasNext() && uint64(len(free)) < a.opts.RangeSize {
			free = append(free, a.router.Compose(int(shard), core.LocalID(it.Next())))
		}
	}
	return free, nil
}
