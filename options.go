package shardex

import (
	"log/slog"
	"time"

	"github.com/hupe1980/shardex/ids"
	"github.com/hupe1980/shardex/store"
)

const (
	// DefaultNumShards is the shard count used when none is configured.
	DefaultNumShards = 4

	// DefaultInvalidationInterval bounds how often a cache invalidation
	// marker is written per shard. Notices arriving inside the interval
	// are coalesced into the previous write.
	DefaultInvalidationInterval = time.Second

	// DefaultTombstoneOffset is subtracted from the wall clock when
	// timestamping bookkeeping deletes. Backdating keeps the tombstone
	// from shadowing an immediate re-add of the same key, whose writes
	// are stamped with an unshifted clock.
	DefaultTombstoneOffset = 10 * time.Millisecond
)

type options struct {
	numShards            int
	invalidationInterval time.Duration
	tombstoneOffset      time.Duration
	consistency          store.ConsistencyLevel
	allocator            ids.Allocator
	allocatorOptions     []func(*ids.Options)
	logger               *slog.Logger
	now                  func() time.Time
}

func defaultOptions() options {
	return options{
		numShards:            DefaultNumShards,
		invalidationInterval: DefaultInvalidationInterval,
		tombstoneOffset:      DefaultTombstoneOffset,
		consistency:          store.Quorum,
		logger:               slog.New(slog.DiscardHandler),
		now:                  time.Now,
	}
}

// Option configures a Writer or a Verifier.
type Option func(*options)

// WithNumShards configures how many sub-indexes document writes are
// distributed over. The count is fixed for the lifetime of an index:
// changing it reroutes existing ids.
func WithNumShards(n int) Option {
	return func(o *options) {
		o.numShards = n
	}
}

// WithInvalidationInterval configures the minimum spacing between cache
// invalidation markers for a single shard. Zero disables coalescing and
// writes a marker for every notice.
func WithInvalidationInterval(d time.Duration) Option {
	return func(o *options) {
		o.invalidationInterval = d
	}
}

// WithTombstoneOffset configures how far bookkeeping tombstones are
// backdated relative to the wall clock.
func WithTombstoneOffset(d time.Duration) Option {
	return func(o *options) {
		o.tombstoneOffset = d
	}
}

// WithConsistency configures the consistency level for store reads and
// writes issued by the coordinator.
func WithConsistency(cl store.ConsistencyLevel) Option {
	return func(o *options) {
		o.consistency = cl
	}
}

// WithAllocator replaces the store-backed id allocator. The allocator
// must issue ids consistently with the configured shard count.
func WithAllocator(a ids.Allocator) Option {
	return func(o *options) {
		o.allocator = a
	}
}

// WithAllocatorOptions forwards options to the default store-backed
// allocator. Ignored when WithAllocator is used.
func WithAllocatorOptions(optFns ...func(*ids.Options)) Option {
	return func(o *options) {
		o.allocatorOptions = append(o.allocatorOptions, optFns...)
	}
}

// WithLogger configures structured logging. Nil discards.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l == nil {
			l = slog.New(slog.DiscardHandler)
		}
		o.logger = l
	}
}

// WithClock replaces the wall clock used for mutation timestamps and
// invalidation coalescing. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}
