package shardex

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/shardex/internal/rows"
	"github.com/hupe1980/shardex/store"
)

// flusher serializes cache invalidation markers behind the write path.
// Writers enqueue shard notices without blocking; a single consumer
// drains the queue and writes at most one marker per shard per
// interval, so a burst of writes to a hot shard collapses into one
// invalidation.
type flusher struct {
	store       store.Store
	interval    time.Duration
	consistency store.ConsistencyLevel
	now         func() time.Time
	logger      *slog.Logger
	onError     func()

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []string
	closed bool

	flushes atomic.Int64
	done    chan struct{}
}

func newFlusher(st store.Store, interval time.Duration, cl store.ConsistencyLevel, now func() time.Time, logger *slog.Logger, onError func()) *flusher {
	f := &flusher{
		store:       st,
		interval:    interval,
		consistency: cl,
		now:         now,
		logger:      logger,
		onError:     onError,
		done:        make(chan struct{}),
	}

	f.cond = sync.NewCond(&f.mu)

	go f.run()

	return f
}

// notify enqueues an invalidation notice for the named shard. It never
// blocks; after close it is a no-op.
func (f *flusher) notify(shard string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}

	f.queue = append(f.queue, shard)
	f.cond.Signal()
}

// close stops the consumer after the pending queue drains.
func (f *flusher) close() {
	f.mu.Lock()

	if f.closed {
		f.mu.Unlock()
		<-f.done

		return
	}

	f.closed = true
	f.cond.Broadcast()
	f.mu.Unlock()

	<-f.done
}

// take blocks until a notice is available or the flusher is closed with
// an empty queue.
func (f *flusher) take() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for len(f.queue) == 0 && !f.closed {
		f.cond.Wait()
	}

	if len(f.queue) == 0 {
		return "", false
	}

	shard := f.queue[0]
	f.queue = f.queue[1:]

	return shard, true
}

func (f *flusher) run() {
	defer close(f.done)

	// Consumer-private; single-threaded by construction.
	lastFlush := make(map[string]time.Time)

	for {
		shard, ok := f.take()
		if !ok {
			return
		}

		now := f.now()

		if last, seen := lastFlush[shard]; seen && f.interval > 0 && now.Sub(last) < f.interval {
			continue
		}

		if err := f.flush(shard, now); err != nil {
			// Not recorded in lastFlush: the next notice retries.
			f.logger.Warn("cache invalidation failed", "shard", shard, "error", err)
			f.onError()

			continue
		}

		lastFlush[shard] = now
		f.flushes.Add(1)

		f.logger.Debug("cache invalidated", "shard", shard)
	}
}

func (f *flusher) flush(shard string, now time.Time) error {
	return f.store.Apply(context.Background(), f.consistency, store.Put(rows.Cache(shard), rows.CacheColumn, nil, now))
}
