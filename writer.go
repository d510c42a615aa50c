package shardex

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hupe1980/shardex/core"
	"github.com/hupe1980/shardex/document"
	"github.com/hupe1980/shardex/ids"
	"github.com/hupe1980/shardex/index"
	"github.com/hupe1980/shardex/internal/rows"
	"github.com/hupe1980/shardex/store"
)

// Writer is the write-path coordinator. It resolves document keys to
// stable global ids, routes each document to a shard, applies the
// change to the shard's index writer, keeps the store-side bookkeeping
// rows consistent, and schedules cache invalidation for the touched
// shard.
//
// A Writer is safe for concurrent use.
type Writer struct {
	schema   document.Schema
	engine   index.Engine
	store    store.Store
	router   *core.Router
	resolver *resolver
	flusher  *flusher
	counters counters

	consistency     store.ConsistencyLevel
	tombstoneOffset time.Duration
	now             func() time.Time
	logger          *slog.Logger
	closed          atomic.Bool
}

// New creates a Writer coordinating writes between engine and st.
func New(schema document.Schema, engine index.Engine, st store.Store, optFns ...Option) (*Writer, error) {
	opts := defaultOptions()

	for _, fn := range optFns {
		fn(&opts)
	}

	router, err := core.NewRouter(opts.numShards)
	if err != nil {
		return nil, err
	}

	alloc := opts.allocator
	if alloc == nil {
		allocOpts := append([]func(*ids.Options){func(o *ids.Options) {
			o.Consistency = opts.consistency
			o.Logger = opts.logger
			o.Now = opts.now
		}}, opts.allocatorOptions...)

		alloc = ids.NewStoreAllocator(st, router, allocOpts...)
	}

	w := &Writer{
		schema:          schema,
		engine:          engine,
		store:           st,
		router:          router,
		resolver:        newResolver(alloc),
		consistency:     opts.consistency,
		tombstoneOffset: opts.tombstoneOffset,
		now:             opts.now,
		logger:          opts.logger,
	}

	// Flush failures are asynchronous but still land in the error counters.
	w.flusher = newFlusher(st, opts.invalidationInterval, opts.consistency, opts.now, opts.logger, w.counters.incError)

	return w, nil
}

// Upsert adds doc to the named index, or replaces the previous version
// if the document's unique key is already known. It returns the
// document's stable global id.
func (w *Writer) Upsert(ctx context.Context, indexName string, doc *document.Document) (core.GlobalID, error) {
	w.counters.incAdd()

	if w.closed.Load() {
		return w.failUpsert(ErrClosed)
	}

	if w.schema.UniqueKeyField == "" {
		return w.failUpsert(ErrMissingUniqueKey)
	}

	key, ok := doc.Get(w.schema.UniqueKeyField)
	if !ok || key == "" {
		return w.failUpsert(badRequest("document has no value for unique key field %q", w.schema.UniqueKeyField))
	}

	id, known, err := w.resolver.resolve(ctx, indexName, key)
	if err != nil {
		return w.failUpsert(fmt.Errorf("resolve %q: %w", key, err))
	}

	shard, local := w.router.Route(id)
	shardName := rows.Shard(indexName, shard)
	iw := w.engine.Shard(shardName)

	if known {
		term := document.Term{Field: w.schema.UniqueKeyField, Text: key}

		if err := iw.Update(ctx, term, doc, local); err != nil {
			return w.failUpsert(fmt.Errorf("update %q in %s: %w", key, shardName, err))
		}

		w.logger.Debug("replaced document", "index", indexName, "key", key, "id", uint64(id), "shard", shardName)
	} else {
		if err := iw.Add(ctx, doc, local); err != nil {
			return w.failUpsert(fmt.Errorf("add %q to %s: %w", key, shardName, err))
		}

		w.logger.Debug("added document", "index", indexName, "key", key, "id", uint64(id), "shard", shardName)
	}

	w.flusher.notify(shardName)

	return id, nil
}

// DeleteRequest scopes a delete. Exactly one of Key and Query is
// consulted, by DeleteByKey and DeleteByQuery respectively. The
// FromPending and FromCommitted flags must both be set: deletes span
// buffered and persisted state, and a half-scoped delete would leave
// the two disagreeing.
type DeleteRequest struct {
	Key   string
	Query index.Query

	FromPending   bool
	FromCommitted bool
}

// DeleteKey builds a full-scope delete of the document stored under key.
func DeleteKey(key string) DeleteRequest {
	return DeleteRequest{Key: key, FromPending: true, FromCommitted: true}
}

// DeleteQuery builds a full-scope delete of every document matching q.
func DeleteQuery(q index.Query) DeleteRequest {
	return DeleteRequest{Query: q, FromPending: true, FromCommitted: true}
}

func (r DeleteRequest) validateScope() error {
	if !r.FromPending && !r.FromCommitted {
		return badRequest("delete scopes neither pending nor committed state")
	}

	if r.FromPending != r.FromCommitted {
		return badRequest("partial deletes spanning only pending or only committed state are not supported")
	}

	return nil
}

// DeleteByKey removes the document stored under req.Key from the named
// index, releasing its id for reuse. Deleting an unknown key is a
// no-op: no index mutation and no store mutation is issued.
func (w *Writer) DeleteByKey(ctx context.Context, indexName string, req DeleteRequest) error {
	w.counters.incDeleteByKey()

	if w.closed.Load() {
		return w.fail(ErrClosed)
	}

	if w.schema.UniqueKeyField == "" {
		return w.fail(ErrMissingUniqueKey)
	}

	if err := req.validateScope(); err != nil {
		return w.fail(err)
	}

	if req.Key == "" {
		return w.fail(badRequest("delete by key without a key"))
	}

	vals, err := w.store.Read(ctx, rows.Lookup(indexName), []string{req.Key}, w.consistency)
	if err != nil {
		return w.fail(fmt.Errorf("lookup %q: %w", req.Key, err))
	}

	raw, ok := vals[req.Key]
	if !ok {
		return nil
	}

	id, err := core.ParseGlobalID(string(raw))
	if err != nil {
		return w.fail(fmt.Errorf("corrupt lookup entry for %q: %w", req.Key, err))
	}

	shard, local := w.router.Route(id)
	shardName := rows.Shard(indexName, shard)

	term := document.Term{Field: w.schema.UniqueKeyField, Text: req.Key}

	if err := w.engine.Shard(shardName).DeleteByTerm(ctx, term); err != nil {
		return w.fail(fmt.Errorf("delete %q from %s: %w", req.Key, shardName, err))
	}

	// Backdated so a racing re-add of the same key, stamped with the
	// unshifted clock, survives the tombstones.
	ts := w.now().Add(-w.tombstoneOffset)

	err = w.store.Apply(ctx, w.consistency,
		store.Delete(rows.Lookup(indexName), req.Key, ts),
		store.Delete(rows.Reuse(shardName), local.String(), ts),
	)
	if err != nil {
		return w.fail(fmt.Errorf("release id %d: %w", uint64(id), err))
	}

	w.logger.Debug("deleted document", "index", indexName, "key", req.Key, "id", uint64(id), "shard", shardName)

	w.flusher.notify(shardName)

	return nil
}

// DeleteByQuery removes every document matching req.Query on every
// shard of the named index. Match-all queries are rejected: emptying an
// index must be an explicit administrative act, and the rejection
// issues zero mutations.
//
// Unlike DeleteByKey, no lookup or reuse bookkeeping is touched: the
// ids of matched documents stay allocated until a Verifier pass
// reconciles them. Cache invalidation is likewise not scheduled.
func (w *Writer) DeleteByQuery(ctx context.Context, indexName string, req DeleteRequest) error {
	w.counters.incDeleteByQuery()

	if w.closed.Load() {
		return w.fail(ErrClosed)
	}

	if err := req.validateScope(); err != nil {
		return w.fail(err)
	}

	if req.Query == nil {
		return w.fail(badRequest("delete by query without a query"))
	}

	if _, ok := req.Query.(index.MatchAllQuery); ok {
		return w.fail(badRequest("refusing to delete every document in %q", indexName))
	}

	for shard := 0; shard < w.router.NumShards(); shard++ {
		shardName := rows.Shard(indexName, shard)

		if err := w.engine.Shard(shardName).DeleteByQuery(ctx, req.Query); err != nil {
			return w.fail(fmt.Errorf("delete by query on %s: %w", shardName, err))
		}
	}

	w.logger.Debug("deleted by query", "index", indexName, "query", req.Query.String())

	return nil
}

// Stats returns a snapshot of the operation counters.
func (w *Writer) Stats() Stats {
	return w.counters.snapshot()
}

// ResetStats clears the point-in-time counters. Cumulative counters are
// unaffected.
func (w *Writer) ResetStats() {
	w.counters.reset()
}

// Close drains pending cache invalidations and stops the coordinator.
// Subsequent writes fail with ErrClosed.
func (w *Writer) Close() error {
	if w.closed.Swap(true) {
		return nil
	}

	w.flusher.close()

	return nil
}

func (w *Writer) fail(err error) error {
	w.counters.incError()

	return err
}

func (w *Writer) failUpsert(err error) (core.GlobalID, error) {
	return 0, w.fail(err)
}
