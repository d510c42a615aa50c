// Package shardex coordinates document writes between a sharded search
// index and a distributed wide-column store.
//
// Shardex sits on the write path of a search cluster. Every document is
// identified by a unique key from the application and a stable numeric
// global id issued by shardex. The global id determines the shard a
// document lives on and its dense slot within that shard, so every node
// in the cluster routes the same document the same way.
//
// # Quick Start
//
//	ctx := context.Background()
//
//	st := store.NewMemoryStore()
//	engine := memory.New()
//
//	w, _ := shardex.New(document.Schema{UniqueKeyField: "id"}, engine, st)
//	defer w.Close()
//
//	id, _ := w.Upsert(ctx, "products", document.New(
//	    document.Field{Name: "id", Value: "sku-42"},
//	    document.Field{Name: "title", Value: "walnut desk"},
//	))
//
//	_ = w.DeleteByKey(ctx, "products", shardex.DeleteKey("sku-42"))
//
// Re-upserting a key replaces the previous version under the same id;
// deleting a key releases its id for reuse by a later document.
//
// # Bookkeeping
//
// Identity state lives in the wide-column store, one row family per
// index: a lookup row mapping keys to global ids, a per-shard reuse row
// mapping slots back to keys, and a sequence row driving range-based id
// allocation. Query deletes bypass this bookkeeping; the Verifier
// reconciles the drift offline.
//
// Production deployments back the store with the dynamo or badgerstore
// adapters; the in-memory store and index engine exist for tests and
// examples.
package shardex
