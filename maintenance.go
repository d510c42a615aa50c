package shardex

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hupe1980/shardex/core"
	"github.com/hupe1980/shardex/internal/rows"
	"github.com/hupe1980/shardex/store"
)

// InconsistencyKind classifies a divergence between the lookup row and
// the per-shard reuse rows.
type InconsistencyKind int

const (
	// DanglingLookup is a lookup entry whose id has no matching reuse
	// column. The id's slot would never be reclaimed.
	DanglingLookup InconsistencyKind = iota

	// OrphanReuse is a reuse column whose key no longer maps back to the
	// same id. The slot is held by a document that is gone or moved.
	OrphanReuse
)

func (k InconsistencyKind) String() string {
	switch k {
	case DanglingLookup:
		return "dangling-lookup"
	case OrphanReuse:
		return "orphan-reuse"
	default:
		return fmt.Sprintf("inconsistency(%d)", int(k))
	}
}

// Inconsistency is one divergence found by a Verifier pass.
type Inconsistency struct {
	Kind  InconsistencyKind
	Key   string
	ID    core.GlobalID
	Shard string
	Local core.LocalID
}

func (i Inconsistency) String() string {
	return fmt.Sprintf("%s key=%q id=%d shard=%s local=%d", i.Kind, i.Key, uint64(i.ID), i.Shard, uint64(i.Local))
}

// Verifier cross-checks an index's identity bookkeeping. Query deletes
// bypass the lookup and reuse rows, so those rows drift from the index
// over time; a Verifier pass finds the drift and Repair reclaims it.
type Verifier struct {
	store           store.Store
	router          *core.Router
	consistency     store.ConsistencyLevel
	tombstoneOffset time.Duration
	now             func() time.Time
	logger          *slog.Logger
}

// NewVerifier creates a Verifier over st. The shard count must match
// the Writer's, or routing disagrees and every entry looks inconsistent.
func NewVerifier(st store.Store, optFns ...Option) (*Verifier, error) {
	opts := defaultOptions()

	for _, fn := range optFns {
		fn(&opts)
	}

	router, err := core.NewRouter(opts.numShards)
	if err != nil {
		return nil, err
	}

	return &Verifier{
		store:           st,
		router:          router,
		consistency:     opts.consistency,
		tombstoneOffset: opts.tombstoneOffset,
		now:             opts.now,
		logger:          opts.logger,
	}, nil
}

// Verify reports every divergence between the named index's lookup row
// and its reuse rows. A clean index yields a nil slice.
func (v *Verifier) Verify(ctx context.Context, indexName string) ([]Inconsistency, error) {
	lookup, err := v.store.ReadRow(ctx, rows.Lookup(indexName), v.consistency)
	if err != nil {
		return nil, fmt.Errorf("read lookup row: %w", err)
	}

	reuse := make([]map[string][]byte, v.router.NumShards())

	for shard := range reuse {
		row, err := v.store.ReadRow(ctx, rows.Reuse(rows.Shard(indexName, shard)), v.consistency)
		if err != nil {
			return nil, fmt.Errorf("read reuse row for shard %d: %w", shard, err)
		}

		reuse[shard] = row
	}

	var found []Inconsistency

	for key, raw := range lookup {
		id, err := core.ParseGlobalID(string(raw))
		if err != nil {
			return nil, fmt.Errorf("corrupt lookup entry for %q: %w", key, err)
		}

		shard, local := v.router.Route(id)

		if _, ok := reuse[shard][local.String()]; !ok {
			found = append(found, Inconsistency{
				Kind:  DanglingLookup,
				Key:   key,
				ID:    id,
				Shard: rows.Shard(indexName, shard),
				Local: local,
			})
		}
	}

	for shard, row := range reuse {
		for col, key := range row {
			local, err := core.ParseLocalID(col)
			if err != nil {
				return nil, fmt.Errorf("corrupt reuse column %q on shard %d: %w", col, shard, err)
			}

			id := v.router.Compose(shard, local)

			raw, ok := lookup[string(key)]
			if ok {
				mapped, err := core.ParseGlobalID(string(raw))
				if err != nil {
					return nil, fmt.Errorf("corrupt lookup entry for %q: %w", key, err)
				}

				if mapped == id {
					continue
				}
			}

			found = append(found, Inconsistency{
				Kind:  OrphanReuse,
				Key:   string(key),
				ID:    id,
				Shard: rows.Shard(indexName, shard),
				Local: local,
			})
		}
	}

	v.logger.Info("verified index", "index", indexName, "inconsistencies", len(found))

	return found, nil
}

// Repair deletes the bookkeeping entries behind the given
// inconsistencies, releasing orphaned slots for reuse. Entries are
// tombstoned with the same backdated timestamps the write path uses, so
// a racing live write wins over the repair.
func (v *Verifier) Repair(ctx context.Context, indexName string, found []Inconsistency) error {
	if len(found) == 0 {
		return nil
	}

	ts := v.now().Add(-v.tombstoneOffset)

	muts := make([]store.Mutation, 0, len(found))

	for _, inc := range found {
		switch inc.Kind {
		case DanglingLookup:
			muts = append(muts, store.Delete(rows.Lookup(indexName), inc.Key, ts))
		case OrphanReuse:
			muts = append(muts, store.Delete(rows.Reuse(inc.Shard), inc.Local.String(), ts))
		default:
			return fmt.Errorf("unknown inconsistency kind %d", int(inc.Kind))
		}
	}

	if err := v.store.Apply(ctx, v.consistency, muts...); err != nil {
		return fmt.Errorf("repair %q: %w", indexName, err)
	}

	v.logger.Info("repaired index", "index", indexName, "entries", len(muts))

	return nil
}
