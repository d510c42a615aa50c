// Package badgerstore implements store.Store on an embedded Badger database.
// It is the single-node deployment option: one process owns the database,
// consistency levels are accepted and ignored, and the last-write-wins cell
// semantics are enforced inside Badger transactions.
package badgerstore

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/hupe1980/shardex/store"
)

// keySeparator joins row and column in the Badger keyspace. Row names must
// not contain it.
const keySeparator = 0x00

const (
	flagTombstone = 1 << 0
)

// Options configures a Store.
type Options struct {
	// SyncWrites forces an fsync per commit. Off by default; the backing
	// store contract treats durability as the store's own concern.
	SyncWrites bool

	// InMemory runs Badger without touching disk. Path is ignored.
	InMemory bool
}

// Store is a Badger-backed wide-column store.
type Store struct {
	db  *badger.DB
	now func() time.Time
}

var _ store.Store = (*Store)(nil)

// Open opens (or creates) a store at path.
func Open(path string, optFns ...func(*Options)) (*Store, error) {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}

	badgerOpts := badger.DefaultOptions(path)
	badgerOpts.Logger = nil
	badgerOpts.SyncWrites = opts.SyncWrites
	if opts.InMemory {
		badgerOpts = badgerOpts.WithInMemory(true).WithDir("").WithValueDir("")
	}

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("badgerstore: open %q: %w", path, err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Read returns the live values of the requested columns.
func (s *Store) Read(ctx context.Context, row string, columns []string, cl store.ConsistencyLevel) (map[string][]byte, error) {
	result := make(map[string][]byte, len(columns))
	err := s.db.View(func(txn *badger.Txn) error {
		for _, col := range columns {
			item, err := txn.Get(cellKey(row, col))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if err := item.Value(func(raw []byte) error {
				c, err := decodeCell(raw)
				if err != nil {
					return err
				}
				if !c.tombstone {
					result[col] = append([]byte(nil), c.value...)
				}
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badgerstore: read row %q: %w", row, err)
	}
	return result, nil
}

// ReadRow returns all live columns of a row.
func (s *Store) ReadRow(ctx context.Context, row string, cl store.ConsistencyLevel) (map[string][]byte, error) {
	prefix := cellKey(row, "")
	result := make(map[string][]byte)
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix, PrefetchValues: true, PrefetchSize: 64})
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			col := string(item.Key()[len(prefix):])
			if err := item.Value(func(raw []byte) error {
				c, err := decodeCell(raw)
				if err != nil {
					return err
				}
				if !c.tombstone {
					result[col] = append([]byte(nil), c.value...)
				}
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badgerstore: read row %q: %w", row, err)
	}
	return result, nil
}

// Apply submits a batch of mutations. Cells resolve by timestamp inside a
// single transaction; a tombstone wins a timestamp tie.
func (s *Store) Apply(ctx context.Context, cl store.ConsistencyLevel, muts ...store.Mutation) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, mut := range muts {
			key := cellKey(mut.Row, mut.Column)

			item, err := txn.Get(key)
			if err == nil {
				var cur cellValue
				if err := item.Value(func(raw []byte) error {
					cur, err = decodeCell(raw)
					return err
				}); err != nil {
					return err
				}
				if mut.Timestamp < cur.timestamp {
					continue
				}
				if mut.Timestamp == cur.timestamp && !mut.Tombstone {
					continue
				}
			} else if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}

			if err := txn.Set(key, encodeCell(cellValue{
				value:     mut.Value,
				timestamp: mut.Timestamp,
				tombstone: mut.Tombstone,
			})); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("badgerstore: apply batch: %w", err)
	}
	return nil
}

// CompareAndSet atomically swaps the cell value if it matches expect.
func (s *Store) CompareAndSet(ctx context.Context, row, column string, expect, value []byte) (bool, error) {
	applied := false
	err := s.db.Update(func(txn *badger.Txn) error {
		key := cellKey(row, column)

		var current []byte
		item, err := txn.Get(key)
		if err == nil {
			if err := item.Value(func(raw []byte) error {
				c, err := decodeCell(raw)
				if err != nil {
					return err
				}
				if !c.tombstone {
					current = append([]byte(nil), c.value...)
				}
				return nil
			}); err != nil {
				return err
			}
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		if (expect == nil) != (current == nil) || !bytes.Equal(expect, current) {
			return nil
		}

		if err := txn.Set(key, encodeCell(cellValue{
			value:     value,
			timestamp: s.now().UnixMicro(),
		})); err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("badgerstore: compare-and-set %q/%q: %w", row, column, err)
	}
	return applied, nil
}

func cellKey(row, column string) []byte {
	key := make([]byte, 0, len(row)+1+len(column))
	key = append(key, row...)
	key = append(key, keySeparator)
	key = append(key, column...)
	return key
}

type cellValue struct {
	value     []byte
	timestamp int64
	tombstone bool
}

// encodeCell lays a cell out as [ts:8][flags:1][value...].
func encodeCell(c cellValue) []byte {
	buf := make([]byte, 9+len(c.value))
	binary.BigEndian.PutUint64(buf, uint64(c.timestamp))
	if c.tombstone {
		buf[8] |= flagTombstone
	}
	copy(buf[9:], c.value)
	return buf
}

func decodeCell(raw []byte) (cellValue, error) {
	if len(raw) < 9 {
		return cellValue{}, fmt.Errorf("badgerstore: corrupt cell (%d bytes)", len(raw))
	}
	return cellValue{
		timestamp: int64(binary.BigEndian.Uint64(raw)),
		tombstone: raw[8]&flagTombstone != 0,
		value:     raw[9:],
	}, nil
}
