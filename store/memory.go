package store

import (
	"bytes"
	"context"
	"sync"
	"time"
)

type cell struct {
	value     []byte
	timestamp int64
	tombstone bool
}

// MemoryStore is an in-memory Store with full last-write-wins semantics,
// including per-cell timestamps and tombstones. It is the reference
// implementation for the Store contract and the backing for tests.
// ConsistencyLevel is accepted and ignored.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[string]map[string]cell
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]map[string]cell)}
}

// Read returns the live values of the requested columns.
func (m *MemoryStore) Read(ctx context.Context, row string, columns []string, cl ConsistencyLevel) (map[string][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string][]byte, len(columns))
	for _, col := range columns {
		if c, ok := m.rows[row][col]; ok && !c.tombstone {
			result[col] = append([]byte(nil), c.value...)
		}
	}
	return result, nil
}

// ReadRow returns all live columns of a row.
func (m *MemoryStore) ReadRow(ctx context.Context, row string, cl ConsistencyLevel) (map[string][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string][]byte, len(m.rows[row]))
	for col, c := range m.rows[row] {
		if !c.tombstone {
			result[col] = append([]byte(nil), c.value...)
		}
	}
	return result, nil
}

// Apply submits a batch of mutations. Each cell resolves independently by
// timestamp; a tombstone wins a timestamp tie.
func (m *MemoryStore) Apply(ctx context.Context, cl ConsistencyLevel, muts ...Mutation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, mut := range muts {
		cols, ok := m.rows[mut.Row]
		if !ok {
			cols = make(map[string]cell)
			m.rows[mut.Row] = cols
		}

		cur, exists := cols[mut.Column]
		if exists {
			if mut.Timestamp < cur.timestamp {
				continue
			}
			if mut.Timestamp == cur.timestamp && !mut.Tombstone {
				continue
			}
		}
		cols[mut.Column] = cell{
			value:     append([]byte(nil), mut.Value...),
			timestamp: mut.Timestamp,
			tombstone: mut.Tombstone,
		}
	}
	return nil
}

// CompareAndSet atomically swaps the cell value if it matches expect.
func (m *MemoryStore) CompareAndSet(ctx context.Context, row, column string, expect, value []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var current []byte
	if c, ok := m.rows[row][column]; ok && !c.tombstone {
		current = c.value
	}
	if (expect == nil) != (current == nil) || !bytes.Equal(expect, current) {
		return false, nil
	}

	cols, ok := m.rows[row]
	if !ok {
		cols = make(map[string]cell)
		m.rows[row] = cols
	}
	cols[column] = cell{
		value:     append([]byte(nil), value...),
		timestamp: time.Now().UnixMicro(),
	}
	return true, nil
}

// CellTimestamp returns the write timestamp of a cell, live or tombstoned.
// Test helper.
func (m *MemoryStore) CellTimestamp(row, column string) (int64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.rows[row][column]
	if !ok {
		return 0, false
	}
	return c.timestamp, true
}
