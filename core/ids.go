package core

import "strconv"

// GlobalID is the cluster-wide stable identifier of a document. IDs are
// issued monotonically per index by the allocation service and are unique
// per (index, key) for the lifetime of the document. A released ID may be
// reissued after the document is deleted.
type GlobalID uint64

// LocalID is a dense, shard-local identifier for a document within a single
// shard's index. It is strictly 32-bit; all per-shard bookkeeping (reuse
// rows, posting storage) is keyed by LocalID.
type LocalID uint32

// MaxLocalID is the maximum possible value for a LocalID.
const MaxLocalID = ^LocalID(0)

// String returns the decimal wire form of the ID, as stored in lookup rows.
func (g GlobalID) String() string {
	return strconv.FormatUint(uint64(g), 10)
}

// ParseGlobalID parses the decimal wire form of a GlobalID.
func ParseGlobalID(s string) (GlobalID, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return GlobalID(v), nil
}

// String returns the decimal wire form of the ID, as used for reuse-row
// column names.
func (l LocalID) String() string {
	return strconv.FormatUint(uint64(l), 10)
}

// ParseLocalID parses the decimal wire form of a LocalID.
func ParseLocalID(s string) (LocalID, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, err
	}
	return LocalID(v), nil
}
