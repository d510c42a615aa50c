// Package memory provides an in-memory index engine. It implements the full
// mutation surface with exact term postings and s2-compressed stored fields,
// and exists for tests and single-process deployments; it is not a search
// engine.
package memory

import (
	"context"
	"encoding/binary"
	"fmt"
	"sort"
	"sync"

	"github.com/klauspost/compress/s2"

	"github.com/hupe1980/shardex/core"
	"github.com/hupe1980/shardex/document"
	"github.com/hupe1980/shardex/index"
)

// Engine is an in-memory index.Engine. Shards are created lazily on first
// use and are independent; writers for different shards never contend.
type Engine struct {
	mu     sync.Mutex
	shards map[string]*Shard
}

var _ index.Engine = (*Engine)(nil)

// New creates an empty engine.
func New() *Engine {
	return &Engine{shards: make(map[string]*Shard)}
}

// Shard returns the writer for the named sub-index, creating it on first use.
func (e *Engine) Shard(name string) index.Writer {
	return e.shard(name)
}

// ShardNames returns the names of all shards touched so far, sorted.
func (e *Engine) ShardNames() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	names := make([]string, 0, len(e.shards))
	for name := range e.shards {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (e *Engine) shard(name string) *Shard {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.shards[name]
	if !ok {
		s = newShard()
		e.shards[name] = s
	}
	return s
}

// Shard is one sub-index: exact term postings plus compressed stored fields.
type Shard struct {
	mu       sync.RWMutex
	postings map[document.Term]map[core.LocalID]struct{}
	stored   map[core.LocalID][]byte // s2-compressed field block
}

var _ index.Writer = (*Shard)(nil)

func newShard() *Shard {
	return &Shard{
		postings: make(map[document.Term]map[core.LocalID]struct{}),
		stored:   make(map[core.LocalID][]byte),
	}
}

// Add indexes doc under the given shard-local ID.
func (s *Shard) Add(ctx context.Context, doc *document.Document, id core.LocalID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.addLocked(doc, id)
	return nil
}

// Update removes whatever is indexed under term and indexes doc under id.
func (s *Shard) Update(ctx context.Context, term document.Term, doc *document.Document, id core.LocalID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deleteByTermLocked(term)
	s.addLocked(doc, id)
	return nil
}

// DeleteByTerm removes every document containing the exact term.
func (s *Shard) DeleteByTerm(ctx context.Context, term document.Term) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deleteByTermLocked(term)
	return nil
}

// DeleteByQuery removes every document matching the query. Supported query
// types are TermQuery and MatchAllQuery.
func (s *Shard) DeleteByQuery(ctx context.Context, q index.Query) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch q := q.(type) {
	case index.MatchAllQuery:
		s.postings = make(map[document.Term]map[core.LocalID]struct{})
		s.stored = make(map[core.LocalID][]byte)
		return nil
	case index.TermQuery:
		s.deleteByTermLocked(q.Term)
		return nil
	default:
		return fmt.Errorf("memory: unsupported query type %T", q)
	}
}

// Count returns the number of live documents in the shard.
func (s *Shard) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.stored)
}

// Search returns the sorted shard-local IDs of documents containing term.
func (s *Shard) Search(term document.Term) []core.LocalID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]core.LocalID, 0, len(s.postings[term]))
	for id := range s.postings[term] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Document returns the stored fields of the document under id.
func (s *Shard) Document(id core.LocalID) (*document.Document, bool) {
	s.mu.RLock()
	block, ok := s.stored[id]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}

	doc, err := decodeFields(block)
	if err != nil {
		return nil, false
	}
	return doc, true
}

func (s *Shard) addLocked(doc *document.Document, id core.LocalID) {
	for _, term := range doc.Terms() {
		ids, ok := s.postings[term]
		if !ok {
			ids = make(map[core.LocalID]struct{})
			s.postings[term] = ids
		}
		ids[id] = struct{}{}
	}
	s.stored[id] = encodeFields(doc)
}

func (s *Shard) deleteByTermLocked(term document.Term) {
	for id := range s.postings[term] {
		delete(s.stored, id)
		for t, ids := range s.postings {
			delete(ids, id)
			if len(ids) == 0 {
				delete(s.postings, t)
			}
		}
	}
}

// encodeFields serializes a document's fields as length-prefixed pairs and
// compresses the block with s2.
func encodeFields(doc *document.Document) []byte {
	var buf []byte
	var tmp [binary.MaxVarintLen64]byte
	for _, f := range doc.Fields() {
		n := binary.PutUvarint(tmp[:], uint64(len(f.Name)))
		buf = append(buf, tmp[:n]...)
		buf = append(buf, f.Name...)
		n = binary.PutUvarint(tmp[:], uint64(len(f.Value)))
		buf = append(buf, tmp[:n]...)
		buf = append(buf, f.Value...)
	}
	return s2.Encode(nil, buf)
}

func decodeFields(block []byte) (*document.Document, error) {
	buf, err := s2.Decode(nil, block)
	if err != nil {
		return nil, err
	}

	doc := document.New()
	for len(buf) > 0 {
		name, rest, err := readString(buf)
		if err != nil {
			return nil, err
		}
		value, rest, err := readString(rest)
		if err != nil {
			return nil, err
		}
		doc.AddField(name, value)
		buf = rest
	}
	return doc, nil
}

func readString(buf []byte) (string, []byte, error) {
	l, n := binary.Uvarint(buf)
	if n <= 0 || uint64(len(buf)-n) < l {
		return "", nil, fmt.Errorf("memory: corrupt stored field block")
	}
	return string(buf[n : n+int(l)]), buf[n+int(l):], nil
}
