// Package index defines the inverted-index engine contract the write path
// drives. The engine itself (segment encoding, analysis, search) is an
// external collaborator; this package only fixes the mutation surface and
// the query types the delete path needs to inspect.
package index

import (
	"context"

	"github.com/hupe1980/shardex/core"
	"github.com/hupe1980/shardex/document"
)

// Query selects documents for delete-by-query. The write coordinator only
// inspects queries enough to reject match-all deletes; everything else is
// forwarded to the engine verbatim.
type Query interface {
	// String returns a debug representation of the query.
	String() string
}

// MatchAllQuery matches every document. The write coordinator rejects
// deletes with this query; it exists so callers can be told apart from
// term-scoped deletes.
type MatchAllQuery struct{}

func (MatchAllQuery) String() string { return "*:*" }

// TermQuery matches documents containing the exact term.
type TermQuery struct {
	Term document.Term
}

func (q TermQuery) String() string { return q.Term.Field + ":" + q.Term.Text }

// MatchAll returns a query matching every document.
func MatchAll() Query { return MatchAllQuery{} }

// ByTerm returns a query matching documents containing the exact term.
func ByTerm(field, text string) Query {
	return TermQuery{Term: document.Term{Field: field, Text: text}}
}

// Writer is the mutation surface of one shard's sub-index. All operations
// are scoped to the shard the Writer was obtained for.
type Writer interface {
	// Add indexes a new document under the given shard-local ID.
	Add(ctx context.Context, doc *document.Document, id core.LocalID) error

	// Update replaces the document currently indexed under term with doc,
	// indexed under the given shard-local ID.
	Update(ctx context.Context, term document.Term, doc *document.Document, id core.LocalID) error

	// DeleteByTerm removes every document matching the exact term.
	DeleteByTerm(ctx context.Context, term document.Term) error

	// DeleteByQuery removes every document matching the query. Engines may
	// reject query types they cannot evaluate.
	DeleteByQuery(ctx context.Context, q Query) error
}

// Engine hands out shard-scoped writers. Selecting the shard is an explicit
// step before every operation; the returned Writer carries no state other
// than the shard binding and may be used concurrently with writers for
// other shards.
type Engine interface {
	// Shard returns the writer for the named sub-index, creating it on first
	// use.
	Shard(name string) Writer
}
