// Package vector defines the vector index collaborator boundary. The engine
// never talks to a concrete index directly; everything flows through Index so
// tests and alternative backends can swap in.
package vector

import "context"

// Document is a text payload plus the metadata fields filterable at search
// time (category, difficulty_level, target_age, source, title, keywords).
type Document struct {
	ID       string
	Text     string
	Metadata map[string]interface{}
}

// Result is one raw index hit. Distance is the index's normalized
// dissimilarity; relevance is derived as 1 - distance by callers.
type Result struct {
	ID       string
	Text     string
	Metadata map[string]interface{}
	Distance float64
}

// Stats reports collection-level counters.
type Stats struct {
	Collection string
	RowCount   int64
}

type Index interface {
	Add(ctx context.Context, collection string, doc Document) error
	Search(ctx context.Context, collection, queryText string, n int, filter map[string]interface{}) ([]Result, error)
	Update(ctx context.Context, collection string, doc Document) error
	Delete(ctx context.Context, collection, id string) error
	Stats(ctx context.Context, collection string) (Stats, error)
}
