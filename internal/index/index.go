// Package index defines the vector index contract shared by all backends.
package index

import (
	"context"
	"errors"
	"math"
)

// ErrDimensionMismatch is returned when a vector's length differs from the
// index's fixed dimensionality. This means two embedding models were mixed;
// the caller must abort, never truncate or pad.
var ErrDimensionMismatch = errors.New("index: vector dimension mismatch")

// Result is one search hit: the stored chunk text and its cosine similarity
// to the query vector.
type Result struct {
	ID    string
	Text  string
	Score float64
}

// Index stores (vector, text, metadata) entries keyed by id and supports
// exact top-K cosine similarity search.
//
// Dimensionality is fixed by the first upserted vector. Search results are
// ordered by descending score, ties broken by insertion order (earlier
// entries win); fewer than k entries returns them all, an empty index
// returns an empty slice. Entries upserted before a successful Persist are
// recoverable after Load.
type Index interface {
	Upsert(ctx context.Context, id string, vector []float32, text string, metadata map[string]interface{}) error
	Search(ctx context.Context, vector []float32, k int) ([]Result, error)
	Persist(ctx context.Context) error
	Load(ctx context.Context) error
	Dimensions() int
}

// Cosine computes cosine similarity between two vectors of equal length.
// Zero vectors score 0 against everything.
func Cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
