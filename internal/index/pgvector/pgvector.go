// Package pgvector backs the vector index with Postgres and the pgvector
// extension. Durability comes from the database, so Persist is a no-op and
// Load only restores the collection's registered dimensionality.
package pgvector

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	pgv "github.com/pgvector/pgvector-go"

	"github.com/mohammad-safakhou/docqa/internal/index"
)

// Storage implements index.Index on top of a shared *sql.DB.
type Storage struct {
	db         *sql.DB
	collection string

	mu         sync.Mutex
	dimensions int
}

func NewStorage(db *sql.DB, collection string) *Storage {
	return &Storage{db: db, collection: collection}
}

func (s *Storage) Dimensions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dimensions
}

// Upsert inserts or replaces the entry for id. The collection's
// dimensionality is registered on first insert; later vectors must match it.
// ON CONFLICT keeps the original seq so tie-breaking still follows first
// insertion order.
func (s *Storage) Upsert(ctx context.Context, id string, vector []float32, text string, metadata map[string]interface{}) error {
	if len(vector) == 0 {
		return fmt.Errorf("upsert %q: empty vector", id)
	}
	dims, err := s.ensureDimensions(ctx, len(vector))
	if err != nil {
		return err
	}
	if len(vector) != dims {
		return fmt.Errorf("%w: got %d, collection %q has %d", index.ErrDimensionMismatch, len(vector), s.collection, dims)
	}

	var metaBytes []byte
	if metadata != nil {
		metaBytes, err = json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO index_entries (collection, id, embedding, chunk_text, metadata)
VALUES ($1,$2,$3::vector,$4,$5)
ON CONFLICT (collection, id) DO UPDATE SET
  embedding = EXCLUDED.embedding,
  chunk_text = EXCLUDED.chunk_text,
  metadata = EXCLUDED.metadata
`, s.collection, id, pgv.NewVector(vector), text, metaBytes)
	if err != nil {
		return fmt.Errorf("upsert index entry: %w", err)
	}
	return nil
}

// Search runs an exact cosine scan ordered by distance, seq breaking ties.
func (s *Storage) Search(ctx context.Context, vector []float32, k int) ([]index.Result, error) {
	dims := s.Dimensions()
	if dims != 0 && len(vector) != dims {
		return nil, fmt.Errorf("%w: got %d, collection %q has %d", index.ErrDimensionMismatch, len(vector), s.collection, dims)
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, chunk_text, 1 - (embedding <=> $2::vector) AS score
FROM index_entries
WHERE collection = $1
ORDER BY embedding <=> $2::vector ASC, seq ASC
LIMIT $3
`, s.collection, pgv.NewVector(vector), k)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}
	defer rows.Close()

	results := make([]index.Result, 0, k)
	for rows.Next() {
		var r index.Result
		if err := rows.Scan(&r.ID, &r.Text, &r.Score); err != nil {
			return nil, fmt.Errorf("scan search result: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}
	return results, nil
}

// Persist is a no-op: every upsert is already durable in Postgres.
func (s *Storage) Persist(ctx context.Context) error { return nil }

// Load restores the collection's dimensionality from the registry table.
func (s *Storage) Load(ctx context.Context) error {
	var dims int
	err := s.db.QueryRowContext(ctx,
		`SELECT dimensions FROM index_collections WHERE collection = $1`, s.collection).Scan(&dims)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load collection %q: %w", s.collection, err)
	}
	s.mu.Lock()
	s.dimensions = dims
	s.mu.Unlock()
	return nil
}

// ensureDimensions registers the collection's dimensionality on first insert
// and returns the authoritative value.
func (s *Storage) ensureDimensions(ctx context.Context, candidate int) (int, error) {
	s.mu.Lock()
	if s.dimensions != 0 {
		dims := s.dimensions
		s.mu.Unlock()
		return dims, nil
	}
	s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
INSERT INTO index_collections (collection, dimensions)
VALUES ($1,$2)
ON CONFLICT (collection) DO NOTHING
`, s.collection, candidate)
	if err != nil {
		return 0, fmt.Errorf("register collection %q: %w", s.collection, err)
	}
	var dims int
	err = s.db.QueryRowContext(ctx,
		`SELECT dimensions FROM index_collections WHERE collection = $1`, s.collection).Scan(&dims)
	if err != nil {
		return 0, fmt.Errorf("load collection %q: %w", s.collection, err)
	}
	s.mu.Lock()
	s.dimensions = dims
	s.mu.Unlock()
	return dims, nil
}

var _ index.Index = (*Storage)(nil)
