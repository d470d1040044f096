// Package memory is an in-process vector index using brute-force cosine
// similarity, with JSON snapshots on disk as its durability boundary.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/mohammad-safakhou/docqa/internal/index"
)

type entry struct {
	ID       string                 `json:"id"`
	Vector   []float32              `json:"vector"`
	Text     string                 `json:"text"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	Seq      int                    `json:"seq"`
}

type snapshot struct {
	Dimensions int     `json:"dimensions"`
	NextSeq    int     `json:"next_seq"`
	Entries    []entry `json:"entries"`
}

// Storage holds entries behind a RWMutex: upserts for the same id serialize,
// searches see either the old or the new entry, never a mix.
type Storage struct {
	mu         sync.RWMutex
	path       string
	dimensions int
	nextSeq    int
	entries    map[string]entry
}

// NewStorage creates an empty index persisting snapshots at path.
func NewStorage(path string) *Storage {
	return &Storage{path: path, entries: make(map[string]entry)}
}

func (s *Storage) Dimensions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dimensions
}

// Upsert inserts or replaces the entry for id. A replaced entry keeps its
// original insertion position for tie-breaking.
func (s *Storage) Upsert(ctx context.Context, id string, vector []float32, text string, metadata map[string]interface{}) error {
	if len(vector) == 0 {
		return fmt.Errorf("upsert %q: empty vector", id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dimensions == 0 {
		s.dimensions = len(vector)
	} else if len(vector) != s.dimensions {
		return fmt.Errorf("%w: got %d, index has %d", index.ErrDimensionMismatch, len(vector), s.dimensions)
	}

	seq := s.nextSeq
	if prev, ok := s.entries[id]; ok {
		seq = prev.Seq
	} else {
		s.nextSeq++
	}
	s.entries[id] = entry{ID: id, Vector: vector, Text: text, Metadata: metadata, Seq: seq}
	return nil
}

// Search returns the k entries with highest cosine similarity, descending,
// ties broken by insertion order.
func (s *Storage) Search(ctx context.Context, vector []float32, k int) ([]index.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.entries) == 0 {
		return []index.Result{}, nil
	}
	if s.dimensions != 0 && len(vector) != s.dimensions {
		return nil, fmt.Errorf("%w: got %d, index has %d", index.ErrDimensionMismatch, len(vector), s.dimensions)
	}

	type scored struct {
		entry entry
		score float64
	}
	all := make([]scored, 0, len(s.entries))
	for _, e := range s.entries {
		all = append(all, scored{entry: e, score: index.Cosine(e.Vector, vector)})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].score != all[j].score {
			return all[i].score > all[j].score
		}
		return all[i].entry.Seq < all[j].entry.Seq
	})

	if k > len(all) {
		k = len(all)
	}
	results := make([]index.Result, 0, k)
	for _, sc := range all[:k] {
		results = append(results, index.Result{ID: sc.entry.ID, Text: sc.entry.Text, Score: sc.score})
	}
	return results, nil
}

// Persist writes a snapshot atomically (temp file + rename).
func (s *Storage) Persist(ctx context.Context) error {
	s.mu.RLock()
	snap := snapshot{Dimensions: s.dimensions, NextSeq: s.nextSeq, Entries: make([]entry, 0, len(s.entries))}
	for _, e := range s.entries {
		snap.Entries = append(snap.Entries, e)
	}
	s.mu.RUnlock()

	sort.Slice(snap.Entries, func(i, j int) bool { return snap.Entries[i].Seq < snap.Entries[j].Seq })

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("persist index: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("persist index: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("persist index: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("persist index: %w", err)
	}
	return nil
}

// Load replaces the in-memory state with the last persisted snapshot.
// A missing snapshot file leaves the index empty, which is not an error.
func (s *Storage) Load(ctx context.Context) error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("load index: %w", err)
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("load index: %w", err)
	}

	entries := make(map[string]entry, len(snap.Entries))
	for _, e := range snap.Entries {
		if snap.Dimensions != 0 && len(e.Vector) != snap.Dimensions {
			return fmt.Errorf("%w: snapshot entry %q has %d dimensions, snapshot has %d",
				index.ErrDimensionMismatch, e.ID, len(e.Vector), snap.Dimensions)
		}
		entries[e.ID] = e
	}

	s.mu.Lock()
	s.dimensions = snap.Dimensions
	s.nextSeq = snap.NextSeq
	s.entries = entries
	s.mu.Unlock()
	return nil
}

var _ index.Index = (*Storage)(nil)
