// Package qdrant implements the vector index against a remote Qdrant
// instance through its REST API. The collection is created on first upsert
// with cosine distance; Qdrant owns durability, so Persist is a no-op.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mohammad-safakhou/docqa/internal/index"
)

// pointID derives a deterministic UUID for an entry id. Qdrant accepts only
// unsigned integers or UUIDs as point ids, so the entry id itself travels in
// the payload instead.
func pointID(id string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String()
}

// Storage is a minimal REST client to Qdrant.
type Storage struct {
	url        string
	apiKey     string
	collection string
	client     *http.Client

	mu         sync.Mutex
	dimensions int
	nextSeq    int64
}

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

func NewStorage(cfg Config) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Storage{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
	}
}

func (s *Storage) Dimensions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dimensions
}

// Upsert inserts or replaces the point for id. A replaced point keeps its
// original insertion seq (stored in the payload) so search tie-breaking is
// stable across re-indexing.
func (s *Storage) Upsert(ctx context.Context, id string, vector []float32, text string, metadata map[string]interface{}) error {
	if len(vector) == 0 {
		return fmt.Errorf("upsert %q: empty vector", id)
	}
	if err := s.ensureCollection(ctx, len(vector)); err != nil {
		return err
	}
	if dims := s.Dimensions(); len(vector) != dims {
		return fmt.Errorf("%w: got %d, collection %q has %d", index.ErrDimensionMismatch, len(vector), s.collection, dims)
	}

	seq, err := s.seqFor(ctx, pointID(id))
	if err != nil {
		return err
	}

	payload := map[string]interface{}{
		"text": text,
		"seq":  seq,
	}
	for k, v := range metadata {
		payload[k] = v
	}
	payload["id"] = id
	body := map[string]interface{}{
		"points": []map[string]interface{}{{
			"id":      pointID(id),
			"vector":  vector,
			"payload": payload,
		}},
	}
	return s.do(ctx, http.MethodPut,
		fmt.Sprintf("%s/collections/%s/points?wait=true", s.url, s.collection), body, nil)
}

// Search returns up to k points by cosine similarity. Qdrant orders by score;
// equal scores are re-ordered client-side by insertion seq.
func (s *Storage) Search(ctx context.Context, vector []float32, k int) ([]index.Result, error) {
	if dims := s.Dimensions(); dims != 0 && len(vector) != dims {
		return nil, fmt.Errorf("%w: got %d, collection %q has %d", index.ErrDimensionMismatch, len(vector), s.collection, dims)
	}

	req := map[string]interface{}{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			ID      interface{}            `json:"id"`
			Score   float64                `json:"score"`
			Payload map[string]interface{} `json:"payload"`
		} `json:"result"`
	}
	err := s.do(ctx, http.MethodPost,
		fmt.Sprintf("%s/collections/%s/points/search", s.url, s.collection), req, &resp)
	if err != nil {
		return nil, err
	}

	type hit struct {
		result index.Result
		seq    float64
	}
	hits := make([]hit, 0, len(resp.Result))
	for _, r := range resp.Result {
		h := hit{result: index.Result{Score: r.Score}}
		if id, ok := r.Payload["id"].(string); ok {
			h.result.ID = id
		} else if id, ok := r.ID.(string); ok {
			h.result.ID = id
		}
		if text, ok := r.Payload["text"].(string); ok {
			h.result.Text = text
		}
		if seq, ok := r.Payload["seq"].(float64); ok {
			h.seq = seq
		}
		hits = append(hits, h)
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].result.Score != hits[j].result.Score {
			return hits[i].result.Score > hits[j].result.Score
		}
		return hits[i].seq < hits[j].seq
	})

	results := make([]index.Result, 0, len(hits))
	for _, h := range hits {
		results = append(results, h.result)
	}
	return results, nil
}

// Persist is a no-op: upserts run with wait=true and Qdrant stores them durably.
func (s *Storage) Persist(ctx context.Context) error { return nil }

// Load restores dimensionality and the seq counter from the live collection.
// A missing collection leaves the index unconfigured until the first upsert.
func (s *Storage) Load(ctx context.Context) error {
	var resp struct {
		Result struct {
			PointsCount int64 `json:"points_count"`
			Config      struct {
				Params struct {
					Vectors struct {
						Size int `json:"size"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	err := s.do(ctx, http.MethodGet, fmt.Sprintf("%s/collections/%s", s.url, s.collection), nil, &resp)
	if err != nil {
		var se *statusError
		if errors.As(err, &se) && se.code == http.StatusNotFound {
			return nil
		}
		return fmt.Errorf("load collection %q: %w", s.collection, err)
	}
	s.mu.Lock()
	s.dimensions = resp.Result.Config.Params.Vectors.Size
	s.nextSeq = resp.Result.PointsCount
	s.mu.Unlock()
	return nil
}

func (s *Storage) ensureCollection(ctx context.Context, dims int) error {
	s.mu.Lock()
	if s.dimensions != 0 {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	body := map[string]interface{}{
		"vectors": map[string]interface{}{
			"size":     dims,
			"distance": "Cosine",
		},
	}
	if err := s.do(ctx, http.MethodPut, fmt.Sprintf("%s/collections/%s", s.url, s.collection), body, nil); err != nil {
		return fmt.Errorf("create collection %q: %w", s.collection, err)
	}
	s.mu.Lock()
	s.dimensions = dims
	s.mu.Unlock()
	return nil
}

// seqFor returns the existing seq for a point, or allocates the next one.
// A retrieve failure is an error: allocating a fresh seq on a transient
// failure would reorder ties for an already-stored point.
func (s *Storage) seqFor(ctx context.Context, pointID string) (int64, error) {
	req := map[string]interface{}{
		"ids":          []string{pointID},
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			Payload map[string]interface{} `json:"payload"`
		} `json:"result"`
	}
	err := s.do(ctx, http.MethodPost, fmt.Sprintf("%s/collections/%s/points", s.url, s.collection), req, &resp)
	if err != nil {
		return 0, fmt.Errorf("read point %q: %w", pointID, err)
	}
	if len(resp.Result) > 0 {
		if seq, ok := resp.Result[0].Payload["seq"].(float64); ok {
			return int64(seq), nil
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	seq := s.nextSeq
	s.nextSeq++
	return seq, nil
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("qdrant returned status %d: %s", e.code, e.body)
}

func (s *Storage) do(ctx context.Context, method, url string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read qdrant response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return &statusError{code: resp.StatusCode, body: string(data)}
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode qdrant response: %w", err)
		}
	}
	return nil
}

var _ index.Index = (*Storage)(nil)
