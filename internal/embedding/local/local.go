// Package local provides an on-device embedding model: a hashed bag-of-words
// projection into a fixed-dimension space. It needs no network access and is
// bit-for-bit deterministic, which makes it the default for development and
// tests. Its vectors live in a different space than any API model's, so an
// index built with it must never be queried through another provider.
package local

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// Embedder implements embedding.Provider with a hashed term-frequency model.
type Embedder struct {
	dimensions int
}

func New(dimensions int) (*Embedder, error) {
	if dimensions <= 0 {
		return nil, errors.New("local embedder: dimensions must be > 0")
	}
	return &Embedder{dimensions: dimensions}, nil
}

func (e *Embedder) Dimensions() int { return e.dimensions }

func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vectors[i] = e.embed(text)
	}
	return vectors, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.embed(text), nil
}

// embed hashes each token into a bucket, accumulates term frequencies and
// L2-normalizes the result so dot product equals cosine similarity.
func (e *Embedder) embed(text string) []float32 {
	vec := make([]float32, e.dimensions)
	for _, token := range tokenize(text) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(token))
		vec[int(h.Sum32())%e.dimensions]++
	}
	normalize(vec)
	return vec
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
}
