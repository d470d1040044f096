// Package embedding maps text to fixed-length vectors for similarity search.
package embedding

import (
	"context"
	"fmt"

	"github.com/mohammad-safakhou/docqa/provider"
)

// Provider is the capability interface the retrieval pipeline depends on.
// Implementations must be deterministic for a fixed model version: the same
// input yields the same vector, and EmbedQuery(t) equals EmbedTexts([t])[0].
type Provider interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Remote embeds text through an API-backed provider, batching ingestion
// requests so a document's chunks go out in as few calls as possible.
type Remote struct {
	provider  provider.Provider
	model     string
	batchSize int
}

func NewRemote(p provider.Provider, model string, batchSize int) *Remote {
	if batchSize <= 0 {
		batchSize = 32
	}
	return &Remote{provider: p, model: model, batchSize: batchSize}
}

func (r *Remote) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += r.batchSize {
		end := start + r.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]
		resp, err := r.provider.CreateEmbedding(ctx, r.model, batch)
		if err != nil {
			return nil, err
		}
		if len(resp) != len(batch) {
			return nil, fmt.Errorf("embed texts: expected %d vectors, got %d", len(batch), len(resp))
		}
		vectors = append(vectors, resp...)
	}
	return vectors, nil
}

func (r *Remote) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := r.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embed query: provider returned no vectors")
	}
	return vectors[0], nil
}
