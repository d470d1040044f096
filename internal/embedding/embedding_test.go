package embedding

import (
	"context"
	"fmt"
	"testing"
)

type fakeProvider struct {
	calls   [][]string
	failOn  int
	callNum int
}

func (f *fakeProvider) Generate(ctx context.Context, prompt string) (string, error) {
	return "", fmt.Errorf("not implemented")
}

func (f *fakeProvider) CreateEmbedding(ctx context.Context, model string, texts []string) ([][]float32, error) {
	f.callNum++
	if f.failOn > 0 && f.callNum == f.failOn {
		return nil, fmt.Errorf("backend down")
	}
	f.calls = append(f.calls, texts)
	vecs := make([][]float32, len(texts))
	for i, t := range texts {
		vecs[i] = []float32{float32(len(t)), 0, 0}
	}
	return vecs, nil
}

func TestRemoteBatchesIngestion(t *testing.T) {
	p := &fakeProvider{}
	r := NewRemote(p, "test-model", 2)

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	vecs, err := r.EmbedTexts(context.Background(), texts)
	if err != nil {
		t.Fatalf("EmbedTexts: %v", err)
	}
	if len(vecs) != len(texts) {
		t.Fatalf("expected %d vectors, got %d", len(texts), len(vecs))
	}
	if len(p.calls) != 3 {
		t.Fatalf("expected 3 batches, got %d", len(p.calls))
	}
	for i, text := range texts {
		if vecs[i][0] != float32(len(text)) {
			t.Fatalf("vector %d out of order: %v", i, vecs[i])
		}
	}
}

func TestRemoteEmbedQueryMatchesBatch(t *testing.T) {
	r := NewRemote(&fakeProvider{}, "test-model", 8)

	batch, err := r.EmbedTexts(context.Background(), []string{"question"})
	if err != nil {
		t.Fatalf("EmbedTexts: %v", err)
	}
	single, err := r.EmbedQuery(context.Background(), "question")
	if err != nil {
		t.Fatalf("EmbedQuery: %v", err)
	}
	for i := range single {
		if batch[0][i] != single[i] {
			t.Fatalf("batch and query embeddings differ at %d", i)
		}
	}
}

func TestRemotePropagatesProviderError(t *testing.T) {
	p := &fakeProvider{failOn: 2}
	r := NewRemote(p, "test-model", 1)

	if _, err := r.EmbedTexts(context.Background(), []string{"one", "two"}); err == nil {
		t.Fatal("expected error from failing batch")
	}
}

func TestRemoteEmptyInput(t *testing.T) {
	r := NewRemote(&fakeProvider{}, "test-model", 8)
	vecs, err := r.EmbedTexts(context.Background(), nil)
	if err != nil {
		t.Fatalf("EmbedTexts: %v", err)
	}
	if vecs != nil {
		t.Fatalf("expected nil for empty input, got %v", vecs)
	}
}
