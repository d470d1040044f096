package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mohammad-safakhou/docqa/internal/chunker"
	"github.com/mohammad-safakhou/docqa/internal/index/memory"
)

// fakeEmbedder maps texts onto three axes by keyword so tests can steer
// which chunk a query retrieves.
type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	vectors := make([][]float32, len(texts))
	for i, t := range texts {
		vectors[i] = f.vector(t)
	}
	return vectors, nil
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vector(text), nil
}

func (f *fakeEmbedder) vector(text string) []float32 {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "gopher"):
		return []float32{1, 0, 0}
	case strings.Contains(lower, "python"):
		return []float32{0, 1, 0}
	default:
		return []float32{0, 0, 1}
	}
}

type fakeLLM struct {
	response string
	err      error
	calls    int
	prompt   string
}

func (f *fakeLLM) Generate(ctx context.Context, prompt string) (string, error) {
	f.calls++
	f.prompt = prompt
	return f.response, f.err
}

func (f *fakeLLM) CreateEmbedding(ctx context.Context, model string, texts []string) ([][]float32, error) {
	return nil, errors.New("not used")
}

type fakeTracker struct {
	indexed []string
	failed  map[string]string
}

func newFakeTracker() *fakeTracker {
	return &fakeTracker{failed: make(map[string]string)}
}

func (f *fakeTracker) MarkDocumentIndexed(ctx context.Context, id string) error {
	f.indexed = append(f.indexed, id)
	return nil
}

func (f *fakeTracker) MarkDocumentFailed(ctx context.Context, id, reason string) error {
	f.failed[id] = reason
	return nil
}

func newTestPipeline(t *testing.T, emb *fakeEmbedder, llm *fakeLLM, tracker DocumentTracker) *Pipeline {
	t.Helper()
	ch, err := chunker.New(chunker.Config{Size: 1000})
	if err != nil {
		t.Fatalf("chunker.New: %v", err)
	}
	idx := memory.NewStorage(filepath.Join(t.TempDir(), "index.json"))
	return New(ch, emb, idx, NewSynthesizer(llm), tracker, Config{TopK: 3})
}

func TestIngestThenAskAnswersFromDocuments(t *testing.T) {
	llm := &fakeLLM{response: "A gopher is a burrowing rodent."}
	tracker := newFakeTracker()
	p := newTestPipeline(t, &fakeEmbedder{}, llm, tracker)
	ctx := context.Background()

	if err := p.Ingest(ctx, "doc-1", "animals.txt", []byte("The gopher digs tunnels underground.")); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if len(tracker.indexed) != 1 || tracker.indexed[0] != "doc-1" {
		t.Fatalf("document not marked indexed: %+v", tracker)
	}

	answer, err := p.Ask(ctx, "what is a gopher?")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if answer != llm.response {
		t.Fatalf("got answer %q, want %q", answer, llm.response)
	}
	if !strings.Contains(llm.prompt, "The gopher digs tunnels underground.") {
		t.Fatalf("prompt missing retrieved passage:\n%s", llm.prompt)
	}
	if !strings.Contains(llm.prompt, "what is a gopher?") {
		t.Fatalf("prompt missing question:\n%s", llm.prompt)
	}
}

func TestAskWithEmptyIndexReturnsFallback(t *testing.T) {
	llm := &fakeLLM{response: "should never be used"}
	p := newTestPipeline(t, &fakeEmbedder{}, llm, nil)

	answer, err := p.Ask(context.Background(), "what is a gopher?")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if answer != FallbackAnswer {
		t.Fatalf("got %q, want the fallback answer", answer)
	}
	if llm.calls != 0 {
		t.Fatalf("model called %d times for an empty index", llm.calls)
	}
}

func TestAskEmptyQuestion(t *testing.T) {
	p := newTestPipeline(t, &fakeEmbedder{}, &fakeLLM{}, nil)

	if _, err := p.Ask(context.Background(), "   "); !errors.Is(err, ErrEmptyQuestion) {
		t.Fatalf("expected ErrEmptyQuestion, got %v", err)
	}
}

func TestIngestUnsupportedFormat(t *testing.T) {
	tracker := newFakeTracker()
	p := newTestPipeline(t, &fakeEmbedder{}, &fakeLLM{}, tracker)

	err := p.Ingest(context.Background(), "doc-1", "slides.pptx", []byte("x"))
	var ie *IngestError
	if !errors.As(err, &ie) || ie.Stage != StageExtract {
		t.Fatalf("expected extract-stage failure, got %v", err)
	}
	if _, ok := tracker.failed["doc-1"]; !ok {
		t.Fatalf("document not marked failed: %+v", tracker)
	}
}

func TestIngestEmbedFailureLeavesIndexEmpty(t *testing.T) {
	tracker := newFakeTracker()
	embErr := errors.New("embedding backend down")
	p := newTestPipeline(t, &fakeEmbedder{err: embErr}, &fakeLLM{}, tracker)
	ctx := context.Background()

	err := p.Ingest(ctx, "doc-1", "notes.txt", []byte("some text"))
	var ie *IngestError
	if !errors.As(err, &ie) || ie.Stage != StageEmbed {
		t.Fatalf("expected embed-stage failure, got %v", err)
	}
	if !errors.Is(err, embErr) {
		t.Fatalf("cause not preserved: %v", err)
	}
	if reason := tracker.failed["doc-1"]; !strings.Contains(reason, "embed") {
		t.Fatalf("failure reason %q does not name the stage", reason)
	}

	// nothing was indexed, so a later question falls back
	good := &fakeEmbedder{}
	p2 := newTestPipeline(t, good, &fakeLLM{}, nil)
	answer, err := p2.Ask(ctx, "some text?")
	if err != nil || answer != FallbackAnswer {
		t.Fatalf("expected fallback from empty index, got %q, %v", answer, err)
	}
}

func TestIngestEmptyDocument(t *testing.T) {
	tracker := newFakeTracker()
	p := newTestPipeline(t, &fakeEmbedder{}, &fakeLLM{}, tracker)

	err := p.Ingest(context.Background(), "doc-1", "empty.txt", []byte("   \n"))
	var ie *IngestError
	if !errors.As(err, &ie) || ie.Stage != StageChunk {
		t.Fatalf("expected chunk-stage failure, got %v", err)
	}
	if !errors.Is(err, chunker.ErrEmptyInput) {
		t.Fatalf("cause not preserved: %v", err)
	}
}

func TestAskRetrievesMostSimilarDocument(t *testing.T) {
	llm := &fakeLLM{response: "Gophers dig."}
	p := newTestPipeline(t, &fakeEmbedder{}, llm, nil)
	ctx := context.Background()

	if err := p.Ingest(ctx, "doc-py", "python.txt", []byte("The python is a large snake.")); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if err := p.Ingest(ctx, "doc-go", "gopher.txt", []byte("The gopher digs tunnels.")); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	if _, err := p.Ask(ctx, "tell me about the gopher"); err != nil {
		t.Fatalf("Ask: %v", err)
	}
	goIdx := strings.Index(llm.prompt, "The gopher digs tunnels.")
	pyIdx := strings.Index(llm.prompt, "The python is a large snake.")
	if goIdx < 0 {
		t.Fatalf("prompt missing the matching passage:\n%s", llm.prompt)
	}
	if pyIdx >= 0 && pyIdx < goIdx {
		t.Fatalf("less similar passage ranked first:\n%s", llm.prompt)
	}
}
