// Package pipeline drives documents from raw upload bytes to the vector index
// and answers questions against what has been indexed.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/mohammad-safakhou/docqa/internal/chunker"
	"github.com/mohammad-safakhou/docqa/internal/embedding"
	"github.com/mohammad-safakhou/docqa/internal/extract"
	"github.com/mohammad-safakhou/docqa/internal/index"
)

// ErrEmptyQuestion is returned by Ask for empty or whitespace-only questions.
var ErrEmptyQuestion = errors.New("pipeline: empty question")

// Stage names the ingestion step a failure occurred in.
type Stage string

const (
	StageExtract Stage = "extract"
	StageChunk   Stage = "chunk"
	StageEmbed   Stage = "embed"
	StageIndex   Stage = "index"
	StagePersist Stage = "persist"
)

// IngestError reports which stage an ingestion failed in. Entries written
// before the failure stay in the index; other documents are unaffected.
type IngestError struct {
	Stage Stage
	Err   error
}

func (e *IngestError) Error() string {
	return fmt.Sprintf("ingest failed at %s: %v", e.Stage, e.Err)
}

func (e *IngestError) Unwrap() error { return e.Err }

// DocumentTracker records ingestion outcomes. *store.Store satisfies it.
type DocumentTracker interface {
	MarkDocumentIndexed(ctx context.Context, id string) error
	MarkDocumentFailed(ctx context.Context, id, reason string) error
}

// Config tunes the pipeline.
type Config struct {
	TopK                 int
	CallTimeout          time.Duration // per embed/generate call, 0 means none
	MaxConcurrentIngests int
}

// Pipeline owns the ingestion and query paths. One Pipeline serves the whole
// process; ingestions run concurrently up to MaxConcurrentIngests.
type Pipeline struct {
	chunker     *chunker.Chunker
	embedder    embedding.Provider
	index       index.Index
	synthesizer *Synthesizer
	tracker     DocumentTracker

	topK        int
	callTimeout time.Duration
	semaphore   chan struct{}
	logger      *log.Logger
}

func New(ch *chunker.Chunker, emb embedding.Provider, idx index.Index, syn *Synthesizer, tracker DocumentTracker, cfg Config) *Pipeline {
	topK := cfg.TopK
	if topK <= 0 {
		topK = 3
	}
	maxIngests := cfg.MaxConcurrentIngests
	if maxIngests <= 0 {
		maxIngests = 4
	}
	return &Pipeline{
		chunker:     ch,
		embedder:    emb,
		index:       idx,
		synthesizer: syn,
		tracker:     tracker,
		topK:        topK,
		callTimeout: cfg.CallTimeout,
		semaphore:   make(chan struct{}, maxIngests),
		logger:      log.New(os.Stdout, "[PIPELINE] ", log.LstdFlags),
	}
}

// Ingest runs one document through extract, chunk, embed and index, then
// persists the index. The document id must already be registered with the
// tracker; Ingest records the terminal status (indexed or failed).
func (p *Pipeline) Ingest(ctx context.Context, docID, filename string, data []byte) error {
	select {
	case p.semaphore <- struct{}{}:
		defer func() { <-p.semaphore }()
	case <-ctx.Done():
		return ctx.Err()
	}

	started := time.Now()
	err := p.ingest(ctx, docID, filename, data)
	if err != nil {
		ingestsTotal.WithLabelValues("failed").Inc()
		p.logger.Printf("document %s (%s): %v", docID, filename, err)
		if p.tracker != nil {
			if terr := p.tracker.MarkDocumentFailed(ctx, docID, err.Error()); terr != nil {
				p.logger.Printf("document %s: record failure: %v", docID, terr)
			}
		}
		return err
	}

	ingestsTotal.WithLabelValues("indexed").Inc()
	ingestDuration.Observe(time.Since(started).Seconds())
	if p.tracker != nil {
		if terr := p.tracker.MarkDocumentIndexed(ctx, docID); terr != nil {
			p.logger.Printf("document %s: record success: %v", docID, terr)
		}
	}
	return nil
}

func (p *Pipeline) ingest(ctx context.Context, docID, filename string, data []byte) error {
	format, err := extract.Detect(filename)
	if err != nil {
		return &IngestError{Stage: StageExtract, Err: err}
	}
	text, err := extract.Extract(data, format)
	if err != nil {
		return &IngestError{Stage: StageExtract, Err: err}
	}

	chunks, err := p.chunker.Split(docID, text)
	if err != nil {
		return &IngestError{Stage: StageChunk, Err: err}
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	ectx, cancel := p.callContext(ctx)
	vectors, err := p.embedder.EmbedTexts(ectx, texts)
	cancel()
	if err != nil {
		return &IngestError{Stage: StageEmbed, Err: err}
	}
	if len(vectors) != len(chunks) {
		return &IngestError{Stage: StageEmbed, Err: fmt.Errorf("expected %d vectors, got %d", len(chunks), len(vectors))}
	}

	for i, c := range chunks {
		entryID := fmt.Sprintf("%s:%d", docID, c.Index)
		metadata := map[string]interface{}{
			"document_id": docID,
			"chunk_index": c.Index,
			"filename":    filename,
		}
		if err := p.index.Upsert(ctx, entryID, vectors[i], c.Text, metadata); err != nil {
			return &IngestError{Stage: StageIndex, Err: err}
		}
	}
	chunksIndexed.Add(float64(len(chunks)))

	if err := p.index.Persist(ctx); err != nil {
		return &IngestError{Stage: StagePersist, Err: err}
	}
	p.logger.Printf("document %s (%s): indexed %d chunks", docID, filename, len(chunks))
	return nil
}

// Ask embeds the question, retrieves the top-K passages and synthesizes an
// answer. Questions with no grounding in the index get FallbackAnswer, not an
// error.
func (p *Pipeline) Ask(ctx context.Context, question string) (string, error) {
	if strings.TrimSpace(question) == "" {
		return "", ErrEmptyQuestion
	}

	ectx, cancel := p.callContext(ctx)
	vector, err := p.embedder.EmbedQuery(ectx, question)
	cancel()
	if err != nil {
		queriesTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("embed question: %w", err)
	}

	results, err := p.index.Search(ctx, vector, p.topK)
	if err != nil {
		queriesTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("search index: %w", err)
	}

	sctx, cancel := p.callContext(ctx)
	answer, err := p.synthesizer.Synthesize(sctx, question, results)
	cancel()
	if err != nil {
		queriesTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("synthesize answer: %w", err)
	}

	if answer == FallbackAnswer {
		queriesTotal.WithLabelValues("fallback").Inc()
	} else {
		queriesTotal.WithLabelValues("answered").Inc()
	}
	return answer, nil
}

func (p *Pipeline) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.callTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, p.callTimeout)
}
