// Package chunker splits extracted document text into passages sized for
// embedding and retrieval.
package chunker

import (
	"errors"
	"strings"
)

// ErrEmptyInput is returned when the text to split is empty or whitespace-only.
var ErrEmptyInput = errors.New("chunker: empty input text")

// Chunk is a contiguous passage of a document, ordered by Index.
type Chunk struct {
	DocumentID string
	Index      int
	Text       string
}

// Config controls chunk sizing. Size is measured in runes so multi-byte text
// never gets split mid-character. Overlap must be in [0, Size).
type Config struct {
	Size    int
	Overlap int
}

// Chunker produces fixed-size chunks with optional overlap.
type Chunker struct {
	cfg Config
}

func New(cfg Config) (*Chunker, error) {
	if cfg.Size <= 0 {
		return nil, errors.New("chunker: size must be > 0")
	}
	if cfg.Overlap < 0 || cfg.Overlap >= cfg.Size {
		return nil, errors.New("chunker: overlap must be in [0, size)")
	}
	return &Chunker{cfg: cfg}, nil
}

// Split cuts text into chunks of at most cfg.Size runes, each starting
// cfg.Size-cfg.Overlap runes after the previous one. With zero overlap the
// chunks concatenate back to the original text exactly. Ordering follows
// document order and is deterministic.
func (c *Chunker) Split(documentID, text string) ([]Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}

	runes := []rune(text)
	step := c.cfg.Size - c.cfg.Overlap

	var chunks []Chunk
	for start, idx := 0, 0; start < len(runes); start, idx = start+step, idx+1 {
		end := start + c.cfg.Size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, Chunk{
			DocumentID: documentID,
			Index:      idx,
			Text:       string(runes[start:end]),
		})
		if end == len(runes) {
			break
		}
	}
	return chunks, nil
}
