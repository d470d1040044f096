package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/mohammad-safakhou/docqa/internal/index"
	"github.com/mohammad-safakhou/docqa/provider"
)

// FallbackAnswer is returned verbatim whenever the question cannot be answered
// from the indexed documents. Callers must not rephrase it.
const FallbackAnswer = "I'm sorry, I don't know the answer based on the uploaded documents."

// Synthesizer turns retrieved passages into a grounded answer.
type Synthesizer struct {
	llm provider.Provider
}

func NewSynthesizer(llm provider.Provider) *Synthesizer {
	return &Synthesizer{llm: llm}
}

// Synthesize answers the question from the given passages. With no passages it
// returns FallbackAnswer without calling the model. Model output always passes
// through normalizeAnswer, so non-answers collapse to the fallback.
func (s *Synthesizer) Synthesize(ctx context.Context, question string, passages []index.Result) (string, error) {
	if len(passages) == 0 {
		return FallbackAnswer, nil
	}
	raw, err := s.llm.Generate(ctx, buildPrompt(question, passages))
	if err != nil {
		return "", err
	}
	return normalizeAnswer(raw), nil
}

func buildPrompt(question string, passages []index.Result) string {
	var b strings.Builder
	b.WriteString("Answer the question using only the context below. ")
	b.WriteString("If the context does not contain the answer, reply exactly \"I don't know\".\n\nContext:\n")
	for i, p := range passages {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, p.Text)
	}
	fmt.Fprintf(&b, "\nQuestion: %s\nAnswer:", question)
	return b.String()
}

// normalizeAnswer trims the model output and maps empty or bare refusal
// replies (exactly "i don't know" or "not found", any casing) to
// FallbackAnswer. An answer that merely contains those phrases is a grounded
// answer and passes through untouched.
func normalizeAnswer(raw string) string {
	answer := strings.TrimSpace(raw)
	if answer == "" {
		return FallbackAnswer
	}
	switch strings.ToLower(answer) {
	case "i don't know", "not found":
		return FallbackAnswer
	}
	return answer
}
