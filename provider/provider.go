package provider

import (
	"context"
	"errors"
	"time"

	"github.com/mohammad-safakhou/docqa/config"
	openai_provider "github.com/mohammad-safakhou/docqa/provider/openai"
)

// Client represents different LLM providers
type Client string

const (
	OpenAI Client = "openai"
)

// ErrLLMUnavailable is returned when the completion backend cannot be reached.
// Callers may retry; the failure is never turned into a partial answer.
var ErrLLMUnavailable = openai_provider.ErrLLMUnavailable

// ErrEmbeddingUnavailable is returned when the embedding backend cannot be
// reached. There is no fallback to a different model: vectors from different
// models are not comparable within one index.
var ErrEmbeddingUnavailable = openai_provider.ErrEmbeddingUnavailable

// Provider is the interface all LLM implementations must satisfy
type Provider interface {
	Generate(ctx context.Context, prompt string) (string, error)
	CreateEmbedding(ctx context.Context, model string, texts []string) ([][]float32, error)
}

// NewProvider creates a new LLM client based on the provided configuration
func NewProvider(client Client, cfg config.LLMConfig) (Provider, error) {
	switch client {
	case OpenAI:
		if cfg.APIKey == "" {
			return nil, errors.New("llm.api_key not set")
		}
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 60 * time.Second
		}
		return openai_provider.NewOpenAIClient(
			cfg.APIKey,
			cfg.Model,
			cfg.Temperature,
			cfg.MaxTokens,
			timeout,
		), nil
	default:
		return nil, errors.New("unsupported LLM provider")
	}
}
