package services

import (
	"context"
	"fmt"

	"github.com/ticket-similarity-api/pkg/schema/config"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// OpenAIEmbedder implements Embedder against any OpenAI-compatible
// embeddings endpoint (OpenAI, Ollama, vLLM, LM Studio) through langchaingo.
type OpenAIEmbedder struct {
	embedder embeddings.Embedder
}

// NewOpenAIEmbedder creates a new OpenAI-compatible embedder
func NewOpenAIEmbedder(cfg *config.Config) (*OpenAIEmbedder, error) {
	if cfg.OpenAIBaseURL == "" {
		return nil, fmt.Errorf("OPENAI_BASE_URL is required for OpenAI embeddings")
	}

	// Local OpenAI-compatible services accept any token
	client, err := openai.New(
		openai.WithBaseURL(cfg.OpenAIBaseURL),
		openai.WithToken(cfg.OpenAIAPIKey),
		openai.WithEmbeddingModel(cfg.OpenAIEmbeddingModel),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenAI client: %w", err)
	}

	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	return &OpenAIEmbedder{embedder: embedder}, nil
}

// Embed generates an embedding for a single text.
// OpenAI embeddings are symmetric, so the task type is ignored.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string, _ TaskType) ([]float64, error) {
	vector, err := e.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("openai embedding failed: %w", err)
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}
	return float64Slice(vector), nil
}

// EmbedBatch generates embeddings for multiple texts
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string, _ TaskType) ([][]float64, error) {
	if len(texts) == 0 {
		return [][]float64{}, nil
	}

	vectors, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("openai embedding failed: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("openai returned %d embeddings for %d texts", len(vectors), len(texts))
	}

	out := make([][]float64, len(vectors))
	for i, v := range vectors {
		out[i] = float64Slice(v)
	}
	return out, nil
}

func float64Slice(f32 []float32) []float64 {
	f64 := make([]float64, len(f32))
	for i, v := range f32 {
		f64[i] = float64(v)
	}
	return f64
}
