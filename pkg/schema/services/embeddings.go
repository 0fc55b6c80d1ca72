package services

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/ticket-similarity-api/pkg/schema/config"
)

// EmbeddingsService handles text embedding operations using a pluggable backend
type EmbeddingsService struct {
	embedder Embedder
	provider string
}

var (
	embeddingsService *EmbeddingsService
	embeddingsOnce    sync.Once
	initErr           error
)

// GetEmbeddingsService returns the singleton embeddings service
func GetEmbeddingsService() *EmbeddingsService {
	embeddingsOnce.Do(func() {
		cfg := config.GetConfig()
		ctx := context.Background()

		var embedder Embedder
		switch cfg.EmbeddingProvider {
		case "vertex":
			var err error
			embedder, err = NewVertexEmbedder(ctx, cfg)
			if err != nil {
				initErr = fmt.Errorf("failed to create Vertex AI embedder: %w", err)
				return
			}
		case "openai":
			var err error
			embedder, err = NewOpenAIEmbedder(cfg)
			if err != nil {
				initErr = fmt.Errorf("failed to create OpenAI embedder: %w", err)
				return
			}
		case "custom":
			embedder = NewCustomEmbedder(cfg)
		default:
			embedder = NewHashingEmbedder(cfg.HashingDimensions)
		}

		embeddingsService = &EmbeddingsService{
			embedder: embedder,
			provider: cfg.EmbeddingProvider,
		}
	})
	return embeddingsService
}

// GetInitError returns any error that occurred during initialization
func GetInitError() error {
	return initErr
}

// NewEmbeddingsService wraps an explicit embedder, bypassing the singleton
func NewEmbeddingsService(embedder Embedder) *EmbeddingsService {
	return &EmbeddingsService{embedder: embedder, provider: "custom"}
}

// Provider returns the configured provider name
func (s *EmbeddingsService) Provider() string {
	return s.provider
}

// EmbedQuery embeds a free-text query for retrieval
func (s *EmbeddingsService) EmbedQuery(ctx context.Context, query string) ([]float64, error) {
	return s.embedder.Embed(ctx, query, TaskTypeQuery)
}

// EmbedDocument embeds a ticket text as a document for retrieval
func (s *EmbeddingsService) EmbedDocument(ctx context.Context, text string) ([]float64, error) {
	return s.embedder.Embed(ctx, text, TaskTypeDocument)
}

// EmbedDocuments embeds ticket texts as documents, preserving input order
func (s *EmbeddingsService) EmbedDocuments(ctx context.Context, texts []string) ([][]float64, error) {
	return s.embedder.EmbedBatch(ctx, texts, TaskTypeDocument)
}

// Close releases the underlying embedder's client, if it holds one
func (s *EmbeddingsService) Close() error {
	if closer, ok := s.embedder.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
