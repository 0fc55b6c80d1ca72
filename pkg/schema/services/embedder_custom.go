package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ticket-similarity-api/pkg/schema/config"
)

// CustomEmbedder implements Embedder using a custom HTTP embedding service
// exposing POST /embed and POST /embed/batch.
type CustomEmbedder struct {
	baseURL    string
	httpClient *http.Client
}

// NewCustomEmbedder creates a new custom HTTP embedder
func NewCustomEmbedder(cfg *config.Config) *CustomEmbedder {
	return &CustomEmbedder{
		baseURL:    cfg.EmbeddingServiceURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

var taskTypeToInstruction = map[TaskType]string{
	TaskTypeQuery:    "Represent the support request for retrieving similar tickets: ",
	TaskTypeDocument: "Represent the support ticket for retrieval: ",
}

type customEmbeddingRequest struct {
	Text        string `json:"text"`
	Instruction string `json:"instruction"`
}

type customEmbeddingResponse struct {
	Embedding []float64 `json:"embedding"`
}

type customBatchEmbeddingRequest struct {
	Texts       []string `json:"texts"`
	Instruction string   `json:"instruction"`
}

type customBatchEmbeddingResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
}

func instructionFor(taskType TaskType) string {
	if instruction, ok := taskTypeToInstruction[taskType]; ok {
		return instruction
	}
	return taskTypeToInstruction[TaskTypeDocument]
}

// Embed generates an embedding for a single text
func (e *CustomEmbedder) Embed(ctx context.Context, text string, taskType TaskType) ([]float64, error) {
	var resp customEmbeddingResponse
	err := e.post(ctx, "/embed", customEmbeddingRequest{
		Text:        text,
		Instruction: instructionFor(taskType),
	}, &resp)
	if err != nil {
		return nil, err
	}
	if len(resp.Embedding) == 0 {
		return nil, fmt.Errorf("embedding service returned an empty vector")
	}
	return resp.Embedding, nil
}

// EmbedBatch generates embeddings for multiple texts
func (e *CustomEmbedder) EmbedBatch(ctx context.Context, texts []string, taskType TaskType) ([][]float64, error) {
	if len(texts) == 0 {
		return [][]float64{}, nil
	}

	var resp customBatchEmbeddingResponse
	err := e.post(ctx, "/embed/batch", customBatchEmbeddingRequest{
		Texts:       texts,
		Instruction: instructionFor(taskType),
	}, &resp)
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding service returned %d vectors for %d texts", len(resp.Embeddings), len(texts))
	}
	return resp.Embeddings, nil
}

func (e *CustomEmbedder) post(ctx context.Context, path string, body, out any) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call embedding service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("embedding service error (%d): %s", resp.StatusCode, string(msg))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
