package services

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ticket-similarity-api/pkg/schema/config"
)

func cosine(a, b []float64) float64 {
	var dot float64
	for i := range a {
		dot += a[i] * b[i]
	}
	return dot
}

func TestHashingEmbedder_Deterministic(t *testing.T) {
	e := NewHashingEmbedder(256)
	ctx := context.Background()

	a, err := e.Embed(ctx, "WiFi outage in building A", TaskTypeDocument)
	require.NoError(t, err)
	b, err := e.Embed(ctx, "WiFi outage in building A", TaskTypeQuery)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 256)
}

func TestHashingEmbedder_Normalized(t *testing.T) {
	e := NewHashingEmbedder(128)

	v, err := e.Embed(context.Background(), "printer jam on the third floor", TaskTypeDocument)
	require.NoError(t, err)

	var sumSquares float64
	for _, x := range v {
		sumSquares += x * x
	}
	assert.InDelta(t, 1.0, math.Sqrt(sumSquares), 1e-9)
}

func TestHashingEmbedder_LexicalOverlapIsCloser(t *testing.T) {
	e := NewHashingEmbedder(1024)
	ctx := context.Background()

	query, err := e.Embed(ctx, "wifi issue in building A", TaskTypeQuery)
	require.NoError(t, err)
	wifi, err := e.Embed(ctx, "WiFi outage in building A", TaskTypeDocument)
	require.NoError(t, err)
	printer, err := e.Embed(ctx, "Printer jam on 3rd floor", TaskTypeDocument)
	require.NoError(t, err)

	assert.Greater(t, cosine(query, wifi), cosine(query, printer))
}

func TestHashingEmbedder_TokenlessTextIsZeroVector(t *testing.T) {
	e := NewHashingEmbedder(64)

	v, err := e.Embed(context.Background(), "is it on?", TaskTypeQuery)
	require.NoError(t, err)
	assert.Len(t, v, 64)
	for _, x := range v {
		assert.Zero(t, x)
	}

	vectors, err := e.EmbedBatch(context.Background(), []string{"fine text", "--"}, TaskTypeDocument)
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.NotEqual(t, vectors[0], vectors[1])
}

func TestHashingEmbedder_HonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewHashingEmbedder(64).Embed(ctx, "network down", TaskTypeQuery)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCustomEmbedder_Batch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embed/batch", r.URL.Path)

		var req customBatchEmbeddingRequest
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		assert.Equal(t, taskTypeToInstruction[TaskTypeDocument], req.Instruction)

		resp := customBatchEmbeddingResponse{Embeddings: make([][]float64, len(req.Texts))}
		for i := range req.Texts {
			resp.Embeddings[i] = []float64{float64(i), 1}
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	e := NewCustomEmbedder(&config.Config{EmbeddingServiceURL: server.URL})
	vectors, err := e.EmbedBatch(context.Background(), []string{"a", "b"}, TaskTypeDocument)
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{0, 1}, {1, 1}}, vectors)
}

func TestCustomEmbedder_ServiceError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	e := NewCustomEmbedder(&config.Config{EmbeddingServiceURL: server.URL})
	_, err := e.Embed(context.Background(), "vpn", TaskTypeQuery)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model not loaded")
}

func TestEmbeddingsService_UsesDocumentTaskForCorpus(t *testing.T) {
	svc := NewEmbeddingsService(NewHashingEmbedder(32))

	vectors, err := svc.EmbedDocuments(context.Background(), []string{"one ticket", "two tickets"})
	require.NoError(t, err)
	assert.Len(t, vectors, 2)
	assert.NoError(t, svc.Close())
}
