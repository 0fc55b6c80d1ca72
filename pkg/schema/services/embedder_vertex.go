package services

import (
	"context"
	"fmt"

	aiplatform "cloud.google.com/go/aiplatform/apiv1"
	"cloud.google.com/go/aiplatform/apiv1/aiplatformpb"
	"github.com/ticket-similarity-api/pkg/schema/config"
	"google.golang.org/api/option"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	vertexBatchLimit = 250
)

// VertexEmbedder implements Embedder using Google Cloud Vertex AI
type VertexEmbedder struct {
	client   *aiplatform.PredictionClient
	endpoint string
}

// NewVertexEmbedder creates a new Vertex AI embedder
func NewVertexEmbedder(ctx context.Context, cfg *config.Config) (*VertexEmbedder, error) {
	if cfg.GCPProjectID == "" {
		return nil, fmt.Errorf("GCP_PROJECT_ID is required for Vertex AI embeddings")
	}

	clientEndpoint := fmt.Sprintf("%s-aiplatform.googleapis.com:443", cfg.GCPLocation)
	client, err := aiplatform.NewPredictionClient(ctx, option.WithEndpoint(clientEndpoint))
	if err != nil {
		return nil, fmt.Errorf("failed to create Vertex AI client: %w", err)
	}

	endpoint := fmt.Sprintf("projects/%s/locations/%s/publishers/google/models/%s",
		cfg.GCPProjectID, cfg.GCPLocation, cfg.VertexModel)

	return &VertexEmbedder{
		client:   client,
		endpoint: endpoint,
	}, nil
}

// Close closes the Vertex AI client
func (e *VertexEmbedder) Close() error {
	if e.client != nil {
		return e.client.Close()
	}
	return nil
}

// Embed generates an embedding for a single text
func (e *VertexEmbedder) Embed(ctx context.Context, text string, taskType TaskType) ([]float64, error) {
	embeddings, err := e.predict(ctx, []string{text}, taskType)
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}
	return embeddings[0], nil
}

// EmbedBatch generates embeddings for multiple texts, splitting requests at
// the Vertex AI instance limit.
func (e *VertexEmbedder) EmbedBatch(ctx context.Context, texts []string, taskType TaskType) ([][]float64, error) {
	all := make([][]float64, 0, len(texts))
	for start := 0; start < len(texts); start += vertexBatchLimit {
		end := min(start+vertexBatchLimit, len(texts))
		batch, err := e.predict(ctx, texts[start:end], taskType)
		if err != nil {
			return nil, err
		}
		all = append(all, batch...)
	}
	if len(all) != len(texts) {
		return nil, fmt.Errorf("vertex AI returned %d embeddings for %d texts", len(all), len(texts))
	}
	return all, nil
}

func (e *VertexEmbedder) predict(ctx context.Context, texts []string, taskType TaskType) ([][]float64, error) {
	instances := make([]*structpb.Value, len(texts))
	for i, text := range texts {
		instance, err := structpb.NewStruct(map[string]any{
			"content":   text,
			"task_type": string(taskType),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create instance: %w", err)
		}
		instances[i] = structpb.NewStructValue(instance)
	}

	resp, err := e.client.Predict(ctx, &aiplatformpb.PredictRequest{
		Endpoint:  e.endpoint,
		Instances: instances,
	})
	if err != nil {
		return nil, fmt.Errorf("vertex AI prediction failed: %w", err)
	}

	embeddings := make([][]float64, len(resp.Predictions))
	for i, prediction := range resp.Predictions {
		values, err := predictionValues(prediction)
		if err != nil {
			return nil, fmt.Errorf("prediction %d: %w", i, err)
		}
		embeddings[i] = values
	}
	return embeddings, nil
}

// predictionValues digs embeddings.values out of a text-embedding prediction.
func predictionValues(prediction *structpb.Value) ([]float64, error) {
	predStruct := prediction.GetStructValue()
	if predStruct == nil {
		return nil, fmt.Errorf("unexpected prediction format")
	}

	embStruct := predStruct.GetFields()["embeddings"].GetStructValue()
	if embStruct == nil {
		return nil, fmt.Errorf("no embeddings field in prediction")
	}

	valuesList := embStruct.GetFields()["values"].GetListValue()
	if valuesList == nil {
		return nil, fmt.Errorf("no values field in embeddings")
	}

	embedding := make([]float64, len(valuesList.GetValues()))
	for j, v := range valuesList.GetValues() {
		embedding[j] = v.GetNumberValue()
	}
	return embedding, nil
}
