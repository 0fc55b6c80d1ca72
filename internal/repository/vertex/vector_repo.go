package vertex

import (
	"context"
	"fmt"

	aiplatform "cloud.google.com/go/aiplatform/apiv1"
	aiplatformpb "cloud.google.com/go/aiplatform/apiv1/aiplatformpb"
	"github.com/ticket-similarity-api/internal/models"
	"github.com/ticket-similarity-api/internal/repository"
	"google.golang.org/api/option"
)

// Ensure VectorIndexRepository implements repository.VectorIndexRepository
var _ repository.VectorIndexRepository = (*VectorIndexRepository)(nil)

const upsertBatchSize = 100

// Config holds Vertex AI Vector Search configuration
type Config struct {
	ProjectID            string // GCP project ID
	Location             string // e.g., "us-central1"
	IndexID              string // Index receiving streaming upserts
	IndexEndpointID      string // Deployed index endpoint ID
	DeployedIndexID      string // The deployed index ID within the endpoint
	PublicEndpointDomain string // Public endpoint domain for queries (e.g., "123.us-central1-456.vdb.vertexai.goog")
}

// VectorIndexRepository implements repository.VectorIndexRepository using
// a streaming-update Vertex AI Vector Search index. Datapoint IDs are ticket
// IDs and each datapoint carries a category restrict.
type VectorIndexRepository struct {
	config      Config
	indexClient *aiplatform.IndexClient
	matchClient *aiplatform.MatchClient
}

// NewVectorIndexRepository creates a new Vertex AI vector index repository
func NewVectorIndexRepository(ctx context.Context, config Config) (*VectorIndexRepository, error) {
	if config.ProjectID == "" || config.IndexID == "" || config.IndexEndpointID == "" || config.DeployedIndexID == "" {
		return nil, fmt.Errorf("vertex vector search requires project, index, index endpoint and deployed index IDs")
	}

	regional := fmt.Sprintf("%s-aiplatform.googleapis.com:443", config.Location)

	// For public endpoints, queries go to the public domain
	matchEndpoint := regional
	if config.PublicEndpointDomain != "" {
		matchEndpoint = fmt.Sprintf("%s:443", config.PublicEndpointDomain)
	}

	indexClient, err := aiplatform.NewIndexClient(ctx, option.WithEndpoint(regional))
	if err != nil {
		return nil, fmt.Errorf("create index client: %w", err)
	}

	matchClient, err := aiplatform.NewMatchClient(ctx, option.WithEndpoint(matchEndpoint))
	if err != nil {
		indexClient.Close()
		return nil, fmt.Errorf("create match client: %w", err)
	}

	return &VectorIndexRepository{
		config:      config,
		indexClient: indexClient,
		matchClient: matchClient,
	}, nil
}

// Close closes the Vertex AI clients
func (r *VectorIndexRepository) Close() error {
	var firstErr error
	if r.matchClient != nil {
		firstErr = r.matchClient.Close()
	}
	if r.indexClient != nil {
		if err := r.indexClient.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *VectorIndexRepository) indexName() string {
	return fmt.Sprintf("projects/%s/locations/%s/indexes/%s",
		r.config.ProjectID, r.config.Location, r.config.IndexID)
}

func (r *VectorIndexRepository) indexEndpointName() string {
	return fmt.Sprintf("projects/%s/locations/%s/indexEndpoints/%s",
		r.config.ProjectID, r.config.Location, r.config.IndexEndpointID)
}

// Upsert streams datapoints to the index in batches
func (r *VectorIndexRepository) Upsert(ctx context.Context, tickets []models.IndexedTicket) error {
	for start := 0; start < len(tickets); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(tickets))

		datapoints := make([]*aiplatformpb.IndexDatapoint, 0, end-start)
		for _, t := range tickets[start:end] {
			datapoints = append(datapoints, &aiplatformpb.IndexDatapoint{
				DatapointId:   t.Record.ID,
				FeatureVector: toFloat32(t.Embedding),
				Restricts: []*aiplatformpb.IndexDatapoint_Restriction{
					{
						Namespace: models.MetaCategory,
						AllowList: []string{t.Record.Metadata[models.MetaCategory]},
					},
				},
			})
		}

		_, err := r.indexClient.UpsertDatapoints(ctx, &aiplatformpb.UpsertDatapointsRequest{
			Index:      r.indexName(),
			Datapoints: datapoints,
		})
		if err != nil {
			return fmt.Errorf("upsert datapoints: %w", err)
		}
	}
	return nil
}

// Search performs nearest-neighbor search with FindNeighbors
func (r *VectorIndexRepository) Search(ctx context.Context, embedding []float64, topK int) ([]models.ScoredTicket, error) {
	resp, err := r.matchClient.FindNeighbors(ctx, &aiplatformpb.FindNeighborsRequest{
		IndexEndpoint:   r.indexEndpointName(),
		DeployedIndexId: r.config.DeployedIndexID,
		Queries: []*aiplatformpb.FindNeighborsRequest_Query{
			{
				Datapoint: &aiplatformpb.IndexDatapoint{
					FeatureVector: toFloat32(embedding),
				},
				NeighborCount: int32(topK),
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("find neighbors: %w", err)
	}

	if len(resp.NearestNeighbors) == 0 {
		return []models.ScoredTicket{}, nil
	}

	neighbors := resp.NearestNeighbors[0].Neighbors
	results := make([]models.ScoredTicket, 0, len(neighbors))
	for _, neighbor := range neighbors {
		// Cosine distance index: similarity = 1 - distance
		results = append(results, models.ScoredTicket{
			TicketID: neighbor.GetDatapoint().GetDatapointId(),
			Score:    1 - neighbor.GetDistance(),
		})
	}
	return results, nil
}

func toFloat32(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}
