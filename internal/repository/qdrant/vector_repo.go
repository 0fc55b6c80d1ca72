package qdrant

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"github.com/ticket-similarity-api/internal/models"
	"github.com/ticket-similarity-api/internal/repository"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Ensure VectorIndexRepository implements repository.VectorIndexRepository
var _ repository.VectorIndexRepository = (*VectorIndexRepository)(nil)

// ticketIDNamespace derives stable point UUIDs from ticket IDs, since Qdrant
// only accepts integers or UUIDs as point IDs.
var ticketIDNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("ticket-similarity-api/tickets"))

// VectorIndexRepository implements repository.VectorIndexRepository using Qdrant
type VectorIndexRepository struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string

	ensureMu sync.Mutex
	ensured  bool
}

// NewVectorIndexRepository creates a Qdrant-backed vector index
func NewVectorIndexRepository(host string, port int, collection string) (*VectorIndexRepository, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant connect: %w", err)
	}
	return &VectorIndexRepository{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
	}, nil
}

// PointID returns the Qdrant point UUID for a ticket ID
func PointID(ticketID string) string {
	return uuid.NewSHA1(ticketIDNamespace, []byte(ticketID)).String()
}

// ensureCollection creates the collection with cosine distance on first use
func (r *VectorIndexRepository) ensureCollection(ctx context.Context, dimensions int) error {
	r.ensureMu.Lock()
	defer r.ensureMu.Unlock()
	if r.ensured {
		return nil
	}

	list, err := r.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == r.collection {
			r.ensured = true
			return nil
		}
	}

	_, err = r.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: r.collection,
		VectorsConfig: &pb.VectorsConfig{Config: &pb.VectorsConfig_Params{
			Params: &pb.VectorParams{
				Size:     uint64(dimensions),
				Distance: pb.Distance_Cosine,
			},
		}},
	})
	if err != nil {
		return fmt.Errorf("create collection %s: %w", r.collection, err)
	}
	r.ensured = true
	return nil
}

// Upsert writes one point per ticket with the ticket ID and metadata as payload
func (r *VectorIndexRepository) Upsert(ctx context.Context, tickets []models.IndexedTicket) error {
	if len(tickets) == 0 {
		return nil
	}
	if err := r.ensureCollection(ctx, len(tickets[0].Embedding)); err != nil {
		return err
	}

	points := make([]*pb.PointStruct, len(tickets))
	for i, t := range tickets {
		payload := map[string]*pb.Value{
			models.MetaTicketID: {Kind: &pb.Value_StringValue{StringValue: t.Record.ID}},
		}
		for k, v := range t.Record.Metadata {
			payload[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: v}}
		}
		points[i] = &pb.PointStruct{
			Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(t.Record.ID)}},
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: toFloat32(t.Embedding)}}},
			Payload: payload,
		}
	}

	wait := true
	_, err := r.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: r.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant upsert: %w", err)
	}
	return nil
}

// Search returns the closest tickets by cosine similarity
func (r *VectorIndexRepository) Search(ctx context.Context, embedding []float64, topK int) ([]models.ScoredTicket, error) {
	resp, err := r.points.Search(ctx, &pb.SearchPoints{
		CollectionName: r.collection,
		Vector:         toFloat32(embedding),
		Limit:          uint64(topK),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant search: %w", err)
	}

	results := make([]models.ScoredTicket, 0, len(resp.GetResult()))
	for _, pt := range resp.GetResult() {
		ticketID := pt.GetPayload()[models.MetaTicketID].GetStringValue()
		if ticketID == "" {
			continue
		}
		results = append(results, models.ScoredTicket{
			TicketID: ticketID,
			Score:    float64(pt.GetScore()),
		})
	}
	return results, nil
}

// Close closes the gRPC connection
func (r *VectorIndexRepository) Close() error {
	return r.conn.Close()
}

func toFloat32(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}
