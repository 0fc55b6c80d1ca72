package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/pgvector/pgvector-go"
	"github.com/ticket-similarity-api/internal/models"
	"github.com/ticket-similarity-api/internal/repository"
)

// Ensure VectorIndexRepository implements repository.VectorIndexRepository
var _ repository.VectorIndexRepository = (*VectorIndexRepository)(nil)

// VectorIndexRepository keeps ticket embeddings in a pgvector column and
// answers nearest-neighbor queries with the cosine distance operator.
// The table is unindexed, so queries are exact scans.
type VectorIndexRepository struct {
	db *sqlx.DB
}

// NewVectorIndexRepository creates a new PostgreSQL vector index repository
func NewVectorIndexRepository(db *sqlx.DB) *VectorIndexRepository {
	return &VectorIndexRepository{db: db}
}

// EnsureSchema enables pgvector and creates the embeddings table
func (r *VectorIndexRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("enable pgvector: %w", err)
	}
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS ticket_embeddings (
			seq       BIGSERIAL,
			ticket_id TEXT PRIMARY KEY,
			embedding vector NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create ticket_embeddings: %w", err)
	}
	return nil
}

// Upsert inserts or replaces embeddings in one transaction
func (r *VectorIndexRepository) Upsert(ctx context.Context, tickets []models.IndexedTicket) error {
	if len(tickets) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO ticket_embeddings (ticket_id, embedding)
		VALUES ($1, $2)
		ON CONFLICT (ticket_id) DO UPDATE SET embedding = EXCLUDED.embedding
	`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, t := range tickets {
		vec := pgvector.NewVector(float32Slice(t.Embedding))
		if _, err := stmt.ExecContext(ctx, t.Record.ID, vec); err != nil {
			return fmt.Errorf("upsert embedding %s: %w", t.Record.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}
	return nil
}

// Search performs cosine similarity search; ties fall back to insertion order
func (r *VectorIndexRepository) Search(ctx context.Context, embedding []float64, topK int) ([]models.ScoredTicket, error) {
	vec := pgvector.NewVector(float32Slice(embedding))

	rows, err := r.db.QueryxContext(ctx, `
		SELECT ticket_id, 1 - (embedding <=> $1::vector) AS score
		FROM ticket_embeddings
		ORDER BY embedding <=> $1::vector, seq
		LIMIT $2
	`, vec, topK)
	if err != nil {
		return nil, fmt.Errorf("vector search tickets: %w", err)
	}
	defer rows.Close()

	results := []models.ScoredTicket{}
	for rows.Next() {
		var t models.ScoredTicket
		if err := rows.Scan(&t.TicketID, &t.Score); err != nil {
			return nil, fmt.Errorf("scan ticket result: %w", err)
		}
		results = append(results, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ticket results: %w", err)
	}
	return results, nil
}

// Close is a no-op; the shared connection pool is closed by its owner
func (r *VectorIndexRepository) Close() error {
	return nil
}

// float32Slice converts []float64 to []float32 for pgvector
func float32Slice(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}
