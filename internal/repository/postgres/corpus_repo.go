package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/ticket-similarity-api/internal/models"
	"github.com/ticket-similarity-api/internal/repository"
)

// Ensure CorpusRepository implements repository.CorpusRepository
var _ repository.CorpusRepository = (*CorpusRepository)(nil)

// CorpusRepository stores the corpus in the ticket_corpus table. The seq
// column preserves insertion order and the unique ticket_id makes Append
// idempotent without a read-modify-write cycle.
type CorpusRepository struct {
	db *sqlx.DB
}

// NewCorpusRepository creates a new PostgreSQL corpus repository
func NewCorpusRepository(db *sqlx.DB) *CorpusRepository {
	return &CorpusRepository{db: db}
}

// EnsureSchema creates the corpus table if it does not exist
func (r *CorpusRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS ticket_corpus (
			seq        BIGSERIAL PRIMARY KEY,
			ticket_id  TEXT NOT NULL UNIQUE,
			text       TEXT NOT NULL,
			metadata   JSONB NOT NULL DEFAULT '{}'::jsonb,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return fmt.Errorf("create ticket_corpus: %w", err)
	}
	return nil
}

type corpusRow struct {
	TicketID string `db:"ticket_id"`
	Text     string `db:"text"`
	Metadata []byte `db:"metadata"`
}

// Load returns every record in insertion order
func (r *CorpusRepository) Load(ctx context.Context) ([]models.TicketRecord, error) {
	rows, err := r.db.QueryxContext(ctx, `
		SELECT ticket_id, text, metadata
		FROM ticket_corpus
		ORDER BY seq
	`)
	if err != nil {
		return nil, fmt.Errorf("load corpus: %w", err)
	}
	defer rows.Close()

	records := []models.TicketRecord{}
	for rows.Next() {
		var row corpusRow
		if err := rows.StructScan(&row); err != nil {
			return nil, fmt.Errorf("scan corpus row: %w", err)
		}
		var metadata map[string]string
		if err := json.Unmarshal(row.Metadata, &metadata); err != nil {
			return nil, fmt.Errorf("decode metadata for %s: %w", row.TicketID, err)
		}
		records = append(records, models.TicketRecord{
			ID:       row.TicketID,
			Text:     row.Text,
			Metadata: metadata,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate corpus rows: %w", err)
	}
	return records, nil
}

// Contains reports whether the ticket is already in the corpus
func (r *CorpusRepository) Contains(ctx context.Context, ticketID string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `
		SELECT EXISTS (SELECT 1 FROM ticket_corpus WHERE ticket_id = $1)
	`, ticketID)
	if err != nil {
		return false, fmt.Errorf("check corpus for %s: %w", ticketID, err)
	}
	return exists, nil
}

// Count returns the number of records
func (r *CorpusRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM ticket_corpus`); err != nil {
		return 0, fmt.Errorf("count corpus: %w", err)
	}
	return count, nil
}

// Append inserts the record unless the ticket is already present
func (r *CorpusRepository) Append(ctx context.Context, record models.TicketRecord) (bool, error) {
	if record.ID == "" {
		return false, fmt.Errorf("append corpus record: empty ticket id")
	}
	metadata, err := json.Marshal(record.Metadata)
	if err != nil {
		return false, fmt.Errorf("encode metadata: %w", err)
	}

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO ticket_corpus (ticket_id, text, metadata)
		VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (ticket_id) DO NOTHING
	`, record.ID, record.Text, string(metadata))
	if err != nil {
		return false, fmt.Errorf("insert corpus record %s: %w", record.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert corpus record %s: %w", record.ID, err)
	}
	return affected == 1, nil
}

// Close is a no-op; the shared connection pool is closed by its owner
func (r *CorpusRepository) Close() error {
	return nil
}
