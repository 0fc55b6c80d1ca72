package repository

import (
	"context"
	"errors"

	"github.com/ticket-similarity-api/internal/models"
)

// ErrNotFound indicates that the requested record does not exist
var ErrNotFound = errors.New("record not found")

// TicketRepository reads tickets and categories from the system of record
type TicketRepository interface {
	// GetTicket returns the ticket with the given ID, or ErrNotFound
	GetTicket(ctx context.Context, id string) (*models.Ticket, error)

	// GetCategory returns the category with the given ID, or ErrNotFound
	GetCategory(ctx context.Context, id string) (*models.Category, error)

	// ListTicketIDs returns every ticket ID, for bulk backfills
	ListTicketIDs(ctx context.Context) ([]string, error)
}

// CorpusRepository persists the deduplicated ticket corpus.
// Implementations must be safe for concurrent use; readers observe either
// the state before or after an Append, never a partial write.
type CorpusRepository interface {
	// Load returns every record in insertion order. A missing corpus is empty.
	Load(ctx context.Context) ([]models.TicketRecord, error)

	// Contains reports whether a record with the given ticket ID exists
	Contains(ctx context.Context, ticketID string) (bool, error)

	// Append persists the record unless its ID is already present and
	// reports whether it was added.
	Append(ctx context.Context, record models.TicketRecord) (bool, error)

	// Count returns the number of records
	Count(ctx context.Context) (int, error)

	// Close releases resources held by the repository
	Close() error
}

// VectorIndexRepository is an external nearest-neighbor index kept in step
// with the corpus on every ingestion.
type VectorIndexRepository interface {
	// Upsert inserts or replaces the embeddings of the given records
	Upsert(ctx context.Context, tickets []models.IndexedTicket) error

	// Search returns up to topK ticket IDs closest to the embedding, closest first
	Search(ctx context.Context, embedding []float64, topK int) ([]models.ScoredTicket, error)

	// Close releases resources held by the index client
	Close() error
}
