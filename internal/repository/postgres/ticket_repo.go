package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/ticket-similarity-api/internal/models"
	"github.com/ticket-similarity-api/internal/repository"
)

// TicketRepository implements repository.TicketRepository for PostgreSQL
type TicketRepository struct {
	db *sqlx.DB
}

// NewTicketRepository creates a new PostgreSQL ticket repository
func NewTicketRepository(db *sqlx.DB) repository.TicketRepository {
	return &TicketRepository{db: db}
}

// GetTicket returns a single ticket by ID
func (r *TicketRepository) GetTicket(ctx context.Context, id string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := r.db.GetContext(ctx, &ticket, `
		SELECT id::text AS id, COALESCE(ticket_number::text, '') AS ticket_number,
		       subject, COALESCE(description, '') AS description, category_id::text AS category_id,
		       COALESCE(priority, '') AS priority, COALESCE(status, '') AS status
		FROM tickets
		WHERE id::text = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get ticket %s: %w", id, err)
	}
	return &ticket, nil
}

// GetCategory returns a single category by ID
func (r *TicketRepository) GetCategory(ctx context.Context, id string) (*models.Category, error) {
	var category models.Category
	err := r.db.GetContext(ctx, &category, `
		SELECT id::text AS id, name
		FROM categories
		WHERE id::text = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get category %s: %w", id, err)
	}
	return &category, nil
}

// ListTicketIDs returns every ticket ID
func (r *TicketRepository) ListTicketIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, `
		SELECT id::text FROM tickets ORDER BY id
	`); err != nil {
		return nil, fmt.Errorf("list ticket ids: %w", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}
