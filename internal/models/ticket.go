package models

import (
	"fmt"
	"maps"
)

// UnknownCategory is recorded when a ticket's category cannot be resolved
const UnknownCategory = "Unknown"

// Metadata keys stored on every corpus record
const (
	MetaTicketID = "ticket_id"
	MetaCategory = "category"
	MetaPriority = "priority"
	MetaStatus   = "status"
)

// Ticket is a support ticket as held by the system of record
type Ticket struct {
	ID           string  `json:"id" db:"id"`
	TicketNumber string  `json:"ticketNumber" db:"ticket_number"`
	Subject      string  `json:"subject" db:"subject"`
	Description  string  `json:"description" db:"description"`
	CategoryID   *string `json:"category,omitempty" db:"category_id"`
	Priority     string  `json:"priority" db:"priority"`
	Status       string  `json:"status" db:"status"`
}

// Category is a ticket category as held by the system of record
type Category struct {
	ID   string `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}

// TicketRecord is a denormalized corpus entry. Text is a snapshot taken at
// ingestion time; later edits to the source ticket are not reflected until
// the ticket is ingested into a fresh corpus.
type TicketRecord struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata"`
}

// NewTicketRecord assembles the corpus record for a ticket and its resolved
// category name.
func NewTicketRecord(t *Ticket, categoryName string) TicketRecord {
	if categoryName == "" {
		categoryName = UnknownCategory
	}
	return TicketRecord{
		ID:   t.ID,
		Text: FormatTicketText(t, categoryName),
		Metadata: map[string]string{
			MetaTicketID: t.ID,
			MetaCategory: categoryName,
			MetaPriority: t.Priority,
			MetaStatus:   t.Status,
		},
	}
}

// FormatTicketText renders the fixed text template embedded for similarity
func FormatTicketText(t *Ticket, categoryName string) string {
	return fmt.Sprintf("Ticket #%s\nSubject: %s\nDescription: %s\nCategory: %s\nPriority: %s\nStatus: %s",
		t.TicketNumber, t.Subject, t.Description, categoryName, t.Priority, t.Status)
}

// Clone returns a deep copy of the record
func (r TicketRecord) Clone() TicketRecord {
	r.Metadata = maps.Clone(r.Metadata)
	return r
}

// ScoredTicket is a corpus record identifier with its similarity to a query.
// Score is cosine similarity: higher is closer.
type ScoredTicket struct {
	TicketID string  `json:"ticket_id"`
	Score    float64 `json:"score"`
}

// IndexedTicket pairs a corpus record with its document embedding
type IndexedTicket struct {
	Record    TicketRecord
	Embedding []float64
}
