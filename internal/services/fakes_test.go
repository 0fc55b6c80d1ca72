package services

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/ticket-similarity-api/internal/models"
	"github.com/ticket-similarity-api/internal/repository"
	pkgservices "github.com/ticket-similarity-api/pkg/schema/services"
)

// ticketStore is an in-memory system of record
type ticketStore struct {
	mu         sync.Mutex
	tickets    map[string]*models.Ticket
	categories map[string]*models.Category
	fetches    int

	// block, when set, makes GetTicket wait for the context
	block bool
	err   error
}

func newTicketStore() *ticketStore {
	return &ticketStore{
		tickets:    make(map[string]*models.Ticket),
		categories: make(map[string]*models.Category),
	}
}

func (s *ticketStore) addTicket(id, subject, categoryID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &models.Ticket{
		ID:           id,
		TicketNumber: "QD-" + id,
		Subject:      subject,
		Priority:     "medium",
		Status:       "open",
	}
	if categoryID != "" {
		t.CategoryID = &categoryID
	}
	s.tickets[id] = t
}

func (s *ticketStore) addCategory(id, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.categories[id] = &models.Category{ID: id, Name: name}
}

func (s *ticketStore) GetTicket(ctx context.Context, id string) (*models.Ticket, error) {
	s.mu.Lock()
	s.fetches++
	block, err := s.block, s.err
	t, ok := s.tickets[id]
	s.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, repository.ErrNotFound
	}
	clone := *t
	return &clone, nil
}

func (s *ticketStore) GetCategory(_ context.Context, id string) (*models.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.categories[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	clone := *c
	return &clone, nil
}

func (s *ticketStore) ListTicketIDs(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.tickets))
	for id := range s.tickets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// memoryIndex is an exact in-memory stand-in for an external vector index
type memoryIndex struct {
	mu      sync.Mutex
	entries []models.IndexedTicket
	upserts int
	err     error
}

func (m *memoryIndex) Upsert(_ context.Context, tickets []models.IndexedTicket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.upserts += len(tickets)
	for _, t := range tickets {
		replaced := false
		for i := range m.entries {
			if m.entries[i].Record.ID == t.Record.ID {
				m.entries[i] = t
				replaced = true
			}
		}
		if !replaced {
			m.entries = append(m.entries, t)
		}
	}
	return nil
}

func (m *memoryIndex) Search(_ context.Context, embedding []float64, topK int) ([]models.ScoredTicket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return newFlatIndex(append([]models.IndexedTicket(nil), m.entries...)).search(embedding, topK), nil
}

func (m *memoryIndex) Close() error { return nil }

// failingEmbedder always fails, or blocks until the context ends
type failingEmbedder struct {
	block bool
}

var errEmbedderDown = errors.New("embedder down")

func (e failingEmbedder) Embed(ctx context.Context, _ string, _ pkgservices.TaskType) ([]float64, error) {
	if e.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return nil, errEmbedderDown
}

func (e failingEmbedder) EmbedBatch(ctx context.Context, texts []string, taskType pkgservices.TaskType) ([][]float64, error) {
	return nil, errEmbedderDown
}

// indexerFunc adapts a function to the Indexer interface
type indexerFunc func(ctx context.Context, records []models.TicketRecord) error

func (f indexerFunc) IndexRecords(ctx context.Context, records []models.TicketRecord) error {
	return f(ctx, records)
}
