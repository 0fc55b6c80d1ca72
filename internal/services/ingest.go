package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/ticket-similarity-api/internal/models"
	"github.com/ticket-similarity-api/internal/observability"
	"github.com/ticket-similarity-api/internal/repository"
)

// Indexer receives records right after they are appended to the corpus
type Indexer interface {
	IndexRecords(ctx context.Context, records []models.TicketRecord) error
}

// IngestService accumulates tickets from the system of record into the corpus
type IngestService struct {
	tickets repository.TicketRepository
	corpus  repository.CorpusRepository
	indexer Indexer
	timeout time.Duration
	logger  *slog.Logger

	// sem serializes the check-fetch-append sequence
	sem chan struct{}
}

// IngestOption configures an IngestService.
type IngestOption func(*IngestService) error

// WithIndexer keeps an external vector index in step with ingestion
func WithIndexer(indexer Indexer) IngestOption {
	return func(s *IngestService) error {
		s.indexer = indexer
		return nil
	}
}

// WithTimeout bounds every Ingest call. Zero disables the bound.
func WithTimeout(timeout time.Duration) IngestOption {
	return func(s *IngestService) error {
		if timeout < 0 {
			return fmt.Errorf("negative ingest timeout %s", timeout)
		}
		s.timeout = timeout
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) IngestOption {
	return func(s *IngestService) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// NewIngestService creates a new ingest service
func NewIngestService(
	tickets repository.TicketRepository,
	corpus repository.CorpusRepository,
	opts ...IngestOption,
) (*IngestService, error) {
	if tickets == nil {
		return nil, errors.New("ticket repository is required")
	}
	if corpus == nil {
		return nil, errors.New("corpus repository is required")
	}

	s := &IngestService{
		tickets: tickets,
		corpus:  corpus,
		logger:  slog.Default(),
		sem:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Ingest adds the ticket to the corpus unless it is already present and
// reports whether it was added. Repeated calls with the same ID are no-ops.
func (s *IngestService) Ingest(ctx context.Context, ticketID string) (added bool, err error) {
	ticketID = strings.TrimSpace(ticketID)
	if ticketID == "" {
		return false, ErrInvalidTicketID
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	ctx, span := observability.StartIngestSpan(ctx, ticketID)
	defer func() { observability.EndSpan(span, err) }()

	record, added, err := s.appendLocked(ctx, ticketID)
	if err != nil || !added {
		return added, err
	}

	s.logger.Info("ticket ingested", "ticket_id", ticketID, "category", record.Metadata[models.MetaCategory])

	if s.indexer != nil {
		// The corpus is authoritative; a failed upsert is repaired by a reindex.
		if indexErr := s.indexer.IndexRecords(ctx, []models.TicketRecord{record}); indexErr != nil {
			s.logger.Warn("vector index upsert failed, reindex required",
				"ticket_id", ticketID, "error", indexErr)
		}
	}
	return true, nil
}

func (s *IngestService) appendLocked(ctx context.Context, ticketID string) (models.TicketRecord, bool, error) {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return models.TicketRecord{}, false, fmt.Errorf("ingest %s: waiting for writer: %w: %w", ticketID, ErrTimeout, ctx.Err())
		}
		return models.TicketRecord{}, false, fmt.Errorf("ingest %s: %w", ticketID, ctx.Err())
	}
	defer func() { <-s.sem }()

	exists, err := s.corpus.Contains(ctx, ticketID)
	if err != nil {
		return models.TicketRecord{}, false, wrap(ErrCorpusUnavailable, "check corpus", err)
	}
	if exists {
		s.logger.Debug("ticket already in corpus", "ticket_id", ticketID)
		return models.TicketRecord{}, false, nil
	}

	ticket, err := s.tickets.GetTicket(ctx, ticketID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return models.TicketRecord{}, false, fmt.Errorf("ticket %s: %w", ticketID, ErrNotFound)
		}
		return models.TicketRecord{}, false, wrap(ErrSourceUnavailable, "fetch ticket "+ticketID, err)
	}

	categoryName, err := s.resolveCategory(ctx, ticket)
	if err != nil {
		return models.TicketRecord{}, false, err
	}

	record := models.NewTicketRecord(ticket, categoryName)
	added, err := s.corpus.Append(ctx, record)
	if err != nil {
		return models.TicketRecord{}, false, wrap(ErrCorpusUnavailable, "append to corpus", err)
	}
	return record, added, nil
}

// resolveCategory returns the category name, or UnknownCategory when the
// ticket has none or it no longer exists.
func (s *IngestService) resolveCategory(ctx context.Context, ticket *models.Ticket) (string, error) {
	if ticket.CategoryID == nil || *ticket.CategoryID == "" {
		return models.UnknownCategory, nil
	}
	category, err := s.tickets.GetCategory(ctx, *ticket.CategoryID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return models.UnknownCategory, nil
		}
		return "", wrap(ErrSourceUnavailable, "fetch category "+*ticket.CategoryID, err)
	}
	if category.Name == "" {
		return models.UnknownCategory, nil
	}
	return category.Name, nil
}

// CorpusSize returns the number of records in the corpus
func (s *IngestService) CorpusSize(ctx context.Context) (int, error) {
	n, err := s.corpus.Count(ctx)
	if err != nil {
		return 0, wrap(ErrCorpusUnavailable, "count corpus", err)
	}
	return n, nil
}

// BackfillResult summarizes a bulk ingestion
type BackfillResult struct {
	Added   int
	Skipped int
	Failed  map[string]error
}

// Backfill ingests every ticket in the system of record using a pool of
// workers. Corpus writes remain serialized; the pool overlaps index upserts.
// Individual failures are collected rather than aborting the run.
func (s *IngestService) Backfill(ctx context.Context, workers int) (*BackfillResult, error) {
	ids, err := s.tickets.ListTicketIDs(ctx)
	if err != nil {
		return nil, wrap(ErrSourceUnavailable, "list tickets", err)
	}
	if workers < 1 {
		workers = 1
	}

	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("create backfill pool: %w", err)
	}
	defer pool.Release()

	result := &BackfillResult{Failed: make(map[string]error)}
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			added, ingestErr := s.Ingest(ctx, id)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case ingestErr != nil:
				result.Failed[id] = ingestErr
			case added:
				result.Added++
			default:
				result.Skipped++
			}
		})
		if submitErr != nil {
			wg.Done()
			mu.Lock()
			result.Failed[id] = submitErr
			mu.Unlock()
		}
	}
	wg.Wait()

	s.logger.Info("backfill complete",
		"tickets", len(ids), "added", result.Added, "skipped", result.Skipped, "failed", len(result.Failed))
	return result, ctx.Err()
}
