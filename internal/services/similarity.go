package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/ticket-similarity-api/internal/models"
	"github.com/ticket-similarity-api/internal/observability"
	"github.com/ticket-similarity-api/internal/repository"
	pkgservices "github.com/ticket-similarity-api/pkg/schema/services"
)

const (
	// DefaultTopK is used when a query does not ask for a positive k
	DefaultTopK = 3
	// MaxTopK bounds the number of results of a single query
	MaxTopK = 50

	// RetrieverMemory rebuilds an exact index from the corpus on every query
	RetrieverMemory = "memory"
)

// SimilarityService retrieves the corpus tickets most similar to a query.
// Without an external index the whole corpus is embedded per query, which
// bounds practical corpus size.
type SimilarityService struct {
	corpus        repository.CorpusRepository
	embeddingsSvc *pkgservices.EmbeddingsService
	vectorIndex   repository.VectorIndexRepository
	retriever     string

	pool      *ants.Pool
	batchSize int
	defaultK  int
	timeout   time.Duration
	logger    *slog.Logger
}

// SimilarityOption configures a SimilarityService.
type SimilarityOption func(*SimilarityService) error

// WithVectorIndex queries an external index instead of rebuilding one per query
func WithVectorIndex(name string, index repository.VectorIndexRepository) SimilarityOption {
	return func(s *SimilarityService) error {
		if index == nil {
			return errors.New("vector index is nil")
		}
		s.vectorIndex = index
		s.retriever = name
		return nil
	}
}

// WithEmbedWorkers sets the number of concurrent embedding batches.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithEmbedWorkers(size int) SimilarityOption {
	return func(s *SimilarityService) error {
		if size < 1 {
			size = 1
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		if s.pool != nil {
			s.pool.Release()
		}
		s.pool = pool
		return nil
	}
}

// WithBatchSize sets how many records are embedded per request
func WithBatchSize(size int) SimilarityOption {
	return func(s *SimilarityService) error {
		if size < 1 {
			return fmt.Errorf("invalid embed batch size %d", size)
		}
		s.batchSize = size
		return nil
	}
}

// WithDefaultK sets the result count used when a query passes k <= 0
func WithDefaultK(k int) SimilarityOption {
	return func(s *SimilarityService) error {
		if k < 1 || k > MaxTopK {
			return fmt.Errorf("default k must be between 1 and %d, got %d", MaxTopK, k)
		}
		s.defaultK = k
		return nil
	}
}

// WithQueryTimeout bounds every query. Zero disables the bound.
func WithQueryTimeout(timeout time.Duration) SimilarityOption {
	return func(s *SimilarityService) error {
		if timeout < 0 {
			return fmt.Errorf("negative query timeout %s", timeout)
		}
		s.timeout = timeout
		return nil
	}
}

// WithSimilarityLogger sets a custom logger.
// Default is slog.Default().
func WithSimilarityLogger(logger *slog.Logger) SimilarityOption {
	return func(s *SimilarityService) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// NewSimilarityService creates a new similarity service
func NewSimilarityService(
	corpus repository.CorpusRepository,
	embeddingsSvc *pkgservices.EmbeddingsService,
	opts ...SimilarityOption,
) (*SimilarityService, error) {
	if corpus == nil {
		return nil, errors.New("corpus repository is required")
	}
	if embeddingsSvc == nil {
		return nil, errors.New("embeddings service is required")
	}

	s := &SimilarityService{
		corpus:        corpus,
		embeddingsSvc: embeddingsSvc,
		retriever:     RetrieverMemory,
		batchSize:     32,
		defaultK:      DefaultTopK,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			if s.pool != nil {
				s.pool.Release()
			}
			return nil, err
		}
	}

	if s.pool == nil {
		size := runtime.NumCPU() / 2
		if size < 1 {
			size = 1
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return nil, err
		}
		s.pool = pool
	}
	return s, nil
}

// Retriever returns the name of the retrieval backend
func (s *SimilarityService) Retriever() string {
	return s.retriever
}

// QuerySimilar returns the IDs of up to k corpus tickets closest to query,
// closest first. An empty corpus yields an empty, non-nil slice.
func (s *SimilarityService) QuerySimilar(ctx context.Context, query string, k int) ([]string, error) {
	scored, err := s.QuerySimilarScored(ctx, query, k)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(scored))
	for i, st := range scored {
		ids[i] = st.TicketID
	}
	return ids, nil
}

// QuerySimilarScored is QuerySimilar with the cosine similarity of each result
func (s *SimilarityService) QuerySimilarScored(ctx context.Context, query string, k int) (results []models.ScoredTicket, err error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrInvalidQuery
	}
	k = s.normalizeK(k)

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	ctx, span := observability.StartQuerySpan(ctx, s.retriever, k)
	defer func() { observability.EndSpan(span, err) }()

	records, err := s.corpus.Load(ctx)
	if err != nil {
		return nil, wrap(ErrCorpusUnavailable, "load corpus", err)
	}
	if len(records) == 0 {
		return []models.ScoredTicket{}, nil
	}

	queryEmbedding, err := s.embeddingsSvc.EmbedQuery(ctx, query)
	if err != nil {
		return nil, wrap(ErrEmbeddingFailed, "embed query", err)
	}

	// a zero vector is equidistant from every record
	if isZeroVector(queryEmbedding) {
		return firstSeen(records, k), nil
	}

	if s.vectorIndex != nil {
		results, err := s.searchExternal(ctx, records, queryEmbedding, k)
		if err != nil {
			return nil, err
		}
		want := min(k, len(records))
		if len(results) >= want {
			return results, nil
		}
		s.logger.Warn("vector index is behind the corpus, ranking in memory",
			"retriever", s.retriever, "found", len(results), "want", want)
	}

	indexed, err := s.embedRecords(ctx, records)
	if err != nil {
		return nil, err
	}
	return newFlatIndex(indexed).search(queryEmbedding, k), nil
}

// searchExternal queries the external index and drops any ID that is not in
// the corpus, which stays the source of truth. The caller falls back to the
// flat index when too few candidates survive.
func (s *SimilarityService) searchExternal(ctx context.Context, records []models.TicketRecord, embedding []float64, k int) ([]models.ScoredTicket, error) {
	inCorpus := make(map[string]struct{}, len(records))
	for _, r := range records {
		inCorpus[r.ID] = struct{}{}
	}

	// over-fetch so stale index entries do not starve the result
	candidates, err := s.vectorIndex.Search(ctx, embedding, 2*k)
	if err != nil {
		return nil, wrap(ErrIndexUnavailable, "search vector index", err)
	}

	results := make([]models.ScoredTicket, 0, k)
	seen := make(map[string]struct{}, k)
	for _, c := range candidates {
		if _, ok := inCorpus[c.TicketID]; !ok {
			continue
		}
		if _, dup := seen[c.TicketID]; dup {
			continue
		}
		seen[c.TicketID] = struct{}{}
		results = append(results, c)
		if len(results) == k {
			break
		}
	}
	return results, nil
}

// embedRecords embeds records as documents in batches on the worker pool,
// preserving input order.
func (s *SimilarityService) embedRecords(ctx context.Context, records []models.TicketRecord) ([]models.IndexedTicket, error) {
	indexed := make([]models.IndexedTicket, len(records))

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	setErr := func(err error) {
		errOnce.Do(func() { firstErr = err })
	}

	for start := 0; start < len(records); start += s.batchSize {
		end := min(start+s.batchSize, len(records))
		batch := records[start:end]
		offset := start

		wg.Add(1)
		submitErr := s.pool.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				setErr(ctx.Err())
				return
			}

			texts := make([]string, len(batch))
			for i, r := range batch {
				texts[i] = r.Text
			}
			embeddings, err := s.embeddingsSvc.EmbedDocuments(ctx, texts)
			if err != nil {
				setErr(err)
				return
			}
			if len(embeddings) != len(batch) {
				setErr(fmt.Errorf("expected %d embeddings, got %d", len(batch), len(embeddings)))
				return
			}
			for i, r := range batch {
				indexed[offset+i] = models.IndexedTicket{Record: r, Embedding: embeddings[i]}
			}
		})
		if submitErr != nil {
			wg.Done()
			setErr(submitErr)
			break
		}
	}
	wg.Wait()

	if firstErr != nil {
		return nil, wrap(ErrEmbeddingFailed, "embed corpus", firstErr)
	}
	return indexed, nil
}

// EmbedCorpus loads the corpus and embeds every record, in insertion order
func (s *SimilarityService) EmbedCorpus(ctx context.Context) ([]models.IndexedTicket, error) {
	records, err := s.corpus.Load(ctx)
	if err != nil {
		return nil, wrap(ErrCorpusUnavailable, "load corpus", err)
	}
	if len(records) == 0 {
		return []models.IndexedTicket{}, nil
	}
	return s.embedRecords(ctx, records)
}

// IndexRecords embeds records and upserts them into the external index
func (s *SimilarityService) IndexRecords(ctx context.Context, records []models.TicketRecord) error {
	if s.vectorIndex == nil {
		return ErrIndexNotConfigured
	}
	if len(records) == 0 {
		return nil
	}

	indexed, err := s.embedRecords(ctx, records)
	if err != nil {
		return err
	}
	if err := s.vectorIndex.Upsert(ctx, indexed); err != nil {
		return wrap(ErrIndexUnavailable, "upsert vector index", err)
	}
	return nil
}

// Reindex rebuilds the external index from the full corpus and returns the
// number of records indexed.
func (s *SimilarityService) Reindex(ctx context.Context) (indexed int, err error) {
	if s.vectorIndex == nil {
		return 0, ErrIndexNotConfigured
	}

	ctx, span := observability.StartReindexSpan(ctx, s.retriever)
	defer func() { observability.EndSpan(span, err) }()

	records, err := s.corpus.Load(ctx)
	if err != nil {
		return 0, wrap(ErrCorpusUnavailable, "load corpus", err)
	}

	// upsert in slices so a large corpus is not held as embeddings at once
	chunk := s.batchSize * 8
	for start := 0; start < len(records); start += chunk {
		end := min(start+chunk, len(records))
		if err := s.IndexRecords(ctx, records[start:end]); err != nil {
			return indexed, err
		}
		indexed = end
		s.logger.Debug("reindex progress", "indexed", indexed, "total", len(records))
	}

	s.logger.Info("vector index rebuilt", "retriever", s.retriever, "records", indexed)
	return indexed, nil
}

func (s *SimilarityService) normalizeK(k int) int {
	if k <= 0 {
		return s.defaultK
	}
	if k > MaxTopK {
		return MaxTopK
	}
	return k
}

// Close releases the worker pool and the external index client
func (s *SimilarityService) Close() error {
	if s.pool != nil {
		s.pool.Release()
	}
	if s.vectorIndex != nil {
		return s.vectorIndex.Close()
	}
	return nil
}
