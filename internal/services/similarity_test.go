package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ticket-similarity-api/internal/models"
	"github.com/ticket-similarity-api/internal/repository/file"
	pkgservices "github.com/ticket-similarity-api/pkg/schema/services"
)

func hashingService() *pkgservices.EmbeddingsService {
	return pkgservices.NewEmbeddingsService(pkgservices.NewHashingEmbedder(1024))
}

func newSimilarity(t *testing.T, corpus *file.CorpusRepository, embeddings *pkgservices.EmbeddingsService, opts ...SimilarityOption) *SimilarityService {
	t.Helper()
	svc, err := NewSimilarityService(corpus, embeddings, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })
	return svc
}

// seedWiFiAndPrinter ingests the two tickets used by most retrieval tests
func seedWiFiAndPrinter(t *testing.T, corpus *file.CorpusRepository, opts ...IngestOption) (*ticketStore, *IngestService) {
	t.Helper()
	store := newTicketStore()
	store.addTicket("T1", "WiFi outage in building A", "")
	store.addTicket("T2", "Printer jam on 3rd floor", "")
	ingest := newIngest(t, store, corpus, opts...)
	for _, id := range []string{"T1", "T2"} {
		_, err := ingest.Ingest(context.Background(), id)
		require.NoError(t, err)
	}
	return store, ingest
}

func TestQuerySimilar_EmptyCorpus(t *testing.T) {
	svc := newSimilarity(t, newFileCorpus(t), hashingService())

	ids, err := svc.QuerySimilar(context.Background(), "wifi issue", 3)
	require.NoError(t, err)
	assert.NotNil(t, ids)
	assert.Empty(t, ids)
}

func TestQuerySimilar_NearestTicket(t *testing.T) {
	corpus := newFileCorpus(t)
	seedWiFiAndPrinter(t, corpus)
	svc := newSimilarity(t, corpus, hashingService())

	ids, err := svc.QuerySimilar(context.Background(), "wifi issue in building A", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"T1"}, ids)

	ids, err = svc.QuerySimilar(context.Background(), "printer jammed", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"T2"}, ids)
}

func TestQuerySimilar_Deterministic(t *testing.T) {
	corpus := newFileCorpus(t)
	seedWiFiAndPrinter(t, corpus)
	svc := newSimilarity(t, corpus, hashingService(), WithBatchSize(1), WithEmbedWorkers(4))

	first, err := svc.QuerySimilarScored(context.Background(), "network outage", 2)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := svc.QuerySimilarScored(context.Background(), "network outage", 2)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestQuerySimilar_Bound(t *testing.T) {
	corpus := newFileCorpus(t)
	store := newTicketStore()
	for i := 0; i < 60; i++ {
		store.addTicket(fmt.Sprintf("T%02d", i), fmt.Sprintf("network issue number %d", i), "")
	}
	ingest := newIngest(t, store, corpus)
	_, err := ingest.Backfill(context.Background(), 4)
	require.NoError(t, err)

	svc := newSimilarity(t, corpus, hashingService(), WithBatchSize(7))

	tests := []struct {
		name string
		k    int
		want int
	}{
		{"default", 0, DefaultTopK},
		{"negative", -4, DefaultTopK},
		{"explicit", 5, 5},
		{"capped", 500, MaxTopK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids, err := svc.QuerySimilar(context.Background(), "network issue", tt.k)
			require.NoError(t, err)
			assert.Len(t, ids, tt.want)

			seen := make(map[string]bool)
			for _, id := range ids {
				assert.False(t, seen[id], "duplicate id %s", id)
				seen[id] = true
			}
		})
	}
}

func TestQuerySimilar_KLargerThanCorpus(t *testing.T) {
	corpus := newFileCorpus(t)
	seedWiFiAndPrinter(t, corpus)
	svc := newSimilarity(t, corpus, hashingService())

	ids, err := svc.QuerySimilar(context.Background(), "wifi", 10)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"T1", "T2"}, ids)
}

func TestQuerySimilar_FreshAfterIngest(t *testing.T) {
	corpus := newFileCorpus(t)
	store, ingest := seedWiFiAndPrinter(t, corpus)
	svc := newSimilarity(t, corpus, hashingService())

	store.addTicket("T3", "VPN certificate expired", "")
	_, err := ingest.Ingest(context.Background(), "T3")
	require.NoError(t, err)

	ids, err := svc.QuerySimilar(context.Background(), "vpn certificate", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"T3"}, ids)
}

func TestQuerySimilar_TiesKeepInsertionOrder(t *testing.T) {
	corpus := newFileCorpus(t)
	for _, id := range []string{"second-id", "first-id"} {
		// identical text yields identical embeddings
		record := models.NewTicketRecord(&models.Ticket{ID: id, TicketNumber: "QD-1", Subject: "Disk full"}, "Storage")
		_, err := corpus.Append(context.Background(), record)
		require.NoError(t, err)
	}
	svc := newSimilarity(t, corpus, hashingService())

	ids, err := svc.QuerySimilar(context.Background(), "disk full", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"second-id", "first-id"}, ids)
}

func TestQuerySimilar_StopwordOnlyQuery(t *testing.T) {
	corpus := newFileCorpus(t)
	seedWiFiAndPrinter(t, corpus)
	svc := newSimilarity(t, corpus, hashingService())

	ids, err := svc.QuerySimilar(context.Background(), "is it on?", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"T1", "T2"}, ids)

	ids, err = svc.QuerySimilar(context.Background(), "is it on?", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"T1"}, ids)
}

func TestQuerySimilar_InvalidQuery(t *testing.T) {
	svc := newSimilarity(t, newFileCorpus(t), hashingService())

	_, err := svc.QuerySimilar(context.Background(), "   ", 3)
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestQuerySimilar_EmbeddingFailure(t *testing.T) {
	corpus := newFileCorpus(t)
	seedWiFiAndPrinter(t, corpus)
	svc := newSimilarity(t, corpus, pkgservices.NewEmbeddingsService(failingEmbedder{}))

	_, err := svc.QuerySimilar(context.Background(), "wifi", 1)
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
	assert.True(t, errors.Is(err, errEmbedderDown))
}

func TestQuerySimilar_Timeout(t *testing.T) {
	corpus := newFileCorpus(t)
	seedWiFiAndPrinter(t, corpus)
	svc := newSimilarity(t, corpus, pkgservices.NewEmbeddingsService(failingEmbedder{block: true}),
		WithQueryTimeout(20*time.Millisecond))

	_, err := svc.QuerySimilar(context.Background(), "wifi", 1)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestQuerySimilar_CorpusUnavailable(t *testing.T) {
	svc := newSimilarity(t, file.NewCorpusRepository(t.TempDir()), hashingService())

	_, err := svc.QuerySimilar(context.Background(), "wifi", 1)
	assert.ErrorIs(t, err, ErrCorpusUnavailable)
}

func TestNewSimilarityService_Options(t *testing.T) {
	corpus := newFileCorpus(t)

	_, err := NewSimilarityService(nil, hashingService())
	assert.Error(t, err)
	_, err = NewSimilarityService(corpus, nil)
	assert.Error(t, err)
	_, err = NewSimilarityService(corpus, hashingService(), WithBatchSize(0))
	assert.Error(t, err)
	_, err = NewSimilarityService(corpus, hashingService(), WithDefaultK(MaxTopK+1))
	assert.Error(t, err)
	_, err = NewSimilarityService(corpus, hashingService(), WithVectorIndex("qdrant", nil))
	assert.Error(t, err)

	svc := newSimilarity(t, corpus, hashingService(), WithDefaultK(1))
	assert.Equal(t, RetrieverMemory, svc.Retriever())
	assert.Equal(t, 1, svc.normalizeK(0))
}

func TestExternalIndex_IngestQueryReindex(t *testing.T) {
	corpus := newFileCorpus(t)
	index := &memoryIndex{}
	svc := newSimilarity(t, corpus, hashingService(), WithVectorIndex("qdrant", index))
	assert.Equal(t, "qdrant", svc.Retriever())

	seedWiFiAndPrinter(t, corpus, WithIndexer(svc))
	assert.Equal(t, 2, index.upserts)

	ids, err := svc.QuerySimilar(context.Background(), "wifi issue in building A", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"T1"}, ids)

	n, err := svc.Reindex(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 4, index.upserts)
	assert.Len(t, index.entries, 2)
}

func TestExternalIndex_FiltersIDsOutsideCorpus(t *testing.T) {
	corpus := newFileCorpus(t)
	seedWiFiAndPrinter(t, corpus)

	embeddings := hashingService()
	stale, err := embeddings.EmbedDocument(context.Background(), "WiFi outage in building A")
	require.NoError(t, err)
	index := &memoryIndex{entries: []models.IndexedTicket{
		{Record: models.TicketRecord{ID: "deleted"}, Embedding: stale},
	}}
	svc := newSimilarity(t, corpus, embeddings, WithVectorIndex("pgvector", index))

	_, err = svc.Reindex(context.Background())
	require.NoError(t, err)

	ids, err := svc.QuerySimilar(context.Background(), "wifi outage building", 3)
	require.NoError(t, err)
	assert.NotContains(t, ids, "deleted")
	assert.ElementsMatch(t, []string{"T1", "T2"}, ids)
}

func TestExternalIndex_BehindCorpusRanksInMemory(t *testing.T) {
	corpus := newFileCorpus(t)
	seedWiFiAndPrinter(t, corpus)

	embeddings := hashingService()
	printer, err := embeddings.EmbedDocument(context.Background(), "Printer jam on 3rd floor")
	require.NoError(t, err)
	// T1 never reached the index, e.g. its upsert failed after the append
	index := &memoryIndex{entries: []models.IndexedTicket{
		{Record: models.TicketRecord{ID: "T2"}, Embedding: printer},
	}}
	svc := newSimilarity(t, corpus, embeddings, WithVectorIndex("qdrant", index))

	ids, err := svc.QuerySimilar(context.Background(), "wifi issue in building A", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"T1", "T2"}, ids)

	ids, err = svc.QuerySimilar(context.Background(), "wifi issue in building A", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"T2"}, ids, "a full result from the index is returned as is")
}

func TestExternalIndex_StopwordOnlyQuerySkipsIndex(t *testing.T) {
	corpus := newFileCorpus(t)
	seedWiFiAndPrinter(t, corpus)

	index := &memoryIndex{err: errors.New("zero vector rejected")}
	svc := newSimilarity(t, corpus, hashingService(), WithVectorIndex("pgvector", index))

	ids, err := svc.QuerySimilar(context.Background(), "is it on?", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"T1", "T2"}, ids)
}

func TestExternalIndex_Errors(t *testing.T) {
	corpus := newFileCorpus(t)
	seedWiFiAndPrinter(t, corpus)

	index := &memoryIndex{err: errors.New("connection reset")}
	svc := newSimilarity(t, corpus, hashingService(), WithVectorIndex("vertex", index))

	_, err := svc.QuerySimilar(context.Background(), "wifi", 1)
	assert.ErrorIs(t, err, ErrIndexUnavailable)

	_, err = svc.Reindex(context.Background())
	assert.ErrorIs(t, err, ErrIndexUnavailable)
}

func TestReindex_MemoryRetrieverNotConfigured(t *testing.T) {
	svc := newSimilarity(t, newFileCorpus(t), hashingService())

	_, err := svc.Reindex(context.Background())
	assert.ErrorIs(t, err, ErrIndexNotConfigured)
	assert.ErrorIs(t, svc.IndexRecords(context.Background(), nil), ErrIndexNotConfigured)
}

func TestEmbedCorpus(t *testing.T) {
	corpus := newFileCorpus(t)
	svc := newSimilarity(t, corpus, hashingService(), WithBatchSize(1))

	indexed, err := svc.EmbedCorpus(context.Background())
	require.NoError(t, err)
	assert.Empty(t, indexed)

	seedWiFiAndPrinter(t, corpus)
	indexed, err = svc.EmbedCorpus(context.Background())
	require.NoError(t, err)
	require.Len(t, indexed, 2)
	assert.Equal(t, "T1", indexed[0].Record.ID)
	assert.Equal(t, "T2", indexed[1].Record.ID)
	assert.Len(t, indexed[0].Embedding, 1024)
}
