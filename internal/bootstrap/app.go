// Package bootstrap wires repositories and services from configuration.
// It is shared by the API server and the ticketctl CLI.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"

	"github.com/ticket-similarity-api/internal/config"
	"github.com/ticket-similarity-api/internal/observability"
	"github.com/ticket-similarity-api/internal/repository"
	"github.com/ticket-similarity-api/internal/repository/badger"
	"github.com/ticket-similarity-api/internal/repository/file"
	"github.com/ticket-similarity-api/internal/repository/postgres"
	"github.com/ticket-similarity-api/internal/repository/qdrant"
	"github.com/ticket-similarity-api/internal/repository/vertex"
	"github.com/ticket-similarity-api/internal/services"
	"github.com/ticket-similarity-api/pkg/schema/db"
	pkgservices "github.com/ticket-similarity-api/pkg/schema/services"
)

// App holds the wired services and everything that must be closed on exit
type App struct {
	Config     *config.Config
	Tickets    repository.TicketRepository
	Corpus     repository.CorpusRepository
	Ingest     *services.IngestService
	Similarity *services.SimilarityService
	Tracer     *observability.TracerProvider

	embeddings *pkgservices.EmbeddingsService
}

// New connects to PostgreSQL, opens the configured corpus backend and
// retriever, and builds the ingest and similarity services.
func New(ctx context.Context) (*App, error) {
	cfg := config.GetConfig()
	logger := slog.Default()

	tracer, err := observability.InitTracing(ctx, observability.TracingConfig{
		ServiceName:    "ticket-similarity-api",
		ServiceVersion: cfg.APIVersion,
		Environment:    cfg.Env,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SampleRate:     cfg.TraceSampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	app := &App{Config: cfg, Tracer: tracer}

	if err := db.InitPostgres(ctx); err != nil {
		app.Close(ctx)
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	log.Println("Database initialization complete")
	pgDB := db.GetPostgres()
	app.Tickets = postgres.NewTicketRepository(pgDB)

	app.Corpus, err = openCorpus(ctx, cfg)
	if err != nil {
		app.Close(ctx)
		return nil, err
	}

	app.embeddings = pkgservices.GetEmbeddingsService()
	if err := pkgservices.GetInitError(); err != nil {
		app.Close(ctx)
		return nil, fmt.Errorf("init embeddings service: %w", err)
	}
	log.Printf("Using %s embeddings", app.embeddings.Provider())

	similarityOpts := []services.SimilarityOption{
		services.WithEmbedWorkers(cfg.EmbedWorkers),
		services.WithBatchSize(cfg.EmbedBatchSize),
		services.WithDefaultK(cfg.DefaultTopK),
		services.WithQueryTimeout(cfg.RequestTimeout),
		services.WithSimilarityLogger(logger),
	}
	index, err := openVectorIndex(ctx, cfg)
	if err != nil {
		app.Close(ctx)
		return nil, err
	}
	if index != nil {
		similarityOpts = append(similarityOpts, services.WithVectorIndex(cfg.RetrieverBackend, index))
	}

	app.Similarity, err = services.NewSimilarityService(app.Corpus, app.embeddings, similarityOpts...)
	if err != nil {
		if index != nil {
			index.Close()
		}
		app.Close(ctx)
		return nil, fmt.Errorf("create similarity service: %w", err)
	}

	ingestOpts := []services.IngestOption{
		services.WithTimeout(cfg.RequestTimeout),
		services.WithLogger(logger),
	}
	if index != nil {
		ingestOpts = append(ingestOpts, services.WithIndexer(app.Similarity))
	}
	app.Ingest, err = services.NewIngestService(app.Tickets, app.Corpus, ingestOpts...)
	if err != nil {
		app.Close(ctx)
		return nil, fmt.Errorf("create ingest service: %w", err)
	}

	return app, nil
}

func openCorpus(ctx context.Context, cfg *config.Config) (repository.CorpusRepository, error) {
	switch cfg.CorpusBackend {
	case "file", "":
		log.Printf("Using JSON file corpus at %s", cfg.CorpusPath)
		return file.NewCorpusRepository(cfg.CorpusPath), nil
	case "badger":
		log.Printf("Using Badger corpus in %s", cfg.CorpusPath)
		repo, err := badger.OpenCorpusRepository(cfg.CorpusPath, false)
		if err != nil {
			return nil, fmt.Errorf("open badger corpus: %w", err)
		}
		return repo, nil
	case "postgres":
		log.Println("Using PostgreSQL corpus")
		repo := postgres.NewCorpusRepository(db.GetPostgres())
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("prepare corpus table: %w", err)
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("unknown CORPUS_BACKEND %q", cfg.CorpusBackend)
	}
}

// openVectorIndex returns nil for the in-memory retriever
func openVectorIndex(ctx context.Context, cfg *config.Config) (repository.VectorIndexRepository, error) {
	switch cfg.RetrieverBackend {
	case services.RetrieverMemory, "":
		log.Println("Using in-memory retriever (index rebuilt per query)")
		return nil, nil
	case "pgvector":
		log.Println("Using pgvector retriever")
		repo := postgres.NewVectorIndexRepository(db.GetPostgres())
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("prepare pgvector table: %w", err)
		}
		return repo, nil
	case "qdrant":
		log.Printf("Using Qdrant retriever at %s:%d/%s", cfg.QdrantHost, cfg.QdrantPort, cfg.QdrantCollection)
		repo, err := qdrant.NewVectorIndexRepository(cfg.QdrantHost, cfg.QdrantPort, cfg.QdrantCollection)
		if err != nil {
			return nil, fmt.Errorf("create qdrant index: %w", err)
		}
		return repo, nil
	case "vertex":
		log.Println("Using Vertex AI Vector Search retriever")
		repo, err := vertex.NewVectorIndexRepository(ctx, vertex.Config{
			ProjectID:            cfg.VertexProjectID,
			Location:             cfg.VertexLocation,
			IndexID:              cfg.VertexIndexID,
			IndexEndpointID:      cfg.VertexIndexEndpointID,
			DeployedIndexID:      cfg.VertexDeployedIndexID,
			PublicEndpointDomain: cfg.VertexPublicEndpointDomain,
		})
		if err != nil {
			return nil, fmt.Errorf("create vertex index: %w", err)
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("unknown RETRIEVER_BACKEND %q", cfg.RetrieverBackend)
	}
}

// Close releases every client the app opened, in reverse order
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Similarity != nil {
		errs = append(errs, a.Similarity.Close())
	}
	if a.embeddings != nil {
		errs = append(errs, a.embeddings.Close())
	}
	if a.Corpus != nil {
		errs = append(errs, a.Corpus.Close())
	}
	errs = append(errs, db.ClosePostgres())
	if a.Tracer != nil {
		errs = append(errs, a.Tracer.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
