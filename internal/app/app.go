// Package app wires the configured backends into the document service.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/jmoiron/sqlx"

	"github.com/BerylCAtieno/research-paper-api/internal/analyzer"
	"github.com/BerylCAtieno/research-paper-api/internal/chunker"
	"github.com/BerylCAtieno/research-paper-api/internal/config"
	"github.com/BerylCAtieno/research-paper-api/internal/db"
	"github.com/BerylCAtieno/research-paper-api/internal/embedding"
	"github.com/BerylCAtieno/research-paper-api/internal/extractor"
	"github.com/BerylCAtieno/research-paper-api/internal/repository"
	"github.com/BerylCAtieno/research-paper-api/internal/services"
	"github.com/BerylCAtieno/research-paper-api/internal/storage"
	"github.com/BerylCAtieno/research-paper-api/internal/utils"
	"github.com/BerylCAtieno/research-paper-api/internal/vectorstore"
	"github.com/BerylCAtieno/research-paper-api/internal/worker"
)

type App struct {
	DB       *sqlx.DB
	Repo     repository.Repository
	Index    vectorstore.Index
	Pool     *worker.Pool
	Pipeline *services.Pipeline
	Service  services.DocumentService
	Sweeper  *services.Sweeper
}

// OpenRecordStore connects to the record store and applies migrations.
func OpenRecordStore(cfg *config.Config) (*sqlx.DB, repository.Repository, error) {
	database, err := db.NewSQLiteDB(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := db.RunMigrations(database); err != nil {
		database.Close()
		return nil, nil, err
	}
	return database, repository.NewRepository(database), nil
}

// Build constructs every backend named by cfg. The caller owns the result and
// must call Close.
func Build(ctx context.Context, cfg *config.Config, logger *utils.Logger) (*App, error) {
	database, repo, err := OpenRecordStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("record store: %w", err)
	}
	a := &App{DB: database, Repo: repo}

	fail := func(what string, err error) (*App, error) {
		a.closeStores()
		return nil, fmt.Errorf("%s: %w", what, err)
	}

	blobs, err := storage.NewS3Storage(ctx, cfg)
	if err != nil {
		return fail("blob store", err)
	}

	ex, err := extractor.New(cfg)
	if err != nil {
		return fail("extractor", err)
	}

	completer, err := analyzer.NewCompleter(cfg, logger)
	if err != nil {
		return fail("completer", err)
	}
	prompts := analyzer.DefaultPrompts()
	if cfg.PromptsFile != "" {
		if prompts, err = analyzer.LoadPrompts(cfg.PromptsFile); err != nil {
			return fail("prompts", err)
		}
	}
	an, err := analyzer.New(completer, prompts)
	if err != nil {
		return fail("analyzer", err)
	}

	embedder, err := embedding.New(cfg)
	if err != nil {
		return fail("embedder", err)
	}

	a.Index, err = NewIndex(ctx, cfg)
	if err != nil {
		return fail("vector index", err)
	}

	a.Pool = worker.NewPool(cfg.WorkerConcurrency, logger)

	deps := services.Dependencies{
		Repo:      repo,
		Storage:   blobs,
		Extractor: ex,
		Analyzer:  an,
		Embedder:  embedder,
		Index:     a.Index,
		Chunker:   chunker.New(chunker.WithChunkSize(cfg.ChunkSize), chunker.WithOverlap(cfg.ChunkOverlap)),
		Runner:    a.Pool,
	}
	opts := services.Options{QATopK: cfg.QATopK, StageTimeout: cfg.StageTimeout}

	a.Pipeline = services.NewPipeline(deps, opts, logger)
	a.Service = services.NewDocumentService(deps, a.Pipeline, opts, logger)
	a.Sweeper = services.NewSweeper(repo, a.Pipeline, cfg.StaleProcessingAfter, logger)

	logger.Info("Backends ready",
		"extractor", cfg.Extractor,
		"llm_provider", cfg.LLMProvider,
		"embedding_provider", cfg.EmbeddingProvider,
		"vector_db", cfg.VectorDB)

	return a, nil
}

// NewIndex opens the vector index selected by VECTOR_DB.
func NewIndex(ctx context.Context, cfg *config.Config) (vectorstore.Index, error) {
	switch cfg.VectorDB {
	case "qdrant":
		addr := net.JoinHostPort(cfg.QdrantHost, strconv.Itoa(cfg.QdrantPort))
		return vectorstore.NewQdrantIndex(ctx, addr, cfg.QdrantCollection, cfg.EmbeddingDimension)
	case "pgvector":
		return vectorstore.NewPGVectorIndex(ctx, cfg.PGVectorURL, cfg.EmbeddingDimension)
	case "memory":
		return vectorstore.NewMemoryIndex(), nil
	default:
		return nil, fmt.Errorf("unsupported vector database %q", cfg.VectorDB)
	}
}

// Close waits for running pipeline tasks until ctx expires, then releases the
// stores.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Pool != nil {
		if err := a.Pool.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("worker pool: %w", err))
		}
	}
	errs = append(errs, a.closeStores())
	return errors.Join(errs...)
}

func (a *App) closeStores() error {
	var errs []error
	if a.Index != nil {
		errs = append(errs, a.Index.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}
