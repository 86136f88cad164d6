package services

import (
	"context"
	"time"

	"github.com/BerylCAtieno/research-paper-api/internal/analyzer"
	"github.com/BerylCAtieno/research-paper-api/internal/chunker"
	"github.com/BerylCAtieno/research-paper-api/internal/embedding"
	"github.com/BerylCAtieno/research-paper-api/internal/extractor"
	"github.com/BerylCAtieno/research-paper-api/internal/repository"
	"github.com/BerylCAtieno/research-paper-api/internal/storage"
	"github.com/BerylCAtieno/research-paper-api/internal/vectorstore"
	"github.com/BerylCAtieno/research-paper-api/internal/worker"
)

// Dependencies are the collaborators shared by the pipeline and the document
// service. They are built once at startup.
type Dependencies struct {
	Repo      repository.Repository
	Storage   storage.Storage
	Extractor extractor.Extractor
	Analyzer  analyzer.Analyzer
	Embedder  embedding.Embedder
	Index     vectorstore.Index
	Chunker   *chunker.Splitter
	Runner    worker.Runner
}

type Options struct {
	// QATopK is the number of chunks retrieved per question.
	QATopK int
	// StageTimeout bounds each external call; zero means no limit.
	StageTimeout time.Duration
}

const (
	defaultTopK   = 5
	pdfLinkExpiry = time.Hour
	// embedBatchSize is the number of chunks embedded and upserted together.
	embedBatchSize = 100
)

// withTimeout runs fn under a deadline of d, or unbounded when d is zero.
func withTimeout[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if d <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return fn(ctx)
}
