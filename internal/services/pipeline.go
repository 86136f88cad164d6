package services

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/BerylCAtieno/research-paper-api/internal/extractor"
	"github.com/BerylCAtieno/research-paper-api/internal/models"
	"github.com/BerylCAtieno/research-paper-api/internal/repository"
	"github.com/BerylCAtieno/research-paper-api/internal/storage"
	"github.com/BerylCAtieno/research-paper-api/internal/utils"
	"github.com/BerylCAtieno/research-paper-api/internal/vectorstore"
)

// Pipeline drives uploaded documents from PENDING to COMPLETED or FAILED.
type Pipeline struct {
	deps    Dependencies
	timeout time.Duration
	logger  *utils.Logger
	now     func() time.Time

	inflight sync.Map
}

func NewPipeline(deps Dependencies, opts Options, logger *utils.Logger) *Pipeline {
	return &Pipeline{
		deps:    deps,
		timeout: opts.StageTimeout,
		logger:  logger,
		now:     time.Now,
	}
}

// Schedule submits processing of id to the background runner. A document
// already queued or running in this process is not submitted twice.
func (p *Pipeline) Schedule(id string) error {
	if _, loaded := p.inflight.LoadOrStore(id, struct{}{}); loaded {
		return nil
	}

	err := p.deps.Runner.Submit("process-document:"+id, func(ctx context.Context) {
		defer p.inflight.Delete(id)
		p.ProcessDocument(ctx, id)
	})
	if err != nil {
		p.inflight.Delete(id)
		return fmt.Errorf("schedule document %s: %w", id, err)
	}
	return nil
}

// InFlight reports whether id is queued or being processed by this process.
func (p *Pipeline) InFlight(id string) bool {
	_, ok := p.inflight.Load(id)
	return ok
}

// ProcessDocument runs every stage for one document. Failures are recorded on
// the document, never returned.
func (p *Pipeline) ProcessDocument(ctx context.Context, id string) {
	logger := p.logger.With("document_id", id)

	doc, err := p.deps.Repo.GetByID(ctx, id)
	if err != nil {
		logger.Error("Failed to load document for processing", "error", err)
		return
	}
	if doc == nil {
		logger.Warn("Document to process not found")
		return
	}

	if err := doc.Transition(models.StatusProcessing); err != nil {
		logger.Warn("Document is not pending, skipping", "status", doc.Status)
		return
	}
	if err := p.deps.Repo.Save(ctx, doc); err != nil {
		logger.Error("Failed to mark document processing", "error", err)
		return
	}
	logger.Info("Processing started")

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Processing panicked", "panic", r, "stack", string(debug.Stack()))
			p.markFailed(ctx, doc, fmt.Sprintf("internal error: %v", r))
		}
	}()

	if err := p.run(ctx, doc, logger); err != nil {
		switch {
		case errors.Is(err, repository.ErrConflict), errors.Is(err, repository.ErrNotFound):
			// Another process failed or deleted the record; its state wins.
			logger.Warn("Document changed during processing, abandoning run", "error", err)
		case ctx.Err() != nil:
			// Shutting down. The record stays PROCESSING until the sweeper
			// handles it.
			logger.Warn("Processing interrupted", "error", err)
		default:
			logger.Error("Processing failed", "error", err)
			p.markFailed(ctx, doc, err.Error())
		}
		return
	}

	logger.Info("Processing completed", "chunks_indexed", *doc.ChunksIndexed, "pages", doc.PageCount)
}

func (p *Pipeline) run(ctx context.Context, doc *models.Document, logger *utils.Logger) error {
	pdf, err := withTimeout(ctx, p.timeout, func(ctx context.Context) ([]byte, error) {
		return p.deps.Storage.Download(ctx, doc.PDFKey)
	})
	if err != nil {
		return fmt.Errorf("failed to fetch PDF: %w", err)
	}

	extracted, err := withTimeout(ctx, p.timeout, func(ctx context.Context) (*extractor.Result, error) {
		return p.deps.Extractor.Extract(ctx, pdf)
	})
	if err != nil {
		return fmt.Errorf("text extraction failed: %w", err)
	}
	if strings.TrimSpace(extracted.Text) == "" {
		return fmt.Errorf("text extraction failed: %w", extractor.ErrNoText)
	}
	doc.PageCount = extracted.Pages
	logger.Info("Text extracted", "pages", extracted.Pages, "chars", len(extracted.Text))

	if err := p.storeArtifact(ctx, doc, models.ArtifactRawText, extracted.Text); err != nil {
		return err
	}
	if err := p.deps.Repo.Save(ctx, doc); err != nil {
		return fmt.Errorf("failed to record extracted text: %w", err)
	}

	summary, err := withTimeout(ctx, p.timeout, func(ctx context.Context) (*models.SummaryResult, error) {
		return p.deps.Analyzer.Summarize(ctx, extracted.Text)
	})
	if err != nil {
		return fmt.Errorf("summarization failed: %w", err)
	}
	for _, a := range []struct {
		kind models.ArtifactKind
		text string
	}{
		{models.ArtifactSummary, summary.Summary},
		{models.ArtifactInsights, summary.Insights},
		{models.ArtifactOpportunities, summary.Opportunities},
	} {
		if err := p.storeArtifact(ctx, doc, a.kind, a.text); err != nil {
			return err
		}
	}
	doc.SetInlineSummary(summary.Summary)
	if err := p.deps.Repo.Save(ctx, doc); err != nil {
		return fmt.Errorf("failed to record summaries: %w", err)
	}
	logger.Info("Summaries generated")

	n, err := p.index(ctx, doc.ID, extracted.Text)
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}
	doc.SetChunksIndexed(n)

	completed := *doc
	if err := completed.Complete(p.now().UTC()); err != nil {
		return err
	}
	if err := p.deps.Repo.Save(ctx, &completed); err != nil {
		return fmt.Errorf("failed to record completion: %w", err)
	}
	*doc = completed

	return nil
}

func (p *Pipeline) storeArtifact(ctx context.Context, doc *models.Document, kind models.ArtifactKind, text string) error {
	key := storage.ArtifactKey(kind, doc.ID)
	_, err := withTimeout(ctx, p.timeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, p.deps.Storage.Upload(ctx, key, []byte(text), storage.ContentTypeText)
	})
	if err != nil {
		return fmt.Errorf("failed to store %s: %w", kind, err)
	}
	return doc.SetArtifactKey(kind, key)
}

// index chunks the full text, embeds the chunks and upserts them, returning
// the number of entries written.
func (p *Pipeline) index(ctx context.Context, documentID, text string) (int, error) {
	chunks := p.deps.Chunker.Split(text)

	for start := 0; start < len(chunks); start += embedBatchSize {
		end := min(start+embedBatchSize, len(chunks))
		batch := chunks[start:end]

		vectors, err := withTimeout(ctx, p.timeout, func(ctx context.Context) ([][]float32, error) {
			return p.deps.Embedder.EmbedBatch(ctx, batch)
		})
		if err != nil {
			return 0, fmt.Errorf("embedding chunks %d-%d: %w", start, end-1, err)
		}
		if len(vectors) != len(batch) {
			return 0, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(batch))
		}

		records := make([]vectorstore.Record, len(batch))
		for i, chunk := range batch {
			records[i] = vectorstore.NewRecord(documentID, start+i, chunk, vectors[i])
		}

		_, err = withTimeout(ctx, p.timeout, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, p.deps.Index.Upsert(ctx, records)
		})
		if err != nil {
			return 0, fmt.Errorf("upserting chunks %d-%d: %w", start, end-1, err)
		}
	}

	return len(chunks), nil
}

// markFailed records reason on doc. A failure to persist is logged only.
func (p *Pipeline) markFailed(ctx context.Context, doc *models.Document, reason string) {
	if err := doc.Fail(reason); err != nil {
		p.logger.Error("Cannot mark document failed", "document_id", doc.ID, "status", doc.Status, "reason", reason, "error", err)
		return
	}
	if err := p.deps.Repo.Save(context.WithoutCancel(ctx), doc); err != nil {
		p.logger.Error("Failed to record processing failure", "document_id", doc.ID, "reason", reason, "error", err)
	}
}
