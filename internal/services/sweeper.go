package services

import (
	"context"
	"fmt"
	"time"

	"github.com/BerylCAtieno/research-paper-api/internal/models"
	"github.com/BerylCAtieno/research-paper-api/internal/repository"
	"github.com/BerylCAtieno/research-paper-api/internal/utils"
)

// StalledReason is recorded on documents the sweeper fails.
const StalledReason = "processing stalled"

// Sweeper recovers documents whose processing was lost, for example when the
// process restarted mid-run or the FAILED write itself failed.
type Sweeper struct {
	repo       repository.Repository
	pipeline   *Pipeline
	staleAfter time.Duration
	logger     *utils.Logger
	now        func() time.Time
}

type SweepResult struct {
	Failed      int
	Resubmitted int
}

// NewSweeper builds a sweeper. pipeline may be nil, in which case nothing is
// considered in flight and PENDING documents are left alone.
func NewSweeper(repo repository.Repository, pipeline *Pipeline, staleAfter time.Duration, logger *utils.Logger) *Sweeper {
	return &Sweeper{
		repo:       repo,
		pipeline:   pipeline,
		staleAfter: staleAfter,
		logger:     logger,
		now:        time.Now,
	}
}

// Sweep fails stalled PROCESSING documents and resubmits stale PENDING ones.
func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	cutoff := s.now().Add(-s.staleAfter)

	failed, err := s.FailStalled(ctx, cutoff)
	res.Failed = failed
	if err != nil {
		return res, err
	}

	if s.pipeline == nil {
		return res, nil
	}

	pending, err := s.repo.ListByStatus(ctx, models.StatusPending, cutoff)
	if err != nil {
		return res, fmt.Errorf("list stale pending documents: %w", err)
	}
	for _, doc := range pending {
		if s.pipeline.InFlight(doc.ID) {
			continue
		}
		if err := s.pipeline.Schedule(doc.ID); err != nil {
			s.logger.Error("Failed to resubmit pending document", "document_id", doc.ID, "error", err)
			continue
		}
		s.logger.Info("Resubmitted pending document", "document_id", doc.ID)
		res.Resubmitted++
	}

	return res, nil
}

// FailStalled marks PROCESSING documents last updated before cutoff as FAILED.
func (s *Sweeper) FailStalled(ctx context.Context, cutoff time.Time) (int, error) {
	docs, err := s.repo.ListByStatus(ctx, models.StatusProcessing, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list stalled documents: %w", err)
	}

	failed := 0
	for _, doc := range docs {
		if s.pipeline != nil && s.pipeline.InFlight(doc.ID) {
			continue
		}
		if err := doc.Fail(StalledReason); err != nil {
			continue
		}
		if err := s.repo.Save(ctx, doc); err != nil {
			s.logger.Error("Failed to mark stalled document", "document_id", doc.ID, "error", err)
			continue
		}
		s.logger.Warn("Marked stalled document failed", "document_id", doc.ID)
		failed++
	}
	return failed, nil
}

// Run sweeps every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res, err := s.Sweep(ctx)
			if err != nil {
				s.logger.Error("Sweep failed", "error", err)
				continue
			}
			if res.Failed > 0 || res.Resubmitted > 0 {
				s.logger.Info("Sweep finished", "failed", res.Failed, "resubmitted", res.Resubmitted)
			}
		}
	}
}
