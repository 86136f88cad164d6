package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/BerylCAtieno/research-paper-api/internal/analyzer"
	"github.com/BerylCAtieno/research-paper-api/internal/models"
	"github.com/BerylCAtieno/research-paper-api/internal/utils"
	"github.com/BerylCAtieno/research-paper-api/internal/vectorstore"
)

// AskQuestion answers question from the most similar chunks of a completed
// document. When no chunk matches, the fixed fallback answer is returned
// without calling the language model.
func (s *documentService) AskQuestion(ctx context.Context, id, question string) (*models.AnswerResponse, error) {
	if _, err := s.getCompleted(ctx, id); err != nil {
		return nil, err
	}

	question = strings.TrimSpace(question)
	if question == "" {
		return nil, utils.NewBadRequestError("Question is required")
	}

	vector, err := withTimeout(ctx, s.timeout, func(ctx context.Context) ([]float32, error) {
		return s.deps.Embedder.Embed(ctx, question)
	})
	if err != nil {
		s.logger.Error("Failed to embed question", "error", err, "id", id)
		return nil, utils.NewInternalError("Failed to process question")
	}

	matches, err := withTimeout(ctx, s.timeout, func(ctx context.Context) ([]vectorstore.Match, error) {
		return s.deps.Index.Query(ctx, id, vector, s.topK)
	})
	if err != nil {
		s.logger.Error("Failed to query vector index", "error", err, "id", id)
		return nil, utils.NewInternalError("Failed to search document")
	}

	resp := &models.AnswerResponse{
		Context: make([]string, 0, len(matches)),
		Sources: make([]models.Source, 0, len(matches)),
	}

	if len(matches) == 0 {
		resp.Answer = analyzer.FallbackAnswer
		return resp, nil
	}

	for _, m := range matches {
		resp.Context = append(resp.Context, m.Text)
		resp.Sources = append(resp.Sources, models.Source{
			ChunkID:        m.ChunkID,
			RelevanceScore: fmt.Sprintf("%.2f", m.Score),
		})
	}

	answer, err := withTimeout(ctx, s.timeout, func(ctx context.Context) (string, error) {
		return s.deps.Analyzer.Answer(ctx, question, resp.Context)
	})
	if err != nil {
		s.logger.Error("Failed to generate answer", "error", err, "id", id)
		return nil, utils.NewInternalError("Failed to generate answer")
	}
	resp.Answer = answer

	s.logger.Info("Question answered", "id", id, "matches", len(matches))
	return resp, nil
}
