// Package embedding turns text into fixed-dimension vectors.
package embedding

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/BerylCAtieno/research-paper-api/internal/config"
)

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// New returns the backend selected by cfg.EmbeddingProvider.
func New(cfg *config.Config) (Embedder, error) {
	switch cfg.EmbeddingProvider {
	case "openai":
		return NewOpenAIEmbedder(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.EmbeddingModel, cfg.EmbeddingDimension,
			&http.Client{Timeout: 2 * time.Minute}), nil
	case "ollama":
		host, err := url.Parse(cfg.OllamaHost)
		if err != nil {
			return nil, fmt.Errorf("invalid OLLAMA_HOST: %w", err)
		}
		client := api.NewClient(host, &http.Client{Timeout: 2 * time.Minute})
		return NewOllamaEmbedder(client, cfg.EmbeddingModel, cfg.EmbeddingDimension), nil
	}
	return nil, fmt.Errorf("unknown embedding provider %q", cfg.EmbeddingProvider)
}

func checkDimensions(vectors [][]float32, want int) error {
	for i, v := range vectors {
		if len(v) != want {
			return fmt.Errorf("embedding %d has dimension %d, want %d", i, len(v), want)
		}
	}
	return nil
}
