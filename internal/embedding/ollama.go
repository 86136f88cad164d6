package embedding

import (
	"context"
	"fmt"

	"github.com/ollama/ollama/api"
)

type ollamaEmbedder struct {
	client     *api.Client
	model      string
	dimensions int
}

func NewOllamaEmbedder(client *api.Client, model string, dimensions int) Embedder {
	return &ollamaEmbedder{client: client, model: model, dimensions: dimensions}
}

func (e *ollamaEmbedder) Dimensions() int { return e.dimensions }

func (e *ollamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *ollamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := e.client.Embed(ctx, &api.EmbedRequest{
		Model: e.model,
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama returned %d vectors for %d inputs", len(resp.Embeddings), len(texts))
	}
	if err := checkDimensions(resp.Embeddings, e.dimensions); err != nil {
		return nil, err
	}
	return resp.Embeddings, nil
}
