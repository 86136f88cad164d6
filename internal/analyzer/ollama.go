package analyzer

import (
	"context"
	"fmt"
	"strings"

	"github.com/ollama/ollama/api"
)

type ollamaCompleter struct {
	client *api.Client
	model  string
}

func NewOllamaCompleter(client *api.Client, model string) Completer {
	return &ollamaCompleter{client: client, model: model}
}

func (c *ollamaCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	stream := false
	req := &api.GenerateRequest{
		Model:  c.model,
		Prompt: prompt,
		Stream: &stream,
		Options: map[string]interface{}{
			"temperature": 0.0,
		},
	}

	var out strings.Builder
	err := c.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		out.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama generate: %w", err)
	}

	return strings.TrimSpace(out.String()), nil
}
