package analyzer

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/BerylCAtieno/research-paper-api/internal/config"
	"github.com/BerylCAtieno/research-paper-api/internal/utils"
)

// Completer sends a single prompt to a language model and returns its reply.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// NewCompleter returns the backend selected by cfg.LLMProvider.
func NewCompleter(cfg *config.Config, logger *utils.Logger) (Completer, error) {
	switch cfg.LLMProvider {
	case "openrouter":
		return NewOpenRouterCompleter(cfg.OpenRouterBaseURL, cfg.OpenRouterAPIKey, cfg.OpenRouterModel, logger), nil
	case "ollama":
		host, err := url.Parse(cfg.OllamaHost)
		if err != nil {
			return nil, fmt.Errorf("invalid OLLAMA_HOST: %w", err)
		}
		client := api.NewClient(host, &http.Client{Timeout: 10 * time.Minute})
		return NewOllamaCompleter(client, cfg.OllamaModel), nil
	}
	return nil, fmt.Errorf("unknown LLM provider %q", cfg.LLMProvider)
}
