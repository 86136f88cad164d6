// Package extractor turns PDF bytes into plain text.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/BerylCAtieno/research-paper-api/internal/config"
)

var ErrNoText = errors.New("no text could be extracted from PDF")

type Result struct {
	Text  string
	Pages int
}

type Extractor interface {
	Extract(ctx context.Context, data []byte) (*Result, error)
}

// New returns the backend selected by cfg.Extractor.
func New(cfg *config.Config) (Extractor, error) {
	switch cfg.Extractor {
	case "pdf", "":
		return NewPDFExtractor(), nil
	case "docconv":
		return NewDocconvExtractor(), nil
	case "mistral":
		return NewMistralExtractor(cfg.MistralAPIKey, &http.Client{Timeout: 5 * time.Minute}), nil
	}
	return nil, fmt.Errorf("unknown extractor %q", cfg.Extractor)
}

func finish(text string, pages int) (*Result, error) {
	text = Clean(text)
	if text == "" {
		return nil, ErrNoText
	}
	return &Result{Text: text, Pages: pages}, nil
}
