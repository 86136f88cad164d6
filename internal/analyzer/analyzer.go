// Package analyzer produces summaries and answers from a language model.
package analyzer

import (
	"context"
	"fmt"
	"strings"
	"text/template"

	"github.com/BerylCAtieno/research-paper-api/internal/models"
)

const (
	// MaxInputChars bounds the text sent to the summarization prompts.
	MaxInputChars = 25000

	// FallbackAnswer is returned when the document has no relevant passages.
	FallbackAnswer = "I don't have enough information to answer this question."
)

type Analyzer interface {
	Summarize(ctx context.Context, text string) (*models.SummaryResult, error)
	Answer(ctx context.Context, question string, contexts []string) (string, error)
}

type promptAnalyzer struct {
	completer Completer
	prompts   *compiledPrompts
}

func New(completer Completer, prompts Prompts) (Analyzer, error) {
	compiled, err := prompts.compile()
	if err != nil {
		return nil, err
	}
	return &promptAnalyzer{completer: completer, prompts: compiled}, nil
}

// Summarize runs the summary, insights and opportunities prompts in turn over
// the first MaxInputChars characters of text.
func (a *promptAnalyzer) Summarize(ctx context.Context, text string) (*models.SummaryResult, error) {
	if runes := []rune(text); len(runes) > MaxInputChars {
		text = string(runes[:MaxInputChars])
	}
	data := struct{ Text string }{text}

	var result models.SummaryResult
	for _, step := range []struct {
		name string
		tmpl *template.Template
		out  *string
	}{
		{"summary", a.prompts.summary, &result.Summary},
		{"insights", a.prompts.insights, &result.Insights},
		{"opportunities", a.prompts.opportunities, &result.Opportunities},
	} {
		prompt, err := render(step.tmpl, data)
		if err != nil {
			return nil, err
		}
		out, err := a.completer.Complete(ctx, prompt)
		if err != nil {
			return nil, fmt.Errorf("generate %s: %w", step.name, err)
		}
		*step.out = out
	}

	return &result, nil
}

func (a *promptAnalyzer) Answer(ctx context.Context, question string, contexts []string) (string, error) {
	prompt, err := render(a.prompts.answer, struct {
		Context  string
		Question string
		Fallback string
	}{
		Context:  strings.Join(contexts, "\n\n"),
		Question: question,
		Fallback: FallbackAnswer,
	})
	if err != nil {
		return "", err
	}

	answer, err := a.completer.Complete(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("generate answer: %w", err)
	}
	return answer, nil
}
