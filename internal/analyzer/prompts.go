package analyzer

import (
	"bytes"
	"fmt"
	"os"
	"text/template"

	"gopkg.in/yaml.v3"
)

// Prompts holds the text/template sources for every model call. Summary,
// Insights and Opportunities receive {{.Text}}; Answer receives {{.Context}}
// and {{.Question}}.
type Prompts struct {
	Summary       string `yaml:"summary"`
	Insights      string `yaml:"insights"`
	Opportunities string `yaml:"opportunities"`
	Answer        string `yaml:"answer"`
}

func DefaultPrompts() Prompts {
	return Prompts{
		Summary: `You are an expert in summarizing academic research papers.
Create a concise but comprehensive summary of the following research paper.
Focus on the main contributions, methodologies, and results.
{{.Text}}
Summary:`,
		Insights: `Analyze the following research paper and identify:
1. Key innovations or breakthroughs
2. Technical limitations or challenges
3. Potential applications in industry
Provide a structured analysis highlighting these aspects.
{{.Text}}
Analysis:`,
		Opportunities: `Based on the following research paper, identify:
1. Future research directions
2. Potential commercial applications
3. Technological gaps that could be addressed
Be specific and practical in your assessment.
{{.Text}}
Opportunities:`,
		Answer: `You are an AI assistant helping to answer questions about research papers.
Use the following context to answer the question. If you don't know the answer
based on the context, say "{{.Fallback}}"
Context:
{{.Context}}
Question: {{.Question}}
Answer:`,
	}
}

// LoadPrompts returns the defaults with any non-empty field from the YAML
// file at path layered on top. An empty path yields the defaults.
func LoadPrompts(path string) (Prompts, error) {
	prompts := DefaultPrompts()
	if path == "" {
		return prompts, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return prompts, fmt.Errorf("read prompts file: %w", err)
	}

	var override Prompts
	if err := yaml.Unmarshal(data, &override); err != nil {
		return prompts, fmt.Errorf("parse prompts file: %w", err)
	}

	if override.Summary != "" {
		prompts.Summary = override.Summary
	}
	if override.Insights != "" {
		prompts.Insights = override.Insights
	}
	if override.Opportunities != "" {
		prompts.Opportunities = override.Opportunities
	}
	if override.Answer != "" {
		prompts.Answer = override.Answer
	}

	return prompts, nil
}

type compiledPrompts struct {
	summary, insights, opportunities, answer *template.Template
}

func (p Prompts) compile() (*compiledPrompts, error) {
	var c compiledPrompts
	for _, t := range []struct {
		name string
		src  string
		dst  **template.Template
	}{
		{"summary", p.Summary, &c.summary},
		{"insights", p.Insights, &c.insights},
		{"opportunities", p.Opportunities, &c.opportunities},
		{"answer", p.Answer, &c.answer},
	} {
		tmpl, err := template.New(t.name).Option("missingkey=error").Parse(t.src)
		if err != nil {
			return nil, fmt.Errorf("parse %s prompt: %w", t.name, err)
		}
		*t.dst = tmpl
	}
	return &c, nil
}

func render(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}
