package extractor

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	mistralOCRURL   = "https://api.mistral.ai/v1/ocr"
	mistralOCRModel = "mistral-ocr-latest"
)

type mistralExtractor struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

type mistralOCRRequest struct {
	Model    string             `json:"model"`
	Document mistralOCRDocument `json:"document"`
}

type mistralOCRDocument struct {
	Type        string `json:"type"`
	DocumentURL string `json:"document_url"`
}

type mistralOCRResponse struct {
	Pages []struct {
		Index    int    `json:"index"`
		Markdown string `json:"markdown"`
	} `json:"pages"`
}

func NewMistralExtractor(apiKey string, client *http.Client) Extractor {
	return &mistralExtractor{apiKey: apiKey, baseURL: mistralOCRURL, client: client}
}

func (m *mistralExtractor) Extract(ctx context.Context, data []byte) (*Result, error) {
	reqBody := mistralOCRRequest{
		Model: mistralOCRModel,
		Document: mistralOCRDocument{
			Type:        "document_url",
			DocumentURL: "data:application/pdf;base64," + base64.StdEncoding.EncodeToString(data),
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal OCR request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create OCR request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+m.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send OCR request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read OCR response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("OCR API returned status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var ocr mistralOCRResponse
	if err := json.Unmarshal(body, &ocr); err != nil {
		return nil, fmt.Errorf("failed to unmarshal OCR response: %w", err)
	}

	pages := make([]string, 0, len(ocr.Pages))
	for _, p := range ocr.Pages {
		pages = append(pages, p.Markdown)
	}

	return finish(strings.Join(pages, "\n\n"), len(ocr.Pages))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
