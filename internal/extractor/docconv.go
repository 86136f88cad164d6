package extractor

import (
	"bytes"
	"context"
	"fmt"
	"strconv"

	"code.sajari.com/docconv/v2"
)

// docconvExtractor shells out to poppler through docconv.
type docconvExtractor struct{}

func NewDocconvExtractor() Extractor {
	return docconvExtractor{}
}

func (docconvExtractor) Extract(ctx context.Context, data []byte) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resp, err := docconv.Convert(bytes.NewReader(data), "application/pdf", false)
	if err != nil {
		return nil, fmt.Errorf("failed to convert PDF: %w", err)
	}

	pages, _ := strconv.Atoi(resp.Meta["Pages"])
	return finish(resp.Body, pages)
}
