package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/BerylCAtieno/research-paper-api/internal/models"
)

const (
	ContentTypePDF  = "application/pdf"
	ContentTypeText = "text/plain; charset=utf-8"
)

type Storage interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	Download(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	// DeletePrefix removes every object whose key starts with prefix.
	DeletePrefix(ctx context.Context, prefix string) error
	PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

func PDFKey(id string) string {
	return fmt.Sprintf("pdfs/%s.pdf", id)
}

func ArtifactKey(kind models.ArtifactKind, id string) string {
	return fmt.Sprintf("%s/%s.txt", kind, id)
}

// DocumentPrefixes returns the key prefix under each folder that can hold an
// object belonging to the document.
func DocumentPrefixes(id string) []string {
	prefixes := []string{"pdfs/" + id}
	for _, kind := range models.ArtifactKinds {
		prefixes = append(prefixes, fmt.Sprintf("%s/%s", kind, id))
	}
	return prefixes
}
