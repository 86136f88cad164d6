// Package vectorstore stores chunk embeddings and answers per-document
// similarity queries.
package vectorstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// ExcerptLimit is the number of characters of chunk text kept beside the vector.
const ExcerptLimit = 1000

type Record struct {
	ID         string
	DocumentID string
	ChunkID    int
	Text       string
	Vector     []float32
}

type Match struct {
	ChunkID int
	Text    string
	Score   float32
}

type Index interface {
	Upsert(ctx context.Context, records []Record) error
	// Query returns up to topK chunks of documentID by descending cosine similarity.
	Query(ctx context.Context, documentID string, vector []float32, topK int) ([]Match, error)
	DeleteDocument(ctx context.Context, documentID string) error
	Close() error
}

// PointID derives the stable index key of a chunk. It is a UUID so every
// backend accepts it as a primary key.
func PointID(documentID string, chunkID int) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%s_%d", documentID, chunkID))).String()
}

// NewRecord builds the index entry for one chunk, bounding the stored excerpt.
func NewRecord(documentID string, chunkID int, text string, vector []float32) Record {
	if runes := []rune(text); len(runes) > ExcerptLimit {
		text = string(runes[:ExcerptLimit])
	}
	return Record{
		ID:         PointID(documentID, chunkID),
		DocumentID: documentID,
		ChunkID:    chunkID,
		Text:       text,
		Vector:     vector,
	}
}
