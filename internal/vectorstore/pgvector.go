package vectorstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

type pgvectorIndex struct {
	pool *pgxpool.Pool
}

// NewPGVectorIndex connects to Postgres and prepares the vector extension and
// the document_chunks table.
func NewPGVectorIndex(ctx context.Context, databaseURL string, dim int) (Index, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}

	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS document_chunks (
			id          TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			chunk_id    INTEGER NOT NULL,
			chunk_text  TEXT NOT NULL,
			embedding   vector(%d) NOT NULL
		)`, dim),
		`CREATE INDEX IF NOT EXISTS idx_document_chunks_document ON document_chunks (document_id)`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to prepare pgvector schema: %w", err)
		}
	}

	return &pgvectorIndex{pool: pool}, nil
}

func (p *pgvectorIndex) Upsert(ctx context.Context, records []Record) error {
	batch := &pgx.Batch{}
	for _, r := range records {
		batch.Queue(`
			INSERT INTO document_chunks (id, document_id, chunk_id, chunk_text, embedding)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE SET
				chunk_text = EXCLUDED.chunk_text,
				embedding = EXCLUDED.embedding`,
			r.ID, r.DocumentID, r.ChunkID, r.Text, pgvector.NewVector(r.Vector))
	}

	if err := p.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to upsert chunks: %w", err)
	}
	return nil
}

func (p *pgvectorIndex) Query(ctx context.Context, documentID string, vector []float32, topK int) ([]Match, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT chunk_id, chunk_text, 1 - (embedding <=> $1) AS score
		FROM document_chunks
		WHERE document_id = $2
		ORDER BY embedding <=> $1
		LIMIT $3`,
		pgvector.NewVector(vector), documentID, topK)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		var score float64
		if err := rows.Scan(&m.ChunkID, &m.Text, &score); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		m.Score = float32(score)
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

func (p *pgvectorIndex) DeleteDocument(ctx context.Context, documentID string) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}

func (p *pgvectorIndex) Close() error {
	p.pool.Close()
	return nil
}
