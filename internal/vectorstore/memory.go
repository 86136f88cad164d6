package vectorstore

import (
	"context"
	"math"
	"sort"
	"sync"
)

type memoryIndex struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryIndex returns an in-process index doing brute-force cosine search.
func NewMemoryIndex() Index {
	return &memoryIndex{records: make(map[string]Record)}
}

var _ Index = (*memoryIndex)(nil)

func (m *memoryIndex) Upsert(_ context.Context, records []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range records {
		r.Vector = append([]float32(nil), r.Vector...)
		m.records[r.ID] = r
	}
	return nil
}

func (m *memoryIndex) Query(_ context.Context, documentID string, vector []float32, topK int) ([]Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matches := make([]Match, 0)
	for _, r := range m.records {
		if r.DocumentID != documentID {
			continue
		}
		matches = append(matches, Match{ChunkID: r.ChunkID, Text: r.Text, Score: cosine(vector, r.Vector)})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ChunkID < matches[j].ChunkID
	})

	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (m *memoryIndex) DeleteDocument(_ context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, r := range m.records {
		if r.DocumentID == documentID {
			delete(m.records, id)
		}
	}
	return nil
}

func (m *memoryIndex) Close() error { return nil }

func cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
