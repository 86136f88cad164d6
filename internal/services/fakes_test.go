package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BerylCAtieno/research-paper-api/internal/extractor"
	"github.com/BerylCAtieno/research-paper-api/internal/models"
	"github.com/BerylCAtieno/research-paper-api/internal/repository"
	"github.com/BerylCAtieno/research-paper-api/internal/vectorstore"
	"github.com/BerylCAtieno/research-paper-api/internal/worker"
)

type fakeRepo struct {
	mu      sync.Mutex
	docs    map[string]models.Document
	history map[string][]models.Status
	saveErr func(doc *models.Document) error
	now     time.Time
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{docs: map[string]models.Document{}, history: map[string][]models.Status{}}
}

var _ repository.Repository = (*fakeRepo)(nil)

func (r *fakeRepo) put(doc *models.Document) {
	if !r.now.IsZero() {
		doc.UpdatedAt = r.now
	} else {
		doc.UpdatedAt = time.Now()
	}
	r.docs[doc.ID] = *doc
	h := r.history[doc.ID]
	if len(h) == 0 || h[len(h)-1] != doc.Status {
		r.history[doc.ID] = append(h, doc.Status)
	}
}

func (r *fakeRepo) Create(_ context.Context, doc *models.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		if err := r.saveErr(doc); err != nil {
			return err
		}
	}
	r.put(doc)
	return nil
}

func (r *fakeRepo) GetByID(_ context.Context, id string) (*models.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return nil, nil
	}
	return &doc, nil
}

func (r *fakeRepo) Save(_ context.Context, doc *models.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.docs[doc.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if !slices.Contains(doc.Status.PriorStatuses(), stored.Status) {
		return fmt.Errorf("save %s as %s over %s: %w", doc.ID, doc.Status, stored.Status, repository.ErrConflict)
	}
	if r.saveErr != nil {
		if err := r.saveErr(doc); err != nil {
			return err
		}
	}
	r.put(doc)
	return nil
}

func (r *fakeRepo) List(_ context.Context) ([]*models.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Document
	for _, d := range r.docs {
		d := d
		out = append(out, &d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeRepo) Delete(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.docs[id]
	delete(r.docs, id)
	return ok, nil
}

func (r *fakeRepo) ListByStatus(_ context.Context, status models.Status, before time.Time) ([]*models.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Document
	for _, d := range r.docs {
		if d.Status == status && d.UpdatedAt.Before(before) {
			d := d
			out = append(out, &d)
		}
	}
	return out, nil
}

func (r *fakeRepo) stored(id string) models.Document {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.docs[id]
}

type fakeStorage struct {
	mu           sync.Mutex
	objects      map[string][]byte
	uploadErr    map[string]error
	downloadErr  error
	deleteErr    error
	presignCalls int
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: map[string][]byte{}, uploadErr: map[string]error{}}
}

func (s *fakeStorage) Upload(_ context.Context, key string, data []byte, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for prefix, err := range s.uploadErr {
		if strings.HasPrefix(key, prefix) {
			return err
		}
	}
	s.objects[key] = append([]byte(nil), data...)
	return nil
}

func (s *fakeStorage) Download(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.downloadErr != nil {
		return nil, s.downloadErr
	}
	data, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("no such key %s", key)
	}
	return data, nil
}

func (s *fakeStorage) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

func (s *fakeStorage) DeletePrefix(_ context.Context, prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return s.deleteErr
	}
	for key := range s.objects {
		if strings.HasPrefix(key, prefix) {
			delete(s.objects, key)
		}
	}
	return nil
}

func (s *fakeStorage) PresignedURL(_ context.Context, key string, expiry time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.presignCalls++
	return fmt.Sprintf("https://blobs.example/%s?expires=%d", key, int(expiry.Seconds())), nil
}

func (s *fakeStorage) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok
}

func (s *fakeStorage) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

type fakeExtractor struct {
	text  string
	pages int
	err   error
	block bool
	// during runs inside Extract, while the document is PROCESSING.
	during func()
}

func (e *fakeExtractor) Extract(ctx context.Context, _ []byte) (*extractor.Result, error) {
	if e.during != nil {
		e.during()
	}
	if e.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if e.err != nil {
		return nil, e.err
	}
	return &extractor.Result{Text: e.text, Pages: e.pages}, nil
}

type fakeAnalyzer struct {
	mu           sync.Mutex
	result       models.SummaryResult
	summarizeErr error
	panicMsg     string
	answer       string
	answerCalls  int
	contexts     []string
}

func (a *fakeAnalyzer) Summarize(context.Context, string) (*models.SummaryResult, error) {
	if a.panicMsg != "" {
		panic(a.panicMsg)
	}
	if a.summarizeErr != nil {
		return nil, a.summarizeErr
	}
	r := a.result
	return &r, nil
}

func (a *fakeAnalyzer) Answer(_ context.Context, _ string, contexts []string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.answerCalls++
	a.contexts = contexts
	return a.answer, nil
}

// fakeEmbedder maps text to a 4-dimensional vector of letter-class counts.
type fakeEmbedder struct {
	err error
}

func (e *fakeEmbedder) Dimensions() int { return 4 }

func (e *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return v[0], nil
}

func (e *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, 4)
		for _, r := range t {
			v[int(r)%4]++
		}
		out[i] = v
	}
	return out, nil
}

type failingIndex struct {
	vectorstore.Index
	deleteErr error
}

func (f *failingIndex) DeleteDocument(ctx context.Context, id string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	return f.Index.DeleteDocument(ctx, id)
}

// queueRunner holds submitted tasks until runAll is called.
type queueRunner struct {
	mu    sync.Mutex
	tasks []worker.Task
	err   error
}

func (q *queueRunner) Submit(_ string, task worker.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.tasks = append(q.tasks, task)
	return nil
}

func (q *queueRunner) runAll() {
	for {
		q.mu.Lock()
		if len(q.tasks) == 0 {
			q.mu.Unlock()
			return
		}
		task := q.tasks[0]
		q.tasks = q.tasks[1:]
		q.mu.Unlock()
		task(context.Background())
	}
}

func (q *queueRunner) pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

var errBoom = errors.New("boom")
