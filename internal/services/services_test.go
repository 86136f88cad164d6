package services

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BerylCAtieno/research-paper-api/internal/analyzer"
	"github.com/BerylCAtieno/research-paper-api/internal/chunker"
	"github.com/BerylCAtieno/research-paper-api/internal/models"
	"github.com/BerylCAtieno/research-paper-api/internal/storage"
	"github.com/BerylCAtieno/research-paper-api/internal/utils"
	"github.com/BerylCAtieno/research-paper-api/internal/vectorstore"
	"github.com/BerylCAtieno/research-paper-api/internal/worker"
)

type harness struct {
	repo      *fakeRepo
	storage   *fakeStorage
	extractor *fakeExtractor
	analyzer  *fakeAnalyzer
	embedder  *fakeEmbedder
	index     *failingIndex
	runner    *queueRunner
	deps      Dependencies
	pipeline  *Pipeline
	service   DocumentService
}

func paperText() string {
	var b strings.Builder
	for i := 0; i < 40; i++ {
		b.WriteString("Transformers replace recurrence with attention. ")
		b.WriteString("Results improve translation quality on standard benchmarks.\n\n")
	}
	return b.String()
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()

	h := &harness{
		repo:      newFakeRepo(),
		storage:   newFakeStorage(),
		extractor: &fakeExtractor{text: paperText(), pages: 3},
		analyzer: &fakeAnalyzer{
			result: models.SummaryResult{
				Summary:       strings.Repeat("s", 900),
				Insights:      "insights",
				Opportunities: "opportunities",
			},
			answer: "Attention.",
		},
		embedder: &fakeEmbedder{},
		index:    &failingIndex{Index: vectorstore.NewMemoryIndex()},
		runner:   &queueRunner{},
	}

	h.deps = Dependencies{
		Repo:      h.repo,
		Storage:   h.storage,
		Extractor: h.extractor,
		Analyzer:  h.analyzer,
		Embedder:  h.embedder,
		Index:     h.index,
		Chunker:   chunker.New(chunker.WithChunkSize(300), chunker.WithOverlap(50)),
		Runner:    h.runner,
	}
	logger := utils.NewNopLogger()
	h.pipeline = NewPipeline(h.deps, opts, logger)
	h.service = NewDocumentService(h.deps, h.pipeline, opts, logger)
	return h
}

func (h *harness) upload(t *testing.T, filename string) *models.UploadResponse {
	t.Helper()
	resp, err := h.service.UploadDocument(context.Background(), &models.UploadRequest{
		File:     []byte("%PDF-1.4 fake"),
		Filename: filename,
	})
	require.NoError(t, err)
	return resp
}

func requireAppError(t *testing.T, err error, status int) *utils.AppError {
	t.Helper()
	var appErr *utils.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %v", err)
	assert.Equal(t, status, appErr.StatusCode)
	return appErr
}

func TestUploadThenProcessCompletes(t *testing.T) {
	h := newHarness(t, Options{})
	resp := h.upload(t, "my_paper.pdf")
	id := resp.ID

	assert.Equal(t, models.StatusPending, resp.Status)
	assert.Equal(t, "My Paper", resp.Title)
	assert.Equal(t, models.DocumentTypeResearchPaper, resp.DocumentType)
	assert.Equal(t, int64(len("%PDF-1.4 fake")), resp.FileSize)
	assert.Equal(t, []string{}, resp.Tags)
	assert.True(t, h.storage.has(storage.PDFKey(id)))
	assert.Equal(t, models.StatusPending, h.repo.stored(id).Status)
	assert.Equal(t, 1, h.runner.pending())

	h.runner.runAll()

	doc := h.repo.stored(id)
	assert.Equal(t, models.StatusCompleted, doc.Status)
	assert.Empty(t, doc.Error)
	assert.Equal(t, storage.ArtifactKey(models.ArtifactRawText, id), doc.RawTextKey)
	assert.Equal(t, storage.ArtifactKey(models.ArtifactSummary, id), doc.SummaryKey)
	assert.Equal(t, storage.ArtifactKey(models.ArtifactInsights, id), doc.InsightsKey)
	assert.Equal(t, storage.ArtifactKey(models.ArtifactOpportunities, id), doc.OpportunitiesKey)
	assert.LessOrEqual(t, len([]rune(doc.Summary)), 503)
	assert.True(t, strings.HasSuffix(doc.Summary, "..."))
	assert.Equal(t, 3, doc.PageCount)
	require.NotNil(t, doc.ProcessedAt)
	require.NotNil(t, doc.ChunksIndexed)
	assert.Greater(t, *doc.ChunksIndexed, 1)
	assert.False(t, h.pipeline.InFlight(id))

	assert.Equal(t, []models.Status{models.StatusPending, models.StatusProcessing, models.StatusCompleted}, h.repo.history[id])

	matches, err := h.index.Query(context.Background(), id, []float32{1, 1, 1, 1}, 1000)
	require.NoError(t, err)
	assert.Len(t, matches, *doc.ChunksIndexed)
}

func TestUploadUsesGivenMetadata(t *testing.T) {
	h := newHarness(t, Options{})
	resp, err := h.service.UploadDocument(context.Background(), &models.UploadRequest{
		File:         []byte("%PDF"),
		Filename:     "x.PDF",
		Title:        "  Custom Title ",
		DocumentType: models.DocumentTypeReport,
		Tags:         []string{"a"},
	})
	require.NoError(t, err)

	assert.Equal(t, "Custom Title", resp.Title)
	assert.Equal(t, models.DocumentTypeReport, resp.DocumentType)
	assert.Equal(t, []string{"a"}, resp.Tags)
}

func TestUploadValidation(t *testing.T) {
	h := newHarness(t, Options{})

	_, err := h.service.UploadDocument(context.Background(), &models.UploadRequest{File: []byte("x"), Filename: "notes.docx"})
	requireAppError(t, err, http.StatusBadRequest)

	_, err = h.service.UploadDocument(context.Background(), &models.UploadRequest{File: nil, Filename: "empty.pdf"})
	requireAppError(t, err, http.StatusBadRequest)

	assert.Equal(t, 0, h.storage.count())
	assert.Equal(t, 0, h.runner.pending())
}

func TestUploadRemovesBlobWhenRecordFails(t *testing.T) {
	h := newHarness(t, Options{})
	h.repo.saveErr = func(*models.Document) error { return errBoom }

	_, err := h.service.UploadDocument(context.Background(), &models.UploadRequest{File: []byte("x"), Filename: "a.pdf"})
	requireAppError(t, err, http.StatusInternalServerError)
	assert.Equal(t, 0, h.storage.count())
	assert.Equal(t, 0, h.runner.pending())
}

func TestUploadStorageFailureCreatesNoRecord(t *testing.T) {
	h := newHarness(t, Options{})
	h.storage.uploadErr["pdfs/"] = errBoom

	_, err := h.service.UploadDocument(context.Background(), &models.UploadRequest{File: []byte("x"), Filename: "a.pdf"})
	requireAppError(t, err, http.StatusInternalServerError)

	docs, err := h.service.ListDocuments(context.Background())
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestExtractionFailureMarksFailed(t *testing.T) {
	h := newHarness(t, Options{})
	h.extractor.err = errors.New("ocr unavailable")
	id := h.upload(t, "a.pdf").ID

	h.runner.runAll()

	doc := h.repo.stored(id)
	assert.Equal(t, models.StatusFailed, doc.Status)
	assert.Contains(t, doc.Error, "ocr unavailable")
	assert.Empty(t, doc.RawTextKey)
	assert.Nil(t, doc.ProcessedAt)
	assert.Equal(t, []models.Status{models.StatusPending, models.StatusProcessing, models.StatusFailed}, h.repo.history[id])
}

func TestEmptyExtractionMarksFailed(t *testing.T) {
	h := newHarness(t, Options{})
	h.extractor.text = "  \n "
	id := h.upload(t, "a.pdf").ID

	h.runner.runAll()

	doc := h.repo.stored(id)
	assert.Equal(t, models.StatusFailed, doc.Status)
	assert.Contains(t, doc.Error, "no text")
}

func TestFetchFailureMarksFailed(t *testing.T) {
	h := newHarness(t, Options{})
	h.storage.downloadErr = errBoom
	id := h.upload(t, "a.pdf").ID

	h.runner.runAll()

	doc := h.repo.stored(id)
	assert.Equal(t, models.StatusFailed, doc.Status)
	assert.Contains(t, doc.Error, "failed to fetch PDF")
}

func TestSummarizationFailureKeepsEarlierArtifacts(t *testing.T) {
	h := newHarness(t, Options{})
	h.analyzer.summarizeErr = errors.New("model overloaded")
	id := h.upload(t, "a.pdf").ID

	h.runner.runAll()

	doc := h.repo.stored(id)
	assert.Equal(t, models.StatusFailed, doc.Status)
	assert.Contains(t, doc.Error, "model overloaded")
	assert.NotEmpty(t, doc.RawTextKey)
	assert.Empty(t, doc.SummaryKey)
	assert.Nil(t, doc.ChunksIndexed)
}

func TestArtifactUploadFailureKeepsWrittenKeys(t *testing.T) {
	h := newHarness(t, Options{})
	h.storage.uploadErr["insights/"] = errBoom
	id := h.upload(t, "a.pdf").ID

	h.runner.runAll()

	doc := h.repo.stored(id)
	assert.Equal(t, models.StatusFailed, doc.Status)
	assert.NotEmpty(t, doc.SummaryKey)
	assert.Empty(t, doc.InsightsKey)
	assert.Empty(t, doc.OpportunitiesKey)
}

func TestEmbeddingFailureMarksFailed(t *testing.T) {
	h := newHarness(t, Options{})
	h.embedder.err = errors.New("quota exceeded")
	id := h.upload(t, "a.pdf").ID

	h.runner.runAll()

	doc := h.repo.stored(id)
	assert.Equal(t, models.StatusFailed, doc.Status)
	assert.Contains(t, doc.Error, "indexing failed")
	assert.NotEmpty(t, doc.OpportunitiesKey)
}

func TestPanicMarksFailed(t *testing.T) {
	h := newHarness(t, Options{})
	h.analyzer.panicMsg = "nil map"
	id := h.upload(t, "a.pdf").ID

	h.runner.runAll()

	doc := h.repo.stored(id)
	assert.Equal(t, models.StatusFailed, doc.Status)
	assert.Contains(t, doc.Error, "nil map")
}

func TestStageTimeoutMarksFailed(t *testing.T) {
	h := newHarness(t, Options{StageTimeout: 10 * time.Millisecond})
	h.extractor.block = true
	id := h.upload(t, "a.pdf").ID

	h.runner.runAll()

	doc := h.repo.stored(id)
	assert.Equal(t, models.StatusFailed, doc.Status)
	assert.Contains(t, doc.Error, context.DeadlineExceeded.Error())
}

func TestFailedWriteLeavesProcessingForSweeper(t *testing.T) {
	h := newHarness(t, Options{})
	h.extractor.err = errBoom
	id := h.upload(t, "a.pdf").ID

	h.repo.saveErr = func(doc *models.Document) error {
		if doc.Status == models.StatusFailed {
			return errors.New("record store down")
		}
		return nil
	}
	h.runner.runAll()
	assert.Equal(t, models.StatusProcessing, h.repo.stored(id).Status)

	h.repo.saveErr = nil
	sweeper := NewSweeper(h.repo, h.pipeline, time.Hour, utils.NewNopLogger())
	sweeper.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	res, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)

	doc := h.repo.stored(id)
	assert.Equal(t, models.StatusFailed, doc.Status)
	assert.Equal(t, StalledReason, doc.Error)
}

func TestSweeperResubmitsStalePending(t *testing.T) {
	h := newHarness(t, Options{})
	h.runner.err = errors.New("pool closed")
	id := h.upload(t, "a.pdf").ID
	assert.Equal(t, 0, h.runner.pending())
	assert.False(t, h.pipeline.InFlight(id))

	h.runner.err = nil
	sweeper := NewSweeper(h.repo, h.pipeline, time.Hour, utils.NewNopLogger())

	res, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Resubmitted, "fresh documents are left alone")

	sweeper.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	res, err = sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Resubmitted)
	assert.True(t, h.pipeline.InFlight(id))

	res, err = sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Resubmitted, "in-flight documents are not resubmitted")

	h.runner.runAll()
	assert.Equal(t, models.StatusCompleted, h.repo.stored(id).Status)
}

func TestSweepDuringProcessingStaysFailed(t *testing.T) {
	h := newHarness(t, Options{})
	swept := 0
	h.extractor.during = func() {
		// A sweep from another process has no view of this one's in-flight set.
		sweeper := NewSweeper(h.repo, nil, 0, utils.NewNopLogger())
		n, err := sweeper.FailStalled(context.Background(), time.Now().Add(time.Hour))
		require.NoError(t, err)
		swept += n
	}
	id := h.upload(t, "a.pdf").ID

	h.runner.runAll()

	assert.Equal(t, 1, swept)
	doc := h.repo.stored(id)
	assert.Equal(t, models.StatusFailed, doc.Status)
	assert.Equal(t, StalledReason, doc.Error)
	assert.Empty(t, doc.RawTextKey)
	assert.Nil(t, doc.ChunksIndexed)
	assert.Equal(t, []models.Status{models.StatusPending, models.StatusProcessing, models.StatusFailed}, h.repo.history[id])

	matches, err := h.index.Query(context.Background(), id, []float32{1, 1, 1, 1}, 100)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestDeleteMidProcessingAbandonsRun(t *testing.T) {
	h := newHarness(t, Options{})
	var id string
	h.extractor.during = func() {
		require.NoError(t, h.service.DeleteDocument(context.Background(), id))
	}
	id = h.upload(t, "a.pdf").ID

	h.runner.runAll()

	doc, err := h.repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Nil(t, doc)
	assert.Equal(t, []models.Status{models.StatusPending, models.StatusProcessing}, h.repo.history[id])
}

func TestShutdownLeavesDocumentProcessing(t *testing.T) {
	h := newHarness(t, Options{})
	h.extractor.block = true

	pool := worker.NewPool(1, utils.NewNopLogger())
	deps := h.deps
	deps.Runner = pool
	h.pipeline = NewPipeline(deps, Options{}, utils.NewNopLogger())
	h.service = NewDocumentService(deps, h.pipeline, Options{}, utils.NewNopLogger())

	id := h.upload(t, "a.pdf").ID
	require.Eventually(t, func() bool {
		return h.repo.stored(id).Status == models.StatusProcessing
	}, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, pool.Shutdown(ctx), context.DeadlineExceeded)

	doc := h.repo.stored(id)
	assert.Equal(t, models.StatusProcessing, doc.Status)
	assert.Empty(t, doc.Error)
	assert.Equal(t, []models.Status{models.StatusPending, models.StatusProcessing}, h.repo.history[id])

	sweeper := NewSweeper(h.repo, nil, time.Hour, utils.NewNopLogger())
	sweeper.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	res, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, models.StatusFailed, h.repo.stored(id).Status)
}

func TestProcessDocumentIgnoresMissingAndNonPending(t *testing.T) {
	h := newHarness(t, Options{})
	h.pipeline.ProcessDocument(context.Background(), "missing")

	id := h.upload(t, "a.pdf").ID
	h.runner.runAll()
	require.Equal(t, models.StatusCompleted, h.repo.stored(id).Status)

	h.pipeline.ProcessDocument(context.Background(), id)
	assert.Equal(t, models.StatusCompleted, h.repo.stored(id).Status)
	assert.Equal(t, []models.Status{models.StatusPending, models.StatusProcessing, models.StatusCompleted}, h.repo.history[id])
}

func TestGetAndList(t *testing.T) {
	h := newHarness(t, Options{})
	id := h.upload(t, "a.pdf").ID

	doc, err := h.service.GetDocument(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, doc.ID)

	_, err = h.service.GetDocument(context.Background(), "missing")
	requireAppError(t, err, http.StatusNotFound)

	docs, err := h.service.ListDocuments(context.Background())
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestGetContentRequiresCompleted(t *testing.T) {
	h := newHarness(t, Options{})
	id := h.upload(t, "a.pdf").ID

	_, err := h.service.GetDocumentContent(context.Background(), id)
	appErr := requireAppError(t, err, http.StatusPreconditionFailed)
	assert.Contains(t, appErr.Message, "PENDING")

	h.runner.runAll()

	content, err := h.service.GetDocumentContent(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, content.ID)
	assert.Contains(t, content.RawText, "Transformers")
	require.NotNil(t, content.Summary)
	assert.Len(t, *content.Summary, 900)
	require.NotNil(t, content.Insights)
	assert.Equal(t, "insights", *content.Insights)
	require.NotNil(t, content.Opportunities)
	assert.Equal(t, "opportunities", *content.Opportunities)

	_, err = h.service.GetDocumentContent(context.Background(), "missing")
	requireAppError(t, err, http.StatusNotFound)
}

func TestGetPDFURL(t *testing.T) {
	h := newHarness(t, Options{})
	id := h.upload(t, "a.pdf").ID

	link, err := h.service.GetPDFURL(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 3600, link.ExpiresIn)
	assert.Contains(t, link.URL, storage.PDFKey(id))

	_, err = h.service.GetPDFURL(context.Background(), "missing")
	requireAppError(t, err, http.StatusNotFound)
}

func TestAskQuestion(t *testing.T) {
	h := newHarness(t, Options{QATopK: 2})
	id := h.upload(t, "a.pdf").ID
	h.runner.runAll()

	resp, err := h.service.AskQuestion(context.Background(), id, "What replaces recurrence?")
	require.NoError(t, err)

	assert.Equal(t, "Attention.", resp.Answer)
	assert.Len(t, resp.Context, 2)
	require.Len(t, resp.Sources, 2)
	for _, src := range resp.Sources {
		assert.Regexp(t, `^-?\d+\.\d{2}$`, src.RelevanceScore)
	}
	assert.Equal(t, 1, h.analyzer.answerCalls)
	assert.Equal(t, resp.Context, h.analyzer.contexts)
}

func TestAskQuestionBeforeCompletion(t *testing.T) {
	h := newHarness(t, Options{})
	id := h.upload(t, "a.pdf").ID

	_, err := h.service.AskQuestion(context.Background(), id, "Anything?")
	appErr := requireAppError(t, err, http.StatusPreconditionFailed)
	assert.Contains(t, appErr.Message, "PENDING")
	assert.Equal(t, 0, h.analyzer.answerCalls)

	h.extractor.err = errBoom
	h.runner.runAll()

	_, err = h.service.AskQuestion(context.Background(), id, "Anything?")
	appErr = requireAppError(t, err, http.StatusPreconditionFailed)
	assert.Contains(t, appErr.Message, "FAILED")
}

func TestAskQuestionWithoutMatchesUsesFallback(t *testing.T) {
	h := newHarness(t, Options{})
	id := h.upload(t, "a.pdf").ID
	h.runner.runAll()
	require.NoError(t, h.index.Index.DeleteDocument(context.Background(), id))

	resp, err := h.service.AskQuestion(context.Background(), id, "Anything?")
	require.NoError(t, err)

	assert.Equal(t, analyzer.FallbackAnswer, resp.Answer)
	assert.NotNil(t, resp.Context)
	assert.Empty(t, resp.Context)
	assert.NotNil(t, resp.Sources)
	assert.Empty(t, resp.Sources)
	assert.Equal(t, 0, h.analyzer.answerCalls)
}

func TestAskQuestionValidation(t *testing.T) {
	h := newHarness(t, Options{})

	_, err := h.service.AskQuestion(context.Background(), "missing", "  ")
	requireAppError(t, err, http.StatusNotFound)

	_, err = h.service.AskQuestion(context.Background(), "missing", "Why?")
	requireAppError(t, err, http.StatusNotFound)

	id := h.upload(t, "a.pdf").ID
	_, err = h.service.AskQuestion(context.Background(), id, "  ")
	requireAppError(t, err, http.StatusPreconditionFailed)

	h.runner.runAll()
	_, err = h.service.AskQuestion(context.Background(), id, "  ")
	requireAppError(t, err, http.StatusBadRequest)
	assert.Equal(t, 0, h.analyzer.answerCalls)
}

func TestDeleteDocument(t *testing.T) {
	h := newHarness(t, Options{})
	id := h.upload(t, "a.pdf").ID
	other := h.upload(t, "b.pdf").ID
	h.runner.runAll()
	require.Greater(t, h.storage.count(), 5)

	require.NoError(t, h.service.DeleteDocument(context.Background(), id))

	_, err := h.service.GetDocument(context.Background(), id)
	requireAppError(t, err, http.StatusNotFound)
	for _, kind := range models.ArtifactKinds {
		assert.False(t, h.storage.has(storage.ArtifactKey(kind, id)))
		assert.True(t, h.storage.has(storage.ArtifactKey(kind, other)))
	}
	assert.False(t, h.storage.has(storage.PDFKey(id)))

	matches, err := h.index.Query(context.Background(), id, []float32{1, 1, 1, 1}, 100)
	require.NoError(t, err)
	assert.Empty(t, matches)
	matches, err = h.index.Query(context.Background(), other, []float32{1, 1, 1, 1}, 100)
	require.NoError(t, err)
	assert.NotEmpty(t, matches)
}

func TestDeleteMissingIsNotFound(t *testing.T) {
	h := newHarness(t, Options{})
	err := h.service.DeleteDocument(context.Background(), "missing")
	requireAppError(t, err, http.StatusNotFound)
}

func TestDeletePartialFailureIsReported(t *testing.T) {
	h := newHarness(t, Options{})
	id := h.upload(t, "a.pdf").ID
	h.runner.runAll()

	h.index.deleteErr = errors.New("index unavailable")
	h.storage.deleteErr = errors.New("bucket unavailable")

	err := h.service.DeleteDocument(context.Background(), id)
	appErr := requireAppError(t, err, http.StatusInternalServerError)
	assert.Contains(t, appErr.Message, "vector index")
	assert.Contains(t, appErr.Message, "blob storage")
	assert.NotContains(t, appErr.Message, "metadata record")

	// The record deletion is still attempted.
	doc, err := h.repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestDeleteDuringProcessingDoesNotResurrect(t *testing.T) {
	h := newHarness(t, Options{})
	id := h.upload(t, "a.pdf").ID

	require.NoError(t, h.service.DeleteDocument(context.Background(), id))
	h.runner.runAll()

	doc, err := h.repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestTitleFromFilename(t *testing.T) {
	cases := map[string]string{
		"my_paper.pdf":             "My Paper",
		"MY_PAPER.PDF":             "My Paper",
		"deep_learning_review.pdf": "Deep Learning Review",
		"dir/nested_name.pdf":      "Nested Name",
		".pdf":                     "Untitled",
	}
	for in, want := range cases {
		assert.Equal(t, want, TitleFromFilename(in), in)
	}
}
