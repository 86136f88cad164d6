package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/BerylCAtieno/research-paper-api/internal/models"
	"github.com/BerylCAtieno/research-paper-api/internal/storage"
	"github.com/BerylCAtieno/research-paper-api/internal/utils"
)

type DocumentService interface {
	UploadDocument(ctx context.Context, req *models.UploadRequest) (*models.UploadResponse, error)
	ListDocuments(ctx context.Context) ([]*models.Document, error)
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	GetDocumentContent(ctx context.Context, id string) (*models.DocumentContent, error)
	GetPDFURL(ctx context.Context, id string) (*models.PDFLinkResponse, error)
	DeleteDocument(ctx context.Context, id string) error
	AskQuestion(ctx context.Context, id, question string) (*models.AnswerResponse, error)
}

type documentService struct {
	deps     Dependencies
	pipeline *Pipeline
	topK     int
	timeout  time.Duration
	logger   *utils.Logger
	now      func() time.Time
}

func NewDocumentService(deps Dependencies, pipeline *Pipeline, opts Options, logger *utils.Logger) DocumentService {
	topK := opts.QATopK
	if topK <= 0 {
		topK = defaultTopK
	}
	return &documentService{
		deps:     deps,
		pipeline: pipeline,
		topK:     topK,
		timeout:  opts.StageTimeout,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *documentService) UploadDocument(ctx context.Context, req *models.UploadRequest) (*models.UploadResponse, error) {
	if !strings.EqualFold(filepath.Ext(req.Filename), ".pdf") {
		return nil, utils.NewBadRequestError("Only PDF files are allowed")
	}
	if len(req.File) == 0 {
		return nil, utils.NewBadRequestError("Uploaded file is empty")
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = TitleFromFilename(req.Filename)
	}
	docType := req.DocumentType
	if docType == "" {
		docType = models.DocumentTypeResearchPaper
	}

	docID := utils.GenerateID()
	pdfKey := storage.PDFKey(docID)

	if err := s.deps.Storage.Upload(ctx, pdfKey, req.File, storage.ContentTypePDF); err != nil {
		s.logger.Error("Failed to upload PDF", "error", err, "key", pdfKey)
		return nil, utils.NewInternalError("Failed to store document")
	}

	doc := &models.Document{
		ID:           docID,
		Title:        title,
		DocumentType: docType,
		Authors:      nonNil(req.Authors),
		Tags:         nonNil(req.Tags),
		Status:       models.StatusPending,
		PDFKey:       pdfKey,
		UploadDate:   s.now().UTC(),
	}

	if err := s.deps.Repo.Create(ctx, doc); err != nil {
		s.logger.Error("Failed to save document metadata", "error", err, "id", docID)
		if err := s.deps.Storage.Delete(ctx, pdfKey); err != nil {
			s.logger.Error("Failed to remove orphaned PDF", "error", err, "key", pdfKey)
		}
		return nil, utils.NewInternalError("Failed to save document metadata")
	}

	if err := s.pipeline.Schedule(docID); err != nil {
		// The record stays PENDING and the sweeper resubmits it.
		s.logger.Error("Failed to schedule processing", "error", err, "id", docID)
	}

	s.logger.Info("Document uploaded",
		"id", docID,
		"filename", req.Filename,
		"file_size", len(req.File))

	return &models.UploadResponse{
		Document: doc,
		FileSize: int64(len(req.File)),
	}, nil
}

func (s *documentService) ListDocuments(ctx context.Context) ([]*models.Document, error) {
	docs, err := s.deps.Repo.List(ctx)
	if err != nil {
		s.logger.Error("Failed to list documents", "error", err)
		return nil, utils.NewInternalError("Failed to list documents")
	}
	return docs, nil
}

func (s *documentService) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	doc, err := s.deps.Repo.GetByID(ctx, id)
	if err != nil {
		s.logger.Error("Failed to get document", "error", err, "id", id)
		return nil, utils.NewInternalError("Failed to retrieve document")
	}
	if doc == nil {
		return nil, utils.NewNotFoundError("Document not found")
	}

	return doc, nil
}

// getCompleted loads id and requires it to have finished processing.
func (s *documentService) getCompleted(ctx context.Context, id string) (*models.Document, error) {
	doc, err := s.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.Status != models.StatusCompleted {
		return nil, utils.NewPreconditionFailedError(fmt.Sprintf("Document is not ready. Current status: %s", doc.Status))
	}
	return doc, nil
}

func (s *documentService) GetDocumentContent(ctx context.Context, id string) (*models.DocumentContent, error) {
	doc, err := s.getCompleted(ctx, id)
	if err != nil {
		return nil, err
	}

	if doc.RawTextKey == "" {
		s.logger.Error("Completed document has no raw text", "id", id)
		return nil, utils.NewInternalError("Document content is unavailable")
	}

	content := &models.DocumentContent{ID: doc.ID}

	raw, err := s.deps.Storage.Download(ctx, doc.RawTextKey)
	if err != nil {
		s.logger.Error("Failed to download raw text", "error", err, "id", id)
		return nil, utils.NewInternalError("Failed to retrieve document content")
	}
	content.RawText = string(raw)

	for _, a := range []struct {
		key string
		dst **string
	}{
		{doc.SummaryKey, &content.Summary},
		{doc.InsightsKey, &content.Insights},
		{doc.OpportunitiesKey, &content.Opportunities},
	} {
		if a.key == "" {
			continue
		}
		data, err := s.deps.Storage.Download(ctx, a.key)
		if err != nil {
			s.logger.Error("Failed to download artifact", "error", err, "key", a.key)
			return nil, utils.NewInternalError("Failed to retrieve document content")
		}
		text := string(data)
		*a.dst = &text
	}

	return content, nil
}

func (s *documentService) GetPDFURL(ctx context.Context, id string) (*models.PDFLinkResponse, error) {
	doc, err := s.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}

	url, err := s.deps.Storage.PresignedURL(ctx, doc.PDFKey, pdfLinkExpiry)
	if err != nil {
		s.logger.Error("Failed to presign PDF", "error", err, "id", id)
		return nil, utils.NewInternalError("Failed to generate PDF link")
	}

	return &models.PDFLinkResponse{URL: url, ExpiresIn: int(pdfLinkExpiry.Seconds())}, nil
}

// DeleteDocument removes the vector entries, the record and every blob of the
// document. Each step is attempted even when an earlier one fails.
func (s *documentService) DeleteDocument(ctx context.Context, id string) error {
	if _, err := s.GetDocument(ctx, id); err != nil {
		return err
	}

	var failed []string
	var errs []error

	if err := s.deps.Index.DeleteDocument(ctx, id); err != nil {
		failed = append(failed, "vector index")
		errs = append(errs, err)
	}

	if _, err := s.deps.Repo.Delete(ctx, id); err != nil {
		failed = append(failed, "metadata record")
		errs = append(errs, err)
	}

	blobFailed := false
	for _, prefix := range storage.DocumentPrefixes(id) {
		if err := s.deps.Storage.DeletePrefix(ctx, prefix); err != nil {
			blobFailed = true
			errs = append(errs, err)
		}
	}
	if blobFailed {
		failed = append(failed, "blob storage")
	}

	if len(errs) > 0 {
		err := errors.Join(errs...)
		s.logger.Error("Document partially deleted", "id", id, "failed", failed, "error", err)
		return utils.WrapInternalError(fmt.Sprintf("Failed to delete document from %s", strings.Join(failed, ", ")), err)
	}

	s.logger.Info("Document deleted", "id", id)
	return nil
}

// TitleFromFilename turns "my_paper.pdf" into "My Paper".
func TitleFromFilename(filename string) string {
	name := filepath.Base(filename)
	if ext := filepath.Ext(name); strings.EqualFold(ext, ".pdf") {
		name = name[:len(name)-len(ext)]
	}
	name = strings.TrimSpace(strings.ReplaceAll(name, "_", " "))
	if name == "" {
		return "Untitled"
	}
	return cases.Title(language.Und).String(name)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
