package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// InlineSummaryLimit is the number of characters of the summary kept on the record.
const InlineSummaryLimit = 500

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrArtifactKeySet    = errors.New("artifact key already set")
	ErrInvalidDocType    = errors.New("invalid document type")
)

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// CanTransitionTo reports whether the state machine allows moving from s to next.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusCompleted || next == StatusFailed
	default:
		return false
	}
}

// PriorStatuses lists the statuses a stored record may hold when it is
// overwritten with status s. Terminal statuses are never overwritten.
func (s Status) PriorStatuses() []Status {
	switch s {
	case StatusPending:
		return []Status{StatusPending}
	case StatusProcessing:
		return []Status{StatusPending, StatusProcessing}
	case StatusCompleted, StatusFailed:
		return []Status{StatusProcessing}
	default:
		return nil
	}
}

func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

type DocumentType string

const (
	DocumentTypeResearchPaper DocumentType = "RESEARCH_PAPER"
	DocumentTypeArticle       DocumentType = "ARTICLE"
	DocumentTypeReport        DocumentType = "REPORT"
	DocumentTypeOther         DocumentType = "OTHER"
)

// ParseDocumentType accepts the enum name case-insensitively. An empty value
// defaults to RESEARCH_PAPER.
func ParseDocumentType(v string) (DocumentType, error) {
	v = strings.ToUpper(strings.TrimSpace(v))
	switch DocumentType(v) {
	case "":
		return DocumentTypeResearchPaper, nil
	case DocumentTypeResearchPaper, DocumentTypeArticle, DocumentTypeReport, DocumentTypeOther:
		return DocumentType(v), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidDocType, v)
}

// ArtifactKind names a derived text artifact stored in the blob store.
type ArtifactKind string

const (
	ArtifactRawText       ArtifactKind = "raw_text"
	ArtifactSummary       ArtifactKind = "summaries"
	ArtifactInsights      ArtifactKind = "insights"
	ArtifactOpportunities ArtifactKind = "opportunities"
)

// ArtifactKinds lists every derived artifact in production order.
var ArtifactKinds = []ArtifactKind{ArtifactRawText, ArtifactSummary, ArtifactInsights, ArtifactOpportunities}

type Document struct {
	ID           string       `json:"id" db:"id"`
	Title        string       `json:"title" db:"title"`
	DocumentType DocumentType `json:"document_type" db:"document_type"`
	Authors      []string     `json:"authors" db:"-"`
	Tags         []string     `json:"tags" db:"-"`
	Status       Status       `json:"status" db:"status"`
	PageCount    int          `json:"page_count,omitempty" db:"page_count"`

	PDFKey           string `json:"pdf_key" db:"pdf_key"`
	RawTextKey       string `json:"raw_text_key,omitempty" db:"raw_text_key"`
	SummaryKey       string `json:"summary_key,omitempty" db:"summary_key"`
	InsightsKey      string `json:"insights_key,omitempty" db:"insights_key"`
	OpportunitiesKey string `json:"opportunities_key,omitempty" db:"opportunities_key"`

	Summary       string `json:"summary,omitempty" db:"summary"`
	ChunksIndexed *int   `json:"chunks_indexed,omitempty" db:"chunks_indexed"`
	Error         string `json:"error,omitempty" db:"error"`

	UploadDate  time.Time  `json:"upload_date" db:"upload_date"`
	ProcessedAt *time.Time `json:"processed_at,omitempty" db:"processed_at"`
	UpdatedAt   time.Time  `json:"-" db:"updated_at"`
}

// Transition moves the document to next, enforcing the status state machine.
func (d *Document) Transition(next Status) error {
	if !d.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, d.Status, next)
	}
	d.Status = next
	return nil
}

// Fail moves the document to FAILED and records reason.
func (d *Document) Fail(reason string) error {
	if err := d.Transition(StatusFailed); err != nil {
		return err
	}
	d.Error = reason
	return nil
}

// Complete moves the document to COMPLETED and stamps processed_at.
func (d *Document) Complete(at time.Time) error {
	if err := d.Transition(StatusCompleted); err != nil {
		return err
	}
	d.ProcessedAt = &at
	return nil
}

// ArtifactKey returns the key recorded for kind, or "" when the stage has not run.
func (d *Document) ArtifactKey(kind ArtifactKind) string {
	if p := d.artifactField(kind); p != nil {
		return *p
	}
	return ""
}

// SetArtifactKey records key for kind. Keys are write-once: setting a
// different key over an existing one fails.
func (d *Document) SetArtifactKey(kind ArtifactKind, key string) error {
	p := d.artifactField(kind)
	if p == nil {
		return fmt.Errorf("unknown artifact kind %q", kind)
	}
	if *p != "" && *p != key {
		return fmt.Errorf("%w: %s", ErrArtifactKeySet, kind)
	}
	*p = key
	return nil
}

func (d *Document) artifactField(kind ArtifactKind) *string {
	switch kind {
	case ArtifactRawText:
		return &d.RawTextKey
	case ArtifactSummary:
		return &d.SummaryKey
	case ArtifactInsights:
		return &d.InsightsKey
	case ArtifactOpportunities:
		return &d.OpportunitiesKey
	}
	return nil
}

// SetInlineSummary keeps at most InlineSummaryLimit characters of summary,
// marking truncation with "...".
func (d *Document) SetInlineSummary(summary string) {
	runes := []rune(summary)
	if len(runes) > InlineSummaryLimit {
		d.Summary = string(runes[:InlineSummaryLimit]) + "..."
		return
	}
	d.Summary = summary
}

func (d *Document) SetChunksIndexed(n int) {
	d.ChunksIndexed = &n
}

type UploadRequest struct {
	File         []byte
	Filename     string
	Title        string
	DocumentType DocumentType
	Authors      []string
	Tags         []string
}

type UploadResponse struct {
	*Document
	FileSize int64 `json:"file_size"`
}

type DocumentContent struct {
	ID            string  `json:"id"`
	RawText       string  `json:"raw_text"`
	Summary       *string `json:"summary"`
	Insights      *string `json:"insights"`
	Opportunities *string `json:"opportunities"`
}

type QuestionRequest struct {
	Question string `json:"question"`
}

type Source struct {
	ChunkID        int    `json:"chunk_id"`
	RelevanceScore string `json:"relevance_score"`
}

type AnswerResponse struct {
	Answer  string   `json:"answer"`
	Context []string `json:"context"`
	Sources []Source `json:"sources"`
}

type PDFLinkResponse struct {
	URL       string `json:"url"`
	ExpiresIn int    `json:"expires_in"`
}

// SummaryResult is the output of the three summarization prompts.
type SummaryResult struct {
	Summary       string
	Insights      string
	Opportunities string
}
