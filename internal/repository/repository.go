package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/BerylCAtieno/research-paper-api/internal/models"
)

// timeLayout is ISO-8601 in UTC with fixed precision so stored values sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

var (
	// ErrNotFound is returned by Save when the record no longer exists.
	ErrNotFound = errors.New("document not found")
	// ErrConflict is returned by Save when the stored status does not allow
	// the write, for example after another process marked the record FAILED.
	ErrConflict = errors.New("document status changed concurrently")
)

type Repository interface {
	Create(ctx context.Context, doc *models.Document) error
	// GetByID returns nil, nil when no record exists.
	GetByID(ctx context.Context, id string) (*models.Document, error)
	// Save replaces an existing record whose stored status is one of
	// doc.Status.PriorStatuses(). It never recreates a deleted record and never
	// overwrites a terminal one.
	Save(ctx context.Context, doc *models.Document) error
	List(ctx context.Context) ([]*models.Document, error)
	// Delete reports whether a record existed.
	Delete(ctx context.Context, id string) (bool, error)
	ListByStatus(ctx context.Context, status models.Status, updatedBefore time.Time) ([]*models.Document, error)
}

type repository struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db, now: time.Now}
}

type documentRow struct {
	ID               string         `db:"id"`
	Title            string         `db:"title"`
	DocumentType     string         `db:"document_type"`
	Authors          string         `db:"authors"`
	Tags             string         `db:"tags"`
	Status           string         `db:"status"`
	PageCount        int            `db:"page_count"`
	PDFKey           string         `db:"pdf_key"`
	RawTextKey       sql.NullString `db:"raw_text_key"`
	SummaryKey       sql.NullString `db:"summary_key"`
	InsightsKey      sql.NullString `db:"insights_key"`
	OpportunitiesKey sql.NullString `db:"opportunities_key"`
	Summary          sql.NullString `db:"summary"`
	ChunksIndexed    sql.NullInt64  `db:"chunks_indexed"`
	Error            sql.NullString `db:"error"`
	UploadDate       string         `db:"upload_date"`
	ProcessedAt      sql.NullString `db:"processed_at"`
	UpdatedAt        string         `db:"updated_at"`
}

const columns = `id, title, document_type, authors, tags, status, page_count, pdf_key,
	raw_text_key, summary_key, insights_key, opportunities_key, summary, chunks_indexed,
	error, upload_date, processed_at, updated_at`

func (r *repository) Create(ctx context.Context, doc *models.Document) error {
	row, err := r.toRow(doc)
	if err != nil {
		return err
	}

	query := `INSERT INTO documents (` + columns + `) VALUES (
		:id, :title, :document_type, :authors, :tags, :status, :page_count, :pdf_key,
		:raw_text_key, :summary_key, :insights_key, :opportunities_key, :summary, :chunks_indexed,
		:error, :upload_date, :processed_at, :updated_at)`

	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("insert document %s: %w", doc.ID, err)
	}
	return nil
}

func (r *repository) Save(ctx context.Context, doc *models.Document) error {
	row, err := r.toRow(doc)
	if err != nil {
		return err
	}

	prior := doc.Status.PriorStatuses()
	if len(prior) == 0 {
		return fmt.Errorf("save document %s: invalid status %q", doc.ID, doc.Status)
	}
	allowed := make([]string, len(prior))
	for i, s := range prior {
		allowed[i] = string(s)
	}

	query, args, err := sqlx.Named(`UPDATE documents SET
		title = :title,
		document_type = :document_type,
		authors = :authors,
		tags = :tags,
		status = :status,
		page_count = :page_count,
		pdf_key = :pdf_key,
		raw_text_key = :raw_text_key,
		summary_key = :summary_key,
		insights_key = :insights_key,
		opportunities_key = :opportunities_key,
		summary = :summary,
		chunks_indexed = :chunks_indexed,
		error = :error,
		upload_date = :upload_date,
		processed_at = :processed_at,
		updated_at = :updated_at
	WHERE id = :id AND status IN (:prior_statuses)`, guardedRow{documentRow: *row, PriorStatuses: allowed})
	if err != nil {
		return fmt.Errorf("save document %s: %w", doc.ID, err)
	}
	if query, args, err = sqlx.In(query, args...); err != nil {
		return fmt.Errorf("save document %s: %w", doc.ID, err)
	}

	res, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return fmt.Errorf("save document %s: %w", doc.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save document %s: %w", doc.ID, err)
	}
	if n > 0 {
		return nil
	}

	var stored string
	err = r.db.GetContext(ctx, &stored, `SELECT status FROM documents WHERE id = ?`, doc.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("save document %s: %w", doc.ID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("save document %s: %w", doc.ID, err)
	}
	return fmt.Errorf("save document %s as %s over %s: %w", doc.ID, doc.Status, stored, ErrConflict)
}

// guardedRow adds the allowed prior statuses to an update's named parameters.
type guardedRow struct {
	documentRow
	PriorStatuses []string `db:"prior_statuses"`
}

func (r *repository) GetByID(ctx context.Context, id string) (*models.Document, error) {
	var row documentRow
	err := r.db.GetContext(ctx, &row, `SELECT `+columns+` FROM documents WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", id, err)
	}

	return row.toDocument()
}

func (r *repository) List(ctx context.Context) ([]*models.Document, error) {
	var rows []documentRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT `+columns+` FROM documents ORDER BY upload_date DESC`); err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return toDocuments(rows)
}

func (r *repository) ListByStatus(ctx context.Context, status models.Status, updatedBefore time.Time) ([]*models.Document, error) {
	var rows []documentRow
	query := `SELECT ` + columns + ` FROM documents WHERE status = ? AND updated_at < ? ORDER BY updated_at`
	if err := r.db.SelectContext(ctx, &rows, query, string(status), formatTime(updatedBefore)); err != nil {
		return nil, fmt.Errorf("list %s documents: %w", status, err)
	}
	return toDocuments(rows)
}

func (r *repository) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete document %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete document %s: %w", id, err)
	}
	return n > 0, nil
}

func (r *repository) toRow(doc *models.Document) (*documentRow, error) {
	authors, err := json.Marshal(nonNil(doc.Authors))
	if err != nil {
		return nil, fmt.Errorf("encode authors: %w", err)
	}
	tags, err := json.Marshal(nonNil(doc.Tags))
	if err != nil {
		return nil, fmt.Errorf("encode tags: %w", err)
	}

	doc.UpdatedAt = r.now().UTC()

	row := &documentRow{
		ID:               doc.ID,
		Title:            doc.Title,
		DocumentType:     string(doc.DocumentType),
		Authors:          string(authors),
		Tags:             string(tags),
		Status:           string(doc.Status),
		PageCount:        doc.PageCount,
		PDFKey:           doc.PDFKey,
		RawTextKey:       nullString(doc.RawTextKey),
		SummaryKey:       nullString(doc.SummaryKey),
		InsightsKey:      nullString(doc.InsightsKey),
		OpportunitiesKey: nullString(doc.OpportunitiesKey),
		Summary:          nullString(doc.Summary),
		Error:            nullString(doc.Error),
		UploadDate:       formatTime(doc.UploadDate),
		UpdatedAt:        formatTime(doc.UpdatedAt),
	}
	if doc.ChunksIndexed != nil {
		row.ChunksIndexed = sql.NullInt64{Int64: int64(*doc.ChunksIndexed), Valid: true}
	}
	if doc.ProcessedAt != nil {
		row.ProcessedAt = sql.NullString{String: formatTime(*doc.ProcessedAt), Valid: true}
	}
	return row, nil
}

func (row *documentRow) toDocument() (*models.Document, error) {
	doc := &models.Document{
		ID:               row.ID,
		Title:            row.Title,
		DocumentType:     models.DocumentType(row.DocumentType),
		Status:           models.Status(row.Status),
		PageCount:        row.PageCount,
		PDFKey:           row.PDFKey,
		RawTextKey:       row.RawTextKey.String,
		SummaryKey:       row.SummaryKey.String,
		InsightsKey:      row.InsightsKey.String,
		OpportunitiesKey: row.OpportunitiesKey.String,
		Summary:          row.Summary.String,
		Error:            row.Error.String,
	}

	if err := json.Unmarshal([]byte(row.Authors), &doc.Authors); err != nil {
		return nil, fmt.Errorf("decode authors of %s: %w", row.ID, err)
	}
	if err := json.Unmarshal([]byte(row.Tags), &doc.Tags); err != nil {
		return nil, fmt.Errorf("decode tags of %s: %w", row.ID, err)
	}

	var err error
	if doc.UploadDate, err = parseTime(row.UploadDate); err != nil {
		return nil, err
	}
	if doc.UpdatedAt, err = parseTime(row.UpdatedAt); err != nil {
		return nil, err
	}
	if row.ProcessedAt.Valid {
		t, err := parseTime(row.ProcessedAt.String)
		if err != nil {
			return nil, err
		}
		doc.ProcessedAt = &t
	}
	if row.ChunksIndexed.Valid {
		doc.SetChunksIndexed(int(row.ChunksIndexed.Int64))
	}

	return doc, nil
}

func toDocuments(rows []documentRow) ([]*models.Document, error) {
	docs := make([]*models.Document, 0, len(rows))
	for i := range rows {
		doc, err := rows[i].toDocument()
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
