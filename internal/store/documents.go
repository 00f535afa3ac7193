package store

import (
	"context"
	"fmt"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

const selectDocumentCols = `id, name, doc_type, owner_id, expires_on, status, created_at`

// CreateDocument inserts a document and sets its ID.
func (s *SQLiteStore) CreateDocument(ctx context.Context, d *Document) error {
	if d.Status == "" {
		d.Status = DocumentActive
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (name, doc_type, owner_id, expires_on, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		d.Name, d.DocType, d.OwnerID, FormatDate(d.ExpiresOn), string(d.Status), formatTime(d.CreatedAt))
	if err != nil {
		return goerr.Wrap(err, "insert document", goerr.V("name", d.Name))
	}
	d.ID, err = result.LastInsertId()
	return err
}

func scanDocument(row scanner) (*Document, error) {
	var d Document
	var expiresOn, status, createdAt string
	if err := row.Scan(&d.ID, &d.Name, &d.DocType, &d.OwnerID, &expiresOn, &status, &createdAt); err != nil {
		return nil, err
	}
	var err error
	if d.ExpiresOn, err = ParseDate(expiresOn); err != nil {
		return nil, fmt.Errorf("parse expires_on: %w", err)
	}
	if d.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	d.Status = DocumentStatus(status)
	return &d, nil
}

func (s *SQLiteStore) queryDocuments(ctx context.Context, query string, args ...any) ([]*Document, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, goerr.Wrap(err, "list documents")
	}
	defer rows.Close()

	docs := make([]*Document, 0)
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// ListDocuments returns all documents ordered by expiry.
func (s *SQLiteStore) ListDocuments(ctx context.Context) ([]*Document, error) {
	return s.queryDocuments(ctx, "SELECT "+selectDocumentCols+" FROM documents ORDER BY expires_on, id")
}

// ListActiveDocumentsExpiringBy returns active documents expiring on or before day,
// including those already expired.
func (s *SQLiteStore) ListActiveDocumentsExpiringBy(ctx context.Context, day time.Time) ([]*Document, error) {
	return s.queryDocuments(ctx,
		"SELECT "+selectDocumentCols+" FROM documents WHERE status = ? AND expires_on <= ? ORDER BY expires_on, id",
		string(DocumentActive), FormatDate(day))
}
