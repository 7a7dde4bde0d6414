package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pa-decision-orchestrator/internal/domain"
)

// SQLiteStore persists documents as {id, document, metadata} rows. List-valued
// metadata fields are stored as JSON arrays inside the metadata blob so they
// survive transports that only accept scalar values.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore opens (or creates) the on-disk collection.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL improves concurrent reader behavior
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{db: db, dbPath: dbPath}, nil
}

func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		document TEXT NOT NULL,
		metadata TEXT NOT NULL,
		document_type TEXT NOT NULL DEFAULT '',
		last_seen DATETIME NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_documents_type ON documents(document_type);
	CREATE INDEX IF NOT EXISTS idx_documents_last_seen ON documents(last_seen);
	`
	_, err := db.Exec(schema)
	return err
}

// Save inserts or replaces one document row.
func (s *SQLiteStore) Save(ctx context.Context, doc *domain.Document) error {
	metadata, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
	INSERT INTO documents (id, document, metadata, document_type, last_seen, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		document = excluded.document,
		metadata = excluded.metadata,
		document_type = excluded.document_type,
		last_seen = excluded.last_seen,
		updated_at = excluded.updated_at
	`
	_, err = s.db.ExecContext(ctx, query,
		doc.ID, doc.Body, string(metadata), string(doc.Metadata.DocumentType),
		doc.Metadata.LastSeen.UTC(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}
	return nil
}

// LoadAll returns every persisted document.
func (s *SQLiteStore) LoadAll(ctx context.Context) ([]*domain.Document, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, document, metadata FROM documents ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var docs []*domain.Document
	for rows.Next() {
		var id, body, metadataJSON string
		if err := rows.Scan(&id, &body, &metadataJSON); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		var metadata domain.DocumentMetadata
		if err := json.Unmarshal([]byte(metadataJSON), &metadata); err != nil {
			return nil, fmt.Errorf("failed to parse metadata for %s: %w", id, err)
		}
		docs = append(docs, &domain.Document{ID: id, Body: body, Metadata: metadata})
	}
	return docs, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
