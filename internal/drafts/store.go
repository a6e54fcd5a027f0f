// Package drafts caches unsaved document edits in a local SQLite database
// so they survive a crash or a failed save.
package drafts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by Get when no draft exists for a document.
var ErrNotFound = errors.New("draft not found")

const schema = `
CREATE TABLE IF NOT EXISTS drafts (
	doc_id     TEXT PRIMARY KEY,
	content    TEXT NOT NULL,
	updated_at INTEGER NOT NULL
)`

// Draft is the latest local content of a document.
type Draft struct {
	DocID     string
	Content   string
	UpdatedAt time.Time
}

// Store is a draft cache backed by SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path. ":memory:" gives a
// private in-memory store.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create drafts directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// a single connection keeps ":memory:" coherent and serializes writers
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create drafts table: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put stores content as the draft for docID, replacing any previous one.
func (s *Store) Put(ctx context.Context, docID, content string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO drafts (doc_id, content, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(doc_id) DO UPDATE SET content = excluded.content, updated_at = excluded.updated_at`,
		docID, content, at.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to save draft %s: %w", docID, err)
	}
	return nil
}

// Get returns the draft for docID or ErrNotFound.
func (s *Store) Get(ctx context.Context, docID string) (Draft, error) {
	var d Draft
	var millis int64
	err := s.db.QueryRowContext(ctx,
		"SELECT doc_id, content, updated_at FROM drafts WHERE doc_id = ?", docID).
		Scan(&d.DocID, &d.Content, &millis)
	if errors.Is(err, sql.ErrNoRows) {
		return Draft{}, ErrNotFound
	}
	if err != nil {
		return Draft{}, fmt.Errorf("failed to load draft %s: %w", docID, err)
	}
	d.UpdatedAt = time.UnixMilli(millis).UTC()
	return d, nil
}

// Delete removes the draft for docID. Deleting a missing draft is not an
// error.
func (s *Store) Delete(ctx context.Context, docID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM drafts WHERE doc_id = ?", docID); err != nil {
		return fmt.Errorf("failed to delete draft %s: %w", docID, err)
	}
	return nil
}

// List returns all drafts, most recently updated first.
func (s *Store) List(ctx context.Context) ([]Draft, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT doc_id, content, updated_at FROM drafts ORDER BY updated_at DESC, doc_id")
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Draft
	for rows.Next() {
		var d Draft
		var millis int64
		if err := rows.Scan(&d.DocID, &d.Content, &millis); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		d.UpdatedAt = time.UnixMilli(millis).UTC()
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return out, nil
}
