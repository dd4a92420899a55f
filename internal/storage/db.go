package storage

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/standupsite/site/internal/content"
)

// DB wraps SQLite database operations
type DB struct {
	db *sql.DB
}

// Open opens or creates a SQLite database
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// WAL lets the web server read while sync writes
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	storage := &DB{db: db}

	if err := storage.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return storage, nil
}

// Close closes the database
func (d *DB) Close() error {
	return d.db.Close()
}

// initSchema creates tables if they don't exist
func (d *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		slug TEXT,
		date TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		body TEXT NOT NULL,
		synced_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_type_created ON documents(type, created_at);
	CREATE INDEX IF NOT EXISTS idx_type_date ON documents(type, date);
	CREATE INDEX IF NOT EXISTS idx_slug ON documents(slug);
	`

	if err := d.dropLegacySchema(); err != nil {
		return err
	}
	_, err := d.db.Exec(schema)
	return err
}

// dropLegacySchema removes a mirror whose slug column cannot hold NULL.
// The mirror is rebuilt by the next sync.
func (d *DB) dropLegacySchema() error {
	var notNull int
	err := d.db.QueryRow(`SELECT "notnull" FROM pragma_table_info('documents') WHERE name = 'slug'`).Scan(&notNull)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("inspect schema: %w", err)
	}
	if notNull == 0 {
		return nil
	}
	log.Warn().Msg("mirror schema outdated, dropping documents; run sync to rebuild")
	_, err = d.db.Exec(`DROP TABLE documents`)
	return err
}

const selectColumns = `id, type, slug, date, created_at, updated_at, content_hash, body, synced_at`

// Upsert inserts or updates a document
func (d *DB) Upsert(doc *Document) error {
	query := `
	INSERT INTO documents (` + selectColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		type = excluded.type,
		slug = excluded.slug,
		date = excluded.date,
		created_at = excluded.created_at,
		updated_at = excluded.updated_at,
		content_hash = excluded.content_hash,
		body = excluded.body,
		synced_at = excluded.synced_at
	`

	_, err := d.db.Exec(query,
		doc.ID, doc.Type, doc.Slug, doc.Date,
		doc.CreatedAt.UTC().Format(timeLayout), doc.UpdatedAt.UTC().Format(timeLayout),
		doc.ContentHash, doc.Body, doc.SyncedAt,
	)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(s scanner) (*Document, error) {
	doc := &Document{}
	var createdAt, updatedAt string
	err := s.Scan(
		&doc.ID, &doc.Type, &doc.Slug, &doc.Date, &createdAt, &updatedAt,
		&doc.ContentHash, &doc.Body, &doc.SyncedAt,
	)
	if err != nil {
		return nil, err
	}
	if doc.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if doc.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return doc, nil
}

// Get retrieves a document by ID
func (d *DB) Get(id string) (*Document, error) {
	row := d.db.QueryRow(`SELECT `+selectColumns+` FROM documents WHERE id = ?`, id)

	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return doc, nil
}

// List retrieves all documents of a type, or every document when docType is empty
func (d *DB) List(docType string) ([]*Document, error) {
	query := `SELECT ` + selectColumns + ` FROM documents`
	var args []any
	if docType != "" {
		query += " WHERE type = ?"
		args = append(args, docType)
	}
	query += " ORDER BY type, created_at DESC, id"

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}

	return docs, rows.Err()
}

// Count returns the total number of documents
func (d *DB) Count() (int, error) {
	var count int
	err := d.db.QueryRow("SELECT COUNT(*) FROM documents").Scan(&count)
	return count, err
}

// CountByType returns the number of documents per type
func (d *DB) CountByType() (map[string]int, error) {
	rows, err := d.db.Query("SELECT type, COUNT(*) FROM documents GROUP BY type")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var docType string
		var n int
		if err := rows.Scan(&docType, &n); err != nil {
			return nil, err
		}
		counts[docType] = n
	}
	return counts, rows.Err()
}

// GetContentHash retrieves just the content hash for a document
func (d *DB) GetContentHash(id string) (string, error) {
	var hash string
	err := d.db.QueryRow("SELECT content_hash FROM documents WHERE id = ?", id).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return hash, err
}

// DeleteMissing removes documents of docType whose IDs are not in keep and
// returns the removed IDs
func (d *DB) DeleteMissing(docType string, keep []string) ([]string, error) {
	keepSet := make(map[string]struct{}, len(keep))
	for _, id := range keep {
		keepSet[id] = struct{}{}
	}

	tx, err := d.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.Query("SELECT id FROM documents WHERE type = ?", docType)
	if err != nil {
		return nil, fmt.Errorf("list ids: %w", err)
	}
	var stale []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		if _, ok := keepSet[id]; !ok {
			stale = append(stale, id)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, id := range stale {
		if _, err := tx.Exec("DELETE FROM documents WHERE id = ?", id); err != nil {
			return nil, fmt.Errorf("delete %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return stale, nil
}

// orderColumns maps query order fields to mirror columns
var orderColumns = map[string]string{
	content.OrderCreatedAt: "created_at",
	content.OrderDate:      "date",
}

// Fetch evaluates a content query against the mirror, so the accessors can
// read offline with the same filtering and ordering as the content store.
func (d *DB) Fetch(ctx context.Context, q content.Query, target any) error {
	where := []string{"type = ?"}
	args := []any{q.Type}
	if q.RequireSlug {
		// defined() holds for an empty slug too
		where = append(where, "slug IS NOT NULL")
	}
	if q.Slug != "" {
		where = append(where, "slug = ?")
		args = append(args, q.Slug)
	}

	query := "SELECT body FROM documents WHERE " + strings.Join(where, " AND ")
	if q.Order != nil {
		col, ok := orderColumns[q.Order.Field]
		if !ok {
			return fmt.Errorf("unsupported order field %q", q.Order.Field)
		}
		dir := "ASC"
		if q.Order.Desc {
			dir = "DESC"
		}
		query += fmt.Sprintf(" ORDER BY %s %s, id", col, dir)
	}
	if q.First {
		query += " LIMIT 1"
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query mirror: %w", err)
	}
	defer rows.Close()

	var bodies [][]byte
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return fmt.Errorf("scan body: %w", err)
		}
		bodies = append(bodies, body)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("query mirror: %w", err)
	}

	var result []byte
	switch {
	case q.First && len(bodies) == 0:
		result = []byte("null")
	case q.First:
		result = bodies[0]
	default:
		result = append(append([]byte("["), bytes.Join(bodies, []byte(","))...), ']')
	}

	if target == nil {
		return nil
	}
	if err := json.Unmarshal(result, target); err != nil {
		return fmt.Errorf("unmarshal result: %w", err)
	}
	return nil
}
