package index

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/starford/dagaz/internal/apperr"
)

// DocumentRow represents a row in the documents table.
type DocumentRow struct {
	Path      string
	Title     string
	Checksum  string
	Tags      []string
	UpdatedAt time.Time
}

// SearchResult represents one search hit.
type SearchResult struct {
	Path    string `json:"path"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// GraphNode is a node in the cross-reference graph.
type GraphNode struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
}

// GraphEdge is a directed edge in the cross-reference graph.
type GraphEdge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// UpsertDocument inserts or replaces a document, its FTS entry, and its
// outgoing refs within a transaction.
func (db *DB) UpsertDocument(d DocumentRow, body string, refs []string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	tagsJSON, _ := json.Marshal(d.Tags)

	// Body is stored in the documents table for the LIKE fallback.
	_, err = tx.Exec(`
		INSERT INTO documents (path, title, checksum, tags, body, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			title      = excluded.title,
			checksum   = excluded.checksum,
			tags       = excluded.tags,
			body       = excluded.body,
			updated_at = excluded.updated_at
	`, d.Path, d.Title, d.Checksum, string(tagsJSON), body, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert document: %w", err)
	}

	// FTS upsert (no-op when the sqlite_fts5 tag is absent).
	if err := ftsUpsert(tx, d.Path, d.Title, body, d.Tags); err != nil {
		return err
	}

	// Replace refs: delete old then bulk insert.
	_, _ = tx.Exec(`DELETE FROM refs WHERE source = ?`, d.Path)
	if len(refs) > 0 {
		stmt, err := tx.Prepare(`INSERT OR IGNORE INTO refs (source, target) VALUES (?, ?)`)
		if err != nil {
			return fmt.Errorf("index: prepare ref insert: %w", err)
		}
		defer stmt.Close()
		for _, target := range refs {
			if _, err := stmt.Exec(d.Path, target); err != nil {
				return fmt.Errorf("index: insert ref: %w", err)
			}
		}
	}

	return tx.Commit()
}

// DeleteDocument removes a document, its FTS entry, and outgoing refs.
func (db *DB) DeleteDocument(path string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsDelete(tx, path)
	_, _ = tx.Exec(`DELETE FROM refs WHERE source = ?`, path)
	_, _ = tx.Exec(`DELETE FROM documents WHERE path = ?`, path)

	return tx.Commit()
}

// GetChecksum returns the stored checksum for a document, or empty
// string if not indexed.
func (db *DB) GetChecksum(path string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM documents WHERE path = ?`, path).Scan(&cs)
	if err != nil {
		return "", nil // not found is fine
	}
	return cs, nil
}

// GetDocument returns the indexed row for path.
func (db *DB) GetDocument(path string) (*DocumentRow, error) {
	var d DocumentRow
	var tagsJSON string
	err := db.conn.QueryRow(`
		SELECT path, title, checksum, tags, updated_at
		FROM documents WHERE path = ?
	`, path).Scan(&d.Path, &d.Title, &d.Checksum, &tagsJSON, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: %s: %w", path, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("index: get document: %w", err)
	}
	_ = json.Unmarshal([]byte(tagsJSON), &d.Tags)
	return &d, nil
}

// ListDocuments returns a page of documents with optional tag filter.
// sort is one of "updated_at" (default, newest first), "title", "path".
func (db *DB) ListDocuments(limit, offset int, tag, sort string) ([]DocumentRow, int, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	where := ""
	args := []any{}
	if tag != "" {
		// Tags are stored as a JSON array; a quoted substring match is
		// enough for exact tag values.
		where = `WHERE tags LIKE ?`
		args = append(args, `%"`+tag+`"%`)
	}

	var orderBy string
	switch sort {
	case "title":
		orderBy = "title COLLATE NOCASE ASC"
	case "path":
		orderBy = "path ASC"
	default:
		orderBy = "updated_at DESC"
	}

	var total int
	if err := db.conn.QueryRow(`SELECT count(*) FROM documents `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("index: count documents: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT path, title, checksum, tags, updated_at
		FROM documents %s
		ORDER BY %s
		LIMIT ? OFFSET ?
	`, where, orderBy)
	rows, err := db.conn.Query(query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("index: list documents: %w", err)
	}
	defer rows.Close()

	var out []DocumentRow
	for rows.Next() {
		var d DocumentRow
		var tagsJSON string
		if err := rows.Scan(&d.Path, &d.Title, &d.Checksum, &tagsJSON, &d.UpdatedAt); err != nil {
			return nil, 0, err
		}
		_ = json.Unmarshal([]byte(tagsJSON), &d.Tags)
		out = append(out, d)
	}
	return out, total, rows.Err()
}

// AllPaths returns every indexed document path.
func (db *DB) AllPaths() (map[string]struct{}, error) {
	rows, err := db.conn.Query(`SELECT path FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("index: all paths: %w", err)
	}
	defer rows.Close()
	out := make(map[string]struct{})
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out[p] = struct{}{}
	}
	return out, rows.Err()
}

// AllChecksums returns path → checksum for every indexed document.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}

// Backlinks returns all document paths that reference the given target.
func (db *DB) Backlinks(target string) ([]string, error) {
	rows, err := db.conn.Query(`SELECT source FROM refs WHERE target = ? ORDER BY source`, target)
	if err != nil {
		return nil, fmt.Errorf("index: backlinks: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Graph returns every document as a node and every ref as an edge.
func (db *DB) Graph() ([]GraphNode, []GraphEdge, error) {
	rows, err := db.conn.Query(`SELECT path, title FROM documents ORDER BY path`)
	if err != nil {
		return nil, nil, fmt.Errorf("index: graph nodes: %w", err)
	}
	defer rows.Close()

	var nodes []GraphNode
	for rows.Next() {
		var n GraphNode
		if err := rows.Scan(&n.ID, &n.Title); err != nil {
			return nil, nil, err
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	edgeRows, err := db.conn.Query(`SELECT source, target FROM refs ORDER BY source, target`)
	if err != nil {
		return nil, nil, fmt.Errorf("index: graph edges: %w", err)
	}
	defer edgeRows.Close()

	var edges []GraphEdge
	for edgeRows.Next() {
		var e GraphEdge
		if err := edgeRows.Scan(&e.Source, &e.Target); err != nil {
			return nil, nil, err
		}
		edges = append(edges, e)
	}
	return nodes, edges, edgeRows.Err()
}
