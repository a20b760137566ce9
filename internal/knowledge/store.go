// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package knowledge maintains a SQLite catalog of the documents in a KB
// root so they can be searched and exported without walking the tree.
// The catalog is derived data: the Markdown files stay authoritative and
// Sync can rebuild it at any time.
package knowledge

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/kbforge/internal/kb"
	"github.com/pdiddy/kbforge/pkg/types"
)

const (
	// IndexDir holds kbforge's derived files inside a KB root. kb.Store.Walk
	// skips it because its name starts with a dot.
	IndexDir = ".kbforge"

	dbFile            = "catalog.db"
	defaultMaxResults = 20
)

// Store manages the catalog database.
type Store struct {
	db         *sql.DB
	kbRoot     string
	maxResults int
}

// NewStore opens or creates the catalog at kbRoot/.kbforge/catalog.db and
// creates the schema if it does not exist.
func NewStore(kbRoot string, maxResults int) (*Store, error) {
	dbDir := filepath.Join(kbRoot, IndexDir)
	if err := os.MkdirAll(dbDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}

	dbPath := filepath.Join(dbDir, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}

	s := &Store{
		db:         db,
		kbRoot:     kbRoot,
		maxResults: maxResults,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			kb_id TEXT PRIMARY KEY,
			doc_type TEXT NOT NULL,
			title TEXT NOT NULL,
			primary_topic TEXT,
			tags TEXT,
			related TEXT,
			body TEXT,
			findability REAL,
			completeness REAL,
			last_updated TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_type ON documents(doc_type)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_topic ON documents(primary_topic)`,
		`CREATE TABLE IF NOT EXISTS indexing_status (
			kb_id TEXT PRIMARY KEY,
			file_mod_time TEXT
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Upsert inserts or replaces the catalog rows for docs in one transaction.
func (s *Store) Upsert(ctx context.Context, docs ...*types.KBDocument) error {
	if len(docs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, doc := range docs {
		if err := upsertDoc(ctx, tx, doc); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func upsertDoc(ctx context.Context, tx *sql.Tx, doc *types.KBDocument) error {
	tagsJSON, _ := json.Marshal(doc.Metadata.Tags)
	relatedJSON, _ := json.Marshal(doc.RelatedConcepts)
	updated := ""
	if !doc.Metadata.IA.LastUpdated.IsZero() {
		updated = doc.Metadata.IA.LastUpdated.UTC().Format(time.RFC3339)
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO documents (kb_id, doc_type, title, primary_topic, tags, related, body, findability, completeness, last_updated)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(kb_id) DO UPDATE SET
			doc_type=excluded.doc_type, title=excluded.title, primary_topic=excluded.primary_topic,
			tags=excluded.tags, related=excluded.related, body=excluded.body,
			findability=excluded.findability, completeness=excluded.completeness,
			last_updated=excluded.last_updated`,
		doc.KBID, string(doc.Metadata.DocType), doc.Title, doc.Metadata.PrimaryTopic,
		string(tagsJSON), string(relatedJSON), doc.Body,
		doc.Metadata.IA.FindabilityScore, doc.Metadata.IA.Completeness, updated,
	)
	if err != nil {
		return fmt.Errorf("upserting %s: %w", doc.KBID, err)
	}
	return nil
}

// SyncSummary holds counts from a catalog sync.
type SyncSummary struct {
	Indexed int
	Updated int
	Skipped int
	Failed  int
	Removed int
}

// Total returns the number of documents examined.
func (s SyncSummary) Total() int {
	return s.Indexed + s.Updated + s.Skipped + s.Failed
}

// Sync brings the catalog in line with entries, normally the result of
// kb.Store.Walk. Unchanged files (same modification time) are skipped,
// malformed ones are reported and counted as failed, and rows for
// documents no longer present are removed.
func (s *Store) Sync(ctx context.Context, entries []kb.Entry, w io.Writer) (SyncSummary, error) {
	var summary SyncSummary
	present := make(map[string]bool, len(entries))

	for _, e := range entries {
		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		default:
		}

		present[e.KBID] = true
		if e.Err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", e.KBID, e.Err)
			summary.Failed++
			continue
		}

		info, err := os.Stat(e.Path)
		if err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", e.KBID, err)
			summary.Failed++
			continue
		}
		modTime := info.ModTime().UTC().Format(time.RFC3339Nano)

		var storedModTime string
		err = s.db.QueryRowContext(ctx,
			`SELECT file_mod_time FROM indexing_status WHERE kb_id = ?`, e.KBID,
		).Scan(&storedModTime)
		if err == nil && storedModTime == modTime {
			summary.Skipped++
			continue
		}
		isUpdate := err == nil

		if err := s.syncDoc(ctx, e.Doc, modTime); err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", e.KBID, err)
			summary.Failed++
			continue
		}
		if isUpdate {
			fmt.Fprintf(w, "updated %s\n", e.KBID)
			summary.Updated++
		} else {
			fmt.Fprintf(w, "indexed %s\n", e.KBID)
			summary.Indexed++
		}
	}

	removed, err := s.prune(ctx, present)
	if err != nil {
		return summary, err
	}
	summary.Removed = removed

	fmt.Fprintf(w, "\nindexed: %d, updated: %d, skipped: %d, failed: %d, removed: %d\n",
		summary.Indexed, summary.Updated, summary.Skipped, summary.Failed, summary.Removed)
	return summary, nil
}

func (s *Store) syncDoc(ctx context.Context, doc *types.KBDocument, modTime string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := upsertDoc(ctx, tx, doc); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO indexing_status (kb_id, file_mod_time) VALUES (?, ?)
		 ON CONFLICT(kb_id) DO UPDATE SET file_mod_time=excluded.file_mod_time`,
		doc.KBID, modTime,
	)
	if err != nil {
		return fmt.Errorf("updating indexing status: %w", err)
	}
	return tx.Commit()
}

func (s *Store) prune(ctx context.Context, present map[string]bool) (int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT kb_id FROM documents`)
	if err != nil {
		return 0, fmt.Errorf("listing catalog: %w", err)
	}
	var stale []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scanning row: %w", err)
		}
		if !present[id] {
			stale = append(stale, id)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, id := range stale {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE kb_id = ?`, id); err != nil {
			return 0, fmt.Errorf("removing %s: %w", id, err)
		}
		if _, err := s.db.ExecContext(ctx, `DELETE FROM indexing_status WHERE kb_id = ?`, id); err != nil {
			return 0, fmt.Errorf("removing status for %s: %w", id, err)
		}
	}
	return len(stale), nil
}

// Count returns the number of catalogued documents.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM documents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting documents: %w", err)
	}
	return n, nil
}
