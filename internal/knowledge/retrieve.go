// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package knowledge

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pdiddy/kbforge/pkg/types"
)

// QueryOptions holds parameters for catalog queries.
type QueryOptions struct {
	// Query is split on whitespace; every term must appear in the title or
	// body, case-insensitively.
	Query string

	DocType types.DocType
	Topic   string

	// Tags filters with AND semantics.
	Tags []string

	// MaxResults limits result count. Zero uses the store default.
	MaxResults int
}

// IsEmpty reports whether the query has no search terms or filters.
func (q QueryOptions) IsEmpty() bool {
	return strings.TrimSpace(q.Query) == "" && q.DocType == "" && q.Topic == "" && len(q.Tags) == 0
}

// QueryResult is one catalogued document.
type QueryResult struct {
	KBID         string        `json:"kb_id" yaml:"kb_id"`
	DocType      types.DocType `json:"doc_type" yaml:"doc_type"`
	Title        string        `json:"title" yaml:"title"`
	PrimaryTopic string        `json:"primary_topic" yaml:"primary_topic"`
	Tags         []string      `json:"tags" yaml:"tags"`
	Related      []string      `json:"related,omitempty" yaml:"related,omitempty"`
	Findability  float64       `json:"findability" yaml:"findability"`
	Completeness float64       `json:"completeness" yaml:"completeness"`
	LastUpdated  string        `json:"last_updated,omitempty" yaml:"last_updated,omitempty"`

	// Snippet is the first body line containing a query term.
	Snippet string `json:"snippet,omitempty" yaml:"snippet,omitempty"`
}

// Search queries the catalog. With a text query, title matches rank ahead
// of body-only matches and ties fall back to findability; without one,
// results are ordered by kb_id.
func (s *Store) Search(ctx context.Context, opts QueryOptions) ([]QueryResult, error) {
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = s.maxResults
	}

	var (
		qb    strings.Builder
		args  []any
		terms = strings.Fields(strings.ToLower(opts.Query))
	)

	qb.WriteString(
		`SELECT d.kb_id, d.doc_type, d.title, d.primary_topic, d.tags, d.related,
			d.body, d.findability, d.completeness, d.last_updated
		FROM documents d
		WHERE 1=1`)

	for _, term := range terms {
		pattern := "%" + escapeLike(term) + "%"
		qb.WriteString(` AND (lower(d.title) LIKE ? ESCAPE '\' OR lower(d.body) LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern)
	}

	if opts.DocType != "" {
		qb.WriteString(` AND d.doc_type = ?`)
		args = append(args, string(opts.DocType))
	}

	if opts.Topic != "" {
		qb.WriteString(` AND d.primary_topic = ?`)
		args = append(args, opts.Topic)
	}

	for _, tag := range opts.Tags {
		qb.WriteString(` AND EXISTS (SELECT 1 FROM json_each(d.tags) WHERE value = ?)`)
		args = append(args, tag)
	}

	if len(terms) > 0 {
		qb.WriteString(` ORDER BY CASE WHEN lower(d.title) LIKE ? ESCAPE '\' THEN 0 ELSE 1 END, d.findability DESC, d.kb_id`)
		args = append(args, "%"+escapeLike(terms[0])+"%")
	} else {
		qb.WriteString(` ORDER BY d.kb_id`)
	}

	qb.WriteString(` LIMIT ?`)
	args = append(args, maxResults)

	rows, err := s.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("querying catalog: %w", err)
	}
	defer rows.Close()

	var results []QueryResult
	for rows.Next() {
		var (
			qr          QueryResult
			docType     string
			topic       sql.NullString
			tagsJSON    sql.NullString
			relatedJSON sql.NullString
			body        sql.NullString
			updated     sql.NullString
		)

		if err := rows.Scan(
			&qr.KBID, &docType, &qr.Title, &topic, &tagsJSON, &relatedJSON,
			&body, &qr.Findability, &qr.Completeness, &updated,
		); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		qr.DocType = types.DocType(docType)
		qr.PrimaryTopic = topic.String
		qr.LastUpdated = updated.String
		if tagsJSON.Valid {
			json.Unmarshal([]byte(tagsJSON.String), &qr.Tags)
		}
		if relatedJSON.Valid {
			json.Unmarshal([]byte(relatedJSON.String), &qr.Related)
		}
		if len(terms) > 0 {
			qr.Snippet = snippet(body.String, terms)
		}

		results = append(results, qr)
	}

	return results, rows.Err()
}

// snippet returns the first non-heading body line that mentions a term.
func snippet(body string, terms []string) string {
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		lower := strings.ToLower(trimmed)
		for _, term := range terms {
			if strings.Contains(lower, term) {
				return trimmed
			}
		}
	}
	return ""
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
