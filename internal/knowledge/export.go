// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"
)

// ExportEntry is one catalogued document in an export file.
type ExportEntry struct {
	KBID         string   `json:"kb_id" yaml:"kb_id"`
	Type         string   `json:"type" yaml:"type"`
	Title        string   `json:"title" yaml:"title"`
	PrimaryTopic string   `json:"primary_topic" yaml:"primary_topic"`
	Tags         []string `json:"tags" yaml:"tags"`
	Related      []string `json:"related,omitempty" yaml:"related,omitempty"`
	Findability  float64  `json:"findability" yaml:"findability"`
	Completeness float64  `json:"completeness" yaml:"completeness"`
	LastUpdated  string   `json:"last_updated,omitempty" yaml:"last_updated,omitempty"`
}

const exportLimit = 100000

// ExportYAML writes the catalog to kb_root/.kbforge/catalog.yaml and returns
// the path. It supports the same filters as Search.
func (s *Store) ExportYAML(ctx context.Context, opts QueryOptions) (string, error) {
	entries, err := s.exportEntries(ctx, opts)
	if err != nil {
		return "", err
	}

	path := filepath.Join(s.kbRoot, IndexDir, "catalog.yaml")
	data, err := yaml.Marshal(entries)
	if err != nil {
		return "", fmt.Errorf("marshaling YAML: %w", err)
	}
	return path, os.WriteFile(path, data, 0o644)
}

// ExportJSON writes the catalog to kb_root/.kbforge/catalog.json and returns
// the path. It supports the same filters as Search.
func (s *Store) ExportJSON(ctx context.Context, opts QueryOptions) (string, error) {
	entries, err := s.exportEntries(ctx, opts)
	if err != nil {
		return "", err
	}

	path := filepath.Join(s.kbRoot, IndexDir, "catalog.json")
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling JSON: %w", err)
	}
	return path, os.WriteFile(path, data, 0o644)
}

func (s *Store) exportEntries(ctx context.Context, opts QueryOptions) ([]ExportEntry, error) {
	opts.MaxResults = exportLimit
	results, err := s.Search(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("querying for export: %w", err)
	}

	entries := make([]ExportEntry, len(results))
	for i, r := range results {
		entries[i] = ExportEntry{
			KBID:         r.KBID,
			Type:         string(r.DocType),
			Title:        r.Title,
			PrimaryTopic: r.PrimaryTopic,
			Tags:         r.Tags,
			Related:      r.Related,
			Findability:  r.Findability,
			Completeness: r.Completeness,
			LastUpdated:  r.LastUpdated,
		}
	}
	return entries, nil
}
