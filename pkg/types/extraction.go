// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the kbforge pipeline:
// extraction results and bundles, knowledge documents with their metadata,
// pipeline configuration sections, and the sentinel errors every stage
// reports through.
package types

import (
	"sort"
	"time"
)

// Concept is a term extracted from source text.
type Concept struct {
	// Term is the concept as it appears in the source.
	Term string `json:"term" yaml:"term"`

	// Frequency counts occurrences of the term in the source.
	Frequency int `json:"frequency" yaml:"frequency"`

	// Positions lists character offsets where the term occurs.
	Positions []int `json:"positions,omitempty" yaml:"positions,omitempty"`

	// Definition is a defining sentence, when the extractor found one.
	Definition string `json:"definition,omitempty" yaml:"definition,omitempty"`

	// RelatedTerms holds bare terms or fully qualified kb_ids.
	RelatedTerms []string `json:"related_terms,omitempty" yaml:"related_terms,omitempty"`
}

// Entity is a named entity extracted from source text.
type Entity struct {
	// Text is the entity surface form (e.g. "Ada Lovelace").
	Text string `json:"text" yaml:"text"`

	// Type is the extractor's classification (e.g. "person", "organization").
	Type string `json:"type" yaml:"type"`

	// Confidence is a float between 0.0 and 1.0.
	Confidence float64 `json:"confidence" yaml:"confidence"`

	// Attributes holds extractor-specific key/value details.
	Attributes map[string]string `json:"attributes,omitempty" yaml:"attributes,omitempty"`

	// Aliases lists alternative surface forms.
	Aliases []string `json:"aliases,omitempty" yaml:"aliases,omitempty"`

	// Related holds fully qualified kb_ids of related entities.
	Related []string `json:"related,omitempty" yaml:"related,omitempty"`
}

// ExtractionResult holds the output of running one extractor over one text.
// A result is never modified after it is produced; the coordinator may hand
// the same value to several callers through its cache.
type ExtractionResult struct {
	// SourcePath identifies the source the text came from.
	SourcePath string `json:"source_path" yaml:"source_path"`

	// Checksum is the SHA-256 hex digest of the processed text.
	Checksum string `json:"checksum" yaml:"checksum"`

	// ExtractorName is the registry name of the routine that produced this result.
	ExtractorName string `json:"extractor_name" yaml:"extractor_name"`

	Concepts []Concept `json:"concepts,omitempty" yaml:"concepts,omitempty"`
	Entities []Entity  `json:"entities,omitempty" yaml:"entities,omitempty"`

	// Data carries routine-specific output the pipeline does not interpret.
	Data map[string]any `json:"data,omitempty" yaml:"data,omitempty"`

	Metadata map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// ExtractionRunSummary records the outcome of one extraction task.
type ExtractionRunSummary struct {
	Extractor string        `json:"extractor" yaml:"extractor"`
	Duration  time.Duration `json:"duration" yaml:"duration"`
	FromCache bool          `json:"from_cache" yaml:"from_cache"`

	// Error records the failure message. Empty on success.
	Error string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Success reports whether the task completed without error.
func (s ExtractionRunSummary) Success() bool {
	return s.Error == ""
}

// ExtractionBundle aggregates one coordinator run across extractors. Every
// requested extractor appears in exactly one of Results or Failures.
type ExtractionBundle struct {
	Results   map[string]*ExtractionResult `json:"results" yaml:"results"`
	Failures  map[string]string            `json:"failures" yaml:"failures"`
	Summaries []ExtractionRunSummary       `json:"summaries" yaml:"summaries"`

	StartedAt   time.Time `json:"started_at" yaml:"started_at"`
	CompletedAt time.Time `json:"completed_at" yaml:"completed_at"`
}

// Success reports whether no extractor failed.
func (b *ExtractionBundle) Success() bool {
	return len(b.Failures) == 0
}

// Requested returns extractor names in selection order.
func (b *ExtractionBundle) Requested() []string {
	names := make([]string, len(b.Summaries))
	for i, s := range b.Summaries {
		names[i] = s.Extractor
	}
	return names
}

// FailedExtractors returns the names of failed extractors, sorted.
func (b *ExtractionBundle) FailedExtractors() []string {
	names := make([]string, 0, len(b.Failures))
	for name := range b.Failures {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ExtractionConfig maps extractor name to that extractor's config map.
type ExtractionConfig map[string]map[string]any
