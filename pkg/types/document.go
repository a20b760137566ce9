// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"strings"
	"time"
)

// DocType classifies a knowledge document.
type DocType string

const (
	DocConcept DocType = "concept"
	DocEntity  DocType = "entity"
)

// DublinCore holds the Dublin Core element set for a document.
type DublinCore struct {
	Title       string `json:"title" yaml:"title"`
	Creator     string `json:"creator,omitempty" yaml:"creator,omitempty"`
	Subject     string `json:"subject,omitempty" yaml:"subject,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Date        string `json:"date,omitempty" yaml:"date,omitempty"`
	Type        string `json:"type,omitempty" yaml:"type,omitempty"`
	Format      string `json:"format,omitempty" yaml:"format,omitempty"`
	Identifier  string `json:"identifier" yaml:"identifier"`
	Language    string `json:"language,omitempty" yaml:"language,omitempty"`
	Source      string `json:"source,omitempty" yaml:"source,omitempty"`
}

// IAMetadata holds information-architecture fields: quality scores,
// navigation, and link state.
type IAMetadata struct {
	// FindabilityScore is in [0,1].
	FindabilityScore float64 `json:"findability_score" yaml:"findability_score"`

	// Completeness is in [0,1].
	Completeness float64 `json:"completeness" yaml:"completeness"`

	Depth          int      `json:"depth" yaml:"depth"`
	Audience       []string `json:"audience,omitempty" yaml:"audience,omitempty"`
	NavigationPath []string `json:"navigation_path,omitempty" yaml:"navigation_path,omitempty"`

	// RelatedByTopic holds kb_ids of documents that reference this one.
	RelatedByTopic []string `json:"related_by_topic,omitempty" yaml:"related_by_topic,omitempty"`

	RelatedByEntity []string `json:"related_by_entity,omitempty" yaml:"related_by_entity,omitempty"`

	LastUpdated     time.Time `json:"last_updated" yaml:"last_updated"`
	UpdateFrequency string    `json:"update_frequency,omitempty" yaml:"update_frequency,omitempty"`
}

// KBMetadata is the structured metadata attached to every document.
type KBMetadata struct {
	DocType         DocType    `json:"doc_type" yaml:"doc_type"`
	PrimaryTopic    string     `json:"primary_topic" yaml:"primary_topic"`
	SecondaryTopics []string   `json:"secondary_topics,omitempty" yaml:"secondary_topics,omitempty"`
	Tags            []string   `json:"tags,omitempty" yaml:"tags,omitempty"`
	DC              DublinCore `json:"dc" yaml:"dc"`
	IA              IAMetadata `json:"ia" yaml:"ia"`
	Sources         []string   `json:"sources,omitempty" yaml:"sources,omitempty"`
}

// Validate checks the metadata invariants.
func (m *KBMetadata) Validate() error {
	if m.DocType == "" {
		return QualityError("doc_type", "must not be empty")
	}
	if m.PrimaryTopic == "" {
		return QualityError("primary_topic", "must not be empty")
	}
	if !inUnitRange(m.IA.FindabilityScore) {
		return QualityError("ia.findability_score", "%v outside [0,1]", m.IA.FindabilityScore)
	}
	if !inUnitRange(m.IA.Completeness) {
		return QualityError("ia.completeness", "%v outside [0,1]", m.IA.Completeness)
	}
	if m.IA.Depth <= 0 {
		return QualityError("ia.depth", "must be positive, got %d", m.IA.Depth)
	}
	return nil
}

// KBDocument is one addressable knowledge document. KBID is a path-like
// identifier ("<root>/<topic>/<slug>") re-derivable from the same inputs.
type KBDocument struct {
	KBID            string     `json:"kb_id" yaml:"kb_id"`
	Slug            string     `json:"slug" yaml:"slug"`
	Title           string     `json:"title" yaml:"title"`
	Metadata        KBMetadata `json:"metadata" yaml:"metadata"`
	Aliases         []string   `json:"aliases,omitempty" yaml:"aliases,omitempty"`
	RelatedConcepts []string   `json:"related_concepts,omitempty" yaml:"related_concepts,omitempty"`
	Body            string     `json:"body" yaml:"body"`
}

// Validate checks document identity and its metadata.
func (d *KBDocument) Validate() error {
	if d.KBID == "" {
		return QualityError("kb_id", "must not be empty")
	}
	if d.Slug == "" {
		return QualityError("slug", "must not be empty")
	}
	if !strings.HasSuffix(d.KBID, "/"+d.Slug) {
		return QualityError("kb_id", "%q does not end with slug %q", d.KBID, d.Slug)
	}
	if strings.TrimSpace(d.Title) == "" {
		return QualityError("title", "must not be empty")
	}
	return d.Metadata.Validate()
}

// AddBacklink records from in RelatedByTopic unless already present. It
// reports whether the document changed.
func (d *KBDocument) AddBacklink(from string) bool {
	if from == "" || from == d.KBID {
		return false
	}
	for _, id := range d.Metadata.IA.RelatedByTopic {
		if id == from {
			return false
		}
	}
	d.Metadata.IA.RelatedByTopic = append(d.Metadata.IA.RelatedByTopic, from)
	return true
}

func inUnitRange(v float64) bool {
	return v >= 0 && v <= 1
}
