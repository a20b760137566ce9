// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validDoc() *KBDocument {
	return &KBDocument{
		KBID:  "concepts/general/graph",
		Slug:  "graph",
		Title: "Graph",
		Metadata: KBMetadata{
			DocType:      DocConcept,
			PrimaryTopic: "general",
			IA:           IAMetadata{FindabilityScore: 0.6, Completeness: 0.6, Depth: 1},
		},
	}
}

func TestDocumentValidate(t *testing.T) {
	require.NoError(t, validDoc().Validate())

	tests := []struct {
		name  string
		mod   func(*KBDocument)
		field string
	}{
		{"empty kb_id", func(d *KBDocument) { d.KBID = "" }, "kb_id"},
		{"empty slug", func(d *KBDocument) { d.Slug = "" }, "slug"},
		{"slug mismatch", func(d *KBDocument) { d.Slug = "tree" }, "kb_id"},
		{"blank title", func(d *KBDocument) { d.Title = "  " }, "title"},
		{"no doc type", func(d *KBDocument) { d.Metadata.DocType = "" }, "doc_type"},
		{"no topic", func(d *KBDocument) { d.Metadata.PrimaryTopic = "" }, "primary_topic"},
		{"findability high", func(d *KBDocument) { d.Metadata.IA.FindabilityScore = 1.01 }, "ia.findability_score"},
		{"completeness negative", func(d *KBDocument) { d.Metadata.IA.Completeness = -0.1 }, "ia.completeness"},
		{"zero depth", func(d *KBDocument) { d.Metadata.IA.Depth = 0 }, "ia.depth"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := validDoc()
			tt.mod(d)
			err := d.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrQuality)

			var fe *FieldError
			require.True(t, errors.As(err, &fe))
			assert.Equal(t, tt.field, fe.Field)
		})
	}
}

func TestAddBacklink(t *testing.T) {
	d := validDoc()
	assert.True(t, d.AddBacklink("concepts/general/b"))
	assert.True(t, d.AddBacklink("concepts/general/a"))
	assert.False(t, d.AddBacklink("concepts/general/b"))
	assert.False(t, d.AddBacklink(d.KBID))
	assert.False(t, d.AddBacklink(""))
	assert.Equal(t, []string{"concepts/general/b", "concepts/general/a"}, d.Metadata.IA.RelatedByTopic)
}

func TestBundleHelpers(t *testing.T) {
	b := &ExtractionBundle{
		Results:  map[string]*ExtractionResult{"a": {}},
		Failures: map[string]string{"z": "boom", "c": "bad"},
		Summaries: []ExtractionRunSummary{
			{Extractor: "z", Error: "boom"},
			{Extractor: "a", FromCache: true},
			{Extractor: "c", Error: "bad"},
		},
	}
	assert.False(t, b.Success())
	assert.Equal(t, []string{"z", "a", "c"}, b.Requested())
	assert.Equal(t, []string{"c", "z"}, b.FailedExtractors())
	assert.True(t, b.Summaries[1].Success())
	assert.False(t, b.Summaries[0].Success())

	ok := &ExtractionBundle{Failures: map[string]string{}}
	assert.True(t, ok.Success())
}

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultPipelineConfig()
	require.NoError(t, cfg.Validate())
	assert.True(t, cfg.Linking.Enabled())
	assert.Equal(t, CollisionReplace, cfg.Organization.CollisionStrategy)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name  string
		mod   func(*PipelineConfig)
		field string
	}{
		{"findability baseline", func(c *PipelineConfig) { c.Transformation.FindabilityBaseline = 1.5 }, "transformation.findability_baseline"},
		{"completeness baseline", func(c *PipelineConfig) { c.Transformation.CompletenessBaseline = -1 }, "transformation.completeness_baseline"},
		{"depth", func(c *PipelineConfig) { c.Transformation.Depth = 0 }, "transformation.depth"},
		{"primary topic", func(c *PipelineConfig) { c.Transformation.PrimaryTopic = "" }, "transformation.primary_topic"},
		{"required completeness", func(c *PipelineConfig) { c.Quality.RequiredCompleteness = 2 }, "quality.required_completeness"},
		{"required findability", func(c *PipelineConfig) { c.Quality.RequiredFindability = -0.5 }, "quality.required_findability"},
		{"findability baseline NaN", func(c *PipelineConfig) { c.Transformation.FindabilityBaseline = math.NaN() }, "transformation.findability_baseline"},
		{"required completeness NaN", func(c *PipelineConfig) { c.Quality.RequiredCompleteness = math.NaN() }, "quality.required_completeness"},
		{"required findability NaN", func(c *PipelineConfig) { c.Quality.RequiredFindability = math.NaN() }, "quality.required_findability"},
		{"rate NaN", func(c *PipelineConfig) { c.Extraction.MaxStartsPerSecond = math.NaN() }, "extraction.max_starts_per_second"},
		{"min body", func(c *PipelineConfig) { c.Quality.MinBodyLength = -1 }, "quality.min_body_length"},
		{"min tags", func(c *PipelineConfig) { c.Quality.MinTags = -1 }, "quality.min_tags"},
		{"collision", func(c *PipelineConfig) { c.Organization.CollisionStrategy = "merge" }, "organization.collision_strategy"},
		{"ttl", func(c *PipelineConfig) { c.Extraction.CacheTTL = -1 }, "extraction.cache_ttl"},
		{"rate", func(c *PipelineConfig) { c.Extraction.MaxStartsPerSecond = -1 }, "extraction.max_starts_per_second"},
		{"empty tool", func(c *PipelineConfig) { c.Extraction.EnabledTools = []string{""} }, "extraction.enabled_tools"},
		{"duplicate tool", func(c *PipelineConfig) { c.Extraction.EnabledTools = []string{"a", "a"} }, "extraction.enabled_tools"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultPipelineConfig()
			tt.mod(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrConfig)

			var fe *FieldError
			require.True(t, errors.As(err, &fe))
			assert.Equal(t, tt.field, fe.Field)
		})
	}
}

func TestLinkingEnabled(t *testing.T) {
	assert.False(t, LinkingConfig{}.Enabled())
	assert.True(t, LinkingConfig{BuildConceptGraph: true}.Enabled())
	assert.True(t, LinkingConfig{GenerateBacklinks: true}.Enabled())
}

func TestFieldErrorMessage(t *testing.T) {
	err := ConfigError("quality.min_tags", "must not be negative, got %d", -2)
	assert.Equal(t, "configuration error: quality.min_tags: must not be negative, got -2", err.Error())
	assert.NotErrorIs(t, err, ErrQuality)
}
