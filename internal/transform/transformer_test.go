// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package transform

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/kbforge/pkg/types"
)

var fixedTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testOptions() ContextOptions {
	return ContextOptions{
		PrimaryTopic:         "Machine Learning",
		SecondaryTopics:      []string{"Statistics", "statistics"},
		DefaultTags:          []string{"Research", ""},
		Audience:             []string{"Engineers"},
		Language:             "EN",
		ConceptRoot:          "Concepts",
		EntityRoot:           "entities",
		EntityTypeMapping:    map[string]string{"Person": "people", "organization": "Orgs/Companies"},
		FindabilityBaseline:  0.6,
		CompletenessBaseline: 0.7,
		Depth:                2,
		SourceReferences:     []string{"notes/ml.md", " ", "notes/ml.md"},
		Creator:              "kbforge",
		UpdateFrequency:      "monthly",
	}
}

func mustContext(t *testing.T, opts ContextOptions) *Context {
	t.Helper()
	ctx, err := NewContext(opts)
	require.NoError(t, err)
	return ctx
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Hello World", "hello-world"},
		{"  Café au lait!  ", "cafe-au-lait"},
		{"C++ / Go", "c-go"},
		{"already-slug", "already-slug"},
		{"Version 2.0", "version-2-0"},
		{"", "untitled"},
		{"   ", "untitled"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Slugify(tt.in), "Slugify(%q)", tt.in)
	}

	cjk := Slugify("機械学習")
	assert.True(t, strings.HasPrefix(cjk, "item-"))
	assert.Len(t, cjk, len("item-")+8)
	assert.Equal(t, cjk, Slugify("機械学習"))
	assert.NotEqual(t, cjk, Slugify("深層学習"))
}

func TestNewContextNormalizes(t *testing.T) {
	ctx := mustContext(t, testOptions())

	assert.Equal(t, "machine-learning", ctx.PrimaryTopic())
	assert.Equal(t, "concepts", ctx.ConceptRoot())
	assert.Equal(t, []string{"statistics"}, ctx.secondaryTopics)
	assert.Equal(t, []string{"research"}, ctx.defaultTags)
	assert.Equal(t, []string{"engineers"}, ctx.audience)
	assert.Equal(t, "en", ctx.language)
	assert.Equal(t, []string{"notes/ml.md"}, ctx.SourceReferences())
	assert.Equal(t, "people", ctx.category("person"))
	assert.Equal(t, "orgs/companies", ctx.category("Organization"))
	assert.Equal(t, "space-probe", ctx.category("Space Probe"))
	assert.Equal(t, "unclassified", ctx.category(""))
}

func TestNewContextDefaultsRoots(t *testing.T) {
	opts := testOptions()
	opts.ConceptRoot = ""
	opts.EntityRoot = " / "
	ctx := mustContext(t, opts)
	assert.Equal(t, "concepts", ctx.conceptRoot)
	assert.Equal(t, "entities", ctx.entityRoot)
}

func TestNewContextRejectsInvalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ContextOptions)
	}{
		{"findability above one", func(o *ContextOptions) { o.FindabilityBaseline = 1.5 }},
		{"findability negative", func(o *ContextOptions) { o.FindabilityBaseline = -0.1 }},
		{"completeness above one", func(o *ContextOptions) { o.CompletenessBaseline = 1.01 }},
		{"findability NaN", func(o *ContextOptions) { o.FindabilityBaseline = math.NaN() }},
		{"completeness NaN", func(o *ContextOptions) { o.CompletenessBaseline = math.NaN() }},
		{"zero depth", func(o *ContextOptions) { o.Depth = 0 }},
		{"blank topic", func(o *ContextOptions) { o.PrimaryTopic = "  " }},
		{"no sources", func(o *ContextOptions) { o.SourceReferences = nil }},
		{"blank sources", func(o *ContextOptions) { o.SourceReferences = []string{"", " "} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := testOptions()
			tt.mutate(&opts)
			ctx, err := NewContext(opts)
			require.Error(t, err)
			assert.Nil(t, ctx)
			assert.ErrorIs(t, err, types.ErrConfig)
		})
	}
}

func TestConceptDocument(t *testing.T) {
	ctx := mustContext(t, testOptions())
	tr := New(Thresholds{Completeness: 0.5, Findability: 0.5}, WithClock(func() time.Time { return fixedTime }))

	c := types.Concept{
		Term:         "Gradient Descent",
		Frequency:    3,
		Positions:    []int{10, 40, 90},
		Definition:   "Gradient descent is an optimization method.",
		RelatedTerms: []string{"Learning Rate", "concepts/math/calculus", "learning rate", "gradient descent"},
	}
	doc, err := tr.ConceptDocument(c, ctx)
	require.NoError(t, err)

	assert.Equal(t, "concepts/machine-learning/gradient-descent", doc.KBID)
	assert.Equal(t, "gradient-descent", doc.Slug)
	assert.Equal(t, "Gradient Descent", doc.Title)
	assert.Equal(t, []string{
		"concepts/machine-learning/learning-rate",
		"concepts/math/calculus",
	}, doc.RelatedConcepts)

	md := doc.Metadata
	assert.Equal(t, types.DocConcept, md.DocType)
	assert.Equal(t, []string{"research", "machine-learning", "statistics", "concept"}, md.Tags)
	assert.InDelta(t, 0.64, md.IA.FindabilityScore, 1e-9)
	assert.InDelta(t, 0.7, md.IA.Completeness, 1e-9)
	assert.Equal(t, 2, md.IA.Depth)
	assert.Equal(t, []string{"concepts", "machine-learning"}, md.IA.NavigationPath)
	assert.Equal(t, fixedTime, md.IA.LastUpdated)
	assert.Equal(t, "monthly", md.IA.UpdateFrequency)
	assert.Equal(t, "2026-03-01", md.DC.Date)
	assert.Equal(t, doc.KBID, md.DC.Identifier)
	assert.Equal(t, "Gradient descent is an optimization method.", md.DC.Description)
	assert.Equal(t, []string{"notes/ml.md"}, md.Sources)

	assert.Contains(t, doc.Body, "**Frequency:** 3")
	assert.Contains(t, doc.Body, "**Positions:** 10, 40, 90")
	assert.Contains(t, doc.Body, "## Definition")
	assert.Contains(t, doc.Body, "- concepts/math/calculus")
}

func TestConceptDocumentDeterministic(t *testing.T) {
	ctx := mustContext(t, testOptions())
	tr := New(Thresholds{})

	c := types.Concept{Term: "Neural Network", Frequency: 5, RelatedTerms: []string{"Perceptron"}}
	a, err := tr.ConceptDocument(c, ctx)
	require.NoError(t, err)
	b, err := tr.ConceptDocument(c, ctx)
	require.NoError(t, err)

	assert.Equal(t, a.KBID, b.KBID)
	assert.Equal(t, a.Slug, b.Slug)
	assert.Equal(t, a.Metadata.Tags, b.Metadata.Tags)
	assert.Equal(t, a.Body, b.Body)
}

func TestFindability(t *testing.T) {
	assert.InDelta(t, 0.6, Findability(0.6, 0), 1e-9)
	assert.InDelta(t, 0.7, Findability(0.6, 5), 1e-9)
	assert.InDelta(t, 0.8, Findability(0.6, 10), 1e-9)
	assert.InDelta(t, 0.8, Findability(0.6, 50), 1e-9, "bonus is capped")
	assert.InDelta(t, 1.0, Findability(0.95, 10), 1e-9, "score is capped at one")
}

func TestConceptDocumentFailsClosedOnThresholds(t *testing.T) {
	ctx := mustContext(t, testOptions())
	tr := New(Thresholds{Completeness: 0.9})

	doc, err := tr.ConceptDocument(types.Concept{Term: "Entropy", Frequency: 1}, ctx)
	require.Error(t, err)
	assert.Nil(t, doc)
	assert.ErrorIs(t, err, types.ErrQuality)

	tr = New(Thresholds{Findability: 0.65})
	_, err = tr.ConceptDocument(types.Concept{Term: "Entropy"}, ctx)
	assert.ErrorIs(t, err, types.ErrQuality)

	doc, err = tr.ConceptDocument(types.Concept{Term: "Entropy", RelatedTerms: []string{"a", "b", "c"}}, ctx)
	require.NoError(t, err)
	assert.InDelta(t, 0.66, doc.Metadata.IA.FindabilityScore, 1e-9)
}

func TestConceptDocumentRejectsBlankTerm(t *testing.T) {
	ctx := mustContext(t, testOptions())
	_, err := New(Thresholds{}).ConceptDocument(types.Concept{Term: "   "}, ctx)
	assert.ErrorIs(t, err, types.ErrQuality)
}

func TestEntityDocument(t *testing.T) {
	ctx := mustContext(t, testOptions())
	tr := New(Thresholds{}, WithClock(func() time.Time { return fixedTime }))

	e := types.Entity{
		Text:       "Ada Lovelace",
		Type:       "Person",
		Confidence: 0.92,
		Attributes: map[string]string{"born": "1815", "active": "1840s", "field": "mathematics"},
		Aliases:    []string{"Ada", "Ada Lovelace", " Ada "},
		Related:    []string{" entities/people/charles-babbage ", "entities/people/charles-babbage", ""},
	}
	doc, err := tr.EntityDocument(e, ctx)
	require.NoError(t, err)

	assert.Equal(t, "entities/people/ada-lovelace", doc.KBID)
	assert.Equal(t, []string{"Ada"}, doc.Aliases)
	assert.Equal(t, []string{"entities/people/charles-babbage"}, doc.RelatedConcepts)
	assert.Equal(t, types.DocEntity, doc.Metadata.DocType)
	assert.Equal(t, []string{"research", "people", "entity"}, doc.Metadata.Tags)
	assert.InDelta(t, 0.62, doc.Metadata.IA.FindabilityScore, 1e-9)

	active := strings.Index(doc.Body, "**active:**")
	born := strings.Index(doc.Body, "**born:**")
	field := strings.Index(doc.Body, "**field:**")
	assert.True(t, active < born && born < field, "attributes must render in key order")
	assert.Contains(t, doc.Body, "**Confidence:** 0.92")

	again, err := tr.EntityDocument(e, ctx)
	require.NoError(t, err)
	assert.Equal(t, doc.Body, again.Body)
}

func TestEntityDocumentFallsBackToSlugifiedType(t *testing.T) {
	ctx := mustContext(t, testOptions())
	doc, err := New(Thresholds{}).EntityDocument(types.Entity{Text: "Voyager 1", Type: "Space Probe"}, ctx)
	require.NoError(t, err)
	assert.Equal(t, "entities/space-probe/voyager-1", doc.KBID)
}
