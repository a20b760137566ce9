// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/kbforge/internal/extract"
	"github.com/pdiddy/kbforge/internal/graph"
	"github.com/pdiddy/kbforge/internal/kb"
	"github.com/pdiddy/kbforge/internal/knowledge"
	"github.com/pdiddy/kbforge/internal/telemetry"
	"github.com/pdiddy/kbforge/pkg/types"
)

var fixedTime = time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC)

const (
	graphTheoryID = "concepts/general/graph-theory"
	vertexID      = "concepts/general/vertex"
)

// termRegistry returns one routine that reports "Graph Theory" with a
// frequency equal to the number of times "graph" appears in the text, and
// "Vertex" as a related concept.
func termRegistry(calls *atomic.Int32) *extract.FuncRegistry {
	reg := extract.NewFuncRegistry()
	reg.Register("terms", func(_ context.Context, text string, _ map[string]any) (*types.ExtractionResult, error) {
		calls.Add(1)
		return &types.ExtractionResult{Concepts: []types.Concept{
			{
				Term:         "Graph Theory",
				Frequency:    strings.Count(strings.ToLower(text), "graph"),
				Definition:   "Graph theory is the study of graphs made of vertices and edges.",
				RelatedTerms: []string{"Vertex"},
			},
			{
				Term:       "Vertex",
				Frequency:  1,
				Definition: "A vertex is a node joined to other vertices by edges.",
			},
		}}, nil
	})
	return reg
}

func testConfig() types.PipelineConfig {
	return types.DefaultPipelineConfig()
}

func newOrchestrator(t *testing.T, cfg types.PipelineConfig, reg extract.Registry, opts ...Option) *Orchestrator {
	t.Helper()
	base := []Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithClock(func() time.Time { return fixedTime }),
	}
	o, err := New(cfg, reg, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(o.Close)
	return o
}

func writeSource(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func testDoc(id string, related ...string) *types.KBDocument {
	slug := id[strings.LastIndex(id, "/")+1:]
	return &types.KBDocument{
		KBID:            id,
		Slug:            slug,
		Title:           strings.ToUpper(slug),
		RelatedConcepts: related,
		Metadata: types.KBMetadata{
			DocType:      types.DocConcept,
			PrimaryTopic: "general",
			Tags:         []string{"general", "concept"},
			DC:           types.DublinCore{Title: strings.ToUpper(slug), Identifier: id},
			IA:           types.IAMetadata{FindabilityScore: 0.6, Completeness: 0.6, Depth: 1},
			Sources:      []string{"notes.md"},
		},
		Body: "# " + strings.ToUpper(slug) + "\n\nA document body long enough to clear the minimum length.\n",
	}
}

func TestProcessWritesDocuments(t *testing.T) {
	var calls atomic.Int32
	kbRoot := t.TempDir()
	src := writeSource(t, t.TempDir(), "notes.md", "# Notes\n\nGraph theory studies graphs. A graph has edges.\n")

	o := newOrchestrator(t, testConfig(), termRegistry(&calls))
	res, err := o.Process(context.Background(), src, kbRoot)
	require.NoError(t, err)

	assert.True(t, res.Success())
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, OpProcess, res.Operation)
	assert.Equal(t, int32(1), calls.Load())

	var names []string
	for _, s := range res.Stages {
		names = append(names, s.Stage)
	}
	assert.Equal(t, []string{"analysis", "extraction", "transformation", "organization", "linking", "quality"}, names)

	assert.Equal(t, 1.0, res.Metrics["analysis.files"])
	assert.Equal(t, 1.0, res.Metrics["analysis.segments"])
	assert.Equal(t, 2.0, res.Metrics["organization.documents"])
	assert.Equal(t, 2.0, res.Metrics["organization.written"])

	store := kb.NewStore(kbRoot)
	doc, err := store.Read(graphTheoryID)
	require.NoError(t, err)
	assert.Contains(t, doc.Body, "**Frequency:** 3")
	assert.Equal(t, []string{vertexID}, doc.RelatedConcepts)
	assert.Equal(t, []string{filepath.ToSlash(src)}, doc.Metadata.Sources)

	vertex, err := store.Read(vertexID)
	require.NoError(t, err)
	assert.Equal(t, []string{graphTheoryID}, vertex.Metadata.IA.RelatedByTopic)
	assert.Len(t, res.Fixes, 1)
}

func TestProcessDirectorySource(t *testing.T) {
	var calls atomic.Int32
	dir := t.TempDir()
	writeSource(t, dir, "b.md", "graph one")
	writeSource(t, dir, "a.txt", "graph two")
	writeSource(t, dir, "skip.pdf", "graph three")
	writeSource(t, dir, ".hidden/c.md", "graph four")

	o := newOrchestrator(t, testConfig(), termRegistry(&calls))
	res, err := o.Process(context.Background(), dir, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 2.0, res.Metrics["analysis.files"])

	doc, err := kb.NewStore(res.KBRoot).Read(graphTheoryID)
	require.NoError(t, err)
	assert.Contains(t, doc.Body, "**Frequency:** 2")
}

func TestProcessMissingSource(t *testing.T) {
	var calls atomic.Int32
	o := newOrchestrator(t, testConfig(), termRegistry(&calls))

	_, err := o.Process(context.Background(), filepath.Join(t.TempDir(), "missing.md"), t.TempDir())
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrNotFound))
	assert.Zero(t, calls.Load())
}

func TestProcessEmptyDirectory(t *testing.T) {
	var calls atomic.Int32
	o := newOrchestrator(t, testConfig(), termRegistry(&calls))

	_, err := o.Process(context.Background(), t.TempDir(), t.TempDir())
	assert.ErrorIs(t, err, types.ErrNotFound)
	assert.Zero(t, calls.Load())
}

func TestProcessRequiresKBRoot(t *testing.T) {
	var calls atomic.Int32
	o := newOrchestrator(t, testConfig(), termRegistry(&calls))

	_, err := o.Process(context.Background(), "notes.md", "")
	assert.ErrorIs(t, err, types.ErrConfig)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Transformation.FindabilityBaseline = 1.5
	_, err := New(cfg, extract.NewFuncRegistry())
	assert.ErrorIs(t, err, types.ErrConfig)
}

func TestUpdateOverwritesInPlace(t *testing.T) {
	var calls atomic.Int32
	kbRoot := t.TempDir()
	src := writeSource(t, t.TempDir(), "notes.md", "Graph theory studies graphs. A graph has edges.")

	o := newOrchestrator(t, testConfig(), termRegistry(&calls))
	_, err := o.Process(context.Background(), src, kbRoot)
	require.NoError(t, err)

	store := kb.NewStore(kbRoot)
	path, err := store.Path(graphTheoryID)
	require.NoError(t, err)
	before, err := store.Read(graphTheoryID)
	require.NoError(t, err)
	assert.Contains(t, before.Body, "**Frequency:** 3")

	// Another document points at graph-theory; its backlink must survive.
	before.AddBacklink("concepts/general/other")
	_, err = store.Write(before)
	require.NoError(t, err)

	writeSource(t, filepath.Dir(src), "notes.md", strings.Repeat("graph ", 7))
	res, err := o.Update(context.Background(), graphTheoryID, kbRoot, "")
	require.NoError(t, err)
	assert.Equal(t, OpUpdate, res.Operation)
	assert.Equal(t, 1.0, res.Metrics["update.updated"])
	assert.Equal(t, 1.0, res.Metrics["update.ignored"])

	after, err := store.Read(graphTheoryID)
	require.NoError(t, err)
	assert.Equal(t, graphTheoryID, after.KBID)
	assert.Contains(t, after.Body, "**Frequency:** 7")
	assert.Contains(t, after.Metadata.IA.RelatedByTopic, "concepts/general/other")

	summary, ok := res.Stages[3].Metrics["updated"]
	require.True(t, ok)
	assert.Equal(t, 1.0, summary)

	entries, err := store.Walk()
	require.NoError(t, err)
	var paths []string
	for _, e := range entries {
		paths = append(paths, e.Path)
	}
	assert.Contains(t, paths, path)
	assert.Len(t, entries, 2)
}

func TestUpdateDropsStaleRelations(t *testing.T) {
	reg := extract.NewFuncRegistry()
	reg.Register("terms", func(_ context.Context, text string, _ map[string]any) (*types.ExtractionResult, error) {
		c := types.Concept{Term: "Graph Theory", Frequency: 1, Definition: "Graph theory is the study of graphs."}
		if strings.Contains(text, "vertex") {
			c.RelatedTerms = []string{"Vertex"}
		}
		return &types.ExtractionResult{Concepts: []types.Concept{
			c,
			{Term: "Vertex", Frequency: 1, Definition: "A vertex is a node joined to other vertices by edges."},
		}}, nil
	})

	kbRoot := t.TempDir()
	src := writeSource(t, t.TempDir(), "notes.md", "graph theory and the vertex")
	o := newOrchestrator(t, testConfig(), reg)
	_, err := o.Process(context.Background(), src, kbRoot)
	require.NoError(t, err)

	store := kb.NewStore(kbRoot)
	before, err := store.Read(graphTheoryID)
	require.NoError(t, err)
	require.Equal(t, []string{vertexID}, before.RelatedConcepts)
	require.Contains(t, before.Body, "Related Terms")

	writeSource(t, filepath.Dir(src), "notes.md", "graph theory alone")
	_, err = o.Update(context.Background(), graphTheoryID, kbRoot, "")
	require.NoError(t, err)

	after, err := store.Read(graphTheoryID)
	require.NoError(t, err)
	assert.Empty(t, after.RelatedConcepts)
	assert.NotContains(t, after.Body, "Related Terms")
	assert.Less(t, after.Metadata.IA.FindabilityScore, before.Metadata.IA.FindabilityScore)
	assert.InDelta(t, testConfig().Transformation.FindabilityBaseline, after.Metadata.IA.FindabilityScore, 1e-9)
}

func TestUpdateMissingDocument(t *testing.T) {
	var calls atomic.Int32
	o := newOrchestrator(t, testConfig(), termRegistry(&calls))

	_, err := o.Update(context.Background(), "concepts/general/nothing", t.TempDir(), "")
	assert.ErrorIs(t, err, types.ErrNotFound)
	assert.Zero(t, calls.Load())
}

func TestUpdateMissingSource(t *testing.T) {
	var calls atomic.Int32
	kbRoot := t.TempDir()
	_, err := kb.NewStore(kbRoot).Write(testDoc("concepts/general/a"))
	require.NoError(t, err)

	o := newOrchestrator(t, testConfig(), termRegistry(&calls))
	_, err = o.Update(context.Background(), "concepts/general/a", kbRoot, filepath.Join(kbRoot, "gone.md"))
	assert.ErrorIs(t, err, types.ErrNotFound)
	assert.Zero(t, calls.Load())
}

func TestUpdateTargetNoLongerProduced(t *testing.T) {
	var calls atomic.Int32
	kbRoot := t.TempDir()
	src := writeSource(t, t.TempDir(), "notes.md", "graph")
	_, err := kb.NewStore(kbRoot).Write(testDoc("concepts/general/unrelated"))
	require.NoError(t, err)

	o := newOrchestrator(t, testConfig(), termRegistry(&calls))
	_, err = o.Update(context.Background(), "concepts/general/unrelated", kbRoot, src)
	assert.ErrorIs(t, err, types.ErrNotFound)
	assert.False(t, kb.NewStore(kbRoot).Exists(graphTheoryID))
}

func TestCollisionStrategies(t *testing.T) {
	src := writeSource(t, t.TempDir(), "notes.md", "graph")

	t.Run("replace", func(t *testing.T) {
		var calls atomic.Int32
		kbRoot := t.TempDir()
		o := newOrchestrator(t, testConfig(), termRegistry(&calls))
		_, err := o.Process(context.Background(), src, kbRoot)
		require.NoError(t, err)

		res, err := o.Process(context.Background(), src, kbRoot)
		require.NoError(t, err)
		assert.Equal(t, 2.0, res.Metrics["organization.replaced"])
		assert.Equal(t, 0.0, res.Metrics["organization.written"])

		vertex, err := kb.NewStore(kbRoot).Read(vertexID)
		require.NoError(t, err)
		assert.Equal(t, []string{graphTheoryID}, vertex.Metadata.IA.RelatedByTopic)
	})

	t.Run("skip", func(t *testing.T) {
		var calls atomic.Int32
		kbRoot := t.TempDir()
		store := kb.NewStore(kbRoot)
		existing := testDoc(graphTheoryID)
		_, err := store.Write(existing)
		require.NoError(t, err)

		cfg := testConfig()
		cfg.Organization.CollisionStrategy = types.CollisionSkip
		o := newOrchestrator(t, cfg, termRegistry(&calls))
		res, err := o.Process(context.Background(), src, kbRoot)
		require.NoError(t, err)
		assert.Equal(t, 1.0, res.Metrics["organization.skipped"])
		assert.Equal(t, 1.0, res.Metrics["organization.written"])
		assert.Contains(t, strings.Join(res.Warnings, "\n"), graphTheoryID+" exists, skipped")

		kept, err := store.Read(graphTheoryID)
		require.NoError(t, err)
		assert.Equal(t, existing.Title, kept.Title)
	})

	t.Run("error", func(t *testing.T) {
		var calls atomic.Int32
		kbRoot := t.TempDir()
		_, err := kb.NewStore(kbRoot).Write(testDoc(graphTheoryID))
		require.NoError(t, err)

		cfg := testConfig()
		cfg.Organization.CollisionStrategy = types.CollisionError
		o := newOrchestrator(t, cfg, termRegistry(&calls))
		res, err := o.Process(context.Background(), src, kbRoot)
		assert.ErrorIs(t, err, types.ErrCollision)
		require.NotNil(t, res)
		assert.Equal(t, "organization", res.Stages[len(res.Stages)-1].Stage)
	})
}

func TestExtractionFailures(t *testing.T) {
	src := writeSource(t, t.TempDir(), "notes.md", "graph")
	reg := termRegistry(new(atomic.Int32))
	reg.Register("broken", func(context.Context, string, map[string]any) (*types.ExtractionResult, error) {
		return nil, errors.New("boom")
	})

	o := newOrchestrator(t, testConfig(), reg)
	res, err := o.Process(context.Background(), src, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.Metrics["extraction.failed"])
	assert.Contains(t, strings.Join(res.Warnings, "\n"), "extractor broken failed: boom")

	cfg := testConfig()
	cfg.Extraction.FailOnError = true
	strict := newOrchestrator(t, cfg, reg)
	_, err = strict.Process(context.Background(), src, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stage extraction")
}

func TestProcessSelectedExtractors(t *testing.T) {
	var calls atomic.Int32
	src := writeSource(t, t.TempDir(), "notes.md", "graph")
	reg := termRegistry(&calls)
	reg.Register("broken", func(context.Context, string, map[string]any) (*types.ExtractionResult, error) {
		return nil, errors.New("boom")
	})

	o := newOrchestrator(t, testConfig(), reg)
	res, err := o.Process(context.Background(), src, t.TempDir(), "terms")
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.Metrics["extraction.requested"])
	assert.Zero(t, res.Metrics["extraction.failed"])
}

func TestTransformationStrictness(t *testing.T) {
	src := writeSource(t, t.TempDir(), "notes.md", "graph")
	reg := extract.NewFuncRegistry()
	reg.Register("terms", func(context.Context, string, map[string]any) (*types.ExtractionResult, error) {
		return &types.ExtractionResult{Concepts: []types.Concept{{Term: "  "}, {Term: "Vertex", Frequency: 1}}}, nil
	})

	o := newOrchestrator(t, testConfig(), reg)
	res, err := o.Process(context.Background(), src, t.TempDir())
	require.NoError(t, err)
	assert.False(t, res.Success())
	assert.Len(t, res.Errors, 1)
	assert.Equal(t, 1.0, res.Metrics["transformation.failed"])
	assert.Equal(t, 1.0, res.Metrics["organization.written"])

	cfg := testConfig()
	cfg.Transformation.Strict = true
	strict := newOrchestrator(t, cfg, reg)
	kbRoot := t.TempDir()
	_, err = strict.Process(context.Background(), src, kbRoot)
	assert.ErrorIs(t, err, types.ErrQuality)
	assert.False(t, kb.NewStore(kbRoot).Exists(vertexID))
}

func TestQualityFailOnViolation(t *testing.T) {
	src := writeSource(t, t.TempDir(), "notes.md", "graph")
	cfg := testConfig()
	cfg.Quality.MinTags = 5
	cfg.Quality.FailOnViolation = true

	o := newOrchestrator(t, cfg, termRegistry(new(atomic.Int32)))
	res, err := o.Process(context.Background(), src, t.TempDir())
	assert.ErrorIs(t, err, types.ErrQuality)
	assert.Equal(t, 2.0, res.Metrics["quality.under_tagged"])
}

func TestPipelineComposition(t *testing.T) {
	cfg := testConfig()
	cfg.Linking = types.LinkingConfig{}
	o := newOrchestrator(t, cfg, extract.NewFuncRegistry())
	assert.Equal(t, []string{"analysis", "extraction", "transformation", "organization", "quality"}, o.ProcessPipeline().Names())
	assert.Equal(t, []string{"analysis", "extraction", "transformation", "update", "quality"}, o.UpdatePipeline().Names())
	assert.Equal(t, []string{"linking", "review"}, o.ImprovePipeline().Names())

	cfg.Linking.BuildConceptGraph = true
	o = newOrchestrator(t, cfg, extract.NewFuncRegistry())
	assert.Equal(t, []string{"analysis", "extraction", "transformation", "organization", "linking", "quality"}, o.ProcessPipeline().Names())
}

func TestImproveAddsBacklinkOnce(t *testing.T) {
	kbRoot := t.TempDir()
	store := kb.NewStore(kbRoot)
	a := testDoc("concepts/general/a", "concepts/general/b")
	b := testDoc("concepts/general/b")
	for _, d := range []*types.KBDocument{a, b} {
		_, err := store.Write(d)
		require.NoError(t, err)
	}

	o := newOrchestrator(t, testConfig(), extract.NewFuncRegistry())
	res, err := o.Improve(context.Background(), kbRoot)
	require.NoError(t, err)
	require.Len(t, res.Fixes, 1)
	assert.Equal(t, Fix{KBID: "concepts/general/b", Kind: FixBacklink, Detail: "added back-reference from concepts/general/a"}, res.Fixes[0])

	got, err := store.Read("concepts/general/b")
	require.NoError(t, err)
	assert.Equal(t, []string{"concepts/general/a"}, got.Metadata.IA.RelatedByTopic)
	assert.True(t, fixedTime.Equal(got.Metadata.IA.LastUpdated))

	again, err := o.Improve(context.Background(), kbRoot)
	require.NoError(t, err)
	assert.Empty(t, again.Fixes)

	got, err = store.Read("concepts/general/b")
	require.NoError(t, err)
	assert.Equal(t, []string{"concepts/general/a"}, got.Metadata.IA.RelatedByTopic)
}

func TestImproveReportsGaps(t *testing.T) {
	kbRoot := t.TempDir()
	store := kb.NewStore(kbRoot)
	thin := testDoc("concepts/general/thin")
	thin.Metadata.Tags = []string{"general"}
	_, err := store.Write(thin)
	require.NoError(t, err)
	writeSource(t, kbRoot, "concepts/general/broken.md", "no front matter here")

	o := newOrchestrator(t, testConfig(), extract.NewFuncRegistry())
	res, err := o.Improve(context.Background(), kbRoot)
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.Metrics["review.under_tagged"])
	assert.Equal(t, 1.0, res.Metrics["review.invalid"])
	assert.Equal(t, 1.0, res.Metrics["linking.malformed"])

	raw, err := os.ReadFile(filepath.Join(kbRoot, "concepts/general/broken.md"))
	require.NoError(t, err)
	assert.Equal(t, "no front matter here", string(raw))
}

func TestImproveSkipsInvalidDocuments(t *testing.T) {
	kbRoot := t.TempDir()
	store := kb.NewStore(kbRoot)
	for _, d := range []*types.KBDocument{
		testDoc("concepts/general/a", "concepts/general/b", "concepts/general/c"),
		testDoc("concepts/general/c"),
	} {
		_, err := store.Write(d)
		require.NoError(t, err)
	}
	b := testDoc("concepts/general/b")
	b.Slug = ""
	b.Metadata.IA.Depth = 0
	raw, err := kb.Marshal(b)
	require.NoError(t, err)
	bPath := writeSource(t, kbRoot, "concepts/general/b.md", string(raw))

	o := newOrchestrator(t, testConfig(), extract.NewFuncRegistry())
	res, err := o.Improve(context.Background(), kbRoot)
	require.NoError(t, err)
	require.Len(t, res.Fixes, 1)
	assert.Equal(t, "concepts/general/c", res.Fixes[0].KBID)
	assert.Equal(t, 1.0, res.Metrics["linking.malformed"])
	assert.Equal(t, 1.0, res.Metrics["linking.dangling"])
	assert.Equal(t, 1.0, res.Metrics["review.invalid"])

	c, err := store.Read("concepts/general/c")
	require.NoError(t, err)
	assert.Equal(t, []string{"concepts/general/a"}, c.Metadata.IA.RelatedByTopic)

	unchanged, err := os.ReadFile(bPath)
	require.NoError(t, err)
	assert.Equal(t, raw, unchanged)

	report, err := o.QualityReport(context.Background(), kbRoot)
	require.NoError(t, err)
	assert.Equal(t, []string{bPath}, report.Gaps.Invalid)
	assert.Zero(t, report.Gaps.MissingBacklinks)
}

func TestImproveSkipsMisplacedDocuments(t *testing.T) {
	kbRoot := t.TempDir()
	store := kb.NewStore(kbRoot)
	_, err := store.Write(testDoc("concepts/general/a", "concepts/general/b"))
	require.NoError(t, err)
	raw, err := kb.Marshal(testDoc("concepts/general/b"))
	require.NoError(t, err)
	writeSource(t, kbRoot, "concepts/general/renamed.md", string(raw))

	o := newOrchestrator(t, testConfig(), extract.NewFuncRegistry())
	res, err := o.Improve(context.Background(), kbRoot)
	require.NoError(t, err)
	assert.Empty(t, res.Fixes)
	assert.Equal(t, 1.0, res.Metrics["linking.malformed"])
	assert.False(t, store.Exists("concepts/general/b"))
}

func TestImproveMissingRoot(t *testing.T) {
	o := newOrchestrator(t, testConfig(), extract.NewFuncRegistry())
	_, err := o.Improve(context.Background(), filepath.Join(t.TempDir(), "nope"))
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestQualityReportToleratesMalformed(t *testing.T) {
	kbRoot := t.TempDir()
	store := kb.NewStore(kbRoot)
	a := testDoc("concepts/general/a", "concepts/general/b")
	a.Metadata.IA.Completeness = 0.4
	b := testDoc("concepts/general/b")
	b.Metadata.IA.Completeness = 0.8
	for _, d := range []*types.KBDocument{a, b} {
		_, err := store.Write(d)
		require.NoError(t, err)
	}
	bad := writeSource(t, kbRoot, "concepts/general/bad.md", "# just a heading\n")

	o := newOrchestrator(t, testConfig(), extract.NewFuncRegistry())
	report, err := o.QualityReport(context.Background(), kbRoot)
	require.NoError(t, err)

	assert.Equal(t, 3, report.Documents.Total)
	assert.Equal(t, 2, report.Documents.Valid)
	assert.Equal(t, 1, report.Documents.Invalid)
	assert.Equal(t, map[string]int{"concept": 2}, report.Documents.ByType)
	assert.Equal(t, Stats{Mean: 0.6, Min: 0.4, Max: 0.8}, report.Metrics.Completeness)
	assert.Equal(t, 1, report.Gaps.LowCompleteness)
	assert.Equal(t, 1, report.Gaps.MissingBacklinks)
	assert.Equal(t, []string{bad}, report.Gaps.Invalid)

	var buf bytes.Buffer
	require.NoError(t, report.WriteJSON(&buf))
	var decoded map[string]map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Contains(t, decoded["metrics"], "completeness")
	assert.Contains(t, decoded["gaps"], "missing_backlinks")
}

func TestExportGraphFormatsAgree(t *testing.T) {
	kbRoot := t.TempDir()
	store := kb.NewStore(kbRoot)
	a := testDoc("concepts/general/a", "concepts/general/b", "concepts/general/ghost")
	b := testDoc("concepts/general/b")
	b.AddBacklink(a.KBID)
	for _, d := range []*types.KBDocument{a, b} {
		_, err := store.Write(d)
		require.NoError(t, err)
	}
	o := newOrchestrator(t, testConfig(), extract.NewFuncRegistry())

	var jsonOut bytes.Buffer
	g, err := o.ExportGraph(context.Background(), kbRoot, graph.FormatJSON, &jsonOut)
	require.NoError(t, err)
	assert.Len(t, g.Nodes, 3)
	assert.Len(t, g.Edges, 3)

	var decoded struct {
		Concepts []json.RawMessage `json:"concepts"`
		Edges    []json.RawMessage `json:"edges"`
	}
	require.NoError(t, json.Unmarshal(jsonOut.Bytes(), &decoded))

	var xmlOut bytes.Buffer
	_, err = o.ExportGraph(context.Background(), kbRoot, graph.FormatGraphML, &xmlOut)
	require.NoError(t, err)
	var gml struct {
		Graph struct {
			Nodes []struct {
				ID string `xml:"id,attr"`
			} `xml:"node"`
			Edges []struct {
				ID string `xml:"id,attr"`
			} `xml:"edge"`
		} `xml:"graph"`
	}
	require.NoError(t, xml.Unmarshal(xmlOut.Bytes(), &gml))

	assert.Len(t, decoded.Concepts, len(gml.Graph.Nodes))
	assert.Len(t, decoded.Edges, len(gml.Graph.Edges))
}

func TestLinkingBuildsGraphFile(t *testing.T) {
	src := writeSource(t, t.TempDir(), "notes.md", "graph")
	kbRoot := t.TempDir()
	cfg := testConfig()
	cfg.Linking.BuildConceptGraph = true

	o := newOrchestrator(t, cfg, termRegistry(new(atomic.Int32)))
	res, err := o.Process(context.Background(), src, kbRoot)
	require.NoError(t, err)
	assert.Equal(t, 2.0, res.Metrics["linking.nodes"])
	assert.Equal(t, 2.0, res.Metrics["linking.edges"])
	assert.FileExists(t, filepath.Join(kbRoot, knowledge.IndexDir, graphFile))
}

func TestIndexGenerationSyncsCatalog(t *testing.T) {
	src := writeSource(t, t.TempDir(), "notes.md", "graph")
	kbRoot := t.TempDir()
	cfg := testConfig()
	cfg.Organization.IndexGeneration = true

	o := newOrchestrator(t, cfg, termRegistry(new(atomic.Int32)))
	res, err := o.Process(context.Background(), src, kbRoot)
	require.NoError(t, err)
	assert.Equal(t, 2.0, res.Metrics["organization.indexed"])

	catalog, err := knowledge.NewStore(kbRoot, 0)
	require.NoError(t, err)
	defer catalog.Close()
	n, err := catalog.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestMetricsOutputs(t *testing.T) {
	src := writeSource(t, t.TempDir(), "notes.md", "graph")
	out := t.TempDir()
	cfg := testConfig()
	cfg.Monitoring.MetricsOutput = filepath.Join(out, "run", "metrics.json")
	cfg.Monitoring.PrometheusTextfile = filepath.Join(out, "kbforge.prom")

	m := telemetry.New()
	o := newOrchestrator(t, cfg, termRegistry(new(atomic.Int32)), WithMetrics(m))
	res, err := o.Process(context.Background(), src, t.TempDir())
	require.NoError(t, err)

	data, err := os.ReadFile(cfg.Monitoring.MetricsOutput)
	require.NoError(t, err)
	var flat map[string]any
	require.NoError(t, json.Unmarshal(data, &flat))
	assert.Equal(t, res.RunID, flat["run_id"])
	assert.Equal(t, "process", flat["operation"])
	assert.Equal(t, 1.0, flat["analysis.segments"])
	assert.Equal(t, 2.0, flat["organization.documents"])

	prom, err := os.ReadFile(cfg.Monitoring.PrometheusTextfile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), `kbforge_runs_total{operation="process",status="success"} 1`)
}

func TestProgressForwarded(t *testing.T) {
	src := writeSource(t, t.TempDir(), "notes.md", "graph")
	var events atomic.Int32
	o := newOrchestrator(t, testConfig(), termRegistry(new(atomic.Int32)),
		WithProgress(func(extract.ProgressEvent) { events.Add(1) }))

	_, err := o.Process(context.Background(), src, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, int32(3), events.Load())
}

func TestCompleteness(t *testing.T) {
	doc := testDoc("concepts/general/a")
	doc.Metadata.DC.Description = "described"
	doc.Body = strings.Repeat("x", 40)
	assert.Equal(t, 0.7, Completeness(doc, 40))

	doc.Body = strings.Repeat("x", 100)
	assert.Equal(t, 1.0, Completeness(doc, 40))

	doc.Metadata.Tags = nil
	doc.Metadata.Sources = nil
	assert.Equal(t, 0.84, Completeness(doc, 40))

	doc.Body = ""
	assert.Equal(t, 0.24, Completeness(doc, 0))
	doc.Body = "x"
	assert.Equal(t, 0.84, Completeness(doc, 0))
}

func TestSplitSegments(t *testing.T) {
	segs := splitSegments("intro\n# One\nbody one\n## Two\nbody two\n#hashtag line\n")
	require.Len(t, segs, 3)
	assert.Equal(t, "", segs[0].heading)
	assert.Equal(t, "One", segs[1].heading)
	assert.Equal(t, "Two", segs[2].heading)
	assert.Contains(t, segs[2].body, "#hashtag line")

	assert.Empty(t, splitSegments("   \n"))
}
