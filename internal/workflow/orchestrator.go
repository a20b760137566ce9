// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package workflow assembles the knowledge-base pipeline out of ordered
// stages and exposes the operations run against a KB root: process,
// update, improve, quality-report and export-graph.
//
// Stages share one ProcessingContext per run and execute sequentially.
// Only extraction fans out, inside the coordinator. Concurrent runs
// against the same KB root must be serialized by the caller.
package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/pdiddy/kbforge/internal/extract"
	"github.com/pdiddy/kbforge/internal/graph"
	"github.com/pdiddy/kbforge/internal/kb"
	"github.com/pdiddy/kbforge/internal/telemetry"
	"github.com/pdiddy/kbforge/internal/transform"
	"github.com/pdiddy/kbforge/pkg/types"
)

// Operation names.
const (
	OpProcess       = "process"
	OpUpdate        = "update"
	OpImprove       = "improve"
	OpQualityReport = "quality-report"
	OpExportGraph   = "export-graph"
)

// Result is the outcome of one pipeline operation.
type Result struct {
	RunID     string `json:"run_id"`
	Operation string `json:"operation"`
	KBRoot    string `json:"kb_root"`
	Source    string `json:"source,omitempty"`

	Stages []StageResult `json:"stages"`

	// Metrics holds every stage metric under "<stage>.<key>".
	Metrics map[string]float64 `json:"metrics"`

	Warnings []string `json:"warnings,omitempty"`
	Errors   []string `json:"errors,omitempty"`
	Fixes    []Fix    `json:"fixes,omitempty"`

	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// Success reports whether no stage recorded a per-document error.
func (r *Result) Success() bool {
	return len(r.Errors) == 0
}

// Duration is the wall time of the run.
func (r *Result) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}

func (r *Result) add(sr StageResult) {
	r.Stages = append(r.Stages, sr)
	for k, v := range sr.Metrics {
		r.Metrics[sr.Stage+"."+k] = v
	}
	for _, w := range sr.Warnings {
		r.Warnings = append(r.Warnings, sr.Stage+": "+w)
	}
	for _, e := range sr.Errors {
		r.Errors = append(r.Errors, sr.Stage+": "+e)
	}
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger. Nil keeps slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics records runs into m.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithProgress forwards extraction lifecycle events to fn.
func WithProgress(fn extract.ProgressFunc) Option {
	return func(o *Orchestrator) { o.progress = fn }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// Orchestrator runs operations against KB roots using one validated
// configuration. The extraction cache lives as long as the orchestrator.
type Orchestrator struct {
	cfg         types.PipelineConfig
	coordinator *extract.Coordinator
	transformer *transform.Transformer
	metrics     *telemetry.Metrics
	progress    extract.ProgressFunc
	logger      *slog.Logger
	now         func() time.Time
}

// New validates cfg and builds an orchestrator over reg.
func New(cfg types.PipelineConfig, reg extract.Registry, opts ...Option) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if reg == nil {
		return nil, types.ConfigError("registry", "must not be nil")
	}

	o := &Orchestrator{
		cfg:    cfg,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}

	copts := extract.OptionsFromConfig(cfg.Extraction)
	copts.Progress = o.progress
	copts.Logger = o.logger
	o.coordinator = extract.NewCoordinator(reg, copts)
	o.transformer = transform.New(transform.ThresholdsFromConfig(cfg.Quality), transform.WithClock(o.now))
	return o, nil
}

// Close drops the extraction cache.
func (o *Orchestrator) Close() {
	o.coordinator.Close()
}

// Config returns the configuration the orchestrator runs with.
func (o *Orchestrator) Config() types.PipelineConfig {
	return o.cfg
}

// ProcessPipeline returns the stages process runs, in order.
func (o *Orchestrator) ProcessPipeline() *Pipeline {
	stages := []Stage{
		&analysisStage{extensions: o.cfg.Analysis.Extensions},
		o.extractionStage(),
		o.transformationStage(),
		&organizationStage{cfg: o.cfg.Organization, metrics: o.metrics, logger: o.logger},
	}
	if o.cfg.Linking.Enabled() {
		stages = append(stages, o.linkingStage(o.cfg.Linking.GenerateBacklinks))
	}
	stages = append(stages, &qualityStage{cfg: o.cfg.Quality, metrics: o.metrics})
	return o.pipeline(stages)
}

// UpdatePipeline returns the stages update runs, in order.
func (o *Orchestrator) UpdatePipeline() *Pipeline {
	stages := []Stage{
		&analysisStage{extensions: o.cfg.Analysis.Extensions},
		o.extractionStage(),
		o.transformationStage(),
		&updateStage{metrics: o.metrics},
	}
	if o.cfg.Linking.Enabled() {
		stages = append(stages, o.linkingStage(o.cfg.Linking.GenerateBacklinks))
	}
	stages = append(stages, &qualityStage{cfg: o.cfg.Quality, metrics: o.metrics})
	return o.pipeline(stages)
}

// ImprovePipeline returns the stages improve runs. Backlink repair is
// always on here.
func (o *Orchestrator) ImprovePipeline() *Pipeline {
	return o.pipeline([]Stage{
		o.linkingStage(true),
		&reviewStage{cfg: o.cfg.Quality, metrics: o.metrics},
	})
}

func (o *Orchestrator) pipeline(stages []Stage) *Pipeline {
	return &Pipeline{stages: stages, metrics: o.metrics, logger: o.logger, now: o.now}
}

func (o *Orchestrator) extractionStage() Stage {
	return &extractionStage{
		coordinator: o.coordinator,
		tools:       o.cfg.Extraction.Tools,
		failOnError: o.cfg.Extraction.FailOnError,
		metrics:     o.metrics,
	}
}

func (o *Orchestrator) transformationStage() Stage {
	return &transformationStage{
		cfg:         o.cfg.Transformation,
		transformer: o.transformer,
		metrics:     o.metrics,
		now:         o.now,
	}
}

func (o *Orchestrator) linkingStage(backlinks bool) Stage {
	return &linkingStage{backlinks: backlinks, graph: o.cfg.Linking.BuildConceptGraph, now: o.now}
}

// Process runs the full pipeline over source and writes documents under
// kbRoot. Extractors, when given, replaces the configured selection.
func (o *Orchestrator) Process(ctx context.Context, source, kbRoot string, extractors ...string) (*Result, error) {
	if err := requireRoot(kbRoot); err != nil {
		return nil, err
	}
	if err := requireSource(source); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(kbRoot, 0o755); err != nil {
		return nil, fmt.Errorf("creating KB root: %w", err)
	}

	pc := o.newContext(source, kbRoot)
	pc.Extractors = extractors
	res := o.newResult(OpProcess, pc)
	err := o.ProcessPipeline().Run(ctx, pc, res)
	return o.finish(res, pc, err)
}

// Update re-derives the document kbID from its source and overwrites it in
// place. An empty source uses the first source the document records.
func (o *Orchestrator) Update(ctx context.Context, kbID, kbRoot, source string) (*Result, error) {
	if err := requireRoot(kbRoot); err != nil {
		return nil, err
	}
	store := kb.NewStore(kbRoot)
	existing, err := store.Read(kbID)
	if err != nil {
		return nil, err
	}
	if source == "" {
		if len(existing.Metadata.Sources) == 0 {
			return nil, types.ConfigError("source", "%s records no source, pass one explicitly", kbID)
		}
		source = existing.Metadata.Sources[0]
	}
	if err := requireSource(source); err != nil {
		return nil, err
	}

	pc := o.newContext(source, kbRoot)
	pc.Update = &UpdateScope{KBID: existing.KBID, Existing: existing}
	res := o.newResult(OpUpdate, pc)
	err = o.UpdatePipeline().Run(ctx, pc, res)
	return o.finish(res, pc, err)
}

// Improve repairs missing backlinks across the tree and reports the gaps
// it cannot fix. Running it twice applies no fixes the second time.
func (o *Orchestrator) Improve(ctx context.Context, kbRoot string) (*Result, error) {
	if err := requireRoot(kbRoot); err != nil {
		return nil, err
	}
	pc := o.newContext("", kbRoot)
	res := o.newResult(OpImprove, pc)
	err := o.ImprovePipeline().Run(ctx, pc, res)
	return o.finish(res, pc, err)
}

// QualityReport scores every document under kbRoot. Malformed documents
// are reported under gaps.invalid rather than failing the report.
func (o *Orchestrator) QualityReport(ctx context.Context, kbRoot string) (*QualityReport, error) {
	if err := requireRoot(kbRoot); err != nil {
		return nil, err
	}
	entries, err := kb.NewStore(kbRoot).Walk()
	if err != nil {
		o.metrics.Run(OpQualityReport, false)
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report := buildReport(entries, o.cfg.Quality)
	o.metrics.SetGaps(report.Gaps.Map())
	o.metrics.Run(OpQualityReport, true)
	o.writeTextfile()
	o.logger.Info("quality report", "kb_root", kbRoot,
		"documents", report.Documents.Total, "invalid", report.Documents.Invalid)
	return report, nil
}

// ExportGraph builds the concept graph for kbRoot and writes it to w.
func (o *Orchestrator) ExportGraph(ctx context.Context, kbRoot string, format graph.Format, w io.Writer) (*graph.Graph, error) {
	if err := requireRoot(kbRoot); err != nil {
		return nil, err
	}
	entries, err := kb.NewStore(kbRoot).Walk()
	if err != nil {
		o.metrics.Run(OpExportGraph, false)
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g := graph.Build(entries)
	if err := graph.Write(w, g, format); err != nil {
		o.metrics.Run(OpExportGraph, false)
		return nil, err
	}
	o.metrics.Run(OpExportGraph, true)
	o.logger.Info("graph exported", "format", string(format), "nodes", len(g.Nodes), "edges", len(g.Edges))
	return g, nil
}

func (o *Orchestrator) newContext(source, kbRoot string) *ProcessingContext {
	return &ProcessingContext{
		RunID:      uuid.NewString(),
		SourcePath: source,
		KBRoot:     kbRoot,
		Extra:      map[string]any{},
		store:      kb.NewStore(kbRoot),
	}
}

func (o *Orchestrator) newResult(op string, pc *ProcessingContext) *Result {
	o.logger.Info("run starting", "operation", op, "run_id", pc.RunID, "kb_root", pc.KBRoot)
	return &Result{
		RunID:     pc.RunID,
		Operation: op,
		KBRoot:    pc.KBRoot,
		Source:    pc.SourcePath,
		Metrics:   map[string]float64{},
		StartedAt: o.now(),
	}
}

// finish stamps the result and writes the configured metrics outputs. An
// output failure becomes a warning so it never masks the run's own error.
func (o *Orchestrator) finish(res *Result, pc *ProcessingContext, runErr error) (*Result, error) {
	res.Fixes = pc.Fixes
	res.CompletedAt = o.now()
	o.metrics.Run(res.Operation, runErr == nil && res.Success())

	if path := o.cfg.Monitoring.MetricsOutput; path != "" {
		if err := writeMetricsJSON(path, res); err != nil {
			o.logger.Warn("metrics output failed", "path", path, "error", err)
			res.Warnings = append(res.Warnings, err.Error())
		}
	}
	if err := o.writeTextfile(); err != nil {
		res.Warnings = append(res.Warnings, err.Error())
	}

	o.logger.Info("run complete", "operation", res.Operation, "run_id", res.RunID,
		"duration", res.Duration(), "warnings", len(res.Warnings), "errors", len(res.Errors))
	return res, runErr
}

func (o *Orchestrator) writeTextfile() error {
	path := o.cfg.Monitoring.PrometheusTextfile
	if err := o.metrics.WriteTextfile(path); err != nil {
		o.logger.Warn("prometheus textfile failed", "path", path, "error", err)
		return err
	}
	return nil
}

// writeMetricsJSON writes a flat key/value map: the dotted stage metrics
// plus run identification.
func writeMetricsJSON(path string, res *Result) error {
	flat := make(map[string]any, len(res.Metrics)+4)
	for k, v := range res.Metrics {
		flat[k] = v
	}
	flat["run_id"] = res.RunID
	flat["operation"] = res.Operation
	flat["duration_seconds"] = res.Duration().Seconds()
	flat["success"] = res.Success()

	data, err := json.MarshalIndent(flat, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding metrics: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating metrics directory: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing metrics: %w", err)
	}
	return nil
}

func requireRoot(kbRoot string) error {
	if kbRoot == "" {
		return types.ConfigError("kb_root", "must not be empty")
	}
	return nil
}

// requireSource fails with ErrNotFound before any extraction work starts.
func requireSource(source string) error {
	if source == "" {
		return types.ConfigError("source", "must not be empty")
	}
	if _, err := os.Stat(source); err != nil {
		return fmt.Errorf("source %s: %w", source, types.ErrNotFound)
	}
	return nil
}
