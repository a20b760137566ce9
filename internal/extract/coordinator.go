// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package extract coordinates independent extraction routines over one
// source text: it selects which routines run, executes them on a bounded
// worker pool or sequentially, memoizes successful results, isolates
// per-routine failures, and aggregates everything into an ExtractionBundle.
package extract

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/pdiddy/kbforge/internal/cache"
	"github.com/pdiddy/kbforge/internal/worker"
	"github.com/pdiddy/kbforge/pkg/types"
)

// sourcePathKey is defaulted into each extractor's config slice.
const sourcePathKey = "source_path"

// Options configures a Coordinator.
type Options struct {
	// EnabledTools is the allow-list. Selecting a name outside it is a
	// configuration error. Empty allows every name.
	EnabledTools []string

	// Parallel runs more than one selected task on a worker pool.
	Parallel bool

	CacheEnabled bool
	CacheTTL     time.Duration

	// MaxStartsPerSecond throttles task starts. Zero is unlimited.
	MaxStartsPerSecond float64

	// Progress receives lifecycle events. It may be called from several
	// goroutines at once and must return quickly.
	Progress ProgressFunc

	Logger *slog.Logger
}

// OptionsFromConfig maps the extraction config section onto Options.
func OptionsFromConfig(cfg types.ExtractionSettings) Options {
	return Options{
		EnabledTools:       cfg.EnabledTools,
		Parallel:           cfg.Parallel,
		CacheEnabled:       cfg.CacheEnabled,
		CacheTTL:           cfg.CacheTTL,
		MaxStartsPerSecond: cfg.MaxStartsPerSecond,
	}
}

// Coordinator runs extraction routines from a Registry.
type Coordinator struct {
	registry Registry
	enabled  []string
	allowed  map[string]bool
	parallel bool
	cache    *cache.ResultCache
	limiter  *worker.Limiter
	progress ProgressFunc
	logger   *slog.Logger
}

// NewCoordinator creates a coordinator over reg.
func NewCoordinator(reg Registry, opts Options) *Coordinator {
	c := &Coordinator{
		registry: reg,
		enabled:  dedupe(opts.EnabledTools),
		parallel: opts.Parallel,
		limiter:  worker.NewLimiter(opts.MaxStartsPerSecond),
		progress: opts.Progress,
		logger:   opts.Logger,
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if len(c.enabled) > 0 {
		c.allowed = make(map[string]bool, len(c.enabled))
		for _, name := range c.enabled {
			c.allowed[name] = true
		}
	}
	if opts.CacheEnabled {
		c.cache = cache.NewResultCache(opts.CacheTTL)
	}
	return c
}

// ExtractAll runs the extractors resolved from the allow-list, the config
// keys, or the registry, in that order of precedence.
func (c *Coordinator) ExtractAll(ctx context.Context, text string, cfg types.ExtractionConfig, sourcePath string) (*types.ExtractionBundle, error) {
	names, err := c.selectExtractors(nil, cfg)
	if err != nil {
		return nil, err
	}
	return c.run(ctx, text, names, cfg, sourcePath), nil
}

// ExtractSelective runs exactly the requested extractors. An empty request
// is a configuration error.
func (c *Coordinator) ExtractSelective(ctx context.Context, text string, extractors []string, cfg types.ExtractionConfig, sourcePath string) (*types.ExtractionBundle, error) {
	if len(extractors) == 0 {
		return nil, types.ConfigError("extractors", "selective extraction needs at least one extractor")
	}
	names, err := c.selectExtractors(extractors, cfg)
	if err != nil {
		return nil, err
	}
	return c.run(ctx, text, names, cfg, sourcePath), nil
}

// Close drops every cached result.
func (c *Coordinator) Close() {
	if c.cache != nil {
		c.cache.Clear()
	}
}

// selectExtractors resolves the task list: requested names, then the
// allow-list, then config keys, then the registry. Names outside the
// allow-list fail the whole call before any task runs.
func (c *Coordinator) selectExtractors(requested []string, cfg types.ExtractionConfig) ([]string, error) {
	var candidates []string
	switch {
	case len(requested) > 0:
		candidates = requested
	case len(c.enabled) > 0:
		candidates = c.enabled
	case len(cfg) > 0:
		for name := range cfg {
			candidates = append(candidates, name)
		}
		sort.Strings(candidates)
	default:
		candidates = c.registry.Names()
	}

	names := dedupe(candidates)
	for _, name := range names {
		if name == "" {
			return nil, types.ConfigError("extractors", "empty extractor name")
		}
		if c.allowed != nil && !c.allowed[name] {
			return nil, types.ConfigError("extractors", "%q is not in enabled_tools", name)
		}
	}
	if len(names) == 0 {
		return nil, types.ConfigError("extractors", "no extractors available")
	}
	return names, nil
}

type task struct {
	index      int
	total      int
	name       string
	text       string
	cfg        map[string]any
	sourcePath string
	checksum   string
}

type taskOutcome struct {
	index   int
	name    string
	result  *types.ExtractionResult
	summary types.ExtractionRunSummary
	err     error
}

func (o *taskOutcome) GetError() error { return o.err }

type taskJob struct {
	c *Coordinator
	t task
}

func (j *taskJob) Execute(ctx context.Context, worker int) worker.Result {
	return j.c.runTask(ctx, j.t, worker)
}

func (c *Coordinator) run(ctx context.Context, text string, names []string, cfg types.ExtractionConfig, sourcePath string) *types.ExtractionBundle {
	bundle := &types.ExtractionBundle{
		Results:   make(map[string]*types.ExtractionResult, len(names)),
		Failures:  make(map[string]string),
		StartedAt: time.Now(),
	}

	sum := sha256.Sum256([]byte(text))
	checksum := hex.EncodeToString(sum[:])

	tasks := make([]task, len(names))
	for i, name := range names {
		tasks[i] = task{
			index:      i,
			total:      len(names),
			name:       name,
			text:       text,
			cfg:        taskConfig(cfg, name, sourcePath),
			sourcePath: sourcePath,
			checksum:   checksum,
		}
		c.emit(ProgressEvent{Extractor: name, Index: i, Total: len(names), Status: StatusScheduled})
	}

	outcomes := make([]*taskOutcome, len(tasks))
	if c.parallel && len(tasks) > 1 {
		pool := worker.NewPool(ctx, len(tasks)).WithLimiter(c.limiter)
		pool.Start()
		for _, t := range tasks {
			pool.Submit(&taskJob{c: c, t: t})
		}
		for _, r := range pool.Wait() {
			o := r.(*taskOutcome)
			outcomes[o.index] = o
		}
	} else {
		for i, t := range tasks {
			if err := c.limiter.Wait(ctx); err != nil {
				outcomes[i] = c.fail(t, 0, 0, err)
				continue
			}
			outcomes[i] = c.runTask(ctx, t, 0)
		}
	}

	// Reassemble in selection order so completion order never leaks out.
	for i, o := range outcomes {
		if o == nil {
			err := ctx.Err()
			if err == nil {
				err = fmt.Errorf("task did not run")
			}
			o = c.fail(tasks[i], 0, 0, err)
		}
		bundle.Summaries = append(bundle.Summaries, o.summary)
		if o.err != nil {
			bundle.Failures[o.name] = o.err.Error()
		} else {
			bundle.Results[o.name] = o.result
		}
	}
	bundle.CompletedAt = time.Now()
	return bundle
}

func (c *Coordinator) runTask(ctx context.Context, t task, workerID int) *taskOutcome {
	c.emit(ProgressEvent{Extractor: t.name, Index: t.index, Total: t.total, Status: StatusRunning, Worker: workerID})

	key, keyErr := cache.Key(t.name, t.text, t.cfg)
	if keyErr != nil {
		c.logger.Debug("extraction result not cacheable",
			slog.String("extractor", t.name),
			slog.String("error", keyErr.Error()),
		)
	}
	useCache := c.cache != nil && keyErr == nil

	if useCache {
		if entry, ok := c.cache.Get(key); ok {
			c.emit(ProgressEvent{Extractor: t.name, Index: t.index, Total: t.total, Status: StatusCacheHit, Worker: workerID})
			return &taskOutcome{
				index:   t.index,
				name:    t.name,
				result:  entry.Result,
				summary: types.ExtractionRunSummary{Extractor: t.name, FromCache: true},
			}
		}
	}

	start := time.Now()
	result, err := c.invoke(ctx, t)
	elapsed := time.Since(start)
	if err != nil {
		return c.fail(t, workerID, elapsed, err)
	}

	result = stamp(result, t)
	if useCache {
		c.cache.Put(key, result)
	}

	c.emit(ProgressEvent{Extractor: t.name, Index: t.index, Total: t.total, Status: StatusSuccess, Worker: workerID, Duration: elapsed})
	return &taskOutcome{
		index:   t.index,
		name:    t.name,
		result:  result,
		summary: types.ExtractionRunSummary{Extractor: t.name, Duration: elapsed},
	}
}

func (c *Coordinator) fail(t task, workerID int, elapsed time.Duration, err error) *taskOutcome {
	c.logger.Warn("extractor failed",
		slog.String("extractor", t.name),
		slog.String("error", err.Error()),
	)
	c.emit(ProgressEvent{Extractor: t.name, Index: t.index, Total: t.total, Status: StatusFailed, Worker: workerID, Duration: elapsed, Err: err})
	return &taskOutcome{
		index:   t.index,
		name:    t.name,
		summary: types.ExtractionRunSummary{Extractor: t.name, Duration: elapsed, Error: err.Error()},
		err:     err,
	}
}

// invoke runs one routine, converting a panic into an error.
func (c *Coordinator) invoke(ctx context.Context, t task) (result *types.ExtractionResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("extractor %s panicked: %v", t.name, r)
		}
	}()
	result, err = c.registry.Run(ctx, t.name, t.text, t.cfg)
	if err == nil && result == nil {
		err = fmt.Errorf("extractor %s returned no result", t.name)
	}
	return result, err
}

// stamp fills provenance fields the routine left empty. It copies the
// result so the routine's own value is never modified.
func stamp(r *types.ExtractionResult, t task) *types.ExtractionResult {
	out := *r
	if out.ExtractorName == "" {
		out.ExtractorName = t.name
	}
	if out.SourcePath == "" {
		out.SourcePath = t.sourcePath
	}
	if out.Checksum == "" {
		out.Checksum = t.checksum
	}
	if out.CreatedAt.IsZero() {
		out.CreatedAt = time.Now().UTC()
	}
	return &out
}

// taskConfig copies the extractor's config slice and defaults source_path.
func taskConfig(cfg types.ExtractionConfig, name, sourcePath string) map[string]any {
	src := cfg[name]
	out := make(map[string]any, len(src)+1)
	for k, v := range src {
		out[k] = v
	}
	if _, ok := out[sourcePathKey]; !ok && sourcePath != "" {
		out[sourcePathKey] = sourcePath
	}
	return out
}

func dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
