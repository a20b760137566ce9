// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/pdiddy/kbforge/internal/extract"
	"github.com/pdiddy/kbforge/internal/telemetry"
	"github.com/pdiddy/kbforge/pkg/types"
)

type extractionStage struct {
	coordinator *extract.Coordinator
	tools       types.ExtractionConfig
	failOnError bool
	metrics     *telemetry.Metrics
}

func (s *extractionStage) Name() string { return StageExtraction }

// Run delegates to the coordinator. Per-extractor failures become warnings
// unless failOnError is set.
func (s *extractionStage) Run(ctx context.Context, pc *ProcessingContext) (StageResult, error) {
	res := newStageResult(StageExtraction)

	var (
		bundle *types.ExtractionBundle
		err    error
	)
	if len(pc.Extractors) > 0 {
		bundle, err = s.coordinator.ExtractSelective(ctx, pc.Text, pc.Extractors, s.tools, pc.SourcePath)
	} else {
		bundle, err = s.coordinator.ExtractAll(ctx, pc.Text, s.tools, pc.SourcePath)
	}
	if err != nil {
		return res, err
	}
	pc.Bundle = bundle
	s.metrics.ObserveExtraction(bundle)

	var concepts, entities, cached int
	for _, r := range bundle.Results {
		concepts += len(r.Concepts)
		entities += len(r.Entities)
	}
	for _, sum := range bundle.Summaries {
		if sum.FromCache {
			cached++
		}
	}
	res.Metrics["requested"] = float64(len(bundle.Summaries))
	res.Metrics["succeeded"] = float64(len(bundle.Results))
	res.Metrics["failed"] = float64(len(bundle.Failures))
	res.Metrics["cache_hits"] = float64(cached)
	res.Metrics["concepts"] = float64(concepts)
	res.Metrics["entities"] = float64(entities)

	failed := bundle.FailedExtractors()
	for _, name := range failed {
		res.Warnings = append(res.Warnings, fmt.Sprintf("extractor %s failed: %s", name, bundle.Failures[name]))
	}
	if s.failOnError && len(failed) > 0 {
		return res, fmt.Errorf("extractors failed: %s", strings.Join(failed, ", "))
	}
	return res, nil
}
