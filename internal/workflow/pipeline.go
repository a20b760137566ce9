// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pdiddy/kbforge/internal/telemetry"
)

// Stage names. Metric keys in a Result are prefixed with them.
const (
	StageAnalysis       = "analysis"
	StageExtraction     = "extraction"
	StageTransformation = "transformation"
	StageOrganization   = "organization"
	StageLinking        = "linking"
	StageQuality        = "quality"
	StageUpdate         = "update"
	StageReview         = "review"
)

// Pipeline runs stages in order over one ProcessingContext. The first
// stage error stops the run.
type Pipeline struct {
	stages  []Stage
	metrics *telemetry.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// Names returns the stage names in run order.
func (p *Pipeline) Names() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name()
	}
	return names
}

// Run executes every stage and folds each StageResult into res, including
// the one from a failing stage.
func (p *Pipeline) Run(ctx context.Context, pc *ProcessingContext, res *Result) error {
	for _, stage := range p.stages {
		if err := ctx.Err(); err != nil {
			return err
		}
		name := stage.Name()
		p.logger.Debug("stage starting", "stage", name, "run_id", pc.RunID)

		start := p.now()
		sr, err := stage.Run(ctx, pc)
		sr.Stage = name
		sr.Duration = p.now().Sub(start)
		p.metrics.ObserveStage(name, sr.Duration)
		res.add(sr)

		if err != nil {
			p.logger.Error("stage failed", "stage", name, "run_id", pc.RunID, "error", err)
			return fmt.Errorf("stage %s: %w", name, err)
		}
		p.logger.Info("stage complete", "stage", name, "duration", sr.Duration, "warnings", len(sr.Warnings))
	}
	return nil
}
