// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/pdiddy/kbforge/internal/telemetry"
	"github.com/pdiddy/kbforge/pkg/types"
)

// reviewStage reports structural gaps across the tree without changing it.
// It runs after linking in improve, so missing backlinks it sees are ones
// linking could not repair.
type reviewStage struct {
	cfg     types.QualityConfig
	metrics *telemetry.Metrics
}

func (s *reviewStage) Name() string { return StageReview }

func (s *reviewStage) Run(ctx context.Context, pc *ProcessingContext) (StageResult, error) {
	res := newStageResult(StageReview)

	entries, err := pc.store.Walk()
	if err != nil {
		return res, err
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	report := buildReport(entries, s.cfg)
	pc.Extra[StageReview] = report

	for _, e := range entries {
		if entryError(e) != nil {
			continue
		}
		if gaps := documentGaps(e.Doc, s.cfg); len(gaps) > 0 {
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s: %s", e.KBID, strings.Join(gaps, ", ")))
		}
	}
	for _, p := range report.Gaps.Invalid {
		res.Warnings = append(res.Warnings, fmt.Sprintf("invalid document %s", p))
	}

	gaps := report.Gaps.Map()
	s.metrics.SetGaps(gaps)
	res.Metrics["documents"] = float64(report.Documents.Total)
	for _, kind := range sortedKeys(gaps) {
		res.Metrics[kind] = float64(gaps[kind])
	}
	return res, nil
}
