// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package workflow

import (
	"context"
	"fmt"

	"github.com/pdiddy/kbforge/internal/telemetry"
	"github.com/pdiddy/kbforge/pkg/types"
)

// UpdateSummary is stored in Extra["update"].
type UpdateSummary struct {
	KBID    string
	Path    string
	Ignored int
}

// updateStage overwrites the one document an update run targets. Other
// documents produced from the same source are left alone.
type updateStage struct {
	metrics *telemetry.Metrics
}

func (s *updateStage) Name() string { return StageUpdate }

func (s *updateStage) Run(ctx context.Context, pc *ProcessingContext) (StageResult, error) {
	res := newStageResult(StageUpdate)
	if pc.Update == nil {
		return res, fmt.Errorf("update stage without a target")
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	var target *types.KBDocument
	for _, doc := range pc.Documents {
		if doc.KBID == pc.Update.KBID {
			target = doc
			break
		}
	}
	if target == nil {
		return res, fmt.Errorf("source no longer yields %s: %w", pc.Update.KBID, types.ErrNotFound)
	}

	existing := pc.Update.Existing
	carryForward(target, existing)
	target.Metadata.Sources = mergeUnique(target.Metadata.Sources, existing.Metadata.Sources)

	p, err := pc.store.Write(target)
	if err != nil {
		return res, fmt.Errorf("writing %s: %w", target.KBID, err)
	}
	s.metrics.Document(actionReplaced)
	pc.touch(target.KBID)

	summary := UpdateSummary{KBID: target.KBID, Path: p, Ignored: len(pc.Documents) - 1}
	pc.Extra[StageUpdate] = summary
	res.Metrics["updated"] = 1
	res.Metrics["ignored"] = float64(summary.Ignored)
	return res, nil
}

// mergeUnique appends the values of extra missing from base.
func mergeUnique(base, extra []string) []string {
	out := append([]string(nil), base...)
	for _, v := range extra {
		if !contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}
