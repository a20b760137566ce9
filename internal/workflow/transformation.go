// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/pdiddy/kbforge/internal/telemetry"
	"github.com/pdiddy/kbforge/internal/transform"
	"github.com/pdiddy/kbforge/pkg/types"
)

type transformationStage struct {
	cfg         types.TransformationConfig
	transformer *transform.Transformer
	metrics     *telemetry.Metrics
	now         func() time.Time
}

func (s *transformationStage) Name() string { return StageTransformation }

// Run turns every extracted concept and entity into a document. Results
// are visited in selection order so the output is deterministic. The
// first document with a given kb_id wins; later ones are reported.
func (s *transformationStage) Run(ctx context.Context, pc *ProcessingContext) (StageResult, error) {
	res := newStageResult(StageTransformation)
	if pc.Bundle == nil {
		return res, fmt.Errorf("no extraction bundle")
	}

	opts := transform.OptionsFromConfig(s.cfg, pc.Sources)
	opts.Timestamp = s.now()
	tctx, err := transform.NewContext(opts)
	if err != nil {
		return res, err
	}

	seen := map[string]bool{}
	var concepts, entities, failed, duplicates int

	accept := func(doc *types.KBDocument, err error, label string) error {
		if err != nil {
			if s.cfg.Strict {
				return fmt.Errorf("transforming %s: %w", label, err)
			}
			failed++
			s.metrics.Document(actionRejected)
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", label, err))
			return nil
		}
		if seen[doc.KBID] {
			duplicates++
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s duplicates %s, keeping the first", label, doc.KBID))
			return nil
		}
		seen[doc.KBID] = true
		pc.Documents = append(pc.Documents, doc)
		return nil
	}

	for _, name := range pc.Bundle.Requested() {
		r, ok := pc.Bundle.Results[name]
		if !ok {
			continue
		}
		for _, c := range r.Concepts {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			doc, err := s.transformer.ConceptDocument(c, tctx)
			if err := accept(doc, err, fmt.Sprintf("concept %q", c.Term)); err != nil {
				return res, err
			}
			if err == nil {
				concepts++
			}
		}
		for _, e := range r.Entities {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			doc, err := s.transformer.EntityDocument(e, tctx)
			if err := accept(doc, err, fmt.Sprintf("entity %q", e.Text)); err != nil {
				return res, err
			}
			if err == nil {
				entities++
			}
		}
	}

	res.Metrics["concepts"] = float64(concepts)
	res.Metrics["entities"] = float64(entities)
	res.Metrics["documents"] = float64(len(pc.Documents))
	res.Metrics["failed"] = float64(failed)
	res.Metrics["duplicates"] = float64(duplicates)
	return res, nil
}
