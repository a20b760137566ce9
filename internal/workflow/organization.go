// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pdiddy/kbforge/internal/knowledge"
	"github.com/pdiddy/kbforge/internal/telemetry"
	"github.com/pdiddy/kbforge/pkg/types"
)

// Document actions reported to telemetry.
const (
	actionWritten  = "written"
	actionReplaced = "replaced"
	actionSkipped  = "skipped"
	actionRejected = "rejected"
)

type organizationStage struct {
	cfg     types.OrganizationConfig
	metrics *telemetry.Metrics
	logger  *slog.Logger
}

func (s *organizationStage) Name() string { return StageOrganization }

// Run writes every produced document to <kb_root>/<kb_id>.md, resolving
// existing files with the configured collision strategy.
func (s *organizationStage) Run(ctx context.Context, pc *ProcessingContext) (StageResult, error) {
	res := newStageResult(StageOrganization)
	var written, replaced, skipped int
	var persisted []*types.KBDocument

	for _, doc := range pc.Documents {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		action := actionWritten
		if pc.store.Exists(doc.KBID) {
			switch s.cfg.CollisionStrategy {
			case types.CollisionSkip:
				skipped++
				res.Warnings = append(res.Warnings, fmt.Sprintf("%s exists, skipped", doc.KBID))
				s.metrics.Document(actionSkipped)
				continue
			case types.CollisionError:
				return res, fmt.Errorf("%s: %w", doc.KBID, types.ErrCollision)
			default:
				action = actionReplaced
				existing, err := pc.store.Read(doc.KBID)
				switch {
				case err == nil:
					carryForward(doc, existing)
				case errors.Is(err, types.ErrMalformed):
					res.Warnings = append(res.Warnings, fmt.Sprintf("%s was malformed, overwriting", doc.KBID))
				default:
					return res, err
				}
			}
		}

		if _, err := pc.store.Write(doc); err != nil {
			return res, fmt.Errorf("writing %s: %w", doc.KBID, err)
		}
		s.logger.Debug("document written", "kb_id", doc.KBID, "action", action)
		s.metrics.Document(action)
		pc.touch(doc.KBID)
		persisted = append(persisted, doc)
		if action == actionReplaced {
			replaced++
		} else {
			written++
		}
	}

	if s.cfg.IndexGeneration && len(persisted) > 0 {
		if err := indexDocuments(ctx, pc.KBRoot, persisted); err != nil {
			return res, err
		}
		res.Metrics["indexed"] = float64(len(persisted))
	}

	res.Metrics["documents"] = float64(len(pc.Documents))
	res.Metrics["written"] = float64(written)
	res.Metrics["replaced"] = float64(replaced)
	res.Metrics["skipped"] = float64(skipped)
	return res, nil
}

// carryForward keeps what other documents recorded on the existing copy.
// Backlinks always survive; aliases survive when the new copy has none.
func carryForward(doc, existing *types.KBDocument) {
	for _, id := range existing.Metadata.IA.RelatedByTopic {
		doc.AddBacklink(id)
	}
	if len(doc.Aliases) == 0 {
		doc.Aliases = existing.Aliases
	}
}

// indexDocuments upserts docs into the SQLite catalog under kbRoot.
func indexDocuments(ctx context.Context, kbRoot string, docs []*types.KBDocument) error {
	catalog, err := knowledge.NewStore(kbRoot, 0)
	if err != nil {
		return fmt.Errorf("opening catalog: %w", err)
	}
	defer catalog.Close()

	if err := catalog.Upsert(ctx, docs...); err != nil {
		return fmt.Errorf("indexing documents: %w", err)
	}
	return nil
}
