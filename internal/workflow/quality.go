// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package workflow

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/pdiddy/kbforge/internal/telemetry"
	"github.com/pdiddy/kbforge/pkg/types"
)

// Gap kinds.
const (
	GapLowCompleteness  = "low_completeness"
	GapLowFindability   = "low_findability"
	GapShortBody        = "short_body"
	GapUnderTagged      = "under_tagged"
	GapMissingBacklinks = "missing_backlinks"
	GapInvalid          = "invalid"
)

// Completeness scores a document from its body length and the presence of
// its descriptive metadata. Body weighs 0.6 and saturates at twice
// minBody characters; the remaining 0.4 is the share of title,
// description, tags, sources and primary topic that are set.
func Completeness(doc *types.KBDocument, minBody int) float64 {
	length := len([]rune(strings.TrimSpace(doc.Body)))
	var body float64
	switch {
	case minBody <= 0 && length > 0:
		body = 1
	case minBody > 0:
		body = math.Min(1, float64(length)/float64(2*minBody))
	}

	present := 0
	for _, ok := range []bool{
		strings.TrimSpace(doc.Title) != "",
		strings.TrimSpace(doc.Metadata.DC.Description) != "",
		len(doc.Metadata.Tags) > 0,
		len(doc.Metadata.Sources) > 0,
		doc.Metadata.PrimaryTopic != "",
	} {
		if ok {
			present++
		}
	}
	return round4(0.6*body + 0.4*float64(present)/5)
}

// documentGaps returns the gap kinds doc falls into, in a fixed order.
func documentGaps(doc *types.KBDocument, cfg types.QualityConfig) []string {
	var gaps []string
	if doc.Metadata.IA.Completeness < cfg.RequiredCompleteness {
		gaps = append(gaps, GapLowCompleteness)
	}
	if doc.Metadata.IA.FindabilityScore < cfg.RequiredFindability {
		gaps = append(gaps, GapLowFindability)
	}
	if len([]rune(strings.TrimSpace(doc.Body))) < cfg.MinBodyLength {
		gaps = append(gaps, GapShortBody)
	}
	if len(doc.Metadata.Tags) < cfg.MinTags {
		gaps = append(gaps, GapUnderTagged)
	}
	return gaps
}

type qualityStage struct {
	cfg     types.QualityConfig
	metrics *telemetry.Metrics
}

func (s *qualityStage) Name() string { return StageQuality }

// Run rescores every document touched this run and counts threshold gaps.
// With FailOnViolation set, any gap aborts before the new scores are saved.
func (s *qualityStage) Run(ctx context.Context, pc *ProcessingContext) (StageResult, error) {
	res := newStageResult(StageQuality)
	counts := map[string]int{
		GapLowCompleteness: 0,
		GapLowFindability:  0,
		GapShortBody:       0,
		GapUnderTagged:     0,
	}

	var (
		docs      []*types.KBDocument
		violators []string
		total     float64
	)
	for _, id := range pc.Touched {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		doc, err := pc.store.Read(id)
		if err != nil {
			if errors.Is(err, types.ErrMalformed) || errors.Is(err, types.ErrNotFound) {
				res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", id, err))
				continue
			}
			return res, err
		}
		doc.Metadata.IA.Completeness = Completeness(doc, s.cfg.MinBodyLength)
		if err := doc.Validate(); err != nil {
			return res, fmt.Errorf("%s: %w", id, err)
		}
		gaps := documentGaps(doc, s.cfg)
		for _, g := range gaps {
			counts[g]++
		}
		if len(gaps) > 0 {
			violators = append(violators, fmt.Sprintf("%s (%s)", id, strings.Join(gaps, ", ")))
		}
		total += doc.Metadata.IA.Completeness
		docs = append(docs, doc)
	}

	res.Metrics["documents"] = float64(len(docs))
	if len(docs) > 0 {
		res.Metrics["mean_completeness"] = round4(total / float64(len(docs)))
	}
	for _, kind := range sortedKeys(counts) {
		res.Metrics[kind] = float64(counts[kind])
	}
	s.metrics.SetGaps(counts)

	if len(violators) > 0 {
		if s.cfg.FailOnViolation {
			return res, fmt.Errorf("%d documents below thresholds: %s: %w",
				len(violators), strings.Join(violators, "; "), types.ErrQuality)
		}
		for _, v := range violators {
			res.Warnings = append(res.Warnings, "below thresholds: "+v)
		}
	}

	for _, doc := range docs {
		if _, err := pc.store.Write(doc); err != nil {
			return res, fmt.Errorf("writing %s: %w", doc.KBID, err)
		}
	}
	return res, nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
