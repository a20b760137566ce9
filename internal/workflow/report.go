// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package workflow

import (
	"encoding/json"
	"io"
	"math"

	"github.com/pdiddy/kbforge/internal/kb"
	"github.com/pdiddy/kbforge/pkg/types"
)

// QualityReport aggregates scores and gaps across a KB tree.
type QualityReport struct {
	Documents DocumentCounts `json:"documents"`
	Metrics   ScoreMetrics   `json:"metrics"`
	Gaps      GapCounts      `json:"gaps"`
}

// DocumentCounts counts documents by validity and type.
type DocumentCounts struct {
	Total   int            `json:"total"`
	Valid   int            `json:"valid"`
	Invalid int            `json:"invalid"`
	ByType  map[string]int `json:"by_type"`
}

// ScoreMetrics summarises both quality scores over valid documents.
type ScoreMetrics struct {
	Completeness Stats `json:"completeness"`
	Findability  Stats `json:"findability"`
}

// Stats is the mean, min and max of one score. All zero when there are no
// valid documents.
type Stats struct {
	Mean float64 `json:"mean"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
}

// GapCounts counts documents per gap kind. Invalid lists the paths of
// documents that could not be parsed or failed validation.
type GapCounts struct {
	LowCompleteness  int      `json:"low_completeness"`
	LowFindability   int      `json:"low_findability"`
	ShortBody        int      `json:"short_body"`
	UnderTagged      int      `json:"under_tagged"`
	MissingBacklinks int      `json:"missing_backlinks"`
	Invalid          []string `json:"invalid"`
}

// Map returns the gap counts keyed by kind.
func (g GapCounts) Map() map[string]int {
	return map[string]int{
		GapLowCompleteness:  g.LowCompleteness,
		GapLowFindability:   g.LowFindability,
		GapShortBody:        g.ShortBody,
		GapUnderTagged:      g.UnderTagged,
		GapMissingBacklinks: g.MissingBacklinks,
		GapInvalid:          len(g.Invalid),
	}
}

// WriteJSON writes the report as indented JSON.
func (r *QualityReport) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// buildReport never fails on a bad document; it lists it under gaps.invalid.
func buildReport(entries []kb.Entry, cfg types.QualityConfig) *QualityReport {
	r := &QualityReport{
		Documents: DocumentCounts{ByType: map[string]int{}},
		Gaps:      GapCounts{Invalid: []string{}},
	}
	var completeness, findability accumulator

	for _, e := range entries {
		r.Documents.Total++
		if e.Err != nil {
			r.Documents.Invalid++
			r.Gaps.Invalid = append(r.Gaps.Invalid, e.Path)
			continue
		}
		if err := e.Doc.Validate(); err != nil {
			r.Documents.Invalid++
			r.Gaps.Invalid = append(r.Gaps.Invalid, e.Path)
			continue
		}
		r.Documents.Valid++
		r.Documents.ByType[string(e.Doc.Metadata.DocType)]++
		completeness.add(e.Doc.Metadata.IA.Completeness)
		findability.add(e.Doc.Metadata.IA.FindabilityScore)

		for _, g := range documentGaps(e.Doc, cfg) {
			switch g {
			case GapLowCompleteness:
				r.Gaps.LowCompleteness++
			case GapLowFindability:
				r.Gaps.LowFindability++
			case GapShortBody:
				r.Gaps.ShortBody++
			case GapUnderTagged:
				r.Gaps.UnderTagged++
			}
		}
	}

	r.Metrics.Completeness = completeness.stats()
	r.Metrics.Findability = findability.stats()
	r.Gaps.MissingBacklinks = countMissingBacklinks(entries)
	return r
}

type accumulator struct {
	n        int
	sum      float64
	min, max float64
}

func (a *accumulator) add(v float64) {
	if a.n == 0 {
		a.min, a.max = v, v
	}
	a.n++
	a.sum += v
	a.min = math.Min(a.min, v)
	a.max = math.Max(a.max, v)
}

func (a *accumulator) stats() Stats {
	if a.n == 0 {
		return Stats{}
	}
	return Stats{Mean: round4(a.sum / float64(a.n)), Min: a.min, Max: a.max}
}
