// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package workflow

import (
	"context"
	"time"

	"github.com/pdiddy/kbforge/internal/kb"
	"github.com/pdiddy/kbforge/pkg/types"
)

// ProcessingContext is the per-run scratch space every stage reads and
// mutates. Stages run sequentially, so it needs no locking.
type ProcessingContext struct {
	RunID      string
	SourcePath string
	KBRoot     string

	// Extractors selects routines explicitly. Empty runs the configured set.
	Extractors []string

	// Extra is a bag namespaced by stage ("analysis", "update", ...).
	Extra map[string]any

	// Text and Sources are produced by analysis.
	Text    string
	Sources []string

	// Bundle is produced by extraction.
	Bundle *types.ExtractionBundle

	// Documents are produced by transformation, in creation order.
	Documents []*types.KBDocument

	// Touched lists kb_ids written this run, in write order.
	Touched []string

	// Fixes lists repairs applied by linking.
	Fixes []Fix

	// Update narrows the run to one existing document. Nil for process.
	Update *UpdateScope

	store *kb.Store
}

// UpdateScope identifies the document an update run overwrites.
type UpdateScope struct {
	KBID     string
	Existing *types.KBDocument
}

func (pc *ProcessingContext) touch(kbID string) {
	for _, id := range pc.Touched {
		if id == kbID {
			return
		}
	}
	pc.Touched = append(pc.Touched, kbID)
}

// Fix is one idempotent repair applied to the tree.
type Fix struct {
	KBID   string `json:"kb_id"`
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

// StageResult is what one stage reports.
type StageResult struct {
	Stage    string             `json:"stage"`
	Metrics  map[string]float64 `json:"metrics"`
	Warnings []string           `json:"warnings,omitempty"`

	// Errors holds per-document failures the stage recorded without aborting.
	Errors []string `json:"errors,omitempty"`

	Duration time.Duration `json:"duration"`
}

func newStageResult(name string) StageResult {
	return StageResult{Stage: name, Metrics: map[string]float64{}}
}

// Stage is one named unit of work in a pipeline.
type Stage interface {
	Name() string
	Run(ctx context.Context, pc *ProcessingContext) (StageResult, error)
}
