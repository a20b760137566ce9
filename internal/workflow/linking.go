// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package workflow

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pdiddy/kbforge/internal/graph"
	"github.com/pdiddy/kbforge/internal/kb"
	"github.com/pdiddy/kbforge/internal/knowledge"
	"github.com/pdiddy/kbforge/pkg/types"
)

// FixBacklink is the kind recorded for an inserted back-reference.
const FixBacklink = "backlink"

// graphFile is written under the index directory when the concept graph is built.
const graphFile = "graph.json"

type linkingStage struct {
	backlinks bool
	graph     bool
	now       func() time.Time
}

func (s *linkingStage) Name() string { return StageLinking }

// Run patches back-references across the whole tree and optionally writes
// the concept graph. Update runs only patch pairs involving the updated
// document.
func (s *linkingStage) Run(ctx context.Context, pc *ProcessingContext) (StageResult, error) {
	res := newStageResult(StageLinking)

	entries, err := pc.store.Walk()
	if err != nil {
		return res, err
	}
	malformed := 0
	for _, e := range entries {
		if err := entryError(e); err != nil {
			malformed++
			res.Warnings = append(res.Warnings, fmt.Sprintf("skipping %s: %v", e.Path, err))
		}
	}
	res.Metrics["documents"] = float64(len(entries))
	res.Metrics["malformed"] = float64(malformed)

	if s.backlinks {
		scope := ""
		if pc.Update != nil {
			scope = pc.Update.KBID
		}
		fixes, changed, dangling := planBacklinks(entries, scope)
		now := s.now()
		for _, doc := range changed {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			kb.Touch(doc, now)
			if _, err := pc.store.Write(doc); err != nil {
				return res, fmt.Errorf("writing %s: %w", doc.KBID, err)
			}
			pc.touch(doc.KBID)
		}
		pc.Fixes = append(pc.Fixes, fixes...)
		res.Metrics["backlinks_added"] = float64(len(fixes))
		res.Metrics["documents_updated"] = float64(len(changed))
		res.Metrics["dangling"] = float64(dangling)
	}

	if s.graph {
		g := graph.Build(entries)
		if err := writeGraphFile(pc.KBRoot, g); err != nil {
			return res, err
		}
		res.Metrics["nodes"] = float64(len(g.Nodes))
		res.Metrics["edges"] = float64(len(g.Edges))
	}
	return res, nil
}

// entryError reports why an entry cannot take part in linking: it failed
// to parse, or its front matter does not validate. Such documents are
// never rewritten.
func entryError(e kb.Entry) error {
	if e.Err != nil {
		return e.Err
	}
	if err := e.Doc.Validate(); err != nil {
		return fmt.Errorf("invalid front matter: %w", err)
	}
	return nil
}

// validDocs indexes the entries that pass entryError by kb_id.
func validDocs(entries []kb.Entry) map[string]*types.KBDocument {
	docs := make(map[string]*types.KBDocument, len(entries))
	for _, e := range entries {
		if entryError(e) == nil {
			docs[e.KBID] = e.Doc
		}
	}
	return docs
}

// planBacklinks adds a back-reference to every document named in another
// document's related_concepts, appending only when absent. Documents are
// mutated in place and returned in the order they first changed. A
// non-empty scope limits work to pairs where either end is scope. Invalid
// documents are neither sources nor targets.
func planBacklinks(entries []kb.Entry, scope string) (fixes []Fix, changed []*types.KBDocument, dangling int) {
	docs := validDocs(entries)

	seen := map[string]bool{}
	for _, e := range entries {
		if _, ok := docs[e.KBID]; !ok {
			continue
		}
		for _, target := range e.Doc.RelatedConcepts {
			if scope != "" && e.KBID != scope && target != scope {
				continue
			}
			dst, ok := docs[target]
			if !ok {
				dangling++
				continue
			}
			if !dst.AddBacklink(e.KBID) {
				continue
			}
			fixes = append(fixes, Fix{
				KBID:   target,
				Kind:   FixBacklink,
				Detail: fmt.Sprintf("added back-reference from %s", e.KBID),
			})
			if !seen[target] {
				seen[target] = true
				changed = append(changed, dst)
			}
		}
	}
	return fixes, changed, dangling
}

// countMissingBacklinks counts related_concepts pairs whose target exists
// but does not yet reference the source.
func countMissingBacklinks(entries []kb.Entry) int {
	docs := validDocs(entries)
	missing := 0
	for _, e := range entries {
		if _, ok := docs[e.KBID]; !ok {
			continue
		}
		for _, target := range e.Doc.RelatedConcepts {
			dst, ok := docs[target]
			if !ok || target == e.KBID {
				continue
			}
			if !contains(dst.Metadata.IA.RelatedByTopic, e.KBID) {
				missing++
			}
		}
	}
	return missing
}

func writeGraphFile(kbRoot string, g *graph.Graph) error {
	dir := filepath.Join(kbRoot, knowledge.IndexDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating index directory: %w", err)
	}
	f, err := os.Create(filepath.Join(dir, graphFile))
	if err != nil {
		return fmt.Errorf("creating graph file: %w", err)
	}
	if err := graph.WriteJSON(f, g); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}
