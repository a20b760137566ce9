// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package transform turns extracted concepts and entities into knowledge
// documents with derived identity, cross-references and quality scores.
// Document creation is fail-closed: a document that does not validate or
// misses a configured threshold is returned as an error, never as a value.
package transform

import (
	"fmt"
	"math"
	"path"
	"strings"
	"time"

	"github.com/pdiddy/kbforge/pkg/types"
)

// Linking bonus applied to the findability baseline.
const (
	linkBonusPerRef = 0.02
	linkBonusCap    = 0.2
)

// Thresholds are the minimum scores a new document must reach.
type Thresholds struct {
	Completeness float64
	Findability  float64
}

// ThresholdsFromConfig reads the quality section.
func ThresholdsFromConfig(cfg types.QualityConfig) Thresholds {
	return Thresholds{Completeness: cfg.RequiredCompleteness, Findability: cfg.RequiredFindability}
}

// Option configures a Transformer.
type Option func(*Transformer)

// WithClock sets the time source used when the context carries no timestamp.
func WithClock(now func() time.Time) Option {
	return func(t *Transformer) { t.now = now }
}

// Transformer builds knowledge documents.
type Transformer struct {
	thresholds Thresholds
	now        func() time.Time
}

// New creates a Transformer enforcing th.
func New(th Thresholds, opts ...Option) *Transformer {
	t := &Transformer{thresholds: th, now: time.Now}
	for _, o := range opts {
		o(t)
	}
	return t
}

// ConceptDocument builds the document for c at
// "<concept_root>/<primary_topic>/<slug(term)>".
func (t *Transformer) ConceptDocument(c types.Concept, ctx *Context) (*types.KBDocument, error) {
	term := strings.TrimSpace(c.Term)
	if term == "" {
		return nil, types.QualityError("term", "must not be empty")
	}
	slug := Slugify(term)
	kbID := path.Join(ctx.conceptRoot, ctx.primaryTopic, slug)
	related := t.qualifyTerms(c.RelatedTerms, ctx, kbID)

	tags := mergeTags(ctx.defaultTags, []string{ctx.primaryTopic}, ctx.secondaryTopics, []string{string(types.DocConcept)})

	description := strings.TrimSpace(c.Definition)
	if description == "" {
		description = fmt.Sprintf("Concept %q extracted from %s.", term, ctx.sources[0])
	}

	doc := &types.KBDocument{
		KBID:            kbID,
		Slug:            slug,
		Title:           term,
		RelatedConcepts: related,
		Metadata:        t.metadata(types.DocConcept, kbID, term, description, tags, len(related), ctx),
	}
	doc.Body = renderConcept(c, term, related)

	if err := t.check(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// EntityDocument builds the document for e at
// "<entity_root>/<category>/<slug(text)>", where category comes from the
// context's type mapping or the slugified type.
func (t *Transformer) EntityDocument(e types.Entity, ctx *Context) (*types.KBDocument, error) {
	text := strings.TrimSpace(e.Text)
	if text == "" {
		return nil, types.QualityError("text", "must not be empty")
	}
	slug := Slugify(text)
	category := ctx.category(e.Type)
	kbID := path.Join(ctx.entityRoot, category, slug)

	related := removeValue(uniqueTrimmed(e.Related), kbID)
	aliases := removeValue(uniqueTrimmed(e.Aliases), text)

	tags := mergeTags(ctx.defaultTags, []string{category, string(types.DocEntity)})
	description := fmt.Sprintf("%s entity %q extracted from %s.", category, text, ctx.sources[0])

	doc := &types.KBDocument{
		KBID:            kbID,
		Slug:            slug,
		Title:           text,
		Aliases:         aliases,
		RelatedConcepts: related,
		Metadata:        t.metadata(types.DocEntity, kbID, text, description, tags, len(related), ctx),
	}
	doc.Body = renderEntity(e, text, aliases, related)

	if err := t.check(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// AssertThresholds fails with ErrQuality when md scores below t's thresholds.
func (t *Transformer) AssertThresholds(md *types.KBMetadata) error {
	if md.IA.Completeness < t.thresholds.Completeness {
		return types.QualityError("ia.completeness", "%.2f below required %.2f", md.IA.Completeness, t.thresholds.Completeness)
	}
	if md.IA.FindabilityScore < t.thresholds.Findability {
		return types.QualityError("ia.findability_score", "%.2f below required %.2f", md.IA.FindabilityScore, t.thresholds.Findability)
	}
	return nil
}

// Findability scores a document with related outbound references.
func Findability(baseline float64, related int) float64 {
	bonus := math.Min(linkBonusCap, linkBonusPerRef*float64(related))
	return round4(math.Min(1, baseline+bonus))
}

func (t *Transformer) check(doc *types.KBDocument) error {
	if err := doc.Validate(); err != nil {
		return fmt.Errorf("validating %s: %w", doc.KBID, err)
	}
	if err := t.AssertThresholds(&doc.Metadata); err != nil {
		return fmt.Errorf("checking %s: %w", doc.KBID, err)
	}
	return nil
}

func (t *Transformer) metadata(kind types.DocType, kbID, title, description string, tags []string, related int, ctx *Context) types.KBMetadata {
	ts := ctx.timestamp
	if ts.IsZero() {
		ts = t.now()
	}
	ts = ts.UTC()

	return types.KBMetadata{
		DocType:         kind,
		PrimaryTopic:    ctx.primaryTopic,
		SecondaryTopics: append([]string(nil), ctx.secondaryTopics...),
		Tags:            tags,
		DC: types.DublinCore{
			Title:       title,
			Creator:     ctx.creator,
			Subject:     ctx.primaryTopic,
			Description: description,
			Date:        ts.Format("2006-01-02"),
			Type:        string(kind),
			Format:      "text/markdown",
			Identifier:  kbID,
			Language:    ctx.language,
			Source:      ctx.sources[0],
		},
		IA: types.IAMetadata{
			FindabilityScore: Findability(ctx.findabilityBaseline, related),
			Completeness:     ctx.completenessBaseline,
			Depth:            ctx.depth,
			Audience:         append([]string(nil), ctx.audience...),
			NavigationPath:   strings.Split(path.Dir(kbID), "/"),
			LastUpdated:      ts,
			UpdateFrequency:  ctx.updateFrequency,
		},
		Sources: ctx.SourceReferences(),
	}
}

// qualifyTerms passes ids containing "/" through and qualifies bare terms
// against concept_root/primary_topic. Self references are dropped.
func (t *Transformer) qualifyTerms(terms []string, ctx *Context, self string) []string {
	var out []string
	seen := map[string]bool{self: true}
	for _, term := range terms {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		id := term
		if !strings.Contains(term, "/") {
			id = path.Join(ctx.conceptRoot, ctx.primaryTopic, Slugify(term))
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func mergeTags(groups ...[]string) []string {
	var out []string
	seen := map[string]bool{}
	for _, g := range groups {
		for _, tag := range g {
			if tag == "" || seen[tag] {
				continue
			}
			seen[tag] = true
			out = append(out, tag)
		}
	}
	return out
}

func removeValue(values []string, v string) []string {
	out := values[:0:0]
	for _, s := range values {
		if s != v {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
