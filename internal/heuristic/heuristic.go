// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package heuristic provides the built-in extraction routines the CLI
// registers: a frequency-based concept finder and a capitalization-based
// entity finder. They are deliberately simple; richer extractors plug in
// through the same extract.Registry.
package heuristic

import (
	"context"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pdiddy/kbforge/internal/extract"
	"github.com/pdiddy/kbforge/pkg/types"
)

// Routine names.
const (
	Concepts = "concepts"
	Entities = "entities"
)

// Registry returns a registry holding every built-in routine.
func Registry() *extract.FuncRegistry {
	reg := extract.NewFuncRegistry()
	reg.Register(Concepts, ExtractConcepts)
	reg.Register(Entities, ExtractEntities)
	return reg
}

var (
	wordPattern     = regexp.MustCompile(`\p{L}[\p{L}\p{N}'-]*`)
	sentencePattern = regexp.MustCompile(`[^.!?\n]+[.!?]?`)
	entityPattern   = regexp.MustCompile(`[A-Z][a-zA-Z]+(?:[ ]+(?:of[ ]+)?[A-Z][a-zA-Z]+)+`)
)

var stopwords = map[string]bool{
	"about": true, "after": true, "also": true, "and": true, "are": true,
	"been": true, "before": true, "being": true, "between": true, "both": true,
	"but": true, "can": true, "could": true, "does": true, "each": true,
	"for": true, "from": true, "have": true, "into": true, "its": true,
	"more": true, "most": true, "much": true, "must": true, "not": true,
	"only": true, "other": true, "over": true, "same": true, "should": true,
	"some": true, "such": true, "than": true, "that": true, "the": true,
	"their": true, "them": true, "then": true, "there": true, "these": true,
	"they": true, "this": true, "those": true, "through": true, "under": true,
	"very": true, "was": true, "were": true, "what": true, "when": true,
	"where": true, "which": true, "while": true, "will": true, "with": true,
	"would": true, "your": true,
}

// ExtractConcepts counts recurring non-stopword terms. Config keys:
// min_frequency (default 2), min_length (default 4), max_terms (default 20).
func ExtractConcepts(ctx context.Context, text string, cfg map[string]any) (*types.ExtractionResult, error) {
	minFreq := intOption(cfg, "min_frequency", 2)
	minLen := intOption(cfg, "min_length", 4)
	maxTerms := intOption(cfg, "max_terms", 20)

	counts := map[string]int{}
	positions := map[string][]int{}
	for _, loc := range wordPattern.FindAllStringIndex(text, -1) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		w := strings.ToLower(strings.Trim(text[loc[0]:loc[1]], "'-"))
		if len([]rune(w)) < minLen || stopwords[w] {
			continue
		}
		counts[w]++
		positions[w] = append(positions[w], loc[0])
	}

	var terms []string
	for term, n := range counts {
		if n >= minFreq {
			terms = append(terms, term)
		}
	}
	sort.Slice(terms, func(i, j int) bool {
		if counts[terms[i]] != counts[terms[j]] {
			return counts[terms[i]] > counts[terms[j]]
		}
		return terms[i] < terms[j]
	})
	if maxTerms > 0 && len(terms) > maxTerms {
		terms = terms[:maxTerms]
	}

	sentences := sentencePattern.FindAllString(text, -1)
	selected := make(map[string]bool, len(terms))
	for _, t := range terms {
		selected[t] = true
	}

	result := &types.ExtractionResult{
		Metadata: map[string]string{"terms": strconv.Itoa(len(terms))},
	}
	for _, term := range terms {
		result.Concepts = append(result.Concepts, types.Concept{
			Term:         term,
			Frequency:    counts[term],
			Positions:    positions[term],
			Definition:   definitionFor(term, sentences),
			RelatedTerms: cooccurring(term, sentences, selected, 5),
		})
	}
	return result, nil
}

// definitionFor returns the first sentence shaped like "<term> is ...".
func definitionFor(term string, sentences []string) string {
	for _, s := range sentences {
		lower := strings.ToLower(strings.TrimSpace(s))
		for _, verb := range []string{" is ", " are ", " refers to "} {
			if strings.HasPrefix(lower, term+verb) || strings.Contains(lower, " "+term+verb) {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

// cooccurring lists other selected terms sharing a sentence with term, in
// order of first appearance.
func cooccurring(term string, sentences []string, selected map[string]bool, limit int) []string {
	var related []string
	seen := map[string]bool{term: true}
	for _, s := range sentences {
		words := sentenceWords(s)
		if !words[term] {
			continue
		}
		for _, loc := range wordPattern.FindAllStringIndex(s, -1) {
			w := strings.ToLower(strings.Trim(s[loc[0]:loc[1]], "'-"))
			if !selected[w] || seen[w] {
				continue
			}
			seen[w] = true
			related = append(related, w)
			if len(related) == limit {
				return related
			}
		}
	}
	return related
}

func sentenceWords(s string) map[string]bool {
	words := map[string]bool{}
	for _, w := range wordPattern.FindAllString(s, -1) {
		words[strings.ToLower(strings.Trim(w, "'-"))] = true
	}
	return words
}

var (
	organizationSuffixes = []string{"Inc", "Corp", "Corporation", "Company", "University", "Institute", "Foundation", "Laboratory", "Society"}
	locationSuffixes     = []string{"City", "County", "River", "Mountains", "Island", "Valley", "Republic", "Kingdom"}
)

// ExtractEntities finds runs of capitalized words. Config keys:
// min_confidence (default 0.5).
func ExtractEntities(ctx context.Context, text string, cfg map[string]any) (*types.ExtractionResult, error) {
	minConf := floatOption(cfg, "min_confidence", 0.5)

	type hit struct {
		first int
		count int
	}
	hits := map[string]*hit{}
	var order []string
	for _, loc := range entityPattern.FindAllStringIndex(text, -1) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		surface := text[loc[0]:loc[1]]
		h, ok := hits[surface]
		if !ok {
			h = &hit{first: loc[0]}
			hits[surface] = h
			order = append(order, surface)
		}
		h.count++
	}

	result := &types.ExtractionResult{}
	for _, surface := range order {
		h := hits[surface]
		conf := 0.5 + 0.1*float64(h.count-1)
		if conf > 0.9 {
			conf = 0.9
		}
		if conf < minConf {
			continue
		}
		result.Entities = append(result.Entities, types.Entity{
			Text:       surface,
			Type:       classify(surface),
			Confidence: conf,
			Attributes: map[string]string{
				"first_offset": strconv.Itoa(h.first),
				"occurrences":  strconv.Itoa(h.count),
			},
		})
	}
	result.Metadata = map[string]string{"entities": strconv.Itoa(len(result.Entities))}
	return result, nil
}

func classify(surface string) string {
	words := strings.Fields(surface)
	last := words[len(words)-1]
	for _, s := range organizationSuffixes {
		if last == s || words[0] == s {
			return "organization"
		}
	}
	for _, s := range locationSuffixes {
		if last == s {
			return "location"
		}
	}
	if len(words) == 2 {
		return "person"
	}
	return "named_entity"
}

// intOption reads an integer config value. YAML and JSON decoding hand
// numbers over as int or float64.
func intOption(cfg map[string]any, key string, def int) int {
	switch v := cfg[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func floatOption(cfg map[string]any, key string, def float64) float64 {
	switch v := cfg[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
