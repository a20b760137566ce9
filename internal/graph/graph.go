// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package graph builds the concept graph of a KB tree and serializes it
// as JSON or GraphML. Both writers consume the same Graph value, so they
// always agree on node and edge counts.
package graph

import (
	"sort"
	"strings"

	"github.com/pdiddy/kbforge/internal/kb"
	"github.com/pdiddy/kbforge/pkg/types"
)

// Edge kinds.
const (
	// KindRelated is an outbound related_concepts reference.
	KindRelated = "related"

	// KindBacklink is a related_by_topic entry, pointing from the document
	// that records it to the document that referenced it.
	KindBacklink = "backlink"
)

// Node is one document, or a referenced id with no document behind it.
type Node struct {
	ID      string        `json:"id"`
	Title   string        `json:"title,omitempty"`
	Type    types.DocType `json:"type,omitempty"`
	Topic   string        `json:"topic,omitempty"`
	Tags    []string      `json:"tags,omitempty"`
	Missing bool          `json:"missing,omitempty"`
}

// Edge is a directed link between two nodes.
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Kind   string `json:"kind"`
}

// Graph holds nodes sorted by ID and edges sorted by (source, target, kind).
type Graph struct {
	Nodes []Node `json:"concepts"`
	Edges []Edge `json:"edges"`
}

// Build assembles the graph from a tree walk. Malformed entries are skipped.
func Build(entries []kb.Entry) *Graph {
	nodes := map[string]*Node{}
	var docs []*types.KBDocument
	for _, e := range entries {
		if e.Err != nil || e.Doc == nil {
			continue
		}
		d := e.Doc
		docs = append(docs, d)
		nodes[d.KBID] = &Node{
			ID:    d.KBID,
			Title: d.Title,
			Type:  d.Metadata.DocType,
			Topic: d.Metadata.PrimaryTopic,
			Tags:  d.Metadata.Tags,
		}
	}

	seen := map[Edge]bool{}
	var edges []Edge
	add := func(source, target, kind string) {
		source, target = strings.TrimSpace(source), strings.TrimSpace(target)
		if source == "" || target == "" || source == target {
			return
		}
		e := Edge{Source: source, Target: target, Kind: kind}
		if seen[e] {
			return
		}
		seen[e] = true
		edges = append(edges, e)
		for _, id := range []string{source, target} {
			if _, ok := nodes[id]; !ok {
				nodes[id] = &Node{ID: id, Missing: true}
			}
		}
	}

	for _, d := range docs {
		for _, target := range d.RelatedConcepts {
			add(d.KBID, target, KindRelated)
		}
		for _, from := range d.Metadata.IA.RelatedByTopic {
			add(d.KBID, from, KindBacklink)
		}
	}

	g := &Graph{Nodes: make([]Node, 0, len(nodes)), Edges: edges}
	for _, n := range nodes {
		g.Nodes = append(g.Nodes, *n)
	}
	sort.Slice(g.Nodes, func(i, j int) bool { return g.Nodes[i].ID < g.Nodes[j].ID })
	sort.Slice(g.Edges, func(i, j int) bool {
		a, b := g.Edges[i], g.Edges[j]
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		if a.Target != b.Target {
			return a.Target < b.Target
		}
		return a.Kind < b.Kind
	})
	if g.Edges == nil {
		g.Edges = []Edge{}
	}
	return g
}

// Missing returns the number of nodes with no document behind them.
func (g *Graph) Missing() int {
	n := 0
	for _, node := range g.Nodes {
		if node.Missing {
			n++
		}
	}
	return n
}

// Format is a graph serialization.
type Format string

const (
	FormatJSON    Format = "json"
	FormatGraphML Format = "graphml"
)

// ParseFormat accepts "json" or "graphml", case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatJSON:
		return FormatJSON, nil
	case FormatGraphML, "xml":
		return FormatGraphML, nil
	}
	return "", types.ConfigError("format", "unknown graph format %q (want json or graphml)", s)
}

// Ext returns the conventional file extension for f.
func (f Format) Ext() string {
	if f == FormatGraphML {
		return ".graphml"
	}
	return ".json"
}
