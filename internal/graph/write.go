// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package graph

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Write serializes g in format f.
func Write(w io.Writer, g *Graph, f Format) error {
	switch f {
	case FormatJSON:
		return WriteJSON(w, g)
	case FormatGraphML:
		return WriteGraphML(w, g)
	}
	return fmt.Errorf("unsupported graph format %q", f)
}

// WriteJSON writes {"concepts": [...], "edges": [...]}.
func WriteJSON(w io.Writer, g *Graph) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(g); err != nil {
		return fmt.Errorf("encoding graph JSON: %w", err)
	}
	return nil
}

const graphMLNamespace = "http://graphml.graphdrawing.org/xmlns"

type graphMLDoc struct {
	XMLName xml.Name     `xml:"graphml"`
	XMLNS   string       `xml:"xmlns,attr"`
	Keys    []graphMLKey `xml:"key"`
	Graph   graphMLGraph `xml:"graph"`
}

type graphMLKey struct {
	ID   string `xml:"id,attr"`
	For  string `xml:"for,attr"`
	Name string `xml:"attr.name,attr"`
	Type string `xml:"attr.type,attr"`
}

type graphMLGraph struct {
	ID          string        `xml:"id,attr"`
	EdgeDefault string        `xml:"edgedefault,attr"`
	Nodes       []graphMLNode `xml:"node"`
	Edges       []graphMLEdge `xml:"edge"`
}

type graphMLNode struct {
	ID   string        `xml:"id,attr"`
	Data []graphMLData `xml:"data"`
}

type graphMLEdge struct {
	ID     string        `xml:"id,attr"`
	Source string        `xml:"source,attr"`
	Target string        `xml:"target,attr"`
	Data   []graphMLData `xml:"data"`
}

type graphMLData struct {
	Key   string `xml:"key,attr"`
	Value string `xml:",chardata"`
}

var graphMLKeys = []graphMLKey{
	{ID: "title", For: "node", Name: "title", Type: "string"},
	{ID: "type", For: "node", Name: "type", Type: "string"},
	{ID: "topic", For: "node", Name: "topic", Type: "string"},
	{ID: "tags", For: "node", Name: "tags", Type: "string"},
	{ID: "missing", For: "node", Name: "missing", Type: "boolean"},
	{ID: "kind", For: "edge", Name: "kind", Type: "string"},
}

// WriteGraphML writes g as a directed GraphML document.
func WriteGraphML(w io.Writer, g *Graph) error {
	doc := graphMLDoc{
		XMLNS: graphMLNamespace,
		Keys:  graphMLKeys,
		Graph: graphMLGraph{ID: "kb", EdgeDefault: "directed"},
	}
	for _, n := range g.Nodes {
		gn := graphMLNode{ID: n.ID}
		gn.Data = appendData(gn.Data, "title", n.Title)
		gn.Data = appendData(gn.Data, "type", string(n.Type))
		gn.Data = appendData(gn.Data, "topic", n.Topic)
		gn.Data = appendData(gn.Data, "tags", strings.Join(n.Tags, ","))
		if n.Missing {
			gn.Data = appendData(gn.Data, "missing", strconv.FormatBool(true))
		}
		doc.Graph.Nodes = append(doc.Graph.Nodes, gn)
	}
	for i, e := range g.Edges {
		doc.Graph.Edges = append(doc.Graph.Edges, graphMLEdge{
			ID:     "e" + strconv.Itoa(i),
			Source: e.Source,
			Target: e.Target,
			Data:   []graphMLData{{Key: "kind", Value: e.Kind}},
		})
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return fmt.Errorf("writing GraphML header: %w", err)
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encoding GraphML: %w", err)
	}
	if err := enc.Flush(); err != nil {
		return fmt.Errorf("flushing GraphML: %w", err)
	}
	_, err := io.WriteString(w, "\n")
	return err
}

func appendData(data []graphMLData, key, value string) []graphMLData {
	if value == "" {
		return data
	}
	return append(data, graphMLData{Key: key, Value: value})
}
