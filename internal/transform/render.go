// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package transform

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/pdiddy/kbforge/pkg/types"
)

// renderConcept produces the Markdown body for a concept. Output depends
// only on its arguments.
func renderConcept(c types.Concept, term string, related []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", term)
	fmt.Fprintf(&b, "**Frequency:** %d\n", c.Frequency)
	if len(c.Positions) > 0 {
		pos := make([]string, len(c.Positions))
		for i, p := range c.Positions {
			pos[i] = strconv.Itoa(p)
		}
		fmt.Fprintf(&b, "\n**Positions:** %s\n", strings.Join(pos, ", "))
	}
	if def := strings.TrimSpace(c.Definition); def != "" {
		fmt.Fprintf(&b, "\n## Definition\n\n%s\n", def)
	}
	writeList(&b, "Related Terms", related)
	return b.String()
}

// renderEntity produces the Markdown body for an entity. Attributes are
// listed in key order.
func renderEntity(e types.Entity, text string, aliases, related []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", text)
	typ := strings.TrimSpace(e.Type)
	if typ == "" {
		typ = "unclassified"
	}
	fmt.Fprintf(&b, "**Type:** %s\n\n", typ)
	fmt.Fprintf(&b, "**Confidence:** %.2f\n", e.Confidence)

	if len(e.Attributes) > 0 {
		keys := make([]string, 0, len(e.Attributes))
		for k := range e.Attributes {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("\n## Attributes\n\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "- **%s:** %s\n", k, e.Attributes[k])
		}
	}
	writeList(&b, "Aliases", aliases)
	writeList(&b, "Related", related)
	return b.String()
}

func writeList(b *strings.Builder, heading string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "\n## %s\n\n", heading)
	for _, it := range items {
		fmt.Fprintf(b, "- %s\n", it)
	}
}
