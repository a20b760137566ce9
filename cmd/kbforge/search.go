// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/kbforge/internal/kb"
	"github.com/pdiddy/kbforge/internal/knowledge"
	"github.com/pdiddy/kbforge/pkg/types"
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Query the knowledge base catalog",
	Long: `Search queries the SQLite catalog at <kb-root>/.kbforge/catalog.db by
text and structured filters (type, topic, tag). Every query term must match
the title or body; title matches rank first.

Use --sync to bring the catalog up to date with the document tree first.
Unchanged documents are skipped. Use --export to write the matching
documents to .kbforge/catalog.yaml or catalog.json.`,
	RunE: runSearch,
}

func runSearch(cmd *cobra.Command, args []string) error {
	sync, _ := cmd.Flags().GetBool("sync")
	export, _ := cmd.Flags().GetString("export")
	maxResults, _ := cmd.Flags().GetInt("max-results")
	ctx := context.Background()
	out := cmd.OutOrStdout()

	store, err := knowledge.NewStore(kbRoot(cmd), maxResults)
	if err != nil {
		return err
	}
	defer store.Close()

	if sync {
		entries, err := kb.NewStore(kbRoot(cmd)).Walk()
		if err != nil {
			return err
		}
		summary, err := store.Sync(ctx, entries, out)
		if err != nil {
			return err
		}
		if summary.Failed > 0 {
			return fmt.Errorf("%d document(s) failed indexing", summary.Failed)
		}
	}

	opts := queryOptsFromFlags(cmd, args)

	switch export {
	case "":
	case "yaml":
		path, err := store.ExportYAML(ctx, opts)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Exported to %s\n", path)
		return nil
	case "json":
		path, err := store.ExportJSON(ctx, opts)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Exported to %s\n", path)
		return nil
	default:
		return fmt.Errorf("unsupported export format %q: use yaml or json", export)
	}

	if opts.IsEmpty() {
		if sync {
			return nil
		}
		return fmt.Errorf("query or filter required: provide a search query, --type, --topic, or --tag")
	}

	results, err := store.Search(ctx, opts)
	if err != nil {
		return err
	}
	jsonOutput, _ := cmd.Flags().GetBool("json")
	return formatSearchOutput(out, results, jsonOutput)
}

func formatSearchOutput(w io.Writer, results []knowledge.QueryResult, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	if len(results) == 0 {
		fmt.Fprintln(w, "No results found.")
		return nil
	}

	fmt.Fprintf(w, "%-4s  %-7s  %-40s  %-30s  %s\n", "Rank", "Type", "KB ID", "Title", "Find.")
	fmt.Fprintln(w, strings.Repeat("-", 96))
	for i, r := range results {
		fmt.Fprintf(w, "%-4d  %-7s  %-40s  %-30s  %.2f\n",
			i+1, r.DocType, truncate(r.KBID, 40), truncate(r.Title, 30), r.Findability)
		if r.Snippet != "" {
			fmt.Fprintf(w, "      %s\n", truncate(r.Snippet, 88))
		}
	}
	fmt.Fprintf(w, "\n%d results\n", len(results))
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func queryOptsFromFlags(cmd *cobra.Command, args []string) knowledge.QueryOptions {
	queryText, _ := cmd.Flags().GetString("query")
	if queryText == "" && len(args) > 0 {
		queryText = strings.Join(args, " ")
	}
	docType, _ := cmd.Flags().GetString("type")
	topic, _ := cmd.Flags().GetString("topic")
	tags, _ := cmd.Flags().GetStringSlice("tag")
	limit, _ := cmd.Flags().GetInt("limit")

	return knowledge.QueryOptions{
		Query:      queryText,
		DocType:    types.DocType(docType),
		Topic:      topic,
		Tags:       tags,
		MaxResults: limit,
	}
}

func init() {
	searchCmd.Flags().String("query", "", "text query")
	searchCmd.Flags().String("type", "", "filter by document type: concept or entity")
	searchCmd.Flags().String("topic", "", "filter by primary topic")
	searchCmd.Flags().StringSlice("tag", nil, "filter by tag (repeatable, all must match)")
	searchCmd.Flags().Int("limit", 0, "maximum results (0 = use default)")
	searchCmd.Flags().Int("max-results", 20, "default result limit")
	searchCmd.Flags().Bool("json", false, "output results as JSON")
	searchCmd.Flags().Bool("sync", false, "sync the catalog with the document tree before searching")
	searchCmd.Flags().String("export", "", "export matching documents: yaml or json")

	rootCmd.AddCommand(searchCmd)
}
