// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/kbforge/internal/graph"
)

// --- quality-report ---

var qualityReportCmd = &cobra.Command{
	Use:   "quality-report",
	Short: "Summarise completeness, findability, and gaps across the knowledge base",
	Long: `Quality-report reads every document under the KB root and prints a JSON
report: document counts, score statistics, and gap counts. Documents that
cannot be parsed are listed under gaps.invalid instead of failing the run.`,
	Args: cobra.NoArgs,
	RunE: runQualityReport,
}

func runQualityReport(cmd *cobra.Command, args []string) error {
	output, _ := cmd.Flags().GetString("output")

	o, err := newOrchestrator(cmd)
	if err != nil {
		return err
	}
	defer o.Close()

	r, err := o.QualityReport(context.Background(), kbRoot(cmd))
	if err != nil {
		return err
	}
	return withOutput(cmd, output, func(w io.Writer) error { return r.WriteJSON(w) })
}

// --- export-graph ---

var exportGraphCmd = &cobra.Command{
	Use:   "export-graph",
	Short: "Export the concept graph as JSON or GraphML",
	Long: `Export-graph builds a node/edge graph from related_concepts and backlinks
across the knowledge base. Both formats carry the same nodes and edges.`,
	Args: cobra.NoArgs,
	RunE: runExportGraph,
}

func runExportGraph(cmd *cobra.Command, args []string) error {
	formatName, _ := cmd.Flags().GetString("format")
	output, _ := cmd.Flags().GetString("output")

	format, err := graph.ParseFormat(formatName)
	if err != nil {
		return err
	}

	o, err := newOrchestrator(cmd)
	if err != nil {
		return err
	}
	defer o.Close()

	return withOutput(cmd, output, func(w io.Writer) error {
		g, err := o.ExportGraph(context.Background(), kbRoot(cmd), format, w)
		if err != nil {
			return err
		}
		if output != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d nodes, %d edges to %s\n", len(g.Nodes), len(g.Edges), output)
		}
		return nil
	})
}

// withOutput runs write against the named file, or stdout when name is empty.
func withOutput(cmd *cobra.Command, name string, write func(io.Writer) error) error {
	if name == "" {
		return write(cmd.OutOrStdout())
	}
	f, err := os.Create(name)
	if err != nil {
		return fmt.Errorf("creating %s: %w", name, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func init() {
	qualityReportCmd.Flags().StringP("output", "o", "", "write the report to a file instead of stdout")

	exportGraphCmd.Flags().String("format", "json", "output format: json or graphml")
	exportGraphCmd.Flags().StringP("output", "o", "", "write the graph to a file instead of stdout")

	rootCmd.AddCommand(qualityReportCmd)
	rootCmd.AddCommand(exportGraphCmd)
}
