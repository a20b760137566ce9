// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/kbforge/internal/workflow"
)

// --- process ---

var processCmd = &cobra.Command{
	Use:   "process <source>",
	Short: "Extract facts from a source file or directory into the knowledge base",
	Long: `Process runs the full pipeline: analysis, extraction, transformation,
organization, linking (when enabled), and quality. A directory source
collects every file with a configured extension.

Existing documents are handled by organization.collision_strategy:
replace (default), skip, or error.`,
	Args: cobra.ExactArgs(1),
	RunE: runProcess,
}

func runProcess(cmd *cobra.Command, args []string) error {
	extractors, _ := cmd.Flags().GetStringSlice("extractors")

	o, err := newOrchestrator(cmd)
	if err != nil {
		return err
	}
	defer o.Close()

	res, err := o.Process(context.Background(), args[0], kbRoot(cmd), extractors...)
	return report(cmd, res, err)
}

// --- update ---

var updateCmd = &cobra.Command{
	Use:   "update <kb-id>",
	Short: "Re-derive one document from its source and overwrite it in place",
	Long: `Update re-runs analysis, extraction, and transformation against the
document's first recorded source (or --source) and overwrites the document
at the same path. Backlinks recorded by other documents are kept.`,
	Args: cobra.ExactArgs(1),
	RunE: runUpdate,
}

func runUpdate(cmd *cobra.Command, args []string) error {
	source, _ := cmd.Flags().GetString("source")

	o, err := newOrchestrator(cmd)
	if err != nil {
		return err
	}
	defer o.Close()

	res, err := o.Update(context.Background(), args[0], kbRoot(cmd), source)
	return report(cmd, res, err)
}

// --- improve ---

var improveCmd = &cobra.Command{
	Use:   "improve",
	Short: "Repair missing backlinks and report structural gaps",
	Long: `Improve scans the whole knowledge base, appends any missing
back-references, and reports under-tagged, low-scoring, and malformed
documents. It never removes content and a second run applies no fixes.`,
	Args: cobra.NoArgs,
	RunE: runImprove,
}

func runImprove(cmd *cobra.Command, args []string) error {
	o, err := newOrchestrator(cmd)
	if err != nil {
		return err
	}
	defer o.Close()

	res, err := o.Improve(context.Background(), kbRoot(cmd))
	return report(cmd, res, err)
}

// --- shared output ---

// report prints res and returns runErr. The result of a failed run is
// still printed when one exists.
func report(cmd *cobra.Command, res *workflow.Result, runErr error) error {
	if res != nil {
		asJSON, _ := cmd.Flags().GetBool("json")
		if err := printResult(cmd.OutOrStdout(), res, asJSON); err != nil {
			return err
		}
	}
	return runErr
}

func printResult(w io.Writer, res *workflow.Result, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	fmt.Fprintf(w, "\n%s run %s (%s)\n", res.Operation, res.RunID, res.Duration().Round(time.Millisecond))

	keys := make([]string, 0, len(res.Metrics))
	for k := range res.Metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "  %-36s %g\n", k, res.Metrics[k])
	}

	for _, f := range res.Fixes {
		fmt.Fprintf(w, "fixed   %s: %s\n", f.KBID, f.Detail)
	}
	for _, warn := range res.Warnings {
		fmt.Fprintf(w, "warning %s\n", warn)
	}
	for _, e := range res.Errors {
		fmt.Fprintf(w, "failed  %s\n", e)
	}

	fmt.Fprintf(w, "\nstages: %s, fixes: %d, warnings: %d, errors: %d\n",
		stageNames(res), len(res.Fixes), len(res.Warnings), len(res.Errors))
	return nil
}

func stageNames(res *workflow.Result) string {
	names := make([]string, len(res.Stages))
	for i, s := range res.Stages {
		names[i] = s.Stage
	}
	return strings.Join(names, " > ")
}

func init() {
	processCmd.Flags().StringSlice("extractors", nil, "run only these extractors (comma-separated)")
	updateCmd.Flags().String("source", "", "source to re-analyse (default: the document's first source)")

	for _, c := range []*cobra.Command{processCmd, updateCmd, improveCmd} {
		c.Flags().Bool("json", false, "print the run result as JSON")
		rootCmd.AddCommand(c)
	}
}
