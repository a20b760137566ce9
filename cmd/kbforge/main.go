// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the kbforge CLI. Each operation of
// the knowledge-base pipeline is a subcommand: process, update, improve,
// quality-report, export-graph and search.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/kbforge/internal/config"
	"github.com/pdiddy/kbforge/internal/extract"
	"github.com/pdiddy/kbforge/internal/heuristic"
	"github.com/pdiddy/kbforge/internal/telemetry"
	"github.com/pdiddy/kbforge/internal/workflow"
	"github.com/pdiddy/kbforge/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// rootCmd is the base command for the kbforge CLI.
var rootCmd = &cobra.Command{
	Use:   "kbforge",
	Short: "Build and maintain a Markdown knowledge base from source text",
	Long: `kbforge turns source documents into a tree of Markdown knowledge documents
with YAML front matter. Extraction routines find concepts and entities, each
fact becomes a document at <kb-root>/<kb_id>.md, and linking keeps
back-references consistent across the tree.

Operations are subcommands: process, update, improve, quality-report,
export-graph, and search.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbose, _ := cmd.Flags().GetBool("verbose")
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./kbforge.yaml or ~/.config/kbforge/kbforge.yaml)")
	rootCmd.PersistentFlags().String("kb-root", "kb", "root directory of the knowledge base")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().Bool("progress", false, "print extraction progress even when stderr is not a terminal")
}

// initConfig locates the config file. Decoding and validation happen in
// config.Load once a command needs the pipeline configuration.
func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("kbforge")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "kbforge"))
		}
	}

	viper.SetEnvPrefix(config.EnvPrefix)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// loadConfig returns the validated pipeline configuration. An explicit
// --config that cannot be read is an error; a missing default file is not.
func loadConfig(cmd *cobra.Command) (types.PipelineConfig, error) {
	explicit, _ := cmd.Flags().GetString("config")
	path := viper.ConfigFileUsed()
	if explicit != "" {
		path = explicit
	} else if path != "" {
		if _, err := os.Stat(path); err != nil {
			path = ""
		}
	}
	return config.Load(path)
}

// newOrchestrator builds an orchestrator over the built-in extraction
// routines. Per-extractor progress goes to stderr when it is a terminal or
// --progress is set.
func newOrchestrator(cmd *cobra.Command) (*workflow.Orchestrator, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	opts := []workflow.Option{
		workflow.WithLogger(slog.Default()),
		workflow.WithMetrics(telemetry.New()),
	}
	progress, _ := cmd.Flags().GetBool("progress")
	if progress || isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		opts = append(opts, workflow.WithProgress(extract.WriterProgress(cmd.ErrOrStderr())))
	}
	return workflow.New(cfg, heuristic.Registry(), opts...)
}

func kbRoot(cmd *cobra.Command) string {
	root, _ := cmd.Flags().GetString("kb-root")
	return root
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
