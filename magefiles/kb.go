//go:build mage

package main

import (
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// KB groups targets that run the CLI against the local knowledge base.
type KB mg.Namespace

const kbRoot = "kb"

func cli(args ...string) error {
	mg.Deps(Build)
	return sh.RunV(filepath.Join(binDir, binName), append(args, "--kb-root", kbRoot)...)
}

// Process extracts everything under sources/ into kb/.
func (KB) Process() error {
	return cli("process", "sources")
}

// Improve repairs missing backlinks in kb/ and reports gaps.
func (KB) Improve() error {
	return cli("improve")
}

// Report prints the quality report for kb/.
func (KB) Report() error {
	return cli("quality-report")
}

// Graph writes the concept graph of kb/ as GraphML.
func (KB) Graph() error {
	return cli("export-graph", "--format", "graphml", "--output", "output/graph.graphml")
}

// Index syncs the SQLite catalog with kb/.
func (KB) Index() error {
	return cli("search", "--sync")
}
