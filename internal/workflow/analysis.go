// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package workflow

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pdiddy/kbforge/pkg/types"
)

// AnalysisSummary is stored in Extra["analysis"].
type AnalysisSummary struct {
	Files      []string
	Segments   int
	Characters int
}

// segment is a heading-delimited run of source text.
type segment struct {
	heading string
	body    string
}

type analysisStage struct {
	extensions []string
}

func (s *analysisStage) Name() string { return StageAnalysis }

// Run collects every matching file under the source path into one text.
func (s *analysisStage) Run(ctx context.Context, pc *ProcessingContext) (StageResult, error) {
	res := newStageResult(StageAnalysis)

	files, err := s.collect(pc.SourcePath)
	if err != nil {
		return res, err
	}

	var (
		parts    []string
		segments int
	)
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		data, err := os.ReadFile(f)
		if err != nil {
			return res, fmt.Errorf("reading %s: %w", f, err)
		}
		content := strings.ReplaceAll(string(data), "\r\n", "\n")
		if strings.TrimSpace(content) == "" {
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s is empty", f))
			continue
		}
		segments += len(splitSegments(content))
		parts = append(parts, strings.TrimSpace(content))
	}

	pc.Text = strings.Join(parts, "\n\n")
	pc.Sources = []string{sourceReference(pc.SourcePath)}

	summary := AnalysisSummary{Files: files, Segments: segments, Characters: len([]rune(pc.Text))}
	pc.Extra[StageAnalysis] = summary

	res.Metrics["files"] = float64(len(files))
	res.Metrics["segments"] = float64(summary.Segments)
	res.Metrics["characters"] = float64(summary.Characters)
	return res, nil
}

// collect returns the source file itself, or every file under a source
// directory whose extension is configured, sorted.
func (s *analysisStage) collect(source string) ([]string, error) {
	info, err := os.Stat(source)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", source, types.ErrNotFound)
	}
	if !info.IsDir() {
		return []string{source}, nil
	}

	allowed := make(map[string]bool, len(s.extensions))
	for _, ext := range s.extensions {
		allowed[strings.ToLower(ext)] = true
	}

	var files []string
	err = filepath.WalkDir(source, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != source && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if allowed[strings.ToLower(filepath.Ext(p))] {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", source, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no %s files under %s: %w", strings.Join(s.extensions, "/"), source, types.ErrNotFound)
	}
	sort.Strings(files)
	return files, nil
}

// splitSegments splits Markdown into heading-delimited segments. Text
// before the first heading forms its own segment when not blank.
func splitSegments(content string) []segment {
	var (
		segments []segment
		heading  string
		lines    []string
	)

	flush := func() {
		body := strings.Join(lines, "\n")
		if heading != "" || strings.TrimSpace(body) != "" {
			segments = append(segments, segment{heading: heading, body: body})
		}
		lines = nil
	}

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if isHeading(trimmed) {
			flush()
			heading = strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
			continue
		}
		lines = append(lines, line)
	}
	flush()
	return segments
}

func isHeading(line string) bool {
	if !strings.HasPrefix(line, "#") {
		return false
	}
	rest := strings.TrimLeft(line, "#")
	return len(line)-len(rest) <= 6 && strings.HasPrefix(rest, " ")
}

// sourceReference is the stable form of a source path recorded in documents.
func sourceReference(p string) string {
	return filepath.ToSlash(filepath.Clean(p))
}
