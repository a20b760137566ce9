// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package kb reads and writes knowledge documents under a KB root. Each
// document lives at <root>/<kb_id>.md as a YAML front-matter block
// followed by the rendered Markdown body.
package kb

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/kbforge/pkg/types"
)

const (
	docExt    = ".md"
	delimiter = "---"
)

// frontMatter is the on-disk header layout. Body is stored after it.
type frontMatter struct {
	Title           string           `yaml:"title"`
	Slug            string           `yaml:"slug"`
	KBID            string           `yaml:"kb_id"`
	Type            types.DocType    `yaml:"type"`
	PrimaryTopic    string           `yaml:"primary_topic"`
	SecondaryTopics []string         `yaml:"secondary_topics,omitempty"`
	Tags            []string         `yaml:"tags,omitempty"`
	Aliases         []string         `yaml:"aliases,omitempty"`
	RelatedConcepts []string         `yaml:"related_concepts,omitempty"`
	Sources         []string         `yaml:"sources,omitempty"`
	DC              types.DublinCore `yaml:"dc"`
	IA              types.IAMetadata `yaml:"ia"`
}

// Entry is one document found by Walk. Err is set, wrapping
// types.ErrMalformed, when the file could not be parsed; Doc is nil then.
type Entry struct {
	Path string
	KBID string
	Doc  *types.KBDocument
	Err  error
}

// Store addresses documents under one KB root.
type Store struct {
	root string
}

// NewStore creates a store rooted at root.
func NewStore(root string) *Store {
	return &Store{root: root}
}

// Root returns the KB root directory.
func (s *Store) Root() string { return s.root }

// Path maps a kb_id to its file. IDs that would escape the root are rejected.
func (s *Store) Path(kbID string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(strings.TrimSpace(kbID)))
	if clean == "." || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", types.ConfigError("kb_id", "%q is not a path inside the KB root", kbID)
	}
	return filepath.Join(s.root, clean+docExt), nil
}

// Exists reports whether a document file exists for kbID.
func (s *Store) Exists(kbID string) bool {
	p, err := s.Path(kbID)
	if err != nil {
		return false
	}
	_, err = os.Stat(p)
	return err == nil
}

// Read loads the document for kbID. A missing file wraps types.ErrNotFound;
// an unparseable one, or one whose kb_id names another path, wraps
// types.ErrMalformed.
func (s *Store) Read(kbID string) (*types.KBDocument, error) {
	p, err := s.Path(kbID)
	if err != nil {
		return nil, err
	}
	return readAt(p, kbID)
}

// Write validates doc and writes it, creating parent directories. An
// invalid document is never written.
func (s *Store) Write(doc *types.KBDocument) (string, error) {
	if err := doc.Validate(); err != nil {
		return "", fmt.Errorf("refusing to write %s: %w", doc.KBID, err)
	}
	p, err := s.Path(doc.KBID)
	if err != nil {
		return "", err
	}
	data, err := Marshal(doc)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", fmt.Errorf("creating directory for %s: %w", doc.KBID, err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", p, err)
	}
	return p, nil
}

// Walk returns every document under the root, sorted by path. Directories
// whose names start with "." are skipped. Malformed documents are returned
// with Err set instead of aborting the walk.
func (s *Store) Walk() ([]Entry, error) {
	var entries []Entry
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != s.root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(p) != docExt {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		e := Entry{Path: p, KBID: filepath.ToSlash(strings.TrimSuffix(rel, docExt))}
		e.Doc, e.Err = readAt(p, e.KBID)
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("walking %s: %w", s.root, types.ErrNotFound)
		}
		return nil, fmt.Errorf("walking %s: %w", s.root, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

// readAt reads the document at p and checks that its kb_id matches the
// id its location implies. A mismatched file would be rewritten elsewhere.
func readAt(p, kbID string) (*types.KBDocument, error) {
	doc, err := readFile(p)
	if err != nil {
		return nil, err
	}
	if doc.KBID != kbID {
		return nil, fmt.Errorf("%s: %w: kb_id %q does not match its path (want %q)", p, types.ErrMalformed, doc.KBID, kbID)
	}
	return doc, nil
}

func readFile(p string) (*types.KBDocument, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("reading %s: %w", p, types.ErrNotFound)
		}
		return nil, fmt.Errorf("reading %s: %w", p, err)
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", p, err)
	}
	return doc, nil
}

// Marshal renders doc as front matter plus body.
func Marshal(doc *types.KBDocument) ([]byte, error) {
	fm := frontMatter{
		Title:           doc.Title,
		Slug:            doc.Slug,
		KBID:            doc.KBID,
		Type:            doc.Metadata.DocType,
		PrimaryTopic:    doc.Metadata.PrimaryTopic,
		SecondaryTopics: doc.Metadata.SecondaryTopics,
		Tags:            doc.Metadata.Tags,
		Aliases:         doc.Aliases,
		RelatedConcepts: doc.RelatedConcepts,
		Sources:         doc.Metadata.Sources,
		DC:              doc.Metadata.DC,
		IA:              doc.Metadata.IA,
	}
	header, err := yaml.Marshal(&fm)
	if err != nil {
		return nil, fmt.Errorf("marshaling front matter for %s: %w", doc.KBID, err)
	}

	var b bytes.Buffer
	b.WriteString(delimiter + "\n")
	b.Write(header)
	b.WriteString(delimiter + "\n\n")
	b.WriteString(doc.Body)
	return b.Bytes(), nil
}

// Parse reads a document written by Marshal. Missing or unparseable front
// matter, or a header without kb_id, wraps types.ErrMalformed.
func Parse(data []byte) (*types.KBDocument, error) {
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	if !strings.HasPrefix(text, delimiter+"\n") {
		return nil, fmt.Errorf("%w: missing front matter", types.ErrMalformed)
	}
	rest := text[len(delimiter)+1:]
	end := strings.Index(rest, "\n"+delimiter+"\n")
	var header, body string
	switch {
	case end >= 0:
		header = rest[:end+1]
		body = rest[end+len(delimiter)+2:]
	case strings.HasSuffix(rest, "\n"+delimiter):
		header = rest[:len(rest)-len(delimiter)]
	default:
		return nil, fmt.Errorf("%w: unterminated front matter", types.ErrMalformed)
	}

	var fm frontMatter
	if err := yaml.Unmarshal([]byte(header), &fm); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrMalformed, err)
	}
	if fm.KBID == "" {
		return nil, fmt.Errorf("%w: front matter has no kb_id", types.ErrMalformed)
	}

	return &types.KBDocument{
		KBID:            fm.KBID,
		Slug:            fm.Slug,
		Title:           fm.Title,
		Aliases:         fm.Aliases,
		RelatedConcepts: fm.RelatedConcepts,
		Body:            strings.TrimPrefix(body, "\n"),
		Metadata: types.KBMetadata{
			DocType:         fm.Type,
			PrimaryTopic:    fm.PrimaryTopic,
			SecondaryTopics: fm.SecondaryTopics,
			Tags:            fm.Tags,
			DC:              fm.DC,
			IA:              fm.IA,
			Sources:         fm.Sources,
		},
	}, nil
}

// Touch sets the document's last-updated time to now.
func Touch(doc *types.KBDocument, now time.Time) {
	doc.Metadata.IA.LastUpdated = now.UTC()
}
