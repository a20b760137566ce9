// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package transform

import (
	"strings"
	"time"

	"github.com/pdiddy/kbforge/pkg/types"
)

const (
	defaultConceptRoot = "concepts"
	defaultEntityRoot  = "entities"
)

// ContextOptions are the raw inputs to NewContext.
type ContextOptions struct {
	PrimaryTopic      string
	SecondaryTopics   []string
	DefaultTags       []string
	Audience          []string
	Language          string
	ConceptRoot       string
	EntityRoot        string
	EntityTypeMapping map[string]string

	FindabilityBaseline  float64
	CompletenessBaseline float64
	Depth                int

	// SourceReferences must hold at least one non-blank entry.
	SourceReferences []string

	// Timestamp stamps documents. Zero means the transformer's clock.
	Timestamp time.Time

	Creator         string
	UpdateFrequency string
}

// OptionsFromConfig builds ContextOptions from the transformation section.
func OptionsFromConfig(cfg types.TransformationConfig, sources []string) ContextOptions {
	return ContextOptions{
		PrimaryTopic:         cfg.PrimaryTopic,
		SecondaryTopics:      cfg.SecondaryTopics,
		DefaultTags:          cfg.DefaultTags,
		Audience:             cfg.Audience,
		Language:             cfg.Language,
		ConceptRoot:          cfg.ConceptRoot,
		EntityRoot:           cfg.EntityRoot,
		EntityTypeMapping:    cfg.EntityTypeMapping,
		FindabilityBaseline:  cfg.FindabilityBaseline,
		CompletenessBaseline: cfg.CompletenessBaseline,
		Depth:                cfg.Depth,
		SourceReferences:     sources,
		Creator:              cfg.Creator,
		UpdateFrequency:      cfg.UpdateFrequency,
	}
}

// Context is the normalized, validated input for building documents. It
// is only obtainable through NewContext and never changes afterwards.
type Context struct {
	primaryTopic    string
	secondaryTopics []string
	defaultTags     []string
	audience        []string
	language        string
	conceptRoot     string
	entityRoot      string
	typeMapping     map[string]string

	findabilityBaseline  float64
	completenessBaseline float64
	depth                int

	sources   []string
	timestamp time.Time

	creator         string
	updateFrequency string
}

// NewContext validates opts and normalizes every string field to a slug.
func NewContext(opts ContextOptions) (*Context, error) {
	if !(opts.FindabilityBaseline >= 0 && opts.FindabilityBaseline <= 1) {
		return nil, types.ConfigError("findability_baseline", "%v outside [0,1]", opts.FindabilityBaseline)
	}
	if !(opts.CompletenessBaseline >= 0 && opts.CompletenessBaseline <= 1) {
		return nil, types.ConfigError("completeness_baseline", "%v outside [0,1]", opts.CompletenessBaseline)
	}
	if opts.Depth <= 0 {
		return nil, types.ConfigError("depth", "must be positive, got %d", opts.Depth)
	}
	if strings.TrimSpace(opts.PrimaryTopic) == "" {
		return nil, types.ConfigError("primary_topic", "must not be empty")
	}
	sources := uniqueTrimmed(opts.SourceReferences)
	if len(sources) == 0 {
		return nil, types.ConfigError("source_references", "at least one source reference is required")
	}

	c := &Context{
		primaryTopic:         Slugify(opts.PrimaryTopic),
		secondaryTopics:      slugifyAll(opts.SecondaryTopics),
		defaultTags:          slugifyAll(opts.DefaultTags),
		audience:             slugifyAll(opts.Audience),
		conceptRoot:          slugifyPath(opts.ConceptRoot),
		entityRoot:           slugifyPath(opts.EntityRoot),
		findabilityBaseline:  opts.FindabilityBaseline,
		completenessBaseline: opts.CompletenessBaseline,
		depth:                opts.Depth,
		sources:              sources,
		timestamp:            opts.Timestamp,
		creator:              strings.TrimSpace(opts.Creator),
		updateFrequency:      strings.TrimSpace(opts.UpdateFrequency),
	}
	if strings.TrimSpace(opts.Language) != "" {
		c.language = Slugify(opts.Language)
	}
	if c.conceptRoot == "" {
		c.conceptRoot = defaultConceptRoot
	}
	if c.entityRoot == "" {
		c.entityRoot = defaultEntityRoot
	}
	if len(opts.EntityTypeMapping) > 0 {
		c.typeMapping = make(map[string]string, len(opts.EntityTypeMapping))
		for k, v := range opts.EntityTypeMapping {
			if strings.TrimSpace(k) == "" {
				continue
			}
			if cat := slugifyPath(v); cat != "" {
				c.typeMapping[Slugify(k)] = cat
			}
		}
	}
	return c, nil
}

// PrimaryTopic returns the slugified primary topic.
func (c *Context) PrimaryTopic() string { return c.primaryTopic }

// ConceptRoot returns the slugified concept root.
func (c *Context) ConceptRoot() string { return c.conceptRoot }

// SourceReferences returns a copy of the source references.
func (c *Context) SourceReferences() []string {
	return append([]string(nil), c.sources...)
}

// category resolves an entity type to its directory.
func (c *Context) category(entityType string) string {
	if strings.TrimSpace(entityType) == "" {
		return "unclassified"
	}
	key := Slugify(entityType)
	if cat, ok := c.typeMapping[key]; ok {
		return cat
	}
	return key
}
