// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// AnalysisConfig holds settings for the analysis stage.
type AnalysisConfig struct {
	// Extensions lists file extensions collected from a source directory
	// (default [".md", ".txt"]).
	Extensions []string `json:"extensions" yaml:"extensions" mapstructure:"extensions"`
}

// ExtractionSettings holds settings for the extraction stage.
type ExtractionSettings struct {
	// EnabledTools is the allow-list of extractor names. Empty allows all.
	EnabledTools []string `json:"enabled_tools" yaml:"enabled_tools" mapstructure:"enabled_tools"`

	// Parallel runs selected extractors on a worker pool when more than one is selected.
	Parallel bool `json:"parallel" yaml:"parallel" mapstructure:"parallel"`

	// CacheEnabled turns on the in-process result cache.
	CacheEnabled bool `json:"cache_enabled" yaml:"cache_enabled" mapstructure:"cache_enabled"`

	// CacheTTL bounds cache entry lifetime (default 1h). Zero never expires.
	CacheTTL time.Duration `json:"cache_ttl" yaml:"cache_ttl" mapstructure:"cache_ttl"`

	// MaxStartsPerSecond throttles task starts. Zero is unlimited.
	MaxStartsPerSecond float64 `json:"max_starts_per_second" yaml:"max_starts_per_second" mapstructure:"max_starts_per_second"`

	// FailOnError aborts the run when any extractor fails.
	FailOnError bool `json:"fail_on_error" yaml:"fail_on_error" mapstructure:"fail_on_error"`

	// Tools holds per-extractor config maps, keyed by extractor name.
	Tools ExtractionConfig `json:"tools" yaml:"tools" mapstructure:"tools"`
}

// TransformationConfig holds settings for turning facts into documents.
type TransformationConfig struct {
	PrimaryTopic    string   `json:"primary_topic" yaml:"primary_topic" mapstructure:"primary_topic"`
	SecondaryTopics []string `json:"secondary_topics" yaml:"secondary_topics" mapstructure:"secondary_topics"`
	DefaultTags     []string `json:"default_tags" yaml:"default_tags" mapstructure:"default_tags"`
	Audience        []string `json:"audience" yaml:"audience" mapstructure:"audience"`
	Language        string   `json:"language" yaml:"language" mapstructure:"language"`

	// ConceptRoot and EntityRoot are the first kb_id segment for each document kind.
	ConceptRoot string `json:"concept_root" yaml:"concept_root" mapstructure:"concept_root"`
	EntityRoot  string `json:"entity_root" yaml:"entity_root" mapstructure:"entity_root"`

	// EntityTypeMapping maps an entity type to its category directory.
	EntityTypeMapping map[string]string `json:"entity_type_mapping" yaml:"entity_type_mapping" mapstructure:"entity_type_mapping"`

	FindabilityBaseline  float64 `json:"findability_baseline" yaml:"findability_baseline" mapstructure:"findability_baseline"`
	CompletenessBaseline float64 `json:"completeness_baseline" yaml:"completeness_baseline" mapstructure:"completeness_baseline"`
	Depth                int     `json:"depth" yaml:"depth" mapstructure:"depth"`

	// Creator fills the Dublin Core creator field.
	Creator string `json:"creator" yaml:"creator" mapstructure:"creator"`

	UpdateFrequency string `json:"update_frequency" yaml:"update_frequency" mapstructure:"update_frequency"`

	// Strict aborts the run on the first document that fails validation.
	// Otherwise the failure is recorded and the document is not written.
	Strict bool `json:"strict" yaml:"strict" mapstructure:"strict"`
}

// CollisionStrategy decides what organization does when a kb_id already exists.
type CollisionStrategy string

const (
	// CollisionReplace overwrites the existing document in place.
	CollisionReplace CollisionStrategy = "replace"

	// CollisionSkip keeps the existing document and records a warning.
	CollisionSkip CollisionStrategy = "skip"

	// CollisionError fails the organization stage.
	CollisionError CollisionStrategy = "error"
)

// OrganizationConfig holds settings for writing documents.
type OrganizationConfig struct {
	CollisionStrategy CollisionStrategy `json:"collision_strategy" yaml:"collision_strategy" mapstructure:"collision_strategy"`

	// IndexGeneration syncs written documents into the SQLite catalog.
	IndexGeneration bool `json:"index_generation" yaml:"index_generation" mapstructure:"index_generation"`
}

// LinkingConfig holds settings for the linking stage.
type LinkingConfig struct {
	BuildConceptGraph bool `json:"build_concept_graph" yaml:"build_concept_graph" mapstructure:"build_concept_graph"`
	GenerateBacklinks bool `json:"generate_backlinks" yaml:"generate_backlinks" mapstructure:"generate_backlinks"`
}

// Enabled reports whether the linking stage belongs in the pipeline.
func (c LinkingConfig) Enabled() bool {
	return c.BuildConceptGraph || c.GenerateBacklinks
}

// QualityConfig holds the minimum thresholds documents must meet.
type QualityConfig struct {
	RequiredCompleteness float64 `json:"required_completeness" yaml:"required_completeness" mapstructure:"required_completeness"`
	RequiredFindability  float64 `json:"required_findability" yaml:"required_findability" mapstructure:"required_findability"`
	MinBodyLength        int     `json:"min_body_length" yaml:"min_body_length" mapstructure:"min_body_length"`

	// MinTags flags documents with fewer tags as under-tagged.
	MinTags int `json:"min_tags" yaml:"min_tags" mapstructure:"min_tags"`

	// FailOnViolation aborts the run when any touched document misses a threshold.
	FailOnViolation bool `json:"fail_on_violation" yaml:"fail_on_violation" mapstructure:"fail_on_violation"`
}

// MonitoringConfig holds output paths for run metrics.
type MonitoringConfig struct {
	// MetricsOutput is the path of the flat metrics JSON file. Empty disables it.
	MetricsOutput string `json:"metrics_output" yaml:"metrics_output" mapstructure:"metrics_output"`

	// PrometheusTextfile is the path of a Prometheus text-format dump. Empty disables it.
	PrometheusTextfile string `json:"prometheus_textfile" yaml:"prometheus_textfile" mapstructure:"prometheus_textfile"`
}

// PipelineConfig groups all stage configurations for the pipeline.
type PipelineConfig struct {
	Analysis       AnalysisConfig       `json:"analysis" yaml:"analysis" mapstructure:"analysis"`
	Extraction     ExtractionSettings   `json:"extraction" yaml:"extraction" mapstructure:"extraction"`
	Transformation TransformationConfig `json:"transformation" yaml:"transformation" mapstructure:"transformation"`
	Organization   OrganizationConfig   `json:"organization" yaml:"organization" mapstructure:"organization"`
	Linking        LinkingConfig        `json:"linking" yaml:"linking" mapstructure:"linking"`
	Quality        QualityConfig        `json:"quality" yaml:"quality" mapstructure:"quality"`
	Monitoring     MonitoringConfig     `json:"monitoring" yaml:"monitoring" mapstructure:"monitoring"`
}

// DefaultPipelineConfig returns the configuration used when no file overrides it.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Analysis: AnalysisConfig{
			Extensions: []string{".md", ".txt"},
		},
		Extraction: ExtractionSettings{
			Parallel:     true,
			CacheEnabled: true,
			CacheTTL:     time.Hour,
		},
		Transformation: TransformationConfig{
			PrimaryTopic:         "general",
			Language:             "en",
			ConceptRoot:          "concepts",
			EntityRoot:           "entities",
			FindabilityBaseline:  0.6,
			CompletenessBaseline: 0.6,
			Depth:                1,
			Creator:              "kbforge",
			UpdateFrequency:      "as-needed",
		},
		Organization: OrganizationConfig{
			CollisionStrategy: CollisionReplace,
		},
		Linking: LinkingConfig{
			GenerateBacklinks: true,
		},
		Quality: QualityConfig{
			RequiredCompleteness: 0.5,
			RequiredFindability:  0.5,
			MinBodyLength:        40,
			MinTags:              2,
		},
	}
}

// Validate rejects out-of-range values. It runs once at load time so stages
// can trust the values they read.
func (c PipelineConfig) Validate() error {
	t := c.Transformation
	if !(t.FindabilityBaseline >= 0 && t.FindabilityBaseline <= 1) {
		return ConfigError("transformation.findability_baseline", "%v outside [0,1]", t.FindabilityBaseline)
	}
	if !(t.CompletenessBaseline >= 0 && t.CompletenessBaseline <= 1) {
		return ConfigError("transformation.completeness_baseline", "%v outside [0,1]", t.CompletenessBaseline)
	}
	if t.Depth <= 0 {
		return ConfigError("transformation.depth", "must be positive, got %d", t.Depth)
	}
	if t.PrimaryTopic == "" {
		return ConfigError("transformation.primary_topic", "must not be empty")
	}

	q := c.Quality
	if !(q.RequiredCompleteness >= 0 && q.RequiredCompleteness <= 1) {
		return ConfigError("quality.required_completeness", "%v outside [0,1]", q.RequiredCompleteness)
	}
	if !(q.RequiredFindability >= 0 && q.RequiredFindability <= 1) {
		return ConfigError("quality.required_findability", "%v outside [0,1]", q.RequiredFindability)
	}
	if q.MinBodyLength < 0 {
		return ConfigError("quality.min_body_length", "must not be negative, got %d", q.MinBodyLength)
	}
	if q.MinTags < 0 {
		return ConfigError("quality.min_tags", "must not be negative, got %d", q.MinTags)
	}

	switch c.Organization.CollisionStrategy {
	case CollisionReplace, CollisionSkip, CollisionError:
	default:
		return ConfigError("organization.collision_strategy", "unknown strategy %q", c.Organization.CollisionStrategy)
	}

	e := c.Extraction
	if e.CacheTTL < 0 {
		return ConfigError("extraction.cache_ttl", "must not be negative, got %v", e.CacheTTL)
	}
	if !(e.MaxStartsPerSecond >= 0) {
		return ConfigError("extraction.max_starts_per_second", "must not be negative, got %v", e.MaxStartsPerSecond)
	}
	seen := make(map[string]bool, len(e.EnabledTools))
	for _, name := range e.EnabledTools {
		if name == "" {
			return ConfigError("extraction.enabled_tools", "empty extractor name")
		}
		if seen[name] {
			return ConfigError("extraction.enabled_tools", "duplicate extractor %q", name)
		}
		seen[name] = true
	}
	return nil
}
