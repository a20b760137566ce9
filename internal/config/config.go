// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package config loads the pipeline configuration. Values come from the
// built-in defaults, then an optional YAML file, then KBFORGE_* environment
// variables (KBFORGE_QUALITY_MIN_TAGS overrides quality.min_tags). The
// result is validated once; stages never re-check it.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/pdiddy/kbforge/pkg/types"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "KBFORGE"

// New returns a viper instance carrying the pipeline defaults and the
// environment binding.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v, types.DefaultPipelineConfig())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads path (if not empty) over the defaults and returns the
// validated configuration.
func Load(path string) (types.PipelineConfig, error) {
	v := New()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return types.PipelineConfig{}, fmt.Errorf("reading config %s: %w", path, err)
		}
	}
	return Decode(v)
}

// Decode unmarshals v into a PipelineConfig and validates it.
func Decode(v *viper.Viper) (types.PipelineConfig, error) {
	cfg := types.DefaultPipelineConfig()
	if err := v.Unmarshal(&cfg); err != nil {
		return types.PipelineConfig{}, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return types.PipelineConfig{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper, d types.PipelineConfig) {
	setDefault(v, "analysis.extensions", d.Analysis.Extensions)

	setDefault(v, "extraction.enabled_tools", d.Extraction.EnabledTools)
	setDefault(v, "extraction.parallel", d.Extraction.Parallel)
	setDefault(v, "extraction.cache_enabled", d.Extraction.CacheEnabled)
	setDefault(v, "extraction.cache_ttl", d.Extraction.CacheTTL)
	setDefault(v, "extraction.max_starts_per_second", d.Extraction.MaxStartsPerSecond)
	setDefault(v, "extraction.fail_on_error", d.Extraction.FailOnError)

	t := d.Transformation
	setDefault(v, "transformation.primary_topic", t.PrimaryTopic)
	setDefault(v, "transformation.secondary_topics", t.SecondaryTopics)
	setDefault(v, "transformation.default_tags", t.DefaultTags)
	setDefault(v, "transformation.audience", t.Audience)
	setDefault(v, "transformation.language", t.Language)
	setDefault(v, "transformation.concept_root", t.ConceptRoot)
	setDefault(v, "transformation.entity_root", t.EntityRoot)
	setDefault(v, "transformation.findability_baseline", t.FindabilityBaseline)
	setDefault(v, "transformation.completeness_baseline", t.CompletenessBaseline)
	setDefault(v, "transformation.depth", t.Depth)
	setDefault(v, "transformation.creator", t.Creator)
	setDefault(v, "transformation.update_frequency", t.UpdateFrequency)
	setDefault(v, "transformation.strict", t.Strict)

	setDefault(v, "organization.collision_strategy", string(d.Organization.CollisionStrategy))
	setDefault(v, "organization.index_generation", d.Organization.IndexGeneration)

	setDefault(v, "linking.build_concept_graph", d.Linking.BuildConceptGraph)
	setDefault(v, "linking.generate_backlinks", d.Linking.GenerateBacklinks)

	q := d.Quality
	setDefault(v, "quality.required_completeness", q.RequiredCompleteness)
	setDefault(v, "quality.required_findability", q.RequiredFindability)
	setDefault(v, "quality.min_body_length", q.MinBodyLength)
	setDefault(v, "quality.min_tags", q.MinTags)
	setDefault(v, "quality.fail_on_violation", q.FailOnViolation)

	setDefault(v, "monitoring.metrics_output", d.Monitoring.MetricsOutput)
	setDefault(v, "monitoring.prometheus_textfile", d.Monitoring.PrometheusTextfile)
}

// setDefault registers key with value. Empty lists are only bound to the
// environment so decoding leaves the field nil.
func setDefault(v *viper.Viper, key string, value any) {
	if list, ok := value.([]string); ok && len(list) == 0 {
		_ = v.BindEnv(key)
		return
	}
	v.SetDefault(key, value)
}
