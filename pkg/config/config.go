package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/panbanda/connascence/pkg/models"
)

// Config holds all configuration options for connascence.
type Config struct {
	// Detection thresholds and weights
	Policy Policy `koanf:"policy" json:"policy"`

	// Worker pool, queue, deadline and cache settings
	Engine EngineConfig `koanf:"engine" json:"engine"`

	// File exclusion patterns
	Exclude ExcludeConfig `koanf:"exclude" json:"exclude"`

	// Output settings
	Output OutputConfig `koanf:"output" json:"output"`

	// Metrics history persistence
	History HistoryConfig `koanf:"history" json:"history"`
}

// Policy is the named bundle of thresholds and enabled rule sets for one run.
type Policy struct {
	MaxPositionalParams            int                `koanf:"max_positional_params" json:"max_positional_params" validate:"min=1"`
	GodObjectMethodThreshold       int                `koanf:"god_object_method_threshold" json:"god_object_method_threshold" validate:"min=1"`
	GodObjectAttributeThreshold    int                `koanf:"god_object_attribute_threshold" json:"god_object_attribute_threshold" validate:"min=1"`
	DuplicationSimilarityThreshold float64            `koanf:"duplication_similarity_threshold" json:"duplication_similarity_threshold" validate:"gte=0,lte=1"`
	DuplicationMinStatements       int                `koanf:"duplication_min_statements" json:"duplication_min_statements" validate:"min=1"`
	NasaRulesEnabled               bool               `koanf:"nasa_rules_enabled" json:"nasa_rules_enabled"`
	SeverityWeights                map[string]float64 `koanf:"severity_weights" json:"severity_weights" validate:"dive,keys,oneof=critical high medium low info,endkeys,gte=0"`
	TypeWeights                    map[string]float64 `koanf:"type_weights" json:"type_weights" validate:"dive,keys,rulekind,endkeys,gte=0"`
	QualityWeights                 QualityWeights     `koanf:"quality_weights" json:"quality_weights"`
	HistoryWindow                  int                `koanf:"history_window" json:"history_window" validate:"min=1"`
	HistoryCapacity                int                `koanf:"history_capacity" json:"history_capacity" validate:"min=1"`
	NameFanoutThreshold            int                `koanf:"name_fanout_threshold" json:"name_fanout_threshold" validate:"min=2"`
	MagicLiteralAllowlist          []string           `koanf:"magic_literal_allowlist" json:"magic_literal_allowlist"`
	MaxCyclomaticComplexity        int                `koanf:"max_cyclomatic_complexity" json:"max_cyclomatic_complexity" validate:"min=1"`
	MaxFunctionLines               int                `koanf:"max_function_lines" json:"max_function_lines" validate:"min=1"`
	MinAssertions                  int                `koanf:"min_assertions" json:"min_assertions" validate:"min=0"`
	AssertionMinFunctionLines      int                `koanf:"assertion_min_function_lines" json:"assertion_min_function_lines" validate:"min=1"`
	MaxNasaParams                  int                `koanf:"max_nasa_params" json:"max_nasa_params" validate:"min=1"`
	MaxUncheckedCalls              int                `koanf:"max_unchecked_calls" json:"max_unchecked_calls" validate:"min=0"`
	MaxGlobals                     int                `koanf:"max_globals" json:"max_globals" validate:"min=0"`
	Gates                          GatesConfig        `koanf:"gates" json:"gates"`
}

// QualityWeights weights the three components of the overall quality score.
type QualityWeights struct {
	Connascence float64 `koanf:"connascence" json:"connascence" validate:"gte=0"`
	NASA        float64 `koanf:"nasa" json:"nasa" validate:"gte=0"`
	Duplication float64 `koanf:"duplication" json:"duplication" validate:"gte=0"`
}

// GatesConfig holds the quality gate thresholds.
type GatesConfig struct {
	MinQualityScore     float64 `koanf:"min_quality_score" json:"min_quality_score" validate:"gte=0,lte=1"`
	MinNASACompliance   float64 `koanf:"min_nasa_compliance" json:"min_nasa_compliance" validate:"gte=0,lte=1"`
	MinDuplicationScore float64 `koanf:"min_duplication_score" json:"min_duplication_score" validate:"gte=0,lte=1"`
	MaxCritical         int     `koanf:"max_critical" json:"max_critical" validate:"min=0"`
}

// EngineConfig controls the parallel orchestrator and the AST cache.
type EngineConfig struct {
	Workers         int           `koanf:"workers" json:"workers" validate:"min=0"`      // 0 = 2x NumCPU
	QueueSize       int           `koanf:"queue_size" json:"queue_size" validate:"min=0"` // 0 = 2x workers
	Timeout         time.Duration `koanf:"timeout" json:"timeout" validate:"min=0"`
	CacheMaxMemory  int64         `koanf:"cache_max_memory" json:"cache_max_memory" validate:"min=0"`
	WarmCache       bool          `koanf:"warm_cache" json:"warm_cache"`
	WarmMaxFileSize int64         `koanf:"warm_max_file_size" json:"warm_max_file_size" validate:"min=0"`
	WarmMaxFiles    int           `koanf:"warm_max_files" json:"warm_max_files" validate:"min=0"`
}

// ExcludeConfig defines file selection patterns.
type ExcludeConfig struct {
	Patterns  []string `koanf:"patterns" json:"patterns"`
	Dirs      []string `koanf:"dirs" json:"dirs"`
	Include   []string `koanf:"include" json:"include"`
	Gitignore bool     `koanf:"gitignore" json:"gitignore"`
}

// OutputConfig controls output formatting.
type OutputConfig struct {
	Format       string `koanf:"format" json:"format" validate:"oneof=text json sarif markdown toon"`
	Color        bool   `koanf:"color" json:"color"`
	Verbose      bool   `koanf:"verbose" json:"verbose"`
	Reproducible bool   `koanf:"reproducible" json:"reproducible"`
	TopN         int    `koanf:"top_n" json:"top_n" validate:"min=0"`
}

// HistoryConfig controls metrics snapshot persistence.
type HistoryConfig struct {
	Enabled bool   `koanf:"enabled" json:"enabled"`
	Dir     string `koanf:"dir" json:"dir"`
}

// DefaultPolicy returns the default detection policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxPositionalParams:            4,
		GodObjectMethodThreshold:       15,
		GodObjectAttributeThreshold:    20,
		DuplicationSimilarityThreshold: 0.8,
		DuplicationMinStatements:       3,
		NasaRulesEnabled:               true,
		SeverityWeights:                models.DefaultSeverityWeights(),
		TypeWeights:                    models.DefaultTypeWeights(),
		QualityWeights: QualityWeights{
			Connascence: 1.0 / 3,
			NASA:        1.0 / 3,
			Duplication: 1.0 / 3,
		},
		HistoryWindow:       5,
		HistoryCapacity:     20,
		NameFanoutThreshold: 5,
		MagicLiteralAllowlist: []string{
			"0", "1", "-1", "2", "",
			"200", "201", "204", "400", "401", "403", "404", "500",
		},
		MaxCyclomaticComplexity:   10,
		MaxFunctionLines:          60,
		MinAssertions:             2,
		AssertionMinFunctionLines: 10,
		MaxNasaParams:             6,
		MaxUncheckedCalls:         5,
		MaxGlobals:                20,
		Gates: GatesConfig{
			MinQualityScore:     0.7,
			MinNASACompliance:   0.9,
			MinDuplicationScore: 0.8,
			MaxCritical:         0,
		},
	}
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Policy: DefaultPolicy(),
		Engine: EngineConfig{
			Workers:         0,
			QueueSize:       0,
			CacheMaxMemory:  100 << 20,
			WarmMaxFileSize: 500 << 10,
			WarmMaxFiles:    200,
		},
		Exclude: ExcludeConfig{
			Patterns: []string{
				"*.min.js",
				"*_pb2.py",
			},
			Dirs: []string{
				"vendor",
				"node_modules",
				".git",
				".connascence",
				"dist",
				"build",
				"__pycache__",
				".venv",
			},
			Gitignore: true,
		},
		Output: OutputConfig{
			Format: "text",
			Color:  true,
			TopN:   10,
		},
		History: HistoryConfig{
			Enabled: false,
			Dir:     ".connascence/history",
		},
	}
}

// Load loads configuration from a file, merging it over the defaults.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	cfg := DefaultConfig()

	var parser koanf.Parser
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".toml":
		parser = toml.Parser()
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		parser = toml.Parser()
	}

	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	if err := checkKeys(k, reflect.TypeOf(Config{}), ""); err != nil {
		return nil, err
	}
	clearOverriddenSlices(k, reflect.ValueOf(cfg).Elem(), "")
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, &ConfigurationError{Reason: "decode failed", Err: err}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault tries to load config from standard locations or returns defaults.
// A config file that exists but fails to load is an error; a misconfigured
// run must not silently fall back to defaults.
func LoadOrDefault() (*Config, error) {
	configNames := []string{
		"connascence.toml",
		"connascence.yaml",
		"connascence.yml",
		"connascence.json",
		".connascence.toml",
		".connascence.yaml",
		".connascence.yml",
		".connascence.json",
	}
	searchDirs := []string{".", ".connascence"}

	for _, dir := range searchDirs {
		for _, name := range configNames {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return Load(path)
			}
		}
	}
	return DefaultConfig(), nil
}

// PolicyFromMap builds a policy from a generic mapping, such as the arguments
// an RPC collaborator relays. Keys may be nested maps or dotted paths.
// Unknown keys are rejected.
func PolicyFromMap(m map[string]any) (Policy, error) {
	p := DefaultPolicy()
	k := koanf.New(".")
	if err := k.Load(confmap.Provider(m, "."), nil); err != nil {
		return p, &ConfigurationError{Reason: "invalid policy mapping", Err: err}
	}
	if err := checkKeys(k, reflect.TypeOf(Policy{}), ""); err != nil {
		return p, err
	}
	clearOverriddenSlices(k, reflect.ValueOf(&p).Elem(), "")
	if err := k.Unmarshal("", &p); err != nil {
		return p, &ConfigurationError{Reason: "decode failed", Err: err}
	}
	if err := p.Validate(); err != nil {
		return p, err
	}
	return p, nil
}

// Validate checks every section of the configuration.
func (c *Config) Validate() error {
	if err := validateStruct(c); err != nil {
		return err
	}
	return c.Policy.Validate()
}

// Validate checks value ranges and map keys of the policy.
func (p Policy) Validate() error {
	if err := validateStruct(p); err != nil {
		return err
	}
	w := p.QualityWeights
	if w.Connascence+w.NASA+w.Duplication <= 0 {
		return &ConfigurationError{Key: "quality_weights", Reason: "weights must not all be zero"}
	}
	return nil
}

// SeverityWeight returns the configured weight for s.
func (p Policy) SeverityWeight(s models.Severity) float64 {
	return p.SeverityWeights[string(s)]
}

// TypeWeight returns the configured weight for k, defaulting to 1.
func (p Policy) TypeWeight(k models.RuleKind) float64 {
	if w, ok := p.TypeWeights[string(k)]; ok {
		return w
	}
	return 1
}

// AllowsLiteral reports whether a literal value is on the magic-literal allow-list.
func (p Policy) AllowsLiteral(value string) bool {
	return slices.Contains(p.MagicLiteralAllowlist, value)
}

// ConfigurationError reports an invalid or unknown configuration option.
type ConfigurationError struct {
	Key    string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	msg := "configuration error"
	if e.Key != "" {
		msg += fmt.Sprintf(" at %q", e.Key)
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// IsConfigurationError reports whether err is or wraps a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
