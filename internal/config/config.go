// Package config loads the project configuration from .docflow/config.yaml.
//
// Precedence is defaults < file < environment < command-line flags; flags
// are applied by the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/docflow/internal/log"
	"github.com/felixgeelhaar/docflow/internal/resume"
)

// Default locations, relative to the project root.
const (
	DefaultPath     = ".docflow/config.yaml"
	DefaultStateDir = ".docflow/state"
	DefaultRegistry = "units.yaml"
)

// DefaultLiveness is how long a unit may stay Running before reconciliation
// assumes its process crashed.
const DefaultLiveness = 30 * time.Minute

// Environment variables that override the file.
const (
	EnvLogLevel  = "DOCFLOW_LOG_LEVEL"
	EnvLogFormat = "DOCFLOW_LOG_FORMAT"
	EnvStateDir  = "DOCFLOW_STATE_DIR"
	EnvRegistry  = "DOCFLOW_REGISTRY"
	EnvTelemetry = "DOCFLOW_TELEMETRY"
	EnvEndpoint  = "DOCFLOW_TELEMETRY_ENDPOINT"
)

// Duration is a time.Duration written as a Go duration string in YAML.
type Duration time.Duration

// UnmarshalYAML accepts "90s", "30m" or a bare number of seconds.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	if secs, err := strconv.Atoi(s); err == nil {
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML writes the duration as a string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Config is the project configuration.
type Config struct {
	Registry    string          `yaml:"registry"`
	StateDir    string          `yaml:"state_dir"`
	Concurrency int             `yaml:"concurrency"`
	Liveness    Duration        `yaml:"liveness"`
	Executor    ExecutorConfig  `yaml:"executor"`
	Logging     LoggingConfig   `yaml:"logging"`
	Metrics     MetricsConfig   `yaml:"metrics"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Resume      ResumeConfig    `yaml:"resume"`
}

// ExecutorConfig configures the shell executor.
type ExecutorConfig struct {
	Shell string   `yaml:"shell,omitempty"`
	Dir   string   `yaml:"dir,omitempty"`
	Env   []string `yaml:"env,omitempty"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file,omitempty"`
}

// MetricsConfig configures the Prometheus textfile output.
type MetricsConfig struct {
	Textfile string `yaml:"textfile,omitempty"`
}

// TelemetryConfig configures OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Endpoint   string  `yaml:"endpoint,omitempty"`
	Insecure   bool    `yaml:"insecure,omitempty"`
	SampleRate float64 `yaml:"sample_rate,omitempty"`
}

// ArtifactSource names where artifacts of one kind live and how markers are
// recognised in them.
type ArtifactSource struct {
	Kind     string   `yaml:"kind"`
	Globs    []string `yaml:"globs"`
	Patterns []string `yaml:"patterns,omitempty"`
}

// ResumeConfig configures stale artifact detection.
type ResumeConfig struct {
	// Fallback is "no-evidence" (default), "always" or "never".
	Fallback string           `yaml:"fallback,omitempty"`
	Upstream ArtifactSource   `yaml:"upstream"`
	Kinds    []ArtifactSource `yaml:"kinds"`
}

// Enabled reports whether any resume detection is configured.
func (r ResumeConfig) Enabled() bool {
	return len(r.Upstream.Globs) > 0 && len(r.Kinds) > 0
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Registry: DefaultRegistry,
		StateDir: DefaultStateDir,
		Liveness: Duration(DefaultLiveness),
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Telemetry: TelemetryConfig{SampleRate: 1.0},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg, err := LoadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// LoadFile reads path over the defaults. The file must exist.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables looked up with
// getenv; nil means os.Getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if getenv == nil {
		getenv = os.Getenv
	}
	if v := getenv(EnvLogLevel); v != "" {
		c.Logging.Level = v
	}
	if v := getenv(EnvLogFormat); v != "" {
		c.Logging.Format = v
	}
	if v := getenv(EnvStateDir); v != "" {
		c.StateDir = v
	}
	if v := getenv(EnvRegistry); v != "" {
		c.Registry = v
	}
	if v := strings.ToLower(getenv(EnvTelemetry)); v != "" {
		c.Telemetry.Enabled = v == "on" || v == "true" || v == "1" || v == "enabled"
	}
	if v := getenv(EnvEndpoint); v != "" {
		c.Telemetry.Endpoint = v
	}
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Concurrency < 0 {
		return fmt.Errorf("concurrency must be >= 0, got %d", c.Concurrency)
	}
	if c.Liveness <= 0 {
		return fmt.Errorf("liveness must be positive")
	}
	if f := strings.ToLower(c.Logging.Format); f != "" && f != "text" && f != "json" {
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		return fmt.Errorf("telemetry.sample_rate must be between 0 and 1")
	}
	if c.Resume.Fallback != "" {
		switch c.Resume.Fallback {
		case "no-evidence", "always", "never":
		default:
			return fmt.Errorf("resume.fallback must be no-evidence, always or never, got %q", c.Resume.Fallback)
		}
	}
	if len(c.Resume.Kinds) > 0 && len(c.Resume.Upstream.Patterns) == 0 {
		return fmt.Errorf("resume.upstream.patterns is required when resume kinds are configured")
	}
	seen := make(map[string]bool)
	for i, k := range c.Resume.Kinds {
		if k.Kind == "" {
			return fmt.Errorf("resume.kinds[%d]: kind is required", i)
		}
		if seen[k.Kind] {
			return fmt.Errorf("resume.kinds[%d]: duplicate kind %q", i, k.Kind)
		}
		seen[k.Kind] = true
		if len(k.Globs) == 0 {
			return fmt.Errorf("resume.kinds[%d]: at least one glob is required", i)
		}
	}
	return nil
}

// LogConfig translates the logging section.
func (c *Config) LogConfig() log.Config {
	return log.Config{
		Level:  log.ParseLevel(c.Logging.Level),
		Format: log.ParseFormat(c.Logging.Format),
	}
}

// Detector builds a resume detector from the resume section. Kinds without
// their own patterns use the upstream patterns.
func (r ResumeConfig) Detector(logger *log.Logger) (*resume.Detector, error) {
	upstream, err := resume.NewPatternMatcher(r.Upstream.Patterns...)
	if err != nil {
		return nil, fmt.Errorf("resume.upstream: %w", err)
	}
	d := &resume.Detector{
		Upstream: upstream,
		Kinds:    make(map[string]resume.Matcher, len(r.Kinds)),
		Fallback: resume.ParseFallbackPolicy(r.Fallback),
		Logger:   logger,
	}
	for _, k := range r.Kinds {
		var m resume.Matcher = upstream
		if len(k.Patterns) > 0 {
			pm, err := resume.NewPatternMatcher(k.Patterns...)
			if err != nil {
				return nil, fmt.Errorf("resume kind %s: %w", k.Kind, err)
			}
			m = pm
		}
		d.Kinds[k.Kind] = m
	}
	return d, nil
}

// LoadArtifacts reads the upstream artifacts and the artifacts of every
// configured kind.
func (r ResumeConfig) LoadArtifacts() ([]resume.Artifact, map[string][]resume.Artifact, error) {
	kind := r.Upstream.Kind
	if kind == "" {
		kind = "upstream"
	}
	upstream, err := resume.LoadArtifacts(kind, r.Upstream.Globs)
	if err != nil {
		return nil, nil, err
	}
	downstream := make(map[string][]resume.Artifact, len(r.Kinds))
	for _, k := range r.Kinds {
		arts, err := resume.LoadArtifacts(k.Kind, k.Globs)
		if err != nil {
			return nil, nil, err
		}
		downstream[k.Kind] = arts
	}
	return upstream, downstream, nil
}
