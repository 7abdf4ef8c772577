// Package config loads the YAML configuration of the federation tools.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap/zapcore"
)

const (
	DefaultMaxValidationSubgraphPaths = 1_000_000
	DefaultConditionCacheSize         = 4096
	DefaultRetryAttempts              = 3
	DefaultRetryTimeout               = "5s"
	DefaultLogLevel                   = "info"
	DefaultServiceName                = "federation"
)

type Config struct {
	Subgraphs     []Subgraph           `yaml:"subgraphs"`
	Composition   Composition          `yaml:"composition"`
	QueryGraph    QueryGraph           `yaml:"query_graph"`
	Logging       Logging              `yaml:"logging"`
	Opentelemetry OpentelemetrySetting `yaml:"opentelemetry"`
}

// Subgraph describes one subgraph. Its SDL is read from SchemaFiles, or
// fetched from Host with a `{ _service { sdl } }` query when no file is set.
type Subgraph struct {
	Name        string      `yaml:"name"`
	Host        string      `yaml:"host"`
	SchemaFiles []string    `yaml:"schema_files"`
	Retry       RetryOption `yaml:"retry"`
}

// RetryOption defines the retry configuration for SDL fetching.
type RetryOption struct {
	Attempts int    `yaml:"attempts"`
	Timeout  string `yaml:"timeout"`
}

// TimeoutDuration returns the per-attempt timeout.
func (r RetryOption) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(r.Timeout)
	if err != nil {
		return 0
	}
	return d
}

type Composition struct {
	Workers                    int  `yaml:"workers"`
	MaxValidationSubgraphPaths int  `yaml:"max_validation_subgraph_paths"`
	SkipSatisfiability         bool `yaml:"skip_satisfiability"`
}

type QueryGraph struct {
	ForQueryPlanning   *bool `yaml:"for_query_planning"`
	ConditionCacheSize int   `yaml:"condition_cache_size"`
}

// IsForQueryPlanning reports whether query planning edges are built. It
// defaults to true.
func (q QueryGraph) IsForQueryPlanning() bool {
	return q.ForQueryPlanning == nil || *q.ForQueryPlanning
}

type Logging struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

type OpentelemetrySetting struct {
	TracingSetting OpentelemetryTracingSetting `yaml:"tracing"`
}

type OpentelemetryTracingSetting struct {
	Enable      bool   `yaml:"enable"`
	Endpoint    string `yaml:"endpoint"`
	Insecure    bool   `yaml:"insecure"`
	ServiceName string `yaml:"service_name"`
}

// Load reads the configuration at path. Relative schema files are resolved
// against the directory of the configuration file.
func Load(path string) (*Config, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg, err := Parse(src)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	dir := filepath.Dir(path)
	for i := range cfg.Subgraphs {
		for j, f := range cfg.Subgraphs[i].SchemaFiles {
			if !filepath.IsAbs(f) {
				cfg.Subgraphs[i].SchemaFiles[j] = filepath.Join(dir, f)
			}
		}
	}
	return cfg, nil
}

// Parse decodes, defaults and validates a YAML configuration.
func Parse(src []byte) (*Config, error) {
	var cfg Config
	if err := yaml.NewDecoder(bytes.NewReader(src), yaml.DisallowUnknownField()).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	for i := range c.Subgraphs {
		r := &c.Subgraphs[i].Retry
		if r.Attempts == 0 {
			r.Attempts = DefaultRetryAttempts
		}
		if r.Timeout == "" {
			r.Timeout = DefaultRetryTimeout
		}
	}
	if c.Composition.Workers == 0 {
		c.Composition.Workers = runtime.NumCPU()
	}
	if c.Composition.MaxValidationSubgraphPaths == 0 {
		c.Composition.MaxValidationSubgraphPaths = DefaultMaxValidationSubgraphPaths
	}
	if c.QueryGraph.ConditionCacheSize == 0 {
		c.QueryGraph.ConditionCacheSize = DefaultConditionCacheSize
	}
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Opentelemetry.TracingSetting.ServiceName == "" {
		c.Opentelemetry.TracingSetting.ServiceName = DefaultServiceName
	}
}

// Validate reports every problem of the configuration at once.
func (c *Config) Validate() error {
	var errs *multierror.Error
	if len(c.Subgraphs) == 0 {
		errs = multierror.Append(errs, fmt.Errorf("at least one subgraph is required"))
	}
	seen := make(map[string]bool, len(c.Subgraphs))
	for i, s := range c.Subgraphs {
		switch {
		case s.Name == "":
			errs = multierror.Append(errs, fmt.Errorf("subgraphs[%d]: name is required", i))
		case seen[s.Name]:
			errs = multierror.Append(errs, fmt.Errorf("subgraphs[%d]: duplicate subgraph name %q", i, s.Name))
		}
		seen[s.Name] = true
		if s.Host == "" && len(s.SchemaFiles) == 0 {
			errs = multierror.Append(errs, fmt.Errorf("subgraphs[%d]: either host or schema_files is required", i))
		}
		if s.Retry.Attempts < 0 {
			errs = multierror.Append(errs, fmt.Errorf("subgraphs[%d]: retry.attempts must not be negative", i))
		}
		if _, err := time.ParseDuration(s.Retry.Timeout); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("subgraphs[%d]: invalid retry.timeout %q: %w", i, s.Retry.Timeout, err))
		}
	}
	if c.Composition.Workers < 0 {
		errs = multierror.Append(errs, fmt.Errorf("composition.workers must not be negative"))
	}
	if c.Composition.MaxValidationSubgraphPaths < 0 {
		errs = multierror.Append(errs, fmt.Errorf("composition.max_validation_subgraph_paths must not be negative"))
	}
	if c.QueryGraph.ConditionCacheSize < 0 {
		errs = multierror.Append(errs, fmt.Errorf("query_graph.condition_cache_size must not be negative"))
	}
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("logging.level: %w", err))
	}
	if t := c.Opentelemetry.TracingSetting; t.Enable && t.Endpoint == "" {
		errs = multierror.Append(errs, fmt.Errorf("opentelemetry.tracing.endpoint is required when tracing is enabled"))
	}
	return errs.ErrorOrNil()
}
