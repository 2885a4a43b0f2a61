package kgraph

import (
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML accepts "250ms" / "5s" notation as
// well as plain nanosecond integers.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var n int64
	if err := value.Decode(&n); err == nil {
		*d = Duration(n)
		return nil
	}
	var s string
	if err := value.Decode(&s); err != nil {
		return storageErrorf("invalid duration value")
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return storageErrorf("invalid duration %q: %v", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) std() time.Duration { return time.Duration(d) }

// Options configures an Engine. The zero value is not usable; start from
// DefaultOptions.
type Options struct {
	// Database names the graph; bookmarks carry it and refuse comparison
	// across names.
	Database string `yaml:"database"`

	// DataDir is where bbolt files live: the entity store and ordered
	// index buckets. Empty runs fully in memory, with ordered indexes
	// unavailable.
	DataDir string `yaml:"data_dir"`

	// MaxTraversalDepth caps open-ended variable-length patterns.
	MaxTraversalDepth int `yaml:"max_traversal_depth"`

	// PlanCacheSize bounds the compiled plan cache; 0 disables caching.
	PlanCacheSize int `yaml:"plan_cache_size"`

	// MaxResultRows caps how many rows one execution may materialize;
	// 0 means unlimited.
	MaxResultRows int `yaml:"max_result_rows"`

	// DefaultQueryTimeout applies when the caller's context carries no
	// deadline; 0 disables the safety net.
	DefaultQueryTimeout Duration `yaml:"default_query_timeout"`

	// SlowQueryThreshold enables the slow query log for executions at or
	// above this duration; 0 disables it.
	SlowQueryThreshold Duration `yaml:"slow_query_threshold"`

	// SlowQueryLogSize bounds the slow query ring buffer.
	SlowQueryLogSize int `yaml:"slow_query_log_size"`

	// CompactionInterval runs background tombstone compaction on a
	// ticker; 0 leaves compaction to explicit Compact calls.
	CompactionInterval Duration `yaml:"compaction_interval"`

	// Logger receives structured engine logs. Nil means slog.Default().
	Logger *slog.Logger `yaml:"-"`
}

// DefaultOptions returns the baseline configuration: in-memory, depth cap
// 50, 256-entry plan cache.
func DefaultOptions() Options {
	return Options{
		Database:          "default",
		MaxTraversalDepth: 50,
		PlanCacheSize:     256,
		SlowQueryLogSize:  64,
	}
}

// LoadOptions reads a YAML options file over the defaults, so a partial
// file only overrides what it names.
func LoadOptions(path string) (Options, error) {
	opts := DefaultOptions()
	data, err := os.ReadFile(path)
	if err != nil {
		return opts, storageErrorf("read options %s: %v", path, err)
	}
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return opts, storageErrorf("parse options %s: %v", path, err)
	}
	if err := opts.validate(); err != nil {
		return opts, err
	}
	return opts, nil
}

func (o *Options) validate() error {
	if o.Database == "" {
		return storageErrorf("options: database name must not be empty")
	}
	if o.MaxTraversalDepth <= 0 {
		return storageErrorf("options: max_traversal_depth must be positive, got %d", o.MaxTraversalDepth)
	}
	if o.PlanCacheSize < 0 {
		return storageErrorf("options: plan_cache_size must not be negative, got %d", o.PlanCacheSize)
	}
	if o.MaxResultRows < 0 {
		return storageErrorf("options: max_result_rows must not be negative, got %d", o.MaxResultRows)
	}
	return nil
}

func (o *Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}
