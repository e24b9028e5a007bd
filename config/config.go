// SPDX-License-Identifier: MIT

// Package config loads solver settings from YAML, JSON or TOML files with
// environment overrides, and converts them into bnb options.
//
// Priority: environment > file > defaults.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/katalvlaran/parqg/bnb"
	"github.com/katalvlaran/parqg/branch"
	"github.com/katalvlaran/parqg/internal/logging"
	"github.com/katalvlaran/parqg/lp"
	"github.com/katalvlaran/parqg/nlp"
	"github.com/katalvlaran/parqg/oa"
	"github.com/katalvlaran/parqg/relax"
	"github.com/katalvlaran/parqg/tree"
)

// Sentinel errors.
var (
	// ErrFormat is returned for a file extension other than .yaml, .yml, .json or .toml.
	ErrFormat = errors.New("config: unsupported file format")
	// ErrInvalid wraps every validation and environment parsing failure.
	ErrInvalid = errors.New("config: invalid configuration")
)

// Duration is a time.Duration written as a Go duration string ("30s").
type Duration time.Duration

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) { return []byte(time.Duration(d).String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)

	return nil
}

// Config is the complete solver configuration.
type Config struct {
	Search        SearchConfig        `yaml:"search" json:"search" toml:"search"`
	Limits        LimitsConfig        `yaml:"limits" json:"limits" toml:"limits"`
	OA            oa.Options          `yaml:"oa" json:"oa" toml:"oa"`
	NLP           nlp.Options         `yaml:"nlp" json:"nlp" toml:"nlp"`
	LP            lp.Options          `yaml:"lp" json:"lp" toml:"lp"`
	Observability ObservabilityConfig `yaml:"observability" json:"observability" toml:"observability"`
}

// SearchConfig controls the tree search.
type SearchConfig struct {
	// Workers is the number of parallel workers; 0 uses every CPU.
	Workers        int     `yaml:"workers" json:"workers" toml:"workers"`
	Policy         string  `yaml:"policy" json:"policy" toml:"policy"`
	Brancher       string  `yaml:"brancher" json:"brancher" toml:"brancher"`
	DiveSlack      float64 `yaml:"dive_slack" json:"dive_slack" toml:"dive_slack"`
	MaxCutRounds   int     `yaml:"max_cut_rounds" json:"max_cut_rounds" toml:"max_cut_rounds"`
	MaxErrorStreak int     `yaml:"max_error_streak" json:"max_error_streak" toml:"max_error_streak"`
	Preprocess     bool    `yaml:"preprocess" json:"preprocess" toml:"preprocess"`
}

// LimitsConfig holds the stop conditions; zero disables a limit.
type LimitsConfig struct {
	NodeLimit int      `yaml:"node_limit" json:"node_limit" toml:"node_limit"`
	TimeLimit Duration `yaml:"time_limit" json:"time_limit" toml:"time_limit"`
	GapLimit  float64  `yaml:"gap_limit" json:"gap_limit" toml:"gap_limit"` // percent
	SolLimit  int      `yaml:"sol_limit" json:"sol_limit" toml:"sol_limit"`
}

// ObservabilityConfig controls logging, metrics and tracing.
type ObservabilityConfig struct {
	LogLevel       string   `yaml:"log_level" json:"log_level" toml:"log_level"`
	LogFormat      string   `yaml:"log_format" json:"log_format" toml:"log_format"`
	LogInterval    Duration `yaml:"log_interval" json:"log_interval" toml:"log_interval"`
	MetricsEnabled bool     `yaml:"metrics_enabled" json:"metrics_enabled" toml:"metrics_enabled"`
	TracingEnabled bool     `yaml:"tracing_enabled" json:"tracing_enabled" toml:"tracing_enabled"`
}

// Default returns the default configuration.
func Default() Config {
	d := bnb.DefaultOptions()

	return Config{
		Search: SearchConfig{
			Policy:         d.Policy.String(),
			Brancher:       d.Brancher,
			DiveSlack:      d.DiveSlack,
			MaxCutRounds:   d.MaxCutRounds,
			MaxErrorStreak: d.MaxErrorStreak,
			Preprocess:     true,
		},
		Limits: LimitsConfig{
			GapLimit: d.GapLimit,
		},
		OA:  oa.DefaultOptions(),
		NLP: nlp.DefaultOptions(),
		LP:  lp.DefaultOptions(),
		Observability: ObservabilityConfig{
			LogLevel:    "info",
			LogFormat:   "text",
			LogInterval: Duration(d.LogInterval),
		},
	}
}

// Load reads path over the defaults (an empty path keeps them), applies
// PARQG_* environment overrides and validates the result.
func Load(path string) (Config, error) {
	c := Default()
	if path != "" {
		if err := c.readFile(path); err != nil {
			return c, err
		}
	}
	if err := c.applyEnv(os.Getenv); err != nil {
		return c, err
	}
	if err := c.Validate(); err != nil {
		return c, err
	}

	return c, nil
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, c)
	case ".json":
		err = json.Unmarshal(data, c)
	case ".toml":
		err = toml.Unmarshal(data, c)
	default:
		return fmt.Errorf("%s: %w", path, ErrFormat)
	}
	if err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	return nil
}

// applyEnv overrides fields from PARQG_* variables looked up through getenv.
func (c *Config) applyEnv(getenv func(string) string) error {
	var errs []error
	setInt := func(key string, dst *int) {
		if v := getenv(key); v != "" {
			i, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = i
		}
	}
	setFloat := func(key string, dst *float64) {
		if v := getenv(key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = f
		}
	}
	setBool := func(key string, dst *bool) {
		if v := getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	setInt("PARQG_WORKERS", &c.Search.Workers)
	setInt("PARQG_NODE_LIMIT", &c.Limits.NodeLimit)
	setFloat("PARQG_GAP_LIMIT", &c.Limits.GapLimit)
	setInt("PARQG_SOL_LIMIT", &c.Limits.SolLimit)
	if v := getenv("PARQG_TIME_LIMIT"); v != "" {
		if err := c.Limits.TimeLimit.UnmarshalText([]byte(v)); err != nil {
			errs = append(errs, fmt.Errorf("PARQG_TIME_LIMIT: %w", err))
		}
	}
	if v := getenv("PARQG_LOG_LEVEL"); v != "" {
		c.Observability.LogLevel = v
	}
	setBool("PARQG_METRICS_ENABLED", &c.Observability.MetricsEnabled)
	setBool("PARQG_TRACING_ENABLED", &c.Observability.TracingEnabled)

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}

	return nil
}

// Validate checks ranges and names.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Search.Workers >= 0, "search.workers must be >= 0")
	check(c.Search.DiveSlack >= 0, "search.dive_slack must be >= 0")
	check(c.Search.MaxCutRounds >= 1, "search.max_cut_rounds must be >= 1")
	check(c.Search.MaxErrorStreak >= 0, "search.max_error_streak must be >= 0")
	if _, err := tree.ParsePolicy(c.Search.Policy); err != nil {
		errs = append(errs, err)
	}
	if _, err := branch.New(c.Search.Brancher); err != nil {
		errs = append(errs, err)
	}

	check(c.Limits.NodeLimit >= 0, "limits.node_limit must be >= 0")
	check(c.Limits.TimeLimit >= 0, "limits.time_limit must be >= 0")
	check(c.Limits.GapLimit >= 0 && !math.IsNaN(c.Limits.GapLimit), "limits.gap_limit must be >= 0")
	check(c.Limits.SolLimit >= 0, "limits.sol_limit must be >= 0")

	check(c.OA.IntTol > 0 && c.OA.IntTol < 0.5, "oa.int_tol must be in (0, 0.5)")
	check(c.OA.Sol.Abs >= 0 && c.OA.Sol.Rel >= 0, "oa.sol_tol must be >= 0")
	check(c.OA.Obj.Abs >= 0 && c.OA.Obj.Rel >= 0, "oa.obj_tol must be >= 0")
	check(c.OA.CoefThreshold >= 0, "oa.coef_threshold must be >= 0")
	check(c.NLP.MaxIter >= 0 && c.LP.MaxIter >= 0, "max_iter must be >= 0")

	if _, err := logging.ParseLevel(c.Observability.LogLevel); err != nil {
		errs = append(errs, err)
	}
	check(c.Observability.LogFormat == "text" || c.Observability.LogFormat == "json",
		"observability.log_format must be text or json, got %q", c.Observability.LogFormat)
	check(c.Observability.LogInterval >= 0, "observability.log_interval must be >= 0")

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}

	return nil
}

// Options converts the configuration into bnb options. The logger is left
// unset for the caller.
func (c Config) Options() (bnb.Options, error) {
	policy, err := tree.ParsePolicy(c.Search.Policy)
	if err != nil {
		return bnb.Options{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	o := bnb.DefaultOptions()
	if c.Search.Workers > 0 {
		o.Workers = c.Search.Workers
	}
	o.Policy = policy
	o.Brancher = c.Search.Brancher
	o.DiveSlack = c.Search.DiveSlack
	o.MaxCutRounds = c.Search.MaxCutRounds
	o.MaxErrorStreak = c.Search.MaxErrorStreak
	if c.Search.Preprocess {
		o.Preprocessor = relax.SingletonBounds{Tol: c.OA.Sol.Abs}
	}

	o.NodeLimit = c.Limits.NodeLimit
	o.TimeLimit = time.Duration(c.Limits.TimeLimit)
	o.GapLimit = c.Limits.GapLimit
	o.SolLimit = c.Limits.SolLimit

	o.OA = c.OA
	o.NLP = c.NLP
	o.LP = c.LP

	o.LogInterval = time.Duration(c.Observability.LogInterval)
	o.Metrics = c.Observability.MetricsEnabled
	o.Tracing = c.Observability.TracingEnabled

	return o, nil
}
