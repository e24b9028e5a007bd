// SPDX-License-Identifier: MIT
package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"

	"github.com/katalvlaran/parqg/bnb"
	"github.com/katalvlaran/parqg/config"
	"github.com/katalvlaran/parqg/relax"
	"github.com/katalvlaran/parqg/tree"
)

func write(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	c := config.Default()
	require.NoError(t, c.Validate())
	require.Equal(t, "best-then-dive", c.Search.Policy)
	require.Equal(t, "pseudo-cost", c.Search.Brancher)
	require.Equal(t, config.Duration(5*time.Second), c.Observability.LogInterval)

	loaded, err := config.Load("")
	require.NoError(t, err)
	require.Empty(t, cmp.Diff(c, loaded, cmpopts.IgnoreFields(config.Config{}, "OA.Logger")))
}

func TestLoadFormats(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"run.yaml", `
search:
  workers: 3
  policy: depth-first
limits:
  node_limit: 500
  time_limit: 90s
  gap_limit: 0.5
oa:
  int_tol: 1.0e-5
observability:
  log_format: json
`},
		{"run.json", `{
  "search": {"workers": 3, "policy": "depth-first"},
  "limits": {"node_limit": 500, "time_limit": "90s", "gap_limit": 0.5},
  "oa": {"int_tol": 1e-5},
  "observability": {"log_format": "json"}
}`},
		{"run.toml", `
[search]
workers = 3
policy = "depth-first"

[limits]
node_limit = 500
time_limit = "90s"
gap_limit = 0.5

[oa]
int_tol = 1e-5

[observability]
log_format = "json"
`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := config.Load(write(t, tt.name, tt.body))
			require.NoError(t, err)

			want := config.Default()
			want.Search.Workers = 3
			want.Search.Policy = "depth-first"
			want.Limits = config.LimitsConfig{NodeLimit: 500, TimeLimit: config.Duration(90 * time.Second), GapLimit: 0.5}
			want.OA.IntTol = 1e-5
			want.Observability.LogFormat = "json"
			if diff := cmp.Diff(want, c, cmpopts.IgnoreFields(config.Config{}, "OA.Logger")); diff != "" {
				t.Fatalf("config mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoadErrors(t *testing.T) {
	_, err := config.Load(write(t, "run.ini", "workers=1"))
	require.ErrorIs(t, err, config.ErrFormat)

	_, err = config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)

	_, err = config.Load(write(t, "bad.yaml", "limits: [1, 2"))
	require.Error(t, err)

	_, err = config.Load(write(t, "bad.yaml", "search:\n  policy: widest-first\n"))
	require.ErrorIs(t, err, config.ErrInvalid)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PARQG_WORKERS", "6")
	t.Setenv("PARQG_NODE_LIMIT", "42")
	t.Setenv("PARQG_TIME_LIMIT", "2m")
	t.Setenv("PARQG_GAP_LIMIT", "0.01")
	t.Setenv("PARQG_SOL_LIMIT", "3")
	t.Setenv("PARQG_LOG_LEVEL", "debug")
	t.Setenv("PARQG_METRICS_ENABLED", "true")
	t.Setenv("PARQG_TRACING_ENABLED", "1")

	c, err := config.Load(write(t, "run.yaml", "search:\n  workers: 2\n"))
	require.NoError(t, err)
	require.Equal(t, 6, c.Search.Workers) // environment beats the file
	require.Equal(t, config.LimitsConfig{
		NodeLimit: 42, TimeLimit: config.Duration(2 * time.Minute), GapLimit: 0.01, SolLimit: 3,
	}, c.Limits)
	require.Equal(t, "debug", c.Observability.LogLevel)
	require.True(t, c.Observability.MetricsEnabled)
	require.True(t, c.Observability.TracingEnabled)
}

func TestEnvParseError(t *testing.T) {
	t.Setenv("PARQG_WORKERS", "many")
	_, err := config.Load("")
	require.ErrorIs(t, err, config.ErrInvalid)
	require.ErrorContains(t, err, "PARQG_WORKERS")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*config.Config)
	}{
		{"negative workers", func(c *config.Config) { c.Search.Workers = -1 }},
		{"zero cut rounds", func(c *config.Config) { c.Search.MaxCutRounds = 0 }},
		{"unknown brancher", func(c *config.Config) { c.Search.Brancher = "strong" }},
		{"negative gap", func(c *config.Config) { c.Limits.GapLimit = -1 }},
		{"integrality tolerance", func(c *config.Config) { c.OA.IntTol = 0.5 }},
		{"log level", func(c *config.Config) { c.Observability.LogLevel = "loud" }},
		{"log format", func(c *config.Config) { c.Observability.LogFormat = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := config.Default()
			tt.modify(&c)
			require.ErrorIs(t, c.Validate(), config.ErrInvalid)
		})
	}
}

func TestOptions(t *testing.T) {
	c := config.Default()
	c.Search.Workers = 2
	c.Search.Policy = "best-bound"
	c.Limits.TimeLimit = config.Duration(time.Minute)
	c.Limits.NodeLimit = 10
	c.Observability.MetricsEnabled = true

	o, err := c.Options()
	require.NoError(t, err)
	require.Equal(t, 2, o.Workers)
	require.Equal(t, tree.BestBound, o.Policy)
	require.Equal(t, time.Minute, o.TimeLimit)
	require.Equal(t, 10, o.NodeLimit)
	require.True(t, o.Metrics)
	require.Equal(t, relax.SingletonBounds{Tol: c.OA.Sol.Abs}, o.Preprocessor)
	require.Equal(t, c.OA, o.OA)

	c.Search.Workers = 0
	c.Search.Preprocess = false
	o, err = c.Options()
	require.NoError(t, err)
	require.Equal(t, bnb.DefaultOptions().Workers, o.Workers)
	require.Nil(t, o.Preprocessor)
}

func TestDurationText(t *testing.T) {
	d := config.Duration(1500 * time.Millisecond)
	b, err := d.MarshalText()
	require.NoError(t, err)
	require.Equal(t, "1.5s", string(b))

	var back config.Duration
	require.NoError(t, back.UnmarshalText(b))
	require.Equal(t, d, back)
	require.Error(t, back.UnmarshalText([]byte("soon")))
}
