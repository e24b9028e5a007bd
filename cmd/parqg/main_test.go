// SPDX-License-Identifier: MIT
package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const diskModel = `
name: disk
variables:
  - {name: x1, lower: 0, upper: 2}
  - {name: x2, lower: 0, upper: 2}
  - {name: y, type: binary}
constraints:
  - {name: disk, expr: "x1^2 + x2^2 - 3*y", upper: 1}
objective: "-x1 - x2 + y"
`

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	err := cmd.Execute()
	return out.String(), err
}

func writeModel(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestSolveCommand(t *testing.T) {
	model := writeModel(t, "disk.yaml", diskModel)
	out, err := run(t, "solve", model, "--workers", "2", "--gap", "0", "--log-format", "json", "-v")
	require.NoError(t, err)
	require.Contains(t, out, "parqg: disk")
	require.Contains(t, out, "optimal")
	require.Contains(t, out, "Nodes processed")
	require.Contains(t, out, "-1.828") // 1 - 2*sqrt(2)
	require.Contains(t, out, "binary")
}

func TestSolveWithConfig(t *testing.T) {
	model := writeModel(t, "disk.yaml", diskModel)
	cfg := writeModel(t, "run.toml", "[limits]\nnode_limit = 1\ngap_limit = 0.0\n\n[search]\nworkers = 1\n")
	out, err := run(t, "solve", model, "--config", cfg)
	require.NoError(t, err)
	require.Contains(t, out, "Status")
}

func TestSolveErrors(t *testing.T) {
	_, err := run(t, "solve")
	require.Error(t, err)

	_, err = run(t, "solve", filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)

	model := writeModel(t, "disk.yaml", diskModel)
	_, err = run(t, "solve", model, "--log-format", "xml")
	require.ErrorContains(t, err, "log-format")

	_, err = run(t, "solve", model, "--workers=-3")
	require.Error(t, err)
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	require.Contains(t, out, "parqg dev")
}
