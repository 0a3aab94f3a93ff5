package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/roach88/repro/internal/config"
)

const harnessTestdata = "../harness/testdata"

func testRootOptions(t *testing.T, format string) *RootOptions {
	t.Helper()
	cfg := config.Default()
	cfg.LockMode = "off"
	cfg.DataDir = t.TempDir()
	return &RootOptions{Format: format, Config: &cfg}
}

func scenarioPath(name string) string {
	return filepath.Join(harnessTestdata, "scenarios", name+".yaml")
}

// execute runs cmd with args and returns stdout and the command error.
func execute(cmd *cobra.Command, args ...string) (string, error) {
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const plusScenario = `
name: plus
fixture:
  kind: object
  name: math_class
  key: id
  methods:
    plus: return kw.a + kw.b
workload:
  units:
    - id: add
      op: object.call
      args: {method: plus, args: {a: 1, b: 2}}
expectations:
  - type: unit_value
    unit: add
    value: 3
`

const wrongSumScenario = `
name: wrong_sum
fixture:
  kind: object
  name: math_class
  key: id
  methods:
    plus: return kw.a + kw.b
workload:
  units:
    - id: add
      op: object.call
      args: {method: plus, args: {a: 1, b: 2}}
expectations:
  - type: unit_value
    unit: add
    value: 4
`
