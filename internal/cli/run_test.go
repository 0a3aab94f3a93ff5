package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCommandMissingArgs(t *testing.T) {
	cmd := NewRunCommand(testRootOptions(t, "text"))
	_, err := execute(cmd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires at least 1 arg")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRunCommand_Satisfied(t *testing.T) {
	cmd := NewRunCommand(testRootOptions(t, "text"))
	out, err := execute(cmd, scenarioPath("keyword_plus"))
	require.NoError(t, err)
	assert.Contains(t, out, "✓ keyword_plus: satisfied")
	assert.Contains(t, out, "pin rubocop v1.56.0")
}

func TestRunCommand_ExitCodes(t *testing.T) {
	dir := t.TempDir()
	wrong := writeFile(t, filepath.Join(dir, "wrong_sum.yaml"), wrongSumScenario)

	tests := []struct {
		name  string
		files []string
		code  int
		text  string
	}{
		{"defect signature stale", []string{scenarioPath("json_float_lenient")}, ExitNotReproduced, "json_float_lenient: not_reproduced"},
		{"mismatch", []string{wrong}, ExitFailure, "Assertion failed: unit_value (unit add)"},
		{"missing file", []string{filepath.Join(dir, "nope.yaml")}, ExitCommandError, "setup failed at load"},
		{"worst of several", []string{scenarioPath("keyword_plus"), scenarioPath("json_float_lenient"), wrong}, ExitFailure, "2 of 3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := NewRunCommand(testRootOptions(t, "text"))
			out, err := execute(cmd, tt.files...)
			require.Error(t, err)
			assert.Equal(t, tt.code, GetExitCode(err))
			assert.Contains(t, out+err.Error(), tt.text)
		})
	}
}

func TestRunCommand_JSON(t *testing.T) {
	dir := t.TempDir()
	wrong := writeFile(t, filepath.Join(dir, "wrong_sum.yaml"), wrongSumScenario)

	cmd := NewRunCommand(testRootOptions(t, "json"))
	out, err := execute(cmd, scenarioPath("keyword_plus"), wrong)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string `json:"status"`
		Data   []struct {
			Scenario string `json:"scenario"`
			Verdict  string `json:"verdict"`
		} `json:"data"`
		Error *CLIError `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.Len(t, resp.Data, 2)
	assert.Equal(t, "keyword_plus", resp.Data[0].Scenario)
	assert.Equal(t, "satisfied", resp.Data[0].Verdict)
	assert.Equal(t, "wrong_sum", resp.Data[1].Scenario)
	assert.Equal(t, "mismatch", resp.Data[1].Verdict)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeMismatch, resp.Error.Code)
	assert.Equal(t, "1 of 2 scenario(s) did not pass", resp.Error.Message)
}

func TestRunCommand_JSONSuccess(t *testing.T) {
	cmd := NewRunCommand(testRootOptions(t, "json"))
	out, err := execute(cmd, scenarioPath("json_float_parse"))
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Nil(t, resp.Error)
}
