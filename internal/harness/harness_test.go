package harness

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/roach88/repro/internal/config"
	"github.com/roach88/repro/internal/expect"
	"github.com/roach88/repro/internal/ops"
	"github.com/roach88/repro/internal/pin"
	"github.com/roach88/repro/internal/relstore"
	"github.com/roach88/repro/internal/runenv"
	"github.com/roach88/repro/internal/testutil"
	"github.com/roach88/repro/internal/workload"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.LockMode = "off"
	cfg.DataDir = t.TempDir()
	return cfg
}

func testOptions(t *testing.T) []Option {
	return []Option{
		WithConfig(testConfig(t)),
		WithRunIDs(testutil.NewFixedRunID("")),
		WithClock(runenv.NewClock()),
	}
}

func loadTestScenario(t *testing.T, name string) *Scenario {
	t.Helper()
	sc, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
	require.NoError(t, err)
	return sc
}

func parse(t *testing.T, src string) *Scenario {
	t.Helper()
	sc, err := ParseScenario([]byte(src), t.TempDir())
	require.NoError(t, err)
	return sc
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

func TestGoldenScenarios(t *testing.T) {
	tests := []struct {
		name    string
		verdict Verdict
	}{
		{"json_float_parse", VerdictSatisfied},
		{"json_float_lenient", VerdictNotReproduced},
		{"keyword_plus", VerdictSatisfied},
		{"request_log_locked", VerdictSatisfied},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := loadTestScenario(t, tt.name)
			report := RunWithGolden(t, sc, testOptions(t)...)
			assert.Equal(t, tt.verdict, report.Verdict, report.Summary())
			assert.Equal(t, "test-run", report.RunID)
		})
	}
}

func TestRun_UnlockedIncrementsKeepRowCount(t *testing.T) {
	sc := loadTestScenario(t, "request_log_unlocked")

	report, err := Run(context.Background(), sc, testOptions(t)...)
	require.NoError(t, err)
	assert.Equal(t, VerdictSatisfied, report.Verdict, report.Summary())
	assert.Equal(t, 8, report.Results.Launched)

	rec, ok := report.State.Find(123)
	require.True(t, ok)
	n := rec["requests_count"].(int64)
	assert.GreaterOrEqual(t, n, int64(1))
	assert.LessOrEqual(t, n, int64(8))
}

func TestRun_Satisfied(t *testing.T) {
	report, err := Run(context.Background(), parse(t, plusScenario), testOptions(t)...)
	require.NoError(t, err)

	assert.Equal(t, VerdictSatisfied, report.Verdict)
	assert.Equal(t, ExitOK, report.ExitCode())
	assert.True(t, report.Passed())
	assert.Empty(t, report.Mismatches)
	assert.Empty(t, report.Resolution.Pins)
}

func TestRun_MismatchIsNotAnError(t *testing.T) {
	sc := parse(t, plusScenario)
	sc.Expectations[0].Value = 4

	report, err := Run(context.Background(), sc, testOptions(t)...)
	require.NoError(t, err)

	assert.Equal(t, VerdictMismatch, report.Verdict)
	assert.Equal(t, ExitMismatch, report.ExitCode())
	require.Len(t, report.Mismatches, 1)
	assert.Equal(t, "4", report.Mismatches[0].Expected)
	assert.Equal(t, "3", report.Mismatches[0].Actual)
	assert.Contains(t, report.Summary(), "Assertion failed: unit_value (unit add)")
}

func TestRun_DefectSignature(t *testing.T) {
	sc := parse(t, plusScenario)
	sc.Intent = IntentDefectSignature

	report, err := Run(context.Background(), sc, testOptions(t)...)
	require.NoError(t, err)
	assert.Equal(t, VerdictReproduced, report.Verdict)
	assert.Equal(t, ExitOK, report.ExitCode())

	sc.Expectations[0].Value = 4
	report, err = Run(context.Background(), sc, testOptions(t)...)
	require.NoError(t, err)
	assert.Equal(t, VerdictNotReproduced, report.Verdict)
	assert.Equal(t, ExitNotReproduced, report.ExitCode())
	assert.False(t, report.Passed())
}

func TestRun_SetupFailures(t *testing.T) {
	index := pin.NewStaticIndex("test-index", map[string][]string{"oj": {"3.15.0"}})

	tests := []struct {
		name   string
		mutate func(*Scenario)
		opts   []Option
		stage  Stage
	}{
		{
			name:   "unavailable pin",
			mutate: func(s *Scenario) { s.Dependencies.Pins = pin.Spec{{Name: "oj", Version: "3.13.0"}} },
			opts:   []Option{WithIndex(index)},
			stage:  StageBootstrap,
		},
		{
			name:   "pins without index",
			mutate: func(s *Scenario) { s.Dependencies.Pins = pin.Spec{{Name: "oj", Version: "3.15.0"}} },
			stage:  StageBootstrap,
		},
		{
			name: "unreachable store",
			mutate: func(s *Scenario) {
				s.Fixture.Kind = "table"
				s.Fixture.Methods = nil
				s.Fixture.Store = "postgres"
				s.Fixture.Columns = []relstore.Column{{Name: "id_key", Type: relstore.TypeInteger}}
				s.Fixture.Key = "id_key"
			},
			stage: StageFixture,
		},
		{
			name:   "unknown operation",
			mutate: func(s *Scenario) { s.Workload.Units[0].Op = "no.such.op" },
			stage:  StageWorkload,
		},
		{
			name:   "invalid scenario",
			mutate: func(s *Scenario) { s.Workload.Units = nil },
			stage:  StageLoad,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := parse(t, plusScenario)
			tt.mutate(sc)

			opts := append(testOptions(t), tt.opts...)
			report, err := Run(context.Background(), sc, opts...)
			require.Error(t, err)
			require.NotNil(t, report)

			var se *SetupError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.stage, se.Stage)
			assert.True(t, IsSetupError(err))
			assert.Equal(t, VerdictSetupFailed, report.Verdict)
			assert.Equal(t, ExitSetupFailed, report.ExitCode())
			assert.Nil(t, report.Results, "no unit may run after a setup failure")
		})
	}
}

func TestRun_ResolutionErrorIsTyped(t *testing.T) {
	sc := parse(t, plusScenario)
	sc.Dependencies.Pins = pin.Spec{{Name: "oj", Version: "3.13.0"}}
	index := pin.NewStaticIndex("test-index", map[string][]string{"oj": {"3.14.0", "3.15.0"}})

	report, err := Run(context.Background(), sc, append(testOptions(t), WithIndex(index))...)
	require.Error(t, err)
	assert.True(t, pin.IsResolutionError(err))

	var re *pin.ResolutionError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, pin.ReasonUnavailable, re.Reason)
	assert.Equal(t, []string{"3.14.0", "3.15.0"}, re.Available)

	snap, err := report.Snapshot()
	require.NoError(t, err)
	assert.Contains(t, string(snap), `"verdict":"setup_failed"`)
	assert.Contains(t, string(snap), `"stage":"bootstrap"`)
}

func TestRun_LockfileWrittenThenVerified(t *testing.T) {
	dir := t.TempDir()
	indexPath := filepath.Join(dir, "index.yaml")
	require.NoError(t, os.WriteFile(indexPath, []byte("source: local\npackages:\n  oj: [\"3.14.0\", \"3.15.0\"]\n"), 0o644))

	src := plusScenario + `
dependencies:
  index: index.yaml
  lockfile: repro.lock
  pins:
    - name: oj
      version: 3.15.0
`
	sc, err := ParseScenario([]byte(src), dir)
	require.NoError(t, err)

	cfg := testConfig(t)
	cfg.LockMode = "auto"

	report, err := Run(context.Background(), sc, WithConfig(cfg))
	require.NoError(t, err)
	assert.Equal(t, VerdictSatisfied, report.Verdict)
	assert.FileExists(t, filepath.Join(dir, "repro.lock"))

	// Same pins verify cleanly.
	cfg.LockMode = "verify"
	_, err = Run(context.Background(), sc, WithConfig(cfg))
	require.NoError(t, err)

	// A drifted pin is rejected before any fixture is built.
	sc.Dependencies.Pins = pin.Spec{{Name: "oj", Version: "3.14.0"}}
	report, err = Run(context.Background(), sc, WithConfig(cfg))
	require.Error(t, err)
	assert.True(t, pin.IsResolutionError(err))
	assert.Equal(t, VerdictSetupFailed, report.Verdict)
}

func TestRun_FanoutDefaultsToConfiguredQuantity(t *testing.T) {
	sc := parse(t, `
name: fanout
fixture:
  kind: object
  name: counters
  key: id
  counter: hits
  fields: [hits]
workload:
  mode: parallel
  units:
    - id: hit
      op: counter.increment
      args: {key: 1}
expectations:
  - type: state
    key: 1
    field: hits
    value: "${fanout}"
`)
	cfg := testConfig(t)
	cfg.Fanout = 5
	report, err := Run(context.Background(), sc, WithConfig(cfg))
	require.NoError(t, err)

	assert.Equal(t, VerdictSatisfied, report.Verdict, report.Summary())
	assert.Equal(t, 5, report.Results.Launched)
	for i, o := range report.Results.Outcomes {
		assert.Equal(t, fmt.Sprintf("hit#%d", i+1), o.UnitID)
	}
}

func TestRun_SequentialStopsAtUnanticipatedFault(t *testing.T) {
	sc := parse(t, `
name: stops
fixture:
  kind: object
  name: parser
  key: id
workload:
  units:
    - id: bad
      op: json.parse
      args: {input: "{"}
    - id: good
      op: json.parse
      args: {input: "[1]"}
expectations:
  - type: completed_units
`)
	report, err := Run(context.Background(), sc, testOptions(t)...)
	require.NoError(t, err)

	assert.Equal(t, VerdictMismatch, report.Verdict)
	good, ok := report.Results.Outcome("good")
	require.True(t, ok)
	assert.Equal(t, workload.StatusSkipped, good.Status)

	types := make([]string, len(report.Mismatches))
	for i, m := range report.Mismatches {
		types[i] = string(m.Type)
	}
	assert.Equal(t, []string{"completed_units", "unexpected_fault"}, types)
}

func TestRun_ExpectedFaultDoesNotStopSequentialWorkload(t *testing.T) {
	sc := loadTestScenario(t, "json_float_parse")
	for _, u := range sc.Workload.Units {
		require.False(t, u.AllowFault, "unit %s", u.ID)
	}

	report, err := Run(context.Background(), sc, testOptions(t)...)
	require.NoError(t, err)

	assert.Equal(t, VerdictSatisfied, report.Verdict)
	assert.Empty(t, report.Mismatches)
	assert.Equal(t, 2, report.Results.Launched)
	for _, id := range []string{"empty_exponent", "garbage_exponent"} {
		o, ok := report.Results.Outcome(id)
		require.True(t, ok)
		assert.Equal(t, workload.StatusFaulted, o.Status, id)
	}
}

func TestTargetsFault(t *testing.T) {
	exps := []expect.Expectation{
		{Type: expect.TypeUnitValue, Unit: "a"},
		{Type: expect.TypeUnitFault, Unit: "b", Kind: "ParserError", Message: "x"},
	}
	assert.False(t, targetsFault(exps, "a"))
	assert.True(t, targetsFault(exps, "b"))
	assert.False(t, targetsFault(exps, "c"))
}

func TestRun_CustomRegistry(t *testing.T) {
	reg := ops.NewRegistry()
	require.NoError(t, reg.Register("const.seven", func(context.Context, ops.Call) (any, error) {
		return 7, nil
	}))

	sc := parse(t, `
name: custom
fixture:
  kind: object
  name: nothing
  key: id
workload:
  units:
    - id: seven
      op: const.seven
expectations:
  - type: unit_value
    unit: seven
    value: 7
`)
	report, err := Run(context.Background(), sc, append(testOptions(t), WithRegistry(reg))...)
	require.NoError(t, err)
	assert.Equal(t, VerdictSatisfied, report.Verdict)

	// Builtins are not present in a custom registry.
	sc.Workload.Units[0].Op = "json.parse"
	_, err = Run(context.Background(), sc, append(testOptions(t), WithRegistry(reg))...)
	require.Error(t, err)
}

func TestRun_RecordsSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	_, err := Run(context.Background(), parse(t, plusScenario), append(testOptions(t), WithTracerProvider(tp))...)
	require.NoError(t, err)

	names := map[string]bool{}
	for _, s := range recorder.Ended() {
		names[s.Name()] = true
	}
	assert.True(t, names["run"])
	assert.True(t, names["workload"])
	assert.True(t, names["unit add"])
}

func TestReport_TraceIsOrdered(t *testing.T) {
	sc := parse(t, plusScenario)
	sc.Workload.Units = append(sc.Workload.Units, UnitSpec{
		ID: "again", Op: "object.call", Args: map[string]any{"method": "plus", "args": map[string]any{"a": 2, "b": 2}},
	})

	report, err := Run(context.Background(), sc, testOptions(t)...)
	require.NoError(t, err)

	trace := report.Trace()
	require.Len(t, trace, 4)
	assert.Equal(t, TraceEvent{Type: "start", Unit: "add", Seq: 1}, trace[0])
	assert.Equal(t, TraceEvent{Type: "end", Unit: "add", Seq: 2}, trace[1])
	assert.Equal(t, TraceEvent{Type: "start", Unit: "again", Seq: 3}, trace[2])
	assert.Equal(t, TraceEvent{Type: "end", Unit: "again", Seq: 4}, trace[3])
}

func TestVerdict_ExitCodes(t *testing.T) {
	assert.Equal(t, 0, VerdictSatisfied.ExitCode())
	assert.Equal(t, 0, VerdictReproduced.ExitCode())
	assert.Equal(t, 1, VerdictMismatch.ExitCode())
	assert.Equal(t, 2, VerdictSetupFailed.ExitCode())
	assert.Equal(t, 3, VerdictNotReproduced.ExitCode())
}

func TestLock_WritesLockfile(t *testing.T) {
	sc := loadTestScenario(t, "keyword_plus")
	path := filepath.Join(t.TempDir(), "keyword_plus.lock")

	res, err := Lock(context.Background(), sc, path, WithConfig(testConfig(t)))
	require.NoError(t, err)
	require.Len(t, res.Pins, 1)
	assert.Equal(t, "v1.56.0", res.Pins[0].Version)

	lf, err := pin.ReadLockfile(path)
	require.NoError(t, err)
	assert.Equal(t, res.Digest, lf.Digest)
	assert.NoError(t, lf.Verify(res))
}

func TestLock_RequiresPinsAndPath(t *testing.T) {
	sc := parse(t, plusScenario)

	_, err := Lock(context.Background(), sc, "", WithConfig(testConfig(t)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "declares no lockfile")

	_, err = Lock(context.Background(), sc, filepath.Join(t.TempDir(), "x.lock"), WithConfig(testConfig(t)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "declares no pins")
}
