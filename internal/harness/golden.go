package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"
)

// GoldenDir is where golden snapshots live, relative to the test's
// package directory.
const GoldenDir = "testdata/golden"

// AssertGolden compares the report's snapshot against
// testdata/golden/{name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func AssertGolden(t *testing.T, name string, report *Report) {
	t.Helper()

	snap, err := report.Snapshot()
	if err != nil {
		t.Fatalf("snapshot %s: %v", name, err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir(GoldenDir),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, snap)
}

// RunWithGolden runs the scenario and compares its snapshot against the
// golden file named after it.
func RunWithGolden(t *testing.T, sc *Scenario, opts ...Option) *Report {
	t.Helper()

	report, err := Run(t.Context(), sc, opts...)
	if err != nil && !IsSetupError(err) {
		t.Fatalf("run %s: %v", sc.Name, err)
	}
	AssertGolden(t, sc.Name, report)
	return report
}
