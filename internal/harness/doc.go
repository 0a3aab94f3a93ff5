// Package harness runs reproduction scenarios.
//
// A scenario is a YAML file naming the exact dependency pins, a minimal
// fixture, a workload and the expected outcome. Run executes it as a
// strictly ordered pipeline:
//
//	bootstrap -> fixture -> workload -> observe -> assert
//
// Only the workload stage may fan out; it barrier-joins before anything is
// observed. A failure before the workload runs is a setup failure and is
// reported as such (verdict setup_failed, *SetupError). An expectation that
// does not hold is the normal negative outcome and is not an error.
//
// # Intent
//
// Each scenario declares what a passing run means. expected_behavior (the
// default) asserts correct behavior: all expectations holding is
// "satisfied". defect_signature asserts the presence of a known bug: all
// expectations holding is "reproduced", and anything else is
// "not_reproduced", which usually means the defect was fixed upstream. The
// two are never conflated.
//
// # Golden snapshots
//
// Report.Snapshot renders the deterministic part of a report as canonical
// JSON. Run ids, logical sequence numbers and the values of parallel units
// are left out, so the same scenario yields byte-identical snapshots
// across runs.
package harness
