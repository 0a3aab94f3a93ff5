// Package runenv holds the environment a single harness run executes in.
//
// Bootstrap resolves the run's pinned dependencies and produces an Env: the
// run id, logger, tracer, resolution and logical clock. The Env is passed
// explicitly to fixtures and workloads; nothing here is package-level
// mutable state, so several runs can coexist in one process (a test binary
// running many scenarios, for instance).
package runenv
