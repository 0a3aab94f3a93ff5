// Package ledger records every run of every scenario in a SQLite file.
//
// The ledger is append-only:
//   - runs: one row per run, keyed by run id, with the verdict, the canonical
//     snapshot and its digest
//   - unit_outcomes: one row per workload unit of a run
//
// Runs are ordered by an insertion sequence, never by timestamps, so
// History is stable across machines and clock skew.
//
// # Flakiness
//
// A scenario that produces different verdicts or different snapshot
// digests across runs is flaky. Flaky reports it; nothing is retried or
// averaged away.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package ledger
