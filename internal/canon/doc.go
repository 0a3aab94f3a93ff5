// Package canon produces RFC 8785 canonical JSON and domain-separated
// content digests.
//
// Canonical bytes are used wherever repro needs a stable identity for a
// value: lockfile digests, golden report snapshots and ledger rows. Two
// values that compare equal produce byte-identical output regardless of map
// iteration order.
//
// Differences from encoding/json:
//   - Object keys are sorted by UTF-16 code units
//   - No HTML escaping
//   - Strings are NFC normalized
//   - null is rejected
//   - Whole floats are written as integers; other floats use the shortest
//     round-trip form
package canon
