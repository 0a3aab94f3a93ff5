// Package fixture builds the minimal state a reproduction runs against.
//
// A fixture is one of a closed set of kinds behind the Fixture interface:
//
//   - object: an in-memory set of keyed records with integer fields and
//     optional Lua methods (see Caller)
//   - table: one relational table in a relstore database
//
// Define constructs a fixture and performs its destructive reset: whatever
// a previous run left behind is dropped, the structure is recreated and
// the seed records are inserted. Two Defines with the same spec leave
// identical state.
//
// Shared-state correctness under concurrent units is the fixture's
// contract: MutateLocked holds an exclusive per-key lock across the whole
// read-modify-write, Mutate does not and is how lost updates are
// reproduced.
package fixture
