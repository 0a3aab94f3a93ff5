// Package pin declares, validates and resolves exact dependency pins.
//
// A Spec is an ordered list of (name, version) pairs. Every version must be
// an exact semantic version; ranges such as "~> 7.0" or ">= 1.2" are
// rejected before any index is consulted, because a repro that floats with
// its dependencies stops reproducing the same thing.
//
// Resolution answers one question: does the index list exactly this version?
// Nothing is downloaded or installed. The resulting Resolution can be written
// to a lockfile and verified on later runs to detect drift.
package pin
