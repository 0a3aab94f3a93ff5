// Package expect compares observed outcomes against expectations.
//
// Comparison is exact. Values are compared structurally after numeric
// normalization (every integer kind and every whole float becomes int64),
// faults by kind and full message. There is no substring, pattern or
// tolerance matching: a fault message that merely contains the expected
// text is a mismatch.
package expect
