// Package workload runs the units of a reproduction and records what each
// one did.
//
// Sequential mode runs units in order and stops at the first fault a unit
// does not allow; the rest are recorded as skipped. Parallel mode launches
// every unit at once and barrier-joins them: Run returns only after every
// unit has finished, and no unit is cancelled because another faulted.
// There are no timeouts and no retries. A unit that never returns blocks
// Run forever, the same way the reproduction it models would hang.
package workload
