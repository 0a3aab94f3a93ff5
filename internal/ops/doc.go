// Package ops maps operation names used in scenario files to the Go
// functions a workload unit runs.
//
// Built-in operations:
//
//	counter.increment            locked read-modify-write of the counter field
//	counter.increment_unlocked   the same without the lock
//	row.count                    number of fixture records
//	row.find                     the record for key, RecordNotFound if absent
//	json.parse                   strict JSON decode of input
//	object.call                  invoke an object fixture method with keyword args
package ops
