package runenv

import "github.com/google/uuid"

// RunIDGenerator produces run identifiers.
type RunIDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 run ids, so ledger rows and
// log lines sort by creation time.
//
// Thread-safety: stateless.
type UUIDv7Generator struct{}

// Generate returns a hyphenated UUIDv7. Panics only if the system random
// source fails.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}
