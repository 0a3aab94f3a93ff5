package testutil

import (
	"fmt"
	"sync"
)

// FixedRunID returns the same run id on every call, so reports and ledger
// rows from repeated runs are byte-comparable.
//
// Thread-safety: stateless.
type FixedRunID struct {
	id string
}

// NewFixedRunID creates a generator for id. Empty id means "test-run".
func NewFixedRunID(id string) *FixedRunID {
	if id == "" {
		id = "test-run"
	}
	return &FixedRunID{id: id}
}

// Generate implements runenv.RunIDGenerator.
func (g *FixedRunID) Generate() string {
	return g.id
}

// SequentialRunIDs yields prefix-1, prefix-2, ... for tests that record
// several runs in one ledger.
type SequentialRunIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialRunIDs creates a generator with the given prefix.
func NewSequentialRunIDs(prefix string) *SequentialRunIDs {
	return &SequentialRunIDs{prefix: prefix}
}

// Generate implements runenv.RunIDGenerator.
func (g *SequentialRunIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
