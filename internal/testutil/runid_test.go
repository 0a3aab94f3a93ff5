package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFixedRunID(t *testing.T) {
	gen := NewFixedRunID("run-abc")
	assert.Equal(t, "run-abc", gen.Generate())
	assert.Equal(t, "run-abc", gen.Generate())

	assert.Equal(t, "test-run", NewFixedRunID("").Generate())
}

func TestSequentialRunIDs(t *testing.T) {
	gen := NewSequentialRunIDs("run")
	assert.Equal(t, "run-1", gen.Generate())
	assert.Equal(t, "run-2", gen.Generate())
	assert.Equal(t, "run-3", gen.Generate())
}
