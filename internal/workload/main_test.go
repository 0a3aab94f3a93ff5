package workload

import (
	"testing"

	"go.uber.org/goleak"
)

// Run must leave no unit goroutine behind.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
