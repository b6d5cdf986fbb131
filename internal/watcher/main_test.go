package watcher

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain ensures no goroutines leak in any test in the watcher
// package. The supervised restart loop and the debouncer timers must
// all wind down when Stop returns.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
		goleak.IgnoreTopFunction("sync.runtime_Semacquire"),
	)
}
