package pool

import (
	"sync"
	"time"
)

// Reset pulse holds and shutdown waits burn through short-lived timers,
// so they are recycled here instead of allocated per wait.
//
// Recycling leans on the Go 1.23 timer semantics: Reset and Stop flush
// the timer channel, so a reused timer can never deliver a stale tick.
var timerPool sync.Pool

// GetTimer returns a timer that fires after d, reusing a pooled timer
// when one is available. Return it with PutTimer.
func GetTimer(d time.Duration) *time.Timer {
	if v := timerPool.Get(); v != nil {
		t, _ := v.(*time.Timer)
		t.Reset(d)

		return t
	}

	return time.NewTimer(d)
}

// PutTimer stops t and recycles it.
//
// t cannot be accessed after returning to the pool.
func PutTimer(t *time.Timer) {
	t.Stop()
	timerPool.Put(t)
}
