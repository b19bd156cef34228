package gt

import (
	"time"
)

// Clock abstracts time retrieval and delayed callbacks so business logic is
// deterministic in tests.
type Clock interface {
	Now() time.Time
	// AfterFunc calls f in its own goroutine after d has elapsed.
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a cancellable delayed task created by Clock.AfterFunc.
type Timer interface {
	// Stop prevents the task from firing. It returns false if the task
	// already fired or was already stopped.
	Stop() bool
}

// RealClock returns the actual current time.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
