package resilience

import "time"

// Clock abstracts time so breaker timeouts and retry waits are testable
// without real time passing.
type Clock interface {
	Now() time.Time
	// After behaves like time.After
	After(d time.Duration) <-chan time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

func (systemClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// SystemClock returns the wall clock
func SystemClock() Clock {
	return systemClock{}
}
