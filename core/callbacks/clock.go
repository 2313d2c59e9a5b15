package callbacks

import "time"

// Clock provides the wall-clock time used to measure hook durations
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the clock backed by time.Now
func SystemClock() Clock {
	return systemClock{}
}
