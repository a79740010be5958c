package webhooks

import "time"

// Clock abstracts time.Now so retry logic is testable without waiting.
type Clock interface {
	Now() time.Time
}

// Scheduler defers a function; the real implementation is a timer, tests
// substitute an immediate or manual one.
type Scheduler interface {
	AfterFunc(d time.Duration, f func())
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type timerScheduler struct{}

func (timerScheduler) AfterFunc(d time.Duration, f func()) { time.AfterFunc(d, f) }

// backoffCap bounds the exponential delay for high retry counts.
const backoffCap = time.Hour

// Backoff returns the delay before attempt n+1 given that attempt n just
// failed: 2^n seconds, doubling per attempt, capped at one hour.
func Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 12 {
		return backoffCap
	}
	d := time.Duration(1<<uint(attempt)) * time.Second
	if d > backoffCap {
		d = backoffCap
	}
	return d
}
