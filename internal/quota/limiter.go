package quota

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultMinInterval is the minimum gap between two dispatched analyses.
const DefaultMinInterval = time.Second

// IntervalLimiter admits at most one request per interval. It is a
// single-token bucket: a throttled check consumes nothing and leaves the
// last dispatch time untouched, so only allowed requests move the window.
//
// This type is safe for concurrent use.
type IntervalLimiter struct {
	interval time.Duration

	mu   sync.Mutex
	lim  *rate.Limiter
	last time.Time
}

// NewIntervalLimiter returns a limiter that allows one request per interval.
// Values <= 0 fall back to DefaultMinInterval.
func NewIntervalLimiter(interval time.Duration) *IntervalLimiter {
	if interval <= 0 {
		interval = DefaultMinInterval
	}
	return &IntervalLimiter{
		interval: interval,
		lim:      rate.NewLimiter(rate.Every(interval), 1),
	}
}

// Interval returns the configured minimum gap.
func (l *IntervalLimiter) Interval() time.Duration { return l.interval }

// CheckAndRecord admits the request started at now when at least the
// configured interval has passed since the last admitted one, recording now
// as the new dispatch time. When throttled it returns false together with
// the remaining wait.
func (l *IntervalLimiter) CheckAndRecord(now time.Time) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.last.IsZero() && now.Sub(l.last) < l.interval {
		return false, l.interval - now.Sub(l.last)
	}
	if !l.lim.AllowN(now, 1) {
		return false, max(l.interval-now.Sub(l.last), 0)
	}
	l.last = now
	return true, 0
}

// Last returns the start time of the last admitted request, or the zero
// time when nothing was admitted yet.
func (l *IntervalLimiter) Last() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last
}
