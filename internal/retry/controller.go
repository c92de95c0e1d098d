// Package retry wraps a transport call in a bounded exponential-backoff
// loop. The loop is an explicit state machine:
//
//	Attempting(1) -> BackingOff(1) -> Attempting(2) -> ... -> Succeeded | Exhausted | Failed
//
// Every transition is reported to an Observer so callers can surface
// progress ("attempt 2/3") without sharing counters with the loop.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/tbourn/go-content-review/internal/transport"
)

const (
	DefaultMaxRetries = 2
	DefaultBase       = time.Second
)

// ErrExhausted is wrapped around the last transient error once every
// attempt has failed.
var ErrExhausted = errors.New("retries exhausted")

// State is a node of the retry state machine.
type State int

const (
	Attempting State = iota + 1
	BackingOff
	Succeeded
	Exhausted
	Failed
)

func (s State) String() string {
	switch s {
	case Attempting:
		return "attempting"
	case BackingOff:
		return "backing_off"
	case Succeeded:
		return "succeeded"
	case Exhausted:
		return "exhausted"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Event is one state transition. Attempt is 1-based; Delay is set only for
// BackingOff; Err is the failure that caused BackingOff, Exhausted or Failed.
type Event struct {
	State   State
	Attempt int
	Total   int
	Delay   time.Duration
	Err     error
}

// Observer receives transitions in order. It may be nil.
type Observer func(Event)

// Op is a single attempt.
type Op func(ctx context.Context) (transport.RawResponse, error)

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Controller runs Op up to MaxRetries+1 times. Only transient transport
// errors are retried; anything else ends the loop in Failed.
type Controller struct {
	MaxRetries int
	Base       time.Duration
	Sleep      SleepFunc
}

// New returns a Controller with the given retry budget and backoff base.
// Negative retries are clamped to zero and a non-positive base falls back
// to DefaultBase.
func New(maxRetries int, base time.Duration) *Controller {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if base <= 0 {
		base = DefaultBase
	}
	return &Controller{MaxRetries: maxRetries, Base: base, Sleep: SleepContext}
}

// SleepContext is the default SleepFunc.
func SleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Total is the number of attempts the controller will make.
func (c *Controller) Total() int { return c.MaxRetries + 1 }

// schedule yields base, 2*base, 4*base, ... with no jitter.
func (c *Controller) schedule() *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     c.Base,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         c.Base << 16,
	}
	b.Reset()
	return b
}

// Do runs op until it succeeds, fails terminally, or the budget is spent.
// On exhaustion the returned error wraps both ErrExhausted and the last
// transport error.
func (c *Controller) Do(ctx context.Context, op Op, observe Observer) (transport.RawResponse, error) {
	emit := func(e Event) {
		if observe != nil {
			observe(e)
		}
	}
	sleep := c.Sleep
	if sleep == nil {
		sleep = SleepContext
	}
	total := c.Total()
	sched := c.schedule()

	for attempt := 1; ; attempt++ {
		emit(Event{State: Attempting, Attempt: attempt, Total: total})

		resp, err := op(ctx)
		if err == nil {
			emit(Event{State: Succeeded, Attempt: attempt, Total: total})
			return resp, nil
		}
		if !transport.IsTransient(err) {
			emit(Event{State: Failed, Attempt: attempt, Total: total, Err: err})
			return transport.RawResponse{}, err
		}
		if attempt >= total {
			emit(Event{State: Exhausted, Attempt: attempt, Total: total, Err: err})
			return transport.RawResponse{}, fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempt, err)
		}

		delay := sched.NextBackOff()
		emit(Event{State: BackingOff, Attempt: attempt, Total: total, Delay: delay, Err: err})
		if serr := sleep(ctx, delay); serr != nil {
			emit(Event{State: Failed, Attempt: attempt, Total: total, Err: serr})
			return transport.RawResponse{}, serr
		}
	}
}
