package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tbourn/go-content-review/internal/transport"
)

type recordingSleeper struct {
	delays []time.Duration
}

func (r *recordingSleeper) sleep(_ context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return nil
}

func netErr() error {
	return &transport.Error{Kind: transport.NetworkFailure, Message: "network failure"}
}

func flagged(v bool) *bool { return &v }

func newTestController(rs *recordingSleeper) *Controller {
	c := New(DefaultMaxRetries, DefaultBase)
	c.Sleep = rs.sleep
	return c
}

func TestDo_SucceedsOnThirdAttempt(t *testing.T) {
	rs := &recordingSleeper{}
	c := newTestController(rs)

	calls := 0
	op := func(context.Context) (transport.RawResponse, error) {
		calls++
		if calls < 3 {
			return transport.RawResponse{}, netErr()
		}
		return transport.RawResponse{Flagged: flagged(true)}, nil
	}

	var events []Event
	resp, err := c.Do(context.Background(), op, func(e Event) { events = append(events, e) })
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if resp.Flagged == nil || !*resp.Flagged {
		t.Fatalf("resp=%+v", resp)
	}
	if calls != 3 {
		t.Fatalf("calls=%d", calls)
	}
	if len(rs.delays) != 2 || rs.delays[0] != time.Second || rs.delays[1] != 2*time.Second {
		t.Fatalf("delays=%v", rs.delays)
	}

	want := []State{Attempting, BackingOff, Attempting, BackingOff, Attempting, Succeeded}
	if len(events) != len(want) {
		t.Fatalf("events=%+v", events)
	}
	for i, s := range want {
		if events[i].State != s {
			t.Fatalf("event %d: got %v want %v", i, events[i].State, s)
		}
		if events[i].Total != 3 {
			t.Fatalf("event %d total=%d", i, events[i].Total)
		}
	}
	if events[4].Attempt != 3 {
		t.Fatalf("last attempt=%d", events[4].Attempt)
	}
}

func TestDo_ExhaustsAfterThreeAttempts(t *testing.T) {
	rs := &recordingSleeper{}
	c := newTestController(rs)

	calls := 0
	op := func(context.Context) (transport.RawResponse, error) {
		calls++
		return transport.RawResponse{}, &transport.Error{Kind: transport.Timeout, Message: "timed out"}
	}

	var last Event
	_, err := c.Do(context.Background(), op, func(e Event) { last = e })
	if calls != 3 {
		t.Fatalf("calls=%d", calls)
	}
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
	if transport.KindOf(err) != transport.Timeout {
		t.Fatalf("expected wrapped timeout, got %v", err)
	}
	if last.State != Exhausted || last.Attempt != 3 {
		t.Fatalf("last=%+v", last)
	}
	if len(rs.delays) != 2 {
		t.Fatalf("delays=%v", rs.delays)
	}
}

func TestDo_TerminalErrorNotRetried(t *testing.T) {
	rs := &recordingSleeper{}
	c := newTestController(rs)

	calls := 0
	op := func(context.Context) (transport.RawResponse, error) {
		calls++
		return transport.RawResponse{}, &transport.Error{Kind: transport.HTTPError, Status: 500, Message: "API error (500)"}
	}

	var states []State
	_, err := c.Do(context.Background(), op, func(e Event) { states = append(states, e.State) })
	if calls != 1 {
		t.Fatalf("calls=%d", calls)
	}
	if errors.Is(err, ErrExhausted) {
		t.Fatal("terminal error must not be reported as exhausted")
	}
	if transport.KindOf(err) != transport.HTTPError {
		t.Fatalf("err=%v", err)
	}
	if len(rs.delays) != 0 {
		t.Fatalf("delays=%v", rs.delays)
	}
	if len(states) != 2 || states[1] != Failed {
		t.Fatalf("states=%v", states)
	}
}

func TestDo_ZeroRetries(t *testing.T) {
	rs := &recordingSleeper{}
	c := New(-1, 0)
	c.Sleep = rs.sleep
	if c.Total() != 1 || c.Base != DefaultBase {
		t.Fatalf("total=%d base=%v", c.Total(), c.Base)
	}
	calls := 0
	_, err := c.Do(context.Background(), func(context.Context) (transport.RawResponse, error) {
		calls++
		return transport.RawResponse{}, netErr()
	}, nil)
	if calls != 1 || !errors.Is(err, ErrExhausted) {
		t.Fatalf("calls=%d err=%v", calls, err)
	}
}

func TestDo_SleepCancelled(t *testing.T) {
	c := New(2, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Do(ctx, func(context.Context) (transport.RawResponse, error) {
		return transport.RawResponse{}, netErr()
	}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v", err)
	}
}

func TestSchedule_Doubles(t *testing.T) {
	c := New(4, 500*time.Millisecond)
	s := c.schedule()
	want := []time.Duration{500 * time.Millisecond, time.Second, 2 * time.Second, 4 * time.Second}
	for i, w := range want {
		if got := s.NextBackOff(); got != w {
			t.Fatalf("step %d: got %v want %v", i, got, w)
		}
	}
}

func TestState_String(t *testing.T) {
	if Attempting.String() != "attempting" || Exhausted.String() != "exhausted" || State(0).String() != "unknown" {
		t.Fatal("unexpected state names")
	}
}
