package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-content-review/internal/domain"
	"github.com/tbourn/go-content-review/internal/fallback"
	"github.com/tbourn/go-content-review/internal/quota"
	"github.com/tbourn/go-content-review/internal/retry"
	"github.com/tbourn/go-content-review/internal/session"
	"github.com/tbourn/go-content-review/internal/transport"
)

// ----- Fakes -----

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type reply struct {
	resp transport.RawResponse
	err  error
}

// fakeSender replays replies in order; the last one repeats.
type fakeSender struct {
	mu      sync.Mutex
	replies []reply
	calls   int
	texts   []string
}

func (f *fakeSender) Send(_ context.Context, text string) (transport.RawResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	i := min(f.calls, len(f.replies)-1)
	f.calls++
	return f.replies[i].resp, f.replies[i].err
}

func (f *fakeSender) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeUserStore struct {
	mu     sync.Mutex
	counts []int
	err    error
}

func (s *fakeUserStore) UpdateUsageCount(_ context.Context, _ string, n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.counts = append(s.counts, n)
	return nil
}

func (s *fakeUserStore) UpdatePlan(context.Context, string, domain.Plan, int) error { return s.err }

type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordingSleeper) Sleep(_ context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return nil
}

// ----- Builders -----

type harness struct {
	svc     *AnalysisService
	sender  *fakeSender
	clock   *fakeClock
	sleeper *recordingSleeper
	store   *fakeUserStore
	sess    *session.Session
	notes   *Collector
}

func newHarness(count, limit int, replies ...reply) *harness {
	if len(replies) == 0 {
		replies = []reply{ok(nil, nil, nil)}
	}
	h := &harness{
		sender:  &fakeSender{replies: replies},
		clock:   newFakeClock(),
		sleeper: &recordingSleeper{},
		store:   &fakeUserStore{},
		notes:   &Collector{},
	}
	r := retry.New(retry.DefaultMaxRetries, retry.DefaultBase)
	r.Sleep = h.sleeper.Sleep

	seq := 0
	fb := fallback.New(nil, fallback.WithClock(h.clock.Now), fallback.WithIDFunc(func() string {
		seq++
		return fmt.Sprintf("fb%d", seq)
	}))
	h.svc = NewAnalysisService(h.sender, r, fb, quota.NewIntervalLimiter(time.Second), zerolog.Nop())
	h.svc.Now = h.clock.Now
	ids := 0
	h.svc.NewID = func() string {
		ids++
		return fmt.Sprintf("id%d", ids)
	}
	h.sess = session.New(domain.User{
		ID: "u1", Email: "demo@contentreview.ai", Plan: domain.PlanFree,
		UsageCount: count, UsageLimit: limit,
	}, h.store)
	return h
}

func (h *harness) analyze(text string) (*domain.AnalysisResult, error) {
	return h.svc.Analyze(context.Background(), h.sess, text, h.notes)
}

func (h *harness) kinds() []NoticeKind {
	var out []NoticeKind
	for _, n := range h.notes.Notices() {
		out = append(out, n.Kind)
	}
	return out
}

func ok(flagged *bool, cats, insights []string) reply {
	return reply{resp: transport.RawResponse{Flagged: flagged, Categories: cats, Insights: insights}}
}

func fail(kind transport.Kind) reply {
	e := &transport.Error{Kind: kind, Message: kind.String()}
	if kind == transport.HTTPError {
		e.Status = 500
		e.Message = "API error (500)"
	}
	return reply{err: e}
}

func boolp(v bool) *bool { return &v }

func hasKind(kinds []NoticeKind, k NoticeKind) bool {
	for _, x := range kinds {
		if x == k {
			return true
		}
	}
	return false
}
