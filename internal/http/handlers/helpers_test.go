package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/go-content-review/internal/domain"
	"github.com/tbourn/go-content-review/internal/http/middleware"
	"github.com/tbourn/go-content-review/internal/quota"
	"github.com/tbourn/go-content-review/internal/retry"
	"github.com/tbourn/go-content-review/internal/services"
	"github.com/tbourn/go-content-review/internal/transport"
)

func init() { gin.SetMode(gin.TestMode) }

// ----- Fakes -----

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
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
}

func (f *fakeSender) Send(context.Context, string) (transport.RawResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := min(f.calls, len(f.replies)-1)
	f.calls++
	return f.replies[i].resp, f.replies[i].err
}

func (f *fakeSender) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeUsers implements services.UserRepo and session.Store in memory.
type fakeUsers struct {
	mu    sync.Mutex
	users map[string]domain.User
}

func (f *fakeUsers) CreateUser(_ context.Context, _ *gorm.DB, email string, plan domain.Plan, limit int) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := domain.User{ID: uuid.NewString(), Email: email, Plan: plan, UsageLimit: limit}
	f.users[u.ID] = u
	return &u, nil
}

func (f *fakeUsers) GetUser(_ context.Context, _ *gorm.DB, id string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &u, nil
}

func (f *fakeUsers) GetUserByEmail(_ context.Context, _ *gorm.DB, email string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeUsers) UpdateUsageCount(_ context.Context, id string, n int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.users[id]
	u.UsageCount = n
	f.users[id] = u
	return nil
}

func (f *fakeUsers) UpdatePlan(_ context.Context, id string, plan domain.Plan, limit int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.users[id]
	u.Plan, u.UsageLimit = plan, limit
	f.users[id] = u
	return nil
}

type idemEntry struct {
	rec     domain.Idempotency
	expires time.Time
}

// fakeIdem implements IdempotencyStore and the middleware lookup.
type fakeIdem struct {
	mu      sync.Mutex
	entries map[string]idemEntry
}

func (f *fakeIdem) Get(_ context.Context, userID, key string, now time.Time) (*domain.Idempotency, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[userID+"|"+key]
	if !ok || !now.Before(e.expires) {
		return nil, gorm.ErrRecordNotFound
	}
	rec := e.rec
	return &rec, nil
}

func (f *fakeIdem) Save(_ context.Context, userID, key, analysisID, resultJSON string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[userID+"|"+key] = idemEntry{
		rec:     domain.Idempotency{UserID: userID, Key: key, AnalysisID: analysisID, Result: resultJSON},
		expires: time.Now().UTC().Add(ttl),
	}
	return nil
}

func (f *fakeIdem) Exists(ctx context.Context, userID, key string, now time.Time) (bool, error) {
	rec, _ := f.Get(ctx, userID, key, now)
	return rec != nil, nil
}

type fakeAnalyzer struct {
	resp transport.RawResponse
	err  error
}

func (f fakeAnalyzer) Analyze(context.Context, string) (transport.RawResponse, error) {
	return f.resp, f.err
}

// ----- Harness -----

const (
	freeUser = "11111111-1111-4111-8111-111111111111"
	proUser  = "22222222-2222-4222-8222-222222222222"
	fullUser = "33333333-3333-4333-8333-333333333333"
)

type harness struct {
	r      *gin.Engine
	sender *fakeSender
	clock  *fakeClock
	users  *fakeUsers
	idem   *fakeIdem
}

func newHarness(t *testing.T, replies ...reply) *harness {
	t.Helper()
	if len(replies) == 0 {
		replies = []reply{ok200(false, nil, []string{"Looks fine."})}
	}
	h := &harness{
		sender: &fakeSender{replies: replies},
		clock:  &fakeClock{t: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)},
		users: &fakeUsers{users: map[string]domain.User{
			freeUser: {ID: freeUser, Email: "demo@contentreview.ai", Plan: domain.PlanFree, UsageCount: 45, UsageLimit: 100},
			proUser:  {ID: proUser, Email: "pro@contentreview.ai", Plan: domain.PlanPro, UsageCount: 356, UsageLimit: 1000},
			fullUser: {ID: fullUser, Email: "full@contentreview.ai", Plan: domain.PlanFree, UsageCount: 100, UsageLimit: 100},
		}},
		idem: &fakeIdem{entries: map[string]idemEntry{}},
	}

	newAnalysis := func() *services.AnalysisService {
		rc := retry.New(2, time.Second)
		rc.Sleep = func(context.Context, time.Duration) error { return nil }
		svc := services.NewAnalysisService(h.sender, rc, nil, quota.NewIntervalLimiter(time.Second), zerolog.Nop())
		svc.Now = h.clock.Now
		return svc
	}
	sessions := services.NewSessions(h.users, newAnalysis)
	accounts := services.NewAccountService(nil, h.users, domain.DefaultLimits(), sessions)

	hd := New(accounts, nil,
		WithIdempotency(h.idem, time.Hour),
		WithClock(h.clock.Now),
	)
	h.r = newRouter(hd, h.idem)
	return h
}

func newRouter(hd *Handlers, idem *fakeIdem) *gin.Engine {
	r := gin.New()
	r.Use(
		middleware.RequestID(),
		middleware.Identity(),
		middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, idem.Exists),
	)
	r.POST("/moderate", hd.Moderate)
	r.POST("/users", hd.Register)
	r.GET("/me", hd.Me)
	r.PUT("/me/plan", hd.ChangePlan)
	r.DELETE("/session", hd.Logout)
	r.POST("/analyze", hd.Analyze)
	r.GET("/analyses", hd.ListAnalyses)
	r.GET("/analyses/selected", hd.GetSelected)
	r.PUT("/analyses/selected", hd.PutSelected)
	r.GET("/analyses/:id/report", hd.Report)
	return r
}

func ok200(flagged bool, cats, insights []string) reply {
	return reply{resp: transport.RawResponse{Flagged: &flagged, Categories: cats, Insights: insights}}
}

func transient() reply {
	return reply{err: &transport.Error{Kind: transport.NetworkFailure, Message: "connection refused"}}
}

func terminal(status int) reply {
	return reply{err: &transport.Error{Kind: transport.HTTPError, Status: status, Message: "upstream exploded"}}
}

// do sends a JSON request; body may be nil.
func do(t *testing.T, r http.Handler, method, path, user string, body any, hdr ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, isRaw := body.(string); isRaw {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set(middleware.HeaderUserID, user)
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %T from %q: %v", v, w.Body.String(), err)
	}
	return v
}

func hasKind(ns []services.Notice, k services.NoticeKind) bool {
	for _, n := range ns {
		if n.Kind == k {
			return true
		}
	}
	return false
}

func countKind(ns []services.Notice, k services.NoticeKind) int {
	c := 0
	for _, n := range ns {
		if n.Kind == k {
			c++
		}
	}
	return c
}
