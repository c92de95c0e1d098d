// Package handlers exposes the HTTP API of the content review service.
//
// Handlers are transport-thin: they bind and validate input, resolve the
// caller's session, delegate to the services and translate sentinel errors
// into the ErrorResponse envelope.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-content-review/internal/domain"
	"github.com/tbourn/go-content-review/internal/http/middleware"
	"github.com/tbourn/go-content-review/internal/services"
	"github.com/tbourn/go-content-review/internal/transport"
)

//
// Service contracts (context-aware)
//

// Accounts resolves identities and manages plans.
type Accounts interface {
	Register(ctx context.Context, email string) (*domain.User, error)
	Resolve(ctx context.Context, userID string) (*services.UserSession, error)
	Logout(userID string) bool
	ChangePlan(ctx context.Context, us *services.UserSession, plan string, n services.Notifier) error
}

// IdempotencyStore persists analyze results for replay.
type IdempotencyStore interface {
	Get(ctx context.Context, userID, key string, now time.Time) (*domain.Idempotency, error)
	Save(ctx context.Context, userID, key, analysisID, resultJSON string, ttl time.Duration) error
}

// Analyzer backs the upstream /moderate endpoint.
type Analyzer interface {
	Analyze(ctx context.Context, text string) (transport.RawResponse, error)
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints.
type Handlers struct {
	accounts Accounts
	idem     IdempotencyStore
	analyzer Analyzer

	// guest runs the pipeline for requests without a session so that
	// precondition order (text before identity) is the same for everyone.
	guest *services.AnalysisService

	idemTTL time.Duration
	now     func() time.Time
}

// Option customizes Handlers.
type Option func(*Handlers)

// WithIdempotency enables analyze replays stored for ttl.
func WithIdempotency(store IdempotencyStore, ttl time.Duration) Option {
	return func(h *Handlers) {
		h.idem = store
		if ttl > 0 {
			h.idemTTL = ttl
		}
	}
}

// WithAnalyzer enables POST /moderate.
func WithAnalyzer(a Analyzer) Option {
	return func(h *Handlers) { h.analyzer = a }
}

// WithClock overrides the clock used for replays and reports.
func WithClock(now func() time.Time) Option {
	return func(h *Handlers) { h.now = now }
}

// New constructs Handlers bound to accounts. guest handles requests that
// carry no valid identity; nil uses a default pipeline with no transport.
func New(accounts Accounts, guest *services.AnalysisService, opts ...Option) *Handlers {
	h := &Handlers{
		accounts: accounts,
		guest:    guest,
		idemTTL:  24 * time.Hour,
		now:      time.Now,
	}
	for _, o := range opts {
		o(h)
	}
	if h.guest == nil {
		h.guest = services.NewAnalysisService(nil, nil, nil, nil, zerolog.Nop())
	}
	return h
}

// session resolves the caller. A missing or unknown identity yields
// (nil, nil); other failures are returned.
func (h *Handlers) session(c *gin.Context) (*services.UserSession, error) {
	us, err := h.accounts.Resolve(c.Request.Context(), middleware.UserID(c))
	if errors.Is(err, services.ErrNotAuthenticated) {
		return nil, nil
	}
	return us, err
}

// requireSession resolves the caller or writes 401/500 and returns nil.
func (h *Handlers) requireSession(c *gin.Context) *services.UserSession {
	us, err := h.session(c)
	switch {
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return nil
	case us == nil:
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, services.ErrNotAuthenticated.Error())
		return nil
	}
	return us
}
