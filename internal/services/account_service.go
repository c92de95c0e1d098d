// Package services – AccountService
//
// This file implements AccountService: registration, identity resolution
// into per-user sessions, plan changes and usage summaries. Plans only
// change the usage limit; the usage count is kept across switches.
package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"github.com/tbourn/go-content-review/internal/domain"
)

// UserRepo defines the repository contract required by AccountService.
type UserRepo interface {
	// CreateUser inserts a user with a zero usage count.
	CreateUser(ctx context.Context, db *gorm.DB, email string, plan domain.Plan, limit int) (*domain.User, error)

	// GetUser fetches a user by id; gorm.ErrRecordNotFound when missing.
	GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error)

	// GetUserByEmail fetches a user by normalized email.
	GetUserByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.User, error)
}

// AccountService resolves identities and manages plans.
type AccountService struct {
	DB       *gorm.DB
	Repo     UserRepo
	Limits   domain.Limits
	Sessions *Sessions
}

// NewAccountService constructs an AccountService.
func NewAccountService(db *gorm.DB, r UserRepo, limits domain.Limits, sessions *Sessions) *AccountService {
	return &AccountService{DB: db, Repo: r, Limits: limits, Sessions: sessions}
}

// Register creates a free user for email.
func (s *AccountService) Register(ctx context.Context, email string) (*domain.User, error) {
	tr := otel.Tracer("services/AccountService")
	ctx, span := tr.Start(ctx, "Register")
	defer span.End()

	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if _, err := s.Repo.GetUserByEmail(ctx, s.DB, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	return s.Repo.CreateUser(ctx, s.DB, email, domain.PlanFree, s.Limits.For(domain.PlanFree))
}

// Resolve maps a user id to its open session, loading the user on first use.
// Blank or unknown ids yield ErrNotAuthenticated.
func (s *AccountService) Resolve(ctx context.Context, userID string) (*UserSession, error) {
	tr := otel.Tracer("services/AccountService")
	ctx, span := tr.Start(ctx, "Resolve",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrNotAuthenticated
	}
	if us, ok := s.Sessions.Lookup(userID); ok {
		return us, nil
	}
	u, err := s.Repo.GetUser(ctx, s.DB, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotAuthenticated
		}
		return nil, err
	}
	return s.Sessions.Open(*u), nil
}

// Logout ends the session for userID.
func (s *AccountService) Logout(userID string) bool {
	return s.Sessions.End(userID)
}

// ChangePlan switches us to the named plan.
func (s *AccountService) ChangePlan(ctx context.Context, us *UserSession, name string, n Notifier) error {
	n = notifier(n)
	tr := otel.Tracer("services/AccountService")
	ctx, span := tr.Start(ctx, "ChangePlan",
		trace.WithAttributes(attribute.String("plan", name)),
	)
	defer span.End()

	if us == nil {
		return ErrNotAuthenticated
	}
	plan, err := domain.ParsePlan(name)
	if err != nil {
		return ErrUnknownPlan
	}
	if us.Session.User().Plan == plan {
		n.Notify(Notice{
			Kind: NoticeCurrentPlan, Title: "Current plan",
			Message: fmt.Sprintf("You are already on the %s plan.", PlanName(plan)),
		})
		return ErrSamePlan
	}
	if err := us.Session.SetPlan(ctx, plan, s.Limits.For(plan)); err != nil {
		return err
	}
	n.Notify(Notice{
		Kind: NoticePlanChanged, Title: "Plan updated",
		Message: fmt.Sprintf("Your plan was changed to %s.", PlanName(plan)),
	})
	return nil
}

// PlanName is the display name of p.
func PlanName(p domain.Plan) string {
	return cases.Title(language.English).String(string(p))
}

// UsageLevel buckets the usage percentage.
type UsageLevel string

const (
	UsageOK       UsageLevel = "ok"
	UsageWarning  UsageLevel = "warning"
	UsageCritical UsageLevel = "critical"
)

// UsageSummary is the quota view returned with the identity.
type UsageSummary struct {
	Count     int        `json:"usage_count"`
	Limit     int        `json:"usage_limit"`
	Remaining int        `json:"remaining"`
	Percent   int        `json:"percent"`
	Level     UsageLevel `json:"level"`
	NearLimit bool       `json:"near_limit"`
}

// Summarize computes the quota view for u. Percent is capped at 100.
func Summarize(u domain.UsageState) UsageSummary {
	pct := 100
	if u.UsageLimit > 0 {
		pct = min(u.UsageCount*100/u.UsageLimit, 100)
	}
	level := UsageOK
	switch {
	case pct > 90:
		level = UsageCritical
	case pct > 70:
		level = UsageWarning
	}
	return UsageSummary{
		Count:     u.UsageCount,
		Limit:     u.UsageLimit,
		Remaining: u.Remaining(),
		Percent:   pct,
		Level:     level,
		NearLimit: pct > 80,
	}
}

func normalizeEmail(s string) (string, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", ErrInvalidEmail
	}
	a, err := mail.ParseAddress(s)
	if err != nil || a.Address != s {
		return "", ErrInvalidEmail
	}
	return s, nil
}
