package domain

import (
	"errors"
	"strings"
)

// Plan is a subscription tier.
type Plan string

const (
	PlanFree Plan = "free"
	PlanPro  Plan = "pro"
)

const (
	// DefaultFreeLimit is the monthly analyses granted by the free plan.
	DefaultFreeLimit = 100
	// DefaultProLimit is the monthly analyses granted by the pro plan.
	DefaultProLimit = 1000
)

// ErrUnknownPlan is returned by ParsePlan for anything but free or pro.
var ErrUnknownPlan = errors.New("unknown plan")

// ParsePlan normalizes s and returns the matching plan.
func ParsePlan(s string) (Plan, error) {
	switch Plan(strings.ToLower(strings.TrimSpace(s))) {
	case PlanFree:
		return PlanFree, nil
	case PlanPro:
		return PlanPro, nil
	}
	return "", ErrUnknownPlan
}

// Limits maps each plan to its usage ceiling.
type Limits struct {
	Free int
	Pro  int
}

// DefaultLimits returns the stock plan ceilings.
func DefaultLimits() Limits {
	return Limits{Free: DefaultFreeLimit, Pro: DefaultProLimit}
}

// For returns the ceiling of p, falling back to the free ceiling.
func (l Limits) For(p Plan) int {
	if p == PlanPro {
		return l.Pro
	}
	return l.Free
}

// CanExportReports reports whether the plan includes report generation.
func (p Plan) CanExportReports() bool { return p == PlanPro }
