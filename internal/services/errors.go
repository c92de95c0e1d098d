// Package services implements the content-analysis pipeline and the account
// operations around it. This file centralizes the service-level error values
// so handlers can map them to HTTP results consistently.
package services

import (
	"errors"

	"github.com/tbourn/go-content-review/internal/domain"
)

// Analysis preconditions. Each one is checked before any network call and
// leaves all state untouched.
var (
	// ErrEmptyText is returned when the submitted text is blank after trimming.
	ErrEmptyText = errors.New("text to analyze is empty")

	// ErrNotAuthenticated is returned when no identity accompanies a request.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrQuotaExceeded is returned when usageCount has reached usageLimit.
	ErrQuotaExceeded = errors.New("usage quota exceeded")

	// ErrRateLimited is returned when a request follows the previous one
	// too closely.
	ErrRateLimited = errors.New("please wait before analyzing again")

	// ErrAnalysisInProgress is returned when another analysis for the same
	// session has not finished.
	ErrAnalysisInProgress = errors.New("an analysis is already in progress")
)

// ErrAnalysisFailed wraps terminal transport errors (bad status, malformed
// body). These are not retried and do not fall back.
var ErrAnalysisFailed = errors.New("analysis failed")

// Account errors.
var (
	// ErrReportRequiresPro is returned when a non-pro user exports a report.
	ErrReportRequiresPro = errors.New("report export requires the pro plan")

	// ErrSamePlan is returned when switching to the plan already active.
	ErrSamePlan = errors.New("already on this plan")

	// ErrUnknownPlan is returned for an unrecognized plan name.
	ErrUnknownPlan = domain.ErrUnknownPlan

	// ErrEmailTaken is returned when registering an email already in use.
	ErrEmailTaken = errors.New("email already registered")

	// ErrInvalidEmail is returned for a blank or malformed email.
	ErrInvalidEmail = errors.New("invalid email")
)
