// Package domain defines the core models of the content review service:
// accounts with their plan and monthly usage, and the immutable analysis
// results produced by the analysis pipeline. User is mapped with GORM;
// AnalysisResult lives only in memory for the duration of a session.
package domain

import (
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"
)

const (
	// DisplayTextMax is the number of runes of analyzed text kept on a result.
	DisplayTextMax = 100
	// DisplayEllipsis marks text that was truncated to DisplayTextMax.
	DisplayEllipsis = "..."

	// NoIssuesInsight is the insight used when nothing was found.
	NoIssuesInsight = "No issues found in the content."

	// OnlinePrefix tags ids of results produced by the remote endpoint.
	OnlinePrefix = "analysis_"
	// OfflinePrefix tags ids of results produced by the local fallback.
	OfflinePrefix = "offline_"
)

// User is an account known to the service. UsageCount is the number of
// analyses consumed in the current billing period and UsageLimit is the
// ceiling granted by Plan.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - Email: unique login identity.
//   - Plan: "free" or "pro" (enforced by DB constraint).
//   - UsageCount: non-negative, non-decreasing within a period.
//   - UsageLimit: positive ceiling determined by the plan.
type User struct {
	ID         string         `json:"id"          gorm:"type:char(36);primaryKey"`
	Email      string         `json:"email"       gorm:"type:varchar(255);not null;uniqueIndex:ux_users_email"`
	Plan       Plan           `json:"plan"        gorm:"type:varchar(16);not null;default:'free';check:plan IN ('free','pro')"`
	UsageCount int            `json:"usage_count" gorm:"not null;default:0;check:usage_count >= 0"`
	UsageLimit int            `json:"usage_limit" gorm:"not null;check:usage_limit > 0"`
	CreatedAt  time.Time      `json:"-"`
	UpdatedAt  time.Time      `json:"-"`
	DeletedAt  gorm.DeletedAt `json:"-"           gorm:"index"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Usage returns the quota view of the user.
func (u User) Usage() UsageState {
	return UsageState{UsageCount: u.UsageCount, UsageLimit: u.UsageLimit}
}

// UsageState is the quota subset of a User read and written by the
// analysis pipeline.
type UsageState struct {
	UsageCount int `json:"usage_count"`
	UsageLimit int `json:"usage_limit"`
}

// Remaining returns how many analyses are left, never negative.
func (u UsageState) Remaining() int {
	if r := u.UsageLimit - u.UsageCount; r > 0 {
		return r
	}
	return 0
}

// AnalysisResult is the outcome of one analysis. It is created once and
// never mutated afterwards; callers receive pointers into the history and
// must treat them as read-only.
type AnalysisResult struct {
	ID         string    `json:"id"`
	Text       string    `json:"text"`
	Flagged    bool      `json:"flagged"`
	Categories []string  `json:"categories"`
	Insights   []string  `json:"insights"`
	Timestamp  time.Time `json:"timestamp"`
}

// Offline reports whether the result was produced by the local fallback.
func (r *AnalysisResult) Offline() bool {
	return r != nil && strings.HasPrefix(r.ID, OfflinePrefix)
}

// Source returns "offline" for fallback results and "online" otherwise.
func (r *AnalysisResult) Source() string {
	if r.Offline() {
		return "offline"
	}
	return "online"
}

// TruncateText clips s to DisplayTextMax runes and appends DisplayEllipsis
// when anything was cut.
func TruncateText(s string) string {
	if utf8.RuneCountInString(s) <= DisplayTextMax {
		return s
	}
	return string([]rune(s)[:DisplayTextMax]) + DisplayEllipsis
}
