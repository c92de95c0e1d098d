// Package quota holds the two preconditions an analysis must pass before it
// may reach the network: the monthly usage gate and the minimum-interval
// limiter that stops accidental double submissions.
package quota

import "github.com/tbourn/go-content-review/internal/domain"

// CanProceed reports whether another analysis fits in the user's quota.
// It is false once UsageCount reaches UsageLimit.
func CanProceed(usage domain.UsageState) bool {
	return usage.UsageCount < usage.UsageLimit
}
