package services

import "sync"

// NoticeKind identifies a user-facing notification.
type NoticeKind string

const (
	NoticeValidationError   NoticeKind = "validation_error"
	NoticeNotAuthenticated  NoticeKind = "not_authenticated"
	NoticeQuotaExceeded     NoticeKind = "quota_exceeded"
	NoticeRateLimited       NoticeKind = "rate_limited"
	NoticeInProgress        NoticeKind = "analysis_in_progress"
	NoticeRetryAttempt      NoticeKind = "retry_attempt"
	NoticeConnectionProblem NoticeKind = "connection_problem"
	NoticeAnalysisComplete  NoticeKind = "analysis_complete"
	NoticeAnalysisFailed    NoticeKind = "analysis_failed"
	NoticePlanChanged       NoticeKind = "plan_changed"
	NoticeCurrentPlan       NoticeKind = "current_plan"
)

// Notice is a toast-style message for the user. Attempt and Total are set
// only for retry notices.
type Notice struct {
	Kind    NoticeKind `json:"kind"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
	Attempt int        `json:"attempt,omitempty"`
	Total   int        `json:"total,omitempty"`
}

// Notifier receives notices. Implementations must be safe for concurrent use.
type Notifier interface {
	Notify(Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

// Discard drops every notice.
var Discard Notifier = NotifierFunc(func(Notice) {})

// Collector buffers notices, typically for one HTTP request.
type Collector struct {
	mu      sync.Mutex
	notices []Notice
}

func (c *Collector) Notify(n Notice) {
	c.mu.Lock()
	c.notices = append(c.notices, n)
	c.mu.Unlock()
}

// Notices returns a copy of the buffered notices in emission order.
func (c *Collector) Notices() []Notice {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Notice, len(c.notices))
	copy(out, c.notices)
	return out
}

func notifier(n Notifier) Notifier {
	if n == nil {
		return Discard
	}
	return n
}
