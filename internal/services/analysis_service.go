// Package services – AnalysisService
//
// This file implements AnalysisService, the orchestrator of the content
// analysis pipeline. One instance serves one session and owns its History,
// interval limiter and in-progress flag. A call to Analyze runs:
//
//	validate -> authenticate -> usage gate -> in-progress guard -> interval limiter
//	-> retry(transport) -> [fallback on exhausted transient errors]
//	-> history append + select -> usage +1
//
// Rejections return a nil result, a sentinel error and a notice, and mutate
// nothing. Terminal transport errors set LastError and are not recorded.
//
// Observability: Analyze is OpenTelemetry-instrumented and counts results,
// rejections and transport attempts in Prometheus. Text is never logged.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-content-review/internal/domain"
	"github.com/tbourn/go-content-review/internal/fallback"
	"github.com/tbourn/go-content-review/internal/history"
	"github.com/tbourn/go-content-review/internal/quota"
	"github.com/tbourn/go-content-review/internal/retry"
	"github.com/tbourn/go-content-review/internal/session"
	"github.com/tbourn/go-content-review/internal/transport"
)

// AnalysisService runs the pipeline for a single session.
type AnalysisService struct {
	Transport transport.Sender
	Retry     *retry.Controller
	Fallback  *fallback.Classifier
	Limiter   *quota.IntervalLimiter
	History   *history.Store
	Log       zerolog.Logger

	// Now and NewID are overridable for tests.
	Now   func() time.Time
	NewID func() string

	busy    atomic.Bool
	mu      sync.Mutex
	lastErr string
}

// NewAnalysisService wires a pipeline with a fresh History. Nil collaborators
// get defaults: a DefaultMaxRetries controller, the default keyword
// classifier and a DefaultMinInterval limiter.
func NewAnalysisService(t transport.Sender, r *retry.Controller, fb *fallback.Classifier, lim *quota.IntervalLimiter, log zerolog.Logger) *AnalysisService {
	if r == nil {
		r = retry.New(retry.DefaultMaxRetries, retry.DefaultBase)
	}
	if fb == nil {
		fb = fallback.New(nil)
	}
	if lim == nil {
		lim = quota.NewIntervalLimiter(quota.DefaultMinInterval)
	}
	return &AnalysisService{
		Transport: t,
		Retry:     r,
		Fallback:  fb,
		Limiter:   lim,
		History:   history.New(),
		Log:       log.With().Str("service", "AnalysisService").Logger(),
		Now:       time.Now,
		NewID:     uuid.NewString,
	}
}

// InProgress reports whether an Analyze call is running.
func (s *AnalysisService) InProgress() bool { return s.busy.Load() }

// LastError is the message of the last terminal failure, cleared at the
// start of the next dispatched analysis.
func (s *AnalysisService) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *AnalysisService) setLastError(msg string) {
	s.mu.Lock()
	s.lastErr = msg
	s.mu.Unlock()
}

// Analyze runs the pipeline for text on behalf of sess. Once dispatched the
// call runs to completion even if ctx is cancelled.
func (s *AnalysisService) Analyze(ctx context.Context, sess *session.Session, text string, n Notifier) (*domain.AnalysisResult, error) {
	n = notifier(n)
	tr := otel.Tracer("services/AnalysisService")
	ctx, span := tr.Start(ctx, "Analyze",
		trace.WithAttributes(attribute.Int("text.runes", utf8.RuneCountInString(text))),
	)
	defer span.End()

	reject := func(reason string, err error, notice Notice) (*domain.AnalysisResult, error) {
		analysisRejections.WithLabelValues(reason).Inc()
		span.SetAttributes(attribute.String("analysis.rejected", reason))
		n.Notify(notice)
		return nil, err
	}

	if strings.TrimSpace(text) == "" {
		return reject("validation", ErrEmptyText, Notice{
			Kind: NoticeValidationError, Title: "Validation error",
			Message: "The text to analyze cannot be empty.",
		})
	}
	if sess == nil {
		return reject("not_authenticated", ErrNotAuthenticated, Notice{
			Kind: NoticeNotAuthenticated, Title: "Not authenticated",
			Message: "You need to be signed in to analyze content.",
		})
	}
	span.SetAttributes(attribute.String("user.id", sess.ID()))

	usage := sess.Usage()
	if !quota.CanProceed(usage) {
		return reject("quota", ErrQuotaExceeded, Notice{
			Kind: NoticeQuotaExceeded, Title: "Limit reached",
			Message: fmt.Sprintf("You have reached your limit of %d analyses for this month.", usage.UsageLimit),
		})
	}
	if !s.busy.CompareAndSwap(false, true) {
		return reject("in_progress", ErrAnalysisInProgress, Notice{
			Kind: NoticeInProgress, Title: "Analysis in progress",
			Message: "Wait for the current analysis to finish.",
		})
	}
	defer s.busy.Store(false)

	start := s.Now()
	if ok, wait := s.Limiter.CheckAndRecord(start); !ok {
		return reject("rate_limited", ErrRateLimited, Notice{
			Kind: NoticeRateLimited, Title: "Please wait",
			Message: fmt.Sprintf("Wait %s before submitting another analysis.", wait.Round(time.Millisecond)),
		})
	}

	s.setLastError("")
	ctx = context.WithoutCancel(ctx)
	log := s.Log.With().Str("user_id", sess.ID()).Int("text_runes", utf8.RuneCountInString(text)).Logger()

	resp, err := s.Retry.Do(ctx, func(ctx context.Context) (transport.RawResponse, error) {
		r, err := s.Transport.Send(ctx, text)
		transportAttempts.WithLabelValues(attemptOutcome(err)).Inc()
		return r, err
	}, func(e retry.Event) {
		if e.State != retry.BackingOff {
			return
		}
		log.Warn().Err(e.Err).Int("attempt", e.Attempt).Dur("delay", e.Delay).Msg("analysis attempt failed, retrying")
		n.Notify(Notice{
			Kind: NoticeRetryAttempt, Title: "Retrying",
			Message: fmt.Sprintf("Connection problem, retrying (attempt %d/%d).", e.Attempt+1, e.Total),
			Attempt: e.Attempt + 1, Total: e.Total,
		})
	})

	var result domain.AnalysisResult
	switch {
	case err == nil:
		result = s.fromResponse(text, resp)
	case errors.Is(err, retry.ErrExhausted):
		log.Warn().Err(err).Msg("analysis endpoint unreachable, using offline classifier")
		result = s.Fallback.Classify(text)
		n.Notify(Notice{
			Kind: NoticeConnectionProblem, Title: "Connection problem",
			Message: "The analysis service is unreachable. Results were produced in offline mode with reduced accuracy.",
		})
	default:
		msg := err.Error()
		var te *transport.Error
		if errors.As(err, &te) {
			msg = te.Message
		}
		s.setLastError(msg)
		log.Error().Err(err).Msg("analysis failed")
		span.RecordError(err)
		span.SetStatus(codes.Error, msg)
		return reject("terminal", fmt.Errorf("%w: %w", ErrAnalysisFailed, err), Notice{
			Kind: NoticeAnalysisFailed, Title: "Analysis failed", Message: msg,
		})
	}

	s.History.Append(result)
	_ = s.History.Select(&result)

	if werr := sess.SetUsageCount(ctx, usage.UsageCount+1); werr != nil {
		log.Error().Err(werr).Int("usage_count", usage.UsageCount+1).Msg("usage write-back failed")
	}

	analysisResults.WithLabelValues(result.Source()).Inc()
	span.SetAttributes(
		attribute.String("analysis.id", result.ID),
		attribute.String("analysis.source", result.Source()),
		attribute.Bool("analysis.flagged", result.Flagged),
	)
	if !result.Offline() {
		n.Notify(Notice{
			Kind: NoticeAnalysisComplete, Title: "Analysis complete",
			Message: "Your content was analyzed successfully.",
		})
	}
	log.Info().Str("analysis_id", result.ID).Bool("flagged", result.Flagged).Msg("analysis complete")
	return &result, nil
}

// fromResponse applies defaults for fields the endpoint omitted.
func (s *AnalysisService) fromResponse(text string, r transport.RawResponse) domain.AnalysisResult {
	out := domain.AnalysisResult{
		ID:         domain.OnlinePrefix + s.NewID(),
		Text:       domain.TruncateText(text),
		Categories: []string{},
		Insights:   []string{domain.NoIssuesInsight},
		Timestamp:  s.Now().UTC(),
	}
	if r.Flagged != nil {
		out.Flagged = *r.Flagged
	}
	if r.Categories != nil {
		out.Categories = append([]string{}, r.Categories...)
	}
	if len(r.Insights) > 0 {
		out.Insights = append([]string(nil), r.Insights...)
	}
	return out
}

func attemptOutcome(err error) string {
	if err == nil {
		return "success"
	}
	if k := transport.KindOf(err); k != 0 {
		return k.String()
	}
	return "error"
}
