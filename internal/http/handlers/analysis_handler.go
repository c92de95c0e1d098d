// Analysis HTTP handlers.
//
// This file exposes the pipeline and the session history:
//   - POST /analyze               (run an analysis, optional Idempotency-Key)
//   - GET  /analyses              (history newest-first, paginated, ETag)
//   - GET  /analyses/selected     (current selection)
//   - PUT  /analyses/selected     (select by id, or clear with null)
//   - GET  /analyses/{id}/report  (plain-text report, pro only)
//
// Idempotency:
// If the client supplies an Idempotency-Key and a result is stored for
// (user, key), the handler returns it with `Idempotency-Replayed: true`
// without running the pipeline or consuming quota.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-content-review/internal/domain"
	"github.com/tbourn/go-content-review/internal/history"
	"github.com/tbourn/go-content-review/internal/http/middleware"
	"github.com/tbourn/go-content-review/internal/services"
	"github.com/tbourn/go-content-review/internal/session"
	"github.com/tbourn/go-content-review/internal/utils"
)

//
// DTOs
//

// AnalyzeRequest is the JSON payload for POST /analyze.
type AnalyzeRequest struct {
	Text string `json:"text"`
}

// AnalyzeResponse carries the new result, the caller's usage afterwards and
// the notices emitted by the pipeline.
type AnalyzeResponse struct {
	Result  *domain.AnalysisResult `json:"result"`
	Usage   services.UsageSummary  `json:"usage"`
	Notices []services.Notice      `json:"notices"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int  `json:"page"`
	PageSize   int  `json:"page_size"`
	Total      int  `json:"total"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
}

// ListAnalysesResponse is a page of the session history.
type ListAnalysesResponse struct {
	Analyses   []domain.AnalysisResult `json:"analyses"`
	SelectedID string                  `json:"selected_id,omitempty"`
	Pagination Pagination              `json:"pagination"`
}

// SelectedResponse wraps the current selection; Selected is null when none.
type SelectedResponse struct {
	Selected *domain.AnalysisResult `json:"selected"`
}

// SelectRequest selects a result by id; a null id clears the selection.
type SelectRequest struct {
	ID *string `json:"id"`
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params.
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = max(1, utils.AtoiDefault(c.Query("page"), defaultPage))
	pageSize = min(maxPageSize, max(1, utils.AtoiDefault(c.Query("page_size"), defaultPageSize)))
	return
}

// analysisStatus maps pipeline rejections to (status, code).
func analysisStatus(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrEmptyText):
		return http.StatusBadRequest, ErrCodeValidation
	case errors.Is(err, services.ErrNotAuthenticated):
		return http.StatusUnauthorized, ErrCodeUnauthorized
	case errors.Is(err, services.ErrQuotaExceeded):
		return http.StatusPaymentRequired, ErrCodeQuotaExceeded
	case errors.Is(err, services.ErrRateLimited):
		return http.StatusTooManyRequests, ErrCodePleaseWait
	case errors.Is(err, services.ErrAnalysisInProgress):
		return http.StatusConflict, ErrCodeInProgress
	case errors.Is(err, services.ErrAnalysisFailed):
		return http.StatusBadGateway, ErrCodeAnalysisFail
	default:
		return http.StatusInternalServerError, ErrCodeInternal
	}
}

// replay returns the result stored for (user, key), if any.
func (h *Handlers) replay(c *gin.Context, userID, key string) (*domain.AnalysisResult, bool) {
	if h.idem == nil || key == "" {
		return nil, false
	}
	rec, err := h.idem.Get(c.Request.Context(), userID, key, h.now().UTC())
	if err != nil || rec == nil {
		return nil, false
	}
	var r domain.AnalysisResult
	if err := json.Unmarshal([]byte(rec.Result), &r); err != nil {
		middleware.LoggerFrom(c).Warn().Err(err).Str("analysis_id", rec.AnalysisID).Msg("undecodable idempotency record")
		return nil, false
	}
	return &r, true
}

// remember stores r under (user, key); failures are logged only.
func (h *Handlers) remember(c *gin.Context, userID, key string, r *domain.AnalysisResult) {
	if h.idem == nil || key == "" {
		return
	}
	b, err := json.Marshal(r)
	if err == nil {
		err = h.idem.Save(c.Request.Context(), userID, key, r.ID, string(b), h.idemTTL)
	}
	if err != nil {
		middleware.LoggerFrom(c).Warn().Err(err).Str("analysis_id", r.ID).Msg("idempotency store failed")
	}
}

//
// Handlers
//

// Analyze runs the pipeline for the submitted text.
func (h *Handlers) Analyze(c *gin.Context) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	us, err := h.session(c)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}

	svc := h.guest
	var sess *session.Session
	if us != nil {
		svc, sess = us.Analysis, us.Session
	}

	idemKey, _ := middleware.GetIdempotencyKey(c)
	if sess != nil {
		if prev, found := h.replay(c, sess.ID(), idemKey); found {
			c.Header(middleware.HeaderIdempotencyReplayed, "true")
			ok(c, http.StatusOK, AnalyzeResponse{
				Result:  prev,
				Usage:   services.Summarize(sess.Usage()),
				Notices: []services.Notice{},
			})
			return
		}
	}

	var col services.Collector
	res, err := svc.Analyze(c.Request.Context(), sess, req.Text, &col)
	if err != nil {
		status, code := analysisStatus(err)
		failWithNotices(c, status, code, err.Error(), col.Notices())
		return
	}

	// A result implies an authenticated session.
	h.remember(c, sess.ID(), idemKey, res)
	ok(c, http.StatusOK, AnalyzeResponse{
		Result:  res,
		Usage:   services.Summarize(sess.Usage()),
		Notices: col.Notices(),
	})
}

// ListAnalyses returns a page of the caller's history, newest first. The weak
// ETag changes whenever a result is added or the selection moves.
func (h *Handlers) ListAnalyses(c *gin.Context) {
	us := h.requireSession(c)
	if us == nil {
		return
	}
	store := us.Analysis.History
	items := store.List()

	var newest, selected string
	if len(items) > 0 {
		newest = items[0].ID
	}
	if r, found := store.Selected(); found {
		selected = r.ID
	}
	etag := fmt.Sprintf(`W/"analyses:%s:%d:%s:%s"`, us.Session.ID(), len(items), newest, selected)
	c.Header("ETag", etag)
	if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
		c.Status(http.StatusNotModified)
		return
	}

	page, pageSize := clampPagination(c)
	w := utils.PageWindow(len(items), page, pageSize)

	ok(c, http.StatusOK, ListAnalysesResponse{
		Analyses:   items[w.Start:w.End],
		SelectedID: selected,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      len(items),
			TotalPages: w.TotalPages,
			HasNext:    w.HasNext,
		},
	})
}

// GetSelected returns the selected result or null.
func (h *Handlers) GetSelected(c *gin.Context) {
	us := h.requireSession(c)
	if us == nil {
		return
	}
	var resp SelectedResponse
	if r, found := us.Analysis.History.Selected(); found {
		resp.Selected = &r
	}
	ok(c, http.StatusOK, resp)
}

// PutSelected selects a history entry by id, or clears the selection.
func (h *Handlers) PutSelected(c *gin.Context) {
	us := h.requireSession(c)
	if us == nil {
		return
	}
	var req SelectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	id := ""
	if req.ID != nil {
		id = *req.ID
		if id == "" {
			fail(c, http.StatusBadRequest, ErrCodeValidation, "id must be non-empty or null")
			return
		}
	}
	if err := us.Analysis.History.SelectID(id); err != nil {
		if errors.Is(err, history.ErrNotInHistory) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "analysis not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	h.GetSelected(c)
}

// Report downloads the plain-text report for one result.
func (h *Handlers) Report(c *gin.Context) {
	us := h.requireSession(c)
	if us == nil {
		return
	}
	id := c.Param("id")
	body, err := services.ExportReport(us, id, h.now())
	switch {
	case errors.Is(err, services.ErrReportRequiresPro):
		fail(c, http.StatusForbidden, ErrCodeForbidden, err.Error())
		return
	case errors.Is(err, history.ErrNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "analysis not found")
		return
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	c.Header("Content-Disposition", `attachment; filename=`+strconv.Quote(services.ReportFilename(id)))
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(body))
}
