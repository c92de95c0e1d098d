// Account HTTP handlers.
//
// This file exposes account endpoints:
//   - POST   /users     (register a free account)
//   - GET    /me        (identity, plan and usage summary)
//   - PUT    /me/plan   (switch plan; the usage count is kept)
//   - DELETE /session   (end the session and drop its history)
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-content-review/internal/domain"
	"github.com/tbourn/go-content-review/internal/http/middleware"
	"github.com/tbourn/go-content-review/internal/services"
)

//
// DTOs
//

// RegisterRequest is the JSON payload for POST /users.
type RegisterRequest struct {
	Email string `json:"email" binding:"required"`
}

// ChangePlanRequest is the JSON payload for PUT /me/plan.
type ChangePlanRequest struct {
	Plan string `json:"plan" binding:"required"`
}

// MeResponse describes the caller.
type MeResponse struct {
	User             domain.User           `json:"user"`
	PlanName         string                `json:"plan_name"`
	CanExportReports bool                  `json:"can_export_reports"`
	Usage            services.UsageSummary `json:"usage"`
	InProgress       bool                  `json:"in_progress"`
	LastError        string                `json:"last_error,omitempty"`
}

// ChangePlanResponse is MeResponse plus the notices of the change.
type ChangePlanResponse struct {
	MeResponse
	Notices []services.Notice `json:"notices"`
}

func me(us *services.UserSession) MeResponse {
	u := us.Session.User()
	return MeResponse{
		User:             u,
		PlanName:         services.PlanName(u.Plan),
		CanExportReports: u.Plan.CanExportReports(),
		Usage:            services.Summarize(u.Usage()),
		InProgress:       us.Analysis.InProgress(),
		LastError:        us.Analysis.LastError(),
	}
}

//
// Handlers
//

// Register creates a free account.
func (h *Handlers) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "email required")
		return
	}
	u, err := h.accounts.Register(c.Request.Context(), req.Email)
	switch {
	case errors.Is(err, services.ErrInvalidEmail):
		fail(c, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	case errors.Is(err, services.ErrEmailTaken):
		fail(c, http.StatusConflict, ErrCodeEmailTaken, err.Error())
		return
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusCreated, u)
}

// Me returns the caller's identity and usage.
func (h *Handlers) Me(c *gin.Context) {
	us := h.requireSession(c)
	if us == nil {
		return
	}
	ok(c, http.StatusOK, me(us))
}

// ChangePlan switches the caller's plan.
func (h *Handlers) ChangePlan(c *gin.Context) {
	us := h.requireSession(c)
	if us == nil {
		return
	}
	var req ChangePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "plan required")
		return
	}

	var col services.Collector
	err := h.accounts.ChangePlan(c.Request.Context(), us, strings.TrimSpace(req.Plan), &col)
	switch {
	case errors.Is(err, services.ErrUnknownPlan):
		fail(c, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	case errors.Is(err, services.ErrSamePlan):
		failWithNotices(c, http.StatusConflict, ErrCodeSamePlan, err.Error(), col.Notices())
		return
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, ChangePlanResponse{MeResponse: me(us), Notices: col.Notices()})
}

// Logout ends the caller's session. Repeated calls succeed.
func (h *Handlers) Logout(c *gin.Context) {
	uid := middleware.UserID(c)
	if uid == "" {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, services.ErrNotAuthenticated.Error())
		return
	}
	if h.accounts.Logout(uid) {
		middleware.LoggerFrom(c).Info().Msg("session ended")
	}
	noContent(c)
}
