package handlers

import (
	"net/http"
	"testing"

	"github.com/tbourn/go-content-review/internal/domain"
	"github.com/tbourn/go-content-review/internal/services"
)

func TestRegister(t *testing.T) {
	h := newHarness(t)

	w := do(t, h.r, http.MethodPost, "/users", "", RegisterRequest{Email: "  New.User@Example.com "})
	if w.Code != http.StatusCreated {
		t.Fatalf("register = %d %s", w.Code, w.Body.String())
	}
	u := decode[domain.User](t, w)
	if u.ID == "" || u.Plan != domain.PlanFree || u.UsageCount != 0 || u.UsageLimit != domain.DefaultFreeLimit {
		t.Fatalf("user = %+v", u)
	}

	// The new id works as an identity right away.
	if w := do(t, h.r, http.MethodGet, "/me", u.ID, nil); w.Code != http.StatusOK {
		t.Fatalf("me for new user = %d", w.Code)
	}

	tests := []struct {
		name       string
		body       any
		wantStatus int
		wantCode   string
	}{
		{"duplicate", RegisterRequest{Email: "demo@contentreview.ai"}, http.StatusConflict, ErrCodeEmailTaken},
		{"invalid", RegisterRequest{Email: "not-an-email"}, http.StatusBadRequest, ErrCodeValidation},
		{"missing", map[string]string{}, http.StatusBadRequest, ErrCodeBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h.r, http.MethodPost, "/users", "", tt.body)
			if w.Code != tt.wantStatus || decode[ErrorResponse](t, w).Code != tt.wantCode {
				t.Fatalf("got %d %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestMe(t *testing.T) {
	h := newHarness(t)

	if w := do(t, h.r, http.MethodGet, "/me", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous = %d", w.Code)
	}
	me := decode[MeResponse](t, do(t, h.r, http.MethodGet, "/me", proUser, nil))
	if me.User.ID != proUser || me.PlanName != "Pro" || !me.CanExportReports {
		t.Fatalf("me = %+v", me)
	}
	if me.Usage.Count != 356 || me.Usage.Remaining != 644 || me.Usage.Level != services.UsageOK || me.InProgress {
		t.Fatalf("usage = %+v", me.Usage)
	}

	full := decode[MeResponse](t, do(t, h.r, http.MethodGet, "/me", fullUser, nil))
	if full.Usage.Percent != 100 || full.Usage.Level != services.UsageCritical || !full.Usage.NearLimit {
		t.Fatalf("full usage = %+v", full.Usage)
	}
}

func TestChangePlan(t *testing.T) {
	h := newHarness(t)

	w := do(t, h.r, http.MethodPut, "/me/plan", freeUser, ChangePlanRequest{Plan: "pro"})
	if w.Code != http.StatusOK {
		t.Fatalf("upgrade = %d %s", w.Code, w.Body.String())
	}
	resp := decode[ChangePlanResponse](t, w)
	if resp.User.Plan != domain.PlanPro || resp.Usage.Limit != domain.DefaultProLimit || resp.Usage.Count != 45 {
		t.Fatalf("after upgrade = %+v", resp.MeResponse)
	}
	if !hasKind(resp.Notices, services.NoticePlanChanged) {
		t.Fatalf("notices = %+v", resp.Notices)
	}
	if got := h.users.users[freeUser]; got.Plan != domain.PlanPro || got.UsageLimit != domain.DefaultProLimit {
		t.Fatalf("persisted = %+v", got)
	}

	w = do(t, h.r, http.MethodPut, "/me/plan", freeUser, ChangePlanRequest{Plan: "pro"})
	same := decode[ErrorResponse](t, w)
	if w.Code != http.StatusConflict || same.Code != ErrCodeSamePlan || !hasKind(same.Notices, services.NoticeCurrentPlan) {
		t.Fatalf("same plan = %d %+v", w.Code, same)
	}

	if w := do(t, h.r, http.MethodPut, "/me/plan", freeUser, ChangePlanRequest{Plan: "enterprise"}); w.Code != http.StatusBadRequest {
		t.Fatalf("unknown plan = %d", w.Code)
	}
	if w := do(t, h.r, http.MethodPut, "/me/plan", "", ChangePlanRequest{Plan: "pro"}); w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous = %d", w.Code)
	}
}

func TestLogout_ClearsHistory(t *testing.T) {
	h := newHarness(t)
	do(t, h.r, http.MethodPost, "/analyze", freeUser, AnalyzeRequest{Text: "hello"})

	if w := do(t, h.r, http.MethodDelete, "/session", freeUser, nil); w.Code != http.StatusNoContent {
		t.Fatalf("logout = %d", w.Code)
	}
	if w := do(t, h.r, http.MethodDelete, "/session", freeUser, nil); w.Code != http.StatusNoContent {
		t.Fatalf("repeat logout = %d", w.Code)
	}
	if w := do(t, h.r, http.MethodDelete, "/session", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous logout = %d", w.Code)
	}

	list := decode[ListAnalysesResponse](t, do(t, h.r, http.MethodGet, "/analyses", freeUser, nil))
	if len(list.Analyses) != 0 {
		t.Fatalf("history survived logout: %+v", list.Analyses)
	}
	me := decode[MeResponse](t, do(t, h.r, http.MethodGet, "/me", freeUser, nil))
	if me.Usage.Count != 46 {
		t.Fatalf("usage must persist across sessions, got %+v", me.Usage)
	}
}
