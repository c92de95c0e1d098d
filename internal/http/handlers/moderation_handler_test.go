package handlers

import (
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-content-review/internal/transport"
)

func moderationRouter(a Analyzer) *gin.Engine {
	var opts []Option
	if a != nil {
		opts = append(opts, WithAnalyzer(a))
	}
	hd := New(nil, nil, opts...)
	r := gin.New()
	r.POST("/moderate", hd.Moderate)
	return r
}

func TestModerate(t *testing.T) {
	flagged := true
	tests := []struct {
		name       string
		analyzer   Analyzer
		body       any
		wantStatus int
		wantMsg    string
	}{
		{"not configured", nil, transport.Request{Text: "x"}, http.StatusServiceUnavailable, "moderation is not configured"},
		{"blank text", fakeAnalyzer{}, transport.Request{Text: "  "}, http.StatusBadRequest, "text is required"},
		{"bad json", fakeAnalyzer{}, "{", http.StatusBadRequest, "text is required"},
		{"upstream error", fakeAnalyzer{err: errors.New("quota")}, transport.Request{Text: "x"}, http.StatusBadGateway, "moderation failed: quota"},
		{"ok", fakeAnalyzer{resp: transport.RawResponse{Flagged: &flagged, Categories: []string{"violence"}}}, transport.Request{Text: "x"}, http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, moderationRouter(tt.analyzer), http.MethodPost, "/moderate", "", tt.body)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				if got := decode[messageBody](t, w).Message; got != tt.wantMsg {
					t.Fatalf("message = %q, want %q", got, tt.wantMsg)
				}
				return
			}
			resp := decode[ModerateResponse](t, w)
			if !resp.Flagged || len(resp.Categories) != 1 || resp.Insights == nil {
				t.Fatalf("resp = %+v", resp)
			}
		})
	}
}

// The /moderate body is exactly what transport.Client decodes.
func TestModerate_RoundTripsThroughClient(t *testing.T) {
	flagged := false
	r := moderationRouter(fakeAnalyzer{resp: transport.RawResponse{Flagged: &flagged, Insights: []string{"Neutral."}}})
	w := do(t, r, http.MethodPost, "/moderate", "", transport.Request{Text: "hello"})
	raw := decode[transport.RawResponse](t, w)
	if raw.Flagged == nil || *raw.Flagged || len(raw.Insights) != 1 {
		t.Fatalf("raw = %+v", raw)
	}
}
