// Moderation HTTP handler.
//
// POST /moderate is the remote analysis endpoint the pipeline calls by
// default. Its body contract is shared with transport.Client: request
// {"text": "..."}, response {"flagged", "categories", "insights"}, and
// errors as {"message": "..."} so the client can surface them verbatim.
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-content-review/internal/http/middleware"
	"github.com/tbourn/go-content-review/internal/transport"
)

type messageBody struct {
	Message string `json:"message"`
}

// ModerateResponse always carries all three fields.
type ModerateResponse struct {
	Flagged    bool     `json:"flagged"`
	Categories []string `json:"categories"`
	Insights   []string `json:"insights"`
}

// Moderate analyzes text with the configured upstream analyzer.
func (h *Handlers) Moderate(c *gin.Context) {
	if h.analyzer == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, messageBody{Message: "moderation is not configured"})
		return
	}
	var req transport.Request
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, messageBody{Message: "text is required"})
		return
	}
	resp, err := h.analyzer.Analyze(c.Request.Context(), req.Text)
	if err != nil {
		middleware.LoggerFrom(c).Error().Err(err).Msg("upstream moderation failed")
		c.AbortWithStatusJSON(http.StatusBadGateway, messageBody{Message: "moderation failed: " + err.Error()})
		return
	}
	out := ModerateResponse{Categories: resp.Categories, Insights: resp.Insights}
	if resp.Flagged != nil {
		out.Flagged = *resp.Flagged
	}
	if out.Categories == nil {
		out.Categories = []string{}
	}
	if out.Insights == nil {
		out.Insights = []string{}
	}
	ok(c, http.StatusOK, out)
}
