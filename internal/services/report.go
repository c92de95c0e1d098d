package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/tbourn/go-content-review/internal/domain"
)

// RenderReport formats r as a plain-text report, one field per line.
func RenderReport(r domain.AnalysisResult, now time.Time) string {
	var b strings.Builder
	b.WriteString("CONTENT ANALYSIS REPORT\n")
	fmt.Fprintf(&b, "Generated: %s\n", now.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Analysis ID: %s\n", r.ID)
	fmt.Fprintf(&b, "Analyzed at: %s\n", r.Timestamp.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Source: %s\n", r.Source())
	fmt.Fprintf(&b, "Text: %s\n", r.Text)
	status := "Not flagged"
	if r.Flagged {
		status = "Flagged"
	}
	fmt.Fprintf(&b, "Status: %s\n", status)
	cats := "none"
	if len(r.Categories) > 0 {
		cats = strings.Join(r.Categories, ", ")
	}
	fmt.Fprintf(&b, "Categories: %s\n", cats)
	b.WriteString("Insights:\n")
	for _, in := range r.Insights {
		fmt.Fprintf(&b, "- %s\n", in)
	}
	return b.String()
}

// ReportFilename is the download name for the report of analysis id.
func ReportFilename(id string) string {
	return "report-" + id + ".txt"
}

// ExportReport renders the report for a result in us's history. Only pro
// sessions may export.
func ExportReport(us *UserSession, id string, now time.Time) (string, error) {
	if us == nil {
		return "", ErrNotAuthenticated
	}
	if !us.Session.User().Plan.CanExportReports() {
		return "", ErrReportRequiresPro
	}
	r, err := us.Analysis.History.Get(id)
	if err != nil {
		return "", err
	}
	return RenderReport(r, now), nil
}
