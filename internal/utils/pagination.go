// Package utils provides small helpers shared by the HTTP layer.
package utils

import "strconv"

// AtoiDefault parses s as an int, returning def when s is empty or invalid.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// Window is the slice of a result list covered by one page.
type Window struct {
	Start, End int
	TotalPages int
	HasNext    bool
}

// PageWindow returns the [Start, End) bounds of page (1-based) over total
// items. Pages past the end yield an empty window.
func PageWindow(total, page, pageSize int) Window {
	if pageSize < 1 {
		pageSize = 1
	}
	page = max(page, 1)
	start := min(total, (page-1)*pageSize)
	pages := (total + pageSize - 1) / pageSize
	return Window{
		Start:      start,
		End:        min(total, start+pageSize),
		TotalPages: pages,
		HasNext:    page < pages,
	}
}
