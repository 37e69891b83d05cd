package handlers

import (
	"net/http"
	"strconv"
)

type ListResponse[T any] struct {
	Items []T `json:"items"`
	Limit int `json:"limit"`
}

// ParseLimit reads the limit query parameter, falling back to def when absent or invalid and
// capping at max.
func ParseLimit(r *http.Request, def, max int) int {
	limit := def
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > max {
		limit = max
	}
	return limit
}
