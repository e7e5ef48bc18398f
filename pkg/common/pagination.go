package common

import (
	"net/http"
	"strconv"
)

// PaginationInfo describes the window a list response covers.
type PaginationInfo struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Total  int `json:"total"`
}

// ListParams are the limit/offset parameters list endpoints accept.
type ListParams struct {
	Limit  int
	Offset int
}

// ExtractListParams reads limit/offset query parameters, clamped to
// [1, maxLimit] with defaultLimit when absent.
func ExtractListParams(r *http.Request, defaultLimit, maxLimit int) ListParams {
	params := ListParams{Limit: defaultLimit}

	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			if v > maxLimit {
				v = maxLimit
			}
			params.Limit = v
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v >= 0 {
			params.Offset = v
		}
	}
	return params
}

// BuildPagination builds the pagination block for a list response.
func BuildPagination(params ListParams, total int) *PaginationInfo {
	return &PaginationInfo{Limit: params.Limit, Offset: params.Offset, Total: total}
}
