package shared

import "math"

const defaultPerPage = 20

// Pagination contains metadata for paginated listings.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// PageRequest clamps raw page/per_page query values into a usable request.
// The total fields stay zero until the repository reports the row count.
func PageRequest(page, perPage int) Pagination {
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 || perPage > 100 {
		perPage = defaultPerPage
	}
	return Pagination{Page: page, PerPage: perPage}
}

// NewPagination computes pagination metadata for a known total.
func NewPagination(page, perPage, total int) Pagination {
	p := PageRequest(page, perPage)
	p.Total = total
	p.TotalPages = int(math.Ceil(float64(total) / float64(p.PerPage)))
	return p
}
