// Package pagination provides request/response types and slicing helpers
// for paginated list endpoints. The document store returns whole
// sub-collections, so pagination happens in memory after filtering.
package pagination

import "math"

// PageRequest holds pagination parameters parsed from query strings.
type PageRequest struct {
	Page     int `form:"page" binding:"omitempty,min=1"`
	PageSize int `form:"page_size" binding:"omitempty,min=1,max=100"`
}

// Defaults fills in default values when page or page_size are not provided.
func (p *PageRequest) Defaults() {
	if p.Page == 0 {
		p.Page = 1
	}
	if p.PageSize == 0 {
		p.PageSize = 20
	}
}

// PageResponse wraps a paginated list of items with metadata.
type PageResponse[T any] struct {
	Data       []T   `json:"data"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalItems int64 `json:"total_items"`
	TotalPages int   `json:"total_pages"`
}

// NewPageResponse slices items down to the requested page and wraps it with
// metadata. An out-of-range page yields an empty data slice.
func NewPageResponse[T any](items []T, page PageRequest) PageResponse[T] {
	page.Defaults()

	totalItems := int64(len(items))
	totalPages := int(math.Ceil(float64(totalItems) / float64(page.PageSize)))

	start := (page.Page - 1) * page.PageSize
	if start > len(items) {
		start = len(items)
	}
	end := start + page.PageSize
	if end > len(items) {
		end = len(items)
	}

	data := items[start:end]
	if data == nil {
		data = []T{}
	}
	return PageResponse[T]{
		Data:       data,
		Page:       page.Page,
		PageSize:   page.PageSize,
		TotalItems: totalItems,
		TotalPages: totalPages,
	}
}
