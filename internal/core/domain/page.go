package domain

import "math"

const (
	DefaultPageSize = 12
	MaxPageSize     = 100
)

// Window normalises a 1-based page and a page size into offset and limit.
// Pages past the addressable range are clamped so offset+limit never
// overflows.
func Window(page, limit int) (offset, size int) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if page < 1 {
		page = 1
	}
	if maxPage := math.MaxInt / limit; page > maxPage {
		page = maxPage
	}
	return (page - 1) * limit, limit
}
