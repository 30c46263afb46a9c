package shared

import (
	"math"
	"time"
)

const (
	defaultPerPage = 20
	maxPerPage     = 200
)

// Pagination contains metadata for paginated listings.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// NewPagination computes pagination metadata, clamping page size to a sane range.
func NewPagination(page, perPage, total int) Pagination {
	if perPage <= 0 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	if page <= 0 {
		page = 1
	}
	totalPages := int(math.Ceil(float64(total) / float64(perPage)))
	return Pagination{Page: page, PerPage: perPage, Total: total, TotalPages: totalPages}
}

// Offset is the number of rows to skip for the current page.
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// Page sizes for id-ordered ledger listings.
const (
	DefaultListLimit = 200
	MaxListLimit     = 1000
)

// ListFilter narrows an id-ordered ledger listing. Zero fields leave that bound open.
type ListFilter struct {
	ProductID int64
	From      time.Time
	To        time.Time
	// AfterID resumes a listing after the last id of the previous page.
	AfterID int64
	Limit   int
}

// Normalize validates the filter and clamps Limit into [1, MaxListLimit].
func (f ListFilter) Normalize() (ListFilter, error) {
	switch {
	case f.ProductID < 0:
		return f, NewValidationError("product_id", "must be a positive integer")
	case f.AfterID < 0:
		return f, NewValidationError("after_id", "must not be negative")
	case !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From):
		return f, NewValidationError("to", "end of range is before its start")
	}
	switch {
	case f.Limit <= 0:
		f.Limit = DefaultListLimit
	case f.Limit > MaxListLimit:
		f.Limit = MaxListLimit
	}
	return f, nil
}

// LookAhead returns a copy of f asking the store for one row beyond the page so
// NewKeysetPage can tell whether another page exists.
func (f ListFilter) LookAhead() ListFilter {
	f.Limit++
	return f
}

// KeysetPage is one page of an id-ordered listing. NextAfterID is zero on the last page.
type KeysetPage[T any] struct {
	Items       []T   `json:"items"`
	NextAfterID int64 `json:"next_after_id,omitempty"`
}

// NewKeysetPage trims rows fetched with ListFilter.LookAhead to limit and sets the cursor.
func NewKeysetPage[T any](rows []T, limit int, id func(T) int64) KeysetPage[T] {
	page := KeysetPage[T]{Items: rows}
	if limit > 0 && len(rows) > limit {
		page.Items = rows[:limit]
		page.NextAfterID = id(rows[limit-1])
	}
	if page.Items == nil {
		page.Items = []T{}
	}
	return page
}
