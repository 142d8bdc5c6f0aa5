package pagination

import (
	"net/url"
	"strconv"
)

// Request is a normalized page request. Page is 1-based.
type Request struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

// FromQuery reads page and page_size from values, clamping them to cfg.
// Missing or malformed values fall back to the first page at the default size.
func FromQuery(values url.Values, cfg Config) Request {
	page, _ := strconv.Atoi(values.Get("page"))
	size, _ := strconv.Atoi(values.Get("page_size"))

	req := Request{Page: page, PageSize: size}
	req.Normalize(cfg)
	return req
}

// Normalize clamps the request into the bounds cfg allows.
func (r *Request) Normalize(cfg Config) {
	if r.Page < 1 {
		r.Page = 1
	}
	if r.PageSize < 1 {
		r.PageSize = cfg.DefaultPageSize
	}
	if r.PageSize > cfg.MaxPageSize {
		r.PageSize = cfg.MaxPageSize
	}
}

// Offset is the number of items preceding the requested page.
func (r Request) Offset() int {
	return (r.Page - 1) * r.PageSize
}

// Page is one page of a listing plus the totals needed to fetch the rest.
type Page[T any] struct {
	Data       []T `json:"data"`
	Total      int `json:"total"`
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalPages int `json:"total_pages"`
}

// Slice cuts the requested page out of an already ordered listing.
// Pages past the end are empty rather than an error.
func Slice[T any](items []T, req Request) Page[T] {
	req.Page = max(req.Page, 1)
	req.PageSize = max(req.PageSize, 1)

	total := len(items)
	start := min(req.Offset(), total)
	end := min(start+req.PageSize, total)

	data := make([]T, end-start)
	copy(data, items[start:end])

	pages := (total + req.PageSize - 1) / req.PageSize
	if pages < 1 {
		pages = 1
	}

	return Page[T]{
		Data:       data,
		Total:      total,
		Page:       req.Page,
		PageSize:   req.PageSize,
		TotalPages: pages,
	}
}
