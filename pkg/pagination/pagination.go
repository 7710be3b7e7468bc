package pagination

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 50
	MaxLimit     = 100
)

// Params holds pagination parameters extracted from a request.
type Params struct {
	Limit  int
	Offset int
}

// FromContext reads limit and offset from the query string. startIndex is
// accepted as an alias for offset.
func FromContext(c echo.Context) Params {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	if offset <= 0 {
		offset, _ = strconv.Atoi(c.QueryParam("startIndex"))
	}
	if offset < 0 {
		offset = 0
	}

	return Params{Limit: limit, Offset: offset}
}

// Response is the envelope of every list endpoint. NextOffset is set
// while more rows remain.
type Response struct {
	Data       any  `json:"data"`
	Total      int  `json:"total"`
	Limit      int  `json:"limit"`
	Offset     int  `json:"offset"`
	HasMore    bool `json:"has_more"`
	NextOffset *int `json:"next_offset,omitempty"`
}

func NewResponse(data any, total, limit, offset int) *Response {
	r := &Response{
		Data:   data,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	}
	if next := offset + limit; next < total {
		r.HasMore = true
		r.NextOffset = &next
	}
	return r
}

// Page slices an already loaded result set and wraps it.
func Page[T any](items []T, p Params) *Response {
	total := len(items)
	if p.Offset >= total {
		return NewResponse([]T{}, total, p.Limit, p.Offset)
	}
	end := p.Offset + p.Limit
	if end > total {
		end = total
	}
	return NewResponse(items[p.Offset:end], total, p.Limit, p.Offset)
}
