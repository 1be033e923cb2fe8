package pagination

import (
	"net/url"
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Params holds pagination parameters extracted from a request.
type Params struct {
	Limit  int
	Offset int
}

// FromContext extracts limit/offset pagination parameters from the echo context.
// page_size is accepted as an alias for limit.
func FromContext(c echo.Context) Params {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 {
		limit, _ = strconv.Atoi(c.QueryParam("page_size"))
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	if offset < 0 {
		offset = 0
	}

	return Params{Limit: limit, Offset: offset}
}

// Response is the list envelope returned by every collection endpoint.
type Response struct {
	Count    int         `json:"count"`
	Next     *string     `json:"next"`
	Previous *string     `json:"previous"`
	Results  interface{} `json:"results"`
}

// NewResponse builds the envelope. requestURL is the URL of the current request;
// its query string is preserved in the next/previous links.
func NewResponse(results interface{}, total int, p Params, requestURL *url.URL) *Response {
	resp := &Response{
		Count:   total,
		Results: results,
	}
	if requestURL == nil {
		return resp
	}
	if p.HasNext(total) {
		next := pageURL(requestURL, p.Limit, p.NextOffset())
		resp.Next = &next
	}
	if p.HasPrevious() {
		prev := pageURL(requestURL, p.Limit, p.PreviousOffset())
		resp.Previous = &prev
	}
	return resp
}

// Respond writes the paginated envelope for the current request.
func Respond(c echo.Context, results interface{}, total int, p Params) error {
	return c.JSON(200, NewResponse(results, total, p, c.Request().URL))
}

func pageURL(u *url.URL, limit, offset int) string {
	cp := *u
	q := cp.Query()
	q.Set("limit", strconv.Itoa(limit))
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	} else {
		q.Del("offset")
	}
	cp.RawQuery = q.Encode()
	return cp.RequestURI()
}

// HasNext returns true if there are more results after the current page.
func (p Params) HasNext(total int) bool {
	return p.Offset+p.Limit < total
}

// HasPrevious returns true if there are results before the current page.
func (p Params) HasPrevious() bool {
	return p.Offset > 0
}

// NextOffset returns the offset for the next page.
func (p Params) NextOffset() int {
	return p.Offset + p.Limit
}

// PreviousOffset returns the offset for the previous page.
// Returns 0 if the result would be negative.
func (p Params) PreviousOffset() int {
	prev := p.Offset - p.Limit
	if prev < 0 {
		return 0
	}
	return prev
}
