package logbrowser

import (
	"net/url"
	"strconv"

	"email-monitor-go/internal/models"
)

// Filter is the browser's filter and pagination state. It round-trips
// through a URL query: ParseFilter(f.Values()) == f for any Filter produced
// by this package.
type Filter struct {
	Server string           `json:"server"`
	Email  string           `json:"email"`
	Kind   models.LogKind   `json:"kind"`
	Status models.LogStatus `json:"status"`
	Limit  int              `json:"limit"`
	Page   int              `json:"page"`
}

// Paging describes the allowed page sizes and the default one
type Paging struct {
	Sizes        []int
	DefaultLimit int
}

// DefaultPaging matches the page sizes offered by the log view
var DefaultPaging = Paging{Sizes: []int{10, 25, 50, 100}, DefaultLimit: 50}

func (p Paging) allowed(limit int) bool {
	for _, size := range p.Sizes {
		if size == limit {
			return true
		}
	}
	return false
}

// ParseFilter reads a filter from URL query parameters. Malformed or
// out-of-range values fall back to their defaults instead of failing.
func ParseFilter(q url.Values, paging Paging) Filter {
	f := Filter{
		Server: q.Get("server"),
		Email:  q.Get("email"),
		Limit:  paging.DefaultLimit,
		Page:   1,
	}
	if kind := models.LogKind(q.Get("kind")); kind.Valid() {
		f.Kind = kind
	}
	if status := models.LogStatus(q.Get("status")); status.Valid() {
		f.Status = status
	}
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil && paging.allowed(limit) {
		f.Limit = limit
	}
	if page, err := strconv.Atoi(q.Get("page")); err == nil && page >= 1 {
		f.Page = page
	}
	return f
}

// Values serializes the full state. Empty selection filters are omitted;
// limit and page are always present.
func (f Filter) Values() url.Values {
	v := url.Values{}
	if f.Server != "" {
		v.Set("server", f.Server)
	}
	if f.Email != "" {
		v.Set("email", f.Email)
	}
	if f.Kind != "" {
		v.Set("kind", string(f.Kind))
	}
	if f.Status != "" {
		v.Set("status", string(f.Status))
	}
	v.Set("limit", strconv.Itoa(f.Limit))
	v.Set("page", strconv.Itoa(f.Page))
	return v
}

// Offset is the index of the first record of the current page
func (f Filter) Offset() int {
	return (f.Page - 1) * f.Limit
}

// Query builds the backend query for the current page
func (f Filter) Query() models.MailLogQuery {
	return models.MailLogQuery{
		Server: f.Server,
		Email:  f.Email,
		Kind:   f.Kind,
		Status: f.Status,
		Limit:  f.Limit,
		Offset: f.Offset(),
	}
}
