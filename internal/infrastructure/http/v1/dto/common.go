// Package dto provides Data Transfer Objects for API requests/responses.
package dto

import (
	"time"

	"orderflow/internal/core/apperror"
	"orderflow/internal/core/id"
	"orderflow/internal/domain"
)

// ListResponse wraps list results with pagination.
type ListResponse[T any] struct {
	Items      []T   `json:"items"`
	TotalCount int64 `json:"totalCount"`
	Limit      int   `json:"limit"`
	Offset     int   `json:"offset"`
}

// NewListResponse maps a domain page with fn.
func NewListResponse[E any, T any](res domain.ListResult[E], fn func(E) T) ListResponse[T] {
	items := make([]T, len(res.Items))
	for i, item := range res.Items {
		items[i] = fn(item)
	}
	return ListResponse[T]{
		Items:      items,
		TotalCount: res.TotalCount,
		Limit:      res.Limit,
		Offset:     res.Offset,
	}
}

// IDResponse is returned when only an identifier is of interest.
type IDResponse struct {
	ID string `json:"id"`
}

// ListQuery is the common query string of document lists.
type ListQuery struct {
	Search         string     `form:"search"`
	Status         string     `form:"status"`
	OrderBy        string     `form:"orderBy"`
	IncludeDeleted bool       `form:"includeDeleted"`
	DateFrom       *time.Time `form:"dateFrom" time_format:"2006-01-02"`
	DateTo         *time.Time `form:"dateTo" time_format:"2006-01-02"`
	Limit          int        `form:"limit" binding:"omitempty,min=1,max=500"`
	Offset         int        `form:"offset" binding:"omitempty,min=0"`
}

// Filter converts the query to a domain filter; defaultOrder applies when
// no orderBy was given.
func (q ListQuery) Filter(defaultOrder string) domain.ListFilter {
	f := domain.DefaultListFilter()
	f.Search = q.Search
	f.Status = q.Status
	f.IncludeDeleted = q.IncludeDeleted
	f.OrderBy = defaultOrder
	if q.OrderBy != "" {
		f.OrderBy = q.OrderBy
	}
	if q.Limit > 0 {
		f.Limit = q.Limit
	}
	f.Offset = q.Offset
	return f
}

// ParseID parses a path or body identifier into a validation error.
func ParseID(field, raw string) (id.ID, error) {
	parsed, err := id.Parse(raw)
	if err != nil {
		return id.Nil(), apperror.NewValidation("invalid "+field).WithDetail("field", field)
	}
	return parsed, nil
}

// ParseOptionalID is ParseID for optional fields.
func ParseOptionalID(field, raw string) (*id.ID, error) {
	if raw == "" {
		return nil, nil
	}
	parsed, err := ParseID(field, raw)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}
