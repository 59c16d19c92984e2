// Package domain holds the contracts shared by every aggregate: list
// filtering and paging, the catalog repository and lifecycle hooks.
package domain

import (
	"context"

	"orderflow/internal/core/entity"
	"orderflow/internal/core/id"
)

// ListFilter is the common part of every list query.
type ListFilter struct {
	// Search matches code, name or document number substrings.
	Search string

	IDs            []id.ID
	IncludeDeleted bool

	// Status filters documents by lifecycle status.
	Status string

	// OrderBy is a column name, "-" prefixed for descending.
	OrderBy string

	Limit  int
	Offset int
}

// DefaultListFilter returns the first page of 50 ordered by name.
func DefaultListFilter() ListFilter {
	return ListFilter{Limit: 50, OrderBy: "name"}
}

// ListResult is one page of T.
type ListResult[T any] struct {
	Items      []T   `json:"items"`
	TotalCount int64 `json:"totalCount"`
	Limit      int   `json:"limit"`
	Offset     int   `json:"offset"`
}

// Page cuts one page out of an already filtered and sorted slice, for
// backends that cannot page natively.
func Page[T any](items []T, filter ListFilter) ListResult[T] {
	total := len(items)
	start := min(filter.Offset, total)
	end := total
	if filter.Limit > 0 {
		end = min(start+filter.Limit, total)
	}
	return ListResult[T]{
		Items:      items[start:end],
		TotalCount: int64(total),
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	}
}

// CatalogRepository persists catalog entities.
type CatalogRepository[T entity.Validatable] interface {
	Create(ctx context.Context, e T) error
	GetByID(ctx context.Context, id id.ID) (T, error)
	GetByCode(ctx context.Context, code string) (T, error)

	// Update fails with ConcurrentModification on a stale version.
	Update(ctx context.Context, e T) error

	SetDeletionMark(ctx context.Context, id id.ID, marked bool) error
	List(ctx context.Context, filter ListFilter) (ListResult[T], error)
}

// HookEvent names a lifecycle point.
type HookEvent string

const (
	BeforeCreate HookEvent = "before_create"
	AfterCreate  HookEvent = "after_create"
	BeforeUpdate HookEvent = "before_update"
	BeforeDelete HookEvent = "before_delete"
)

// Hook runs at a lifecycle point; an error aborts the operation.
type Hook[T any] func(ctx context.Context, e T) error

// HookRegistry holds the hooks of one entity type. Registration happens at
// wiring time, so it is not synchronized.
type HookRegistry[T any] struct {
	hooks map[HookEvent][]Hook[T]
}

func NewHookRegistry[T any]() *HookRegistry[T] {
	return &HookRegistry[T]{hooks: make(map[HookEvent][]Hook[T])}
}

// On registers hook for event.
func (r *HookRegistry[T]) On(event HookEvent, hook Hook[T]) {
	r.hooks[event] = append(r.hooks[event], hook)
}

// Run calls the hooks of event in registration order, stopping at the
// first error.
func (r *HookRegistry[T]) Run(ctx context.Context, event HookEvent, e T) error {
	for _, h := range r.hooks[event] {
		if err := h(ctx, e); err != nil {
			return err
		}
	}
	return nil
}
