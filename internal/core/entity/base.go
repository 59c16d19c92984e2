// Package entity holds the building blocks shared by products and the three
// document kinds: identity, versioning and authorship.
package entity

import (
	"context"
	"time"

	"orderflow/internal/core/id"
)

// Validatable is implemented by entities that check their own invariants
// without touching storage. Validate returns nil or an *apperror.AppError.
type Validatable interface {
	Validate(ctx context.Context) error
}

// BaseEntity is embedded by every persisted entity.
type BaseEntity struct {
	ID id.ID `db:"id" json:"id"`

	// DeletionMark hides a product from lists without breaking ledger
	// history that still points at it.
	DeletionMark bool `db:"deletion_mark" json:"deletionMark"`

	// Version is bumped on every write and checked by repositories.
	Version int `db:"version" json:"version"`
}

// NewBaseEntity returns an entity at version 1 with a fresh id.
func NewBaseEntity() BaseEntity {
	return BaseEntity{ID: id.New(), Version: 1}
}

func (b *BaseEntity) Touch() { b.Version++ }

// SetVersion lets repositories write back the stored version.
func (b *BaseEntity) SetVersion(v int) { b.Version = v }

// BaseDocument adds authorship and timestamps.
type BaseDocument struct {
	BaseEntity

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
	CreatedBy string    `db:"created_by" json:"createdBy,omitempty"`
	UpdatedBy string    `db:"updated_by" json:"updatedBy,omitempty"`
}

// NewBaseDocument returns a document base created now.
func NewBaseDocument() BaseDocument {
	now := time.Now().UTC()
	return BaseDocument{
		BaseEntity: NewBaseEntity(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Touch bumps the version and the modification time.
func (b *BaseDocument) Touch() {
	b.UpdatedAt = time.Now().UTC()
	b.BaseEntity.Touch()
}

// Stamp records actor as the last editor and touches the document.
func (b *BaseDocument) Stamp(actor string) {
	b.UpdatedBy = actor
	b.Touch()
}
