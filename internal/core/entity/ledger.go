// Package entity provides core domain entities.
package entity

import (
	"fmt"
	"time"

	"orderflow/internal/core/id"
	"orderflow/internal/core/types"
)

// Location is a named stock partition. Quantities per location are kept in
// maps keyed by Location, so a new location only needs a constant here.
type Location string

const (
	// LocationNG is the northern regional main stock.
	LocationNG Location = "NG"
	// LocationPH is the southern regional main stock.
	LocationPH Location = "PH"
	// LocationReserved holds stock committed to job order lines.
	LocationReserved Location = "RESERVED"
	// LocationReady holds finished goods waiting for dispatch.
	LocationReady Location = "RED"
	// LocationAdmin is the administrative pool.
	LocationAdmin Location = "ADMIN"
	// LocationWIP is work in progress.
	LocationWIP Location = "WIP"
)

// AllLocations lists every known location in display order.
var AllLocations = []Location{
	LocationNG,
	LocationPH,
	LocationReserved,
	LocationReady,
	LocationAdmin,
	LocationWIP,
}

// IsValid reports whether l is a known location.
func (l Location) IsValid() bool {
	for _, known := range AllLocations {
		if l == known {
			return true
		}
	}
	return false
}

// ParseLocation validates a location code.
func ParseLocation(s string) (Location, error) {
	l := Location(s)
	if !l.IsValid() {
		return "", fmt.Errorf("unknown location %q", s)
	}
	return l, nil
}

// MovementKind classifies a ledger entry.
type MovementKind string

const (
	MovementProductionIn MovementKind = "production_in"
	MovementSaleOut      MovementKind = "sale_out"
	MovementAdjustment   MovementKind = "adjustment"
	MovementTransfer     MovementKind = "transfer"
)

// IsValid reports whether k is a known movement kind.
func (k MovementKind) IsValid() bool {
	switch k {
	case MovementProductionIn, MovementSaleOut, MovementAdjustment, MovementTransfer:
		return true
	}
	return false
}

// IsCommit reports whether entries of this kind are subject to the
// non-negative on-hand rule. Adjustments are exempt.
func (k MovementKind) IsCommit() bool {
	return k != MovementAdjustment
}

// DocumentRef points at the document (and optionally the line) that caused
// a ledger entry.
type DocumentRef struct {
	Type   string `json:"type"`
	ID     id.ID  `json:"id"`
	LineID id.ID  `json:"lineId"`
}

// LedgerEntry is an immutable signed stock movement at one location.
// Entries are never updated or deleted; corrections are offsetting entries.
type LedgerEntry struct {
	ID id.ID `db:"id" json:"id"`

	// Sequence is assigned on append and orders the whole ledger.
	Sequence int64 `db:"sequence" json:"sequence"`

	ProductID id.ID          `db:"product_id" json:"productId"`
	Location  Location       `db:"location" json:"location"`
	Delta     types.Quantity `db:"delta" json:"delta"`
	Kind      MovementKind   `db:"kind" json:"kind"`

	RefType   string `db:"ref_type" json:"refType"`
	RefID     id.ID  `db:"ref_id" json:"refId"`
	RefLineID id.ID  `db:"ref_line_id" json:"refLineId"`

	// GroupID links entries appended together (both legs of a transfer).
	GroupID id.ID `db:"group_id" json:"groupId"`

	// Forced marks a commit-class entry let through by an AllowNegative override.
	Forced bool `db:"forced" json:"forced,omitempty"`

	Note string `db:"note" json:"note,omitempty"`

	CreatedBy string    `db:"created_by" json:"createdBy"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// NewLedgerEntry creates an entry with a generated ID. Sequence, group and
// timestamps are filled in by the ledger on append.
func NewLedgerEntry(productID id.ID, loc Location, delta types.Quantity, kind MovementKind, ref DocumentRef) LedgerEntry {
	return LedgerEntry{
		ID:        id.New(),
		ProductID: productID,
		Location:  loc,
		Delta:     delta,
		Kind:      kind,
		RefType:   ref.Type,
		RefID:     ref.ID,
		RefLineID: ref.LineID,
	}
}

// Ref returns the originating document reference.
func (e *LedgerEntry) Ref() DocumentRef {
	return DocumentRef{Type: e.RefType, ID: e.RefID, LineID: e.RefLineID}
}

// BalanceKey identifies one running balance.
type BalanceKey struct {
	ProductID id.ID
	Location  Location
}

// Key returns the balance the entry affects.
func (e *LedgerEntry) Key() BalanceKey {
	return BalanceKey{ProductID: e.ProductID, Location: e.Location}
}

// String renders the key for lock names and logs.
func (k BalanceKey) String() string {
	return k.ProductID.String() + ":" + string(k.Location)
}

// Less orders keys so that multi-key locking is deadlock free.
func (k BalanceKey) Less(other BalanceKey) bool {
	if k.ProductID != other.ProductID {
		return k.ProductID.String() < other.ProductID.String()
	}
	return k.Location < other.Location
}

// LocationBalance is the maintained running balance for one key.
type LocationBalance struct {
	ProductID      id.ID          `db:"product_id" json:"productId"`
	Location       Location       `db:"location" json:"location"`
	Quantity       types.Quantity `db:"quantity" json:"quantity"`
	LastSequence   int64          `db:"last_sequence" json:"lastSequence"`
	LastMovementAt time.Time      `db:"last_movement_at" json:"lastMovementAt"`
}
