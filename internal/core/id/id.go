// Package id defines the identifier type of every document, line, product
// and ledger entry. Identifiers are UUIDv7, so they sort by creation time and
// keep primary-key indexes append-mostly.
package id

import (
	"github.com/google/uuid"
)

// ID is a UUID.
type ID = uuid.UUID

// New returns a fresh UUIDv7. It falls back to a random v4 only if the
// system clock cannot be read.
func New() ID {
	v, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return v
}

// Parse parses the canonical textual form.
func Parse(s string) (ID, error) {
	return uuid.Parse(s)
}

// MustParse is Parse for literals in tests; it panics on bad input.
func MustParse(s string) ID {
	return uuid.MustParse(s)
}

// Nil returns the zero ID.
func Nil() ID {
	return uuid.Nil
}

// IsNil reports whether v is the zero ID.
func IsNil(v ID) bool {
	return v == uuid.Nil
}
