package entity

import (
	"context"
	"strings"

	"orderflow/internal/core/apperror"
)

// Catalog is reference data addressed by a unique business code.
type Catalog struct {
	BaseEntity

	Code string `db:"code" json:"code"`
	Name string `db:"name" json:"name"`
}

func NewCatalog(code, name string) Catalog {
	return Catalog{
		BaseEntity: NewBaseEntity(),
		Code:       code,
		Name:       name,
	}
}

// Validate trims code and name and requires both.
func (c *Catalog) Validate(ctx context.Context) error {
	c.Code = strings.TrimSpace(c.Code)
	c.Name = strings.TrimSpace(c.Name)
	switch {
	case c.Code == "":
		return apperror.NewValidation("code is required").WithDetail("field", "code")
	case c.Name == "":
		return apperror.NewValidation("name is required").WithDetail("field", "name")
	}
	return nil
}
