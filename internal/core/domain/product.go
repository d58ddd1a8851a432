package domain

import (
	"strings"
	"time"
)

type Product struct {
	ID          string    `json:"_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       float64   `json:"price"`
	Inventory   int64     `json:"inventory"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ProductDraft is a validated create request.
type ProductDraft struct {
	Name        string
	Description string
	Price       float64
	Inventory   int64
}

func (d ProductDraft) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return invalidf("name is required")
	}
	if d.Price < 0 {
		return invalidf("price must be >= 0")
	}
	if d.Inventory < 0 {
		return invalidf("inventory must be >= 0")
	}
	return nil
}

// ProductPatch carries the fields of a partial update; nil fields are left untouched.
type ProductPatch struct {
	Name        *string
	Description *string
	Price       *float64
	Inventory   *int64
}

func (p ProductPatch) Empty() bool {
	return p.Name == nil && p.Description == nil && p.Price == nil && p.Inventory == nil
}

func (p ProductPatch) Validate() error {
	if p.Empty() {
		return invalidf("at least one of name, description, price, inventory is required")
	}
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return invalidf("name must not be empty")
	}
	if p.Price != nil && *p.Price < 0 {
		return invalidf("price must be >= 0")
	}
	if p.Inventory != nil && *p.Inventory < 0 {
		return invalidf("inventory must be >= 0")
	}
	return nil
}

// Apply copies the set fields onto product.
func (p ProductPatch) Apply(product *Product) {
	if p.Name != nil {
		product.Name = *p.Name
	}
	if p.Description != nil {
		product.Description = *p.Description
	}
	if p.Price != nil {
		product.Price = *p.Price
	}
	if p.Inventory != nil {
		product.Inventory = *p.Inventory
	}
}
