package inventory

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rvgrafica/rvgrafica-erp/internal/shared"
)

const (
	// DefaultUnit is the unit materials are stocked in unless told otherwise.
	DefaultUnit = "m²"
	// DefaultReason labels adjustments recorded without a reason.
	DefaultReason = "ajuste manual"
	// UsageReason labels consumption by a production order.
	UsageReason = "consumo orden"
	// InitialReason labels the opening movement of a new material.
	InitialReason = "stock inicial"
)

// Material is a consumable such as vinyl, canvas or film.
type Material struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	SKU          string          `json:"sku,omitempty"`
	Category     string          `json:"category,omitempty"`
	Unit         string          `json:"unit"`
	CurrentStock decimal.Decimal `json:"current_stock"`
	MinimumStock decimal.Decimal `json:"minimum_stock"`
	UnitCost     decimal.Decimal `json:"unit_cost"`
	CreatedBy    int64           `json:"created_by"`
	UpdatedBy    int64           `json:"updated_by"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// BelowMinimum reports whether stock has fallen under the configured minimum.
func (m Material) BelowMinimum() bool {
	return m.CurrentStock.LessThan(m.MinimumStock)
}

// StockMovement is one signed change to a material's stock. BalanceAfter is
// the material stock once the movement applied.
type StockMovement struct {
	ID           int64           `json:"id"`
	MaterialID   int64           `json:"material_id"`
	Quantity     decimal.Decimal `json:"quantity"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
	Reason       string          `json:"reason"`
	Reference    string          `json:"reference,omitempty"`
	OrderID      *int64          `json:"order_id,omitempty"`
	CreatedBy    int64           `json:"created_by"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Direction is "in" for additions and "out" for withdrawals.
func (m StockMovement) Direction() string {
	if m.Quantity.IsNegative() {
		return "out"
	}
	return "in"
}

// MaterialUsage links a production order to the stock it consumed.
type MaterialUsage struct {
	ID         int64           `json:"id"`
	OrderID    int64           `json:"order_id"`
	MaterialID int64           `json:"material_id"`
	Quantity   decimal.Decimal `json:"quantity"`
	MovementID int64           `json:"movement_id"`
	CreatedAt  time.Time       `json:"created_at"`
}

// CreateMaterialInput describes a new material.
type CreateMaterialInput struct {
	Name         string          `json:"name" validate:"required,max=255"`
	SKU          string          `json:"sku,omitempty" validate:"max=64"`
	Category     string          `json:"category,omitempty" validate:"max=128"`
	Unit         string          `json:"unit,omitempty" validate:"max=32"`
	InitialStock decimal.Decimal `json:"initial_stock"`
	MinimumStock decimal.Decimal `json:"minimum_stock" validate:"gte=0"`
	UnitCost     decimal.Decimal `json:"unit_cost" validate:"gte=0"`
	ActorID      int64           `json:"-"`
}

// AdjustStockInput is a manual or system stock change.
type AdjustStockInput struct {
	MaterialID int64           `json:"material_id" validate:"required,gt=0"`
	Delta      decimal.Decimal `json:"delta"`
	Reason     string          `json:"reason,omitempty" validate:"max=255"`
	Reference  string          `json:"reference,omitempty" validate:"max=128"`
	OrderID    *int64          `json:"order_id,omitempty" validate:"omitempty,gt=0"`
	ActorID    int64           `json:"-"`
}

// UsageInput records material consumed by a production order.
type UsageInput struct {
	OrderID    int64           `json:"order_id" validate:"required,gt=0"`
	MaterialID int64           `json:"material_id" validate:"required,gt=0"`
	Quantity   decimal.Decimal `json:"quantity" validate:"gt=0"`
	ActorID    int64           `json:"-"`
}

// MaterialFilter narrows material listings.
type MaterialFilter struct {
	BelowMinimum bool
	Limit        int
	Offset       int
}

// MovementFilter narrows movement listings.
type MovementFilter struct {
	MaterialID int64
	OrderID    int64
	Limit      int
	Offset     int
}

// StockDiscrepancy reports a material whose stored stock drifted from the
// sum of its movements.
type StockDiscrepancy struct {
	MaterialID   int64           `json:"material_id"`
	Name         string          `json:"name"`
	CurrentStock decimal.Decimal `json:"current_stock"`
	MovementSum  decimal.Decimal `json:"movement_sum"`
}

var (
	// ErrMaterialNotFound indicates a missing material.
	ErrMaterialNotFound = fmt.Errorf("inventory: material not found: %w", shared.ErrReference)
	// ErrOrderNotFound indicates a missing production order.
	ErrOrderNotFound = fmt.Errorf("inventory: production order not found: %w", shared.ErrReference)
	// ErrNegativeStock is returned when a movement would leave stock below zero.
	ErrNegativeStock = fmt.Errorf("inventory: negative stock not allowed: %w", shared.ErrValidation)
	// ErrInvalidQuantity indicates a zero stock change.
	ErrInvalidQuantity = fmt.Errorf("inventory: quantity must be non zero: %w", shared.ErrValidation)
	// ErrDuplicateMaterial indicates the material name is taken.
	ErrDuplicateMaterial = fmt.Errorf("inventory: material name already exists: %w", shared.ErrConflict)
)
