package documents

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/rvgrafica/rvgrafica-erp/internal/shared"
)

// Calculator derives line and document aggregates using fixed point
// arithmetic and a single rounding mode.
type Calculator struct {
	Rounding shared.RoundingMode
}

// IsDimensional reports whether a line is priced by area.
func IsDimensional(width, height decimal.NullDecimal) bool {
	return width.Valid && height.Valid
}

// LineArea returns width x height x quantity for dimensional lines and zero
// with ok=false otherwise.
func (c Calculator) LineArea(in LineInput) (area decimal.Decimal, ok bool) {
	if !IsDimensional(in.Width, in.Height) {
		return decimal.Zero, false
	}
	return c.Rounding.Round2(in.Width.Decimal.Mul(in.Height.Decimal).Mul(in.Quantity)), true
}

// LineSubtotal prices the line: area x unit price when dimensional, quantity x
// unit price otherwise.
func (c Calculator) LineSubtotal(in LineInput) decimal.Decimal {
	base := in.Quantity
	if IsDimensional(in.Width, in.Height) {
		base = in.Width.Decimal.Mul(in.Height.Decimal).Mul(in.Quantity)
	}
	return c.Rounding.Round2(base.Mul(in.UnitPrice))
}

// PriceLine builds the stored line for documentID from in.
func (c Calculator) PriceLine(documentID int64, in LineInput) LineItem {
	area, _ := c.LineArea(in)
	return LineItem{
		DocumentID:  documentID,
		Description: strings.TrimSpace(in.Description),
		Quantity:    in.Quantity,
		Width:       in.Width,
		Height:      in.Height,
		UnitPrice:   in.UnitPrice,
		MaterialID:  in.MaterialID,
		Area:        area,
		Subtotal:    c.LineSubtotal(in),
	}
}

// ValidateLine checks the numeric invariants of a line.
func ValidateLine(in LineInput) error {
	if strings.TrimSpace(in.Description) == "" {
		return fmt.Errorf("documents: line description required: %w", shared.ErrValidation)
	}
	if !in.Quantity.IsPositive() {
		return fmt.Errorf("documents: line quantity must be positive: %w", shared.ErrValidation)
	}
	if in.UnitPrice.IsNegative() {
		return fmt.Errorf("documents: line unit price must not be negative: %w", shared.ErrValidation)
	}
	if in.Width.Valid != in.Height.Valid {
		return fmt.Errorf("documents: width and height must be given together: %w", shared.ErrValidation)
	}
	if IsDimensional(in.Width, in.Height) && (!in.Width.Decimal.IsPositive() || !in.Height.Decimal.IsPositive()) {
		return fmt.Errorf("documents: width and height must be positive: %w", shared.ErrValidation)
	}
	return nil
}

func lineInputOf(l LineItem) LineInput {
	return LineInput{
		Description: l.Description,
		Quantity:    l.Quantity,
		Width:       l.Width,
		Height:      l.Height,
		UnitPrice:   l.UnitPrice,
		MaterialID:  l.MaterialID,
	}
}
