package documents

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/rvgrafica/rvgrafica-erp/internal/shared"
)

// Taxes holds the rounded tax components and the resulting grand total.
type Taxes struct {
	VAT         decimal.Decimal
	Perception  decimal.Decimal
	GrossIncome decimal.Decimal
	Total       decimal.Decimal
}

// ComputeTaxes rounds each component to cents on its own and sums the
// rounded values into the total.
func (c Calculator) ComputeTaxes(subtotal decimal.Decimal, rates Rates) Taxes {
	vat := c.Rounding.Round2(subtotal.Mul(rates.VAT))
	perception := c.Rounding.Round2(subtotal.Mul(rates.Perception))
	gross := c.Rounding.Round2(subtotal.Mul(rates.GrossIncome))
	return Taxes{
		VAT:         vat,
		Perception:  perception,
		GrossIncome: gross,
		Total:       subtotal.Add(vat).Add(perception).Add(gross),
	}
}

// ValidateRates rejects rates outside [0, 1].
func ValidateRates(rates Rates) error {
	one := decimal.NewFromInt(1)
	for name, rate := range map[string]decimal.Decimal{
		"vat_rate":          rates.VAT,
		"perception_rate":   rates.Perception,
		"gross_income_rate": rates.GrossIncome,
	} {
		if rate.IsNegative() || rate.GreaterThan(one) {
			return fmt.Errorf("documents: %s %s outside [0,1]: %w", name, rate, shared.ErrValidation)
		}
	}
	return nil
}

// ResolveRates fills missing rates from defaults.
func ResolveRates(in RatesInput, defaults Rates) Rates {
	rates := defaults
	if in.VAT != nil {
		rates.VAT = *in.VAT
	}
	if in.Perception != nil {
		rates.Perception = *in.Perception
	}
	if in.GrossIncome != nil {
		rates.GrossIncome = *in.GrossIncome
	}
	return rates
}
