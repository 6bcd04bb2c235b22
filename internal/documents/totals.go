package documents

import "github.com/shopspring/decimal"

// ComputeTotals aggregates lines into document totals: area and subtotal
// first, then taxes, then the grand total. No lines yields zero totals.
func (c Calculator) ComputeTotals(lines []LineItem, rates Rates) Totals {
	area := decimal.Zero
	subtotal := decimal.Zero
	for _, line := range lines {
		in := lineInputOf(line)
		if a, ok := c.LineArea(in); ok {
			area = area.Add(a)
		}
		subtotal = subtotal.Add(c.LineSubtotal(in))
	}
	taxes := c.ComputeTaxes(subtotal, rates)
	return Totals{
		TotalArea:         area,
		Subtotal:          subtotal,
		VATAmount:         taxes.VAT,
		PerceptionAmount:  taxes.Perception,
		GrossIncomeAmount: taxes.GrossIncome,
		Total:             taxes.Total,
	}
}
