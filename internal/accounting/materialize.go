package accounting

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/rvgrafica/rvgrafica-erp/internal/shared"
)

// Materialize resolves template lines into posting lines. Zero amounts are
// dropped; negative amounts, unknown roles and unbalanced results are errors.
func Materialize(ctx context.Context, resolver *ChartResolver, store ChartStore, lines []TemplateLine) ([]PostingLine, error) {
	out := make([]PostingLine, 0, len(lines))
	for idx, line := range lines {
		if line.Amount.IsZero() {
			continue
		}
		if line.Amount.IsNegative() {
			return nil, fmt.Errorf("accounting: line %d (%s) has negative amount %s: %w", idx+1, line.Role, line.Amount, shared.ErrValidation)
		}
		account, err := resolver.ResolveRole(ctx, store, line.Role)
		if err != nil {
			return nil, err
		}
		posting := PostingLine{AccountID: account.ID, AccountCode: account.Code, Description: line.Description, Debit: decimal.Zero, Credit: decimal.Zero}
		switch line.Side {
		case Debit:
			posting.Debit = line.Amount
		case Credit:
			posting.Credit = line.Amount
		default:
			return nil, fmt.Errorf("accounting: line %d has unknown side %q: %w", idx+1, line.Side, shared.ErrValidation)
		}
		out = append(out, posting)
	}
	if err := CheckBalanced(out); err != nil {
		return nil, err
	}
	return out, nil
}

// CheckBalanced enforces the double entry rule on resolved lines.
func CheckBalanced(lines []PostingLine) error {
	if len(lines) < 2 {
		return fmt.Errorf("accounting: entry requires at least two non-zero lines: %w", shared.ErrValidation)
	}
	debit := decimal.Zero
	credit := decimal.Zero
	for idx, line := range lines {
		if line.Debit.IsPositive() && line.Credit.IsPositive() {
			return fmt.Errorf("accounting: line %d is both debit and credit: %w", idx+1, shared.ErrValidation)
		}
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	if !debit.Equal(credit) {
		return fmt.Errorf("accounting: debit %s != credit %s: %w", debit, credit, shared.ErrImbalance)
	}
	return nil
}
