package expenses

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rvgrafica/rvgrafica-erp/internal/platform/db"
)

// TxRepository exposes the operations available inside a transaction.
type TxRepository interface {
	SupplierExists(ctx context.Context, contactID int64) (bool, error)
	InsertExpense(ctx context.Context, e Expense) (int64, error)
}

// Repository persists expenses in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes fn within a read-committed transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("expenses repository not initialised")
	}
	return db.WithWriteTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *txRepository) SupplierExists(ctx context.Context, contactID int64) (bool, error) {
	var ok bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM contacts WHERE id=$1 AND is_supplier)`, contactID).Scan(&ok)
	return ok, err
}

func (r *txRepository) InsertExpense(ctx context.Context, e Expense) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO expenses (expense_date, category, description, supplier_id, amount, taxable, vat_rate, receipt, notes, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING id`,
		e.Date, string(e.Category), e.Description, e.SupplierID, e.Amount, e.Taxable, e.VATRate, e.Receipt, e.Notes, nullInt(e.CreatedBy)).Scan(&id)
	return id, err
}

const expenseColumns = `id, expense_date, category, description, supplier_id, amount, taxable, vat_rate, receipt, notes,
COALESCE(created_by, 0), created_at`

func scanExpense(row pgx.Row) (Expense, error) {
	var e Expense
	err := row.Scan(&e.ID, &e.Date, &e.Category, &e.Description, &e.SupplierID, &e.Amount, &e.Taxable, &e.VATRate,
		&e.Receipt, &e.Notes, &e.CreatedBy, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Expense{}, ErrExpenseNotFound
		}
		return Expense{}, err
	}
	return e, nil
}

// GetExpense loads an expense.
func (r *Repository) GetExpense(ctx context.Context, id int64) (Expense, error) {
	return scanExpense(r.pool.QueryRow(ctx, `SELECT `+expenseColumns+` FROM expenses WHERE id=$1`, id))
}

func expenseWhere(filter ListFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if filter.Category != "" {
		args = append(args, string(filter.Category))
		conds = append(conds, fmt.Sprintf("category=$%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		conds = append(conds, fmt.Sprintf("expense_date >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		conds = append(conds, fmt.Sprintf("expense_date <= $%d", len(args)))
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// ListExpenses returns expenses newest first.
func (r *Repository) ListExpenses(ctx context.Context, filter ListFilter) ([]Expense, int, error) {
	where, args := expenseWhere(filter)
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM expenses`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, filter.Offset)
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM expenses%s ORDER BY expense_date DESC, id DESC LIMIT $%d OFFSET $%d`,
		expenseColumns, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, e)
	}
	return out, total, rows.Err()
}

// TotalsByCategory sums expense amounts per category within the filter's dates.
func (r *Repository) TotalsByCategory(ctx context.Context, filter ListFilter) ([]CategoryTotal, error) {
	where, args := expenseWhere(ListFilter{From: filter.From, To: filter.To})
	rows, err := r.pool.Query(ctx, `SELECT category, COUNT(*), COALESCE(SUM(amount), 0) FROM expenses`+where+`
GROUP BY category ORDER BY category`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CategoryTotal
	for rows.Next() {
		var t CategoryTotal
		if err := rows.Scan(&t.Category, &t.Count, &t.Amount); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}
