package finance

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/rvgrafica/rvgrafica-erp/internal/platform/db"
)

// TxRepository exposes the operations available inside a transaction.
type TxRepository interface {
	ContactName(ctx context.Context, contactID int64) (string, error)
	InvoiceBelongsTo(ctx context.Context, invoiceID, contactID int64) (bool, error)
	InsertMovement(ctx context.Context, m Movement) (int64, error)
}

// Repository persists finance movements in PostgreSQL.
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
		return errors.New("finance repository not initialised")
	}
	return db.WithWriteTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *txRepository) ContactName(ctx context.Context, contactID int64) (string, error) {
	var name string
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(NULLIF(trade_name, ''), name) FROM contacts WHERE id=$1`, contactID).Scan(&name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrContactNotFound
		}
		return "", err
	}
	return name, nil
}

func (r *txRepository) InvoiceBelongsTo(ctx context.Context, invoiceID, contactID int64) (bool, error) {
	var owner int64
	err := r.tx.QueryRow(ctx, `SELECT contact_id FROM documents WHERE id=$1 AND kind='INVOICE'`, invoiceID).Scan(&owner)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, ErrInvoiceNotFound
		}
		return false, err
	}
	return owner == contactID, nil
}

func (r *txRepository) InsertMovement(ctx context.Context, m Movement) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO finance_movements (contact_id, invoice_id, kind, movement_date, amount, method, reference, notes, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id`,
		m.ContactID, m.InvoiceID, string(m.Kind), m.Date, m.Amount, m.Method, m.Reference, m.Notes, nullInt(m.CreatedBy)).Scan(&id)
	return id, err
}

const movementColumns = `m.id, m.contact_id, COALESCE(NULLIF(c.trade_name, ''), c.name), m.invoice_id, m.kind, m.movement_date, m.amount,
m.method, m.reference, m.notes, COALESCE(m.created_by, 0), m.created_at`

func scanMovement(row pgx.Row) (Movement, error) {
	var m Movement
	err := row.Scan(&m.ID, &m.ContactID, &m.ContactName, &m.InvoiceID, &m.Kind, &m.Date, &m.Amount,
		&m.Method, &m.Reference, &m.Notes, &m.CreatedBy, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Movement{}, ErrMovementNotFound
		}
		return Movement{}, err
	}
	return m, nil
}

// GetMovement loads a movement.
func (r *Repository) GetMovement(ctx context.Context, id int64) (Movement, error) {
	return scanMovement(r.pool.QueryRow(ctx, `SELECT `+movementColumns+`
FROM finance_movements m JOIN contacts c ON c.id = m.contact_id WHERE m.id=$1`, id))
}

func movementWhere(filter ListFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if filter.ContactID > 0 {
		args = append(args, filter.ContactID)
		conds = append(conds, fmt.Sprintf("m.contact_id=$%d", len(args)))
	}
	if filter.Kind != "" {
		args = append(args, string(filter.Kind))
		conds = append(conds, fmt.Sprintf("m.kind=$%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		conds = append(conds, fmt.Sprintf("m.movement_date >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		conds = append(conds, fmt.Sprintf("m.movement_date <= $%d", len(args)))
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// ListMovements returns movements newest first.
func (r *Repository) ListMovements(ctx context.Context, filter ListFilter) ([]Movement, int, error) {
	where, args := movementWhere(filter)
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM finance_movements m`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, filter.Offset)
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM finance_movements m JOIN contacts c ON c.id = m.contact_id%s
ORDER BY m.movement_date DESC, m.id DESC LIMIT $%d OFFSET $%d`, movementColumns, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Movement
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, m)
	}
	return out, total, rows.Err()
}

// ContactBalance sums the signed amounts of a contact's movements.
func (r *Repository) ContactBalance(ctx context.Context, contactID int64) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(CASE WHEN kind='PAYMENT' THEN -amount ELSE amount END), 0)
FROM finance_movements WHERE contact_id=$1`, contactID).Scan(&balance)
	return balance, err
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}
