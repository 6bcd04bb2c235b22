package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/rvgrafica/rvgrafica-erp/internal/platform/db"
	"github.com/rvgrafica/rvgrafica-erp/internal/shared"
)

const materialNameConstraint = "materials_name_key"

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	InsertMaterial(ctx context.Context, m Material) (int64, error)
	GetMaterialForUpdate(ctx context.Context, id int64) (Material, error)
	UpdateStock(ctx context.Context, id int64, stock decimal.Decimal, actorID int64) error
	InsertMovement(ctx context.Context, mv StockMovement) (int64, error)
	InsertUsage(ctx context.Context, u MaterialUsage) (int64, error)
	OrderNumber(ctx context.Context, orderID int64) (string, error)
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
	}
	return db.WithWriteTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const materialColumns = `id, name, sku, category, unit, current_stock, minimum_stock, unit_cost,
COALESCE(created_by, 0), COALESCE(updated_by, 0), created_at, updated_at`

func scanMaterial(row pgx.Row) (Material, error) {
	var m Material
	err := row.Scan(&m.ID, &m.Name, &m.SKU, &m.Category, &m.Unit, &m.CurrentStock, &m.MinimumStock, &m.UnitCost,
		&m.CreatedBy, &m.UpdatedBy, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Material{}, ErrMaterialNotFound
		}
		return Material{}, err
	}
	return m, nil
}

func (r *txRepository) InsertMaterial(ctx context.Context, m Material) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO materials (name, sku, category, unit, current_stock, minimum_stock, unit_cost, created_by, updated_by)
VALUES ($1,$2,$3,$4,0,$5,$6,$7,$7) RETURNING id`,
		m.Name, m.SKU, m.Category, m.Unit, m.MinimumStock, m.UnitCost, nullInt(m.CreatedBy)).Scan(&id)
	if err != nil {
		if shared.IsUniqueViolation(err, materialNameConstraint) {
			return 0, ErrDuplicateMaterial
		}
		return 0, err
	}
	return id, nil
}

func (r *txRepository) GetMaterialForUpdate(ctx context.Context, id int64) (Material, error) {
	return scanMaterial(r.tx.QueryRow(ctx, `SELECT `+materialColumns+` FROM materials WHERE id=$1 FOR UPDATE`, id))
}

func (r *txRepository) UpdateStock(ctx context.Context, id int64, stock decimal.Decimal, actorID int64) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE materials SET current_stock=$2, updated_by=COALESCE($3, updated_by), updated_at=NOW() WHERE id=$1`,
		id, stock, nullInt(actorID))
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrMaterialNotFound
	}
	return nil
}

func (r *txRepository) InsertMovement(ctx context.Context, mv StockMovement) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_movements (material_id, quantity, balance_after, reason, reference, order_id, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
		mv.MaterialID, mv.Quantity, mv.BalanceAfter, mv.Reason, mv.Reference, mv.OrderID, nullInt(mv.CreatedBy)).Scan(&id)
	return id, err
}

func (r *txRepository) InsertUsage(ctx context.Context, u MaterialUsage) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO material_usages (order_id, material_id, quantity, movement_id)
VALUES ($1,$2,$3,$4) RETURNING id`, u.OrderID, u.MaterialID, u.Quantity, u.MovementID).Scan(&id)
	return id, err
}

func (r *txRepository) OrderNumber(ctx context.Context, orderID int64) (string, error) {
	var number string
	err := r.tx.QueryRow(ctx, `SELECT number FROM documents WHERE id=$1 AND kind='PRODUCTION_ORDER'`, orderID).Scan(&number)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrOrderNotFound
		}
		return "", err
	}
	return number, nil
}

// GetMaterial loads a material.
func (r *Repository) GetMaterial(ctx context.Context, id int64) (Material, error) {
	return scanMaterial(r.pool.QueryRow(ctx, `SELECT `+materialColumns+` FROM materials WHERE id=$1`, id))
}

// ListMaterials returns materials ordered by name.
func (r *Repository) ListMaterials(ctx context.Context, filter MaterialFilter) ([]Material, int, error) {
	where := ""
	if filter.BelowMinimum {
		where = " WHERE current_stock < minimum_stock"
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM materials`+where).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+materialColumns+` FROM materials`+where+` ORDER BY name LIMIT $1 OFFSET $2`,
		limitOrDefault(filter.Limit), filter.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var materials []Material
	for rows.Next() {
		m, err := scanMaterial(rows)
		if err != nil {
			return nil, 0, err
		}
		materials = append(materials, m)
	}
	return materials, total, rows.Err()
}

// ListMovements returns movements newest first.
func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]StockMovement, int, error) {
	var (
		conds []string
		args  []any
	)
	if filter.MaterialID > 0 {
		args = append(args, filter.MaterialID)
		conds = append(conds, fmt.Sprintf("material_id=$%d", len(args)))
	}
	if filter.OrderID > 0 {
		args = append(args, filter.OrderID)
		conds = append(conds, fmt.Sprintf("order_id=$%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stock_movements`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, limitOrDefault(filter.Limit), filter.Offset)
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT id, material_id, quantity, balance_after, reason, reference, order_id, COALESCE(created_by, 0), created_at
FROM stock_movements%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var movements []StockMovement
	for rows.Next() {
		var mv StockMovement
		if err := rows.Scan(&mv.ID, &mv.MaterialID, &mv.Quantity, &mv.BalanceAfter, &mv.Reason, &mv.Reference, &mv.OrderID, &mv.CreatedBy, &mv.CreatedAt); err != nil {
			return nil, 0, err
		}
		movements = append(movements, mv)
	}
	return movements, total, rows.Err()
}

// StockDiscrepancies compares stored stock with the movement ledger.
func (r *Repository) StockDiscrepancies(ctx context.Context) ([]StockDiscrepancy, error) {
	rows, err := r.pool.Query(ctx, `SELECT m.id, m.name, m.current_stock, COALESCE(SUM(s.quantity), 0)
FROM materials m LEFT JOIN stock_movements s ON s.material_id = m.id
GROUP BY m.id, m.name, m.current_stock
HAVING m.current_stock <> COALESCE(SUM(s.quantity), 0)
ORDER BY m.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []StockDiscrepancy
	for rows.Next() {
		var d StockDiscrepancy
		if err := rows.Scan(&d.MaterialID, &d.Name, &d.CurrentStock, &d.MovementSum); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return 50
	}
	return limit
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}
