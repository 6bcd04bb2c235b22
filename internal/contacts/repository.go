package contacts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rvgrafica/rvgrafica-erp/internal/shared"
)

const (
	taxIDConstraint    = "contacts_tax_id_key"
	termNameConstraint = "payment_terms_name_key"
)

// Repository persists contacts in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const contactColumns = `id, name, trade_name, tax_id, email, phone, address, city, province, is_client, is_supplier, notes,
COALESCE(created_by, 0), COALESCE(updated_by, 0), created_at, updated_at`

func scanContact(row pgx.Row) (Contact, error) {
	var c Contact
	err := row.Scan(&c.ID, &c.Name, &c.TradeName, &c.TaxID, &c.Email, &c.Phone, &c.Address, &c.City, &c.Province,
		&c.IsClient, &c.IsSupplier, &c.Notes, &c.CreatedBy, &c.UpdatedBy, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Contact{}, ErrContactNotFound
		}
		return Contact{}, err
	}
	return c, nil
}

// Insert stores a contact and returns its id.
func (r *Repository) Insert(ctx context.Context, c Contact) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO contacts (name, trade_name, tax_id, email, phone, address, city, province, is_client, is_supplier, notes, created_by, updated_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$12) RETURNING id`,
		c.Name, c.TradeName, c.TaxID, c.Email, c.Phone, c.Address, c.City, c.Province, c.IsClient, c.IsSupplier, c.Notes, nullInt(c.CreatedBy)).Scan(&id)
	if err != nil {
		if shared.IsUniqueViolation(err, taxIDConstraint) {
			return 0, ErrDuplicateTaxID
		}
		return 0, err
	}
	return id, nil
}

// Get loads a contact.
func (r *Repository) Get(ctx context.Context, id int64) (Contact, error) {
	return scanContact(r.pool.QueryRow(ctx, `SELECT `+contactColumns+` FROM contacts WHERE id=$1`, id))
}

// List returns contacts ordered by name.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Contact, int, error) {
	var (
		conds []string
		args  []any
	)
	switch filter.Role {
	case RoleClient:
		conds = append(conds, "is_client")
	case RoleSupplier:
		conds = append(conds, "is_supplier")
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		conds = append(conds, fmt.Sprintf("(name ILIKE $%d OR trade_name ILIKE $%d OR tax_id ILIKE $%d)", len(args), len(args), len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM contacts`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, filter.Offset)
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM contacts%s ORDER BY name LIMIT $%d OFFSET $%d`,
		contactColumns, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

const termColumns = `id, name, days, description, created_by, created_at`

func scanPaymentTerm(row pgx.Row) (PaymentTerm, error) {
	var t PaymentTerm
	if err := row.Scan(&t.ID, &t.Name, &t.Days, &t.Description, &t.CreatedBy, &t.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PaymentTerm{}, ErrPaymentTermNotFound
		}
		return PaymentTerm{}, err
	}
	return t, nil
}

// InsertPaymentTerm stores a term and returns its id.
func (r *Repository) InsertPaymentTerm(ctx context.Context, term PaymentTerm) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO payment_terms (name, days, description, created_by) VALUES ($1,$2,$3,$4) RETURNING id`,
		term.Name, term.Days, term.Description, term.CreatedBy).Scan(&id)
	if err != nil {
		if shared.IsUniqueViolation(err, termNameConstraint) {
			return 0, ErrDuplicatePaymentTerm
		}
		return 0, err
	}
	return id, nil
}

// GetPaymentTerm loads a term.
func (r *Repository) GetPaymentTerm(ctx context.Context, id int64) (PaymentTerm, error) {
	return scanPaymentTerm(r.pool.QueryRow(ctx, `SELECT `+termColumns+` FROM payment_terms WHERE id=$1`, id))
}

// ListPaymentTerms returns every term, shortest first.
func (r *Repository) ListPaymentTerms(ctx context.Context) ([]PaymentTerm, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+termColumns+` FROM payment_terms ORDER BY days, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PaymentTerm
	for rows.Next() {
		term, err := scanPaymentTerm(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, term)
	}
	return out, rows.Err()
}

// GetAccount loads the stored credit conditions of a contact.
func (r *Repository) GetAccount(ctx context.Context, contactID int64) (Account, bool, error) {
	var a Account
	err := r.pool.QueryRow(ctx, `SELECT contact_id, credit_limit, payment_term_id, updated_by, updated_at
FROM contact_accounts WHERE contact_id=$1`, contactID).Scan(&a.ContactID, &a.CreditLimit, &a.PaymentTermID, &a.UpdatedBy, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, false, nil
		}
		return Account{}, false, err
	}
	return a, true, nil
}

// UpsertAccount writes the credit conditions of a contact.
func (r *Repository) UpsertAccount(ctx context.Context, a Account) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO contact_accounts (contact_id, credit_limit, payment_term_id, updated_by, updated_at)
VALUES ($1,$2,$3,$4,NOW())
ON CONFLICT (contact_id) DO UPDATE SET credit_limit = EXCLUDED.credit_limit, payment_term_id = EXCLUDED.payment_term_id,
	updated_by = EXCLUDED.updated_by, updated_at = NOW()`, a.ContactID, a.CreditLimit, a.PaymentTermID, a.UpdatedBy)
	return err
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}
