package documents

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/rvgrafica/rvgrafica-erp/internal/numbering"
	"github.com/rvgrafica/rvgrafica-erp/internal/platform/db"
	"github.com/rvgrafica/rvgrafica-erp/internal/shared"
)

const numberConstraint = "uq_documents_number"

// TxRepository exposes the document operations available inside a transaction.
type TxRepository interface {
	numbering.Sequencer
	InsertDocument(ctx context.Context, doc Document) (int64, error)
	GetDocumentForUpdate(ctx context.Context, id int64) (Document, error)
	ListLines(ctx context.Context, documentID int64) ([]LineItem, error)
	GetLine(ctx context.Context, documentID, lineID int64) (LineItem, error)
	InsertLine(ctx context.Context, line LineItem) (int64, error)
	UpdateLine(ctx context.Context, line LineItem) error
	DeleteLine(ctx context.Context, documentID, lineID int64) error
	UpdateTotals(ctx context.Context, id int64, totals Totals, actorID int64) error
	UpdateRates(ctx context.Context, id int64, rates Rates, actorID int64) error
	UpdateStatus(ctx context.Context, id int64, status Status, actorID int64) error
	ContactExists(ctx context.Context, id int64) (bool, error)
	MaterialExists(ctx context.Context, id int64) (bool, error)
	// PaymentTermDays resolves termID, or the contact's default term when
	// termID is nil. found is false when the contact has no default.
	PaymentTermDays(ctx context.Context, contactID int64, termID *int64) (days int, found bool, err error)
}

// Repository persists documents in postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	*numbering.TxSequencer
	tx pgx.Tx
}

// WithTx executes fn within a read-committed transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("documents repository not initialised")
	}
	return db.WithWriteTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{TxSequencer: numbering.NewTxSequencer(tx), tx: tx})
	})
}

const documentColumns = `id, kind, number, status, doc_date, due_date, contact_id, title, reference, notes,
COALESCE(invoice_type, ''), jurisdiction, currency, budget_id, order_id, vat_rate, perception_rate, gross_income_rate,
total_area, subtotal, vat_amount, perception_amount, gross_income_amount, total,
created_by, updated_by, created_at, updated_at`

func scanDocument(row pgx.Row) (Document, error) {
	var d Document
	var invoiceType string
	err := row.Scan(&d.ID, &d.Kind, &d.Number, &d.Status, &d.Date, &d.DueDate, &d.ContactID, &d.Title, &d.Reference, &d.Notes,
		&invoiceType, &d.Jurisdiction, &d.Currency, &d.BudgetID, &d.OrderID, &d.Rates.VAT, &d.Rates.Perception, &d.Rates.GrossIncome,
		&d.Totals.TotalArea, &d.Totals.Subtotal, &d.Totals.VATAmount, &d.Totals.PerceptionAmount, &d.Totals.GrossIncomeAmount, &d.Totals.Total,
		&d.CreatedBy, &d.UpdatedBy, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Document{}, ErrDocumentNotFound
		}
		return Document{}, err
	}
	d.InvoiceType = InvoiceType(invoiceType)
	return d, nil
}

const lineColumns = `id, document_id, position, description, quantity, width, height, unit_price, material_id, area, subtotal`

func scanLine(row pgx.Row) (LineItem, error) {
	var l LineItem
	err := row.Scan(&l.ID, &l.DocumentID, &l.Position, &l.Description, &l.Quantity, &l.Width, &l.Height, &l.UnitPrice, &l.MaterialID, &l.Area, &l.Subtotal)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LineItem{}, ErrLineNotFound
		}
		return LineItem{}, err
	}
	return l, nil
}

func nullInvoiceType(t InvoiceType) any {
	if t == "" {
		return nil
	}
	return string(t)
}

func nullableDecimal(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return d.Decimal
}

func (r *txRepository) InsertDocument(ctx context.Context, doc Document) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO documents (kind, number, status, doc_date, due_date, contact_id, title, reference, notes,
invoice_type, jurisdiction, currency, budget_id, order_id, vat_rate, perception_rate, gross_income_rate, created_by, updated_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$18) RETURNING id`,
		doc.Kind, doc.Number, doc.Status, doc.Date, doc.DueDate, doc.ContactID, doc.Title, doc.Reference, doc.Notes,
		nullInvoiceType(doc.InvoiceType), string(doc.Jurisdiction), doc.Currency, doc.BudgetID, doc.OrderID,
		doc.Rates.VAT, doc.Rates.Perception, doc.Rates.GrossIncome, doc.CreatedBy).Scan(&id)
	if err != nil {
		if shared.IsUniqueViolation(err, numberConstraint) {
			return 0, fmt.Errorf("%w: %s", ErrNumberTaken, doc.Number)
		}
		return 0, err
	}
	return id, nil
}

func (r *txRepository) GetDocumentForUpdate(ctx context.Context, id int64) (Document, error) {
	return scanDocument(r.tx.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id=$1 FOR UPDATE`, id))
}

func (r *txRepository) ListLines(ctx context.Context, documentID int64) ([]LineItem, error) {
	return queryLines(ctx, r.tx, documentID)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryLines(ctx context.Context, q querier, documentID int64) ([]LineItem, error) {
	rows, err := q.Query(ctx, `SELECT `+lineColumns+` FROM document_lines WHERE document_id=$1 ORDER BY position, id`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []LineItem
	for rows.Next() {
		line, err := scanLine(rows)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func (r *txRepository) GetLine(ctx context.Context, documentID, lineID int64) (LineItem, error) {
	return scanLine(r.tx.QueryRow(ctx, `SELECT `+lineColumns+` FROM document_lines WHERE document_id=$1 AND id=$2`, documentID, lineID))
}

func (r *txRepository) InsertLine(ctx context.Context, line LineItem) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO document_lines (document_id, position, description, quantity, width, height, unit_price, material_id, area, subtotal)
VALUES ($1, (SELECT COALESCE(MAX(position), 0) + 1 FROM document_lines WHERE document_id=$1), $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING id`, line.DocumentID, line.Description, line.Quantity, nullableDecimal(line.Width), nullableDecimal(line.Height),
		line.UnitPrice, line.MaterialID, line.Area, line.Subtotal).Scan(&id)
	return id, err
}

func (r *txRepository) UpdateLine(ctx context.Context, line LineItem) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE document_lines SET description=$3, quantity=$4, width=$5, height=$6, unit_price=$7,
material_id=$8, area=$9, subtotal=$10, updated_at=NOW() WHERE document_id=$1 AND id=$2`,
		line.DocumentID, line.ID, line.Description, line.Quantity, nullableDecimal(line.Width), nullableDecimal(line.Height),
		line.UnitPrice, line.MaterialID, line.Area, line.Subtotal)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrLineNotFound
	}
	return nil
}

func (r *txRepository) DeleteLine(ctx context.Context, documentID, lineID int64) error {
	cmd, err := r.tx.Exec(ctx, `DELETE FROM document_lines WHERE document_id=$1 AND id=$2`, documentID, lineID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrLineNotFound
	}
	return nil
}

func (r *txRepository) UpdateTotals(ctx context.Context, id int64, t Totals, actorID int64) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE documents SET total_area=$2, subtotal=$3, vat_amount=$4, perception_amount=$5,
gross_income_amount=$6, total=$7, updated_by=COALESCE(NULLIF($8, 0), updated_by), updated_at=NOW() WHERE id=$1`,
		id, t.TotalArea, t.Subtotal, t.VATAmount, t.PerceptionAmount, t.GrossIncomeAmount, t.Total, actorID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

func (r *txRepository) UpdateRates(ctx context.Context, id int64, rates Rates, actorID int64) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE documents SET vat_rate=$2, perception_rate=$3, gross_income_rate=$4,
updated_by=COALESCE(NULLIF($5, 0), updated_by), updated_at=NOW() WHERE id=$1`, id, rates.VAT, rates.Perception, rates.GrossIncome, actorID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

func (r *txRepository) UpdateStatus(ctx context.Context, id int64, status Status, actorID int64) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE documents SET status=$2, updated_by=COALESCE(NULLIF($3, 0), updated_by), updated_at=NOW() WHERE id=$1`, id, status, actorID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

func (r *txRepository) ContactExists(ctx context.Context, id int64) (bool, error) {
	var ok bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM contacts WHERE id=$1)`, id).Scan(&ok)
	return ok, err
}

func (r *txRepository) MaterialExists(ctx context.Context, id int64) (bool, error) {
	var ok bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM materials WHERE id=$1)`, id).Scan(&ok)
	return ok, err
}

func (r *txRepository) PaymentTermDays(ctx context.Context, contactID int64, termID *int64) (int, bool, error) {
	var days int
	if termID != nil {
		err := r.tx.QueryRow(ctx, `SELECT days FROM payment_terms WHERE id=$1`, *termID).Scan(&days)
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, fmt.Errorf("documents: payment term %d: %w", *termID, shared.ErrReference)
		}
		return days, err == nil, err
	}
	err := r.tx.QueryRow(ctx, `SELECT t.days FROM contact_accounts a JOIN payment_terms t ON t.id = a.payment_term_id
WHERE a.contact_id=$1`, contactID).Scan(&days)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	return days, err == nil, err
}

// GetDocument loads a document with its lines.
func (r *Repository) GetDocument(ctx context.Context, id int64) (Document, error) {
	doc, err := scanDocument(r.pool.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id=$1`, id))
	if err != nil {
		return Document{}, err
	}
	doc.Lines, err = queryLines(ctx, r.pool, id)
	if err != nil {
		return Document{}, err
	}
	return doc, nil
}

// ListDocuments returns documents matching filter without lines, newest first.
func (r *Repository) ListDocuments(ctx context.Context, filter ListFilter) ([]Document, int, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Kind != "" {
		args = append(args, filter.Kind)
		conds = append(conds, fmt.Sprintf("kind=$%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conds = append(conds, fmt.Sprintf("status=$%d", len(args)))
	}
	if filter.ContactID > 0 {
		args = append(args, filter.ContactID)
		conds = append(conds, fmt.Sprintf("contact_id=$%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM documents`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	args = append(args, limit, filter.Offset)
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM documents%s ORDER BY doc_date DESC, id DESC LIMIT $%d OFFSET $%d`,
		documentColumns, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, 0, err
		}
		docs = append(docs, doc)
	}
	return docs, total, rows.Err()
}

// ListRecomputable returns ids of documents whose lines may still change.
func (r *Repository) ListRecomputable(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM documents
WHERE NOT ((kind='INVOICE' AND status='ISSUED') OR (kind='PRODUCTION_ORDER' AND status='COMPLETED')
	OR (kind='BUDGET' AND status IN ('APPROVED','REJECTED')))
ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
