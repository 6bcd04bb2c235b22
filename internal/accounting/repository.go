package accounting

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rvgrafica/rvgrafica-erp/internal/platform/db"
	"github.com/rvgrafica/rvgrafica-erp/internal/shared"
)

const sourceConstraint = "uq_journal_entries_source"

// TxRepository exposes the ledger operations available inside a transaction.
type TxRepository interface {
	ChartStore
	FindEntryBySource(ctx context.Context, module string, sourceID uuid.UUID) (int64, bool, error)
	InsertEntry(ctx context.Context, in EntryInput) (int64, error)
	InsertLines(ctx context.Context, entryID int64, lines []PostingLine) error
}

// Repository persists the chart and the journal.
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
		return errors.New("accounting repository not initialised")
	}
	return db.WithWriteTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// EnsureAccount inserts the account or returns the row already holding its
// code. The no-op update makes the returned row the one that won the code,
// even when a concurrent transaction committed it first.
func (r *txRepository) EnsureAccount(ctx context.Context, spec AccountSpec, parentID *int64) (Account, error) {
	var a Account
	err := r.tx.QueryRow(ctx, `INSERT INTO accounts (code, name, parent_id, is_leaf) VALUES ($1,$2,$3,TRUE)
ON CONFLICT (code) DO UPDATE SET code = accounts.code
RETURNING id, code, name, parent_id, is_leaf, created_at`, spec.Code, spec.Name, parentID).
		Scan(&a.ID, &a.Code, &a.Name, &a.ParentID, &a.IsLeaf, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, fmt.Errorf("%w: %s", ErrAccountNotFound, spec.Code)
		}
		return Account{}, err
	}
	return a, nil
}

func (r *txRepository) MarkNonLeaf(ctx context.Context, accountID int64) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE accounts SET is_leaf=FALSE WHERE id=$1`, accountID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (r *txRepository) FindEntryBySource(ctx context.Context, module string, sourceID uuid.UUID) (int64, bool, error) {
	return entryIDBySource(ctx, r.tx, module, sourceID)
}

func (r *txRepository) InsertEntry(ctx context.Context, in EntryInput) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO journal_entries (entry_date, description, reference, source_module, source_id, posted_by)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`, in.Date, in.Description, in.Reference, in.SourceModule, in.SourceID, nullInt(in.PostedBy)).Scan(&id)
	if err != nil {
		if shared.IsUniqueViolation(err, sourceConstraint) {
			return 0, errSourceTaken
		}
		return 0, err
	}
	return id, nil
}

func (r *txRepository) InsertLines(ctx context.Context, entryID int64, lines []PostingLine) error {
	batch := &pgx.Batch{}
	for _, line := range lines {
		batch.Queue(`INSERT INTO journal_lines (entry_id, account_id, description, debit, credit) VALUES ($1,$2,$3,$4,$5)`,
			entryID, line.AccountID, line.Description, line.Debit, line.Credit)
	}
	return r.tx.SendBatch(ctx, batch).Close()
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func entryIDBySource(ctx context.Context, q rowQuerier, module string, sourceID uuid.UUID) (int64, bool, error) {
	var id int64
	err := q.QueryRow(ctx, `SELECT id FROM journal_entries WHERE source_module=$1 AND source_id=$2`, module, sourceID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return id, true, nil
}

// EntryIDBySource looks up the entry posted for a source outside any transaction.
func (r *Repository) EntryIDBySource(ctx context.Context, module string, sourceID uuid.UUID) (int64, bool, error) {
	return entryIDBySource(ctx, r.pool, module, sourceID)
}

const entryColumns = `id, entry_date, description, reference, source_module, source_id, COALESCE(posted_by, 0), created_at`

func scanEntry(row pgx.Row) (JournalEntry, error) {
	var e JournalEntry
	err := row.Scan(&e.ID, &e.Date, &e.Description, &e.Reference, &e.SourceModule, &e.SourceID, &e.PostedBy, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, ErrEntryNotFound
		}
		return JournalEntry{}, err
	}
	return e, nil
}

// GetEntry loads an entry with its lines.
func (r *Repository) GetEntry(ctx context.Context, id int64) (JournalEntry, error) {
	entry, err := scanEntry(r.pool.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE id=$1`, id))
	if err != nil {
		return JournalEntry{}, err
	}
	rows, err := r.pool.Query(ctx, `SELECT l.id, l.entry_id, l.account_id, a.code, a.name, l.description, l.debit, l.credit
FROM journal_lines l JOIN accounts a ON a.id = l.account_id WHERE l.entry_id=$1 ORDER BY l.id`, id)
	if err != nil {
		return JournalEntry{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line JournalLine
		if err := rows.Scan(&line.ID, &line.EntryID, &line.AccountID, &line.AccountCode, &line.AccountName, &line.Description, &line.Debit, &line.Credit); err != nil {
			return JournalEntry{}, err
		}
		entry.Lines = append(entry.Lines, line)
	}
	return entry, rows.Err()
}

// ListEntries returns entry headers matching filter, newest first.
func (r *Repository) ListEntries(ctx context.Context, filter EntryFilter) ([]JournalEntry, int, error) {
	var (
		conds []string
		args  []any
	)
	if filter.SourceModule != "" {
		args = append(args, strings.ToUpper(filter.SourceModule))
		conds = append(conds, fmt.Sprintf("source_module=$%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		conds = append(conds, fmt.Sprintf("entry_date >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		conds = append(conds, fmt.Sprintf("entry_date <= $%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM journal_entries`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	args = append(args, limit, filter.Offset)
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM journal_entries%s ORDER BY entry_date DESC, id DESC LIMIT $%d OFFSET $%d`,
		entryColumns, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var entries []JournalEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, entry)
	}
	return entries, total, rows.Err()
}

// ListAccounts retrieves the chart ordered by code.
func (r *Repository) ListAccounts(ctx context.Context) ([]Account, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, code, name, parent_id, is_leaf, created_at FROM accounts ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.Code, &a.Name, &a.ParentID, &a.IsLeaf, &a.CreatedAt); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// UnbalancedEntries reports entries whose lines break the double entry rule.
func (r *Repository) UnbalancedEntries(ctx context.Context) ([]EntryIssue, error) {
	rows, err := r.pool.Query(ctx, `SELECT e.id, COALESCE(SUM(l.debit), 0), COALESCE(SUM(l.credit), 0),
COALESCE(BOOL_OR(l.debit > 0 AND l.credit > 0), FALSE)
FROM journal_entries e LEFT JOIN journal_lines l ON l.entry_id = e.id
GROUP BY e.id
HAVING COALESCE(SUM(l.debit), 0) <> COALESCE(SUM(l.credit), 0) OR COALESCE(BOOL_OR(l.debit > 0 AND l.credit > 0), FALSE)
ORDER BY e.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var issues []EntryIssue
	for rows.Next() {
		var issue EntryIssue
		if err := rows.Scan(&issue.EntryID, &issue.Debit, &issue.Credit, &issue.MixedLine); err != nil {
			return nil, err
		}
		issues = append(issues, issue)
	}
	return issues, rows.Err()
}

func nullInt(val int64) any {
	if val == 0 {
		return nil
	}
	return val
}
