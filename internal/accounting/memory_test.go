package accounting

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type memoryLedger struct {
	accounts map[string]Account
	entries  map[int64]JournalEntry
	nextAcc  int64
	nextID   int64
}

func (l memoryLedger) clone() memoryLedger {
	out := memoryLedger{
		accounts: make(map[string]Account, len(l.accounts)),
		entries:  make(map[int64]JournalEntry, len(l.entries)),
		nextAcc:  l.nextAcc,
		nextID:   l.nextID,
	}
	for k, v := range l.accounts {
		out.accounts[k] = v
	}
	for k, v := range l.entries {
		v.Lines = append([]JournalLine(nil), v.Lines...)
		out.entries[k] = v
	}
	return out
}

// memoryRepo commits a transaction by swapping in the working copy.
type memoryRepo struct {
	mu     sync.Mutex
	state  memoryLedger
	txs    int
	raceOn bool
	// aborts fail the next transactions after fn ran, as a commit would.
	aborts []error
}

type memoryTx struct {
	repo  *memoryRepo
	state *memoryLedger
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{state: memoryLedger{
		accounts: make(map[string]Account),
		entries:  make(map[int64]JournalEntry),
	}}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.txs++
	working := r.state.clone()
	if err := fn(ctx, &memoryTx{repo: r, state: &working}); err != nil {
		return err
	}
	if len(r.aborts) > 0 {
		err := r.aborts[0]
		r.aborts = r.aborts[1:]
		return err
	}
	r.state = working
	return nil
}

func (r *memoryRepo) EntryIDBySource(ctx context.Context, module string, sourceID uuid.UUID) (int64, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return findBySource(r.state, module, sourceID)
}

func findBySource(state memoryLedger, module string, sourceID uuid.UUID) (int64, bool, error) {
	for id, entry := range state.entries {
		if entry.SourceModule == module && entry.SourceID == sourceID {
			return id, true, nil
		}
	}
	return 0, false, nil
}

func (r *memoryRepo) GetEntry(ctx context.Context, id int64) (JournalEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.state.entries[id]
	if !ok {
		return JournalEntry{}, ErrEntryNotFound
	}
	return entry, nil
}

func (r *memoryRepo) ListEntries(ctx context.Context, filter EntryFilter) ([]JournalEntry, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []JournalEntry
	for _, entry := range r.state.entries {
		if filter.SourceModule != "" && entry.SourceModule != filter.SourceModule {
			continue
		}
		entry.Lines = nil
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, len(out), nil
}

func (r *memoryRepo) ListAccounts(ctx context.Context) ([]Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Account, 0, len(r.state.accounts))
	for _, acc := range r.state.accounts {
		out = append(out, acc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (r *memoryRepo) UnbalancedEntries(ctx context.Context) ([]EntryIssue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var issues []EntryIssue
	for id, entry := range r.state.entries {
		issue := EntryIssue{EntryID: id, Debit: decimal.Zero, Credit: decimal.Zero}
		for _, line := range entry.Lines {
			issue.Debit = issue.Debit.Add(line.Debit)
			issue.Credit = issue.Credit.Add(line.Credit)
			if line.Debit.IsPositive() && line.Credit.IsPositive() {
				issue.MixedLine = true
			}
		}
		if !issue.Debit.Equal(issue.Credit) || issue.MixedLine {
			issues = append(issues, issue)
		}
	}
	sort.Slice(issues, func(i, j int) bool { return issues[i].EntryID < issues[j].EntryID })
	return issues, nil
}

func (tx *memoryTx) EnsureAccount(ctx context.Context, spec AccountSpec, parentID *int64) (Account, error) {
	if acc, ok := tx.state.accounts[spec.Code]; ok {
		return acc, nil
	}
	tx.state.nextAcc++
	acc := Account{ID: tx.state.nextAcc, Code: spec.Code, Name: spec.Name, ParentID: parentID, IsLeaf: true}
	tx.state.accounts[spec.Code] = acc
	return acc, nil
}

func (tx *memoryTx) MarkNonLeaf(ctx context.Context, accountID int64) error {
	for code, acc := range tx.state.accounts {
		if acc.ID == accountID {
			acc.IsLeaf = false
			tx.state.accounts[code] = acc
			return nil
		}
	}
	return ErrAccountNotFound
}

func (tx *memoryTx) FindEntryBySource(ctx context.Context, module string, sourceID uuid.UUID) (int64, bool, error) {
	if tx.repo.raceOn {
		// a concurrent poster commits between the check and the insert
		return 0, false, nil
	}
	return findBySource(*tx.state, module, sourceID)
}

func (tx *memoryTx) InsertEntry(ctx context.Context, in EntryInput) (int64, error) {
	if _, found, _ := findBySource(*tx.state, in.SourceModule, in.SourceID); found {
		return 0, errSourceTaken
	}
	tx.state.nextID++
	tx.state.entries[tx.state.nextID] = JournalEntry{
		ID:           tx.state.nextID,
		Date:         in.Date,
		Description:  in.Description,
		Reference:    in.Reference,
		SourceModule: in.SourceModule,
		SourceID:     in.SourceID,
		PostedBy:     in.PostedBy,
	}
	return tx.state.nextID, nil
}

func (tx *memoryTx) InsertLines(ctx context.Context, entryID int64, lines []PostingLine) error {
	entry := tx.state.entries[entryID]
	for idx, line := range lines {
		var name string
		for _, acc := range tx.state.accounts {
			if acc.ID == line.AccountID {
				name = acc.Name
			}
		}
		entry.Lines = append(entry.Lines, JournalLine{
			ID:          int64(idx + 1),
			EntryID:     entryID,
			AccountID:   line.AccountID,
			AccountCode: line.AccountCode,
			AccountName: name,
			Description: line.Description,
			Debit:       line.Debit,
			Credit:      line.Credit,
		})
	}
	tx.state.entries[entryID] = entry
	return nil
}
