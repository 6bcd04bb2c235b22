package documents

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rvgrafica/rvgrafica-erp/internal/numbering"
	"github.com/rvgrafica/rvgrafica-erp/internal/shared"
)

type memoryState struct {
	docs      map[int64]Document
	lines     map[int64]LineItem
	numbers   map[string]int64
	contacts  map[int64]bool
	materials map[int64]bool
	terms     map[int64]int
	defaults  map[int64]int64
	nextDoc   int64
	nextLine  int64
}

func (s memoryState) clone() memoryState {
	out := memoryState{
		docs:      make(map[int64]Document, len(s.docs)),
		lines:     make(map[int64]LineItem, len(s.lines)),
		numbers:   make(map[string]int64, len(s.numbers)),
		contacts:  s.contacts,
		materials: s.materials,
		terms:     s.terms,
		defaults:  s.defaults,
		nextDoc:   s.nextDoc,
		nextLine:  s.nextLine,
	}
	for k, v := range s.docs {
		out.docs[k] = v
	}
	for k, v := range s.lines {
		out.lines[k] = v
	}
	for k, v := range s.numbers {
		out.numbers[k] = v
	}
	return out
}

// memoryRepo applies a transaction to a copy of the state and swaps it in
// only when fn succeeds.
type memoryRepo struct {
	mu        sync.Mutex
	state     memoryState
	seq       *numbering.MemorySequencer
	conflicts int
	txCount   int
	// aborts fail the next transactions after fn ran, as a commit would.
	aborts []error
	// afterRead runs once GetDocument has taken its copy, outside the lock.
	afterRead func()
}

type memoryTx struct {
	repo  *memoryRepo
	state *memoryState
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		state: memoryState{
			docs:      make(map[int64]Document),
			lines:     make(map[int64]LineItem),
			numbers:   make(map[string]int64),
			contacts:  map[int64]bool{1: true, 2: true},
			materials: map[int64]bool{10: true},
			terms:     map[int64]int{30: 30, 60: 60},
			defaults:  map[int64]int64{2: 60},
		},
		seq: numbering.NewMemorySequencer(),
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.txCount++
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

func (r *memoryRepo) GetDocument(ctx context.Context, id int64) (Document, error) {
	r.mu.Lock()
	doc, ok := r.state.docs[id]
	if ok {
		doc.Lines = linesOf(r.state, id)
	}
	hook := r.afterRead
	r.afterRead = nil
	r.mu.Unlock()
	if hook != nil {
		hook()
	}
	if !ok {
		return Document{}, ErrDocumentNotFound
	}
	return doc, nil
}

func (r *memoryRepo) ListDocuments(ctx context.Context, filter ListFilter) ([]Document, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Document
	for _, doc := range r.state.docs {
		if filter.Kind != "" && doc.Kind != filter.Kind {
			continue
		}
		out = append(out, doc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (r *memoryRepo) ListRecomputable(ctx context.Context) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []int64
	for id, doc := range r.state.docs {
		if !LinesLocked(doc.Kind, doc.Status) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func linesOf(s memoryState, documentID int64) []LineItem {
	var out []LineItem
	for _, line := range s.lines {
		if line.DocumentID == documentID {
			out = append(out, line)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

func (tx *memoryTx) NextSequence(ctx context.Context, prefix, period string) (int64, error) {
	return tx.repo.seq.NextSequence(ctx, prefix, period)
}

func (tx *memoryTx) InsertDocument(ctx context.Context, doc Document) (int64, error) {
	if tx.repo.conflicts > 0 {
		tx.repo.conflicts--
		return 0, ErrNumberTaken
	}
	if _, taken := tx.state.numbers[doc.Number]; taken {
		return 0, ErrNumberTaken
	}
	tx.state.nextDoc++
	doc.ID = tx.state.nextDoc
	tx.state.docs[doc.ID] = doc
	tx.state.numbers[doc.Number] = doc.ID
	return doc.ID, nil
}

func (tx *memoryTx) GetDocumentForUpdate(ctx context.Context, id int64) (Document, error) {
	doc, ok := tx.state.docs[id]
	if !ok {
		return Document{}, ErrDocumentNotFound
	}
	return doc, nil
}

func (tx *memoryTx) ListLines(ctx context.Context, documentID int64) ([]LineItem, error) {
	return linesOf(*tx.state, documentID), nil
}

func (tx *memoryTx) GetLine(ctx context.Context, documentID, lineID int64) (LineItem, error) {
	line, ok := tx.state.lines[lineID]
	if !ok || line.DocumentID != documentID {
		return LineItem{}, ErrLineNotFound
	}
	return line, nil
}

func (tx *memoryTx) InsertLine(ctx context.Context, line LineItem) (int64, error) {
	tx.state.nextLine++
	line.ID = tx.state.nextLine
	line.Position = len(linesOf(*tx.state, line.DocumentID)) + 1
	tx.state.lines[line.ID] = line
	return line.ID, nil
}

func (tx *memoryTx) UpdateLine(ctx context.Context, line LineItem) error {
	current, ok := tx.state.lines[line.ID]
	if !ok || current.DocumentID != line.DocumentID {
		return ErrLineNotFound
	}
	tx.state.lines[line.ID] = line
	return nil
}

func (tx *memoryTx) DeleteLine(ctx context.Context, documentID, lineID int64) error {
	current, ok := tx.state.lines[lineID]
	if !ok || current.DocumentID != documentID {
		return ErrLineNotFound
	}
	delete(tx.state.lines, lineID)
	return nil
}

func (tx *memoryTx) UpdateTotals(ctx context.Context, id int64, totals Totals, actorID int64) error {
	doc, ok := tx.state.docs[id]
	if !ok {
		return ErrDocumentNotFound
	}
	doc.Totals = totals
	if actorID != 0 {
		doc.UpdatedBy = actorID
	}
	tx.state.docs[id] = doc
	return nil
}

func (tx *memoryTx) UpdateRates(ctx context.Context, id int64, rates Rates, actorID int64) error {
	doc, ok := tx.state.docs[id]
	if !ok {
		return ErrDocumentNotFound
	}
	doc.Rates = rates
	tx.state.docs[id] = doc
	return nil
}

func (tx *memoryTx) UpdateStatus(ctx context.Context, id int64, status Status, actorID int64) error {
	doc, ok := tx.state.docs[id]
	if !ok {
		return ErrDocumentNotFound
	}
	doc.Status = status
	if actorID != 0 {
		doc.UpdatedBy = actorID
	}
	tx.state.docs[id] = doc
	return nil
}

// PaymentTermDays knows terms 30 and 60; contact 2 defaults to 60 days.
func (tx *memoryTx) PaymentTermDays(ctx context.Context, contactID int64, termID *int64) (int, bool, error) {
	if termID != nil {
		days, ok := tx.state.terms[*termID]
		if !ok {
			return 0, false, fmt.Errorf("documents: payment term %d: %w", *termID, shared.ErrReference)
		}
		return days, true, nil
	}
	term, ok := tx.state.defaults[contactID]
	if !ok {
		return 0, false, nil
	}
	return tx.state.terms[term], true, nil
}

func (tx *memoryTx) ContactExists(ctx context.Context, id int64) (bool, error) {
	return tx.state.contacts[id], nil
}

func (tx *memoryTx) MaterialExists(ctx context.Context, id int64) (bool, error) {
	return tx.state.materials[id], nil
}

type recordingIntegration struct {
	events []InvoiceIssuedEvent
	err    error
}

func (r *recordingIntegration) HandleInvoiceIssued(ctx context.Context, evt InvoiceIssuedEvent) error {
	r.events = append(r.events, evt)
	return r.err
}
