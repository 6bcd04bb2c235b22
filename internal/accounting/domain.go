package accounting

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rvgrafica/rvgrafica-erp/internal/shared"
)

// Account models a chart of accounts node. Only leaves receive postings.
type Account struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	ParentID  *int64    `json:"parent_id,omitempty"`
	IsLeaf    bool      `json:"is_leaf"`
	CreatedAt time.Time `json:"created_at"`
}

// Side is the column a journal line is booked on.
type Side string

const (
	Debit  Side = "DEBIT"
	Credit Side = "CREDIT"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == Debit {
		return Credit
	}
	return Debit
}

// JournalEntry is an append-only balanced posting of one business event.
type JournalEntry struct {
	ID           int64         `json:"id"`
	Date         time.Time     `json:"date"`
	Description  string        `json:"description"`
	Reference    string        `json:"reference,omitempty"`
	SourceModule string        `json:"source_module"`
	SourceID     uuid.UUID     `json:"source_id"`
	PostedBy     int64         `json:"posted_by"`
	CreatedAt    time.Time     `json:"created_at"`
	Lines        []JournalLine `json:"lines,omitempty"`
}

// JournalLine books an amount on exactly one side of an account.
type JournalLine struct {
	ID          int64           `json:"id"`
	EntryID     int64           `json:"entry_id"`
	AccountID   int64           `json:"account_id"`
	AccountCode string          `json:"account_code,omitempty"`
	AccountName string          `json:"account_name,omitempty"`
	Description string          `json:"description,omitempty"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
}

// TemplateLine is a posting line before its role is resolved to an account.
type TemplateLine struct {
	Role        Role
	Side        Side
	Amount      decimal.Decimal
	Description string
}

// PostingLine is a resolved line ready to persist.
type PostingLine struct {
	AccountID   int64
	AccountCode string
	Description string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
}

// EntryInput is the header of a new journal entry.
type EntryInput struct {
	Date         time.Time
	Description  string
	Reference    string
	SourceModule string
	SourceID     uuid.UUID
	PostedBy     int64
}

// EntryFilter narrows journal listings.
type EntryFilter struct {
	SourceModule string
	From         *time.Time
	To           *time.Time
	Limit        int
	Offset       int
}

// EntryIssue reports a persisted entry that breaks the double entry rule.
type EntryIssue struct {
	EntryID   int64           `json:"entry_id"`
	Debit     decimal.Decimal `json:"debit"`
	Credit    decimal.Decimal `json:"credit"`
	MixedLine bool            `json:"mixed_line"`
}

// AlreadyPostedError is returned when an event already produced an entry.
type AlreadyPostedError struct {
	EntryID      int64
	SourceModule string
	SourceID     uuid.UUID
}

func (e *AlreadyPostedError) Error() string {
	return fmt.Sprintf("accounting: %s %s already posted as entry %d", e.SourceModule, e.SourceID, e.EntryID)
}

func (e *AlreadyPostedError) Unwrap() error {
	return shared.ErrAlreadyPosted
}

var (
	// ErrEntryNotFound indicates a missing journal entry.
	ErrEntryNotFound = fmt.Errorf("accounting: journal entry not found: %w", shared.ErrNotFound)
	// ErrAccountNotFound indicates a missing account.
	ErrAccountNotFound = fmt.Errorf("accounting: account not found: %w", shared.ErrReference)
	// errSourceTaken signals the source uniqueness constraint fired.
	errSourceTaken = fmt.Errorf("accounting: source already linked: %w", shared.ErrAlreadyPosted)
)
