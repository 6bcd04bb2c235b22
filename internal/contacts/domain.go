package contacts

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rvgrafica/rvgrafica-erp/internal/shared"
)

// Contact is a client, a supplier or both.
type Contact struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	TradeName  string    `json:"trade_name,omitempty"`
	TaxID      string    `json:"tax_id"`
	Email      string    `json:"email,omitempty"`
	Phone      string    `json:"phone,omitempty"`
	Address    string    `json:"address,omitempty"`
	City       string    `json:"city,omitempty"`
	Province   string    `json:"province,omitempty"`
	IsClient   bool      `json:"is_client"`
	IsSupplier bool      `json:"is_supplier"`
	Notes      string    `json:"notes,omitempty"`
	CreatedBy  int64     `json:"created_by"`
	UpdatedBy  int64     `json:"updated_by"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// DisplayName prefers the trade name.
func (c Contact) DisplayName() string {
	if c.TradeName != "" {
		return c.TradeName
	}
	return c.Name
}

// CreateInput describes a new contact.
type CreateInput struct {
	Name       string `json:"name" validate:"required,max=255"`
	TradeName  string `json:"trade_name,omitempty" validate:"max=255"`
	TaxID      string `json:"tax_id" validate:"required,max=20"`
	Email      string `json:"email,omitempty" validate:"omitempty,email"`
	Phone      string `json:"phone,omitempty" validate:"max=50"`
	Address    string `json:"address,omitempty" validate:"max=255"`
	City       string `json:"city,omitempty" validate:"max=128"`
	Province   string `json:"province,omitempty" validate:"max=128"`
	IsClient   bool   `json:"is_client"`
	IsSupplier bool   `json:"is_supplier"`
	Notes      string `json:"notes,omitempty"`
	ActorID    int64  `json:"-"`
}

// Role narrows listings to clients or suppliers.
type Role string

const (
	RoleClient   Role = "client"
	RoleSupplier Role = "supplier"
)

// ListFilter narrows contact listings.
type ListFilter struct {
	Role   Role
	Search string
	Limit  int
	Offset int
}

var (
	// ErrContactNotFound indicates a missing contact.
	ErrContactNotFound = fmt.Errorf("contacts: contact not found: %w", shared.ErrNotFound)
	// ErrDuplicateTaxID indicates another contact holds the tax id.
	ErrDuplicateTaxID = fmt.Errorf("contacts: tax id already registered: %w", shared.ErrConflict)
)

// PaymentTerm is a named credit period, such as "30 días".
type PaymentTerm struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Days        int       `json:"days"`
	Description string    `json:"description,omitempty"`
	CreatedBy   int64     `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}

// DueDate is the day an invoice dated issued falls due under the term.
func (t PaymentTerm) DueDate(issued time.Time) time.Time {
	return issued.AddDate(0, 0, t.Days)
}

// PaymentTermInput describes a new payment term.
type PaymentTermInput struct {
	Name        string `json:"name" validate:"required,max=100"`
	Days        int    `json:"days" validate:"gte=0,lte=365"`
	Description string `json:"description,omitempty"`
	ActorID     int64  `json:"-"`
}

// Account holds the credit conditions agreed with a contact. Contacts
// without a stored account have no limit and no default term.
type Account struct {
	ContactID     int64           `json:"contact_id"`
	CreditLimit   decimal.Decimal `json:"credit_limit"`
	PaymentTermID *int64          `json:"payment_term_id,omitempty"`
	PaymentTerm   *PaymentTerm    `json:"payment_term,omitempty"`
	UpdatedBy     int64           `json:"updated_by"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// AccountInput replaces the credit conditions of a contact.
type AccountInput struct {
	CreditLimit   decimal.Decimal `json:"credit_limit"`
	PaymentTermID *int64          `json:"payment_term_id,omitempty" validate:"omitempty,gt=0"`
	ActorID       int64           `json:"-"`
}

var (
	// ErrPaymentTermNotFound indicates a missing payment term.
	ErrPaymentTermNotFound = fmt.Errorf("contacts: payment term not found: %w", shared.ErrNotFound)
	// ErrDuplicatePaymentTerm indicates another term holds the name.
	ErrDuplicatePaymentTerm = fmt.Errorf("contacts: payment term name already used: %w", shared.ErrConflict)
)
