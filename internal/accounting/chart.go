package accounting

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rvgrafica/rvgrafica-erp/internal/shared"
)

// Role names the function an account plays in a posting template.
type Role string

const (
	RoleReceivable         Role = "receivable"
	RoleCash               Role = "cash"
	RoleVATCredit          Role = "vat_credit"
	RolePerceptionCredit   Role = "perception_credit"
	RoleGrossIncomeCredit  Role = "gross_income_credit"
	RoleVATPayable         Role = "vat_payable"
	RolePayable            Role = "payable"
	RolePerceptionPayable  Role = "perception_payable"
	RoleGrossIncomePayable Role = "gross_income_payable"
	RoleSales              Role = "sales"
	RolePurchases          Role = "purchases"
)

// ExpenseRole is the role of the expense account for a category.
func ExpenseRole(category ExpenseCategory) Role {
	return Role("expense:" + strings.ToLower(string(category)))
}

// AccountSpec is the code and default name an account is created with.
type AccountSpec struct {
	Code       string
	Name       string
	ParentCode string
}

var expenseParent = AccountSpec{Code: "5.1", Name: "Gastos"}

// DefaultChart maps every posting role to its account.
func DefaultChart() map[Role]AccountSpec {
	chart := map[Role]AccountSpec{
		RoleReceivable:         {Code: "1.1", Name: "Clientes"},
		RoleCash:               {Code: "1.2", Name: "Caja y Bancos"},
		RoleVATCredit:          {Code: "1.3", Name: "IVA Crédito Fiscal"},
		RolePerceptionCredit:   {Code: "1.4", Name: "Percepciones Sufridas"},
		RoleGrossIncomeCredit:  {Code: "1.5", Name: "Ingresos Brutos a Favor"},
		RoleVATPayable:         {Code: "2.1", Name: "IVA Débito Fiscal"},
		RolePayable:            {Code: "2.2", Name: "Proveedores"},
		RolePerceptionPayable:  {Code: "2.3", Name: "Percepciones a Depositar"},
		RoleGrossIncomePayable: {Code: "2.4", Name: "Ingresos Brutos a Pagar"},
		RoleSales:              {Code: "4.1", Name: "Ventas"},
		RolePurchases:          {Code: "5.2", Name: "Compras"},
	}
	for idx, category := range ExpenseCategories() {
		chart[ExpenseRole(category)] = AccountSpec{
			Code:       fmt.Sprintf("5.1.%02d", idx+1),
			Name:       "Gastos " + category.Label(),
			ParentCode: expenseParent.Code,
		}
	}
	return chart
}

// ChartStore is the persistence the resolver needs. EnsureAccount must insert
// the account when the code is free and return the stored row either way.
type ChartStore interface {
	EnsureAccount(ctx context.Context, spec AccountSpec, parentID *int64) (Account, error)
	MarkNonLeaf(ctx context.Context, accountID int64) error
}

// ChartResolver turns roles into leaf accounts, creating missing accounts
// from the chart on first use.
type ChartResolver struct {
	roles map[Role]AccountSpec
	known map[string]AccountSpec
}

// NewChartResolver builds a resolver over chart.
func NewChartResolver(chart map[Role]AccountSpec) *ChartResolver {
	known := map[string]AccountSpec{expenseParent.Code: expenseParent}
	for _, spec := range chart {
		known[spec.Code] = spec
	}
	return &ChartResolver{roles: chart, known: known}
}

// SpecFor returns the account spec bound to role.
func (r *ChartResolver) SpecFor(role Role) (AccountSpec, error) {
	spec, ok := r.roles[role]
	if !ok {
		return AccountSpec{}, fmt.Errorf("accounting: unknown role %q: %w", role, shared.ErrValidation)
	}
	return spec, nil
}

// Specs lists every account of the chart, parents first.
func (r *ChartResolver) Specs() []AccountSpec {
	out := make([]AccountSpec, 0, len(r.known))
	for _, spec := range r.known {
		out = append(out, spec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// Resolve returns the account with spec.Code, creating it and its parent when
// missing. A parent that gains a child stops being a leaf.
func (r *ChartResolver) Resolve(ctx context.Context, store ChartStore, spec AccountSpec) (Account, error) {
	if strings.TrimSpace(spec.Code) == "" {
		return Account{}, fmt.Errorf("accounting: account code required: %w", shared.ErrValidation)
	}
	if spec.Name == "" {
		spec.Name = spec.Code
	}
	var parentID *int64
	if spec.ParentCode != "" {
		if spec.ParentCode == spec.Code {
			return Account{}, fmt.Errorf("accounting: account %s is its own parent: %w", spec.Code, shared.ErrValidation)
		}
		parentSpec, ok := r.known[spec.ParentCode]
		if !ok {
			parentSpec = AccountSpec{Code: spec.ParentCode, Name: spec.ParentCode}
		}
		parent, err := r.Resolve(ctx, store, parentSpec)
		if err != nil {
			return Account{}, err
		}
		if parent.IsLeaf {
			if err := store.MarkNonLeaf(ctx, parent.ID); err != nil {
				return Account{}, err
			}
		}
		parentID = &parent.ID
	}
	return store.EnsureAccount(ctx, spec, parentID)
}

// ResolveRole resolves role to a leaf account.
func (r *ChartResolver) ResolveRole(ctx context.Context, store ChartStore, role Role) (Account, error) {
	spec, err := r.SpecFor(role)
	if err != nil {
		return Account{}, err
	}
	account, err := r.Resolve(ctx, store, spec)
	if err != nil {
		return Account{}, err
	}
	if !account.IsLeaf {
		return Account{}, fmt.Errorf("accounting: account %s is not a leaf: %w", account.Code, shared.ErrValidation)
	}
	return account, nil
}

// Tree is the chart held as an arena indexed by code.
type Tree struct {
	nodes    []Account
	byCode   map[string]int
	byID     map[int64]int
	children map[int][]int
	roots    []int
}

// BuildTree indexes accounts. Accounts whose parent is not in the set are
// reported as a reference error.
func BuildTree(accounts []Account) (*Tree, error) {
	sorted := append([]Account(nil), accounts...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Code < sorted[j].Code })
	t := &Tree{
		nodes:    sorted,
		byCode:   make(map[string]int, len(sorted)),
		byID:     make(map[int64]int, len(sorted)),
		children: make(map[int][]int),
	}
	for idx, acc := range sorted {
		if _, dup := t.byCode[acc.Code]; dup {
			return nil, fmt.Errorf("accounting: duplicate account code %s: %w", acc.Code, shared.ErrConflict)
		}
		t.byCode[acc.Code] = idx
		t.byID[acc.ID] = idx
	}
	for idx, acc := range sorted {
		if acc.ParentID == nil {
			t.roots = append(t.roots, idx)
			continue
		}
		parent, ok := t.byID[*acc.ParentID]
		if !ok {
			return nil, fmt.Errorf("accounting: account %s has unknown parent %d: %w", acc.Code, *acc.ParentID, shared.ErrReference)
		}
		t.children[parent] = append(t.children[parent], idx)
	}
	return t, nil
}

// Get returns the account with code.
func (t *Tree) Get(code string) (Account, bool) {
	idx, ok := t.byCode[code]
	if !ok {
		return Account{}, false
	}
	return t.nodes[idx], true
}

// Roots returns top level accounts ordered by code.
func (t *Tree) Roots() []Account {
	return t.collect(t.roots)
}

// Children returns the direct children of code ordered by code.
func (t *Tree) Children(code string) []Account {
	idx, ok := t.byCode[code]
	if !ok {
		return nil
	}
	return t.collect(t.children[idx])
}

// Path returns the accounts from the root down to code.
func (t *Tree) Path(code string) []Account {
	idx, ok := t.byCode[code]
	if !ok {
		return nil
	}
	var path []Account
	for steps := 0; steps <= len(t.nodes); steps++ {
		acc := t.nodes[idx]
		path = append(path, acc)
		if acc.ParentID == nil {
			break
		}
		idx = t.byID[*acc.ParentID]
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

func (t *Tree) collect(idxs []int) []Account {
	out := make([]Account, 0, len(idxs))
	for _, idx := range idxs {
		out = append(out, t.nodes[idx])
	}
	return out
}
