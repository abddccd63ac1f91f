package accounts

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// AccountType enumerates CoA categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "asset"
	AccountTypeLiability AccountType = "liability"
	AccountTypeEquity    AccountType = "equity"
	AccountTypeRevenue   AccountType = "revenue"
	AccountTypeExpense   AccountType = "expense"
)

// Valid reports whether t is a known account type.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeRevenue, AccountTypeExpense:
		return true
	}
	return false
}

// Code classes of the chart of accounts.
const (
	ClassRevenue = "4"
	ClassExpense = "5"
	// ProfitLossCode is the equity account receiving the yearly result.
	ProfitLossCode = "32"
)

// Account models a chart of accounts node. Balance is the running sum of debit minus credit.
type Account struct {
	ID        int64
	TenantID  string
	Code      string
	Name      string
	Type      AccountType
	ParentID  *int64
	Balance   decimal.Decimal
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsNominal reports whether the account is zeroed at year end (revenue or expense class).
func (a Account) IsNominal() bool {
	return IsNominalCode(a.Code)
}

// IsNominalCode reports whether code belongs to class 4 or 5.
func IsNominalCode(code string) bool {
	return strings.HasPrefix(code, ClassRevenue) || strings.HasPrefix(code, ClassExpense)
}

// CreateInput carries the fields of a new account.
type CreateInput struct {
	TenantID string
	Code     string
	Name     string
	Type     AccountType
	ParentID *int64
}
