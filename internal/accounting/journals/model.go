package journals

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/fiscalyears"
)

// JournalStatus enumerates journal lifecycle values.
type JournalStatus string

const (
	JournalStatusPosted JournalStatus = "posted"
)

// EntryKind is the display classification derived from reference and description.
type EntryKind string

const (
	EntryKindManual  EntryKind = "Manual"
	EntryKindInvoice EntryKind = "Invoice"
	EntryKindPayment EntryKind = "Payment"
)

// JournalEntry captures posting metadata.
type JournalEntry struct {
	ID           int64
	TenantID     string
	FiscalYearID int64
	Number       string
	Date         time.Time
	Description  string
	Reference    string
	Currency     string
	ExchangeRate decimal.Decimal
	Status       JournalStatus
	CreatedBy    string
	CreatedAt    time.Time
	Lines        []JournalLine
}

// JournalLine stores debit or credit amount for an account.
type JournalLine struct {
	ID          int64
	EntryID     int64
	AccountID   int64
	AccountName string
	Description string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
}

// Totals sums the debit and credit sides of the entry.
func (e JournalEntry) Totals() (debit, credit decimal.Decimal) {
	debit, credit = decimal.Zero, decimal.Zero
	for _, line := range e.Lines {
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	return debit, credit
}

// AccountNames lists the distinct account names of the lines in line order.
func (e JournalEntry) AccountNames() []string {
	seen := make(map[string]bool, len(e.Lines))
	var out []string
	for _, line := range e.Lines {
		if line.AccountName == "" || seen[line.AccountName] {
			continue
		}
		seen[line.AccountName] = true
		out = append(out, line.AccountName)
	}
	return out
}

// AccountsSummary joins up to limit account names with " / ", appending " ..." when some were cut.
// A non-positive limit keeps every name.
func (e JournalEntry) AccountsSummary(limit int) string {
	names := e.AccountNames()
	if limit <= 0 || len(names) <= limit {
		return strings.Join(names, " / ")
	}
	return strings.Join(names[:limit], " / ") + " ..."
}

// Kind classifies the entry: INV references or invoice descriptions are invoices,
// PAY references or payment descriptions are payments, anything else is manual.
func (e JournalEntry) Kind() EntryKind {
	ref := strings.ToUpper(e.Reference)
	desc := strings.ToUpper(e.Description)
	switch {
	case strings.HasPrefix(ref, "INV") || strings.Contains(desc, "INVOICE"):
		return EntryKindInvoice
	case strings.HasPrefix(ref, "PAY") || strings.Contains(desc, "PAYMENT"):
		return EntryKindPayment
	}
	return EntryKindManual
}

// ExportRow is one journal entry flattened for spreadsheets.
type ExportRow struct {
	Number      string
	Date        time.Time
	Kind        EntryKind
	Description string
	Accounts    string
	DebitTotal  decimal.Decimal
	CreditTotal decimal.Decimal
	Currency    string
	Status      JournalStatus
}

// ExportRowOf flattens e with the full account list.
func ExportRowOf(e JournalEntry) ExportRow {
	debit, credit := e.Totals()
	return ExportRow{
		Number:      e.Number,
		Date:        e.Date,
		Kind:        e.Kind(),
		Description: e.Description,
		Accounts:    e.AccountsSummary(0),
		DebitTotal:  debit,
		CreditTotal: credit,
		Currency:    e.Currency,
		Status:      e.Status,
	}
}

// CloseResult reports a completed fiscal year close.
type CloseResult struct {
	ClosedYear fiscalyears.FiscalYear
	NextYear   fiscalyears.FiscalYear
	Entry      JournalEntry
	NetProfit  decimal.Decimal
}

// BalanceDrift is an account whose stored balance differs from the sum of its lines.
type BalanceDrift struct {
	AccountID int64
	Code      string
	Stored    decimal.Decimal
	Computed  decimal.Decimal
}

// UnbalancedEntry is a persisted entry violating the debit = credit invariant.
type UnbalancedEntry struct {
	EntryID   int64
	Number    string
	Debit     decimal.Decimal
	Credit    decimal.Decimal
	LineCount int
}

// IntegrityReport lists ledger invariant violations for a tenant.
type IntegrityReport struct {
	TenantID   string
	Drifts     []BalanceDrift
	Unbalanced []UnbalancedEntry
}

// Healthy reports whether no violations were found.
func (r IntegrityReport) Healthy() bool {
	return len(r.Drifts) == 0 && len(r.Unbalanced) == 0
}
