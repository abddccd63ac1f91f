package journals

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

const dateLayout = "2006-01-02"

// PostingLineInput describes a journal line for posting request.
type PostingLineInput struct {
	AccountID   int64
	Description string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
}

// PostingInput groups fields required to create a journal entry.
type PostingInput struct {
	TenantID       string
	UserID         string
	Date           time.Time
	Description    string
	Reference      string
	Currency       string
	ExchangeRate   *decimal.Decimal
	IdempotencyKey uuid.UUID
	Lines          []PostingLineInput
}

// Validate ensures posting input meets minimum criteria.
func (in PostingInput) Validate() error {
	_, err := in.normalize()
	return err
}

// normalize returns a copy with calendar date, trimmed text and cent-rounded lines.
// Balance is checked on the rounded amounts so the persisted entry is balanced.
func (in PostingInput) normalize() (PostingInput, error) {
	out := in
	out.TenantID = strings.TrimSpace(in.TenantID)
	if out.TenantID == "" {
		return PostingInput{}, shared.ErrTenantRequired
	}
	if in.Date.IsZero() {
		return PostingInput{}, shared.ErrInvalidDate
	}
	out.Date = NormalizeDate(in.Date)
	out.Description = strings.TrimSpace(in.Description)
	out.Reference = strings.TrimSpace(in.Reference)
	out.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	if in.ExchangeRate != nil && !in.ExchangeRate.IsPositive() {
		return PostingInput{}, shared.ErrInvalidExchangeRate
	}
	lines, err := normalizeLines(in.Lines, out.Description)
	if err != nil {
		return PostingInput{}, err
	}
	out.Lines = lines
	return out, nil
}

func normalizeLines(lines []PostingLineInput, defaultDescription string) ([]PostingLineInput, error) {
	if len(lines) < 2 {
		return nil, shared.ErrTooFewLines
	}
	out := make([]PostingLineInput, len(lines))
	debit, credit := decimal.Zero, decimal.Zero
	for idx, line := range lines {
		if line.AccountID <= 0 {
			return nil, fmt.Errorf("line %d: %w", idx, shared.ErrMissingAccountID)
		}
		if line.Debit.IsNegative() || line.Credit.IsNegative() {
			return nil, fmt.Errorf("line %d: %w", idx, shared.ErrNegativeAmount)
		}
		line.Debit = shared.Round2(line.Debit)
		line.Credit = shared.Round2(line.Credit)
		line.Description = strings.TrimSpace(line.Description)
		if line.Description == "" {
			line.Description = defaultDescription
		}
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
		out[idx] = line
	}
	if !shared.Negligible(debit.Sub(credit)) {
		return nil, shared.ErrUnbalanced
	}
	return out, nil
}

// NormalizeDate keeps the calendar date of t in its own location, as UTC midnight.
func NormalizeDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate accepts YYYY-MM-DD or a timestamp whose time part follows a 'T'.
func ParseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if idx := strings.IndexByte(raw, 'T'); idx >= 0 {
		raw = raw[:idx]
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", shared.ErrInvalidDate, raw)
	}
	return t, nil
}
