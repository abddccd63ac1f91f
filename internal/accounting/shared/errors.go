package shared

import (
	"errors"
	"fmt"
)

// Kind classifies ledger failures for callers that must decide whether to retry or surface.
type Kind string

const (
	KindValidation     Kind = "validation"
	KindNotFound       Kind = "not_found"
	KindMissingAccount Kind = "missing_account"
	KindNoOpenYear     Kind = "no_open_year"
	KindNothingToClose Kind = "nothing_to_close"
	KindTransient      Kind = "transient"
	KindInternal       Kind = "internal"
)

// Error is a typed ledger error carrying a kind and a human readable message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

var (
	// ErrUnbalanced indicates debit != credit.
	ErrUnbalanced = newError(KindValidation, "accounting: journal lines must balance")
	// ErrTooFewLines indicates less than two lines.
	ErrTooFewLines = newError(KindValidation, "accounting: journal requires at least two lines")
	// ErrNegativeAmount indicates a negative debit or credit.
	ErrNegativeAmount = newError(KindValidation, "accounting: line amounts must not be negative")
	// ErrMissingAccountID indicates a line without account reference.
	ErrMissingAccountID = newError(KindValidation, "accounting: line missing account")
	// ErrInvalidCurrency indicates a non ISO-4217 currency code.
	ErrInvalidCurrency = newError(KindValidation, "accounting: invalid currency code")
	// ErrInvalidExchangeRate indicates a non-positive exchange rate.
	ErrInvalidExchangeRate = newError(KindValidation, "accounting: exchange rate must be positive")
	// ErrInvalidDate indicates an unparsable or empty transaction date.
	ErrInvalidDate = newError(KindValidation, "accounting: invalid transaction date")
	// ErrTenantRequired indicates a missing tenant id.
	ErrTenantRequired = newError(KindValidation, "accounting: tenant required")
	// ErrIdempotencyMismatch indicates a reused idempotency key with a different payload.
	ErrIdempotencyMismatch = newError(KindValidation, "accounting: idempotency key reused with different payload")

	// ErrAccountCodeTaken indicates the account code exists for the tenant.
	ErrAccountCodeTaken = newError(KindValidation, "accounting: account code already used")
	// ErrAccountHasChildren blocks deleting parent accounts.
	ErrAccountHasChildren = newError(KindValidation, "accounting: account has child accounts")
	// ErrAccountHasLines blocks deleting accounts referenced by journal lines.
	ErrAccountHasLines = newError(KindValidation, "accounting: account has journal lines")
	// ErrInvalidAccountType indicates an unknown account type.
	ErrInvalidAccountType = newError(KindValidation, "accounting: invalid account type")

	// ErrJournalNotFound indicates missing entry.
	ErrJournalNotFound = newError(KindNotFound, "accounting: journal entry not found")
	// ErrAccountNotFound indicates missing account for the tenant.
	ErrAccountNotFound = newError(KindNotFound, "accounting: account not found")
	// ErrFiscalYearNotFound indicates a missing fiscal year.
	ErrFiscalYearNotFound = newError(KindNotFound, "accounting: fiscal year not found")
	// ErrMappingNotFound indicates account mapping missing.
	ErrMappingNotFound = newError(KindNotFound, "accounting: account mapping not found")

	// ErrProfitLossAccountMissing indicates the chart of accounts lacks the profit/loss account.
	ErrProfitLossAccountMissing = newError(KindMissingAccount, "accounting: profit/loss account (32) not found, seed the chart of accounts")
	// ErrNoOpenYear indicates no open fiscal year for closing.
	ErrNoOpenYear = newError(KindNoOpenYear, "accounting: no open fiscal year")
	// ErrNothingToClose indicates all nominal accounts are already zero.
	ErrNothingToClose = newError(KindNothingToClose, "accounting: no balances to close")
	// ErrCloseInProgress indicates another close run holds the tenant lock.
	ErrCloseInProgress = newError(KindTransient, "accounting: fiscal year close already in progress")
)

// Transient wraps a storage failure that is safe to retry after rollback.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) && typed.Kind == KindTransient {
		return err
	}
	return &Error{Kind: KindTransient, Message: "accounting: transient storage failure", Err: err}
}

// KindOf reports the kind of a ledger error, KindInternal for untyped errors.
func KindOf(err error) Kind {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	return KindInternal
}

// IsRetryable reports whether err is a transient failure.
func IsRetryable(err error) bool {
	return err != nil && KindOf(err) == KindTransient
}
