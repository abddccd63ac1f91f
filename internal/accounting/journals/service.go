package journals

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/fiscalyears"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// DefaultListLimit caps ListEntries when the caller passes no limit.
const DefaultListLimit = 50

const maxListLimit = 500

// SettingsProvider resolves tenant preferences. An empty currency means unset.
type SettingsProvider interface {
	DefaultCurrency(ctx context.Context, tenantID string) (string, error)
}

// Locker grants a short lived exclusive lock. Acquire fails with cache.ErrLockHeld when taken.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, err error)
}

// Recorder receives engine outcomes for metrics.
type Recorder interface {
	ObservePosting(result string, elapsed time.Duration)
	ObserveReversal(result string)
	ObserveClosing(result string)
}

// Outcome labels reported to the Recorder.
const (
	ResultOK       = "ok"
	ResultInvalid  = "invalid"
	ResultReplayed = "replayed"
	ResultNoop     = "noop"
	ResultRetry    = "retry"
	ResultError    = "error"
)

// Config carries engine tunables.
type Config struct {
	FallbackCurrency string
	CloseLockTTL     time.Duration
}

// Service is the journal engine: posting, reversal and year-end closing.
type Service struct {
	repo     Repository
	settings SettingsProvider
	locker   Locker
	metrics  Recorder
	logger   *slog.Logger
	cfg      Config
	now      func() time.Time
}

func NewService(repo Repository, settings SettingsProvider, logger *slog.Logger, cfg Config) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FallbackCurrency == "" {
		cfg.FallbackCurrency = "EGP"
	}
	if cfg.CloseLockTTL <= 0 {
		cfg.CloseLockTTL = 2 * time.Minute
	}
	return &Service{
		repo:     repo,
		settings: settings,
		metrics:  noopRecorder{},
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
	}
}

func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithLocker guards CloseFiscalYear with a distributed per-tenant lock.
func (s *Service) WithLocker(l Locker) {
	s.locker = l
}

func (s *Service) WithMetrics(r Recorder) {
	if r != nil {
		s.metrics = r
	}
}

// PostEntry validates the input and persists a balanced entry, its lines and the
// resulting balance changes in one transaction.
func (s *Service) PostEntry(ctx context.Context, input PostingInput) (JournalEntry, error) {
	start := s.now()
	in, err := input.normalize()
	if err != nil {
		s.metrics.ObservePosting(ResultInvalid, 0)
		return JournalEntry{}, err
	}
	cur, err := s.resolveCurrency(ctx, in.TenantID, in.Currency)
	if err != nil {
		s.metrics.ObservePosting(resultOf(err), 0)
		return JournalEntry{}, err
	}
	rate := decimal.NewFromInt(1)
	if in.ExchangeRate != nil {
		rate = *in.ExchangeRate
	}

	var (
		entry    JournalEntry
		replayed bool
	)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if in.IdempotencyKey != uuid.Nil {
			fp := fingerprint(in, cur, rate.String())
			rec, claimed, err := tx.ClaimIdempotencyKey(ctx, in.TenantID, in.IdempotencyKey, fp)
			if err != nil {
				return err
			}
			if !claimed {
				if rec.Fingerprint != fp {
					return shared.ErrIdempotencyMismatch
				}
				if rec.EntryID == nil {
					return fmt.Errorf("idempotent entry was reversed: %w", shared.ErrJournalNotFound)
				}
				replayed = true
				entry, err = tx.GetJournalWithLines(ctx, in.TenantID, *rec.EntryID)
				return err
			}
		}
		fy, err := openFiscalYear(ctx, tx, in.TenantID, s.now())
		if err != nil {
			return err
		}
		entry, err = s.postLines(ctx, tx, JournalEntry{
			TenantID:     in.TenantID,
			FiscalYearID: fy.ID,
			Date:         in.Date,
			Description:  in.Description,
			Reference:    in.Reference,
			Currency:     cur,
			ExchangeRate: rate,
			CreatedBy:    in.UserID,
		}, in.Lines)
		if err != nil {
			return err
		}
		if in.IdempotencyKey != uuid.Nil {
			return tx.AttachIdempotencyKey(ctx, in.TenantID, in.IdempotencyKey, entry.ID)
		}
		return nil
	})
	elapsed := s.now().Sub(start)
	if err != nil {
		s.metrics.ObservePosting(resultOf(err), elapsed)
		s.logger.Warn("journal posting failed", slog.String("tenant", in.TenantID), slog.Any("error", err))
		return JournalEntry{}, err
	}
	if replayed {
		s.metrics.ObservePosting(ResultReplayed, elapsed)
		return entry, nil
	}
	s.metrics.ObservePosting(ResultOK, elapsed)
	s.logger.Info("journal posted",
		slog.String("tenant", entry.TenantID),
		slog.String("number", entry.Number),
		slog.Int64("entry_id", entry.ID))
	return entry, nil
}

// postLines is the single write path shared by postings and closing entries. Balance
// deltas are applied in ascending account order before the lines reference the accounts.
func (s *Service) postLines(ctx context.Context, tx TxRepository, header JournalEntry, lines []PostingLineInput) (JournalEntry, error) {
	seq, err := tx.NextEntrySequence(ctx, header.TenantID)
	if err != nil {
		return JournalEntry{}, err
	}
	header.Number = FormatEntryNumber(seq)
	header.Status = JournalStatusPosted
	for _, d := range balanceDeltas(lines, 1) {
		if err := tx.ApplyBalanceDelta(ctx, header.TenantID, d.AccountID, d.Amount); err != nil {
			return JournalEntry{}, err
		}
	}
	inserted, err := tx.InsertJournalEntry(ctx, header)
	if err != nil {
		return JournalEntry{}, err
	}
	insertedLines, err := tx.InsertJournalLines(ctx, inserted.ID, lines)
	if err != nil {
		return JournalEntry{}, err
	}
	inserted.Lines = insertedLines
	return inserted, nil
}

// ReverseEntry undoes the balance effect of an entry and deletes it with its lines.
func (s *Service) ReverseEntry(ctx context.Context, tenantID string, entryID int64) error {
	if tenantID == "" {
		s.metrics.ObserveReversal(ResultInvalid)
		return shared.ErrTenantRequired
	}
	var number string
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		entry, err := tx.GetJournalWithLines(ctx, tenantID, entryID)
		if err != nil {
			return err
		}
		number = entry.Number
		for _, d := range balanceDeltas(lineInputs(entry.Lines), -1) {
			if err := tx.ApplyBalanceDelta(ctx, tenantID, d.AccountID, d.Amount); err != nil {
				return err
			}
		}
		return tx.DeleteJournalEntry(ctx, tenantID, entryID)
	})
	if err != nil {
		s.metrics.ObserveReversal(resultOf(err))
		s.logger.Warn("journal reversal failed",
			slog.String("tenant", tenantID), slog.Int64("entry_id", entryID), slog.Any("error", err))
		return err
	}
	s.metrics.ObserveReversal(ResultOK)
	s.logger.Info("journal reversed",
		slog.String("tenant", tenantID), slog.String("number", number), slog.Int64("entry_id", entryID))
	return nil
}

// EnsureOpenFiscalYear returns the open fiscal year, creating the current calendar year when none is open.
func (s *Service) EnsureOpenFiscalYear(ctx context.Context, tenantID string) (fiscalyears.FiscalYear, error) {
	if tenantID == "" {
		return fiscalyears.FiscalYear{}, shared.ErrTenantRequired
	}
	var fy fiscalyears.FiscalYear
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		fy, err = openFiscalYear(ctx, tx, tenantID, s.now())
		return err
	})
	return fy, err
}

// openFiscalYear share-locks the open year so a concurrent close waits for this transaction.
func openFiscalYear(ctx context.Context, tx TxRepository, tenantID string, now time.Time) (fiscalyears.FiscalYear, error) {
	fy, err := tx.LockOpenFiscalYear(ctx, tenantID, LockShare)
	if err == nil || !errors.Is(err, shared.ErrNoOpenYear) {
		return fy, err
	}
	if err := tx.InsertFiscalYearIfNone(ctx, fiscalyears.CalendarYear(tenantID, now.Year())); err != nil {
		return fiscalyears.FiscalYear{}, err
	}
	return tx.LockOpenFiscalYear(ctx, tenantID, LockShare)
}

func (s *Service) GetEntry(ctx context.Context, tenantID string, id int64) (JournalEntry, error) {
	if tenantID == "" {
		return JournalEntry{}, shared.ErrTenantRequired
	}
	return s.repo.GetEntry(ctx, tenantID, id)
}

// ListEntries returns the newest entries first. A non-positive limit means DefaultListLimit.
func (s *Service) ListEntries(ctx context.Context, tenantID string, limit int) ([]JournalEntry, error) {
	if tenantID == "" {
		return nil, shared.ErrTenantRequired
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return s.repo.ListEntries(ctx, tenantID, limit)
}

// Export flattens every entry of the tenant, newest first.
func (s *Service) Export(ctx context.Context, tenantID string) ([]ExportRow, error) {
	if tenantID == "" {
		return nil, shared.ErrTenantRequired
	}
	entries, err := s.repo.ListEntries(ctx, tenantID, 0)
	if err != nil {
		return nil, err
	}
	rows := make([]ExportRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, ExportRowOf(e))
	}
	return rows, nil
}

// resolveCurrency picks the explicit code, then the tenant setting, then the fallback.
func (s *Service) resolveCurrency(ctx context.Context, tenantID, explicit string) (string, error) {
	if explicit != "" {
		if _, err := currency.ParseISO(explicit); err != nil {
			return "", fmt.Errorf("%w: %q", shared.ErrInvalidCurrency, explicit)
		}
		return strings.ToUpper(explicit), nil
	}
	if s.settings != nil {
		code, err := s.settings.DefaultCurrency(ctx, tenantID)
		if err != nil {
			return "", err
		}
		if code != "" {
			return strings.ToUpper(code), nil
		}
	}
	return s.cfg.FallbackCurrency, nil
}

type accountDelta struct {
	AccountID int64
	Amount    decimal.Decimal
}

// balanceDeltas aggregates sign*(debit-credit) per account, ordered by account id.
func balanceDeltas(lines []PostingLineInput, sign int64) []accountDelta {
	byAccount := make(map[int64]decimal.Decimal, len(lines))
	for _, line := range lines {
		byAccount[line.AccountID] = byAccount[line.AccountID].Add(line.Debit.Sub(line.Credit))
	}
	out := make([]accountDelta, 0, len(byAccount))
	factor := decimal.NewFromInt(sign)
	for id, amount := range byAccount {
		out = append(out, accountDelta{AccountID: id, Amount: amount.Mul(factor)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out
}

func lineInputs(lines []JournalLine) []PostingLineInput {
	out := make([]PostingLineInput, len(lines))
	for i, line := range lines {
		out[i] = PostingLineInput{AccountID: line.AccountID, Description: line.Description, Debit: line.Debit, Credit: line.Credit}
	}
	return out
}

func resultOf(err error) string {
	switch shared.KindOf(err) {
	case shared.KindValidation:
		return ResultInvalid
	case shared.KindTransient:
		return ResultRetry
	case shared.KindNothingToClose:
		return ResultNoop
	}
	return ResultError
}

type noopRecorder struct{}

func (noopRecorder) ObservePosting(string, time.Duration) {}
func (noopRecorder) ObserveReversal(string)               {}
func (noopRecorder) ObserveClosing(string)                {}
