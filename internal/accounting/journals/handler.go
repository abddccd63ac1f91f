package journals

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/fiscalyears"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// IdempotencyHeader carries the client supplied posting key.
const IdempotencyHeader = "Idempotency-Key"

// listSummaryNames caps the account names shown per entry in listings.
const listSummaryNames = 2

type Handler struct {
	service   *Service
	logger    *slog.Logger
	validator *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

type lineRequest struct {
	AccountID   int64           `json:"account_id" validate:"required,gt=0"`
	Description string          `json:"description" validate:"max=500"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
}

type postRequest struct {
	Date         string           `json:"date" validate:"required"`
	Description  string           `json:"description" validate:"max=500"`
	Reference    string           `json:"reference" validate:"max=100"`
	Currency     string           `json:"currency,omitempty" validate:"omitempty,len=3,alpha"`
	ExchangeRate *decimal.Decimal `json:"exchange_rate,omitempty"`
	Lines        []lineRequest    `json:"lines" validate:"dive"`
}

type lineResponse struct {
	ID          int64  `json:"id"`
	AccountID   int64  `json:"account_id"`
	AccountName string `json:"account_name,omitempty"`
	Description string `json:"description"`
	Debit       string `json:"debit"`
	Credit      string `json:"credit"`
}

type entryResponse struct {
	ID           int64          `json:"id"`
	Number       string         `json:"entry_number"`
	FiscalYearID int64          `json:"fiscal_year_id"`
	Date         string         `json:"date"`
	Description  string         `json:"description"`
	Reference    string         `json:"reference"`
	Currency     string         `json:"currency"`
	ExchangeRate string         `json:"exchange_rate"`
	Status       string         `json:"status"`
	Type         string         `json:"type"`
	Accounts     string         `json:"accounts_summary"`
	TotalDebit   string         `json:"total_debit"`
	TotalCredit  string         `json:"total_credit"`
	CreatedBy    string         `json:"created_by,omitempty"`
	Lines        []lineResponse `json:"lines"`
}

func toEntryResponse(e JournalEntry) entryResponse {
	debit, credit := e.Totals()
	out := entryResponse{
		ID:           e.ID,
		Number:       e.Number,
		FiscalYearID: e.FiscalYearID,
		Date:         e.Date.Format(dateLayout),
		Description:  e.Description,
		Reference:    e.Reference,
		Currency:     e.Currency,
		ExchangeRate: e.ExchangeRate.String(),
		Status:       string(e.Status),
		Type:         string(e.Kind()),
		Accounts:     e.AccountsSummary(listSummaryNames),
		TotalDebit:   debit.StringFixed(2),
		TotalCredit:  credit.StringFixed(2),
		CreatedBy:    e.CreatedBy,
		Lines:        make([]lineResponse, 0, len(e.Lines)),
	}
	for _, l := range e.Lines {
		out.Lines = append(out.Lines, lineResponse{
			ID:          l.ID,
			AccountID:   l.AccountID,
			AccountName: l.AccountName,
			Description: l.Description,
			Debit:       l.Debit.StringFixed(2),
			Credit:      l.Credit.StringFixed(2),
		})
	}
	return out
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid limit")
			return
		}
		limit = n
	}
	entries, err := h.service.ListEntries(r.Context(), id.TenantID, limit)
	if err != nil {
		h.logger.Error("list journals", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toEntryResponse(e))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": out})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	entryID, ok := parseEntryID(w, r)
	if !ok {
		return
	}
	entry, err := h.service.GetEntry(r.Context(), id.TenantID, entryID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toEntryResponse(entry))
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	var req postRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	date, err := ParseDate(req.Date)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var key uuid.UUID
	if raw := r.Header.Get(IdempotencyHeader); raw != "" {
		key, err = uuid.Parse(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid "+IdempotencyHeader)
			return
		}
	}
	in := PostingInput{
		TenantID:       id.TenantID,
		UserID:         id.UserID,
		Date:           date,
		Description:    req.Description,
		Reference:      req.Reference,
		Currency:       req.Currency,
		ExchangeRate:   req.ExchangeRate,
		IdempotencyKey: key,
		Lines:          make([]PostingLineInput, 0, len(req.Lines)),
	}
	for _, l := range req.Lines {
		in.Lines = append(in.Lines, PostingLineInput{
			AccountID:   l.AccountID,
			Description: l.Description,
			Debit:       l.Debit,
			Credit:      l.Credit,
		})
	}
	entry, err := h.service.PostEntry(r.Context(), in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toEntryResponse(entry))
}

func (h *Handler) Reverse(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	entryID, ok := parseEntryID(w, r)
	if !ok {
		return
	}
	if err := h.service.ReverseEntry(r.Context(), id.TenantID, entryID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// OpenYear returns the open fiscal year, creating the current calendar year when none is open.
func (h *Handler) OpenYear(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	fy, err := h.service.EnsureOpenFiscalYear(r.Context(), id.TenantID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, fiscalyears.ToResponse(fy))
}

type exportRowResponse struct {
	Number      string `json:"entry_number"`
	Date        string `json:"date"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Accounts    string `json:"accounts"`
	DebitTotal  string `json:"debit_total"`
	CreditTotal string `json:"credit_total"`
	Currency    string `json:"currency"`
	Status      string `json:"status"`
}

// Export streams every entry as CSV, or JSON with ?format=json.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	format := r.URL.Query().Get("format")
	if format != "" && format != "csv" && format != "json" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "format must be csv or json")
		return
	}
	rows, err := h.service.Export(r.Context(), id.TenantID)
	if err != nil {
		h.logger.Error("export journals", slog.String("tenant", id.TenantID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if format == "json" {
		out := make([]exportRowResponse, 0, len(rows))
		for _, row := range rows {
			out = append(out, exportRowResponse{
				Number:      row.Number,
				Date:        row.Date.Format(dateLayout),
				Type:        string(row.Kind),
				Description: row.Description,
				Accounts:    row.Accounts,
				DebitTotal:  row.DebitTotal.StringFixed(2),
				CreditTotal: row.CreditTotal.StringFixed(2),
				Currency:    row.Currency,
				Status:      string(row.Status),
			})
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"rows": out})
		return
	}
	var buf bytes.Buffer
	if err := WriteExportCSV(&buf, rows); err != nil {
		h.logger.Error("write journal csv", slog.String("tenant", id.TenantID), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	filename := fmt.Sprintf("journal-entries-%s.csv", time.Now().UTC().Format("20060102"))
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logger.Error("write journal csv", slog.Any("error", err))
	}
}

func (h *Handler) CloseYear(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	started := time.Now()
	res, err := h.service.CloseFiscalYear(r.Context(), id.TenantID, id.UserID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("close fiscal year request",
		slog.String("tenant", id.TenantID),
		slog.Duration("duration", time.Since(started)))
	httpx.JSON(w, http.StatusOK, map[string]any{
		"closed_year":    res.ClosedYear.Name,
		"next_year_name": res.NextYear.Name,
		"entry_number":   res.Entry.Number,
		"net_profit":     res.NetProfit.StringFixed(2),
	})
}

func parseEntryID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	entryID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || entryID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid entry id")
		return 0, false
	}
	return entryID, true
}
