package expenses

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

type Handler struct {
	service   *Service
	logger    *slog.Logger
	validator *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/accounts", h.ExpenseAccounts)
	r.Get("/treasury-accounts", h.TreasuryAccounts)
}

type createRequest struct {
	Date        string          `json:"date" validate:"required"`
	Description string          `json:"description" validate:"max=500"`
	AccountID   int64           `json:"account_id" validate:"required,gt=0"`
	Amount      decimal.Decimal `json:"amount"`
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	date, err := journals.ParseDate(req.Date)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entry, err := h.service.Record(r.Context(), Input{
		TenantID:    id.TenantID,
		UserID:      id.UserID,
		Date:        date,
		Description: req.Description,
		AccountID:   req.AccountID,
		Amount:      req.Amount,
	})
	if err != nil {
		h.logger.Warn("record expense", slog.String("tenant", id.TenantID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"id":           entry.ID,
		"entry_number": entry.Number,
		"reference":    entry.Reference,
	})
}

type lineResponse struct {
	ID          int64  `json:"id"`
	Date        string `json:"date"`
	AccountID   int64  `json:"account_id"`
	AccountName string `json:"account_name"`
	Amount      string `json:"amount"`
	Description string `json:"description"`
	EntryNumber string `json:"entry_number"`
	Reference   string `json:"reference"`
}

// List serves expense lines filtered by ?from, ?to (YYYY-MM-DD) and ?period=day|week|month|all.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	q := r.URL.Query()
	filter := ListFilter{TenantID: id.TenantID, Period: Period(q.Get("period"))}
	for key, dst := range map[string]**time.Time{"from": &filter.From, "to": &filter.To} {
		raw := q.Get(key)
		if raw == "" {
			continue
		}
		d, err := journals.ParseDate(raw)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		*dst = &d
	}
	res, err := h.service.List(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]lineResponse, 0, len(res.Expenses))
	for _, l := range res.Expenses {
		out = append(out, lineResponse{
			ID:          l.ID,
			Date:        l.Date.Format("2006-01-02"),
			AccountID:   l.AccountID,
			AccountName: l.AccountName,
			Amount:      l.Amount.StringFixed(2),
			Description: l.Description,
			EntryNumber: l.EntryNumber,
			Reference:   l.Reference,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"expenses":       out,
		"monthly_total":  res.MonthlyTotal.StringFixed(2),
		"filtered_total": res.FilteredTotal.StringFixed(2),
	})
}

type accountResponse struct {
	ID   int64  `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

func (h *Handler) ExpenseAccounts(w http.ResponseWriter, r *http.Request) {
	h.serveAccounts(w, r, h.service.ExpenseAccounts)
}

func (h *Handler) TreasuryAccounts(w http.ResponseWriter, r *http.Request) {
	h.serveAccounts(w, r, h.service.TreasuryAccounts)
}

func (h *Handler) serveAccounts(w http.ResponseWriter, r *http.Request, load func(ctx context.Context, tenantID string) ([]accounts.Account, error)) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	list, err := load(r.Context(), id.TenantID)
	if err != nil {
		h.logger.Error("list expense accounts", slog.String("tenant", id.TenantID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]accountResponse, 0, len(list))
	for _, a := range list {
		out = append(out, accountResponse{ID: a.ID, Code: a.Code, Name: a.Name})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"accounts": out})
}
