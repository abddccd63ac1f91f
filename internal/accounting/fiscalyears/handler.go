package fiscalyears

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes attaches read-only fiscal year routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/current", h.Current)
	r.Get("/{id}", h.Get)
}

type yearResponse struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	IsClosed  bool   `json:"is_closed"`
}

// ToResponse renders a fiscal year for JSON clients.
func ToResponse(fy FiscalYear) any {
	return yearResponse{
		ID:        fy.ID,
		Name:      fy.Name,
		StartDate: fy.StartDate.Format("2006-01-02"),
		EndDate:   fy.EndDate.Format("2006-01-02"),
		IsClosed:  fy.IsClosed,
	}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	years, err := h.service.List(r.Context(), id.TenantID)
	if err != nil {
		h.logger.Error("list fiscal years", slog.String("tenant", id.TenantID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]any, 0, len(years))
	for _, fy := range years {
		out = append(out, ToResponse(fy))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"fiscal_years": out})
}

// Current returns the open fiscal year without creating one.
func (h *Handler) Current(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	fy, err := h.service.Current(r.Context(), id.TenantID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ToResponse(fy))
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	yearID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || yearID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid fiscal year id")
		return
	}
	fy, err := h.service.Get(r.Context(), id.TenantID, yearID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ToResponse(fy))
}
