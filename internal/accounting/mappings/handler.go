package mappings

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

type Handler struct {
	registry  *Registry
	logger    *slog.Logger
	validator *validator.Validate
}

func NewHandler(logger *slog.Logger, registry *Registry) *Handler {
	return &Handler{logger: logger, registry: registry, validator: validator.New()}
}

// MountRoutes attaches account role routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Put("/{role}", h.Assign)
	r.Delete("/{role}", h.Unassign)
}

type assignRequest struct {
	AccountID int64 `json:"account_id" validate:"required,gt=0"`
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	table, err := h.registry.ResolveAll(r.Context(), id.TenantID)
	if err != nil {
		h.logger.Error("resolve roles", slog.String("tenant", id.TenantID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make(map[string]*int64, len(defaultCodes))
	for _, role := range Roles() {
		if accountID, ok := table[role]; ok {
			out[string(role)] = &accountID
			continue
		}
		out[string(role)] = nil
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": out})
}

func (h *Handler) Assign(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	var req assignRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	m, err := h.registry.Assign(r.Context(), id.TenantID, Role(chi.URLParam(r, "role")), req.AccountID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"role": m.Role, "account_id": m.AccountID})
}

func (h *Handler) Unassign(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	if err := h.registry.Unassign(r.Context(), id.TenantID, Role(chi.URLParam(r, "role"))); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
