package journals

import "github.com/go-chi/chi/v5"

// MountRoutes attaches journal entry routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/export", h.Export)
	r.Get("/{id}", h.Get)
	r.Post("/{id}/reverse", h.Reverse)
}

// MountFiscalYearRoutes attaches the fiscal year lifecycle routes.
func (h *Handler) MountFiscalYearRoutes(r chi.Router) {
	r.Post("/open", h.OpenYear)
	r.Post("/close", h.CloseYear)
}
