package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/mkravcova/boosterpack-system/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса бустер-паков.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Get("/packs/{category}/availability", h.PackAvailability)
			r.Post("/packs/{category}/open", h.OpenPack)

			r.Get("/sessions/{sessionID}", h.GetSession)
			r.Post("/sessions/{sessionID}/cards/{cardID}/reveal", h.BeginReveal)
			r.Post("/sessions/{sessionID}/cards/{cardID}/reveal/complete", h.CompleteReveal)
			r.Post("/sessions/{sessionID}/cards/{cardID}/decision", h.Decide)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
