package web

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter wires the HTTP surface. Everything stateful lives behind the
// handlers; the router only does routing and cross-cutting middleware.
func NewRouter(h *Handlers) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))
	r.Use(corsMiddleware)

	r.Get("/health", h.HealthCheck)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/adventures", func(r chi.Router) {
			r.Post("/", h.CreateAdventure)
			r.Get("/", h.ListAdventures)
			r.Get("/active", h.ActiveAdventure)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetAdventure)
				r.Delete("/", h.DeleteAdventure)
				r.Post("/turns", h.AdvanceTurn)
				r.Post("/restart", h.RestartAdventure)
				r.Post("/abandon", h.AbandonAdventure)
				r.Post("/unlock", h.UnlockAdventure)
			})
		})

		r.Get("/limits", h.RateLimitStatus)
		r.Get("/images/{key}", h.SceneImage)
	})

	r.Get("/ws/adventures/{id}", h.SceneStream)

	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-User-ID, X-User-Name")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
