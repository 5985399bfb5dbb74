package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/rbelouin/midi-hub/internal/hub"
	"github.com/rbelouin/midi-hub/internal/observability"
)

// NewRouter wires the daemon's HTTP surface: the command channel, health and
// metrics, and optionally the static player page.
func NewRouter(h *hub.Hub, publicDir string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", observability.Handler())
	r.Get("/ws", h.ServeHTTP)

	if publicDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(publicDir)))
	}

	return r
}
