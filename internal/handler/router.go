package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	custommiddleware "github.com/mmeshcher/isp-mcp-gateway/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware HTTP-транспорта.
func (h *Handler) SetupRouter(gatherer prometheus.Gatherer) *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.RequestID)
	r.Use(custommiddleware.Logger(h.logger))
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", h.Healthz)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(h.authMiddleware.Middleware)

		r.Handle("/mcp", server.NewStreamableHTTPServer(h.mcp))
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}

// Healthz сообщает, что процесс жив.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
