package httpx

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vladislavdragonenkov/settlement/internal/health"
)

// NewRouter собирает chi-router со стандартными middleware и служебными
// endpoint'ами. Обработчики конвейера регистрируются отдельно.
func NewRouter(healthHandler *health.Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))

	r.Get("/livez", health.LivenessHandler)
	if healthHandler != nil {
		r.Method(http.MethodGet, "/healthz", healthHandler)
		r.Get("/readyz", healthHandler.ReadinessHandler)
	}
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}
