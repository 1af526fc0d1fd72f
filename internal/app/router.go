package app

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpserver "github.com/fairyhunter13/smurfguard/internal/adapter/httpserver"
	"github.com/fairyhunter13/smurfguard/internal/adapter/observability"
	"github.com/fairyhunter13/smurfguard/internal/config"
)

// ParseOrigins splits a comma-separated origin list into a slice, trimming
// spaces. An empty input means every origin.
func ParseOrigins(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" || s == "*" {
		return []string{"*"}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// BuildRouter constructs the HTTP handler with all middlewares and routes.
// The /v1 surface carries the bearer guard when a token is configured; the
// health endpoints stay open for probes and scrapers.
func BuildRouter(cfg config.Config, srv *httpserver.Server) http.Handler {
	r := chi.NewRouter()
	r.Use(httpserver.Recoverer())
	r.Use(httpserver.RequestID())
	r.Use(httpserver.TimeoutMiddleware(30 * time.Second))
	r.Use(httpserver.TraceMiddleware)
	r.Use(httpserver.AccessLog())
	r.Use(observability.HTTPMetricsMiddleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   ParseOrigins(cfg.CORSAllowOrigins),
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Route("/v1", func(v chi.Router) {
		if cfg.AdminEnabled() {
			v.Use(httpserver.BearerAuth(cfg.AdminAPIKey))
		}
		v.Get("/jobs", srv.ListJobsHandler())
		v.Get("/executions", srv.ListExecutionsHandler())
		v.Get("/executions/{id}", srv.GetExecutionHandler())
		v.Get("/rate-limits", srv.RateLimitsHandler())
		v.Get("/players/{puuid}/detections", srv.PlayerDetectionsHandler())

		// mutating endpoints get the per-IP budget on top of auth
		v.Group(func(m chi.Router) {
			m.Use(httprate.LimitByIP(cfg.RateLimitPerMin, time.Minute))
			m.Patch("/jobs/{job_type}", srv.PatchJobHandler())
			m.Post("/jobs/{job_type}/trigger", srv.TriggerJobHandler())
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) { promhttp.Handler().ServeHTTP(w, r) })
	r.Get("/readyz", srv.ReadyzHandler())

	return httpserver.SecurityHeaders(r)
}
