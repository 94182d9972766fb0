package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/relaymesh/devicegate/internal/health"
	"github.com/relaymesh/devicegate/internal/http/handler"
	"github.com/relaymesh/devicegate/internal/http/middleware"
	"github.com/relaymesh/devicegate/internal/http/response"
)

type Dependencies struct {
	DeviceHandler   *handler.DeviceHandler
	APIRateLimitRPM int
	Readiness       *health.ProbeRunner
	EnableOTelHTTP  bool
}

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.StructuredRequestLogger)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.BodyLimit(1 << 20))
	r.Use(middleware.NewRateLimiter(dep.APIRateLimitRPM, time.Minute).Middleware())

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if dep.Readiness == nil {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": []any{}})
			return
		}
		ready, results := dep.Readiness.Ready(r.Context())
		if ready {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": results})
			return
		}
		response.Error(w, r, http.StatusServiceUnavailable, "DEPENDENCY_UNREADY", "dependencies are not ready")
	})

	r.Route("/api/v1/device", func(r chi.Router) {
		r.Post("/challenge", dep.DeviceHandler.IssueChallenge)
		r.Post("/sessions", dep.DeviceHandler.CreateSession)
		r.Get("/sessions/{sessionID}", dep.DeviceHandler.GetSession)
		r.Put("/sessions/{sessionID}/online", dep.DeviceHandler.SetOnlineStatus)
	})

	var h http.Handler = r
	if dep.EnableOTelHTTP {
		h = otelhttp.NewHandler(r, "http.server")
	}
	return h
}
