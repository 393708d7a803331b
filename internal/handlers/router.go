package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/dpup/intel-overlay/server/internal/config"
	"github.com/dpup/intel-overlay/server/internal/metrics"
	"github.com/dpup/intel-overlay/server/internal/services"
)

// NewRouter builds the JSON API served under /api/v1
func NewRouter(cfg config.ServerConfig, planner *services.PlannerService, offsets *services.OffsetService) http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(instrument)
	if cfg.RequestTimeout > 0 {
		router.Use(middleware.Timeout(cfg.RequestTimeout))
	}

	// IITC runs inside the intel page, so requests arrive cross-origin
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CorsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	sessions := NewSessionHandler(planner)
	offset := NewOffsetHandler(offsets)

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			respondWithJSON(w, http.StatusOK, map[string]interface{}{
				"status":   "ok",
				"sessions": planner.Stats(),
			})
		})

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", sessions.CreateSession)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", sessions.GetSession)
				r.Delete("/", sessions.DeleteSession)
				r.Put("/activation", sessions.SetActivation)
				r.Post("/refresh", sessions.Refresh)

				r.Route("/shapes", func(r chi.Router) {
					r.Get("/", sessions.ListShapes)
					r.Post("/", sessions.AddShape)
					r.Put("/", sessions.ReplaceShapes)
					r.Delete("/", sessions.ClearShapes)
					r.Get("/drawtools", sessions.ExportDrawTools)
					r.Post("/drawtools", sessions.ImportDrawTools)
				})

				r.Route("/links", func(r chi.Router) {
					r.Get("/", sessions.ListLinks)
					r.Post("/", sessions.AddLinks)
					r.Delete("/{guid}", sessions.RemoveLink)
				})

				r.Get("/highlights", sessions.ListHighlights)
				r.Get("/highlights.kml", sessions.ExportKML)
			})
		})

		r.Route("/offset", func(r chi.Router) {
			r.Get("/", offset.TransformPoint)
			r.Post("/", offset.TransformBatch)
			r.Post("/viewport", offset.Viewport)
			r.Post("/reverse", offset.Reverse)
		})
	})

	return router
}

// instrument records request latency by route pattern, keeping session ids out of labels
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.RequestDurationMs.WithLabelValues(r.Method, route, strconv.Itoa(status)).
			Observe(float64(time.Since(start).Microseconds()) / 1000)
	})
}
