// Package httpapi assembles the chi router for the orchestration service.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"orchestrator/internal/http/handlers"
	"orchestrator/internal/middleware"
)

// Options tunes the cross-cutting middleware.
type Options struct {
	RateLimitPerMin int
	AllowedOrigins  []string
	DefaultLocale   string
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP, chimw.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(opts.AllowedOrigins))
	r.Use(middleware.I18N(opts.DefaultLocale))
	r.Use(middleware.Logger(app.Logger))

	r.Get("/v1/healthz", app.Health)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Identity)
		if opts.RateLimitPerMin > 0 {
			r.Use(middleware.RateLimit(opts.RateLimitPerMin, time.Minute))
		}

		r.Post("/v1/requests", app.SubmitRequest)

		r.Route("/v1/tasks", func(r chi.Router) {
			r.Get("/", app.ListTasks)
			r.Get("/stream", app.StreamTasks)
			r.Get("/{id}", app.GetTask)
		})

		r.Get("/v1/quota/{feature}", app.QuotaPreview)
		r.Get("/v1/context/{project}", app.GetContext)
	})

	return r
}
