package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"clipstudio/internal/http/handlers"
	"clipstudio/internal/middleware"
)

// Options configures the router middleware stack.
type Options struct {
	Logger          zerolog.Logger
	RateLimitPerMin int
	CORSOrigins     []string
	DefaultLocale   string
	// Files serves signed local storage URLs under /v1/files. Nil leaves the
	// route unmounted.
	Files http.Handler
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
		middleware.CORS(opts.CORSOrigins),
		middleware.Locale(opts.DefaultLocale),
	)

	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/readyz", app.Ready)
	r.Get("/v1/openapi.json", app.OpenAPIJSON)
	r.Get("/v1/docs", app.OpenAPIDocs)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/clip-types", app.ClipTypes)
		r.Get("/models", app.Models)

		r.Route("/timeline", func(r chi.Router) {
			r.Post("/auto-space", app.AutoSpace)
			r.Post("/validate", app.ValidateTimeline)
		})

		r.Route("/clips", func(r chi.Router) {
			r.With(middleware.RateLimit(opts.RateLimitPerMin, time.Minute)).Post("/", app.SubmitClip)
			r.Post("/plan", app.PlanClip)
		})

		r.Get("/jobs/{job_id}", app.GetJob)
		r.Get("/assets/signed", app.SignedAsset)

		if opts.Files != nil {
			r.Handle("/files/*", http.StripPrefix("/v1/files", opts.Files))
		}
	})

	return r
}
