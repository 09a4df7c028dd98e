package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"postergen/internal/http/handlers"
	"postergen/internal/infra"
	"postergen/internal/middleware"
)

// Options carries router level settings.
type Options struct {
	Logger          infra.Logger
	CORSOrigins     []string
	RateLimitPerMin int
	CountryLookup   middleware.CountryLookup
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	// Middlewares dasar
	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Country(opts.CountryLookup),
		middleware.Logger(opts.Logger),
		middleware.Metrics,
		middleware.CORS(opts.CORSOrigins),
	)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/healthz", app.Health)
		r.Get("/readyz", app.Ready)

		r.Route("/prompts", func(r chi.Router) {
			r.Post("/refine", app.PromptRefine)
			r.Post("/suggestions", app.PromptSuggestions)
			r.Post("/features", app.PromptFeatures)
		})

		// Per client IP.
		r.With(middleware.RateLimit(opts.RateLimitPerMin, time.Minute)).Post("/posters", app.GeneratePosters)

		r.Route("/history", func(r chi.Router) {
			r.Get("/", app.HistoryList)
			r.Get("/{id}", app.HistoryGet)
			r.Get("/{id}/archive", app.HistoryArchive)
		})
	})

	return r
}
