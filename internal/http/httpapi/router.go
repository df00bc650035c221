package httpapi

import (
	stdhttp "net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AppleLamps/gptveo/internal/http/handlers"
	"github.com/AppleLamps/gptveo/internal/middleware"
)

// NewRouter wires the API surface. lookup may be nil when no GeoIP database
// is configured; locale detection then relies on headers alone.
func NewRouter(app *handlers.App, lookup middleware.CountryLookup) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP, chimw.Recoverer)
	r.Use(middleware.CORS(app.Config.CORSAllowedOrigins))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(app.Logger))
	r.Use(middleware.RateLimit(app.Config.RateLimitPerMin, time.Minute))
	r.Use(middleware.I18N(app.Config.DefaultLocale, lookup))

	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/openapi.json", app.OpenAPIJSON)
	r.Get("/v1/docs", app.OpenAPIDocs)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1/videos", func(r chi.Router) {
		r.Post("/generations", app.VideosGenerate)
		r.Get("/", app.LibraryList)
		r.Get("/archive", app.LibraryArchive)
		r.Get("/download/*", app.LibraryDownload)
	})

	r.Route("/v1/generations", func(r chi.Router) {
		r.Get("/", app.GenerationsList)
		r.Get("/{id}", app.GenerationGet)
	})

	r.Get("/v1/stats/summary", app.StatsSummary)

	return r
}
