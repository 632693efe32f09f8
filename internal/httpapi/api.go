// Package httpapi exposes the sample workflow engine to untrusted callers.
// Authentication resolves a principal; every permission decision stays in
// the engine's transition guard.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"samplecore/internal/blob"
	"samplecore/internal/core"
	"samplecore/internal/registry"
)

// API bundles the service, attachment store and office registry behind the
// HTTP surface.
type API struct {
	service  *core.Service
	photos   blob.Store
	offices  *registry.Registry
	logger   *logrus.Logger
	validate *validator.Validate
	secret   []byte
	metrics  *HTTPMetrics
}

// Options configures New. Logger and Registerer are optional.
type Options struct {
	Service    *core.Service
	Photos     blob.Store
	Offices    *registry.Registry
	JWTSecret  []byte
	Logger     *logrus.Logger
	Registerer prometheus.Registerer
}

// New assembles the API from its dependencies.
func New(opts Options) *API {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
	}
	return &API{
		service:  opts.Service,
		photos:   opts.Photos,
		offices:  opts.Offices,
		logger:   logger,
		validate: validator.New(),
		secret:   opts.JWTSecret,
		metrics:  NewHTTPMetrics(opts.Registerer),
	}
}

// Router builds the chi router with logging, metrics and auth middleware.
func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(RequestLogger(a.logger))
	r.Use(a.metrics.Middleware)
	r.Use(Authenticator(a.secret, "/healthz", "/metrics"))

	r.Get("/healthz", a.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/samples", func(r chi.Router) {
			r.Post("/", a.handleCreateSample)
			r.Get("/", a.handleListSamples)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", a.handleGetSample)
				r.Delete("/", a.handleDeleteSample)
				r.Post("/transitions", a.handleTransition)
				r.Post("/results", a.handleSaveResults)
				r.Post("/prep-result", a.handlePrepResult)
				r.Post("/modifications", a.handleModification)
				r.Get("/photos", a.handleListPhotos)
				r.Post("/photos", a.handleUploadPhoto)
			})
		})
		r.Get("/queues", a.handleQueues)
		r.Get("/stream", a.handleStream)
		r.Get("/offices", a.handleOffices)
	})
	return r
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleOffices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.offices.List())
}
