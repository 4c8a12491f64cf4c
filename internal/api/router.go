package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/phrazzld/reelchain/internal/api/middleware"
	"github.com/phrazzld/reelchain/internal/service/auth"
)

// RouterDeps are the collaborators behind the HTTP surface.
type RouterDeps struct {
	Chains     ChainService
	Events     EventSource
	Audio      AudioSource
	Configurer Configurer
	Store      StoreStatus
	JWT        auth.JWTService
	Gatherer   prometheus.Gatherer
	Logger     *slog.Logger
	// RequestTimeout bounds non-streaming API requests. Zero disables it.
	RequestTimeout time.Duration
}

// NewRouter builds the HTTP router. Everything under /api requires a bearer
// token; health and metrics endpoints do not.
func NewRouter(d RouterDeps) http.Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}

	chains := NewChainHandler(d.Chains, d.Audio)
	events := NewEventsHandler(d.Chains, d.Events)
	configure := NewConfigureHandler(d.Configurer)
	health := NewHealthHandler(d.Store)
	authMiddleware := middleware.NewAuthMiddleware(d.JWT)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.NewTraceMiddleware(d.Logger))
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", health.Health)
	r.Get("/health/store", health.Store)
	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(authMiddleware.Authenticate)

		// Streams stay open for the lifetime of the run.
		r.Get("/chains/{runID}/events", events.Stream)

		r.Group(func(r chi.Router) {
			if d.RequestTimeout > 0 {
				r.Use(chimiddleware.Timeout(d.RequestTimeout))
			}
			r.Post("/chains", chains.CreateChain)
			r.Get("/chains/{runID}", chains.GetChain)
			r.Get("/chains/{runID}/tasks/{taskID}", chains.GetTask)
			r.Get("/chains/{runID}/audio", chains.GetAudio)
			r.Post("/configure", configure.Configure)
		})
	})

	return r
}
