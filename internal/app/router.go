package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/vantage-tms/vantage-tms/internal/authz"
	"github.com/vantage-tms/vantage-tms/internal/observability"
	"github.com/vantage-tms/vantage-tms/internal/session"
	"github.com/vantage-tms/vantage-tms/internal/shared"
	"github.com/vantage-tms/vantage-tms/internal/transport"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	Sessions         *session.Service
	CSRF             *shared.CSRFManager
	Metrics          *observability.Metrics
	SessionHandler   *session.Handler
	AuthzHandler     *authz.Handler
	TransportHandler *transport.Handler
}

// NewRouter constructs the chi.Router with Vantage defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:   params.Logger,
		Config:   params.Config,
		Sessions: params.Sessions,
		CSRF:     params.CSRF,
		Metrics:  params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/auth", params.SessionHandler.MountRoutes)
	r.Route("/principals", params.AuthzHandler.MountRoutes)
	r.Route("/transports", params.TransportHandler.MountRoutes)

	return r
}
