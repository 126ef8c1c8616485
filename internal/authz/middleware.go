package authz

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/vantage-tms/vantage-tms/internal/platform/httpx"
	"github.com/vantage-tms/vantage-tms/internal/shared"
)

// Middleware wires capability gates for HTTP handlers.
type Middleware struct {
	Resolver *Resolver
	Logger   *slog.Logger
}

// Require ensures the current principal holds the given leaf permission.
// Administrators always pass.
func (m Middleware) Require(section, key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			eff, err := m.Resolver.EffectiveFromContext(r.Context())
			if err != nil {
				if errors.Is(err, shared.ErrUnauthenticated) || errors.Is(err, shared.ErrNotFound) {
					httpx.RespondError(w, shared.ErrUnauthenticated)
					return
				}
				if m.Logger != nil {
					m.Logger.Error("capability check failed", slog.Any("error", err))
				}
				httpx.RespondError(w, err)
				return
			}
			if !eff.Allows(section, key) {
				httpx.RespondError(w, shared.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
