package session

import (
	"errors"
	"net/http"

	"github.com/vantage-tms/vantage-tms/internal/platform/httpx"
	"github.com/vantage-tms/vantage-tms/internal/shared"
)

// Middleware resolves the session cookie on every request and stashes the
// principal id and raw token in context. It never rejects by itself:
// anonymous requests pass through with an empty principal and the
// capability gates downstream decide what needs authentication.
func Middleware(service *Service, cookieName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(cookieName)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			principalID, err := service.Resolve(r.Context(), cookie.Value)
			if err != nil {
				if errors.Is(err, shared.ErrUnavailable) {
					httpx.RespondError(w, err)
					return
				}
				// Invalid or expired token: proceed anonymously.
				next.ServeHTTP(w, r)
				return
			}

			ctx := shared.ContextWithPrincipal(r.Context(), principalID)
			ctx = shared.ContextWithToken(ctx, cookie.Value)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
