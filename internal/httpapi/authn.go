package httpapi

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"instituteos.app/internal/auth"
	"instituteos.app/internal/obs"
)

// withAuth attaches the principal of a valid bearer token or session cookie.
// Anonymous requests pass through; routes opt in with requireAuth.
func (a *API) withAuth(next http.Handler) http.Handler {
	if a.Auth == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		token := auth.TokenFromRequest(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}
		principal, err := a.Auth.Authenticate(r.Context(), token)
		if err != nil {
			if !errors.Is(err, auth.ErrUnauthorized) {
				obs.Logger().Warn("authentication lookup failed",
					zap.String("request_id", RequestIDFromContext(r.Context())),
					zap.Error(err))
			}
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.ContextWithPrincipal(r.Context(), principal)))
	})
}

func (a *API) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.PrincipalFromContext(r.Context()); !ok {
			writeError(w, r, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func principalOf(r *http.Request) auth.Principal {
	p, _ := auth.PrincipalFromContext(r.Context())
	return p
}
