package httpapi

import (
	"net/http"

	"go.uber.org/zap"

	"instituteos.app/internal/audit"
	"instituteos.app/internal/auth"
	"instituteos.app/internal/obs"
	"instituteos.app/internal/tenancy"
)

// withTenancy resolves the request's tenancy context from its host, or from the
// override header when the deployment sits behind the edge.
func (a *API) withTenancy(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		override := ""
		if a.TrustOverrideHeader {
			override = r.Header.Get(tenancy.OverrideHeader)
		}
		res := a.Resolver.Resolve(r.Context(), r.Host, override)
		if res.Resolved() {
			r = r.WithContext(tenancy.WithInstitute(r.Context(), res.InstituteID))
		}
		next.ServeHTTP(w, r)
	})
}

// tenantScoped guards h with the tenancy context, optional authentication, the
// trial gate and usage recording, in that order.
func (a *API) tenantScoped(needAuth bool, h http.HandlerFunc) http.Handler {
	var next http.Handler = a.recordUsage(h)
	next = a.trialGate(next)
	if needAuth {
		next = a.requireAuth(a.authorizeTenant(next))
	}
	return a.requireTenancy(next)
}

func (a *API) requireTenancy(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !tenancy.IsTenant(r.Context()) {
			handleError(w, r, tenancy.ErrUnresolved)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authorizeTenant rejects institute principals acting outside their institute.
func (a *API) authorizeTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		instituteID, _ := tenancy.InstituteFromContext(r.Context())
		p := principalOf(r)
		if !p.CanAccess(instituteID) {
			_ = audit.LogEvent(r.Context(), audit.EventCrossTenantBlocked,
				zap.String("token_institute_id", p.InstituteID),
				zap.String("path", r.URL.Path))
			writeError(w, r, http.StatusForbidden, "cross-tenant access denied")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) trialGate(next http.Handler) http.Handler {
	if a.Trial == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		instituteID, _ := tenancy.InstituteFromContext(r.Context())
		if err := a.Trial.Check(r.Context(), instituteID, r.Method); err != nil {
			handleError(w, r, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// recordUsage logs feature usage once the handler has succeeded.
func (a *API) recordUsage(next http.Handler) http.Handler {
	if a.Usage == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := obs.NewStatusWriter(w)
		next.ServeHTTP(sw, r)
		if sw.Status() >= http.StatusBadRequest {
			return
		}
		instituteID, _ := tenancy.InstituteFromContext(r.Context())
		a.Usage.Record(r.Context(), instituteID, auth.SubjectFromContext(r.Context()), obs.CanonicalPath(r.URL.Path))
	})
}
